//go:build darwin || linux

package nativeengine

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/wrtc"
)

func TestLibPathsPreferExplicitLocations(t *testing.T) {
	paths := libPaths("/opt/wrtc/libwrtc_shim.so", "/sdk")
	require.GreaterOrEqual(t, len(paths), 2)
	assert.Equal(t, "/opt/wrtc/libwrtc_shim.so", paths[0])
	assert.Equal(t, filepath.Join("/sdk", libName()), paths[1])

	assert.NotContains(t, libPaths("", ""), "")
}

func TestOpenWithoutLibrary(t *testing.T) {
	if Version() != "" {
		t.Skip("libwrtc_shim is installed")
	}
	_, err := Open(filepath.Join(t.TempDir(), "missing.so"))
	assert.ErrorIs(t, err, wrtc.ErrNotSupported)

	assert.True(t, wrtc.BackendNative.Available(), "registered even when the library is missing")
	_, err = wrtc.OpenEngine(wrtc.Config{Engine: "native"})
	assert.ErrorIs(t, err, wrtc.ErrNotSupported)
}

// Every symbol bound at load time is declared in the shim header.
func TestHeaderDeclaresBoundSymbols(t *testing.T) {
	src, err := os.ReadFile("shim.go")
	require.NoError(t, err)
	header, err := os.ReadFile(filepath.Join("include", "wrtc_shim.h"))
	require.NoError(t, err)

	bound := regexp.MustCompile(`RegisterLibFunc\(&\w+, h, "(\w+)"\)`).FindAllStringSubmatch(string(src), -1)
	require.NotEmpty(t, bound)
	for _, m := range bound {
		decl := regexp.MustCompile(`\b` + m[1] + `\(`)
		assert.True(t, decl.Match(header), "%s not declared in wrtc_shim.h", m[1])
	}
}
