package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/thesyncim/wrtc/internal/enginetest"
	"github.com/thesyncim/wrtc/script"
)

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.lua")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestRunFakeEngine(t *testing.T) {
	t.Setenv("WRTC_ENGINE", "fake")
	t.Setenv("WRTC_LOG_LEVEL", "warn")
	t.Setenv("WRTC_METRICS_ADDR", "127.0.0.1:0")

	path := writeScript(t, `
		local p = wrtc.peer{}
		assert(arg[1] == "one")
		p:close()
		wrtc.done()`)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, run(ctx, path, []string{"one"}))
}

func TestRunReportsScriptFailure(t *testing.T) {
	t.Setenv("WRTC_ENGINE", "fake")
	path := writeScript(t, `wrtc.done("nope")`)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.ErrorIs(t, run(ctx, path, nil), script.ErrScriptFailed)
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Setenv("WRTC_ENGINE", "fake")
	t.Setenv("WRTC_LOG_LEVEL", "loud")
	assert.Error(t, run(context.Background(), "unused.lua", nil))
}
