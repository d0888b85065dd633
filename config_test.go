package wrtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "pion", cfg.Engine)
	assert.Equal(t, "unified-plan", cfg.SDPSemantics)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, SDPSemanticsUnifiedPlan, cfg.Configuration().SDPSemantics)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("WRTC_ENGINE", "fake")
	t.Setenv("WRTC_SDP_SEMANTICS", "plan-b")
	t.Setenv("WRTC_PORT_MIN", "40000")
	t.Setenv("WRTC_PORT_MAX", "40100")
	t.Setenv("WRTC_LIB_PATH", "/opt/lib/libwebrtc_shim.so")
	t.Setenv("WRTC_METRICS_ADDR", ":9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "fake", cfg.Engine)
	assert.Equal(t, "/opt/lib/libwebrtc_shim.so", cfg.LibPath)
	assert.Equal(t, ":9090", cfg.MetricsAddr)

	pcfg := cfg.Configuration()
	assert.Equal(t, SDPSemanticsPlanB, pcfg.SDPSemantics)
	assert.Equal(t, PortRange{Min: 40000, Max: 40100}, pcfg.PortRange)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"engine", map[string]string{"WRTC_ENGINE": "gstreamer"}},
		{"semantics", map[string]string{"WRTC_SDP_SEMANTICS": "plan-c"}},
		{"port-order", map[string]string{"WRTC_PORT_MIN": "50000", "WRTC_PORT_MAX": "40000"}},
		{"port-range", map[string]string{"WRTC_PORT_MIN": "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestOpenEngineUnknownBackend(t *testing.T) {
	_, err := OpenEngine(Config{Engine: "gstreamer"})
	assert.ErrorIs(t, err, ErrNotSupported)

	_, err = ParseBackend("native")
	assert.NoError(t, err)
	assert.True(t, BackendNative.Features().Has(FeaturePlanB|FeatureCurrentDirection))
	assert.False(t, BackendPion.Features().Has(FeaturePlanB))
}
