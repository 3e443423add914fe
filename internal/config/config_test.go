package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/membership-globe/core"
)

func env(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, core.DefaultProjectionParams(), cfg.Projection)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, 3, cfg.MaxActive)
	assert.Empty(t, cfg.CountriesPath)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		EnvSphereRadius:       "2.25",
		EnvImageWidth:         "360",
		EnvImageHeight:        " 180 ",
		EnvGRPCAddr:           "127.0.0.1:6000",
		EnvCountriesPath:      "/data/countries.json",
		EnvMaxActive:          "4",
		EnvActive:             "eu, nato,,g7",
		EnvTracingEnabled:     "true",
		EnvTracingExporter:    "OTLP",
		EnvTracingSampleRatio: "0.25",
		EnvOTLPEndpoint:       "collector:4317",
	}))
	require.NoError(t, err)

	assert.Equal(t, core.ProjectionParams{SphereRadius: 2.25, ImageWidth: 360, ImageHeight: 180}, cfg.Projection)
	assert.Equal(t, "127.0.0.1:6000", cfg.GRPCAddr)
	assert.Equal(t, "/data/countries.json", cfg.CountriesPath)
	assert.Equal(t, 4, cfg.MaxActive)
	assert.Equal(t, []string{"eu", "nato", "g7"}, cfg.Active)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
	assert.Equal(t, "collector:4317", cfg.Tracing.Endpoint)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvSphereRadius, "-1"},
		{EnvSphereRadius, "NaN"},
		{EnvImageWidth, "wide"},
		{EnvImageHeight, "0"},
		{EnvMaxActive, "-3"},
		{EnvTracingEnabled, "sometimes"},
		{EnvTracingSampleRatio, "1.5"},
		{EnvTracingExporter, "zipkin"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			_, err := FromEnv(env(map[string]string{tc.key: tc.value}))
			require.Error(t, err)
			if tc.key != EnvTracingExporter {
				assert.Contains(t, err.Error(), tc.key)
			}
		})
	}
}

func TestFromEnvJoinsErrors(t *testing.T) {
	_, err := FromEnv(env(map[string]string{EnvImageWidth: "x", EnvImageHeight: "y"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvImageWidth)
	assert.Contains(t, err.Error(), EnvImageHeight)
}

func TestValidateActiveLimit(t *testing.T) {
	_, err := FromEnv(env(map[string]string{EnvActive: "eu,nato,g7,un"}))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "exceed"))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "globe.env")
	require.NoError(t, os.WriteFile(path, []byte("GLOBE_METRICS_ADDR=:9999\nGLOBE_IMAGE_WIDTH=100\n"), 0o600))

	// Variables already in the environment win over the file.
	t.Setenv(EnvImageWidth, "200")
	t.Cleanup(func() { os.Unsetenv(EnvMetricsAddr) })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.MetricsAddr)
	assert.Equal(t, 200, cfg.Projection.ImageWidth)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}
