package setup

import (
	"os"
	"path/filepath"
	"testing"

	v1 "github.com/archivekit/archivekit/apis/v1"
	"github.com/archivekit/archivekit/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleConfig = `
drivers:
  disabled: [cabextract]
  order: [7z-cli]
  timeout: 30s
  binaries:
    seven_zip: ${TOOLS}/7zz
remote:
  user_agent: test-agent
  headers:
    authorization: Bearer ${TOKEN}
sinks:
  s3:
    bucket: backups
    prefix: extracted
    region: eu-west-1
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"cabextract"}, cfg.Drivers.Disabled)
	assert.Equal(t, []string{"7z-cli"}, cfg.Drivers.Order)
	assert.Equal(t, "30s", cfg.Drivers.Timeout)
	assert.Equal(t, "${TOOLS}/7zz", cfg.Drivers.Binaries.SevenZip)
	assert.Equal(t, "test-agent", cfg.Remote.UserAgent)
	assert.Equal(t, "5m0s", cfg.Remote.Timeout)
	require.NotNil(t, cfg.Sinks.S3)
	assert.Equal(t, "backups", cfg.Sinks.S3.Bucket)
}

func TestParseConfig_EnvOverride(t *testing.T) {
	t.Setenv("ARCHIVEKIT_DRIVERS_TIMEOUT", "45s")

	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "45s", cfg.Drivers.Timeout)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown driver":   "drivers:\n  disabled: [winzip]\n",
		"bad timeout":      "drivers:\n  timeout: soon\n",
		"negative timeout": "remote:\n  timeout: -1s\n",
		"s3 needs bucket":  "sinks:\n  s3:\n    region: us-east-1\n",
		"bad yaml":         "drivers: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("explicit file", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(p, []byte("drivers:\n  timeout: 1m\n"), 0o644))

		cfg, err := LoadConfig(p)
		require.NoError(t, err)
		assert.Equal(t, "1m", cfg.Drivers.Timeout)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("missing default file", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "5m0s", cfg.Drivers.Timeout)
	})
}

func TestExpandConfig(t *testing.T) {
	t.Setenv("TOOLS", "/opt/tools")
	t.Setenv("TOKEN", "abc")

	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	require.NoError(t, ExpandConfig(&cfg, []string{"TOOLS", "TOKEN"}))
	assert.Equal(t, "/opt/tools/7zz", cfg.Drivers.Binaries.SevenZip)
	assert.Equal(t, "Bearer abc", cfg.Remote.Headers["authorization"])

	cfg, err = ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	err = ExpandConfig(&cfg, []string{"TOKEN"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"TOOLS" is not in the allowed list`)
}

func TestDriverOrder(t *testing.T) {
	assert.Equal(t, DefaultOrder, DriverOrder(v1.DriversSpec{}))
	assert.Equal(t,
		[]string{"7z-cli", "zip", "tar", "7z", "rar", "compressed", "iso"},
		DriverOrder(v1.DriversSpec{Order: []string{"7z-cli", "zip"}, Disabled: []string{"cabextract"}}))
}

func TestBuildResolver(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	resolver, err := BuildResolver(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultOrder, resolver.Registry().Names())

	for _, f := range []engine.Format{engine.Zip, engine.Tar, engine.TarGzip, engine.Gzip, engine.SevenZip} {
		assert.True(t, resolver.CanOpen(f), f.String())
	}
	assert.True(t, resolver.CanCreate(engine.Zip))
	assert.True(t, resolver.CanComment(engine.Zip))

	kind, err := resolver.SelectDriver(engine.Zip, engine.CapOpen)
	require.NoError(t, err)
	assert.Equal(t, "zip", kind.Name())

	t.Run("every openable driver is available", func(t *testing.T) {
		for _, f := range resolver.Registry().Formats() {
			for _, k := range resolver.Drivers(f) {
				assert.True(t, k.Available(), k.Name())
				assert.True(t, k.Capabilities(f).Has(engine.CapOpen), k.Name())
			}
		}
	})
}

func TestBuildDownloader(t *testing.T) {
	_, err := BuildDownloader(v1.Config{Remote: v1.RemoteSpec{Timeout: "10s"}}, zap.NewNop())
	require.NoError(t, err)

	_, err = BuildDownloader(v1.Config{Remote: v1.RemoteSpec{Timeout: "x"}}, zap.NewNop())
	require.Error(t, err)
}

func TestBuildSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := BuildSink(t.Context(), v1.Config{}, dir)
	require.NoError(t, err)
	assert.Equal(t, "filesystem", sink.Kind())

	_, err = BuildSink(t.Context(), v1.Config{}, "s3://")
	require.Error(t, err)
}
