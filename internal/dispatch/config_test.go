package dispatch

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg := Load("")
	require.Equal(t, runtime.NumCPU(), cfg.Workers)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "text", cfg.LogFormat)
	require.Equal(t, "dispatcher", cfg.MetricsNamespace)
	require.Empty(t, cfg.MetricsAddr)

	cfg = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Equal(t, runtime.NumCPU(), cfg.Workers)
}

func TestLoadOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatcher.yml")
	data := "workers: 3\nlog_level: debug\nlog_format: json\nmetrics_addr: \":9100\"\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg := Load(path)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, ":9100", cfg.MetricsAddr)
	require.Equal(t, "dispatcher", cfg.MetricsNamespace)
}

func TestLoadClampsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatcher.yml")
	require.NoError(t, os.WriteFile(path, []byte("workers: -2\nlog_level: \"\"\n"), 0o644))

	cfg := Load(path)
	require.Equal(t, runtime.NumCPU(), cfg.Workers)
	require.Equal(t, "info", cfg.LogLevel)
}
