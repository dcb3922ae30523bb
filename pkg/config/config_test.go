package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8189, cfg.Server.Port)
	assert.Equal(t, ":8189", cfg.Server.Addr())
	assert.Equal(t, int64(200*1024*1024), cfg.Server.MaxFrameBytes)
	assert.Equal(t, int64(200*1024*1024), cfg.Client.MaxFrameBytes)
	assert.True(t, cfg.Server.ReportErrors)
	assert.True(t, filepath.IsAbs(cfg.Server.RootDir))
	assert.Equal(t, "serverDir", filepath.Base(cfg.Server.RootDir))
	assert.Equal(t, "clientDir", filepath.Base(cfg.Client.RootDir))
	assert.Equal(t, "localhost:8189", cfg.Client.Address)
	assert.Equal(t, 10*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, 64, cfg.Client.QueueSize)
	assert.False(t, cfg.Status.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	viper.Set("server.port", 9000)
	viper.Set("server.root_dir", dir)
	viper.Set("server.max_frame_size", "1 MB")
	viper.Set("server.report_errors", false)
	viper.Set("client.request_timeout", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, dir, cfg.Server.RootDir)
	assert.Equal(t, int64(1000*1000), cfg.Server.MaxFrameBytes)
	assert.False(t, cfg.Server.ReportErrors)
	assert.Equal(t, 2*time.Second, cfg.Client.RequestTimeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value interface{}
	}{
		{"server.port", 0},
		{"server.port", 70000},
		{"server.workers", -1},
		{"server.max_frame_size", "lots"},
		{"client.max_frame_size", "0"},
		{"client.max_frame_size", "8GiB"},
		{"client.request_timeout", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			viper.Set(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseFrameSize(t *testing.T) {
	n, err := ParseFrameSize("200MiB")
	require.NoError(t, err)
	assert.Equal(t, int64(200*1024*1024), n)

	n, err = ParseFrameSize("4096")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), n)
}
