package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8090", cfg.HTTPAddr)
	assert.False(t, cfg.P2P)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, int64(32768), cfg.ReadLimit)
	assert.Equal(t, 20, cfg.DataRateLimit)
	assert.True(t, cfg.Publish.Enabled)
	assert.True(t, cfg.Publish.Audio)
	assert.False(t, cfg.Publish.Screen)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
mode: debug
p2p: true
request_timeout: 3s
publish:
  video: false
  video_size: [320, 240, 1280, 720]
  frame_rate: [10, 30]
  attributes:
    name: camera-1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.True(t, cfg.P2P)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.False(t, cfg.Publish.Video)
	assert.True(t, cfg.Publish.Audio)
	assert.Equal(t, []int{320, 240, 1280, 720}, cfg.Publish.VideoSize)
	assert.Equal(t, []float32{10, 30}, cfg.Publish.FrameRate)
	assert.Equal(t, "camera-1", cfg.Publish.Attributes["name"])
}

func TestLoadFileEnv(t *testing.T) {
	t.Setenv("MEDIAFLOW_SIGNAL_URL", "ws://signal.example:9000/ws")
	t.Setenv("MEDIAFLOW_PUBLISH_SCREEN", "true")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "ws://signal.example:9000/ws", cfg.SignalURL)
	assert.True(t, cfg.Publish.Screen)
}
