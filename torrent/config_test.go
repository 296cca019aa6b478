package torrent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig, *c)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("max-connections: 10\nmax-uploads: 4\nenable-dht: false\nrequest-timeout: 5s\nlisten-interfaces: 127.0.0.1:7000,127.0.0.1:7001\n")
	require.NoError(t, os.WriteFile(path, data, 0600))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, c.MaxConnections)
	assert.Equal(t, 4, c.MaxUploads)
	assert.False(t, c.EnableDHT)
	assert.Equal(t, 5*time.Second, c.RequestTimeout)
	assert.Equal(t, "127.0.0.1:7000,127.0.0.1:7001", c.ListenInterfaces)
	// Not in the file.
	assert.Equal(t, DefaultConfig.KeepAliveInterval, c.KeepAliveInterval)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max-connections: [1"), 0600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
