package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
logger:
  address: 10.0.0.5
  serial: 2612749371
proxy:
  port: 1600
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0", cfg.Proxy.Bind)
	assert.Equal(t, 1600, cfg.Proxy.Port)
	assert.Equal(t, "0.0.0.0:1600", cfg.Proxy.Addr())
	assert.Equal(t, uint32(2612749371), cfg.Logger.Serial)
	assert.Equal(t, "10.0.0.5:8899", cfg.Logger.Addr())
	assert.True(t, cfg.Logger.AutoReconnect)
	assert.Equal(t, 10*time.Second, cfg.Logger.SocketTimeout())
	assert.Equal(t, 5*time.Second, cfg.Logger.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.Proxy.Breaker.Cooldown)
	assert.Equal(t, 50*time.Millisecond, cfg.Serial.Silence)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "logger:\n  address: 10.0.0.5\n  serial: 1\n")
	t.Setenv("SOLARMAN_LOGGER_SOCKETTIMEOUTSEC", "3")
	t.Setenv("SOLARMAN_PROXY_BIND", "127.0.0.1")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Logger.SocketTimeoutSec)
	assert.Equal(t, "127.0.0.1", cfg.Proxy.Bind)
}

func TestLoad_FlagsOverride(t *testing.T) {
	path := writeConfig(t, "logger:\n  address: 10.0.0.5\n  serial: 1\n")

	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.StringP("logger", "l", "", "")
	fs.Uint32P("serial", "s", 0, "")
	fs.IntP("port", "p", 1502, "")
	fs.Bool("auto-reconnect", false, "")
	require.NoError(t, fs.Parse([]string{"-l", "logger.lan:9000", "-s", "77", "--auto-reconnect=false"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "logger.lan:9000", cfg.Logger.Addr())
	assert.Equal(t, uint32(77), cfg.Logger.Serial)
	assert.False(t, cfg.Logger.AutoReconnect)
	// 未显式设置的 flag 不覆盖文件/默认值
	assert.Equal(t, 1502, cfg.Proxy.Port)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, "proxy:\n  port: 70000\n"), nil)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger.address is required")
	assert.Contains(t, err.Error(), "logger.serial is required")
	assert.Contains(t, err.Error(), "proxy.port out of range")

	cfg.Logger.Address = "10.0.0.5"
	cfg.Logger.Serial = 1
	cfg.Proxy.Port = 1502
	cfg.Serial.Enable = true
	assert.ErrorContains(t, cfg.Validate(), "serial.port")
	cfg.Serial.Port = "/dev/ttyUSB0"
	assert.NoError(t, cfg.Validate())
}
