package bootstrap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/solarman-proxy/internal/config"
)

func testConfig(loggerAddr string) *cfgpkg.Config {
	return &cfgpkg.Config{
		Proxy:  cfgpkg.ProxyConfig{Bind: "127.0.0.1", Port: 0, MaxConnections: 4},
		Logger: cfgpkg.LoggerConfig{Address: loggerAddr, Serial: 42, AutoReconnect: true, SocketTimeoutSec: 1, ConnectTimeout: time.Second},
	}
}

func TestRun_StartsAndStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, testConfig(ln.Addr().String()), zap.NewNop()) }()

	select {
	case c := <-accepted:
		defer c.Close()
	case <-time.After(3 * time.Second):
		t.Fatal("logger was not dialed at startup")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_RedisFailureAborts(t *testing.T) {
	cfg := testConfig("127.0.0.1:1")
	cfg.Redis = cfgpkg.RedisConfig{Enabled: true, Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond}

	err := Run(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
