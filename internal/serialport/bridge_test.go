package serialport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/zap/zaptest"

	cfgpkg "github.com/taoyao-code/solarman-proxy/internal/config"
	"github.com/taoyao-code/solarman-proxy/internal/protocol/rtu"
)

// fakePort 按块投递数据；无数据时等待读超时后返回 (0, nil)
type fakePort struct {
	chunks  chan []byte
	timeout time.Duration
	closed  chan struct{}
	once    sync.Once

	mu      sync.Mutex
	written bytes.Buffer
}

func newFakePort() *fakePort {
	return &fakePort{chunks: make(chan []byte, 16), closed: make(chan struct{})}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case c := <-p.chunks:
		return copy(b, c), nil
	case <-time.After(p.timeout):
		return 0, nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written.Bytes()...)
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

type recordingForwarder struct {
	mu   sync.Mutex
	reqs [][]byte
	resp []byte
}

func (f *recordingForwarder) Forward(_ context.Context, req []byte) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.resp
}

func (f *recordingForwarder) Requests() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.reqs...)
}

func TestBridge_SilenceDelimitsFrames(t *testing.T) {
	port := newFakePort()
	resp := rtu.AppendCRC([]byte{0x01, 0x03, 0x02, 0x00, 0x2A})
	fwd := &recordingForwarder{resp: resp}
	cfg := cfgpkg.SerialConfig{Port: "/dev/ttyFAKE", Silence: 20 * time.Millisecond}

	var gotMode *serial.Mode
	b := New(cfg, fwd, zaptest.NewLogger(t), func(name string, mode *serial.Mode) (Port, error) {
		gotMode = mode
		return port, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	req := rtu.AppendCRC([]byte{0x01, 0x03, 0x00, 0x14, 0x00, 0x01})
	// 一帧分两次到达
	port.chunks <- req[:3]
	port.chunks <- req[3:]
	require.Eventually(t, func() bool { return len(port.Written()) == len(resp) }, 2*time.Second, 5*time.Millisecond)

	// CRC 错误的噪声被丢弃
	port.chunks <- []byte{0x00, 0xFF, 0x13}
	time.Sleep(80 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}

	require.Len(t, fwd.Requests(), 1)
	assert.Equal(t, req, fwd.Requests()[0])
	assert.Equal(t, resp, port.Written())
	assert.Equal(t, uint64(1), b.Frames())
	assert.Equal(t, 9600, gotMode.BaudRate)
	assert.Equal(t, serial.NoParity, gotMode.Parity)
}

func TestBridge_ReopensAfterOpenFailure(t *testing.T) {
	port := newFakePort()
	var attempts int
	var mu sync.Mutex
	b := New(cfgpkg.SerialConfig{Port: "/dev/ttyFAKE"}, &recordingForwarder{}, zaptest.NewLogger(t),
		func(string, *serial.Mode) (Port, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				return nil, errors.New("device busy")
			}
			return port, nil
		})
	b.retry = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestModeFrom(t *testing.T) {
	mode, err := ModeFrom(cfgpkg.SerialConfig{BaudRate: 19200, DataBits: 8, Parity: "even", StopBits: 2})
	require.NoError(t, err)
	assert.Equal(t, 19200, mode.BaudRate)
	assert.Equal(t, serial.EvenParity, mode.Parity)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)

	_, err = ModeFrom(cfgpkg.SerialConfig{Parity: "weird"})
	assert.Error(t, err)
	_, err = ModeFrom(cfgpkg.SerialConfig{StopBits: 3})
	assert.Error(t, err)
}
