// Package serialport 本地 RS485 串口前端：把串口上收到的 RTU 请求经同一会话转发给 logger。
package serialport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/solarman-proxy/internal/config"
	"github.com/taoyao-code/solarman-proxy/internal/protocol/rtu"
)

// maxRTUFrame Modbus RTU ADU 上限
const maxRTUFrame = 256

// Forwarder 请求转发（由代理监听器实现，失败时返回空应答）
type Forwarder interface {
	Forward(ctx context.Context, req []byte) []byte
}

// Port 串口最小接口；读超时返回 (0, nil)
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener 打开串口
type Opener func(name string, mode *serial.Mode) (Port, error)

// DefaultOpener 使用 go.bug.st/serial 打开真实串口
func DefaultOpener(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// Bridge 串口 -> 会话转发器
type Bridge struct {
	cfg    cfgpkg.SerialConfig
	fwd    Forwarder
	log    *zap.Logger
	open   Opener
	retry  time.Duration
	frames atomic.Uint64
}

// New 创建串口前端；open 为 nil 时使用 DefaultOpener
func New(cfg cfgpkg.SerialConfig, fwd Forwarder, log *zap.Logger, open Opener) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	if open == nil {
		open = DefaultOpener
	}
	if cfg.Silence <= 0 {
		cfg.Silence = 50 * time.Millisecond
	}
	return &Bridge{cfg: cfg, fwd: fwd, log: log.With(zap.String("serial_port", cfg.Port)), open: open, retry: 2 * time.Second}
}

// Frames 已转发的请求帧数
func (b *Bridge) Frames() uint64 { return b.frames.Load() }

// ModeFrom 由配置构造串口参数
func ModeFrom(cfg cfgpkg.SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: cfg.BaudRate, DataBits: cfg.DataBits}
	if mode.BaudRate <= 0 {
		mode.BaudRate = 9600
	}
	if mode.DataBits <= 0 {
		mode.DataBits = 8
	}
	switch strings.ToLower(cfg.Parity) {
	case "", "none", "n":
		mode.Parity = serial.NoParity
	case "odd", "o":
		mode.Parity = serial.OddParity
	case "even", "e":
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unknown parity %q", cfg.Parity)
	}
	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", cfg.StopBits)
	}
	return mode, nil
}

// Run 打开串口并转发，出错后按间隔重开，直到 ctx 结束
func (b *Bridge) Run(ctx context.Context) error {
	mode, err := ModeFrom(b.cfg)
	if err != nil {
		return err
	}
	for {
		err := b.runOnce(ctx, mode)
		if ctx.Err() != nil {
			return nil
		}
		b.log.Warn("serial port failed, reopening", zap.Error(err), zap.Duration("retry", b.retry))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.retry):
		}
	}
}

func (b *Bridge) runOnce(ctx context.Context, mode *serial.Mode) error {
	port, err := b.open(b.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", b.cfg.Port, err)
	}
	if err := port.SetReadTimeout(b.cfg.Silence); err != nil {
		_ = port.Close()
		return fmt.Errorf("set read timeout: %w", err)
	}
	b.log.Info("serial port opened", zap.Int("baud", mode.BaudRate))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = port.Close()
		case <-stop:
		}
	}()
	defer port.Close()

	return b.serve(ctx, port)
}

// serve 以线路静默划分 RTU 帧：读超时且缓冲非空即视为一帧结束
func (b *Bridge) serve(ctx context.Context, port Port) error {
	buf := make([]byte, maxRTUFrame)
	frame := make([]byte, 0, maxRTUFrame)
	for {
		n, err := port.Read(buf)
		if err != nil {
			return err
		}
		if n > 0 {
			frame = append(frame, buf[:n]...)
			if len(frame) < maxRTUFrame {
				continue
			}
		}
		if len(frame) == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		req := append([]byte(nil), frame...)
		frame = frame[:0]
		if !rtu.ValidCRC(req) {
			b.log.Debug("drop serial frame with bad crc", zap.Binary("frame", req))
			continue
		}
		b.frames.Add(1)
		resp := b.fwd.Forward(ctx, req)
		if len(resp) == 0 {
			continue
		}
		if _, err := port.Write(resp); err != nil {
			return fmt.Errorf("write serial reply: %w", err)
		}
	}
}
