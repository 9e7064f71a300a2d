//go:build linux
// +build linux

// File: transport/config.go
// Author: momentics <momentics@gmail.com>

package transport

import (
	"time"

	"github.com/momentics/hioload-net/api"
)

// Default tuning values.
const (
	DefaultReadTimeout       = 3 * time.Second
	DefaultSendTimeout       = 3 * time.Second
	DefaultAppChannelMaxSize = 1 << 20
)

// Config carries per-socket settings and collaborator hooks. One Config
// may be shared by a server socket and all its accepted children.
type Config struct {
	Host string
	Port int

	// ReadTimeout bounds handshake steps and backpressure waits.
	ReadTimeout time.Duration

	// SendTimeout bounds a contiguous write loop making no progress.
	SendTimeout time.Duration

	// AppChannelMaxSize is the application channel backpressure watermark.
	AppChannelMaxSize int

	// TlsFactory, when set, attaches a TLS adapter to every session.
	TlsFactory api.TlsEngineFactory

	// Splitter owns stream framing; defaults to TransferSplitter.
	Splitter api.MessageSplitter

	// HeartBeatFactory, when set, attaches a heartbeat tracker per session.
	HeartBeatFactory func() api.HeartBeat

	// Trigger receives accept/receive/exception notifications.
	Trigger api.EventTrigger

	// Manager observes session attach/detach. Optional.
	Manager api.SessionManager
}

// DefaultConfig returns a Config with standard timeouts and capacity.
func DefaultConfig() *Config {
	return &Config{
		ReadTimeout:       DefaultReadTimeout,
		SendTimeout:       DefaultSendTimeout,
		AppChannelMaxSize: DefaultAppChannelMaxSize,
	}
}

func (c *Config) normalize() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.AppChannelMaxSize <= 0 {
		c.AppChannelMaxSize = DefaultAppChannelMaxSize
	}
	if c.Splitter == nil {
		c.Splitter = TransferSplitter{}
	}
}
