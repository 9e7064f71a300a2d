//go:build linux
// +build linux

// File: transport/tcp.go
// Author: momentics <momentics@gmail.com>
//
// TCP socket construction: listening servers and outbound connections.
// Both end up as registered SocketContexts on a selector; accepted
// children are built inside the selector's accept path.

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/reactor"
)

// ListenTCP binds a non-blocking listener and registers it for accepts.
func ListenTCP(cfg *Config, sel *SocketSelector) (*SocketContext, error) {
	cfg.normalize()
	sa, err := resolveInet4(cfg.Host, cfg.Port)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("tcp socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp reuseaddr: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp bind %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp listen: %w", err)
	}
	ctx := &SocketContext{cfg: cfg, kind: KindTCPServer, fd: fd}
	ctx.open.Store(true)
	ctx.localPort = boundPort(fd)
	if err := sel.Register(ctx, reactor.OpRead); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return ctx, nil
}

// DialTCP connects to host:port, builds the session, and registers it for
// reads. With a TLS factory configured, the handshake is kicked off on
// the event runner; completion is observed via the adapter.
func DialTCP(cfg *Config, sel *SocketSelector) (*Session, error) {
	cfg.normalize()
	sa, err := resolveInet4(cfg.Host, cfg.Port)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("tcp socket: %w", err)
	}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp connect %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tcp nonblock: %w", err)
	}
	ctx := &SocketContext{
		cfg:        cfg,
		kind:       KindTCP,
		fd:         fd,
		remote:     sa,
		remoteAddr: sockaddrString(sa),
	}
	ctx.open.Store(true)
	sess := newSession(ctx)
	if err := sel.Register(ctx, reactor.OpRead); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if mgr := cfg.Manager; mgr != nil {
		mgr.Attach(sess)
	}
	if sess.tls != nil {
		// Emit the first handshake flight; the rest is driven by reads.
		_ = sel.runner.AddEvent(func() {
			if _, err := sess.tls.DoHandshake(); err != nil {
				sel.dealException(ctx, err)
			}
		})
		sel.poller.Wake()
	}
	return sess, nil
}

func boundPort(fd int) int {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port
	case *unix.SockaddrInet6:
		return a.Port
	default:
		return 0
	}
}
