//go:build linux
// +build linux

// File: transport/udp.go
// Author: momentics <momentics@gmail.com>
//
// UDP socket construction. A server socket receives from any peer and
// spawns implicit per-address child sessions; a dialed socket is
// connect()ed so reads and writes carry no address.

package transport

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/reactor"
)

// ListenUDP binds a non-blocking datagram socket and registers it. Child
// sessions appear on first sight of each remote address.
func ListenUDP(cfg *Config, sel *SocketSelector) (*SocketContext, error) {
	cfg.normalize()
	sa, err := resolveInet4(cfg.Host, cfg.Port)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("udp socket: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("udp bind %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	ctx := &SocketContext{cfg: cfg, kind: KindUDPServer, fd: fd}
	ctx.open.Store(true)
	ctx.localPort = boundPort(fd)
	if err := sel.Register(ctx, reactor.OpRead); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return ctx, nil
}

// DialUDP connects a datagram socket to host:port and registers its
// session for reads.
func DialUDP(cfg *Config, sel *SocketSelector) (*Session, error) {
	cfg.normalize()
	sa, err := resolveInet4(cfg.Host, cfg.Port)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("udp socket: %w", err)
	}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("udp connect %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	ctx := &SocketContext{
		cfg:           cfg,
		kind:          KindUDP,
		fd:            fd,
		connectedSock: true,
		remote:        sa,
		remoteAddr:    sockaddrString(sa),
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
	return sess, nil
}
