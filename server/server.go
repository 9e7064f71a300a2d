//go:build linux
// +build linux

// File: server/server.go
// Author: momentics <momentics@gmail.com>
//
// Server facade: bundles an event runner, a socket selector, and one or
// more listening sockets behind a single lifecycle. Applications that do
// not need to compose the pieces themselves start here.

package server

import (
	"sync"

	"github.com/momentics/hioload-net/core/concurrency"
	"github.com/momentics/hioload-net/transport"
)

// Server owns the runtime pieces for one selector loop.
type Server struct {
	mu      sync.Mutex
	runner  *concurrency.EventRunner
	sel     *transport.SocketSelector
	sockets []*transport.SocketContext
}

// NewServer builds the facade with a fresh runner and selector.
func NewServer() (*Server, error) {
	runner := concurrency.NewEventRunner()
	sel, err := transport.NewSocketSelector(runner)
	if err != nil {
		runner.Close()
		return nil, err
	}
	return &Server{runner: runner, sel: sel}, nil
}

// Selector exposes the underlying selector for advanced composition.
func (s *Server) Selector() *transport.SocketSelector { return s.sel }

// Runner exposes the owning event runner.
func (s *Server) Runner() *concurrency.EventRunner { return s.runner }

// ListenTCP opens a TCP server socket on the shared selector.
func (s *Server) ListenTCP(cfg *transport.Config) (*transport.SocketContext, error) {
	ctx, err := transport.ListenTCP(cfg, s.sel)
	if err != nil {
		return nil, err
	}
	s.track(ctx)
	return ctx, nil
}

// ListenUDP opens a UDP server socket on the shared selector.
func (s *Server) ListenUDP(cfg *transport.Config) (*transport.SocketContext, error) {
	ctx, err := transport.ListenUDP(cfg, s.sel)
	if err != nil {
		return nil, err
	}
	s.track(ctx)
	return ctx, nil
}

func (s *Server) track(ctx *transport.SocketContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets = append(s.sockets, ctx)
}

// Shutdown closes every listening socket, the selector, and the runner.
// Idempotent.
func (s *Server) Shutdown() {
	s.mu.Lock()
	sockets := s.sockets
	s.sockets = nil
	s.mu.Unlock()

	for _, ctx := range sockets {
		ctx.Close()
	}
	s.sel.Close()
	s.runner.Close()
}
