//go:build linux
// +build linux

// File: server/server_test.go
// Author: momentics <momentics@gmail.com>

package server

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-net/fake"
	"github.com/momentics/hioload-net/transport"
)

func TestServerLifecycle(t *testing.T) {
	srv, err := NewServer()
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	trig := fake.NewRecordingTrigger(4)
	cfg := transport.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Trigger = trig

	ctx, err := srv.ListenTCP(cfg)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", ctx.LocalPort()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-trig.Accepts:
	case <-time.After(3 * time.Second):
		t.Fatal("no accept through the facade")
	}

	srv.Shutdown()
	srv.Shutdown()

	if _, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", ctx.LocalPort()), 300*time.Millisecond); err == nil {
		t.Fatal("listener still accepting after shutdown")
	}
}
