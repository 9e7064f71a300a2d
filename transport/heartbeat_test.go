//go:build linux
// +build linux

// File: transport/heartbeat_test.go
// Author: momentics <momentics@gmail.com>

package transport

import (
	"bytes"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/fake"
	"github.com/momentics/hioload-net/protocol"
)

func TestHeartbeatFilteredBeforeReceive(t *testing.T) {
	_, sel := newTestSelector(t)
	trig := fake.NewRecordingTrigger(16)

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Trigger = trig
	cfg.HeartBeatFactory = func() api.HeartBeat { return protocol.NewHeartBeat("", "") }

	server, err := ListenTCP(cfg, sel)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", server.LocalPort()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A lone ping is consumed: the pong comes back and no payload
	// surfaces on the application channel.
	conn.Write([]byte(protocol.DefaultPing))
	pong := make([]byte, len(protocol.DefaultPong))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := ioReadFull(conn, pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if string(pong) != protocol.DefaultPong {
		t.Fatalf("pong = %q", pong)
	}

	sess := waitSession(t, trig.Accepts, "accept")
	if sess.ReadChannel().Size() != 0 {
		t.Fatalf("control frame leaked to application: %d bytes", sess.ReadChannel().Size())
	}

	// Data after a ping surfaces without the token.
	conn.Write(append([]byte(protocol.DefaultPing), []byte("payload")...))
	waitSize(t, sess, 7, 3*time.Second)
	if got := drain(sess, 0); !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("payload = %q", got)
	}
}
