//go:build linux
// +build linux

// File: transport/tls_adapter_test.go
// Author: momentics <momentics@gmail.com>
//
// TLS adapter tests against the scripted fake engine: handshake driving
// across fragmented reads, release/unwrap races, and record round-trips.

package transport

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/core/buffer"
	"github.com/momentics/hioload-net/fake"
	"github.com/momentics/hioload-net/reactor"
)

// tlsServer starts a TLS-enabled TCP server and returns it with the
// engines it built, in construction order.
func tlsServer(t *testing.T, sel *SocketSelector, trig api.EventTrigger) (*SocketContext, func() []*fake.Engine) {
	t.Helper()
	var mu sync.Mutex
	var engines []*fake.Engine

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Trigger = trig
	cfg.ReadTimeout = 2 * time.Second
	cfg.TlsFactory = func() api.TlsEngine {
		e := fake.NewServerEngine()
		mu.Lock()
		engines = append(engines, e)
		mu.Unlock()
		return e
	}

	server, err := ListenTCP(cfg, sel)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, func() []*fake.Engine {
		mu.Lock()
		defer mu.Unlock()
		return append([]*fake.Engine(nil), engines...)
	}
}

func TestTlsHandshakeAcrossFragmentedReads(t *testing.T) {
	_, sel := newTestSelector(t)
	trig := fake.NewRecordingTrigger(16)
	server, engines := tlsServer(t, sel, trig)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", server.LocalPort()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Deliver the client hello in two fragments so the adapter must
	// yield on the partial record and resume on the next read.
	hello := []byte(fake.HelloToken)
	conn.Write(hello[:5])
	time.Sleep(100 * time.Millisecond)
	conn.Write(hello[5:])

	// The server flight proves NEED_WRAP ran and was flushed.
	flight := make([]byte, len(fake.FlightToken))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := ioReadFull(conn, flight); err != nil {
		t.Fatalf("read flight: %v", err)
	}
	if string(flight) != fake.FlightToken {
		t.Fatalf("flight = %q", flight)
	}

	sess := waitSession(t, trig.Accepts, "accept")
	deadline := time.Now().Add(3 * time.Second)
	for !sess.TlsAdapter().HandshakeDone() {
		if time.Now().After(deadline) {
			t.Fatal("handshake did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := engines()
	if len(got) != 1 {
		t.Fatalf("engines = %d", len(got))
	}
	if _, unwraps := got[0].Counters(); unwraps > handshakeMaxIterations {
		t.Fatalf("handshake took %d unwraps", unwraps)
	}
	if sess.TlsAdapter().State() != StateReady {
		t.Fatalf("adapter state = %d", sess.TlsAdapter().State())
	}
}

func TestTlsRoundTrip(t *testing.T) {
	_, sel := newTestSelector(t)
	trig := fake.NewRecordingTrigger(16)
	server, _ := tlsServer(t, sel, trig)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", server.LocalPort()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte(fake.HelloToken))
	flight := make([]byte, len(fake.FlightToken))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := ioReadFull(conn, flight); err != nil {
		t.Fatalf("read flight: %v", err)
	}

	sess := waitSession(t, trig.Accepts, "accept")
	deadline := time.Now().Add(3 * time.Second)
	for !sess.TlsAdapter().HandshakeDone() {
		if time.Now().After(deadline) {
			t.Fatal("handshake did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Client-to-server: ciphertext decrypts into the app channel.
	conn.Write(fake.EncodeRecord([]byte("client secret")))
	waitSize(t, sess, 13, 3*time.Second)
	if got := drain(sess, 0); !bytes.Equal(got, []byte("client secret")) {
		t.Fatalf("decrypted = %q", got)
	}

	// Server-to-client: Send wraps and the peer decodes the records.
	if n, err := sess.Send([]byte("server secret")); err != nil || n != 13 {
		t.Fatalf("send: n=%d err=%v", n, err)
	}
	raw := make([]byte, 0, 64)
	tmp := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		n, err := conn.Read(tmp)
		raw = append(raw, tmp[:n]...)
		if plain, _ := fake.DecodeRecords(raw); bytes.Equal(plain, []byte("server secret")) {
			break
		}
		if err != nil {
			t.Fatalf("client read: %v (raw %d bytes)", err, len(raw))
		}
	}
}

// testAdapterOverPair wires an adapter to a session backed by one end of
// a unix socketpair, registered with a live selector.
func testAdapterOverPair(t *testing.T, engine api.TlsEngine) (*Session, int) {
	t.Helper()
	_, sel := newTestSelector(t)
	fds := pairFDs(t)

	cfg := DefaultConfig()
	cfg.ReadTimeout = 500 * time.Millisecond
	cfg.Splitter = TransferSplitter{}
	ctx := &SocketContext{cfg: cfg, kind: KindTCP, fd: fds[0], remoteAddr: "pair"}
	ctx.open.Store(true)
	sess := newSession(ctx)
	sess.tls = NewTlsAdapter(engine, sess)
	if err := sel.Register(ctx, reactor.OpRead); err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(func() { ctx.Close() })
	return sess, fds[1]
}

func pairFDs(t *testing.T) [2]int {
	t.Helper()
	fds, err := socketpairNonblock()
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() { closeFD(fds[1]) })
	return fds
}

func TestTlsAdapterReleaseThenUnwrapReturnsNil(t *testing.T) {
	sess, _ := testAdapterOverPair(t, fake.NewServerEngine())
	a := sess.TlsAdapter()

	a.Release()
	a.Release()

	res, err := a.UnwrapData(buffer.Wrap([]byte("junk")), a.appData)
	if res != nil || err != nil {
		t.Fatalf("unwrap after release: res=%v err=%v", res, err)
	}
	res, err = a.WrapData(buffer.Wrap([]byte("junk")))
	if res != nil || err != nil {
		t.Fatalf("wrap after release: res=%v err=%v", res, err)
	}
	if a.State() != StateClosed {
		t.Fatalf("state = %d", a.State())
	}
}

func TestTlsHandshakeDoneMonotonic(t *testing.T) {
	sess, peer := testAdapterOverPair(t, fake.NewServerEngine())
	a := sess.TlsAdapter()

	if a.HandshakeDone() {
		t.Fatal("fresh adapter reports handshake done")
	}
	if _, err := a.EncryptedChannel().WriteBytes([]byte(fake.HelloToken)); err != nil {
		t.Fatalf("feed hello: %v", err)
	}
	done, err := a.DoHandshake()
	if err != nil || !done {
		t.Fatalf("handshake: done=%v err=%v", done, err)
	}
	if !a.HandshakeDone() {
		t.Fatal("handshake done flag not set")
	}

	// Redriving is a no-op: the flag never reverts.
	for i := 0; i < 3; i++ {
		done, err = a.DoHandshake()
		if err != nil || !done {
			t.Fatalf("redrive %d: done=%v err=%v", i, done, err)
		}
	}

	// The flight token must have hit the wire exactly once.
	buf := make([]byte, 64)
	n := readWithRetry(t, peer, buf)
	if string(buf[:n]) != fake.FlightToken {
		t.Fatalf("peer saw %q", buf[:n])
	}
}

func TestWrapDataSplitsLargePayloadAcrossRecords(t *testing.T) {
	sess, peer := testAdapterOverPair(t, fake.NewServerEngine())
	a := sess.TlsAdapter()

	a.EncryptedChannel().WriteBytes([]byte(fake.HelloToken))
	if done, err := a.DoHandshake(); err != nil || !done {
		t.Fatalf("handshake: done=%v err=%v", done, err)
	}
	// Drop the flight from the pair.
	junk := make([]byte, 64)
	readWithRetry(t, peer, junk)

	payload := bytes.Repeat([]byte("x"), 5000)
	res, err := a.WrapData(buffer.Wrap(payload))
	if err != nil || res == nil || res.Status != api.EngineOK {
		t.Fatalf("wrap: res=%v err=%v", res, err)
	}

	raw := make([]byte, 0, 8192)
	tmp := make([]byte, 4096)
	deadline := time.Now().Add(3 * time.Second)
	for {
		n, rerr := readFD(peer, tmp)
		if n > 0 {
			raw = append(raw, tmp[:n]...)
		}
		plain, _ := fake.DecodeRecords(raw)
		if len(plain) == len(payload) {
			if !bytes.Equal(plain, payload) {
				t.Fatal("payload corrupted across records")
			}
			break
		}
		if rerr != nil && !isAgain(rerr) {
			t.Fatalf("peer read: %v", rerr)
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d bytes arrived", len(plain), len(payload))
		}
		time.Sleep(time.Millisecond)
	}
}

func readWithRetry(t *testing.T, fd int, p []byte) int {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		n, err := readFD(fd, p)
		if n > 0 {
			return n
		}
		if err != nil && !isAgain(err) {
			t.Fatalf("read fd: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("peer read timed out")
		}
		time.Sleep(time.Millisecond)
	}
}
