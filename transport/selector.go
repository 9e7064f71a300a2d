//go:build linux
// +build linux

// File: transport/selector.go
// Author: momentics <momentics@gmail.com>
//
// SocketSelector owns one readiness poller, the set of registered socket
// contexts, and a scratch read buffer reused for every read. All selector
// work (registration, cancellation, reads, bounded writes) executes on
// the selector's event runner goroutine; foreign goroutines submit tasks
// and return.

package transport

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/core/buffer"
	"github.com/momentics/hioload-net/core/concurrency"
	"github.com/momentics/hioload-net/internal/logger"
	"github.com/momentics/hioload-net/reactor"
)

const (
	// selectTimeoutMs is the poll deadline of one event cycle. The poller's
	// minimum granularity is coarse; pairing a short poll with a 1 ms idle
	// yield avoids busy-spin without hurting throughput.
	selectTimeoutMs = 100

	// ScratchBufferSize is the capacity of the per-selector read buffer.
	ScratchBufferSize = 1 << 16
)

// registration pairs a registered descriptor with its interest ops and
// the SocketContext attachment. A cancel nulls ctx before clearing valid
// so readiness iteration never dereferences a freed context.
type registration struct {
	ctx   *SocketContext
	ops   uint32
	valid bool
}

// SocketSelector multiplexes many non-blocking sockets on one goroutine.
type SocketSelector struct {
	runner *concurrency.EventRunner
	poller reactor.Poller

	regs    map[int32]*registration
	scratch *buffer.Buffer

	closed atomic.Bool
}

// NewSocketSelector opens a poller, allocates the scratch buffer, and
// starts the event cycle on the given runner.
func NewSocketSelector(runner *concurrency.EventRunner) (*SocketSelector, error) {
	poller, err := reactor.NewPoller()
	if err != nil {
		return nil, err
	}
	s := &SocketSelector{
		runner:  runner,
		poller:  poller,
		regs:    make(map[int32]*registration),
		scratch: buffer.New(ScratchBufferSize),
	}
	s.addChooseEvent(nil)
	return s, nil
}

// Runner returns the owning event runner.
func (s *SocketSelector) Runner() *concurrency.EventRunner { return s.runner }

// Register installs ctx's descriptor into the poller with the requested
// interest and attaches ctx. Runs on the runner goroutine; callers on
// other goroutines block until the registration task executes.
func (s *SocketSelector) Register(ctx *SocketContext, ops uint32) error {
	if s.runner.InRunner() {
		return s.register0(ctx, ops)
	}
	errCh := make(chan error, 1)
	if err := s.runner.AddEvent(func() { errCh <- s.register0(ctx, ops) }); err != nil {
		return err
	}
	s.poller.Wake()
	return <-errCh
}

func (s *SocketSelector) register0(ctx *SocketContext, ops uint32) error {
	if s.closed.Load() {
		return api.ErrSelectorClosed
	}
	if !ctx.open.Load() {
		return fmt.Errorf("%w: socket %s is closed", api.ErrRegistrationFailed, ctx.remoteAddr)
	}
	if err := s.poller.Add(ctx.fd, ops); err != nil {
		logger.Errorf("register %v to selector error: %v", ctx.fd, err)
		return fmt.Errorf("%w: %v", api.ErrRegistrationFailed, err)
	}
	reg := &registration{ctx: ctx, ops: ops, valid: true}
	s.regs[int32(ctx.fd)] = reg
	ctx.selector = s
	ctx.reg = reg
	if ctx.session != nil {
		ctx.session.reg = reg
	}
	return nil
}

// Unregister enqueues a cancellation: the attachment is nulled before the
// registration goes invalid, then the descriptor leaves the poller on the
// next runner tick. May be called from any goroutine.
func (s *SocketSelector) Unregister(ctx *SocketContext) {
	fd := int32(ctx.fd)
	expected := ctx.reg
	if expected == nil {
		return
	}
	if err := s.runner.AddEvent(func() {
		expected.ctx = nil
		expected.valid = false
		if s.regs[fd] != expected {
			// The descriptor was recycled by a newer registration.
			return
		}
		delete(s.regs, fd)
		if err := s.poller.Delete(int(fd)); err != nil {
			logger.Debugf("unregister fd=%d: %v", fd, err)
		}
	}); err == nil {
		s.poller.Wake()
	}
}

// addChooseEvent enqueues one event cycle, optionally preceded by a
// supplier whose false/panic outcome suppresses that cycle.
func (s *SocketSelector) addChooseEvent(supplier func() bool) {
	if s.closed.Load() {
		return
	}
	_ = s.runner.AddEvent(func() {
		result := true
		if supplier != nil {
			result = s.runSupplier(supplier)
		}
		if result {
			s.eventChoose()
		}
	})
}

func (s *SocketSelector) runSupplier(supplier func() bool) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("choose event supplier error: %v", r)
			result = false
		}
	}()
	return supplier()
}

// eventChoose runs one selector iteration: poll with a short deadline,
// dispatch ready keys in enumeration order, then unconditionally
// re-enqueue the next cycle. Per-key errors never stop the loop.
func (s *SocketSelector) eventChoose() {
	if !s.runner.InRunner() {
		s.addChooseEvent(nil)
		return
	}
	if s.closed.Load() {
		return
	}
	defer s.addChooseEvent(nil)

	ready, err := s.poller.Wait(selectTimeoutMs)
	if err != nil {
		logger.Errorf("selector poll error: %v", err)
		return
	}
	if len(ready) == 0 {
		// Give the OS room to settle descriptor state between polls.
		time.Sleep(time.Millisecond)
		return
	}

	for _, ev := range ready {
		reg, ok := s.regs[ev.FD]
		if !ok {
			continue
		}
		if !reg.valid || reg.ctx == nil {
			delete(s.regs, ev.FD)
			if err := s.poller.Delete(int(ev.FD)); err != nil {
				logger.Debugf("cancel stale fd=%d: %v", ev.FD, err)
			}
			continue
		}
		ctx := reg.ctx
		switch ctx.kind {
		case KindTCPServer:
			s.tcpAccept(ctx)
		case KindTCP:
			s.tcpReadFromChannel(ctx)
		case KindUDP, KindUDPServer:
			s.udpReadFromChannel(ctx)
		}
	}
}

// Close releases the scratch buffer and shuts the poller down. The
// in-flight cycle observes the closed flag and stops re-enqueueing.
func (s *SocketSelector) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.poller.Wake()
	done := make(chan struct{})
	if err := s.runner.AddEvent(func() {
		s.scratch.Release()
		if err := s.poller.Close(); err != nil {
			logger.Errorf("close selector error: %v", err)
		}
		close(done)
	}); err != nil {
		s.scratch.Release()
		_ = s.poller.Close()
		return
	}
	<-done
}

// ReadFromChannel performs one non-blocking read dispatch for ctx.
// Caller must be on the runner goroutine.
func (s *SocketSelector) ReadFromChannel(ctx *SocketContext) int {
	switch ctx.kind {
	case KindTCP:
		return s.tcpReadFromChannel(ctx)
	case KindUDP, KindUDPServer:
		return s.udpReadFromChannel(ctx)
	default:
		return -1
	}
}

// WriteToChannel performs a bounded write of buf's readable bytes.
// Returns total bytes sent or -1 on timeout/broken connection. Caller
// must be on the runner goroutine.
func (s *SocketSelector) WriteToChannel(ctx *SocketContext, buf *buffer.Buffer) int {
	switch ctx.kind {
	case KindTCP:
		return s.tcpWriteToChannel(ctx, buf)
	case KindUDP:
		return s.udpWriteToChannel(ctx, buf)
	default:
		return -1
	}
}

// tcpAccept accepts one child connection and fires the accept
// notification. Errors are reported via dealException and do not close
// the server socket.
func (s *SocketSelector) tcpAccept(server *SocketContext) {
	nfd, sa, err := unix.Accept4(server.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		s.dealException(server, fmt.Errorf("accept: %w", err))
		return
	}
	child := &SocketContext{
		cfg:        server.cfg,
		kind:       KindTCP,
		fd:         nfd,
		remote:     sa,
		remoteAddr: sockaddrString(sa),
	}
	child.open.Store(true)
	sess := newSession(child)
	if err := s.register0(child, reactor.OpRead); err != nil {
		logger.Errorf("register accepted socket error: %v", err)
		unix.Close(nfd)
		return
	}
	if mgr := server.cfg.Manager; mgr != nil {
		mgr.Attach(sess)
	}
	s.fireAccept(sess)
}

// tcpReadFromChannel reads into the scratch buffer and hands the bytes to
// the prepare stage. Returns bytes read or -1 on end-of-stream/error.
func (s *SocketSelector) tcpReadFromChannel(ctx *SocketContext) int {
	n, err := unix.Read(ctx.fd, s.scratch.WritableBytes())
	if err != nil {
		if err == unix.EAGAIN {
			return 0
		}
		return s.dealException(ctx, fmt.Errorf("read: %w", err))
	}
	if n > 0 {
		s.scratch.Advance(n)
	} else {
		// A readable stream socket returning zero bytes is end-of-stream.
		n = -1
	}
	readSize, perr := s.prepare(ctx.session, n)
	if perr != nil {
		return s.dealException(ctx, perr)
	}
	return readSize
}

// tcpWriteToChannel loops non-blocking writes until the buffer drains,
// the session disconnects, or no progress is made for the send timeout.
// Progress resets the deadline.
func (s *SocketSelector) tcpWriteToChannel(ctx *SocketContext, buf *buffer.Buffer) int {
	if buf == nil {
		return 0
	}
	total := 0
	start := time.Now()
	for ctx.IsConnected() && buf.HasRemaining() {
		n, err := unix.Write(ctx.fd, buf.Bytes())
		if err != nil {
			if err == unix.EAGAIN {
				n = 0
			} else {
				return s.dealException(ctx, fmt.Errorf("write: %w", err))
			}
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			if time.Since(start) >= ctx.cfg.SendTimeout {
				logger.Errorf("selector write timeout to %s: %v", ctx.remoteAddr, api.ErrWriteTimeout)
				ctx.Close()
				return -1
			}
		} else {
			start = time.Now()
			buf.Advance(n)
			total += n
		}
	}
	return total
}

// udpAccept resolves the session for a datagram's source address,
// creating an implicit child session on first sight.
func (s *SocketSelector) udpAccept(server *SocketContext, sa unix.Sockaddr) *Session {
	addr := sockaddrString(sa)
	if sess := server.child(addr); sess != nil {
		return sess
	}
	child := &SocketContext{
		cfg:        server.cfg,
		kind:       KindUDP,
		fd:         server.fd,
		sharedFD:   true,
		remote:     sa,
		remoteAddr: addr,
		parent:     server,
	}
	child.open.Store(true)
	child.selector = s
	sess := newSession(child)
	server.addChild(addr, sess)
	if mgr := server.cfg.Manager; mgr != nil {
		mgr.Attach(sess)
	}
	s.fireAccept(sess)
	return sess
}

// udpReadFromChannel reads one datagram. A connected socket reads without
// an address; an unconnected one receives the sender address and routes
// to (or creates) the implicit per-address session.
func (s *SocketSelector) udpReadFromChannel(ctx *SocketContext) int {
	var (
		n    int
		err  error
		sess = ctx.session
	)
	if ctx.connectedSock {
		n, err = unix.Read(ctx.fd, s.scratch.WritableBytes())
	} else {
		var sa unix.Sockaddr
		n, sa, err = unix.Recvfrom(ctx.fd, s.scratch.WritableBytes(), 0)
		if err == nil {
			sess = s.udpAccept(ctx, sa)
		}
	}
	if err != nil {
		if err == unix.EAGAIN {
			return 0
		}
		return s.dealException(ctx, fmt.Errorf("receive: %w", err))
	}
	s.scratch.Advance(n)
	readSize, perr := s.prepare(sess, n)
	if perr != nil {
		return s.dealException(ctx, perr)
	}
	return readSize
}

// udpWriteToChannel mirrors the TCP bounded write loop, choosing send-to
// for unconnected sockets and write for connected ones.
func (s *SocketSelector) udpWriteToChannel(ctx *SocketContext, buf *buffer.Buffer) int {
	if buf == nil {
		return 0
	}
	total := 0
	start := time.Now()
	for ctx.IsConnected() && buf.HasRemaining() {
		var (
			n   int
			err error
		)
		if ctx.connectedSock {
			n, err = unix.Write(ctx.fd, buf.Bytes())
		} else {
			err = unix.Sendto(ctx.fd, buf.Bytes(), 0, ctx.remote)
			if err == nil {
				n = buf.Remaining()
			}
		}
		if err != nil {
			if err == unix.EAGAIN {
				n = 0
			} else {
				return s.dealException(ctx, fmt.Errorf("send: %w", err))
			}
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			if time.Since(start) >= ctx.cfg.SendTimeout {
				logger.Errorf("selector datagram write timeout to %s, socket will be closed", ctx.remoteAddr)
				ctx.Close()
				return -1
			}
		} else {
			start = time.Now()
			buf.Advance(n)
			total += n
		}
	}
	return total
}

// dealException classifies an IO error: peer disconnects close the
// session silently; anything else fires the application exception hook.
func (s *SocketSelector) dealException(ctx *SocketContext, err error) int {
	if isDisconnectError(err) {
		// A failed accept never takes the listening socket down.
		if ctx.kind != KindTCPServer {
			ctx.Close()
		}
		return -1
	}
	if sess := ctx.session; sess != nil {
		s.fireException(sess, err)
	} else {
		logger.Errorf("selector error on %s: %v", ctx.remoteAddr, err)
	}
	return -1
}

// isDisconnectError matches errno first, message text second; the text
// match is a fallback for wrapped errors that lost their errno.
func isDisconnectError(err error) bool {
	if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.ECONNABORTED) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}

func (s *SocketSelector) fireAccept(sess *Session) {
	if trig := sess.ctx.cfg.Trigger; trig != nil {
		trig.FireAccept(sess)
	}
}

func (s *SocketSelector) fireReceive(sess *Session) {
	if trig := sess.ctx.cfg.Trigger; trig != nil {
		trig.FireReceive(sess)
	}
}

func (s *SocketSelector) fireException(sess *Session, err error) {
	if trig := sess.ctx.cfg.Trigger; trig != nil {
		trig.FireException(sess, err)
	} else {
		logger.Errorf("unhandled selector exception on %s: %v", sess.RemoteAddress(), err)
	}
}
