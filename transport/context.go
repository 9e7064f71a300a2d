//go:build linux
// +build linux

// File: transport/context.go
// Author: momentics <momentics@gmail.com>
//
// SocketContext binds a file descriptor to its configuration, kind, and
// session. It is the attachment hung off a selector registration; the
// registration nulls it before going invalid so readiness iteration never
// touches a freed context.

package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// SocketKind discriminates dispatch in the selector event cycle.
type SocketKind int

const (
	KindTCP SocketKind = iota
	KindTCPServer
	KindUDP
	KindUDPServer
)

// SocketContext is the per-socket configuration and addressing record.
type SocketContext struct {
	cfg  *Config
	kind SocketKind

	fd int
	// sharedFD marks UDP child contexts that borrow the server socket:
	// closing the session must not close or unregister the shared fd.
	sharedFD bool
	// connectedSock is true when a datagram socket is connect()ed, so
	// reads carry no sender address and writes need no destination.
	connectedSock bool

	remote     unix.Sockaddr
	remoteAddr string
	localPort  int

	session  *Session
	selector *SocketSelector
	// reg is this context's live registration; compared by identity on
	// cancellation so a recycled descriptor never cancels a newer owner.
	reg *registration
	// parent is the owning server context for implicit UDP children.
	parent *SocketContext

	open      atomic.Bool
	closeOnce sync.Once

	// children maps remote address to implicitly accepted UDP sessions.
	childMu  sync.Mutex
	children map[string]*Session
}

// FD returns the underlying descriptor.
func (c *SocketContext) FD() int { return c.fd }

// Kind returns the socket kind.
func (c *SocketContext) Kind() SocketKind { return c.kind }

// Config returns the socket configuration.
func (c *SocketContext) Config() *Config { return c.cfg }

// Session returns the attached session, nil for server sockets.
func (c *SocketContext) Session() *Session { return c.session }

// IsConnected reports whether the socket is open and usable.
func (c *SocketContext) IsConnected() bool { return c.open.Load() }

// LocalPort returns the bound local port (after listen/bind).
func (c *SocketContext) LocalPort() int { return c.localPort }

// RemoteAddress returns the peer address in host:port form.
func (c *SocketContext) RemoteAddress() string { return c.remoteAddr }

// Close tears the socket down: marks it disconnected, releases session
// resources, cancels the registration, and closes the descriptor.
// Idempotent; safe from any goroutine.
func (c *SocketContext) Close() error {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		if c.session != nil {
			c.session.release()
		}
		c.childMu.Lock()
		children := c.children
		c.children = nil
		c.childMu.Unlock()
		for _, child := range children {
			child.Close()
		}
		if c.selector != nil && !c.sharedFD {
			c.selector.Unregister(c)
		}
		if !c.sharedFD {
			unix.Close(c.fd)
		}
	})
	return nil
}

func (c *SocketContext) child(addr string) *Session {
	c.childMu.Lock()
	defer c.childMu.Unlock()
	if c.children == nil {
		return nil
	}
	return c.children[addr]
}

func (c *SocketContext) addChild(addr string, s *Session) {
	c.childMu.Lock()
	defer c.childMu.Unlock()
	if c.children == nil {
		c.children = make(map[string]*Session)
	}
	c.children[addr] = s
}

func (c *SocketContext) removeChild(addr string) {
	c.childMu.Lock()
	defer c.childMu.Unlock()
	delete(c.children, addr)
}

// sockaddrString renders a unix.Sockaddr as host:port.
func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), fmt.Sprintf("%d", a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), fmt.Sprintf("%d", a.Port))
	default:
		return ""
	}
}

// resolveInet4 turns host/port into a 4-byte sockaddr. Empty host binds
// the wildcard address.
func resolveInet4(host string, port int) (*unix.SockaddrInet4, error) {
	sa := &unix.SockaddrInet4{Port: port}
	if host == "" {
		return sa, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		addrs, err := net.LookupIP(host)
		if err != nil || len(addrs) == 0 {
			return nil, fmt.Errorf("resolve %q: %w", host, err)
		}
		ip = addrs[0]
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("address %q is not IPv4", host)
	}
	copy(sa.Addr[:], v4)
	return sa, nil
}
