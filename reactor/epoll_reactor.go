//go:build linux
// +build linux

// File: reactor/epoll_reactor.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll implementation of the Poller. Level-triggered, with an
// eventfd for wakeups. Confined to the selector's owning goroutine except
// for Wake, which any goroutine may call.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const maxEpollEvents = 128

type epollPoller struct {
	epfd   int
	wakeFD int

	epEvents []unix.EpollEvent
	ready    []Event
}

// NewPoller opens an epoll instance with a wakeup eventfd.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	p := &epollPoller{
		epfd:     epfd,
		wakeFD:   wakeFD,
		epEvents: make([]unix.EpollEvent, maxEpollEvents),
		ready:    make([]Event, 0, maxEpollEvents),
	}
	if err := p.Add(wakeFD, OpRead); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func toEpollEvents(ops uint32) uint32 {
	var ev uint32
	if ops&OpRead != 0 {
		ev |= unix.EPOLLIN
	}
	if ops&OpWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) Add(fd int, ops uint32) error {
	ev := unix.EpollEvent{Events: toEpollEvents(ops), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd=%d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Mod(fd int, ops uint32) error {
	ev := unix.EpollEvent{Events: toEpollEvents(ops), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Delete(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd=%d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Wait(timeoutMs int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.epEvents, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return p.ready[:0], nil
		}
		return nil, fmt.Errorf("epoll wait: %w", err)
	}

	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		ev := p.epEvents[i]
		if int(ev.Fd) == p.wakeFD {
			p.drainWake()
			continue
		}
		var ops uint32
		if ev.Events&unix.EPOLLIN != 0 {
			ops |= OpRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			ops |= OpWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			// Surface errors as readable so the read path observes the
			// errno/eof and routes it through the exception policy.
			ops |= OpRead | OpError
		}
		p.ready = append(p.ready, Event{FD: ev.Fd, Ops: ops})
	}
	return p.ready, nil
}

func (p *epollPoller) Wake() error {
	var one [8]byte
	one[0] = 1
	_, err := unix.Write(p.wakeFD, one[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakeFD, buf[:]); err != nil {
			return
		}
	}
}

func (p *epollPoller) Close() error {
	unix.Close(p.wakeFD)
	return unix.Close(p.epfd)
}
