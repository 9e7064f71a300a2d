// File: protocol/heartbeat.go
// Author: momentics <momentics@gmail.com>
//
// Token heartbeat: fixed ping/pong byte strings intercepted at the head
// of the application channel before receive notifications fire. The
// interceptor consumes control tokens so application code never sees
// them; a ping is answered with a pong on the same session.

package protocol

import (
	"bytes"
	"sync/atomic"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/core/buffer"
)

// Default heartbeat tokens.
const (
	DefaultPing = "PING"
	DefaultPong = "PONG"
)

// HeartBeat tracks liveness for one session via ping/pong tokens.
type HeartBeat struct {
	ping []byte
	pong []byte

	failedCount atomic.Int32
	lastPong    atomic.Bool
}

var _ api.HeartBeat = (*HeartBeat)(nil)

// NewHeartBeat builds a tracker with the given tokens; empty strings fall
// back to the defaults.
func NewHeartBeat(ping, pong string) *HeartBeat {
	if ping == "" {
		ping = DefaultPing
	}
	if pong == "" {
		pong = DefaultPong
	}
	return &HeartBeat{ping: []byte(ping), pong: []byte(pong)}
}

// Ping sends one ping token and bumps the failure counter; a later pong
// resets it.
func (h *HeartBeat) Ping(s api.Session) error {
	h.failedCount.Add(1)
	_, err := s.Send(h.ping)
	return err
}

// FailedCount returns pings sent since the last pong.
func (h *HeartBeat) FailedCount() int { return int(h.failedCount.Load()) }

// PongReceived reports whether a pong arrived since the last check,
// clearing the flag.
func (h *HeartBeat) PongReceived() bool { return h.lastPong.Swap(false) }

// InterceptHeartBeat consumes any run of ping/pong tokens at the head of
// the application channel. Pings are answered; pongs clear the failure
// counter. Non-token bytes stop the scan.
func (h *HeartBeat) InterceptHeartBeat(s api.Session, appCh *buffer.ByteChannel) {
	var pings int
	view := appCh.GetByteBuffer()
	if view == nil {
		return
	}
	for {
		head := view.Bytes()
		if len(head) >= len(h.ping) && bytes.Equal(head[:len(h.ping)], h.ping) {
			view.Advance(len(h.ping))
			pings++
			continue
		}
		if len(head) >= len(h.pong) && bytes.Equal(head[:len(h.pong)], h.pong) {
			view.Advance(len(h.pong))
			h.failedCount.Store(0)
			h.lastPong.Store(true)
			continue
		}
		break
	}
	appCh.Compact()
	for ; pings > 0; pings-- {
		// Answer after the view is returned so the send path is free to
		// interleave with the channel.
		_, _ = s.Send(h.pong)
	}
}
