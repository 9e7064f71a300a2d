//go:build linux
// +build linux

// File: transport/prepare.go
// Author: momentics <momentics@gmail.com>
//
// The prepare stage routes the scratch buffer's bytes to a session's
// application channel: end-of-stream detection, best-effort backpressure,
// TLS handshake feeding or record unwrapping, heartbeat filtering, and
// the receive notification.

package transport

import (
	"time"

	"github.com/momentics/hioload-net/internal/logger"
)

// prepare consumes (session, readSize) after a read into the scratch
// buffer. Returns readSize, or -1 after closing a session whose stream
// ended. The scratch buffer is cleared before returning.
func (s *SocketSelector) prepare(session *Session, readSize int) (int, error) {
	if session == nil {
		s.scratch.Clear()
		return -1, nil
	}
	appCh := session.readChannel

	if session.splitter.IsStreamEnd(s.scratch.WrittenBytes(), readSize) || !session.IsConnected() {
		session.setStopType(StopTypeStreamEnd)
		session.Close()
		s.scratch.Clear()
		return -1, nil
	}

	s.scratch.Flip()

	if readSize > 0 {
		// Wait while an append would reach the watermark. Best-effort: a
		// timed-out wait logs and proceeds, data is never dropped.
		limit := s.scratch.Limit()
		if !waitFor(session.ctx.cfg.ReadTimeout, func() bool {
			return appCh.Size()+limit < appCh.MaxSize()
		}) {
			logger.Warnf("session %s application channel is saturated, proceeding after %v",
				session.RemoteAddress(), session.ctx.cfg.ReadTimeout)
		}

		switch {
		case session.tls != nil && !session.tls.HandshakeDone():
			if _, err := session.tls.encryptedChannel.WriteEnd(s.scratch); err == nil {
				if _, err := session.tls.DoHandshake(); err != nil {
					s.scratch.Clear()
					return -1, err
				}
				// Application records that rode in with the final
				// handshake flight are pumped right away instead of
				// waiting for the next read.
				if session.tls.HandshakeDone() && session.tls.encryptedChannel.Size() > 0 {
					if _, err := session.tls.UnwrapChannel(session, session.tls.encryptedChannel, appCh); err != nil {
						s.scratch.Clear()
						return -1, err
					}
				}
			}
		case session.tls != nil:
			if _, err := session.tls.encryptedChannel.WriteEnd(s.scratch); err == nil {
				if _, err := session.tls.UnwrapChannel(session, session.tls.encryptedChannel, appCh); err != nil {
					s.scratch.Clear()
					return -1, err
				}
			}
		default:
			if _, err := appCh.WriteEnd(s.scratch); err != nil {
				s.scratch.Clear()
				return -1, err
			}
		}

		if session.heartBeat != nil {
			session.heartBeat.InterceptHeartBeat(session, appCh)
		}

		if appCh.Size() > 0 {
			s.fireReceive(session)
		}

		s.scratch.Clear()
	} else {
		s.scratch.Clear()
	}

	return readSize, nil
}

// waitFor polls pred once per millisecond until it holds or the timeout
// elapses. Returns whether pred held.
func waitFor(timeout time.Duration, pred func() bool) bool {
	deadline := time.Now().Add(timeout)
	for !pred() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}
