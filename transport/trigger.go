//go:build linux
// +build linux

// File: transport/trigger.go
// Author: momentics <momentics@gmail.com>

package transport

import "github.com/momentics/hioload-net/api"

// HandlerTrigger adapts plain callbacks to the EventTrigger contract.
// Nil callbacks are skipped. Callbacks run on the event runner goroutine
// and must not block.
type HandlerTrigger struct {
	OnAccept    func(s api.Session)
	OnReceive   func(s api.Session)
	OnException func(s api.Session, err error)
}

var _ api.EventTrigger = (*HandlerTrigger)(nil)

// FireAccept invokes the accept callback.
func (t *HandlerTrigger) FireAccept(s api.Session) {
	if t.OnAccept != nil {
		t.OnAccept(s)
	}
}

// FireReceive invokes the receive callback.
func (t *HandlerTrigger) FireReceive(s api.Session) {
	if t.OnReceive != nil {
		t.OnReceive(s)
	}
}

// FireException invokes the exception callback.
func (t *HandlerTrigger) FireException(s api.Session, err error) {
	if t.OnException != nil {
		t.OnException(s, err)
	}
}
