//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub for platforms without a poller implementation.

package reactor

import "github.com/momentics/hioload-net/api"

// NewPoller reports the platform as unsupported.
func NewPoller() (Poller, error) {
	return nil, api.ErrNotSupported
}
