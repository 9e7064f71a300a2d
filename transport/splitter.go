//go:build linux
// +build linux

// File: transport/splitter.go
// Author: momentics <momentics@gmail.com>

package transport

import "github.com/momentics/hioload-net/api"

// TransferSplitter is the stock MessageSplitter: a negative read is the
// only stream-end marker and payloads are never fragmented.
type TransferSplitter struct{}

var _ api.MessageSplitter = TransferSplitter{}

// IsStreamEnd reports end-of-stream for a negative read result.
func (TransferSplitter) IsStreamEnd(data []byte, n int) bool {
	return n < 0
}
