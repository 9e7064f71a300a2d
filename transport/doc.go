// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package transport implements the socket runtime: socket contexts and
// sessions, the single-threaded readiness selector, the session prepare
// stage, and the per-session TLS record-layer adapter. All IO and state
// mutation for one selector runs on its owning event runner goroutine.
package transport
