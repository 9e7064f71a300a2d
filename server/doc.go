// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package server bundles an event runner, a socket selector, and
// listening sockets behind one lifecycle facade.
package server
