//go:build linux
// +build linux

// File: transport/pair_test.go
// Author: momentics <momentics@gmail.com>
//
// Raw-fd helpers shared by the transport tests.

package transport

import "golang.org/x/sys/unix"

func socketpairNonblock() ([2]int, error) {
	return unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
}

func closeFD(fd int) {
	unix.Close(fd)
}

func readFD(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

func isAgain(err error) bool {
	return err == unix.EAGAIN
}
