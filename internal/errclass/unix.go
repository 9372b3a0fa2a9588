//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/nop's errclass/unix.go
//

package errclass

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func classifyErrno(errno syscall.Errno) (string, bool) {
	switch errno {
	case unix.ETIMEDOUT:
		return ETIMEDOUT, true
	case unix.ECONNRESET:
		return ECONNRESET, true
	case unix.ECONNREFUSED:
		return ECONNREFUSED, true
	case unix.ECONNABORTED:
		return ECONNABORTED, true
	case unix.EHOSTUNREACH:
		return EHOSTUNREACH, true
	case unix.ENETDOWN:
		return ENETDOWN, true
	case unix.ENETUNREACH:
		return ENETUNREACH, true
	case unix.ENOBUFS:
		return ENOBUFS, true
	case unix.ENOTCONN:
		return ENOTCONN, true
	case unix.EADDRINUSE:
		return EADDRINUSE, true
	case unix.EADDRNOTAVAIL:
		return EADDRNOTAVAIL, true
	case unix.EPROTONOSUPPORT:
		return EPROTONOSUPPORT, true
	case unix.EINVAL:
		return EINVAL, true
	case unix.EINTR:
		return EINTR, true
	default:
		return "", false
	}
}
