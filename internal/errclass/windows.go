//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/nop's errclass/windows.go
//

package errclass

import (
	"syscall"

	"golang.org/x/sys/windows"
)

func classifyErrno(errno syscall.Errno) (string, bool) {
	switch errno {
	case syscall.Errno(windows.WSAETIMEDOUT):
		return ETIMEDOUT, true
	case syscall.Errno(windows.WSAECONNRESET):
		return ECONNRESET, true
	case syscall.Errno(windows.WSAECONNREFUSED):
		return ECONNREFUSED, true
	case syscall.Errno(windows.WSAECONNABORTED):
		return ECONNABORTED, true
	case syscall.Errno(windows.WSAEHOSTUNREACH):
		return EHOSTUNREACH, true
	case syscall.Errno(windows.WSAENETDOWN):
		return ENETDOWN, true
	case syscall.Errno(windows.WSAENETUNREACH):
		return ENETUNREACH, true
	case syscall.Errno(windows.WSAENOBUFS):
		return ENOBUFS, true
	case syscall.Errno(windows.WSAENOTCONN):
		return ENOTCONN, true
	case syscall.Errno(windows.WSAEADDRINUSE):
		return EADDRINUSE, true
	case syscall.Errno(windows.WSAEADDRNOTAVAIL):
		return EADDRNOTAVAIL, true
	case syscall.Errno(windows.WSAEPROTONOSUPPORT):
		return EPROTONOSUPPORT, true
	case syscall.Errno(windows.WSAEINVAL):
		return EINVAL, true
	case syscall.Errno(windows.WSAEINTR):
		return EINTR, true
	default:
		return "", false
	}
}
