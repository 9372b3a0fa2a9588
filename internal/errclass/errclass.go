// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/nop's errclass/{unix,windows}.go constants,
// generalized with a classification entrypoint used by radiuscore.ErrClassifier.

// Package errclass classifies network errors into short, OS-independent
// labels so the network thread (spec.md §5, §7) can decide whether a socket
// read/write error is fatal for the socket or merely transient without
// string-matching platform-specific error text.
package errclass

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
)

// Well-known classification labels.
const (
	ETIMEDOUT       = "ETIMEDOUT"
	ECONNRESET      = "ECONNRESET"
	ECONNREFUSED    = "ECONNREFUSED"
	ECONNABORTED    = "ECONNABORTED"
	EHOSTUNREACH    = "EHOSTUNREACH"
	ENETDOWN        = "ENETDOWN"
	ENETUNREACH     = "ENETUNREACH"
	ENOBUFS         = "ENOBUFS"
	ENOTCONN        = "ENOTCONN"
	EADDRINUSE      = "EADDRINUSE"
	EADDRNOTAVAIL   = "EADDRNOTAVAIL"
	EPROTONOSUPPORT = "EPROTONOSUPPORT"
	EINVAL          = "EINVAL"
	EINTR           = "EINTR"
	ECLOSED         = "ECLOSED"
	EGENERIC        = "EGENERIC"
)

// New classifies err into one of the labels above, or the empty string
// for a nil error. Unrecognized errors classify as [EGENERIC].
func New(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ETIMEDOUT
	}
	if errors.Is(err, net.ErrClosed) {
		return ECLOSED
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if label, ok := classifyErrno(errno); ok {
			return label
		}
	}
	return EGENERIC
}

// Fatal reports whether err, observed on a socket read, requires the
// network thread to consider the socket dead (spec.md §4.3's Failure model
// and §7's error kind 7: "Socket error on write: log and continue; on read
// loop, if errno is fatal for the socket, mark dead").
func Fatal(err error) bool {
	switch New(err) {
	case ECONNABORTED, ENOTCONN, ECLOSED, EINVAL:
		return true
	default:
		return false
	}
}
