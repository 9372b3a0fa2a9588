// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import "errors"

// Malformed-packet errors (spec.md §7, error kind 1): too short, bad
// length, bad code, or failed HMAC verification. All are silently
// counted and dropped by the transport; none produce a reply.
var (
	ErrTooShort                  = errors.New("wire: packet shorter than header")
	ErrBadLength                 = errors.New("wire: encoded length does not match datagram size")
	ErrMessageAuthenticatorMissing = errors.New("wire: Message-Authenticator required but absent")
	ErrMessageAuthenticatorBad   = errors.New("wire: Message-Authenticator HMAC mismatch")
)
