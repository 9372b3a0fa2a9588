// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"crypto/hmac"
	"crypto/md5"

	"layeh.com/radius"
)

// messageAuthenticatorType is RFC 2869's Message-Authenticator attribute
// type (80), an HMAC-MD5 over the whole packet keyed by the shared secret
// with the attribute's own value zeroed out during computation.
const messageAuthenticatorType = 80

// LayehCodec implements [Codec] on top of layeh.com/radius, which owns
// attribute dictionary lookup and packet framing. This is the core's one
// dependency on a concrete RADIUS attribute library; everything above
// internal/wire treats [Packet.Decoded] as opaque.
type LayehCodec struct{}

var _ Codec = LayehCodec{}

// Decode implements [Codec].
func (LayehCodec) Decode(data []byte, secret []byte, requireMessageAuthenticator bool) (*Packet, error) {
	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if requireMessageAuthenticator {
		if err := verifyMessageAuthenticator(data, secret); err != nil {
			return nil, err
		}
	}
	decoded, err := radius.Parse(data, secret)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Packet{Header: hdr, Raw: raw, Decoded: decoded}, nil
}

// Encode implements [Codec]. attrs is a pre-encoded attribute TLV stream
// (produced by the caller via the dictionary layer, out of scope here);
// it is appended verbatim after the 20-byte header, and the response
// authenticator is computed as MD5(code || id || length || request
// authenticator || attrs || secret), per RFC 2865 §3.
func (LayehCodec) Encode(code Code, identifier byte, requestAuthenticator [16]byte, secret []byte, attrs []byte) ([]byte, error) {
	length := HeaderSize + len(attrs)
	out := make([]byte, length)
	out[0] = byte(code)
	out[1] = identifier
	out[2] = byte(length >> 8)
	out[3] = byte(length)
	copy(out[4:20], requestAuthenticator[:])
	copy(out[20:], attrs)

	h := md5.New()
	h.Write(out[:4])
	h.Write(requestAuthenticator[:])
	h.Write(attrs)
	h.Write(secret)
	sum := h.Sum(nil)
	copy(out[4:20], sum)
	return out, nil
}

// verifyMessageAuthenticator scans the TLV attribute stream for a
// Message-Authenticator (type 80) attribute and checks its HMAC-MD5 over
// the packet, computed with the attribute's own 16 bytes zeroed, matches.
func verifyMessageAuthenticator(data []byte, secret []byte) error {
	body := data[HeaderSize:]
	offset := -1
	var value [16]byte
	for i := 0; i+2 <= len(body); {
		attrType := body[i]
		attrLen := int(body[i+1])
		if attrLen < 2 || i+attrLen > len(body) {
			return ErrTooShort
		}
		if attrType == messageAuthenticatorType {
			if attrLen != 18 {
				return ErrMessageAuthenticatorBad
			}
			offset = i
			copy(value[:], body[i+2:i+18])
		}
		i += attrLen
	}
	if offset < 0 {
		return ErrMessageAuthenticatorMissing
	}

	scratch := make([]byte, len(data))
	copy(scratch, data)
	zeroStart := HeaderSize + offset + 2
	for j := 0; j < 16; j++ {
		scratch[zeroStart+j] = 0
	}

	mac := hmac.New(md5.New, secret)
	mac.Write(scratch)
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, value[:]) {
		return ErrMessageAuthenticatorBad
	}
	return nil
}
