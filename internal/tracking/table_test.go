// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiuscore/radiuscore/internal/addr"
	"github.com/radiuscore/radiuscore/internal/wire"
)

type fakeClient struct{ id string }

func (f fakeClient) ClientID() string { return f.id }

func testKey() Key {
	return Key{
		Code: wire.CodeAccessRequest,
		ID:   7,
		Addr: addr.Address{},
	}
}

func TestTable_InsertNew(t *testing.T) {
	tab := NewTable(0)
	outcome, entry := tab.Insert(fakeClient{"a"}, testKey(), wire.Header{Code: wire.CodeAccessRequest, Identifier: 7}, time.Now())
	assert.Equal(t, New, outcome)
	assert.NotNil(t, entry)
	assert.Equal(t, 1, tab.Len())
}

func TestTable_InsertSameIsRetransmit(t *testing.T) {
	tab := NewTable(0)
	hdr := wire.Header{Code: wire.CodeAccessRequest, Identifier: 7}
	now := time.Now()

	_, first := tab.Insert(fakeClient{"a"}, testKey(), hdr, now)
	outcome, second := tab.Insert(fakeClient{"a"}, testKey(), hdr, now.Add(time.Second))

	assert.Equal(t, Same, outcome)
	assert.Same(t, first, second)
	_, hasReply := second.CachedReply()
	assert.False(t, hasReply)
}

func TestTable_InsertSameReturnsCachedReply(t *testing.T) {
	tab := NewTable(5 * time.Second)
	tab.AfterFunc = func(d time.Duration, f func()) *time.Timer { return time.AfterFunc(time.Hour, f) }
	hdr := wire.Header{Code: wire.CodeAccessRequest, Identifier: 7}
	now := time.Now()

	_, entry := tab.Insert(fakeClient{"a"}, testKey(), hdr, now)
	stamp := entry.Stamp()
	require.True(t, tab.AttachReply(entry, stamp, []byte("reply"), now))

	outcome, again := tab.Insert(fakeClient{"a"}, testKey(), hdr, now.Add(time.Second))
	assert.Equal(t, Same, outcome)
	reply, ok := again.CachedReply()
	assert.True(t, ok)
	assert.Equal(t, []byte("reply"), reply)
}

func TestTable_InsertUpdatedAfterReply(t *testing.T) {
	tab := NewTable(5 * time.Second)
	tab.AfterFunc = func(d time.Duration, f func()) *time.Timer { return time.AfterFunc(time.Hour, f) }
	now := time.Now()

	_, entry := tab.Insert(fakeClient{"a"}, testKey(), wire.Header{Code: wire.CodeAccessRequest, Identifier: 7}, now)
	stamp := entry.Stamp()
	require.True(t, tab.AttachReply(entry, stamp, []byte("r1"), now))

	differentHdr := wire.Header{Code: wire.CodeAccessRequest, Identifier: 7, Authenticator: [16]byte{1}}
	outcome, entry2 := tab.Insert(fakeClient{"a"}, testKey(), differentHdr, now.Add(time.Second))
	assert.Equal(t, Updated, outcome)
	assert.Same(t, entry, entry2)
}

func TestTable_InsertConflictingDiscardsStaleAttach(t *testing.T) {
	tab := NewTable(0)
	now := time.Now()

	_, entry := tab.Insert(fakeClient{"a"}, testKey(), wire.Header{Code: wire.CodeAccessRequest, Identifier: 7}, now)
	stamp := entry.Stamp()

	differentHdr := wire.Header{Code: wire.CodeAccessRequest, Identifier: 7, Authenticator: [16]byte{9}}
	outcome, entry2 := tab.Insert(fakeClient{"a"}, testKey(), differentHdr, now.Add(time.Second))
	assert.Equal(t, Conflicting, outcome)
	assert.Same(t, entry, entry2)

	ok := tab.AttachReply(entry, stamp, []byte("stale"), now.Add(time.Second))
	assert.False(t, ok, "a superseded caller's reply must be rejected")
}

func TestTable_DeleteRejectsStaleStamp(t *testing.T) {
	tab := NewTable(0)
	now := time.Now()
	_, entry := tab.Insert(fakeClient{"a"}, testKey(), wire.Header{Code: wire.CodeAccessRequest, Identifier: 7}, now)
	stamp := entry.Stamp()

	tab.Insert(fakeClient{"a"}, testKey(), wire.Header{Code: wire.CodeAccessRequest, Identifier: 7, Authenticator: [16]byte{3}}, now.Add(time.Second))

	assert.False(t, tab.Delete(entry, stamp))
	assert.Equal(t, 1, tab.Len())
}
