// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package task

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestIDIsContentDerived(t *testing.T) {
	require := require.New(t)

	a := New(1, []byte("verify 0xabc"))
	b := New(1, []byte("verify 0xabc"))
	c := New(2, []byte("verify 0xabc"))

	aID, err := a.ID()
	require.NoError(err)
	bID, err := b.ID()
	require.NoError(err)
	cID, err := c.ID()
	require.NoError(err)

	require.Equal(aID, bID)
	require.NotEqual(aID, cID)
}

func TestParseRoundTrip(t *testing.T) {
	require := require.New(t)

	original := New(7, []byte{1, 2, 3})
	b, err := original.Bytes()
	require.NoError(err)

	parsed, err := Parse(b)
	require.NoError(err)
	require.Equal(original.Kind, parsed.Kind)
	require.Equal(original.Payload, parsed.Payload)

	_, err = Parse([]byte{0xff})
	require.Error(err)
}

func TestSystemTasks(t *testing.T) {
	require := require.New(t)

	require.True(KindTimeout.IsSystem())
	require.True(KindCloseDispute.IsSystem())
	require.False(Kind(0).IsSystem())

	target := ids.GenerateTestID()
	sys := NewSystem(KindTimeout, target)
	got, err := sys.Target()
	require.NoError(err)
	require.Equal(target, got)

	_, err = New(3, []byte{1}).Target()
	require.ErrorIs(err, errNotSystemTask)
}

func TestVerify(t *testing.T) {
	require.ErrorIs(t, New(1, nil).Verify(), ErrEmptyPayload)
	require.NoError(t, New(1, []byte{0}).Verify())
}
