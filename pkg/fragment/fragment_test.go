package fragment

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relayshell/fragmux/pkg/framing"
)

func TestNewRejectsFragmentSizeBelowHeader(t *testing.T) {
	_, err := New(framing.HeaderLength)
	require.Error(t, err)
	_, err = New(framing.HeaderLength - 1)
	require.Error(t, err)
}

func TestFragmentSingleSmallObject(t *testing.T) {
	f, err := New(1024)
	require.NoError(t, err)

	payload := []byte("hello world")
	frags, err := f.Fragment(1, payload)
	require.NoError(t, err)
	require.Len(t, frags, 1)

	hdr := framing.Decode(frags[0])
	require.Equal(t, uint64(1), hdr.ObjectID)
	require.Equal(t, uint64(0), hdr.FragmentID)
	require.True(t, hdr.Start)
	require.True(t, hdr.End)
	require.Equal(t, uint32(len(payload)), hdr.BlobLength)
	require.True(t, bytes.Equal(payload, frags[0][framing.HeaderLength:]))
}

func TestFragmentEmptyObjectStillProducesOneFragment(t *testing.T) {
	f, err := New(64)
	require.NoError(t, err)

	frags, err := f.Fragment(1, nil)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	hdr := framing.Decode(frags[0])
	require.True(t, hdr.Start)
	require.True(t, hdr.End)
	require.Equal(t, uint32(0), hdr.BlobLength)
}

func TestFragmentSplitsIntoOrderedBoundedFragments(t *testing.T) {
	fragmentSize := framing.HeaderLength + 10
	f, err := New(fragmentSize)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{'x'}, 25) // 3 fragments: 10, 10, 5
	frags, err := f.Fragment(9, payload)
	require.NoError(t, err)
	require.Len(t, frags, 3)
	require.Equal(t, 3, f.Count(len(payload)))

	var rebuilt []byte
	for i, frag := range frags {
		require.LessOrEqual(t, len(frag), fragmentSize)
		hdr := framing.Decode(frag)
		require.Equal(t, uint64(9), hdr.ObjectID)
		require.Equal(t, uint64(i), hdr.FragmentID)
		require.Equal(t, i == 0, hdr.Start)
		require.Equal(t, i == len(frags)-1, hdr.End)
		rebuilt = append(rebuilt, frag[framing.HeaderLength:]...)
	}
	require.True(t, bytes.Equal(payload, rebuilt))
}

func TestFragmentRejectsZeroObjectID(t *testing.T) {
	f, err := New(64)
	require.NoError(t, err)
	_, err = f.Fragment(0, []byte("x"))
	require.Error(t, err)
}

func TestFragmentExactMultipleOfCapacity(t *testing.T) {
	fragmentSize := framing.HeaderLength + 10
	f, err := New(fragmentSize)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{'y'}, 20) // exactly 2 full fragments
	frags, err := f.Fragment(1, payload)
	require.NoError(t, err)
	require.Len(t, frags, 2)
	for _, frag := range frags {
		require.Equal(t, fragmentSize, len(frag))
	}
}
