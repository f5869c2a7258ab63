package reassembly

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relayshell/fragmux/pkg/ferrors"
	"github.com/relayshell/fragmux/pkg/framing"
)

func TestBufferStartsIdleAndRejectsOutOfSequenceWithoutIgnoreOffSync(t *testing.T) {
	b := newBuffer(0)
	hdr := framing.Header{ObjectID: 1, FragmentID: 1, Start: false, End: false, BlobLength: 3}
	_, err := b.accept(hdr, []byte("abc"), false)
	require.ErrorIs(t, err, ferrors.ErrFragmentOutOfSequence)
}

func TestStartFragmentAlwaysBeginsFreshRegardlessOfPriorState(t *testing.T) {
	b := newBuffer(0)
	start1 := framing.Header{ObjectID: 1, FragmentID: 0, Start: true, End: false, BlobLength: 1}
	res, err := b.accept(start1, []byte("a"), false)
	require.NoError(t, err)
	require.False(t, res.Complete)

	// A fresh start fragment discards the partial object in progress,
	// with no error, exactly as the literal state table specifies.
	start2 := framing.Header{ObjectID: 2, FragmentID: 0, Start: true, End: true, BlobLength: 1}
	res, err = b.accept(start2, []byte("b"), false)
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Equal(t, uint64(2), res.ObjectID)
	require.Equal(t, []byte("b"), res.Payload)
}

// TestPrepareForStreamConnectSilentlyDiscardsTrailingFragment mirrors the
// reconnect-tolerance scenario: a trailing off-sequence fragment from the
// previous connection produces no error and no callback, and reassembly
// only resumes once a genuine start fragment arrives.
func TestPrepareForStreamConnectSilentlyDiscardsTrailingFragment(t *testing.T) {
	b := newBuffer(0)
	b.prepareForStreamConnect()

	trailing := framing.Header{ObjectID: 5, FragmentID: 4, Start: false, End: false, BlobLength: 3}
	res, err := b.accept(trailing, []byte("abc"), false)
	require.NoError(t, err)
	require.False(t, res.Complete)
	require.Equal(t, idle, b.state)

	start := framing.Header{ObjectID: 6, FragmentID: 0, Start: true, End: true, BlobLength: 1}
	res, err = b.accept(start, []byte("z"), false)
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Equal(t, uint64(6), res.ObjectID)
}

func TestIgnoreOffSyncKeepsDiscardingUntilStartArrives(t *testing.T) {
	b := newBuffer(0)
	b.prepareForStreamConnect()

	for _, hdr := range []framing.Header{
		{ObjectID: 5, FragmentID: 4, Start: false, End: false, BlobLength: 1},
		{ObjectID: 9, FragmentID: 0, Start: false, End: false, BlobLength: 1},
	} {
		res, err := b.accept(hdr, []byte("x"), false)
		require.NoError(t, err)
		require.False(t, res.Complete)
	}

	start := framing.Header{ObjectID: 6, FragmentID: 0, Start: true, End: true, BlobLength: 1}
	res, err := b.accept(start, []byte("z"), false)
	require.NoError(t, err)
	require.True(t, res.Complete)
}

func TestBufferResetsToIdleAfterErrorSoNextObjectCanStartClean(t *testing.T) {
	b := newBuffer(0)
	hdr := framing.Header{ObjectID: 1, FragmentID: 1, Start: false, End: false, BlobLength: 1}
	_, err := b.accept(hdr, []byte("a"), false)
	require.Error(t, err)
	require.Equal(t, idle, b.state)

	start := framing.Header{ObjectID: 2, FragmentID: 0, Start: true, End: true, BlobLength: 1}
	res, err := b.accept(start, []byte("z"), false)
	require.NoError(t, err)
	require.True(t, res.Complete)
	require.Equal(t, uint64(2), res.ObjectID)
}

func TestBufferEnforcesMaxObjectSize(t *testing.T) {
	b := newBuffer(4)
	start := framing.Header{ObjectID: 1, FragmentID: 0, Start: true, End: false, BlobLength: 3}
	res, err := b.accept(start, []byte("abc"), false)
	require.NoError(t, err)
	require.False(t, res.Complete)

	cont := framing.Header{ObjectID: 1, FragmentID: 1, Start: false, End: true, BlobLength: 3}
	_, err = b.accept(cont, []byte("def"), false)
	require.ErrorIs(t, err, ferrors.ErrObjectTooLargeClient)
	require.Equal(t, idle, b.state)
}

func TestBufferEnforcesMaxObjectSizeServerVariant(t *testing.T) {
	b := newBuffer(2)
	start := framing.Header{ObjectID: 1, FragmentID: 0, Start: true, End: true, BlobLength: 3}
	_, err := b.accept(start, []byte("abc"), true)
	require.ErrorIs(t, err, ferrors.ErrObjectTooLargeServer)
}

func TestNextFragmentWaitsForMoreBytesOnPartialFragment(t *testing.T) {
	b := newBuffer(0)
	wire := make([]byte, framing.HeaderLength+4)
	framing.Encode(wire, 1, 0, true, true, 4)
	copy(wire[framing.HeaderLength:], "data")

	b.pushBytes(wire[:framing.HeaderLength+2])
	_, _, ok, err := b.nextFragment(0)
	require.NoError(t, err)
	require.False(t, ok)

	b.pushBytes(wire[framing.HeaderLength+2:])
	hdr, blob, ok, err := b.nextFragment(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), hdr.ObjectID)
	require.Equal(t, []byte("data"), blob)
}

func TestNextFragmentParsesTwoFragmentsDeliveredInOneWrite(t *testing.T) {
	b := newBuffer(0)
	var wire []byte
	for i, payload := range [][]byte{[]byte("aa"), []byte("bb")} {
		frame := make([]byte, framing.HeaderLength+len(payload))
		framing.Encode(frame, 1, uint64(i), i == 0, i == 1, uint32(len(payload)))
		copy(frame[framing.HeaderLength:], payload)
		wire = append(wire, frame...)
	}

	b.pushBytes(wire)

	hdr0, blob0, ok, err := b.nextFragment(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, hdr0.End)
	require.Equal(t, []byte("aa"), blob0)

	hdr1, blob1, ok, err := b.nextFragment(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, hdr1.End)
	require.Equal(t, []byte("bb"), blob1)

	_, _, ok, err = b.nextFragment(0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDisposeStopsYieldingFragmentsAndDropsPendingBytes(t *testing.T) {
	b := newBuffer(0)
	wire := make([]byte, framing.HeaderLength+1)
	framing.Encode(wire, 1, 0, true, true, 1)
	wire[framing.HeaderLength] = 'z'

	b.pushBytes(wire)
	b.dispose()

	_, _, ok, err := b.nextFragment(0)
	require.NoError(t, err)
	require.False(t, ok)

	b.pushBytes(wire)
	_, _, ok, err = b.nextFragment(0)
	require.NoError(t, err)
	require.False(t, ok, "pushBytes after dispose must be a no-op")
}

func TestObjectIDMismatchMidObjectFails(t *testing.T) {
	b := newBuffer(0)
	start := framing.Header{ObjectID: 1, FragmentID: 0, Start: true, End: false, BlobLength: 1}
	_, err := b.accept(start, []byte("a"), false)
	require.NoError(t, err)

	cont := framing.Header{ObjectID: 2, FragmentID: 1, Start: false, End: true, BlobLength: 1}
	_, err = b.accept(cont, []byte("b"), false)
	require.ErrorIs(t, err, ferrors.ErrObjectIDMismatch)
	require.Equal(t, idle, b.state)
}
