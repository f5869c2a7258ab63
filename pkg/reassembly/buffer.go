package reassembly

import (
	"github.com/relayshell/fragmux/pkg/ferrors"
	"github.com/relayshell/fragmux/pkg/framing"
)

// state is the per-priority reassembly state machine's two states.
type state int

const (
	idle state = iota
	inProgress
)

// buffer is the C5 reassembly state machine for a single priority. It
// accumulates fragments belonging to one object at a time and hands a
// complete payload back to accept's caller once the end-of-object
// fragment arrives. A buffer is not safe for concurrent use; callers
// serialize access to a given priority's buffer (the demuxer holds one
// buffer per priority plus whatever serialization its own concurrency
// limiter provides).
type buffer struct {
	state      state
	objectID   uint64
	nextFragID uint64
	data       []byte

	// ignoreOffSync tolerates fragments that don't extend the current
	// reassembly state — wrong object id, wrong fragment id, or a
	// continuation fragment with nothing in progress — by silently
	// discarding them instead of failing, until the next fragment that
	// carries the start flag. Set by PrepareForStreamConnect, cleared
	// only when a start fragment arrives.
	ignoreOffSync bool

	maxObjectSize int

	// pending holds raw inbound bytes not yet carved into a complete,
	// header-aligned fragment. A transport delivers bytes in whatever
	// chunks it likes — smaller than one fragment, straddling two
	// fragments, or holding several fragments back to back — so the
	// buffer has to treat its input as an undifferentiated byte stream
	// and peel fragments off the front as enough bytes accumulate.
	pending []byte

	// disposed marks the buffer as torn down. Once set, nextFragment
	// stops yielding new fragments even if pending already holds a
	// complete one, and any bytes still in flight are simply dropped.
	disposed bool
}

func newBuffer(maxObjectSize int) *buffer {
	return &buffer{maxObjectSize: maxObjectSize}
}

// reset returns the buffer to Idle, discarding any partial object. Used
// both on successful completion and as the error-recovery policy: every
// reassembly error resets the affected priority's buffer rather than
// leaving it half-populated.
func (b *buffer) reset() {
	b.state = idle
	b.objectID = 0
	b.nextFragID = 0
	b.data = nil
}

func (b *buffer) prepareForStreamConnect() {
	b.reset()
	b.ignoreOffSync = true
}

// dispose marks the buffer as torn down. Any bytes still sitting in
// pending are dropped immediately; a parse already in flight on another
// goroutine finishes its current fragment (nextFragment still has
// access to the slice it already sliced off pending) but will see
// disposed on its next iteration and stop.
func (b *buffer) dispose() {
	b.disposed = true
	b.pending = nil
	b.reset()
}

// pushBytes appends newly arrived raw bytes to the stream. A no-op once
// the buffer is disposed — a late-arriving write has nothing to land on.
func (b *buffer) pushBytes(data []byte) {
	if b.disposed {
		return
	}
	b.pending = append(b.pending, data...)
}

// nextFragment peels one complete, header-aligned fragment off the
// front of pending, per the parsing loop in the reassembly spec: peek
// the header, validate the object id and the overflow bound, then wait
// for more bytes if the full fragment (header plus blob) hasn't arrived
// yet. ok is false with a nil error when the buffer simply needs more
// data; it is false with a non-nil error when the bytes seen so far can
// never form a valid fragment, in which case pending is discarded since
// there's no way to resynchronize within a single stream.
func (b *buffer) nextFragment(maxFragmentSize int) (hdr framing.Header, blob []byte, ok bool, err error) {
	if b.disposed || len(b.pending) < framing.HeaderLength {
		return framing.Header{}, nil, false, nil
	}

	hdr = framing.Decode(b.pending)
	if hdr.ObjectID == 0 {
		b.pending = nil
		return framing.Header{}, nil, false, ferrors.ErrInvalidObjectID
	}
	if !framing.FitsInt32(hdr.BlobLength) {
		b.pending = nil
		return framing.Header{}, nil, false, ferrors.ErrFragmentTooLarge
	}

	total := framing.HeaderLength + int(hdr.BlobLength)
	if maxFragmentSize > 0 && total > maxFragmentSize {
		b.pending = nil
		return framing.Header{}, nil, false, ferrors.ErrFragmentTooLarge
	}
	if len(b.pending) < total {
		return framing.Header{}, nil, false, nil
	}

	blob = append([]byte(nil), b.pending[framing.HeaderLength:total]...)
	b.pending = b.pending[total:]
	return hdr, blob, true, nil
}

// acceptResult is accept's return value. Complete is true only on the
// call that supplies the end-of-object fragment, at which point Payload
// holds the full reassembled object and ObjectID identifies it.
type acceptResult struct {
	Complete bool
	ObjectID uint64
	Payload  []byte
	// Delta is the net change in bytes this buffer is holding, for the
	// demuxer's aggregate memory accounting. It is negative when a
	// completed or reset object releases its accumulated bytes.
	Delta int
}

// accept feeds one fragment's header and blob into the state machine.
// isServer selects which client/server error variant to surface for the
// size-cap violations that distinguish the two. A start-flagged
// fragment always (re)begins a fresh object regardless of the buffer's
// current state, discarding whatever partial object preceded it; a
// continuation fragment that doesn't extend the object in progress
// either fails or, under ignoreOffSync, is silently dropped with the
// buffer left idle.
func (b *buffer) accept(hdr framing.Header, blob []byte, isServer bool) (acceptResult, error) {
	if hdr.Start {
		released := len(b.data)
		b.reset()
		res, err := b.begin(hdr, blob, isServer)
		res.Delta -= released
		return res, err
	}

	switch b.state {
	case idle:
		if b.ignoreOffSync {
			return acceptResult{}, nil
		}
		return acceptResult{}, ferrors.ErrFragmentOutOfSequence
	default:
		return b.acceptContinuation(hdr, blob, isServer)
	}
}

func (b *buffer) acceptContinuation(hdr framing.Header, blob []byte, isServer bool) (acceptResult, error) {
	if hdr.ObjectID != b.objectID {
		return b.discardOrFail(ferrors.ErrObjectIDMismatch)
	}
	if hdr.FragmentID != b.nextFragID {
		return b.discardOrFail(ferrors.ErrFragmentOutOfSequence)
	}

	newSize := len(b.data) + len(blob)
	if b.maxObjectSize > 0 && newSize > b.maxObjectSize {
		released := len(b.data)
		b.reset()
		return acceptResult{Delta: -released}, ferrors.ObjectTooLarge(isServer)
	}

	b.data = append(b.data, blob...)
	b.nextFragID++
	delta := len(blob)

	if !hdr.End {
		return acceptResult{Delta: delta}, nil
	}

	payload := b.data
	objectID := b.objectID
	b.reset()
	return acceptResult{Complete: true, ObjectID: objectID, Payload: payload, Delta: delta - len(payload)}, nil
}

// discardOrFail implements the shared "mid-object fragment doesn't
// extend what's in progress" transition: reset to idle always, and
// either silently swallow the error (ignoreOffSync) or surface it.
func (b *buffer) discardOrFail(sentinel error) (acceptResult, error) {
	released := len(b.data)
	b.reset()
	if b.ignoreOffSync {
		return acceptResult{Delta: -released}, nil
	}
	return acceptResult{Delta: -released}, sentinel
}

func (b *buffer) begin(hdr framing.Header, blob []byte, isServer bool) (acceptResult, error) {
	if b.maxObjectSize > 0 && len(blob) > b.maxObjectSize {
		return acceptResult{}, ferrors.ObjectTooLarge(isServer)
	}

	b.state = inProgress
	b.objectID = hdr.ObjectID
	b.nextFragID = hdr.FragmentID + 1
	b.data = append([]byte(nil), blob...)
	b.ignoreOffSync = false

	if !hdr.End {
		return acceptResult{Delta: len(blob)}, nil
	}

	payload := b.data
	objectID := b.objectID
	b.reset()
	return acceptResult{Complete: true, ObjectID: objectID, Payload: payload, Delta: 0}, nil
}
