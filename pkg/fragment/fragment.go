// Package fragment splits a serialized object into an ordered sequence of
// bounded, header-prefixed fragments ready to hand to a send queue, and
// reconstitutes the inverse view of "how many fragments will this object
// need" for callers that want to size buffers ahead of time.
package fragment

import (
	"fmt"

	"github.com/relayshell/fragmux/pkg/ferrors"
	"github.com/relayshell/fragmux/pkg/framing"
)

// Fragmentor splits serialized objects into FragmentSize-bounded wire
// fragments. A Fragmentor is safe for concurrent use: each call to
// Fragment is independent and only touches its own local fragment id
// counter.
type Fragmentor struct {
	fragmentSize int
	blobCapacity int
}

// New builds a Fragmentor that never emits a fragment (header included)
// larger than fragmentSize. fragmentSize must be large enough to hold the
// header plus at least one byte of payload.
func New(fragmentSize int) (*Fragmentor, error) {
	if fragmentSize <= framing.HeaderLength {
		return nil, fmt.Errorf("fragment: fragment size %d must exceed header length %d", fragmentSize, framing.HeaderLength)
	}
	return &Fragmentor{
		fragmentSize: fragmentSize,
		blobCapacity: fragmentSize - framing.HeaderLength,
	}, nil
}

// FragmentSize returns the configured bound on a whole wire fragment
// (header plus blob).
func (f *Fragmentor) FragmentSize() int { return f.fragmentSize }

// Count returns how many fragments Fragment would produce for a payload
// of length payloadLen, without doing any allocation.
func (f *Fragmentor) Count(payloadLen int) int {
	if payloadLen == 0 {
		return 1
	}
	return (payloadLen + f.blobCapacity - 1) / f.blobCapacity
}

// Fragment splits payload into ordered, header-prefixed wire fragments
// for objectID. Fragment ids start at 0 for the first fragment and
// increase by one per fragment, matching the reassembly side's sequence
// check. An empty payload still produces exactly one fragment (start and
// end both set, zero-length blob), since every object needs at least one
// fragment to exist on the wire at all.
func (f *Fragmentor) Fragment(objectID uint64, payload []byte) ([][]byte, error) {
	if objectID == 0 {
		return nil, ferrors.ErrInvalidObjectID
	}

	n := f.Count(len(payload))
	out := make([][]byte, 0, n)

	offset := 0
	for fragID := uint64(0); fragID < uint64(n); fragID++ {
		end := offset + f.blobCapacity
		if end > len(payload) {
			end = len(payload)
		}
		blob := payload[offset:end]

		wire := make([]byte, framing.HeaderLength+len(blob))
		framing.Encode(wire, objectID, fragID, fragID == 0, fragID == uint64(n-1), uint32(len(blob)))
		copy(wire[framing.HeaderLength:], blob)

		out = append(out, wire)
		offset = end
	}

	return out, nil
}
