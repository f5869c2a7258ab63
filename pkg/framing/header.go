// Package framing packs and unpacks the fixed-width binary header that
// prefixes every fragment on the wire. The object ids it encodes are
// allocated elsewhere, by fragment.IDAllocator.
//
// Wire format (big-endian, HeaderLength bytes):
//
//	offset  size  field
//	0       8     ObjectId
//	8       8     FragmentId
//	16      1     Flags (bit0 = start, bit1 = end; bits 2-7 reserved, must be 0)
//	17      4     BlobLength
//
// The codec is total over any slice of at least HeaderLength bytes;
// validating the decoded values (ObjectId > 0, BlobLength bounds, and so
// on) is the caller's responsibility.
package framing

import (
	"encoding/binary"
	"math"
)

// HeaderLength is the fixed size, in bytes, of the fragment header.
const HeaderLength = 21

const (
	flagStart byte = 1 << 0
	flagEnd   byte = 1 << 1
	// flagReservedMask covers the bits that must be written as zero and
	// ignored on read, per the wire-format contract.
	flagReservedMask byte = ^(flagStart | flagEnd)
)

// Header is the decoded view of a fragment's framing bytes.
type Header struct {
	ObjectID   uint64
	FragmentID uint64
	Start      bool
	End        bool
	BlobLength uint32
}

// Encode writes a HeaderLength-byte header into buf, which must be at
// least HeaderLength bytes long. It returns the number of bytes written
// (always HeaderLength) so callers can slice past it in one expression.
func Encode(buf []byte, objectID, fragmentID uint64, start, end bool, blobLength uint32) int {
	var flags byte
	if start {
		flags |= flagStart
	}
	if end {
		flags |= flagEnd
	}
	// Reserved bits are always written as zero.
	flags &^= flagReservedMask

	binary.BigEndian.PutUint64(buf[0:8], objectID)
	binary.BigEndian.PutUint64(buf[8:16], fragmentID)
	buf[16] = flags
	binary.BigEndian.PutUint32(buf[17:21], blobLength)
	return HeaderLength
}

// NewHeaderBytes allocates and encodes a fresh header.
func NewHeaderBytes(objectID, fragmentID uint64, start, end bool, blobLength uint32) [HeaderLength]byte {
	var buf [HeaderLength]byte
	Encode(buf[:], objectID, fragmentID, start, end, blobLength)
	return buf
}

// Decode reads the header out of the first HeaderLength bytes of data.
// Callers must ensure len(data) >= HeaderLength; Decode does not bounds
// check, matching the codec's contract of being total over any slice the
// caller has already validated the length of.
func Decode(data []byte) Header {
	flags := data[16]
	return Header{
		ObjectID:   binary.BigEndian.Uint64(data[0:8]),
		FragmentID: binary.BigEndian.Uint64(data[8:16]),
		Start:      flags&flagStart != 0,
		End:        flags&flagEnd != 0,
		BlobLength: binary.BigEndian.Uint32(data[17:21]),
	}
}

// ObjectID returns just the object id field of a header-prefixed slice.
func ObjectID(data []byte) uint64 { return binary.BigEndian.Uint64(data[0:8]) }

// FragmentID returns just the fragment id field of a header-prefixed slice.
func FragmentID(data []byte) uint64 { return binary.BigEndian.Uint64(data[8:16]) }

// IsStart reports the start-of-object flag of a header-prefixed slice.
func IsStart(data []byte) bool { return data[16]&flagStart != 0 }

// IsEnd reports the end-of-object flag of a header-prefixed slice.
func IsEnd(data []byte) bool { return data[16]&flagEnd != 0 }

// BlobLength returns just the blob-length field of a header-prefixed slice.
func BlobLength(data []byte) uint32 { return binary.BigEndian.Uint32(data[17:21]) }

// FitsInt32 reports whether HeaderLength+blobLength fits in a signed
// 32-bit integer (false on overflow), the overflow bound the framing invariants require every
// fragment to respect.
func FitsInt32(blobLength uint32) bool {
	return uint64(HeaderLength)+uint64(blobLength) <= math.MaxInt32
}
