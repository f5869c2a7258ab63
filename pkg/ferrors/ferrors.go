// Package ferrors defines the fragmentation engine's error taxonomy. The
// framing, sequencing, size and deserialization errors that pkg/fragment
// and pkg/reassembly report are the sentinels below, optionally wrapped
// with context via fmt.Errorf's %w so callers can still errors.Is against
// the sentinel. Other errors (fragment.New rejecting a fragment size, a
// done context in ProcessRawData) are not sentinels from this package.
package ferrors

import "errors"

var (
	// ErrInvalidObjectID is returned when a fragment's ObjectId is zero,
	// which is never a valid allocation from the object id allocator.
	ErrInvalidObjectID = errors.New("ferrors: invalid object id")

	// ErrFragmentTooLarge is returned when a whole fragment (header plus
	// blob) exceeds the configured FragmentSize, or when HeaderLength plus
	// its BlobLength overflows a signed 32-bit integer.
	ErrFragmentTooLarge = errors.New("ferrors: fragment exceeds configured fragment size")

	// ErrObjectIDMismatch is returned when a continuation fragment
	// (start=false) arrives with an ObjectId different from the object
	// currently in progress for that priority.
	ErrObjectIDMismatch = errors.New("ferrors: fragment object id does not match object in progress")

	// ErrFragmentOutOfSequence is returned when a fragment's FragmentId
	// is not exactly one greater than the last fragment id accepted for
	// the object in progress.
	ErrFragmentOutOfSequence = errors.New("ferrors: fragment id out of sequence")

	// ErrObjectTooLargeClient is returned when the reassembled object
	// would exceed MaximumReceivedObjectSize and the local side is
	// acting as the client.
	ErrObjectTooLargeClient = errors.New("ferrors: received object exceeds maximum object size (client)")

	// ErrObjectTooLargeServer is the server-side counterpart of
	// ErrObjectTooLargeClient.
	ErrObjectTooLargeServer = errors.New("ferrors: received object exceeds maximum object size (server)")

	// ErrTotalDataTooLargeClient is returned when the aggregate memory
	// held across the in-progress objects of both priorities would exceed
	// MaximumReceivedDataSize and the local side is acting as the client.
	ErrTotalDataTooLargeClient = errors.New("ferrors: total received data exceeds maximum data size (client)")

	// ErrTotalDataTooLargeServer is the server-side counterpart of
	// ErrTotalDataTooLargeClient.
	ErrTotalDataTooLargeServer = errors.New("ferrors: total received data exceeds maximum data size (server)")

	// ErrDeserializationError wraps a failure from the caller-supplied
	// deserializer once a complete object has been reassembled.
	ErrDeserializationError = errors.New("ferrors: deserialization of reassembled object failed")
)

// ObjectTooLarge picks the client or server variant of the object-size
// sentinel. isServer selects the server-side wording the same way the
// spec's ObjectTooLarge(client|server) pair does.
func ObjectTooLarge(isServer bool) error {
	if isServer {
		return ErrObjectTooLargeServer
	}
	return ErrObjectTooLargeClient
}

// TotalDataTooLarge picks the client or server variant of the aggregate
// data-size sentinel.
func TotalDataTooLarge(isServer bool) error {
	if isServer {
		return ErrTotalDataTooLargeServer
	}
	return ErrTotalDataTooLargeClient
}
