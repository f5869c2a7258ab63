// Package events defines the external event-sink interface the
// fragmentation engine reports through: one event per fragment sent and
// per fragment received, plus reassembly completion and rejection
// events. Callers that don't care can use NopSink, which is also what
// engine.New uses when given a nil sink; ZapSink (wired by cmd/fragdemo)
// puts fragment-level activity in the same structured log stream as
// everything else.
package events

import "github.com/relayshell/fragmux/pkg/priority"

// Kind distinguishes the occasions a Sink is notified about.
type Kind int

const (
	// FragmentSent fires once per fragment queued for sending:
	// engine.SendObject reports every fragment of an object when it
	// enqueues them, before the transport pulls any of them.
	FragmentSent Kind = iota
	// FragmentReceived fires once per complete fragment parsed out of
	// the inbound stream and handed to the reassembly buffer, whether
	// the buffer then accepts, discards, or rejects it, and before the
	// object is necessarily complete.
	FragmentReceived
	// ObjectComplete fires once per object the reassembly buffer
	// finishes reconstructing, before the deserializer runs.
	ObjectComplete
	// ObjectRejected fires once per object the reassembly buffer
	// abandons due to a framing, sequencing, or size error.
	ObjectRejected
)

// String renders a Kind for log output.
func (k Kind) String() string {
	switch k {
	case FragmentSent:
		return "fragment_sent"
	case FragmentReceived:
		return "fragment_received"
	case ObjectComplete:
		return "object_complete"
	case ObjectRejected:
		return "object_rejected"
	default:
		return "unknown"
	}
}

// Event carries the fields every reported occasion has in common. Not
// every field is meaningful for every Kind: BlobPreview and Err in
// particular are only populated where they apply.
type Event struct {
	Kind       Kind
	Priority   priority.Class
	ObjectID   uint64
	FragmentID uint64
	Start      bool
	End        bool
	BlobLength int
	// BlobPreview holds the fragment's blob as the engine passes it;
	// ZapSink logs only its first blobPreviewLimit bytes, so log lines
	// get a peek at payload shape without copying whole objects.
	BlobPreview []byte
	// Err is populated for ObjectRejected events.
	Err error
}

// Sink receives engine events. Implementations must not block the
// caller for long; the engine calls Sink synchronously from the
// send/receive path.
type Sink interface {
	Notify(Event)
}

// NopSink discards every event. Useful as a default when the caller has
// no interest in observability beyond pkg/logging's own debug lines.
type NopSink struct{}

// Notify implements Sink by doing nothing.
func (NopSink) Notify(Event) {}
