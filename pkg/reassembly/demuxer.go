// Package reassembly implements the receive side of the fragmentation
// engine: a per-priority demultiplexer (C4) that validates inbound
// fragment framing, enforces the aggregate memory cap, and limits how
// many goroutines may be parsing raw bytes concurrently; and, per
// priority, a reassembly state machine (C5) that reconstructs complete
// objects out of ordered fragments.
package reassembly

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/relayshell/fragmux/pkg/events"
	"github.com/relayshell/fragmux/pkg/ferrors"
	"github.com/relayshell/fragmux/pkg/logging"
	"github.com/relayshell/fragmux/pkg/priority"
)

// Config bounds what the demuxer and its reassembly buffers will accept.
type Config struct {
	// FragmentSize is the largest whole wire fragment (header + blob)
	// the demuxer will accept. Fragments arriving larger than this are
	// rejected with ferrors.ErrFragmentTooLarge.
	FragmentSize int
	// MaximumReceivedObjectSize bounds the reassembled size of any
	// single object, counted as the sum of its fragments' blob bytes;
	// fragment headers are not counted. Zero means unbounded. This is only the starting
	// value; SetMaxObjectSize changes it for the life of the Demuxer.
	MaximumReceivedObjectSize int
	// MaximumReceivedDataSize bounds the aggregate bytes held in
	// progress across both priorities at once. Zero means unbounded.
	// This is only the starting value; SetMaxMemory changes it for the
	// life of the Demuxer.
	MaximumReceivedDataSize int
	// AllowTwoThreadsToProcessRawData raises the concurrent-parse limit
	// from one goroutine to two. Most callers should leave this false;
	// it exists for transports that already serialize delivery per
	// priority and want the other priority's parsing to proceed
	// independently.
	AllowTwoThreadsToProcessRawData bool
	// IsServer selects the client/server wording of the size-cap error
	// variants.
	IsServer bool
}

// ObjectCallback is invoked once per fully reassembled object, with the
// priority it arrived on, its object id, and its complete payload. A
// non-nil return is reported to the caller of ProcessRawData wrapped in
// ferrors.ErrDeserializationError.
type ObjectCallback func(class priority.Class, objectID uint64, payload []byte) error

// Demuxer is the receive-side entry point: feed it raw bytes as they
// arrive per priority, and it calls back once per completed object.
type Demuxer struct {
	cfg  Config
	sink events.Sink

	sem *semaphore.Weighted

	buffers [2]struct {
		mu sync.Mutex
		b  *buffer
	}

	memUsed   int64
	maxMemory int64
}

func classIndex(c priority.Class) int {
	if c == priority.PromptResponse {
		return 0
	}
	return 1
}

// NewDemuxer builds a Demuxer per cfg. A nil sink is replaced with
// events.NopSink{}.
func NewDemuxer(cfg Config, sink events.Sink) *Demuxer {
	if sink == nil {
		sink = events.NopSink{}
	}
	threads := int64(1)
	if cfg.AllowTwoThreadsToProcessRawData {
		threads = 2
	}
	d := &Demuxer{
		cfg:       cfg,
		sink:      sink,
		sem:       semaphore.NewWeighted(threads),
		maxMemory: int64(cfg.MaximumReceivedDataSize),
	}
	for i := range d.buffers {
		d.buffers[i].b = newBuffer(cfg.MaximumReceivedObjectSize)
	}
	return d
}

// SetMaxObjectSize updates the per-object size cap both priorities'
// reassembly buffers enforce from this call on. A zero or negative n
// means unbounded. Objects already in progress are checked against the
// new cap on their next fragment, not retroactively against bytes
// already accumulated.
func (d *Demuxer) SetMaxObjectSize(n int) {
	for i := range d.buffers {
		slot := &d.buffers[i]
		slot.mu.Lock()
		slot.b.maxObjectSize = n
		slot.mu.Unlock()
	}
}

// SetMaxMemory updates the aggregate cap reserve checks inbound bytes
// against. A zero or negative n means unbounded. Bytes already reserved
// against the old cap are left as is; the new cap only governs future
// reserve calls.
func (d *Demuxer) SetMaxMemory(n int) {
	atomic.StoreInt64(&d.maxMemory, int64(n))
}

// PrepareForStreamConnect marks class's reassembly buffer to tolerate a
// resynchronized stream: any partial object is discarded, and
// continuation fragments that do not extend an object in progress are
// silently dropped instead of failing, until the next start fragment
// arrives. Call this once per priority right after a transport
// reconnects.
func (d *Demuxer) PrepareForStreamConnect(class priority.Class) {
	slot := &d.buffers[classIndex(class)]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	released := len(slot.b.data)
	slot.b.prepareForStreamConnect()
	if released > 0 {
		atomic.AddInt64(&d.memUsed, int64(-released))
	}
}

// ProcessRawData feeds newly arrived bytes into class's reassembly
// stream. The transport is not expected to deliver header-aligned
// chunks: data may hold less than one fragment, more than one fragment,
// or a fragment split across two calls, so ProcessRawData appends data
// to the buffer's pending stream and then parses and applies as many
// complete fragments as are now available, one at a time, per the
// parsing loop in the reassembly spec. It blocks until a concurrency
// slot is available (bounded by AllowTwoThreadsToProcessRawData) or ctx
// is done. cb is invoked synchronously, once per object that completes
// during this call, before ProcessRawData returns. A framing error
// aborts the remainder of the call — the stream cannot be
// resynchronized without a fresh start fragment — but any objects
// already delivered earlier in the same call have already reached cb.
func (d *Demuxer) ProcessRawData(ctx context.Context, class priority.Class, data []byte, cb ObjectCallback) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)

	slot := &d.buffers[classIndex(class)]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.b.disposed {
		return nil
	}
	slot.b.pushBytes(data)

	for {
		hdr, blob, ok, err := slot.b.nextFragment(d.cfg.FragmentSize)
		if err != nil {
			logging.Warn("fragment framing rejected",
				zap.String("priority", class.String()),
				zap.Error(err))
			d.sink.Notify(events.Event{Kind: events.ObjectRejected, Priority: class, Err: err})
			return err
		}
		if !ok {
			return nil
		}

		if !d.reserve(len(blob)) {
			d.sink.Notify(events.Event{
				Kind: events.ObjectRejected, Priority: class,
				ObjectID: hdr.ObjectID, FragmentID: hdr.FragmentID,
				Err: ferrors.TotalDataTooLarge(d.cfg.IsServer),
			})
			return ferrors.TotalDataTooLarge(d.cfg.IsServer)
		}

		res, acceptErr := slot.b.accept(hdr, blob, d.cfg.IsServer)

		// accept's own Delta already nets out against what reserve just
		// added (an append grows by len(blob), a reset releases
		// everything); fold it back into the aggregate counter.
		net := res.Delta - len(blob)
		if net != 0 {
			atomic.AddInt64(&d.memUsed, int64(net))
		}

		d.sink.Notify(events.Event{
			Kind: events.FragmentReceived, Priority: class,
			ObjectID: hdr.ObjectID, FragmentID: hdr.FragmentID,
			Start: hdr.Start, End: hdr.End, BlobLength: len(blob),
			BlobPreview: blob,
		})

		if acceptErr != nil {
			logging.Warn("fragment rejected",
				zap.String("priority", class.String()),
				zap.Uint64("objectID", hdr.ObjectID),
				zap.Uint64("fragmentID", hdr.FragmentID),
				zap.Error(acceptErr))
			d.sink.Notify(events.Event{Kind: events.ObjectRejected, Priority: class, ObjectID: hdr.ObjectID, FragmentID: hdr.FragmentID, Err: acceptErr})
			return acceptErr
		}
		if !res.Complete {
			continue
		}

		d.sink.Notify(events.Event{
			Kind: events.ObjectComplete, Priority: class,
			ObjectID: res.ObjectID, BlobLength: len(res.Payload),
		})

		if cb != nil {
			// cb runs with the slot unlocked so that it may call Dispose
			// without deadlocking on slot.mu.
			slot.mu.Unlock()
			err := cb(class, res.ObjectID, res.Payload)
			slot.mu.Lock()
			if err != nil {
				return fmt.Errorf("%w: %v", ferrors.ErrDeserializationError, err)
			}
		}

		// A dispose issued synchronously from inside cb must stop this
		// loop from handing any further already-buffered fragments to a
		// torn-down buffer.
		if slot.b.disposed {
			return nil
		}
	}
}

// Dispose tears down class's reassembly buffer: any bytes still pending
// are discarded, and any fragment already in flight through
// ProcessRawData on another goroutine stops delivering further objects
// once it notices. A ProcessRawData call that arrives after Dispose has
// returned is a no-op.
func (d *Demuxer) Dispose(class priority.Class) {
	slot := &d.buffers[classIndex(class)]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	// Only assembled blob bytes were reserved; pending raw bytes never were.
	released := len(slot.b.data)
	slot.b.dispose()
	if released > 0 {
		atomic.AddInt64(&d.memUsed, int64(-released))
	}
}

// reserve attempts to add n bytes to the aggregate memory counter,
// failing if doing so would exceed the live cap set by SetMaxMemory (or
// Config.MaximumReceivedDataSize, before any SetMaxMemory call).
func (d *Demuxer) reserve(n int) bool {
	limit := atomic.LoadInt64(&d.maxMemory)
	if limit <= 0 {
		atomic.AddInt64(&d.memUsed, int64(n))
		return true
	}
	for {
		cur := atomic.LoadInt64(&d.memUsed)
		if cur+int64(n) > limit {
			return false
		}
		if atomic.CompareAndSwapInt64(&d.memUsed, cur, cur+int64(n)) {
			return true
		}
	}
}

// MemoryInUse reports the current aggregate bytes held across both
// priorities' in-progress objects.
func (d *Demuxer) MemoryInUse() int64 {
	return atomic.LoadInt64(&d.memUsed)
}
