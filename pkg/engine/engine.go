// Package engine wires the framing, fragment, sendqueue, and reassembly
// packages into the two operations a transport actually needs: hand it
// an object to send, and feed it raw bytes as they arrive. Everything
// else (what the transport looks like, how fragments actually cross the
// wire) is left to the caller.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/relayshell/fragmux/pkg/events"
	"github.com/relayshell/fragmux/pkg/ferrors"
	"github.com/relayshell/fragmux/pkg/fragment"
	"github.com/relayshell/fragmux/pkg/framing"
	"github.com/relayshell/fragmux/pkg/priority"
	"github.com/relayshell/fragmux/pkg/reassembly"
	"github.com/relayshell/fragmux/pkg/sendqueue"
)

// Config collects every tunable the spec exposes. Zero values for the
// size caps mean unbounded.
type Config struct {
	// FragmentSize bounds a whole wire fragment (header + blob), for
	// both the send-side Fragmentor and the receive-side Demuxer.
	FragmentSize int
	// MaximumReceivedObjectSize bounds a single reassembled object's
	// blob bytes; fragment headers are not counted.
	MaximumReceivedObjectSize int
	// MaximumReceivedDataSize bounds the aggregate bytes in progress
	// across both priorities.
	MaximumReceivedDataSize int
	// AllowTwoThreadsToProcessRawData raises the receive-side
	// concurrent-parse limit from one goroutine to two.
	AllowTwoThreadsToProcessRawData bool
	// IsServer selects which of the client/server size-cap error
	// variants this side reports.
	IsServer bool
}

// ObjectHandler is invoked once per fully reassembled, deserialized
// object.
type ObjectHandler func(class priority.Class, objectID uint64, obj any)

// Deserializer turns a reassembled object's raw bytes into whatever
// application type the caller works with.
type Deserializer func(payload []byte) (any, error)

// Engine is the top-level send/receive pipeline.
type Engine struct {
	cfg Config

	fragmentor *fragment.Fragmentor
	ids        *fragment.IDAllocator
	queue      *sendqueue.Queue

	demux        *reassembly.Demuxer
	deserializer Deserializer
	onObject     ObjectHandler

	sink events.Sink
}

// New builds an Engine. deserializer and onObject may be nil if the
// caller only intends to use the send side.
func New(cfg Config, sink events.Sink, deserializer Deserializer, onObject ObjectHandler) (*Engine, error) {
	if sink == nil {
		sink = events.NopSink{}
	}
	fr, err := fragment.New(cfg.FragmentSize)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	demux := reassembly.NewDemuxer(reassembly.Config{
		FragmentSize:                    cfg.FragmentSize,
		MaximumReceivedObjectSize:       cfg.MaximumReceivedObjectSize,
		MaximumReceivedDataSize:         cfg.MaximumReceivedDataSize,
		AllowTwoThreadsToProcessRawData: cfg.AllowTwoThreadsToProcessRawData,
		IsServer:                        cfg.IsServer,
	}, sink)

	return &Engine{
		cfg:          cfg,
		fragmentor:   fr,
		ids:          fragment.NewIDAllocator(),
		queue:        sendqueue.New(),
		demux:        demux,
		deserializer: deserializer,
		onObject:     onObject,
		sink:         sink,
	}, nil
}

// SendObject fragments payload and enqueues it for class, returning the
// object id it was assigned.
func (e *Engine) SendObject(class priority.Class, payload []byte) (uint64, error) {
	objectID := e.ids.Next()
	fragments, err := e.fragmentor.Fragment(objectID, payload)
	if err != nil {
		return 0, err
	}
	e.queue.Add(class, fragments)
	for _, f := range fragments {
		hdr := framing.Decode(f)
		blob := f[framing.HeaderLength:]
		e.sink.Notify(events.Event{
			Kind:        events.FragmentSent,
			Priority:    class,
			ObjectID:    objectID,
			FragmentID:  hdr.FragmentID,
			Start:       hdr.Start,
			End:         hdr.End,
			BlobLength:  len(blob),
			BlobPreview: blob,
		})
	}
	return objectID, nil
}

// ReadOrRegister pulls the next fragment due to be sent along with the
// priority it belongs to, or registers cb to fire the next time one
// becomes available. See sendqueue.Queue for the exact one-shot
// semantics.
func (e *Engine) ReadOrRegister(cb func()) (priority.Class, []byte, bool) {
	return e.queue.ReadOrRegister(cb)
}

// ClearSendQueue discards all queued outbound fragments.
func (e *Engine) ClearSendQueue() {
	e.queue.Clear()
}

// ProcessRawData feeds inbound bytes for class into the receive-side
// demuxer; data need not be aligned to fragment boundaries. Once an
// object completes, it is handed to the configured
// Deserializer and then to the configured ObjectHandler; a deserializer
// failure is reported as ferrors.ErrDeserializationError.
func (e *Engine) ProcessRawData(ctx context.Context, class priority.Class, data []byte) error {
	return e.demux.ProcessRawData(ctx, class, data, func(class priority.Class, objectID uint64, payload []byte) error {
		if e.deserializer == nil {
			if e.onObject != nil {
				e.onObject(class, objectID, payload)
			}
			return nil
		}
		obj, err := e.deserializer(payload)
		if err != nil {
			return err
		}
		if e.onObject != nil {
			e.onObject(class, objectID, obj)
		}
		return nil
	})
}

// PrepareForStreamConnect tolerates a resynchronized inbound stream on
// class; call it once per priority right after a transport reconnects.
func (e *Engine) PrepareForStreamConnect(class priority.Class) {
	e.demux.PrepareForStreamConnect(class)
}

// MemoryInUse reports the aggregate bytes the receive side currently
// holds across both priorities' in-progress objects.
func (e *Engine) MemoryInUse() int64 {
	return e.demux.MemoryInUse()
}

// SetMaxObjectSize updates the receive-side per-object size cap for
// both priorities.
func (e *Engine) SetMaxObjectSize(n int) {
	e.demux.SetMaxObjectSize(n)
}

// SetMaxMemory updates the receive-side aggregate memory cap.
func (e *Engine) SetMaxMemory(n int) {
	e.demux.SetMaxMemory(n)
}

// DisposeReceiveSide tears down class's reassembly buffer, discarding
// any bytes in flight. Call this when the session is closing so a
// straggling ProcessRawData call from the transport cannot deliver a
// stale object.
func (e *Engine) DisposeReceiveSide(class priority.Class) {
	e.demux.Dispose(class)
}

// IsDeserializationError reports whether err (or something it wraps) is
// the deserialization-failure sentinel.
func IsDeserializationError(err error) bool {
	return errors.Is(err, ferrors.ErrDeserializationError)
}
