package events

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/relayshell/fragmux/pkg/logging"
)

const blobPreviewLimit = 16

// ZapSink logs every event through pkg/logging and keeps running atomic
// counters per Kind, periodically dumping a summary line. The counters
// use a plain atomic-counter-plus-ticker shape for lightweight
// in-process metrics, without pulling in a separate metrics dependency
// for four counters.
type ZapSink struct {
	sent      atomic.Uint64
	received  atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64

	cancel context.CancelFunc
}

// NewZapSink starts a ZapSink that logs a summary line every interval.
// Callers should call Close when the sink is no longer needed to stop
// the background ticker.
func NewZapSink(interval time.Duration) *ZapSink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &ZapSink{cancel: cancel}
	if interval > 0 {
		go s.reportLoop(ctx, interval)
	}
	return s
}

// Close stops the background summary ticker. Safe to call more than
// once.
func (s *ZapSink) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *ZapSink) reportLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logging.Info("fragment engine activity",
				zap.Uint64("sent", s.sent.Load()),
				zap.Uint64("received", s.received.Load()),
				zap.Uint64("completed", s.completed.Load()),
				zap.Uint64("rejected", s.rejected.Load()))
		}
	}
}

// Notify implements Sink.
func (s *ZapSink) Notify(e Event) {
	fields := []zap.Field{
		zap.String("priority", e.Priority.String()),
		zap.Uint64("objectID", e.ObjectID),
		zap.Uint64("fragmentID", e.FragmentID),
		zap.Bool("start", e.Start),
		zap.Bool("end", e.End),
		zap.Int("blobLength", e.BlobLength),
	}
	if n := len(e.BlobPreview); n > 0 {
		limit := n
		if limit > blobPreviewLimit {
			limit = blobPreviewLimit
		}
		fields = append(fields, zap.Binary("blobPreview", e.BlobPreview[:limit]))
	}

	switch e.Kind {
	case FragmentSent:
		s.sent.Add(1)
		logging.Debug("fragment sent", fields...)
	case FragmentReceived:
		s.received.Add(1)
		logging.Debug("fragment received", fields...)
	case ObjectComplete:
		s.completed.Add(1)
		logging.Debug("object complete", fields...)
	case ObjectRejected:
		s.rejected.Add(1)
		if e.Err != nil {
			fields = append(fields, zap.Error(e.Err))
		}
		logging.Warn("object rejected", fields...)
	}
}
