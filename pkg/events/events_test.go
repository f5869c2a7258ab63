package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relayshell/fragmux/pkg/priority"
)

func TestNopSinkDiscardsEverything(t *testing.T) {
	var s Sink = NopSink{}
	require.NotPanics(t, func() {
		s.Notify(Event{Kind: FragmentSent})
	})
}

func TestZapSinkCountsByKind(t *testing.T) {
	s := NewZapSink(0)
	defer s.Close()

	s.Notify(Event{Kind: FragmentSent, Priority: priority.Default})
	s.Notify(Event{Kind: FragmentSent, Priority: priority.Default})
	s.Notify(Event{Kind: FragmentReceived, Priority: priority.PromptResponse})
	s.Notify(Event{Kind: ObjectComplete, Priority: priority.PromptResponse})
	s.Notify(Event{Kind: ObjectRejected, Priority: priority.Default, Err: require.AnError})

	require.EqualValues(t, 2, s.sent.Load())
	require.EqualValues(t, 1, s.received.Load())
	require.EqualValues(t, 1, s.completed.Load())
	require.EqualValues(t, 1, s.rejected.Load())
}

func TestZapSinkReportLoopStopsOnClose(t *testing.T) {
	s := NewZapSink(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	s.Close()
	// Closing twice must not panic.
	require.NotPanics(t, s.Close)
}

func TestKindStringCoversAllKinds(t *testing.T) {
	for _, k := range []Kind{FragmentSent, FragmentReceived, ObjectComplete, ObjectRejected} {
		require.NotEqual(t, "unknown", k.String())
	}
}
