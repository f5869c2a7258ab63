// Package sendqueue implements the priority send queue: two FIFO buffers
// of already-fragmented wire bytes, one per priority.Class, drained by a
// single reader through a pull-or-register interface. PromptResponse
// fragments are always offered ahead of Default fragments, but only at
// fragment boundaries — a Default fragment already handed to the reader
// is never interrupted mid-flight, since the reader only ever holds one
// complete fragment at a time.
package sendqueue

import (
	"sync"

	"go.uber.org/zap"

	"github.com/relayshell/fragmux/pkg/logging"
	"github.com/relayshell/fragmux/pkg/priority"
)

// Queue is the priority send queue described above. The zero value is
// an empty, ready-to-use queue; New returns one.
type Queue struct {
	mu       sync.Mutex
	buffers  [2][][]byte
	callback func()
	// handling guards against a callback that synchronously re-enters
	// Add from within its own execution; without it a second Add firing
	// while the first callback is still running could invoke the newly
	// registered callback twice for the same empty-to-non-empty edge.
	handling bool
}

// New returns an empty, ready-to-use priority send queue.
func New() *Queue {
	return &Queue{}
}

func classIndex(c priority.Class) int {
	if c == priority.PromptResponse {
		return 0
	}
	return 1
}

func (q *Queue) emptyLocked() bool {
	return len(q.buffers[0]) == 0 && len(q.buffers[1]) == 0
}

// Add appends fragments, in order, to class's buffer. If the queue was
// completely empty beforehand and a reader has a pull callback
// registered, that callback fires exactly once, outside of Add's lock so
// the callback is free to call back into ReadOrRegister.
func (q *Queue) Add(class priority.Class, fragments [][]byte) {
	if len(fragments) == 0 {
		return
	}

	q.mu.Lock()
	wasEmpty := q.emptyLocked()
	idx := classIndex(class)
	q.buffers[idx] = append(q.buffers[idx], fragments...)

	var cb func()
	if wasEmpty && q.callback != nil && !q.handling {
		cb = q.callback
		q.callback = nil
		q.handling = true
	}
	q.mu.Unlock()

	logging.Debug("queued fragments",
		zap.String("priority", class.String()),
		zap.Int("count", len(fragments)))

	if cb == nil {
		return
	}
	cb()
	q.mu.Lock()
	q.handling = false
	q.mu.Unlock()
}

// ReadOrRegister returns the next fragment due to be sent and which
// priority it belongs to, checking PromptResponse before Default. If
// nothing is queued, it atomically registers cb as the one-shot
// callback to invoke the next time the queue transitions from empty to
// non-empty, and returns ok=false. Registering a new callback replaces
// any previously registered one: there is exactly one reader, so only
// its most recent registration matters.
func (q *Queue) ReadOrRegister(cb func()) (class priority.Class, fragment []byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, class := range [2]priority.Class{priority.PromptResponse, priority.Default} {
		idx := classIndex(class)
		if len(q.buffers[idx]) > 0 {
			fragment = q.buffers[idx][0]
			q.buffers[idx] = q.buffers[idx][1:]
			return class, fragment, true
		}
	}

	q.callback = cb
	return 0, nil, false
}

// Clear discards all queued fragments and any registered callback,
// without invoking it. Used when a connection is torn down and queued
// data is no longer deliverable.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buffers[0] = nil
	q.buffers[1] = nil
	q.callback = nil
}

// Len returns the number of fragments currently queued for class.
func (q *Queue) Len(class priority.Class) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffers[classIndex(class)])
}
