package fragment

import "sync/atomic"

// IDAllocator hands out strictly increasing object ids, unique within
// one allocator, starting at 1. Zero is never allocated so it can keep meaning "no
// object in progress" in the reassembly state machine.
type IDAllocator struct {
	next uint64
}

// NewIDAllocator returns an allocator ready to hand out object id 1 on
// its first call to Next.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// Next returns the next object id. Safe for concurrent use.
func (a *IDAllocator) Next() uint64 {
	return atomic.AddUint64(&a.next, 1)
}
