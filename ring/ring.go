// Package ring implements the bounded single-producer/single-consumer
// queues C9 requires: the slot executor (producer) reserves a slot ahead
// of doing work whose outcome is not yet known, writes into it only if
// that work actually produces something to publish, and commits with
// release semantics; a foreground consumer drains committed entries with
// acquire semantics. The power-of-two sizing and index-masking approach
// follows the teacher's ringBuffer, adapted from its sorted-insert
// envelope to this reserve/commit/pop protocol.
package ring

import "sync/atomic"

// Buffer is a fixed-capacity SPSC ring. The zero value is not usable; construct
// with NewBuffer. E is typically a pointer or small value type copied by Pop.
type Buffer[E any] struct {
	slots []E
	mask  uint32

	// reserved is producer-private: the executor is the sole writer and
	// never reserves concurrently with itself.
	reserved uint32

	// write is advanced by the producer with a release store once a
	// reserved slot's payload is fully written; read by the consumer
	// with an acquire load.
	write atomic.Uint32

	// read is advanced by the consumer with a release store; read by
	// the producer with an acquire load to compute free capacity.
	read atomic.Uint32
}

// NewBuffer constructs a Buffer with the given capacity, which must be a
// power of two.
func NewBuffer[E any](size int) *Buffer[E] {
	if size <= 0 || size&(size-1) != 0 {
		panic("ring: size must be a power of 2")
	}
	return &Buffer[E]{slots: make([]E, size), mask: uint32(size - 1)}
}

// Cap returns the buffer's fixed capacity.
func (b *Buffer[E]) Cap() int { return len(b.slots) }

// Len returns the number of committed, not-yet-popped entries.
func (b *Buffer[E]) Len() int {
	return int(b.write.Load() - b.read.Load())
}

// Reserve claims the next slot for the producer to populate, returning a
// pointer into the backing array and true, or false if the ring is full
// (reserved but possibly uncommitted entries already fill it). The
// producer must either Commit or Cancel before reserving again.
func (b *Buffer[E]) Reserve() (*E, bool) {
	read := b.read.Load()
	if b.reserved-read >= uint32(len(b.slots)) {
		return nil, false
	}
	slot := &b.slots[b.reserved&b.mask]
	b.reserved++
	return slot, true
}

// Cancel abandons the single outstanding reservation without publishing
// it, restoring its capacity to future Reserve calls. Matches the
// peek-put semantics where a reservation made to preflight space does not
// always end in a commit.
func (b *Buffer[E]) Cancel() { b.reserved-- }

// Commit publishes the oldest outstanding reservation, making it visible
// to Pop. Must be called only after the slot returned by the matching
// Reserve has been fully written.
func (b *Buffer[E]) Commit() { b.write.Add(1) }

// Pop removes and returns the oldest committed entry, or the zero value
// and false if none is available.
func (b *Buffer[E]) Pop() (E, bool) {
	var zero E
	read := b.read.Load()
	write := b.write.Load()
	if read == write {
		return zero, false
	}
	v := b.slots[read&b.mask]
	b.read.Store(read + 1)
	return v, true
}
