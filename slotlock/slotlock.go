// Package slotlock implements the cross-context handshake between the
// interrupt-context slot executor and foreground (non-interrupt) callers.
//
// Unlike a conventional mutex, the executor side of this lock never
// blocks: it is a single cooperative procedure re-entered by the hardware
// timer, and it honors a request flag only at the top of its loop. A
// foreground acquirer instead spins (cooperatively yielding) until the
// executor either skips a slot for it or it loses a race to a peer
// acquirer. This file's atomic CAS shape follows the teacher's
// FastState: state transitions are lock-free, with no transition validity
// checking on the hot path, trusting the protocol to only attempt
// reachable transitions.
package slotlock

import (
	"sync/atomic"
)

// Lock is the one-bit handshake described by the spec's invariant I1/I2:
// tsch_in_slot_operation, tsch_locked, and tsch_lock_requested packed as
// three independently-addressable atomics.
type Lock struct {
	locked          atomic.Bool
	requested       atomic.Bool
	inSlotOperation atomic.Bool
}

// Yielder cooperatively yields the calling goroutine while Acquire spins,
// so tests (and a future non-OS-thread target) can substitute something
// other than runtime.Gosched.
type Yielder interface{ Yield() }

// IsLocked reports whether a foreground caller currently holds the lock.
func (l *Lock) IsLocked() bool { return l.locked.Load() }

// InSlotOperation reports whether the executor is presently inside a slot
// iteration. The executor itself is the only writer of this flag.
func (l *Lock) InSlotOperation() bool { return l.inSlotOperation.Load() }

// EnterSlotOperation marks the executor as having begun a slot iteration.
// Invariant I1 requires this never be called while the lock is held; the
// executor enforces that by skipping the slot (see ShouldSkipSlot)
// whenever a request is pending, never by contending for the lock itself.
func (l *Lock) EnterSlotOperation() { l.inSlotOperation.Store(true) }

// LeaveSlotOperation clears the in-slot-operation flag at the end of an
// iteration.
func (l *Lock) LeaveSlotOperation() { l.inSlotOperation.Store(false) }

// ShouldSkipSlot implements invariant I2: if a lock was requested at the
// top of this iteration, the executor must skip the slot so the requester
// can make progress within one slot length.
func (l *Lock) ShouldSkipSlot() bool { return l.requested.Load() }

// Acquire is only ever called from outside the interrupt context. It
// raises the request flag, then spins (yielding cooperatively) while the
// executor is mid-slot. If another foreground acquirer won the lock in
// the meantime, Acquire fails and clears its own request. Otherwise it
// takes the lock, clears the request, and returns true.
//
// Because the executor checks ShouldSkipSlot at the top of every
// iteration, Acquire is guaranteed to terminate within one slot length:
// either the executor elides a slot and leaves InSlotOperation false long
// enough for this call to proceed, or it was already false.
func (l *Lock) Acquire(y Yielder) bool {
	l.requested.Store(true)
	for l.InSlotOperation() {
		y.Yield()
	}
	if l.locked.CompareAndSwap(false, true) {
		l.requested.Store(false)
		return true
	}
	l.requested.Store(false)
	return false
}

// Release clears the lock, allowing the executor and other foreground
// acquirers to proceed.
func (l *Lock) Release() { l.locked.Store(false) }
