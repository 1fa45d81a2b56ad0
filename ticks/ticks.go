// Package ticks implements the deadline-safe timing primitives the slot
// executor depends on: wrap-aware comparison against the hardware timer,
// scheduling a future wake-up with a guard subtracted, and a bounded
// busy-wait until an absolute instant.
//
// All arithmetic here is in hardware-timer ticks. The timer is modeled as a
// finite-width counter (Width bits) that wraps; every function assumes at
// most one wrap occurs between any two instants it compares, which holds as
// long as callers re-enter frequently relative to the timer's period.
package ticks

import "time"

// Count is a hardware-timer tick count. It is intentionally a plain
// unsigned integer of fixed bit width (Width), matching the C source's
// rtimer_clock_t: arithmetic on it must wrap the way a real hardware
// counter wraps, which a signed or arbitrary-precision type would not do
// without extra masking at every call site.
type Count uint32

// Width is the bit width of the hardware timer counter. 32 bits comfortably
// covers both the 32kHz and 1MHz reference timers named in the spec.
const Width = 32

// Timer is the hardware-timer collaborator required by §6: a free-running
// counter plus the ability to arm a one-shot callback at an absolute tick
// value. Implementations must guarantee Set takes at least Guard ticks to
// take effect, mirroring the "minimum arming latency" contract.
type Timer interface {
	// Now returns the current free-running counter value.
	Now() Count
	// Set arms the timer to invoke fn once the counter reaches at,
	// replacing any previously armed callback. It reports whether arming
	// succeeded (a real driver can fail if at has already elapsed by the
	// time the request reaches hardware).
	Set(at Count, fn func()) bool
	// Guard is the minimum latency, in ticks, required to safely arm a
	// future callback. Slot scheduling subtracts this from every
	// deadline so the executor wakes early enough to spin to the exact
	// instant.
	Guard() Count
}

// CheckMiss reports whether the instant ref+offset lies at or before now,
// treating Count as a Width-bit wrapping counter with at most one wrap
// between ref and now. It partitions by wrap parity: if now and the target
// both lie on the same side of a wrap they compare directly; otherwise
// whichever one has already wrapped is later.
//
// Equivalently, and this is the property tests check: CheckMiss(ref,
// offset, now) == (now-ref) mod 2^Width >= offset, for any offset that fits
// in Width bits.
func CheckMiss(ref Count, offset int64, now Count) bool {
	elapsed := int64(uint32(now - ref))
	return elapsed >= offset
}

// Schedule computes now := timer.Now() and, unless the deadline ref+offset
// minus the timer's guard has already passed, arms the timer to invoke fn
// at that absolute instant. It reports whether the timer was armed; the
// caller treats false as a missed deadline and must not assume fn will run.
func Schedule(timer Timer, ref Count, offset int64, fn func()) bool {
	now := timer.Now()
	guarded := offset - int64(timer.Guard())
	if CheckMiss(ref, guarded, now) {
		return false
	}
	return timer.Set(ref.add(offset), fn)
}

func (c Count) add(offset int64) Count {
	return Count(int64(c) + offset)
}

// Add returns c advanced by offset ticks (which may be negative), wrapping
// the same way the hardware counter wraps.
func (c Count) Add(offset int64) Count { return c.add(offset) }

// Sub returns a-b as a signed tick delta, resolving wraparound under the
// same at-most-one-wrap assumption as CheckMiss.
func Sub(a, b Count) int64 {
	return int64(int32(a - b))
}

// BusyWaiter abstracts the spin-until-deadline primitive used by
// ScheduleAndYield. Production code spins on Timer.Now(); tests substitute a fake
// that advances a simulated clock instead of burning CPU.
type BusyWaiter interface {
	// SpinUntil blocks (by whatever means the implementation chooses)
	// until the timer reaches at least the given absolute tick.
	SpinUntil(timer Timer, at Count)
}

// RealBusyWait spins on Timer.Now() until the deadline, sampling the timer
// in a tight loop without yielding the processor. This is the production
// BusyWaiter; the hard real-time deadlines in the spec are tens of
// microseconds, well below what a blocking sleep call could hit reliably.
type RealBusyWait struct {
	// TickDuration records the wall-clock length of one Count unit.
	// SpinUntil does not read it.
	TickDuration time.Duration
}

// SpinUntil implements BusyWaiter.
func (w RealBusyWait) SpinUntil(timer Timer, at Count) {
	for Sub(timer.Now(), at) < 0 {
		// deliberately tight: deadlines are tens of microseconds
	}
}

// ScheduleAndYield implements §4.1's schedule_and_yield: it arms a wake-up
// at ref+offset-Guard, cooperatively suspends the caller until that
// callback fires, then busy-waits the remaining distance to the exact
// instant ref+offset. The guard subtraction ensures the executor wakes
// slightly early so it can spin to the exact instant.
//
// The suspension point is the channel receive: on a real target this is
// where the protothread parks until the timer ISR re-enters it. When
// Schedule reports a missed deadline, the receive is skipped entirely and
// control falls straight through to the busy-wait, matching "a
// missed-guard outcome proceeds directly to the busy-wait".
func ScheduleAndYield(timer Timer, wait BusyWaiter, ref Count, offset int64) {
	woken := make(chan struct{})
	if Schedule(timer, ref, offset-int64(timer.Guard()), func() { close(woken) }) {
		<-woken
	}
	wait.SpinUntil(timer, ref.add(offset))
}
