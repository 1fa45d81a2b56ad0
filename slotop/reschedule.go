package slotop

import (
	"github.com/ieee802154e/tsch/asn"
	"github.com/ieee802154e/tsch/ticks"
)

// rescheduleStep is the pure core of §4.8 step 6b-d, isolated from the
// timer-arming side effect per the design notes' call to realize the
// reschedule loop as a pure function of (prev_slot_start, schedule, now)
// testable without a real or fake hardware timer.
type rescheduleStep struct {
	NewASN       asn.Number
	NewSlotStart ticks.Count
	WakeOffset   int64
}

// computeReschedule advances currentASN by slotsUntil (never less than
// one), computes the wake offset from the timeslot length and any pending
// drift correction, and folds in the adaptive-compensation term into the
// bookkeeping slot-start value — but, matching the spec's literal step d/e
// split, NOT into the value callers pass to the timer-arming call, which
// uses wakeOffset alone.
func computeReschedule(timeslotLength int64, prevSlotStart ticks.Count, currentASN asn.Number, slotsUntil uint64, driftCorrection int64, adaptiveCompensation int64) rescheduleStep {
	if slotsUntil == 0 {
		slotsUntil = 1
	}
	wakeOffset := int64(slotsUntil)*timeslotLength + driftCorrection
	return rescheduleStep{
		NewASN:       currentASN.Add(slotsUntil),
		NewSlotStart: prevSlotStart.Add(wakeOffset + adaptiveCompensation),
		WakeOffset:   wakeOffset,
	}
}
