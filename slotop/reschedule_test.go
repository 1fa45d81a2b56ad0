package slotop

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ieee802154e/tsch/asn"
	"github.com/ieee802154e/tsch/ticks"
)

func TestComputeRescheduleAdvancesBySlotsUntil(t *testing.T) {
	step := computeReschedule(100, ticks.Count(1000), asn.Number(5), 3, 0, 0)
	require.Equal(t, asn.Number(8), step.NewASN)
	require.Equal(t, int64(300), step.WakeOffset)
	require.Equal(t, ticks.Count(1300), step.NewSlotStart)
}

func TestComputeRescheduleTreatsZeroSlotsUntilAsOne(t *testing.T) {
	step := computeReschedule(100, ticks.Count(1000), asn.Number(5), 0, 0, 0)
	require.Equal(t, asn.Number(6), step.NewASN)
	require.Equal(t, int64(100), step.WakeOffset)
}

func TestComputeRescheduleFoldsDriftIntoWakeOffset(t *testing.T) {
	step := computeReschedule(100, ticks.Count(1000), asn.Number(5), 2, -15, 0)
	require.Equal(t, int64(185), step.WakeOffset)
	require.Equal(t, ticks.Count(1185), step.NewSlotStart)
}

// Per the spec's literal step d/e split, adaptive compensation folds into
// the bookkeeping slot-start value but is excluded from WakeOffset, the
// value callers pass to the timer-arming call.
func TestComputeRescheduleExcludesAdaptiveCompensationFromWakeOffset(t *testing.T) {
	step := computeReschedule(100, ticks.Count(1000), asn.Number(5), 2, 0, 7)
	require.Equal(t, int64(200), step.WakeOffset)
	require.Equal(t, ticks.Count(1207), step.NewSlotStart)
}
