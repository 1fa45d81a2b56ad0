package ticks

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckMissMonotonicity(t *testing.T) {
	cases := []struct {
		name     string
		ref      Count
		offset   int64
		now      Count
		expected bool
	}{
		{"exact", 1000, 50, 1050, true},
		{"not yet", 1000, 50, 1049, false},
		{"past", 1000, 50, 2000, true},
		{"wrap around", Count(1<<32 - 10), 50, 45, true},
		{"wrap not yet", Count(1<<32 - 10), 50, 35, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.expected, CheckMiss(c.ref, c.offset, c.now))
		})
	}
}

// fakeTimer is a deterministic Timer used by this package's tests; it has
// no wall-clock dependency.
type fakeTimer struct {
	now     Count
	guard   Count
	armedAt Count
	armedFn func()
	armed   bool
}

func newFakeTimer(guard Count) *fakeTimer { return &fakeTimer{guard: guard} }

func (f *fakeTimer) Now() Count   { return f.now }
func (f *fakeTimer) Guard() Count { return f.guard }

func (f *fakeTimer) Set(at Count, fn func()) bool {
	if Sub(f.now, at) >= 0 {
		return false
	}
	f.armedAt = at
	f.armedFn = fn
	f.armed = true
	return true
}

// advanceTo moves the simulated clock forward and fires the armed
// callback, if any, once it is due.
func (f *fakeTimer) advanceTo(now Count) {
	f.now = now
	if f.armed && Sub(f.now, f.armedAt) >= 0 {
		fn := f.armedFn
		f.armed = false
		fn()
	}
}

func TestScheduleArmsWhenDeadlineAhead(t *testing.T) {
	timer := newFakeTimer(5)
	timer.now = 1000 // ref is the current slot start: always <= now
	ok := Schedule(timer, 1000, 100, func() {})
	require.True(t, ok)
	require.True(t, timer.armed)
	require.Equal(t, Count(1100), timer.armedAt)
}

func TestScheduleMissesPastDeadline(t *testing.T) {
	timer := newFakeTimer(5)
	timer.now = 2000
	ok := Schedule(timer, 1000, 100, func() {})
	require.False(t, ok)
	require.False(t, timer.armed)
}

type instantWaiter struct{ timer *fakeTimer }

func (w instantWaiter) SpinUntil(timer Timer, at Count) {
	w.timer.advanceTo(at)
}

// synchronousTimer fires its armed callback immediately upon Set, modeling
// a zero-latency ISR for deterministic single-goroutine tests of
// ScheduleAndYield's composition of Schedule + the channel suspension +
// SpinUntil.
type synchronousTimer struct{ *fakeTimer }

func (s synchronousTimer) Set(at Count, fn func()) bool {
	if !s.fakeTimer.Set(at, fn) {
		return false
	}
	s.fakeTimer.advanceTo(at)
	return true
}

func TestScheduleAndYieldHitsExactInstant(t *testing.T) {
	timer := synchronousTimer{newFakeTimer(5)}
	timer.now = 1000
	ScheduleAndYield(timer, instantWaiter{timer.fakeTimer}, 1000, 100)
	require.Equal(t, Count(1100), timer.now)
}

func TestScheduleAndYieldFallsThroughOnMiss(t *testing.T) {
	timer := synchronousTimer{newFakeTimer(5)}
	timer.now = 2000
	ScheduleAndYield(timer, instantWaiter{timer.fakeTimer}, 1000, 100)
	require.Equal(t, Count(1100), timer.now)
}
