// Package txrx implements the TX (C6) and RX (C7) sub-procedures: the
// per-slot sequences of scheduled waits, radio operations, and drift
// bookkeeping run once a link has a bound packet (TX) or is listening
// (RX). Both are grounded on original_source's tsch_tx_slot/tsch_rx_slot,
// expressed here as ordinary Go functions taking a Config and a TXDeps or
// RXDeps value, which suspend inside ticks.ScheduleAndYield rather than
// being written as a resumable coroutine.
package txrx

import "github.com/ieee802154e/tsch/ticks"

// Timing is the ts[] table: indexed constants in hardware-timer ticks.
type Timing struct {
	TxOffset        int64
	RxOffset        int64
	RxWait          int64
	RxAckDelay      int64
	TxAckDelay      int64
	AckWait         int64
	MaxTx           int64
	MaxAck          int64
	TimeslotLength  int64
}

// Config bundles the constants the TX/RX sub-procedures need beyond the
// timing table.
type Config struct {
	Timing Timing

	CCAEnabled         bool
	CCAOffset          int64
	CCADuration        int64
	RadioDelayBeforeTX int64
	RadioDelayBeforeRX int64
	DetectDelay        int64

	MaxFrameRetries   int
	SyncBound         int64 // one quarter of the RX-wait window, per §4.6 step 9
	MeasurementError  int64

	// TicksPerUsNumerator/Denominator convert microsecond IE values to
	// ticks: ticks = us * Numerator / Denominator.
	TicksPerUsNumerator   int64
	TicksPerUsDenominator int64

	// TicksPerByte converts an over-the-air frame length to its
	// transmission duration in ticks, for packetAirDuration.
	TicksPerByte int64
}

// waitUntil busy-polls pred until it reports true or the timer reaches
// deadline, whichever comes first. This realizes the bounded busy-waits
// named throughout §4.6/§4.7 ("wait for receiving_packet up to ...").
func waitUntil(timer ticks.Timer, deadline ticks.Count, pred func() bool) (ticks.Count, bool) {
	for {
		if pred() {
			return timer.Now(), true
		}
		if ticks.Sub(timer.Now(), deadline) >= 0 {
			return timer.Now(), false
		}
	}
}
