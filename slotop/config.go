// Package slotop implements the slot executor (C8): the single cooperative
// procedure re-entered by the hardware timer that, each iteration, binds a
// link's packet and neighbor, dispatches the TX or RX sub-procedure, checks
// for desync, and schedules the next wake-up. It is grounded on
// original_source's tsch_slot_operation, with the re-entrant timer-callback
// shape adapted from the teacher's go-eventloop.Loop: a struct that owns all
// persistent state and exposes a handful of methods safe for a single
// callback chain to drive.
package slotop

import (
	"github.com/ieee802154e/tsch/hopping"
	"github.com/ieee802154e/tsch/neighbor"
	"github.com/ieee802154e/tsch/radio"
	"github.com/ieee802154e/tsch/txrx"
)

// Config bundles the ambient constants the executor and its TX/RX
// sub-procedures need, beyond the timing table already carried by
// txrx.Config.
type Config struct {
	TXRX txrx.Config

	HopSequence hopping.Sequence
	RadioPolicy radio.Policy

	// IsCoordinator exempts this node from the desync-disassociation check
	// (§4.8 step 5): a coordinator is its own time source.
	IsCoordinator bool

	// DesyncThresholdSlots is the precomputed slot-count threshold beyond
	// which DIFF(current_asn, last_sync_asn) forces disassociation. The
	// spec derives this from `100 * SLOTS(DESYNC_THRESHOLD/100,
	// timeslot_length)`; SLOTS() is a macro over a deployment's physical
	// time unit this core never otherwise needs, so callers compute the
	// slot count once from their own DESYNC_THRESHOLD and timeslot length
	// and supply it directly here (see design notes).
	DesyncThresholdSlots int64

	NodeAddress neighbor.Address

	SecurityOn bool
}

// Option configures a Machine at construction, following the functional-
// options idiom the teacher's logiface package uses throughout.
type Option func(*Machine)

// WithOnDisassociate registers the callback invoked when the desync check
// trips; this is one of the two notifications the spec allows to cross the
// executor boundary.
func WithOnDisassociate(fn func()) Option {
	return func(m *Machine) { m.onDisassociate = fn }
}

// WithOnTXResult registers a callback fired after every completed TX
// sub-procedure, the other boundary-crossing notification the spec names.
func WithOnTXResult(fn func(txrx.TXOutcome, *neighbor.Packet, *neighbor.Neighbor)) Option {
	return func(m *Machine) { m.onTXResult = fn }
}
