// Package neighbor models the per-neighbor transmit queue and CSMA
// backoff bookkeeping the slot-operation core treats as an external
// collaborator. The keyed-state-per-entity shape (a map from a key to a
// small bundle of counters) follows the teacher's catrate.Limiter
// categoryData idiom; the atomics and cleanup worker there exist to
// protect concurrent access from arbitrary goroutines, which this
// package does not need: every mutation here happens either from inside
// a slot (the sole executor goroutine) or from foreground code holding
// the slotlock, so a plain map suffices.
package neighbor

import "github.com/ieee802154e/tsch/radio"

// Address is an IEEE 802.15.4 extended (64-bit) address.
type Address [8]byte

// Pseudo-neighbor addresses distinguished from ordinary unicast peers.
var (
	AddressEB        = Address{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe}
	AddressBroadcast = Address{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

// Result mirrors the radio's transmit outcome; a Packet records the most
// recent one it was subject to.
type Result = radio.TxResult

// Packet is a queued outbound frame plus the bookkeeping the TX
// sub-procedure needs across retries.
type Packet struct {
	QueuedFrame   []byte
	HeaderLen     int
	SyncIEOffset  int // -1 if this packet carries no Sync-IE
	Transmissions int
	LastResult    Result
}

// IsEB reports whether this packet carries a pre-located Sync-IE offset,
// i.e. it is an enhanced beacon whose ASN field the TX procedure must
// rewrite immediately before transmission.
func (p *Packet) IsEB() bool { return p.SyncIEOffset >= 0 }

// Neighbor is a transmit-queue owner: either an ordinary peer, the EB
// pseudo-neighbor, or the broadcast pseudo-neighbor.
type Neighbor struct {
	Address         Address
	IsBroadcast     bool
	IsTimeSource    bool
	BackoffWindow   int
	BackoffExponent int
	Queue           []*Packet
}

const (
	// MinBackoffExponent and MaxBackoffExponent bound the exponential
	// backoff applied on shared-link failures.
	MinBackoffExponent = 1
	MaxBackoffExponent = 7
)

// BackoffReset clears a neighbor's CSMA state back to the minimum, as
// done after a successful shared-link transmission or whenever its queue
// drains empty.
func (n *Neighbor) BackoffReset() {
	n.BackoffExponent = MinBackoffExponent
	n.BackoffWindow = 0
}

// BackoffInc grows the exponent (capped) and redraws the window uniformly
// in [0, 2^exponent). draw is injected so callers can substitute a
// deterministic source in tests.
func (n *Neighbor) BackoffInc(draw func(n int) int) {
	if n.BackoffExponent < MaxBackoffExponent {
		n.BackoffExponent++
	}
	span := 1 << uint(n.BackoffExponent)
	n.BackoffWindow = draw(span)
}

// LinkInfo is the minimal identity of a schedule entry that the queue
// collaborator needs in order to filter candidate packets by the link
// that will carry them (spec §4.5 step 3's "packet whose link-match
// permits transmission in this slot"). It is a plain value copied out of
// link.Link by the caller rather than that type itself, since link
// already imports this package for neighbor.Address and Queues, and a
// back-import would cycle.
type LinkInfo struct {
	SlotOffset    uint16
	ChannelOffset uint16
	Shared        bool
}

// Queues is the transmit-queue collaborator required by §6: lookup,
// per-link packet selection, removal, emptiness, and backoff bookkeeping.
type Queues interface {
	// GetNbr looks up a neighbor by address.
	GetNbr(addr Address) (*Neighbor, bool)
	// GetPacketForNbr returns the head-of-line packet for a specific
	// neighbor's queue eligible for transmission on the given link, if
	// any. The current in-memory Table does not filter by link, but the
	// parameter is part of the contract so a schedule-aware store can.
	GetPacketForNbr(nbr *Neighbor, l LinkInfo) (*Packet, bool)
	// GetUnicastPacketForAny scans unicast neighbors for any with a
	// ready packet eligible for the given link, used for the
	// broadcast-link fallback scan.
	GetUnicastPacketForAny(l LinkInfo) (*Neighbor, *Packet, bool)
	// RemovePacketFromQueue removes the head-of-line packet from a
	// neighbor's queue after the TX sub-procedure disposes of it.
	RemovePacketFromQueue(nbr *Neighbor)
	// IsEmpty reports whether a neighbor's queue is empty.
	IsEmpty(nbr *Neighbor) bool
	// BackoffReset resets a neighbor's CSMA state.
	BackoffReset(nbr *Neighbor)
	// BackoffInc grows a neighbor's CSMA state on failure.
	BackoffInc(nbr *Neighbor)
	// UpdateAllBackoffWindows decrements the backoff window of every
	// neighbor sharing the given link address, called once per slot
	// that used a shared link.
	UpdateAllBackoffWindows(addr Address)
}
