// Package radio defines the hardware radio collaborator required by the
// slot-operation core, plus the radio-gate command logic that decides when
// the physical transceiver is actually switched on or off.
//
// The interface is deliberately narrow and synchronous, in the manner of
// the sx1231/sx1276 drivers: a handful of discrete primitives the slot
// executor sequences itself, rather than a channel-driven async API. The
// executor, not the driver, owns timing.
package radio

import "time"

// TxResult is the outcome of a Transmit call.
type TxResult int

const (
	TxOK TxResult = iota
	TxErr
	TxErrFatal
	TxCollision
	TxNoAck
)

func (r TxResult) String() string {
	switch r {
	case TxOK:
		return "OK"
	case TxErr:
		return "ERR"
	case TxErrFatal:
		return "ERR_FATAL"
	case TxCollision:
		return "COLLISION"
	case TxNoAck:
		return "NOACK"
	default:
		return "UNKNOWN"
	}
}

// Value identifies a scalar radio register or status value reachable via
// GetValue/SetValue, e.g. the last received RSSI or the current channel.
type Value int

const (
	ValueChannel Value = iota
	ValueRSSI
	ValueLastPacketTimestamp
)

// Radio is the hardware transceiver collaborator (§6 "Required from
// collaborators: Radio"). Implementations are not required to be
// concurrency-safe against concurrent callers: the executor is the sole
// caller during a slot, and foreground code must never invoke it per the
// shared-resource policy.
type Radio interface {
	// Prepare loads buf (length len(buf)) into the radio's transmit
	// buffer without transmitting. Returns false on failure.
	Prepare(buf []byte) bool
	// Transmit sends the previously prepared frame.
	Transmit() TxResult
	// On powers the transceiver up.
	On()
	// Off powers the transceiver down.
	Off()
	// ChannelClear samples the channel once and reports whether it is
	// free (for CCA).
	ChannelClear() bool
	// ReceivingPacket reports whether the radio is mid-reception of a
	// packet (preamble/sync detected).
	ReceivingPacket() bool
	// PendingPacket reports whether a fully-received packet is waiting
	// to be read out.
	PendingPacket() bool
	// Read copies up to len(buf) bytes of the pending packet into buf
	// and returns the number of bytes copied.
	Read(buf []byte) int
	// SetChannel tunes the radio to the given physical channel number.
	SetChannel(channel int)
	// GetValue reads a scalar value/status register.
	GetValue(v Value) (int, bool)
	// SetValue writes a scalar value/status register.
	SetValue(v Value, val int) bool
	// LastPacketTimestamp optionally returns the hardware-stamped
	// arrival time of the most recently received packet. Drivers
	// without this capability return false.
	LastPacketTimestamp() (time.Time, bool)
}

// OnCommand and OffCommand distinguish the three on/off command variants
// named in §4.4: START_OF_TIMESLOT and WITHIN_TIMESLOT are policy-gated,
// FORCE always takes effect.
type OnCommand int

const (
	OnStartOfTimeslot OnCommand = iota
	OnWithinTimeslot
	OnForce
)

type OffCommand int

const (
	OffEndOfTimeslot OffCommand = iota
	OffWithinTimeslot
	OffForce
)

// Policy is the RADIO_ON_DURING_TIMESLOT configuration constant: it
// decides whether the radio stays powered for the whole active slot
// (AlwaysOn) or is switched on only immediately around the packet
// (OnlyAroundPacket).
type Policy bool

const (
	// AlwaysOn keeps the radio powered for the whole slot once
	// START_OF_TIMESLOT fires, ignoring WITHIN_TIMESLOT commands.
	AlwaysOn Policy = true
	// OnlyAroundPacket defers powering the radio until a
	// WITHIN_TIMESLOT command, to save energy between slots.
	OnlyAroundPacket Policy = false
)

// Gate operates a Radio's power state according to Policy, collapsing the
// three on-commands/three off-commands into the two configurations
// described by §4.4 from a single code path.
type Gate struct {
	Radio  Radio
	Policy Policy
}

// On executes the given on-command against the policy.
func (g Gate) On(cmd OnCommand) {
	switch cmd {
	case OnForce:
		g.Radio.On()
	case OnStartOfTimeslot:
		if g.Policy == AlwaysOn {
			g.Radio.On()
		}
	case OnWithinTimeslot:
		if g.Policy == OnlyAroundPacket {
			g.Radio.On()
		}
	}
}

// Off executes the given off-command against the policy.
func (g Gate) Off(cmd OffCommand) {
	switch cmd {
	case OffForce:
		g.Radio.Off()
	case OffEndOfTimeslot:
		if g.Policy == AlwaysOn {
			g.Radio.Off()
		}
	case OffWithinTimeslot:
		if g.Policy == OnlyAroundPacket {
			g.Radio.Off()
		}
	}
}
