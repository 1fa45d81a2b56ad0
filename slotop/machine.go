package slotop

import (
	"github.com/ieee802154e/tsch/asn"
	"github.com/ieee802154e/tsch/frame"
	"github.com/ieee802154e/tsch/link"
	"github.com/ieee802154e/tsch/neighbor"
	"github.com/ieee802154e/tsch/radio"
	"github.com/ieee802154e/tsch/ring"
	"github.com/ieee802154e/tsch/slotlock"
	"github.com/ieee802154e/tsch/tschlog"
	"github.com/ieee802154e/tsch/ticks"
	"github.com/ieee802154e/tsch/timesync"
	"github.com/ieee802154e/tsch/txrx"
)

// Deps bundles the collaborators the executor requires from outside: the
// hardware timer, the radio, the transmit-queue/schedule/framing/security/
// timesync capability sets listed in §6, and the logging sink.
type Deps struct {
	Timer  ticks.Timer
	Wait   ticks.BusyWaiter
	Radio  radio.Radio
	Queues neighbor.Queues

	Framer   frame.Framer
	Security frame.Security

	Sync        timesync.Collaborator
	DriftPolicy timesync.AckDrift

	Schedule Schedule
	Log      *tschlog.Logger

	DequeuedRing *ring.Buffer[*neighbor.Packet]
	InputRing    *ring.Buffer[frame.InputPacket]
}

// Machine owns every piece of persistent, process-wide state the spec
// names in §6 and is the single instance a timer callback dispatches
// through, replacing the original's static globals per the design notes'
// "single SlotMachine instance" realization.
type Machine struct {
	cfg  Config
	deps Deps
	lock slotlock.Lock

	associated bool

	currentSlotStart ticks.Count
	currentASN       asn.Number
	lastSyncASN      asn.Number

	currentLink *link.Link
	backupLink  *link.Link

	currentChannel        int
	driftCorrection       int64
	isDriftCorrectionUsed bool

	onDisassociate func()
	onTXResult     func(txrx.TXOutcome, *neighbor.Packet, *neighbor.Neighbor)
}

// New constructs a Machine. The caller must still call Sync (once
// association completes) and Start before the first slot can run.
func New(cfg Config, deps Deps, opts ...Option) *Machine {
	m := &Machine{cfg: cfg, deps: deps}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsLocked implements the §6 external interface.
func (m *Machine) IsLocked() bool { return m.lock.IsLocked() }

// GetLock implements the §6 external interface: acquire acquires the
// cross-context lock, blocking the calling goroutine (via y) until the
// executor yields or a peer acquirer wins the race.
func (m *Machine) GetLock(y slotlock.Yielder) bool { return m.lock.Acquire(y) }

// ReleaseLock implements the §6 external interface.
func (m *Machine) ReleaseLock() { m.lock.Release() }

// CalculateChannel implements the §6 external interface.
func (m *Machine) CalculateChannel(a asn.Number, offset int) int {
	return m.cfg.HopSequence.Channel(a, offset)
}

// CurrentASN exposes the executor's current ASN, mainly for tests and
// foreground diagnostics.
func (m *Machine) CurrentASN() asn.Number { return m.currentASN }

// Associated reports whether the state machine still considers itself
// part of a TSCH network.
func (m *Machine) Associated() bool { return m.associated }

// Sync implements slot_operation_sync: the association/scan collaborator
// calls this once synchronization is achieved, seeding the ASN and slot
// clock and marking the machine associated. Start must still be called to
// arm the first wake-up.
func (m *Machine) Sync(nextSlotStart ticks.Count, nextSlotASN asn.Number) {
	m.currentSlotStart = nextSlotStart
	m.currentASN = nextSlotASN
	m.lastSyncASN = nextSlotASN
	m.currentLink = nil
	m.associated = true
}

// Start implements slot_operation_start: arm the first wake-up from the
// schedule, the same reschedule logic §4.8 step 6 runs between slots.
func (m *Machine) Start() {
	m.scheduleNext(false)
}

// OnTimerFire is the hardware-timer re-entry point: one full executor
// iteration (§4.8), run to completion or to its next schedule_and_yield
// suspension inside the TX/RX sub-procedures.
func (m *Machine) OnTimerFire() {
	// 1. Not associated: the state machine has already terminated.
	if !m.associated {
		return
	}

	// 2. Skip the slot (still advancing the schedule below) if there is
	// no bound link or a foreground acquirer is waiting.
	skip := m.currentLink == nil || m.lock.ShouldSkipSlot()

	var activeLink link.Link
	var pkt *neighbor.Packet
	var nbr *neighbor.Neighbor
	activeSlot := false

	if !skip {
		// 3. Enter the slot; reset drift state; bind packet/neighbor.
		m.lock.EnterSlotOperation()
		m.driftCorrection = 0
		m.isDriftCorrectionUsed = false

		var boundLink link.Link
		boundLink, pkt, nbr = link.ApplyBackupLinkRule(*m.currentLink, m.backupLink, m.deps.Queues)
		activeLink = boundLink

		// 4. Dispatch the active slot, if any.
		activeSlot = pkt != nil || activeLink.LinkOptions.Has(link.RX)
		if activeSlot {
			m.currentChannel = m.cfg.HopSequence.Channel(m.currentASN, int(activeLink.ChannelOffset))
			m.deps.Radio.SetChannel(m.currentChannel)
			gate := radio.Gate{Radio: m.deps.Radio, Policy: m.cfg.RadioPolicy}
			gate.On(radio.OnStartOfTimeslot)

			if pkt != nil {
				m.dispatchTX(gate, activeLink, pkt, nbr)
			} else {
				m.dispatchRX(gate)
			}

			gate.Off(radio.OffEndOfTimeslot)
		}

		m.lock.LeaveSlotOperation()
	} else {
		m.deps.Log.Debug(tschlog.CategorySlot).Log("slot skipped: no link bound or lock requested")
	}

	// 5. Resynchronization check.
	if !m.cfg.IsCoordinator {
		diff := asn.Diff(m.currentASN, m.lastSyncASN)
		if diff < 0 {
			diff = -diff
		}
		if diff > m.cfg.DesyncThresholdSlots {
			m.associated = false
			m.deps.Log.Err(tschlog.CategorySync).Int64("slots_since_sync", diff).Log("desync threshold exceeded, disassociating")
			if m.onDisassociate != nil {
				m.onDisassociate()
			}
			return
		}
	}

	// 6. Schedule the next wake-up.
	sharedTX := activeSlot && activeLink.LinkOptions.Has(link.Shared) && activeLink.LinkOptions.Has(link.TX)
	if sharedTX {
		m.deps.Queues.UpdateAllBackoffWindows(activeLink.PeerAddress)
	}
	m.scheduleNext(true)

	// 7. Suspend (implicit: this method returns, the timer re-enters it).
}

func (m *Machine) dispatchTX(gate radio.Gate, activeLink link.Link, pkt *neighbor.Packet, nbr *neighbor.Neighbor) {
	deps := txrx.TXDeps{
		Timer:        m.deps.Timer,
		Wait:         m.deps.Wait,
		Gate:         gate,
		Queues:       m.deps.Queues,
		Framer:       m.deps.Framer,
		Security:     m.deps.Security,
		SecurityOn:   m.cfg.SecurityOn,
		DequeuedRing: m.deps.DequeuedRing,
		Sync:         m.deps.Sync,
		DriftPolicy:  m.deps.DriftPolicy,
		Log:          m.deps.Log,
	}
	outcome, newLastSync, err := txrx.TX(m.cfg.TXRX, deps, m.currentSlotStart, pkt, nbr, m.currentASN, m.lastSyncASN, activeLink.LinkOptions.Has(link.Shared))
	if err != nil {
		m.deps.Log.Warn(tschlog.CategoryTX).Err(err).Log("tx sub-procedure aborted")
		return
	}
	m.lastSyncASN = newLastSync
	m.driftCorrection = outcome.AppliedDrift
	m.isDriftCorrectionUsed = outcome.AppliedDrift != 0
	if m.onTXResult != nil {
		m.onTXResult(outcome, pkt, nbr)
	}
}

func (m *Machine) dispatchRX(gate radio.Gate) {
	deps := txrx.RXDeps{
		Timer:      m.deps.Timer,
		Wait:       m.deps.Wait,
		Gate:       gate,
		Framer:     m.deps.Framer,
		Security:   m.deps.Security,
		SecurityOn: m.cfg.SecurityOn,
		InputRing:  m.deps.InputRing,
		Sync:       m.deps.Sync,
		Log:        m.deps.Log,
	}
	isTimeSource := func(addr neighbor.Address) bool {
		n, ok := m.deps.Queues.GetNbr(addr)
		return ok && n.IsTimeSource
	}
	_, newLastSync, err := txrx.RX(m.cfg.TXRX, deps, m.currentSlotStart, m.cfg.NodeAddress, isTimeSource, m.currentASN, m.lastSyncASN)
	if err != nil {
		m.deps.Log.Warn(tschlog.CategoryRX).Err(err).Log("rx sub-procedure reported an error")
	}
	m.lastSyncASN = newLastSync
}

// scheduleNext implements §4.8 step 6b-e: repeatedly pull the next active
// link from the schedule, advance the ASN and slot clock, and retry with
// the schedule's *next* entry whenever arming the hardware timer misses
// its guard window, guaranteeing forward progress.
func (m *Machine) scheduleNext(logMisses bool) {
	for {
		next, slotsUntil, backup, ok := m.deps.Schedule.GetNextActiveLink(m.currentASN)
		if !ok {
			slotsUntil = 1
			next, backup = nil, nil
		}

		adaptive := m.deps.Sync.AdaptiveCompensate(int64(slotsUntil)*m.cfg.TXRX.Timing.TimeslotLength + m.driftCorrection)
		step := computeReschedule(m.cfg.TXRX.Timing.TimeslotLength, m.currentSlotStart, m.currentASN, slotsUntil, m.driftCorrection, adaptive)

		prev := m.currentSlotStart
		m.currentASN = step.NewASN
		m.currentSlotStart = step.NewSlotStart
		m.driftCorrection = 0

		if ticks.Schedule(m.deps.Timer, prev, step.WakeOffset, m.OnTimerFire) {
			m.currentLink = next
			m.backupLink = backup
			return
		}
		if logMisses {
			m.deps.Log.Warn(tschlog.CategorySlot).Log("missed arming deadline, advancing to next schedule entry")
		}
		m.currentLink = next
		m.backupLink = backup
	}
}
