// Command tschsim runs a single slot-operation core through a scripted,
// multi-slot scenario: dedicated and shared TX links, an RX link that
// sometimes hears a time-source beacon and sometimes doesn't, and a
// deliberately short desync threshold so the scenario ends by watching
// the executor disassociate. It exercises the full slotop/txrx/neighbor/
// timesync/tschlog stack end to end from one thin main, the way the
// teacher's own cmd/* binaries wire a library type to concrete
// collaborators and run it.
package main

import (
	"time"

	"github.com/ieee802154e/tsch/asn"
	"github.com/ieee802154e/tsch/frame"
	"github.com/ieee802154e/tsch/hopping"
	"github.com/ieee802154e/tsch/link"
	"github.com/ieee802154e/tsch/neighbor"
	"github.com/ieee802154e/tsch/radio"
	"github.com/ieee802154e/tsch/ring"
	"github.com/ieee802154e/tsch/slotop"
	"github.com/ieee802154e/tsch/ticks"
	"github.com/ieee802154e/tsch/timesync"
	"github.com/ieee802154e/tsch/tschlog"
	"github.com/ieee802154e/tsch/txrx"
)

// simTimer is a synchronous-fire ticks.Timer: Set jumps the virtual clock
// to the armed instant and invokes the callback immediately, up to a
// per-slot budget the driver loop sets before each OnTimerFire call. This
// is the same shape as slotop's own machine_test.go manualTimer, generalized
// from a single assertion per test to a long-running printed scenario: once
// the budget for a slot's internal schedule_and_yield suspensions is spent,
// further Set calls still report success (so scheduleNext's retry loop
// still terminates) but don't fire, leaving the next slot's wake-up for the
// driver to trigger explicitly.
type simTimer struct {
	now                ticks.Count
	guard              ticks.Count
	remainingAutoFires int
}

func (t *simTimer) Now() ticks.Count {
	v := t.now
	t.now = t.now.Add(1)
	return v
}

func (t *simTimer) Guard() ticks.Count { return t.guard }

func (t *simTimer) Set(at ticks.Count, fn func()) bool {
	t.now = at
	if t.remainingAutoFires > 0 {
		t.remainingAutoFires--
		fn()
	}
	return true
}

type noopWaiter struct{}

func (noopWaiter) SpinUntil(ticks.Timer, ticks.Count) {}

// simRadio is a scriptable radio.Radio: the driver sets its fields to
// whatever outcome the current slot's plan calls for immediately before
// invoking OnTimerFire.
type simRadio struct {
	prepareOK    bool
	channelClear bool
	txResult     radio.TxResult
	receiving    bool
	pending      bool
	channel      int
	readLen      int
}

func (r *simRadio) Prepare([]byte) bool          { return r.prepareOK }
func (r *simRadio) Transmit() radio.TxResult     { return r.txResult }
func (r *simRadio) On()                          {}
func (r *simRadio) Off()                         {}
func (r *simRadio) ChannelClear() bool           { return r.channelClear }
func (r *simRadio) ReceivingPacket() bool        { return r.receiving }
func (r *simRadio) PendingPacket() bool          { return r.pending }
func (r *simRadio) Read(buf []byte) int          { return r.readLen }
func (r *simRadio) SetChannel(c int)             { r.channel = c }
func (r *simRadio) SetValue(radio.Value, int) bool { return false }
func (r *simRadio) GetValue(v radio.Value) (int, bool) {
	if v == radio.ValueChannel {
		return r.channel, true
	}
	return 0, false
}
func (r *simRadio) LastPacketTimestamp() (time.Time, bool) { return time.Time{}, false }

// simFramer is a scriptable frame.Framer: its ParseHeader/ParseEACK
// results are set by the driver to match what the current slot's radio
// script is meant to represent.
type simFramer struct {
	rxHeader frame.Header
	ackDrift int64
	ackOK    bool
}

func (f *simFramer) ParseHeader(buf []byte, n int) (frame.Header, bool) { return f.rxHeader, true }
func (f *simFramer) CreateEACK([]byte, frame.Header, int64) int         { return 0 }
func (f *simFramer) ParseEACK(buf []byte, n int) (int64, bool)          { return f.ackDrift, f.ackOK }
func (f *simFramer) UpdateEB([]byte, int, asn.Number)                   {}

// simSync is the timesync.Collaborator used by the simulation: it prints
// what the library asks of it rather than running a real adaptive
// compensation algorithm, which (per the package boundary the slot
// executor treats Sync as) is an external, swappable strategy this
// scenario doesn't need to demonstrate.
type simSync struct {
	log *tschlog.Logger
}

func (s *simSync) Update(slotsSinceLast, driftTicks int64) {
	s.log.Info(tschlog.CategorySync).Int64("slots_since_last", slotsSinceLast).Int64("drift_ticks", driftTicks).Log("timesync updated")
}
func (s *simSync) AdaptiveCompensate(int64) int64 { return 0 }
func (s *simSync) ScheduleKeepalive() {
	s.log.Debug(tschlog.CategorySync).Log("keepalive rescheduled")
}

// slotKind names which kind of link the scripted schedule hands out for
// one slot.
type slotKind int

const (
	kindIdle slotKind = iota
	kindTXDedicated
	kindTXShared
	kindRX
)

// slotPlan scripts one slot: which link is active and, for TX/RX links,
// exactly what the radio and framer should report so the TX/RX
// sub-procedures take the branch the scenario wants to demonstrate.
type slotPlan struct {
	kind        slotKind
	txResult    radio.TxResult
	ackDetected bool
	ackOK       bool
	driftMicros int64
	rxHeard     bool
	rxBeacon    bool
}

// scriptSchedule serves one slotPlan's worth of link per call, matching
// slotop.Schedule; it never reports more than the planned entries, then
// reports ok=false forever, so the driver and the executor agree on when
// the scenario's scripted portion has ended.
type scriptSchedule struct {
	plans      []slotPlan
	idx        int
	parentAddr neighbor.Address
}

func (s *scriptSchedule) GetNextActiveLink(_ asn.Number) (*link.Link, uint64, *link.Link, bool) {
	if s.idx >= len(s.plans) {
		return nil, 1, nil, false
	}
	p := s.plans[s.idx]
	s.idx++
	switch p.kind {
	case kindTXDedicated:
		return &link.Link{LinkOptions: link.TX, PeerAddress: s.parentAddr, ChannelOffset: 0}, 1, nil, true
	case kindTXShared:
		return &link.Link{LinkOptions: link.TX | link.Shared, PeerAddress: s.parentAddr, ChannelOffset: 1}, 1, nil, true
	case kindRX:
		return &link.Link{LinkOptions: link.RX, ChannelOffset: 2}, 1, nil, true
	default:
		return nil, 1, nil, false
	}
}

// txAutoFires reports how many internal schedule_and_yield suspensions
// txrx.TX will make: always one (the transmit step), plus a second one
// whenever the unicast ack-wait window is entered (i.e. the scripted
// Transmit() call itself reports success).
func txAutoFires(txResult radio.TxResult) int {
	if txResult == radio.TxOK {
		return 2
	}
	return 1
}

func main() {
	log := tschlog.Default()

	parentAddr := neighbor.Address{1, 1, 1, 1, 1, 1, 1, 1}
	leafAddr := neighbor.Address{2, 2, 2, 2, 2, 2, 2, 2}

	table := neighbor.NewTable(42)
	parent := &neighbor.Neighbor{Address: parentAddr, IsTimeSource: true, BackoffExponent: neighbor.MinBackoffExponent}
	table.Add(parent)

	plans := []slotPlan{
		{kind: kindTXDedicated, txResult: radio.TxOK, ackDetected: true, ackOK: true, driftMicros: 30},
		{kind: kindRX, rxHeard: true, rxBeacon: true},
		{kind: kindTXShared, txResult: radio.TxOK, ackDetected: true, ackOK: true, driftMicros: -10},
		{kind: kindIdle},
		{kind: kindTXShared, txResult: radio.TxOK, ackDetected: false},
		{kind: kindIdle},
		{kind: kindTXDedicated, txResult: radio.TxOK, ackDetected: true, ackOK: true, driftMicros: 5},
		{kind: kindRX, rxHeard: false},
		{kind: kindTXShared, txResult: radio.TxErr},
		{kind: kindIdle},
		{kind: kindRX, rxHeard: false},
		{kind: kindIdle},
		{kind: kindRX, rxHeard: false},
		{kind: kindIdle},
		{kind: kindRX, rxHeard: false},
	}
	sched := &scriptSchedule{plans: plans, parentAddr: parentAddr}

	hop := hopping.Sequence{11, 15, 20, 25, 26}

	cfg := slotop.Config{
		TXRX: txrx.Config{
			Timing: txrx.Timing{
				TxOffset: 100, RxOffset: 10, RxWait: 20, RxAckDelay: 20, TxAckDelay: 5,
				AckWait: 30, MaxTx: 50, MaxAck: 20, TimeslotLength: 1000,
			},
			RadioDelayBeforeTX: 2, RadioDelayBeforeRX: 2, DetectDelay: 5,
			MaxFrameRetries: 2, SyncBound: 50, MeasurementError: 2,
			TicksPerUsNumerator: 1, TicksPerUsDenominator: 1, TicksPerByte: 1,
		},
		HopSequence: hop,
		RadioPolicy: radio.AlwaysOn,
		// A deliberately short threshold: five slots without a refreshed
		// sync is enough to watch the scenario disassociate.
		DesyncThresholdSlots: 5,
		NodeAddress:          leafAddr,
	}

	timer := &simTimer{now: 1000, guard: 2}
	radioSim := &simRadio{prepareOK: true, channelClear: true}
	framer := &simFramer{}
	sync := &simSync{log: log}

	disassociated := false
	deps := slotop.Deps{
		Timer:        timer,
		Wait:         noopWaiter{},
		Radio:        radioSim,
		Queues:       table,
		Framer:       framer,
		Security:     frame.NoopSecurity{},
		Sync:         sync,
		DriftPolicy:  timesync.AckDrift{},
		Schedule:     sched,
		Log:          log,
		DequeuedRing: ring.NewBuffer[*neighbor.Packet](4),
		InputRing:    ring.NewBuffer[frame.InputPacket](4),
	}
	m := slotop.New(cfg, deps, slotop.WithOnDisassociate(func() {
		disassociated = true
		log.Err(tschlog.CategorySlot).Log("leaf disassociated: desync threshold exceeded")
	}))

	m.Sync(timer.now, asn.Number(0))
	m.Start()

	for i, p := range plans {
		if !m.Associated() {
			log.Info(tschlog.CategorySlot).Int("slots_run", i).Log("scenario ended early: leaf no longer associated")
			break
		}

		switch p.kind {
		case kindTXDedicated, kindTXShared:
			parent.Queue = append(parent.Queue, &neighbor.Packet{
				QueuedFrame: make([]byte, 20), HeaderLen: 6, SyncIEOffset: -1,
			})
			radioSim.txResult = p.txResult
			radioSim.receiving = p.ackDetected
			radioSim.pending = p.ackDetected
			radioSim.readLen = 8
			framer.ackDrift = p.driftMicros
			framer.ackOK = p.ackOK
			timer.remainingAutoFires = txAutoFires(p.txResult)
		case kindRX:
			radioSim.receiving = p.rxHeard
			radioSim.pending = p.rxHeard
			radioSim.readLen = 12
			if p.rxBeacon {
				framer.rxHeader = frame.Header{
					FrameType: frame.FrameTypeBeacon, FrameVer: frame.FrameVersion2012,
					SrcAddr: parentAddr, DstAddr: leafAddr,
				}
			} else {
				framer.rxHeader = frame.Header{FrameType: frame.FrameTypeData, SrcAddr: parentAddr, DstAddr: leafAddr}
			}
			timer.remainingAutoFires = 1
		case kindIdle:
			timer.remainingAutoFires = 0
		}

		m.OnTimerFire()
		log.Info(tschlog.CategorySlot).
			Int64("asn", int64(m.CurrentASN().Uint64())).
			Bool("associated", m.Associated()).
			Log("slot complete")
	}

	if !disassociated && m.Associated() {
		log.Info(tschlog.CategorySlot).Log("scenario finished: leaf remained associated through every scripted slot")
	}
}
