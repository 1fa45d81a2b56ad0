package txrx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ieee802154e/tsch/asn"
	"github.com/ieee802154e/tsch/frame"
	"github.com/ieee802154e/tsch/neighbor"
	"github.com/ieee802154e/tsch/radio"
	"github.com/ieee802154e/tsch/ring"
	"github.com/ieee802154e/tsch/tschlog"
	"github.com/ieee802154e/tsch/ticks"
	"github.com/ieee802154e/tsch/timesync"
)

// autoTimer is a deterministic ticks.Timer whose Now() advances by one
// tick on every call, guaranteeing any busy-poll loop in the code under
// test (waitUntil) eventually reaches its deadline without a real clock.
// Set jumps the clock straight to the armed instant and fires
// synchronously, like ticks_test.go's synchronousTimer.
type autoTimer struct {
	now   ticks.Count
	guard ticks.Count
}

func (t *autoTimer) Now() ticks.Count {
	v := t.now
	t.now = t.now.Add(1)
	return v
}

func (t *autoTimer) Guard() ticks.Count { return t.guard }

func (t *autoTimer) Set(at ticks.Count, fn func()) bool {
	if ticks.Sub(t.now, at) >= 0 {
		return false
	}
	t.now = at
	fn()
	return true
}

type jumpWaiter struct{ timer *autoTimer }

func (w jumpWaiter) SpinUntil(_ ticks.Timer, at ticks.Count) {
	if w.timer.now < at {
		w.timer.now = at
	}
}

// fakeRadio is a scriptable radio.Radio for the TX sub-procedure tests.
type fakeRadio struct {
	prepareOK bool
	prepared  []byte

	channelClear bool
	ccaCalls     int

	txResult      radio.TxResult
	transmitCalls int

	receivingFalseAfter int // -1: always true; 0: always false; N: true for calls 1..N
	receivingCalls      int

	pending  bool
	readData []byte

	onCalls, offCalls int
}

func (r *fakeRadio) Prepare(buf []byte) bool {
	r.prepared = append([]byte(nil), buf...)
	return r.prepareOK
}
func (r *fakeRadio) Transmit() radio.TxResult { r.transmitCalls++; return r.txResult }
func (r *fakeRadio) On()                      { r.onCalls++ }
func (r *fakeRadio) Off()                     { r.offCalls++ }
func (r *fakeRadio) ChannelClear() bool       { r.ccaCalls++; return r.channelClear }
func (r *fakeRadio) ReceivingPacket() bool {
	r.receivingCalls++
	if r.receivingFalseAfter < 0 {
		return true
	}
	return r.receivingCalls <= r.receivingFalseAfter
}
func (r *fakeRadio) PendingPacket() bool { return r.pending }
func (r *fakeRadio) Read(buf []byte) int { return copy(buf, r.readData) }
func (r *fakeRadio) SetChannel(int)      {}
func (r *fakeRadio) GetValue(radio.Value) (int, bool)           { return 0, false }
func (r *fakeRadio) SetValue(radio.Value, int) bool             { return false }
func (r *fakeRadio) LastPacketTimestamp() (time.Time, bool)     { return time.Time{}, false }

type fakeFramer struct {
	updateEBCalls  int
	parseEACKDrift int64
	parseEACKOK    bool
}

func (f *fakeFramer) ParseHeader(buf []byte, n int) (frame.Header, bool) { return frame.Header{}, true }
func (f *fakeFramer) CreateEACK(dst []byte, h frame.Header, driftMicros int64) int { return 0 }
func (f *fakeFramer) ParseEACK(buf []byte, n int) (int64, bool) {
	return f.parseEACKDrift, f.parseEACKOK
}
func (f *fakeFramer) UpdateEB(buf []byte, syncIEOffset int, a asn.Number) { f.updateEBCalls++ }

type fakeSync struct {
	updates          []struct{ slots, drift int64 }
	keepaliveCalls   int
}

func (s *fakeSync) Update(slotsSinceLast int64, driftTicks int64) {
	s.updates = append(s.updates, struct{ slots, drift int64 }{slotsSinceLast, driftTicks})
}
func (s *fakeSync) AdaptiveCompensate(wakeOffset int64) int64 { return 0 }
func (s *fakeSync) ScheduleKeepalive()                        { s.keepaliveCalls++ }

func defaultTXConfig() Config {
	return Config{
		Timing: Timing{
			TxOffset:   100,
			RxAckDelay: 20,
			AckWait:    30,
			MaxTx:      50,
			MaxAck:     20,
		},
		CCAEnabled:            false,
		CCAOffset:             10,
		CCADuration:           5,
		RadioDelayBeforeTX:    2,
		RadioDelayBeforeRX:    2,
		DetectDelay:           5,
		MaxFrameRetries:       2,
		SyncBound:             50,
		MeasurementError:      2,
		TicksPerUsNumerator:   1,
		TicksPerUsDenominator: 1,
		TicksPerByte:          1,
	}
}

func newTXHarness() (*autoTimer, TXDeps, *fakeRadio, *neighbor.Table, *fakeFramer, *fakeSync) {
	timer := &autoTimer{now: 1000, guard: 2}
	r := &fakeRadio{prepareOK: true, channelClear: true, txResult: radio.TxOK, receivingFalseAfter: -1}
	table := neighbor.NewTable(1)
	fr := &fakeFramer{}
	sy := &fakeSync{}
	deps := TXDeps{
		Timer:        timer,
		Wait:         jumpWaiter{timer},
		Gate:         radio.Gate{Radio: r, Policy: radio.AlwaysOn},
		Queues:       table,
		Framer:       fr,
		Security:     frame.NoopSecurity{},
		SecurityOn:   false,
		DequeuedRing: ring.NewBuffer[*neighbor.Packet](4),
		Sync:         sy,
		DriftPolicy:  timesync.AckDrift{},
		Log:          tschlog.Default(),
	}
	return timer, deps, r, table, fr, sy
}

func unicastNeighbor() *neighbor.Neighbor {
	return &neighbor.Neighbor{
		Address:         neighbor.Address{1, 2, 3, 4, 5, 6, 7, 8},
		BackoffExponent: neighbor.MinBackoffExponent,
	}
}

func TestTXSuccessWithUnicastAckAppliesClampedDrift(t *testing.T) {
	timer, deps, r, table, fr, sy := newTXHarness()
	nbr := unicastNeighbor()
	nbr.BackoffExponent = 5
	nbr.BackoffWindow = 7
	table.Add(nbr)
	pkt := &neighbor.Packet{QueuedFrame: make([]byte, 20), HeaderLen: 10, SyncIEOffset: -1}
	nbr.Queue = []*neighbor.Packet{pkt}

	r.receivingFalseAfter = 1 // detected on call 1, ack ends by call 2
	r.pending = true
	r.readData = []byte{0xAA}
	fr.parseEACKDrift = 100 // raw drift ticks (1:1 us/tick ratio) exceeds SyncBound of 50
	fr.parseEACKOK = true

	cfg := defaultTXConfig()
	outcome, newLastSync, err := TX(cfg, deps, timer.now, pkt, nbr, asn.Number(10), asn.Number(3), false)
	require.NoError(t, err)
	require.Equal(t, radio.TxOK, outcome.Status)
	require.Equal(t, int64(50), outcome.AppliedDrift)
	require.True(t, outcome.Removed)
	require.Equal(t, asn.Number(10), newLastSync)
	require.Equal(t, neighbor.MinBackoffExponent, nbr.BackoffExponent)
	require.Equal(t, 0, nbr.BackoffWindow)
	require.Len(t, sy.updates, 1)
	require.Equal(t, 1, sy.keepaliveCalls)
	require.Equal(t, 0, fr.updateEBCalls) // EB rewrite skipped: SyncIEOffset == -1
	require.Equal(t, 1, r.transmitCalls)
}

func TestTXEBPacketRewritesSyncIEBeforeTransmit(t *testing.T) {
	timer, deps, r, table, fr, _ := newTXHarness()
	nbr := &neighbor.Neighbor{Address: neighbor.AddressEB, IsBroadcast: true}
	table.Add(nbr)
	pkt := &neighbor.Packet{QueuedFrame: make([]byte, 20), HeaderLen: 10, SyncIEOffset: 12}
	r.receivingFalseAfter = 0

	cfg := defaultTXConfig()
	_, _, err := TX(cfg, deps, timer.now, pkt, nbr, asn.Number(99), asn.Number(90), true)
	require.NoError(t, err)
	require.Equal(t, 1, fr.updateEBCalls)
}

func TestTXBroadcastSkipsAckWait(t *testing.T) {
	timer, deps, r, table, _, _ := newTXHarness()
	nbr := &neighbor.Neighbor{Address: neighbor.AddressBroadcast, IsBroadcast: true}
	table.Add(nbr)
	pkt := &neighbor.Packet{QueuedFrame: make([]byte, 5), HeaderLen: 3, SyncIEOffset: -1}
	nbr.Queue = []*neighbor.Packet{pkt}

	cfg := defaultTXConfig()
	outcome, _, err := TX(cfg, deps, timer.now, pkt, nbr, asn.Number(1), asn.Number(0), false)
	require.NoError(t, err)
	require.Equal(t, radio.TxOK, outcome.Status)
	require.Equal(t, 0, r.receivingCalls)
	require.True(t, outcome.Removed)
}

func TestTXNoAckIncrementsBackoffOnSharedLink(t *testing.T) {
	timer, deps, r, table, _, _ := newTXHarness()
	nbr := unicastNeighbor()
	table.Add(nbr)
	pkt := &neighbor.Packet{QueuedFrame: make([]byte, 5), HeaderLen: 3, SyncIEOffset: -1}
	nbr.Queue = []*neighbor.Packet{pkt}
	r.receivingFalseAfter = 0 // ack never detected

	cfg := defaultTXConfig()
	outcome, _, err := TX(cfg, deps, timer.now, pkt, nbr, asn.Number(1), asn.Number(0), true)
	require.NoError(t, err)
	require.Equal(t, radio.TxNoAck, outcome.Status)
	require.False(t, outcome.Removed)
	require.Greater(t, nbr.BackoffExponent, neighbor.MinBackoffExponent)
	require.Len(t, nbr.Queue, 1) // not dequeued
}

func TestTXAckDroppedOnSecurityFailure(t *testing.T) {
	timer, deps, r, table, fr, sy := newTXHarness()
	deps.SecurityOn = true
	deps.Security = &rxFakeSecurity{parseOK: false}
	nbr := unicastNeighbor()
	table.Add(nbr)
	pkt := &neighbor.Packet{QueuedFrame: make([]byte, 5), HeaderLen: 3, SyncIEOffset: -1}
	nbr.Queue = []*neighbor.Packet{pkt}

	r.receivingFalseAfter = 1
	r.pending = true
	r.readData = []byte{0xAA}
	fr.parseEACKDrift = 100
	fr.parseEACKOK = true // ParseEACK would accept it; authentication must still reject first

	cfg := defaultTXConfig()
	outcome, newLastSync, err := TX(cfg, deps, timer.now, pkt, nbr, asn.Number(10), asn.Number(3), true)
	require.NoError(t, err)
	require.Equal(t, radio.TxNoAck, outcome.Status)
	require.Equal(t, int64(0), outcome.AppliedDrift)
	require.Equal(t, asn.Number(3), newLastSync) // unchanged: no authenticated ack seen
	require.Empty(t, sy.updates)
	require.Greater(t, nbr.BackoffExponent, neighbor.MinBackoffExponent)
}

func TestTXCollisionWhenCCADetectsBusyChannel(t *testing.T) {
	timer, deps, r, table, _, _ := newTXHarness()
	nbr := unicastNeighbor()
	table.Add(nbr)
	pkt := &neighbor.Packet{QueuedFrame: make([]byte, 5), HeaderLen: 3, SyncIEOffset: -1}
	r.channelClear = false

	cfg := defaultTXConfig()
	cfg.CCAEnabled = true
	outcome, _, err := TX(cfg, deps, timer.now, pkt, nbr, asn.Number(1), asn.Number(0), false)
	require.NoError(t, err)
	require.Equal(t, radio.TxCollision, outcome.Status)
	require.Equal(t, 0, r.transmitCalls)
	require.Equal(t, 1, pkt.Transmissions)
}

func TestTXMaxRetriesExhaustedRemovesPacket(t *testing.T) {
	timer, deps, r, table, _, _ := newTXHarness()
	nbr := unicastNeighbor()
	table.Add(nbr)
	pkt := &neighbor.Packet{QueuedFrame: make([]byte, 5), HeaderLen: 3, SyncIEOffset: -1, Transmissions: 2}
	nbr.Queue = []*neighbor.Packet{pkt}
	r.receivingFalseAfter = 0

	cfg := defaultTXConfig() // MaxFrameRetries == 2, so transmission #3 exhausts it
	outcome, _, err := TX(cfg, deps, timer.now, pkt, nbr, asn.Number(1), asn.Number(0), false)
	require.NoError(t, err)
	require.True(t, outcome.Removed)
	require.Equal(t, 3, pkt.Transmissions)
}

func TestTXMalformedFrameCancelsReservation(t *testing.T) {
	timer, deps, _, table, _, _ := newTXHarness()
	nbr := unicastNeighbor()
	table.Add(nbr)
	pkt := &neighbor.Packet{QueuedFrame: make([]byte, 5), HeaderLen: -1, SyncIEOffset: -1}

	cfg := defaultTXConfig()
	_, _, err := TX(cfg, deps, timer.now, pkt, nbr, asn.Number(1), asn.Number(0), false)
	require.ErrorIs(t, err, ErrMalformedFrame)
	require.Equal(t, 0, deps.DequeuedRing.Len())
	_, ok := deps.DequeuedRing.Pop()
	require.False(t, ok)
}

func TestTXRadioPrepareFailureCancelsReservation(t *testing.T) {
	timer, deps, r, table, _, _ := newTXHarness()
	nbr := unicastNeighbor()
	table.Add(nbr)
	pkt := &neighbor.Packet{QueuedFrame: make([]byte, 5), HeaderLen: 3, SyncIEOffset: -1}
	r.prepareOK = false

	cfg := defaultTXConfig()
	_, _, err := TX(cfg, deps, timer.now, pkt, nbr, asn.Number(1), asn.Number(0), false)
	require.ErrorIs(t, err, ErrRadioPrepare)
	require.Equal(t, 0, deps.DequeuedRing.Len())
}

func TestTXRingFullReturnsErrRingFull(t *testing.T) {
	timer, deps, _, table, _, _ := newTXHarness()
	deps.DequeuedRing = ring.NewBuffer[*neighbor.Packet](1)
	_, ok := deps.DequeuedRing.Reserve() // leave the sole slot outstanding
	require.True(t, ok)

	nbr := unicastNeighbor()
	table.Add(nbr)
	pkt := &neighbor.Packet{QueuedFrame: make([]byte, 5), HeaderLen: 3, SyncIEOffset: -1}

	cfg := defaultTXConfig()
	_, _, err := TX(cfg, deps, timer.now, pkt, nbr, asn.Number(1), asn.Number(0), false)
	require.ErrorIs(t, err, ErrRingFull)
}
