package txrx

import (
	"github.com/ieee802154e/tsch/asn"
	"github.com/ieee802154e/tsch/frame"
	"github.com/ieee802154e/tsch/neighbor"
	"github.com/ieee802154e/tsch/radio"
	"github.com/ieee802154e/tsch/ring"
	"github.com/ieee802154e/tsch/tschlog"
	"github.com/ieee802154e/tsch/ticks"
	"github.com/ieee802154e/tsch/timesync"
)

// RXDeps bundles the collaborators the RX sub-procedure needs.
type RXDeps struct {
	Timer    ticks.Timer
	Wait     ticks.BusyWaiter
	Gate     radio.Gate
	Framer   frame.Framer
	Security frame.Security
	SecurityOn bool
	InputRing  *ring.Buffer[frame.InputPacket]
	Sync       timesync.Collaborator
	Log        *tschlog.Logger
}

// RXOutcome reports what an RX call did, for the executor and for tests.
type RXOutcome struct {
	Idle           bool // no packet arrived before the listening window closed
	Dropped        bool // a packet arrived but was discarded (malformed/unauthenticated/ring full)
	AckSent        bool
	EstimatedDrift int64
	DriftApplied   bool // EstimatedDrift was fed to Sync (source is the time-source neighbor, frame is a beacon)
}

// RX implements §4.7 C7: listen for one frame within a slot's RX window,
// optionally acknowledge it, extract drift when it carries timesync
// evidence, and publish the result into the input ring.
func RX(cfg Config, d RXDeps, slotStart ticks.Count, nodeAddr neighbor.Address, isTimeSource func(neighbor.Address) bool, currentASN, lastSyncASN asn.Number) (RXOutcome, asn.Number, error) {
	newLastSync := lastSyncASN

	// 1. Reserve an input-ring slot; a full ring still listens (to drain
	// the air and avoid jamming the schedule) but drops on arrival.
	slot, haveSlot := d.InputRing.Reserve()

	// 3. Gate the radio on in time for the RX window. RX always needs the
	// radio regardless of RADIO_ON_DURING_TIMESLOT, the same reasoning TX
	// applies to its own OnWithinTimeslot calls.
	ticks.ScheduleAndYield(d.Timer, d.Wait, slotStart, cfg.Timing.RxOffset-cfg.RadioDelayBeforeRX)
	d.Gate.On(radio.OnWithinTimeslot)

	// 4. Wait for a frame to start arriving.
	rxStart := slotStart.Add(cfg.Timing.RxOffset)
	listenDeadline := rxStart.Add(cfg.Timing.RxWait)
	_, heard := waitUntil(d.Timer, listenDeadline, func() bool {
		return d.Gate.Radio.ReceivingPacket() || d.Gate.Radio.PendingPacket()
	})
	if !heard {
		d.Gate.Off(radio.OffWithinTimeslot)
		if haveSlot {
			d.InputRing.Cancel()
		}
		d.Log.Debug(tschlog.CategoryRX).Log("no frame heard within rx window")
		return RXOutcome{Idle: true}, newLastSync, nil
	}

	// 5. Record rx_start, then wait out the remainder of the frame.
	rxStart = d.Timer.Now().Add(-cfg.DetectDelay)
	endDeadline := rxStart.Add(cfg.Timing.MaxTx)
	waitUntil(d.Timer, endDeadline, func() bool { return !d.Gate.Radio.ReceivingPacket() })

	// 7. A hardware SFD timestamp is queried but not used: the radio
	// reports it as a time.Time, this core has no conversion to
	// ticks.Count, and rxStart stays the detection-based estimate above.
	if ts, ok := d.Gate.Radio.LastPacketTimestamp(); ok {
		_ = ts
	}

	if !d.Gate.Radio.PendingPacket() {
		d.Gate.Off(radio.OffWithinTimeslot)
		if haveSlot {
			d.InputRing.Cancel()
		}
		d.Log.Debug(tschlog.CategoryRX).Log("receiving_packet ended without a pending packet")
		return RXOutcome{Idle: true}, newLastSync, nil
	}

	buf := make([]byte, frame.MaxLen)
	n := d.Gate.Radio.Read(buf)
	d.Gate.Off(radio.OffWithinTimeslot)

	// 8. Authenticate/decrypt before touching the header.
	if d.SecurityOn {
		var ok bool
		n, ok = d.Security.ParseFrame(buf, n)
		if !ok {
			if haveSlot {
				d.InputRing.Cancel()
			}
			d.Log.Warn(tschlog.CategoryRX).Log("dropping frame: authentication failed")
			return RXOutcome{Dropped: true}, newLastSync, nil
		}
	}

	hdr, ok := d.Framer.ParseHeader(buf, n)
	if !ok {
		if haveSlot {
			d.InputRing.Cancel()
		}
		d.Log.Warn(tschlog.CategoryRX).Log("dropping frame: malformed header")
		return RXOutcome{Dropped: true}, newLastSync, ErrMalformedFrame
	}

	outcome := RXOutcome{}

	// 9. Drift extraction for the addressed node, with a jitter clamp:
	// a measured offset within one measurement-error width of zero is
	// reported as exactly zero, and larger offsets are pulled in by
	// that same width, matching §8's jitter-rejection requirement.
	addressedToUs := hdr.DstAddr == nodeAddr || hdr.DstAddr == neighbor.AddressBroadcast
	if addressedToUs {
		expectedArrival := slotStart.Add(cfg.Timing.TxOffset)
		raw := ticks.Sub(rxStart, expectedArrival)
		outcome.EstimatedDrift = jitterClamp(raw, cfg.MeasurementError)
	}

	// 10. Reply with an enhanced ACK if requested.
	if hdr.AckRequest {
		ackBuf := make([]byte, frame.MaxLen)
		ackLen := d.Framer.CreateEACK(ackBuf, hdr, ticksToMicros(outcome.EstimatedDrift, cfg))
		toSend := ackBuf[:ackLen]
		if d.SecurityOn {
			secured := make([]byte, len(toSend))
			sn := d.Security.SecureFrame(secured, toSend, len(toSend))
			toSend = secured[:sn]
		}
		if d.Gate.Radio.Prepare(toSend) {
			packetDur := packetAirDuration(n, cfg)
			ticks.ScheduleAndYield(d.Timer, d.Wait, rxStart, packetDur+cfg.Timing.TxAckDelay-cfg.RadioDelayBeforeTX)
			d.Gate.On(radio.OnWithinTimeslot)
			d.Gate.Radio.Transmit()
			d.Gate.Off(radio.OffWithinTimeslot)
			outcome.AckSent = true
		}
	}

	// 11. Feed timesync only from the node's time-source neighbor's
	// beacons; the sign flips because the RX side measures how late the
	// sender's clock is relative to ours, the mirror of the TX side's
	// ACK-based correction.
	if addressedToUs && hdr.FrameType == frame.FrameTypeBeacon && hdr.FrameVer == frame.FrameVersion2012 && isTimeSource(hdr.SrcAddr) {
		slotsSince := timesync.SlotsSince(currentASN, lastSyncASN)
		d.Sync.Update(slotsSince, -outcome.EstimatedDrift)
		d.Sync.ScheduleKeepalive()
		newLastSync = currentASN
		outcome.DriftApplied = true
	}

	// 12. Commit the input-ring slot.
	if haveSlot {
		*slot = frame.InputPacket{Len: n, RxASN: currentASN, Channel: mustChannel(d.Gate.Radio)}
		copy((*slot).Payload[:], buf[:n])
		d.InputRing.Commit()
	} else {
		outcome.Dropped = true
		d.Log.Warn(tschlog.CategoryRX).Log("dropping frame: input ring full")
	}

	d.Log.Info(tschlog.CategoryRX).
		Bool("ack_sent", outcome.AckSent).
		Int64("estimated_drift", outcome.EstimatedDrift).
		Bool("drift_applied", outcome.DriftApplied).
		Log("rx sub-procedure complete")

	return outcome, newLastSync, nil
}

// jitterClamp implements §8's jitter-rejection law: offsets within one
// measurement-error width of zero collapse to zero, and larger offsets
// are pulled toward zero by that same width rather than reported raw.
func jitterClamp(raw, measurementError int64) int64 {
	if raw > measurementError {
		return raw - measurementError
	}
	if raw < -measurementError {
		return raw + measurementError
	}
	return 0
}

func ticksToMicros(ticksVal int64, cfg Config) int64 {
	if cfg.TicksPerUsNumerator == 0 {
		return 0
	}
	return ticksVal * cfg.TicksPerUsDenominator / cfg.TicksPerUsNumerator
}

func mustChannel(r radio.Radio) int {
	if v, ok := r.GetValue(radio.ValueChannel); ok {
		return v
	}
	return 0
}
