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

// TXDeps bundles the collaborators the TX sub-procedure needs, leaving
// Config, the bound packet/neighbor, and per-call state as explicit
// parameters to TX.
type TXDeps struct {
	Timer         ticks.Timer
	Wait          ticks.BusyWaiter
	Gate          radio.Gate
	Queues        neighbor.Queues
	Framer        frame.Framer
	Security      frame.Security
	SecurityOn    bool
	DequeuedRing  *ring.Buffer[*neighbor.Packet]
	Sync          timesync.Collaborator
	DriftPolicy   timesync.AckDrift
	Log           *tschlog.Logger
}

// TXOutcome reports what a TX call did, for the executor and for tests.
type TXOutcome struct {
	Status        radio.TxResult
	AppliedDrift  int64
	Removed       bool
	TxStart       ticks.Count
}

// TX implements §4.6 C6: one-shot transmit with optional CCA, optional
// ACK reception, drift extraction, and the retry/backoff update.
func TX(cfg Config, d TXDeps, slotStart ticks.Count, pkt *neighbor.Packet, nbr *neighbor.Neighbor, currentASN, lastSyncASN asn.Number, linkShared bool) (TXOutcome, asn.Number, error) {
	// 1. Reserve a dequeued-ring slot.
	slot, ok := d.DequeuedRing.Reserve()
	if !ok {
		return TXOutcome{Status: radio.TxErrFatal}, lastSyncASN, ErrRingFull
	}

	// 2. Validate the packet buffer.
	if pkt.HeaderLen < 0 || pkt.HeaderLen > len(pkt.QueuedFrame) {
		d.DequeuedRing.Cancel()
		return TXOutcome{Status: radio.TxErrFatal}, lastSyncASN, ErrMalformedFrame
	}

	txBuf := pkt.QueuedFrame

	// 3. EB Sync-IE rewrite + optional security.
	if pkt.IsEB() {
		d.Framer.UpdateEB(txBuf, pkt.SyncIEOffset, currentASN)
	}
	if d.SecurityOn {
		secured := make([]byte, len(txBuf))
		n := d.Security.SecureFrame(secured, txBuf, len(txBuf))
		txBuf = secured[:n]
	}

	// 4. Prepare.
	if !d.Gate.Radio.Prepare(txBuf) {
		d.DequeuedRing.Cancel()
		return TXOutcome{Status: radio.TxErrFatal}, lastSyncASN, ErrRadioPrepare
	}

	guard := int64(d.Timer.Guard())
	status := radio.TxOK

	// 5. Optional CCA.
	if cfg.CCAEnabled {
		ticks.ScheduleAndYield(d.Timer, d.Wait, slotStart, cfg.CCAOffset-guard)
		d.Gate.On(radio.OnWithinTimeslot)
		ccaDeadline := slotStart.Add(cfg.CCAOffset + cfg.CCADuration)
		busy := false
		for ticks.Sub(d.Timer.Now(), ccaDeadline) < 0 {
			if !d.Gate.Radio.ChannelClear() {
				busy = true
				break
			}
		}
		if busy {
			status = radio.TxCollision
		}
	}

	var txResult radio.TxResult
	txStart := slotStart.Add(cfg.Timing.TxOffset)
	if status != radio.TxCollision {
		// 6. Transmit.
		ticks.ScheduleAndYield(d.Timer, d.Wait, slotStart, cfg.Timing.TxOffset-cfg.RadioDelayBeforeTX)
		txResult = d.Gate.Radio.Transmit()
		status = txResult
	}

	// 7. Record tx_start/tx_dur; gate the radio off.
	txDur := packetAirDuration(len(txBuf), cfg)
	if txDur > cfg.Timing.MaxTx {
		txDur = cfg.Timing.MaxTx
	}
	d.Gate.Off(radio.OffWithinTimeslot)

	appliedDrift := int64(0)
	newLastSync := lastSyncASN

	// 8. ACK wait, only for unicast success.
	if !nbr.IsBroadcast && status == radio.TxOK {
		ackDelayOffset := cfg.Timing.TxOffset + txDur + cfg.Timing.RxAckDelay - cfg.RadioDelayBeforeRX
		ticks.ScheduleAndYield(d.Timer, d.Wait, slotStart, ackDelayOffset)
		d.Gate.On(radio.OnWithinTimeslot)

		detectDeadline := txStart.Add(txDur + cfg.Timing.RxAckDelay + cfg.Timing.AckWait + cfg.DetectDelay)
		_, detected := waitUntil(d.Timer, detectDeadline, d.Gate.Radio.ReceivingPacket)

		if detected {
			ackStart := d.Timer.Now().Add(-cfg.DetectDelay)
			ackDeadline := ackStart.Add(cfg.Timing.MaxAck)
			waitUntil(d.Timer, ackDeadline, func() bool { return !d.Gate.Radio.ReceivingPacket() })

			buf := make([]byte, frame.MaxLen)
			n := d.Gate.Radio.Read(buf)

			// 9. Authenticate the ACK before trusting its time-correction
			// IE, mirroring rx.go's inbound authentication step.
			authenticated := true
			if d.SecurityOn {
				n, authenticated = d.Security.ParseFrame(buf, n)
				if !authenticated {
					d.Log.Warn(tschlog.CategoryTX).Log("dropping ack: authentication failed")
				}
			}

			var driftMicros int64
			var ok bool
			if authenticated {
				driftMicros, ok = d.Framer.ParseEACK(buf, n)
			}
			if ok {
				raw := d.DriftPolicy.MicrosToTicks(timesync.AckEvidence{TimeCorrectionMicros: driftMicros}, cfg.TicksPerUsNumerator, cfg.TicksPerUsDenominator)
				clamped := timesync.Clamp(raw, cfg.SyncBound)
				if clamped != raw {
					d.Log.Warn(tschlog.CategoryTX).Int64("raw", raw).Int64("clamped", clamped).Log("drift clamp truncated raw correction")
				}
				appliedDrift = clamped
				slotsSince := timesync.SlotsSince(currentASN, lastSyncASN)
				d.Sync.Update(slotsSince, appliedDrift)
				newLastSync = currentASN
				d.Sync.ScheduleKeepalive()
			} else {
				status = radio.TxNoAck
			}
		} else {
			status = radio.TxNoAck
		}
	}
	d.Gate.Off(radio.OffWithinTimeslot)

	// 10. Classify + bookkeeping.
	pkt.Transmissions++
	pkt.LastResult = status

	// 11. Post-TX neighbor/backoff update.
	removed := false
	if status == radio.TxOK {
		removed = true
	} else if pkt.Transmissions >= cfg.MaxFrameRetries+1 {
		removed = true
	}
	if removed {
		d.Queues.RemovePacketFromQueue(nbr)
	}
	if !nbr.IsBroadcast {
		if status == radio.TxOK {
			if linkShared || d.Queues.IsEmpty(nbr) {
				d.Queues.BackoffReset(nbr)
			}
		} else if linkShared {
			d.Queues.BackoffInc(nbr)
		}
	}

	// 12. Publish or cancel the dequeued-ring reservation.
	if removed {
		*slot = pkt
		d.DequeuedRing.Commit()
	} else {
		d.DequeuedRing.Cancel()
	}

	d.Log.Info(tschlog.CategoryTX).
		Str("status", status.String()).
		Int("transmissions", pkt.Transmissions).
		Bool("removed", removed).
		Log("tx sub-procedure complete")

	return TXOutcome{Status: status, AppliedDrift: appliedDrift, Removed: removed, TxStart: txStart}, newLastSync, nil
}

func packetAirDuration(n int, cfg Config) int64 {
	return int64(n) * cfg.TicksPerByte
}
