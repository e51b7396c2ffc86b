package ike

import (
	"time"

	"github.com/msgboxio/ikev2/protocol"
	"github.com/msgboxio/ikev2/state"
)

// complete applies a transition result: advance, suspend, ignore, or
// destroy, per the table in the error-handling design.
func (d *Demux) complete(sa *Sa, md *Message, result Result) {
	d.stats.outcome(result)
	log := d.saLog(sa)

	switch result.Kind {
	case ResultSuspend:
		if sa == nil {
			log.Warning("suspend without a state; ignored")
			return
		}
		// the message digest is owned by the SA until resumed
		sa.busy = true
		sa.suspendedMd = md
		log.Debugf("state transition suspended in %s", sa.State)
		work := result.Work
		serial := sa.Serial
		if work == nil {
			return
		}
		if d.running {
			go func() {
				r := work()
				select {
				case d.resumeCh <- resumeEvent{serial: serial, result: r}:
				case <-d.done:
				}
			}()
		} else {
			// without a running loop (tests, synchronous callers) the
			// work completes inline
			d.handleResume(resumeEvent{serial: serial, result: work()})
		}
		return

	case ResultIgnore:
		log.Debug("complete state transition with Ignore")
		return

	case ResultOk:
		if sa == nil {
			log.Debug("Ok but no state object remains")
			return
		}
		d.successTransition(sa, md, md.Transition)
		return

	case ResultDrop:
		// be very very quiet
		if sa != nil {
			d.deleteSa(sa)
		}
		return

	case ResultFatal:
		log.Warning("encountered fatal error in state transition")
		if sa != nil {
			d.emit(EventSaFatal, sa.Serial)
			d.deleteSa(sa)
		}
		return

	case ResultReenter:
		if sa == nil || md == nil {
			return
		}
		d.processStatePacket(sa, md)
		return

	case ResultFail:
		n := result.Notification
		if n != protocol.NOTHING_WRONG && md != nil && md.IsRequest() {
			// only the exchange responder sends a notification
			log.Infof("state transition failed: %s", n)
			if sa == nil {
				d.sendNotifyFromMd(md, n, nil)
			} else {
				d.sendNotifyFromSa(sa, md, n, nil)
				if md.IkeHeader.ExchangeType == protocol.IKE_SA_INIT {
					d.deleteSa(sa)
				} else {
					// absorb peer retransmits before tearing down
					log.Debugf("forcing #%d to a discard event", sa.Serial)
					d.scheduleTimer(sa, timerDiscard, d.cfg.ResponderWait)
				}
			}
		} else if n != protocol.NOTHING_WRONG {
			log.Infof("state transition failed: %s", n)
		}
		return
	}
}

// handleResume continues a suspended transition. An SA deleted while
// its work was off-loop makes the resume a no-op.
func (d *Demux) handleResume(ev resumeEvent) {
	sa := d.table.BySerial(ev.serial)
	if sa == nil {
		d.log.Debugf("resumed work for deleted #%d; dropped", ev.serial)
		return
	}
	sa.busy = false
	md := sa.suspendedMd
	sa.suspendedMd = nil
	if ev.result.Kind == ResultReenter {
		if md != nil {
			d.processStatePacket(sa, md)
		}
		return
	}
	d.complete(sa, md, ev.result)
}

// successTransition advances the SA: state change (or emancipation),
// Message-ID accounting, response emission, timer scheduling, liveness.
// md is nil when the transition was locally initiated.
func (d *Demux) successTransition(sa *Sa, md *Message, t *Transition) {
	if t == nil {
		return
	}
	log := d.saLog(sa)
	// resolve before any emancipation renames things; the recorded
	// reply still belongs to the IKE SA that ran the exchange
	ike := d.ikeSaOf(sa)

	if t.From == state.RekeyIkeR || t.From == state.RekeyIkeI {
		// counters first, then the child grows up
		d.updateMsgidCounters(sa, md)
		d.emancipate(sa, t)
	} else {
		d.table.ChangeState(sa, t.Next)
		d.updateMsgidCounters(sa, md)
	}

	if t.From != t.Next {
		log.Infof("transition %s -> %s: %s", t.From, sa.State, sa.State.Story())
	}

	// a reply recorded for this request counts as answered whether or
	// not this row sends it itself (informational handlers emit their
	// own); lastreplied must keep up with lastrecv
	if md != nil && md.IsRequest() && ike != nil &&
		ike.sentMsgId == md.IkeHeader.MsgId {
		ike.LastReplied = md.IkeHeader.MsgId
	}
	if t.Flags&FlagSend != 0 && ike != nil {
		d.sendRecorded(ike)
	}

	// a response arrived for our request; its retransmission is over
	if md != nil && md.IsResponse() {
		d.cancelTimer(sa, timerRetransmit)
		if ike != nil && ike != sa {
			d.cancelTimer(ike, timerRetransmit)
		}
	}

	switch t.Timeout {
	case EventRetransmit:
		d.cancelExchangeTimers(sa)
		d.scheduleTimer(sa, timerRetransmit, d.cfg.RetransmitInterval)
	case EventSaReplace:
		d.cancelExchangeTimers(sa)
		d.scheduleTimer(sa, timerReplace, d.cfg.ReplaceInterval)
	case EventDiscard:
		d.cancelExchangeTimers(sa)
		d.scheduleTimer(sa, timerDiscard, d.cfg.ResponderWait)
	case EventRetain:
		// the previous timer stands
	case EventNone:
	}

	if sa.State.IsIkeEstablished() && !t.From.IsIkeEstablished() {
		d.emit(EventSaEstablished, sa.Serial)
	}
	if sa.State.IsChildEstablished() && sa.State != t.From {
		// the creating exchange is over; without this a replayed
		// response could still resolve the installed child
		if sa.IsChildSa() {
			d.table.RetireChildMsgid(sa)
		}
		d.emit(EventChildInstalled, sa.Serial)
		// start liveness probes once the data plane is up
		if sa.Conn != nil && sa.Conn.DpdInterval > 0 {
			d.scheduleTimer(sa, timerLiveness,
				time.Duration(sa.Conn.DpdInterval)*time.Second)
		}
	}
}

// emancipate promotes the child produced by an IKE rekey into a full
// IKE SA: the staged SPI pair becomes its identity, every sibling Child
// SA migrates over, the Message-ID window resets, and the old IKE SA is
// put on a short path to deletion.
func (d *Demux) emancipate(sa *Sa, t *Transition) {
	from := d.table.BySerial(sa.ClonedFrom)
	log := d.saLog(sa)

	sa.LastAck = InvalidMsgId
	sa.LastRecv = InvalidMsgId
	sa.LastReplied = InvalidMsgId
	sa.NextUse = 0

	sa.SpiI = append(protocol.Spi{}, sa.RekeySpiI...)
	sa.SpiR = append(protocol.Spi{}, sa.RekeySpiR...)
	d.table.Promote(sa)
	d.table.ChangeState(sa, t.Next)

	if from != nil {
		d.table.MigrateChildren(from.Serial, sa.Serial)
		log.Infof("emancipated #%d replaces IKE SA #%d", sa.Serial, from.Serial)
		// keep the old SA around briefly to absorb stragglers
		d.table.ChangeState(from, state.IkeSaDelete)
		d.scheduleTimer(from, timerDiscard, d.cfg.ResponderWait)
	}
	d.emit(EventSaEstablished, sa.Serial)
}

// deleteSa removes an SA, its timers and - for an IKE SA - all of its
// children. A Child SA never outlives its parent.
func (d *Demux) deleteSa(sa *Sa) {
	if d.table.BySerial(sa.Serial) == nil {
		return
	}
	if !sa.IsChildSa() {
		for _, child := range d.table.Children(sa.Serial) {
			d.cancelTimers(child)
			d.table.Remove(child)
			d.emit(EventSaDeleted, child.Serial)
		}
	}
	d.cancelTimers(sa)
	d.table.Remove(sa)
	d.saLog(sa).Infof("removed %s SA %#x <=> %#x",
		map[bool]string{true: "child", false: "IKE"}[sa.IsChildSa()],
		sa.SpiI, sa.SpiR)
	d.emit(EventSaDeleted, sa.Serial)
}

// DeleteSa is the admin entry point.
func (d *Demux) DeleteSa(serial uint64) {
	if sa := d.table.BySerial(serial); sa != nil {
		d.deleteSa(sa)
	}
}
