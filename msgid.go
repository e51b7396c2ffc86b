package ike

import (
	"github.com/msgboxio/ikev2/protocol"
	"github.com/msgboxio/ikev2/state"
)

// processedRetransmit decides what to do with a request whose Message
// ID is not ahead of LastRecv. True means the message was fully handled
// here (dropped or answered from the recorded packet) and must not
// reach the state machine.
func (d *Demux) processedRetransmit(sa *Sa, md *Message) bool {
	log := d.saLog(sa)
	m := md.IkeHeader.MsgId

	if sa.LastRecv != InvalidMsgId && sa.LastRecv > m {
		// an old retransmit; nothing we can do
		log.Infof("received too old retransmit: %d < %d", m, sa.LastRecv)
		return true
	}
	if sa.LastRecv != m {
		// presumably not a retransmit
		return false
	}

	if len(sa.sentPacket) == 0 && len(sa.sentFragments) == 0 {
		log.Warningf("retransmission for message id %d but no recorded packet", m)
		return true
	}

	if sa.LastReplied != sa.LastRecv {
		// no reply exists yet for this id: someone (usually a Child SA)
		// is still computing it. A duplicate never re-enters a handler,
		// so drop silently either way
		if cst := d.table.FindChild(sa.Serial, sa.LastRecv, RoleResponder); cst != nil {
			log.Debugf("state #%d is working on message id %d, retransmission ignored",
				cst.Serial, sa.LastRecv)
		} else {
			log.Debugf("no reply recorded yet for message id %d, retransmission ignored",
				sa.LastRecv)
		}
		return true
	}

	// for a fragmented request only the first fragment triggers the
	// retransmit, else every fragment would
	if skf := md.Skf(); skf != nil && skf.FragmentNumber != 1 {
		log.Debugf("ignoring retransmit of message id %d fragment %d", m, skf.FragmentNumber)
		return true
	}
	log.Debugf("retransmitting response for message id %d %s", m, md.IkeHeader.ExchangeType)
	d.sendRecorded(sa)
	d.stats.Retransmits.Inc()
	return true
}

// checkResponseMsgId drops old or unsolicited responses before any
// state machine work. True means keep processing.
func (d *Demux) checkResponseMsgId(sa *Sa, md *Message) bool {
	log := d.saLog(sa)
	m := md.IkeHeader.MsgId

	if sa.LastAck != InvalidMsgId && sa.LastAck >= m {
		log.Debugf("dropping retransmitted response with msgid %d - already processed %d",
			m, sa.LastAck)
		return false
	}
	if sa.NextUse != InvalidMsgId && m >= sa.NextUse {
		log.Debugf("dropping unasked response with msgid %d (our next is %d)", m, sa.NextUse)
		return false
	}
	return true
}

// updateMsgidCounters maintains lastack, nextuse and lastrecv after a
// successful transition (lastreplied is advanced by the completion path
// when a reply is sent), then releases window space to the send queue. st may be a
// Child SA; the counters always live on the IKE SA.
func (d *Demux) updateMsgidCounters(st *Sa, md *Message) {
	if st == nil {
		return
	}
	ike := st
	if st.IsChildSa() {
		if p := d.table.BySerial(st.ClonedFrom); p != nil {
			ike = p
		}
	}

	// mint the next id when a request of ours went out: entering one of
	// the sent-request states via initiation, or entering AuthI (the
	// IKE_AUTH request goes out as part of processing the IKE_SA_INIT
	// response)
	minted := false
	if md == nil || md.IsRequest() {
		switch st.State {
		case state.InitI, state.RekeyIkeI, state.RekeyChildI, state.CreateChildI:
			mint(ike)
			minted = true
		}
	}
	if !minted && st.State == state.AuthI {
		mint(ike)
	}

	if md != nil {
		m := md.IkeHeader.MsgId
		if md.IsResponse() {
			// we initiated this exchange
			if ike.LastAck == InvalidMsgId || m > ike.LastAck {
				ike.LastAck = m
			}
		} else {
			// we responded to this exchange
			if ike.LastRecv == InvalidMsgId || m > ike.LastRecv {
				ike.LastRecv = m
			}
		}
	}

	if ike.Unacked() < ike.windowSize() {
		d.scheduleNextSend(ike)
	}

	d.saLog(st).WithFields(map[string]interface{}{
		"lastack":     int64(int32(ike.LastAck)),
		"nextuse":     int64(int32(ike.NextUse)),
		"lastrecv":    int64(int32(ike.LastRecv)),
		"lastreplied": int64(int32(ike.LastReplied)),
	}).Debug("message id counters")
}

func mint(ike *Sa) {
	if ike.NextUse == InvalidMsgId {
		ike.NextUse = 0
	}
	ike.NextUse++
}

// scheduleNextSend pops one queued outbound request now that the
// window has space.
func (d *Demux) scheduleNextSend(ike *Sa) {
	if len(ike.sendQueue) == 0 {
		return
	}
	p := ike.sendQueue[0]
	ike.sendQueue = ike.sendQueue[1:]
	if p.saSerial != 0 && d.table.BySerial(p.saSerial) == nil {
		// requester died waiting
		return
	}
	p.send()
}

// QueueOutbound runs send immediately if the window has space, else
// parks it until a response frees a slot.
func (d *Demux) QueueOutbound(ike *Sa, forSa uint64, send func()) {
	if ike.Unacked() < ike.windowSize() {
		send()
		return
	}
	ike.sendQueue = append(ike.sendQueue, &pendingRequest{saSerial: forSa, send: send})
}

// restartInitRequest resets the Message IDs so that a COOKIE (or
// INVALID_KE_PAYLOAD) restart looks like a shiny new init request.
func (d *Demux) restartInitRequest(sa *Sa) {
	sa.LastAck = InvalidMsgId
	sa.LastRecv = InvalidMsgId
	sa.LastReplied = InvalidMsgId
	sa.NextUse = 0
	d.table.ChangeState(sa, state.InitI0)
}

// RejectedNotification reports the error notify, if any, that the peer
// used to abort an exchange.
func RejectedNotification(md *Message) (protocol.NotificationType, bool) {
	for _, pl := range md.Chain(protocol.PayloadTypeN) {
		n := pl.(*protocol.NotifyPayload)
		if _, ok := protocol.GetIkeErrorCode(n.NotificationType); ok {
			return n.NotificationType, true
		}
	}
	return protocol.NOTHING_WRONG, false
}
