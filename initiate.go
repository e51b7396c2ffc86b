package ike

import (
	"net"

	"github.com/msgboxio/ikev2/protocol"
	"github.com/msgboxio/ikev2/state"
	"github.com/pkg/errors"
)

// NewIkeSa creates and registers a fresh IKE SA.
func (d *Demux) NewIkeSa(role Role, initial state.State, spiI, spiR protocol.Spi, conn *ConnectionPolicy, local, remote net.Addr) *Sa {
	sa := &Sa{
		Serial:      d.table.NextSerial(),
		SpiI:        append(protocol.Spi{}, spiI...),
		SpiR:        append(protocol.Spi{}, spiR...),
		Role:        role,
		State:       initial,
		LastAck:     InvalidMsgId,
		NextUse:     0,
		LastRecv:    InvalidMsgId,
		LastReplied: InvalidMsgId,
		sentMsgId:   InvalidMsgId,
		Conn:        conn,
		Local:       local,
		Remote:      remote,
	}
	d.table.Insert(sa)
	return sa
}

// NewChildSa registers a Child SA under its parent, keyed by the
// Message ID of the creating exchange. For an exchange we are about to
// initiate the id is re-pinned once the request actually goes out.
func (d *Demux) NewChildSa(ike *Sa, role Role, initial state.State, msgid uint32) *Sa {
	cst := &Sa{
		Serial:      d.table.NextSerial(),
		ClonedFrom:  ike.Serial,
		Role:        role,
		State:       initial,
		MsgId:       msgid,
		LastAck:     InvalidMsgId,
		NextUse:     InvalidMsgId,
		LastRecv:    InvalidMsgId,
		LastReplied: InvalidMsgId,
		sentMsgId:   InvalidMsgId,
		Conn:        ike.Conn,
		Local:       ike.Local,
		Remote:      ike.Remote,
	}
	d.table.Insert(cst)
	return cst
}

// findInitiateRow selects the initiate transition for the SA's state.
func (d *Demux) findInitiateRow(from state.State) *Transition {
	for i := range d.transitions {
		t := &d.transitions[i]
		if t.RecvType == 0 && t.From == from {
			return t
		}
	}
	return nil
}

// Initiate drives an initiate row: record builds and records the
// outgoing request (via RecordRequest); the completion path then sends
// it, advances the state and arms retransmission. The request waits in
// the send queue when the window is full.
func (d *Demux) Initiate(sa *Sa, record func() error) error {
	t := d.findInitiateRow(sa.State)
	if t == nil {
		return errors.Errorf("no initiate transition from %s", sa.State)
	}
	ike := d.ikeSaOf(sa)
	if ike == nil {
		return errors.New("no IKE SA to initiate on")
	}
	start := func() {
		if sa.busy {
			d.saLog(sa).Debug("busy; dropping initiate")
			return
		}
		if err := record(); err != nil {
			d.saLog(sa).Warningf("initiate: %v", err)
			return
		}
		if sa != ike && sa.IsChildSa() {
			// pin the child to the Message ID actually used
			d.table.Remove(sa)
			sa.MsgId = ike.NextUse
			if sa.MsgId == InvalidMsgId {
				sa.MsgId = 0
			}
			d.table.Insert(sa)
		}
		d.successTransition(sa, nil, t)
	}
	d.QueueOutbound(ike, sa.Serial, start)
	return nil
}

// ChangeState moves an SA between states on a handler's behalf,
// keeping the DoS accounting straight.
func (d *Demux) ChangeState(sa *Sa, next state.State) {
	d.table.ChangeState(sa, next)
}

// EstablishIkeSa marks an IKE SA authenticated: half-open gating ends,
// the exchange timers are cleared and replacement is scheduled.
func (d *Demux) EstablishIkeSa(sa *Sa, next state.State) {
	d.cancelTimer(sa, timerDiscard)
	d.cancelTimer(sa, timerRetransmit)
	d.table.ChangeState(sa, next)
	d.scheduleTimer(sa, timerReplace, d.cfg.ReplaceInterval)
}

// RestartInitiator resets an initiator SA that got a COOKIE or
// INVALID_KE_PAYLOAD answer so the next IKE_SA_INIT goes out as a
// fresh first message.
func (d *Demux) RestartInitiator(sa *Sa) {
	d.cancelTimer(sa, timerRetransmit)
	d.restartInitRequest(sa)
}
