package ike

import (
	"net"
	"time"

	"github.com/msgboxio/ikev2/protocol"
	"github.com/msgboxio/ikev2/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Demux is the IKEv2 state demultiplexer: it qualifies incoming
// datagrams, resolves the SA, selects a transition row, drives
// decryption and fragment reassembly, invokes the external handler and
// completes the transition. All of it runs on one event-loop task; the
// only concurrency is explicit handler suspension.
type Demux struct {
	cfg         *Config
	log         *logrus.Entry
	table       *SaTable
	transitions []Transition
	handlers    *Handlers
	cookies     *cookieJar
	stats       *Stats
	rate        *rateLimiter

	send func(b []byte, to net.Addr) error

	timerCh  chan timerEvent
	resumeCh chan resumeEvent
	events   chan Event
	done     chan struct{}
	running  bool
}

type resumeEvent struct {
	serial uint64
	result Result
}

func NewDemux(cfg *Config, handlers *Handlers, logger *logrus.Logger, reg prometheus.Registerer, send func(b []byte, to net.Addr) error) *Demux {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if handlers == nil {
		handlers = &Handlers{}
	}
	d := &Demux{
		cfg:      cfg,
		log:      logrus.NewEntry(logger),
		table:    NewSaTable(),
		handlers: handlers,
		cookies:  newCookieJar(),
		stats:    NewStats(reg),
		rate:     newRateLimiter(time.Second),
		send:     send,
		timerCh:  make(chan timerEvent, 16),
		resumeCh: make(chan resumeEvent, 16),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
	}
	d.transitions = DefaultTransitions(handlers)
	return d
}

func (d *Demux) Table() *SaTable {
	return d.table
}

func (d *Demux) saLog(sa *Sa) *logrus.Entry {
	if sa == nil {
		return d.log
	}
	return d.log.WithFields(logrus.Fields{
		"sa":    sa.Serial,
		"state": sa.State.String(),
	})
}

// ikeSaOf resolves a (possibly child) SA to its IKE SA.
func (d *Demux) ikeSaOf(sa *Sa) *Sa {
	if sa == nil {
		return nil
	}
	if !sa.IsChildSa() {
		return sa
	}
	return d.table.BySerial(sa.ClonedFrom)
}

// suiteOf resolves the key material protecting messages for this SA; a
// Child SA rides inside its parent's window and uses its keys.
func (d *Demux) suiteOf(sa *Sa) Suite {
	if sa == nil {
		return nil
	}
	if sa.Suite != nil {
		return sa.Suite
	}
	if ike := d.ikeSaOf(sa); ike != nil && ike != sa {
		return ike.Suite
	}
	return nil
}

func (d *Demux) rateLog(key, format string, args ...interface{}) {
	if d.rate.allow(key) {
		d.log.Infof(format, args...)
	}
}

// ProcessPacket decodes a datagram and runs it through the
// demultiplexer.
func (d *Demux) ProcessPacket(b []byte, local, remote net.Addr) {
	md, err := DecodeMessage(b, local, remote)
	if err != nil {
		d.rateLog("hdr:"+remote.String(), "dropping unparsable message from %s: %v", remote, err)
		d.stats.drop("header")
		return
	}
	d.ProcessMessage(md)
}

// ProcessMessage classifies a message, resolves its SA and hands it to
// the state machine; spec of record is rfc7296 2.21/2.25 plus the
// hardening rules noted inline.
func (d *Demux) ProcessMessage(md *Message) {
	ix := md.IkeHeader.ExchangeType
	sentByInitiator := md.SentByInitiator()
	log := d.log.WithFields(logrus.Fields{
		"exchange": ix.String(),
		"msgid":    md.IkeHeader.MsgId,
	})

	var sa *Sa
	switch {
	case ix == protocol.IKE_SA_INIT:
		// the message id of the initial exchange is always zero
		if md.IkeHeader.MsgId != 0 {
			log.Info("dropping IKE_SA_INIT message containing non-zero message id")
			d.stats.drop("init-msgid")
			return
		}
		if md.IsRequest() {
			if !sentByInitiator {
				log.Info("dropping IKE_SA_INIT request with conflicting initiator flag")
				d.stats.drop("init-flags")
				return
			}
			// rfc7296 3.1: SPIr must be zero in the first message,
			// including repeats carrying a cookie
			if !SpiIsZero(md.IkeHeader.SpiR) {
				log.Info("dropping IKE_SA_INIT request with non-zero responder SPI")
				d.stats.drop("init-spir")
				return
			}
			sa = d.table.FindByInitiator(md.IkeHeader.SpiI)
			if sa != nil {
				// duplicate code below decides retransmit vs drop
				log.Debugf("IKE_SA_INIT looks like a duplicate for #%d", sa.Serial)
			} else if !d.gateNewExchange(md, log) {
				return
			}
		} else {
			if sentByInitiator {
				log.Info("dropping IKE_SA_INIT response with conflicting initiator flag")
				d.stats.drop("init-flags")
				return
			}
			// SPIr in an error response is zero and in a success
			// response unknown to us; only SPIi can locate the SA
			sa = d.table.FindByInitiator(md.IkeHeader.SpiI)
			if sa == nil {
				log.Info("no matching state for IKE_SA_INIT response; discarding")
				d.stats.drop("no-sa")
				return
			}
			if sa.LastAck != InvalidMsgId {
				log.Infof("already processed IKE_SA_INIT response for #%d; discarding", sa.Serial)
				d.stats.drop("init-dup-response")
				return
			}
			// adopt the responder SPI the peer chose
			if !SpiIsZero(md.IkeHeader.SpiR) {
				oldI, oldR := sa.SpiI, sa.SpiR
				sa.SpiR = append(protocol.Spi{}, md.IkeHeader.SpiR...)
				d.table.Rehash(sa, oldI, oldR)
			}
		}

	case md.IsRequest():
		// a (possibly new) request; the CREATE_CHILD_SA morph below may
		// switch to a child state before dispatching
		sa = d.table.FindBySpis(md.IkeHeader.SpiI, md.IkeHeader.SpiR)
		if sa == nil {
			d.rateLog("no-sa:"+md.RemoteAddr.String(),
				"%s request has no corresponding IKE SA", ix)
			d.stats.drop("no-sa")
			return
		}

	default: // response
		ike := d.table.FindBySpis(md.IkeHeader.SpiI, md.IkeHeader.SpiR)
		if ike == nil {
			d.rateLog("no-sa:"+md.RemoteAddr.String(),
				"%s response has no matching IKE SA", ix)
			d.stats.drop("no-sa")
			return
		}
		// the window lives on the IKE SA whether or not a child is
		// waiting; a replayed response must never reach a handler
		if !d.checkResponseMsgId(ike, md) {
			d.stats.drop("msgid")
			return
		}
		// the child that initiated the request, if one is waiting
		if cst := d.table.FindChild(ike.Serial, md.IkeHeader.MsgId, RoleInitiator); cst != nil {
			sa = cst
		} else {
			sa = ike
		}
	}

	// the I(nitiator) bit must match the IKE SA's role: an initiator
	// only ever receives it clear, a responder set
	if ike := d.ikeSaOf(sa); ike != nil {
		switch ike.Role {
		case RoleInitiator:
			if sentByInitiator {
				d.rateLog("role", "IKE SA initiator received a message with I flag set; dropping")
				d.stats.drop("role")
				return
			}
		case RoleResponder:
			if !sentByInitiator {
				d.rateLog("role", "IKE SA responder received a message with I flag clear; dropping")
				d.stats.drop("role")
				return
			}
		}
	}

	// a busy SA is mid-transition; inbound messages are dropped, not
	// queued - the suspended work completes first
	if sa != nil && sa.busy {
		d.saLog(sa).Debug("state is busy; dropping message")
		d.stats.drop("busy")
		return
	}

	if sa != nil && md.IsRequest() && d.processedRetransmit(sa, md) {
		return
	}

	d.processStatePacket(sa, md)
}

// gateNewExchange applies the DoS rules to an IKE_SA_INIT request with
// no existing state. True means continue and (maybe) create state.
func (d *Demux) gateNewExchange(md *Message, log *logrus.Entry) bool {
	if d.table.HalfOpenCount() >= d.cfg.HalfOpenHardThreshold {
		// log only at debug so an attack cannot fill the disk
		log.Debug("overloaded with half-open SAs; dropping new exchange")
		d.stats.drop("half-open")
		return false
	}
	needCookies := d.table.HalfOpenCount() >= d.cfg.HalfOpenSoftThreshold

	// cookie verification hashes Ni, so the whole chain gets parsed
	// eagerly; a malformed request is answered without creating state
	sum := md.decodeClear(log)
	if !sum.Ok() {
		if needCookies {
			log.Debug("overloaded; not responding to invalid packet")
		} else {
			d.sendNotifyFromMd(md, sum.Notification, sum.Data)
		}
		d.stats.drop("init-malformed")
		return false
	}
	if needCookies && !d.cookies.check(md) {
		token := d.cookies.make(md)
		if token != nil {
			log.Info("demanding cookies before creating state")
			d.sendNotifyFromMd(md, protocol.COOKIE, token)
		}
		d.stats.drop("cookie")
		return false
	}
	return true
}

// processStatePacket selects the transition row and drives fragment
// collection, decryption, encrypted verification, the CREATE_CHILD_SA
// morph, the handler and completion. sa is nil exactly when responding
// to a fresh IKE_SA_INIT request.
func (d *Demux) processStatePacket(sa *Sa, md *Message) {
	fromState := state.InitR0
	if sa != nil {
		fromState = sa.State
	}
	md.FromState = fromState
	ix := md.IkeHeader.ExchangeType
	log := d.saLog(sa).WithField("exchange", ix.String())
	sentByInitiator := md.SentByInitiator()

	var msgErrs, encErrs PayloadErrors
	var haveMsgErrs, haveEncErrs bool
	var selected *Transition

	for i := range d.transitions {
		t := &d.transitions[i]
		if t.RecvType == 0 {
			// initiate rows never match a received message
			continue
		}
		// for CREATE_CHILD_SA the from-state check is bypassed: rekey
		// IKE, rekey child and new child all arrive in the same
		// exchange from the same state; the payload signature decides
		if t.From != fromState && ix != protocol.CREATE_CHILD_SA {
			continue
		}
		if t.RecvType != ix {
			continue
		}
		if t.Flags&FlagIkeISet != 0 && !sentByInitiator {
			continue
		}
		if t.Flags&FlagIkeIClear != 0 && sentByInitiator {
			continue
		}
		if t.Flags&FlagMsgRSet != 0 && md.IsRequest() {
			continue
		}
		if t.Flags&FlagMsgRClear != 0 && md.IsResponse() {
			continue
		}

		// a row looks willing; parse the clear payloads (at most once)
		if !md.ClearPayloads.Parsed {
			sum := md.decodeClear(log)
			if !sum.Ok() {
				// only an IKE_SA_INIT request may be answered here; for
				// anything else this end may respond only after the SK
				// payload verified, so simply drop
				if ix == protocol.IKE_SA_INIT && md.IsRequest() {
					d.sendNotifyFromMd(md, sum.Notification, sum.Data)
				}
				d.complete(sa, md, Result{Kind: ResultFail})
				return
			}
		}
		if errs := verifyPayloads(md, &md.ClearPayloads, &t.MessagePayloads); errs.Bad {
			msgErrs, haveMsgErrs = errs, true
			continue
		}

		// without SK the match is complete
		if !t.MessagePayloads.Required.Has(protocol.PayloadTypeSK) {
			selected = t
			break
		}
		if sa == nil {
			// an SK payload needs state
			continue
		}

		if !md.EncryptedPayloads.Parsed {
			// collect fragments; only the first arrival of the last
			// fragment falls through. When SKEYSEED had to be computed
			// first this code re-enters with all fragments present.
			haveAll := sa.frags.complete()
			if md.ClearPayloads.Seen.Has(protocol.PayloadTypeSKF) && !haveAll {
				if !d.collectFragment(sa, md) {
					return
				}
				haveAll = true
			}
			suite := d.suiteOf(sa)
			if t.Flags&FlagNoSkeyseed != 0 {
				if suite != nil {
					continue
				}
				// matched: the handler kicks off the DH work
				selected = t
				break
			}
			if suite == nil {
				continue
			}

			// authenticated decryption; anything lacking integrity is
			// dropped without a response
			var clear []byte
			var np protocol.PayloadType
			var err error
			if sa.frags.complete() {
				clear, np, err = sa.frags.decrypt(suite, sentByInitiator)
			} else {
				aad, ct := md.SkCiphertext()
				sk := md.Payloads.Get(protocol.PayloadTypeSK)
				clear, err = suite.VerifyDecrypt(aad, ct, sentByInitiator)
				np = sk.NextPayloadType()
			}
			if err != nil {
				d.rateLog("integrity", "encrypted payload seems to be corrupt; dropping packet")
				d.stats.drop("integrity")
				d.complete(sa, md, Ignore())
				return
			}
			sa.frags = nil
			md.EncryptedPayloads = md.DecodePayloads(clear, np, 0, log)
			if !md.EncryptedPayloads.Ok() {
				// 2.21.2: a request gets the error notification, a
				// response gets dropped; the SA is torn down either way
				if md.IsRequest() {
					d.sendNotifyFromSa(sa, md, md.EncryptedPayloads.Notification,
						md.EncryptedPayloads.Data)
				}
				d.complete(sa, md, Fatal())
				return
			}
		}
		if t.Flags&FlagNoSkeyseed != 0 {
			// encrypted payloads decoded, so keys exist
			continue
		}
		if errs := verifyPayloads(md, &md.EncryptedPayloads, &t.EncryptedPayloads); errs.Bad {
			encErrs, haveEncErrs = errs, true
			continue
		}

		selected = t
		break
	}

	if selected == nil {
		// count notifications of rejected messages
		for _, pl := range md.Chain(protocol.PayloadTypeN) {
			d.stats.RecvNotifies.WithLabelValues(
				pl.(*protocol.NotifyPayload).NotificationType.String()).Inc()
		}
		switch {
		case haveMsgErrs:
			log.Infof("dropping unexpected %s message; %s", ix, msgErrs)
			d.complete(sa, md, Fail(protocol.INVALID_SYNTAX))
		case haveEncErrs:
			log.Infof("dropping unexpected %s message; %s", ix, encErrs)
			d.complete(sa, md, Fail(protocol.INVALID_SYNTAX))
		case md.IsRequest():
			// we are the responder so return something: before SK
			// authentication only INVALID_IKE_SPI; after it the SPI is
			// evidently valid, so INVALID_SYNTAX
			if md.EncryptedPayloads.Parsed {
				d.sendNotifyFromSa(sa, md, protocol.INVALID_SYNTAX, nil)
			} else if sa != nil {
				d.sendNotifyFromSa(sa, md, protocol.INVALID_IKE_SPI, nil)
			} else {
				d.sendNotifyFromMd(md, protocol.INVALID_IKE_SPI, nil)
			}
		}
		return
	}

	md.FromState = selected.From
	md.Transition = selected

	if ix == protocol.CREATE_CHILD_SA {
		cst := d.processChildIx(sa, md)
		if cst == nil {
			d.complete(sa, md, Result{Kind: ResultFail})
			return
		}
		// counters advance on the IKE SA before switching to the child
		d.updateMsgidCounters(sa, md)
		sa = cst
	}
	md.Sa = sa

	log.Debugf("selected state microcode: %s", selected.Story)
	result := Ignore()
	if selected.Handler != nil {
		result = selected.Handler(d, sa, md)
	}
	// the handler may have switched the digest to a state it created: a
	// fresh IKE_SA_INIT responder SA, or the Child SA of an IKE_AUTH
	if md.Sa != nil {
		sa = md.Sa
	}
	d.complete(sa, md, result)
}

// processChildIx resolves or creates the child-side state of a
// CREATE_CHILD_SA exchange; the selected row's From state tells rekey
// IKE apart from child work.
func (d *Demux) processChildIx(sa *Sa, md *Message) *Sa {
	// the response lookup may already have resolved the child
	ike := d.ikeSaOf(sa)
	if ike == nil {
		return nil
	}
	log := d.saLog(ike)
	msgid := md.IkeHeader.MsgId

	var cst *Sa
	if md.IsRequest() {
		if d.table.FindChild(ike.Serial, msgid, RoleResponder) != nil {
			log.Infof("CREATE_CHILD_SA request retransmission ignored, msgid %d", msgid)
			return nil
		}
		initial := state.CreateChildR
		what := "child SA request"
		if md.Transition.From == state.RekeyIkeR {
			initial = state.RekeyIkeR
			what = "IKE rekey request"
		}
		cst = d.NewChildSa(ike, RoleResponder, initial, msgid)
		log.Infof("%s, child #%d", what, cst.Serial)
	} else {
		cst = d.table.FindChild(ike.Serial, msgid, RoleInitiator)
		if cst == nil {
			log.Infof("rejecting CREATE_CHILD_SA response, no matching state for msgid %d", msgid)
			return nil
		}
	}
	if cst.busy {
		log.Debugf("child #%d is busy processing a response, dropping this message", cst.Serial)
		return nil
	}
	return cst
}
