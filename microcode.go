package ike

import (
	"github.com/msgboxio/ikev2/protocol"
	"github.com/msgboxio/ikev2/state"
)

// TransitionFlags constrain when a transition row may fire and what the
// completion path does on success.
type TransitionFlags uint8

const (
	// FlagIkeISet / FlagIkeIClear: the I(nitiator) header bit must be
	// set / clear; neither means don't-care
	FlagIkeISet TransitionFlags = 1 << iota
	FlagIkeIClear
	// FlagMsgRSet / FlagMsgRClear: same for the R(esponse) bit
	FlagMsgRSet
	FlagMsgRClear
	// FlagSend: record-and-send the reply packet on success
	FlagSend
	// FlagNoSkeyseed: the row only applies while SKEYSEED is absent
	// (responder received IKE_AUTH before finishing its DH work)
	FlagNoSkeyseed
)

// HandlerFunc advances the SA past one transition. Handlers may mutate
// SA fields, build and record a response, enqueue follow-up work, or
// suspend with a continuation; they never touch the SA table.
type HandlerFunc func(d *Demux, sa *Sa, md *Message) Result

// Handlers binds the exchange-specific processors into the transition
// table. A nil field makes the corresponding rows ignore the message.
type Handlers struct {
	// InitR0 -> InitR: respond to IKE_SA_INIT. Called with sa == nil;
	// the handler creates the responder SA (NewIkeSa) and stores it in
	// md.Sa for the completion path
	InitRequest HandlerFunc
	// InitI -> AuthI: process IKE_SA_INIT reply, initiate IKE_AUTH
	InitResponse HandlerFunc
	// InitI -> InitI: COOKIE or INVALID_KE_PAYLOAD restart. The
	// handler arranges the restart (RestartInitiator + Initiate) and
	// returns Ignore so the counters stay untouched
	InitNotification HandlerFunc
	// InitR -> InitR: IKE_AUTH arrived before SKEYSEED; kick off DH
	AuthRequestNoSkeyseed HandlerFunc
	// InitR -> ChildInstalledR: process IKE_AUTH request
	AuthRequest HandlerFunc
	// AuthI -> ChildInstalledI: process IKE_AUTH response
	AuthResponse HandlerFunc
	// AuthI -> AuthI: typed failure notification in IKE_AUTH response
	AuthFailureNotification HandlerFunc
	// AuthI -> AuthI: IKE_AUTH response with unknown notification
	AuthUnknownNotification HandlerFunc
	// RekeyIkeR -> EstablishedR: respond to IKE SA rekey
	RekeyIkeRequest HandlerFunc
	// RekeyIkeI -> EstablishedI: process IKE SA rekey response
	RekeyIkeResponse HandlerFunc
	// CreateChildR -> ChildInstalledR: respond to Child SA create/rekey
	ChildRequest HandlerFunc
	// CreateChildI -> ChildInstalledI: process Child SA create/rekey
	// response (the resolved child knows which it was)
	ChildResponse HandlerFunc
	// INFORMATIONAL in established and deleting states
	Informational HandlerFunc
}

// Transition is one arc of the state machine. Rows for the same From
// state are tried in declaration order so a more specific row (e.g. a
// required failure notification) wins over a generic one.
type Transition struct {
	Story      string
	From, Next state.State
	Flags      TransitionFlags
	RecvType   protocol.IkeExchangeType

	MessagePayloads   ExpectedPayloads
	EncryptedPayloads ExpectedPayloads

	Handler HandlerFunc
	Timeout TimeoutEvent
}

func set(types ...protocol.PayloadType) protocol.PayloadSet {
	return protocol.MakeSet(types...)
}

// DefaultTransitions builds the transition table. Initiate rows (no
// RecvType) are selected by the initiation path, not by the message
// dispatcher.
func DefaultTransitions(h *Handlers) []Transition {
	return []Transition{

		// no state:   --> CREATE_CHILD_SA IKE rekey request
		// HDR, SAi, KEi, Ni -->
		{
			Story:   "initiate CREATE_CHILD_SA IKE rekey",
			From:    state.RekeyIkeI0,
			Next:    state.RekeyIkeI,
			Flags:   FlagIkeIClear | FlagMsgRSet | FlagSend,
			Timeout: EventRetransmit,
		},

		// no state:   --> CREATE_CHILD_SA Child rekey request
		// HDR, SA, N(REKEY_SA), {KEi,} Ni, TSi, TSr -->
		{
			Story:   "initiate CREATE_CHILD_SA Child rekey",
			From:    state.RekeyChildI0,
			Next:    state.RekeyChildI,
			Flags:   FlagIkeIClear | FlagMsgRSet | FlagSend,
			Timeout: EventRetransmit,
		},

		// no state:   --> CREATE_CHILD_SA new Child request
		// HDR, SA, {KEi,} Ni, TSi, TSr -->
		{
			Story:   "initiate CREATE_CHILD_SA",
			From:    state.CreateChildI0,
			Next:    state.CreateChildI,
			Flags:   FlagIkeIClear | FlagMsgRSet | FlagSend,
			Timeout: EventRetransmit,
		},

		// no state:   --> InitI
		// HDR, SAi1, KEi, Ni -->
		{
			Story:   "initiate IKE_SA_INIT",
			From:    state.InitI0,
			Next:    state.InitI,
			Flags:   FlagIkeIClear | FlagMsgRSet | FlagSend,
			Timeout: EventRetransmit,
		},

		// InitI:   <-- HDR, N(COOKIE|INVALID_KE_PAYLOAD|...)
		// restart with the token / other group
		{
			Story:           "process IKE_SA_INIT reply notification",
			From:            state.InitI,
			Next:            state.InitI,
			Flags:           FlagIkeIClear | FlagMsgRSet | FlagSend,
			RecvType:        protocol.IKE_SA_INIT,
			MessagePayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeN)},
			Handler:         h.InitNotification,
			Timeout:         EventRetain,
		},

		// InitI --> AuthI
		//   <-- HDR, SAr1, KEr, Nr, [CERTREQ]
		// HDR, SK {IDi, [CERT,] [CERTREQ,] [IDr,] AUTH, SAi2, TSi, TSr} -->
		{
			Story:    "process IKE_SA_INIT reply, initiate IKE_AUTH",
			From:     state.InitI,
			Next:     state.AuthI,
			Flags:    FlagIkeIClear | FlagMsgRSet | FlagSend,
			RecvType: protocol.IKE_SA_INIT,
			MessagePayloads: ExpectedPayloads{
				Required: set(protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce),
				Optional: set(protocol.PayloadTypeCERTREQ),
			},
			Handler: h.InitResponse,
			Timeout: EventRetransmit,
		},

		// AuthI: typed failure notifications, tried before the generic
		// response row
		{
			Story:             "process INVALID_SYNTAX AUTH notification",
			From:              state.AuthI,
			Next:              state.AuthI,
			Flags:             FlagIkeIClear | FlagMsgRSet,
			RecvType:          protocol.IKE_AUTH,
			MessagePayloads:   ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeN), Notification: protocol.INVALID_SYNTAX},
			Handler:           h.AuthFailureNotification,
		},
		{
			Story:             "process AUTHENTICATION_FAILED AUTH notification",
			From:              state.AuthI,
			Next:              state.AuthI,
			Flags:             FlagIkeIClear | FlagMsgRSet,
			RecvType:          protocol.IKE_AUTH,
			MessagePayloads:   ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeN), Notification: protocol.AUTHENTICATION_FAILED},
			Handler:           h.AuthFailureNotification,
		},
		{
			Story:             "process UNSUPPORTED_CRITICAL_PAYLOAD AUTH notification",
			From:              state.AuthI,
			Next:              state.AuthI,
			Flags:             FlagIkeIClear | FlagMsgRSet,
			RecvType:          protocol.IKE_AUTH,
			MessagePayloads:   ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeN), Notification: protocol.UNSUPPORTED_CRITICAL_PAYLOAD},
			Handler:           h.AuthFailureNotification,
		},

		// AuthI --> ChildInstalledI
		//   <-- HDR, SK {IDr, [CERT,] AUTH, SAr2, TSi, TSr}
		{
			Story:           "process IKE_AUTH response",
			From:            state.AuthI,
			Next:            state.ChildInstalledI,
			Flags:           FlagIkeIClear | FlagMsgRSet,
			RecvType:        protocol.IKE_AUTH,
			MessagePayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{
				Required: set(protocol.PayloadTypeIDr, protocol.PayloadTypeAUTH,
					protocol.PayloadTypeSA, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr),
				Optional: set(protocol.PayloadTypeCERT, protocol.PayloadTypeCP),
			},
			Handler: h.AuthResponse,
			Timeout: EventSaReplace,
		},
		{
			Story:             "process IKE_AUTH response containing unknown notification",
			From:              state.AuthI,
			Next:              state.AuthI,
			Flags:             FlagIkeIClear | FlagMsgRSet,
			RecvType:          protocol.IKE_AUTH,
			MessagePayloads:   ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeN)},
			Handler:           h.AuthUnknownNotification,
		},

		// no state: InitR0 --> InitR
		//   <-- HDR, SAi1, KEi, Ni
		// HDR, SAr1, KEr, Nr, [CERTREQ] -->
		{
			Story:    "respond to IKE_SA_INIT",
			From:     state.InitR0,
			Next:     state.InitR,
			Flags:    FlagIkeISet | FlagMsgRClear | FlagSend,
			RecvType: protocol.IKE_SA_INIT,
			MessagePayloads: ExpectedPayloads{
				Required: set(protocol.PayloadTypeSA, protocol.PayloadTypeKE, protocol.PayloadTypeNonce),
			},
			Handler: h.InitRequest,
			Timeout: EventDiscard,
		},

		// InitR: IKE_AUTH request while g^xy is still cooking; collect
		// fragments, start the computation and re-enter later
		{
			Story:           "process IKE_AUTH request (no SKEYSEED)",
			From:            state.InitR,
			Next:            state.InitR,
			Flags:           FlagIkeISet | FlagMsgRClear | FlagSend | FlagNoSkeyseed,
			RecvType:        protocol.IKE_AUTH,
			MessagePayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			Handler:         h.AuthRequestNoSkeyseed,
			Timeout:         EventSaReplace,
		},

		// InitR --> ChildInstalledR
		//   <-- HDR, SK {IDi, [CERT,] [CERTREQ,] [IDr,] AUTH, SAi2, TSi, TSr}
		// HDR, SK {IDr, [CERT,] AUTH, SAr2, TSi, TSr} -->
		{
			Story:           "respond to IKE_AUTH request",
			From:            state.InitR,
			Next:            state.ChildInstalledR,
			Flags:           FlagIkeISet | FlagMsgRClear | FlagSend,
			RecvType:        protocol.IKE_AUTH,
			MessagePayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{
				Required: set(protocol.PayloadTypeIDi, protocol.PayloadTypeAUTH,
					protocol.PayloadTypeSA, protocol.PayloadTypeTSi, protocol.PayloadTypeTSr),
				Optional: set(protocol.PayloadTypeCERT, protocol.PayloadTypeCERTREQ,
					protocol.PayloadTypeIDr, protocol.PayloadTypeCP),
			},
			Handler: h.AuthRequest,
			Timeout: EventSaReplace,
		},

		// CREATE_CHILD_SA: the from_state check is bypassed for this
		// exchange; the encrypted payload signature and the REKEY_SA
		// notify decide which of these rows applies (rekey-IKE,
		// rekey-child and new-child all arrive alike).

		// RekeyIkeR --> EstablishedR
		//   <-- HDR, SK {SA, Ni, KEi}
		// HDR, SK {SA, Nr, KEr} -->
		{
			Story:           "respond to CREATE_CHILD_SA IKE rekey",
			From:            state.RekeyIkeR,
			Next:            state.EstablishedR,
			Flags:           FlagMsgRClear | FlagSend,
			RecvType:        protocol.CREATE_CHILD_SA,
			MessagePayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{
				Required: set(protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeKE),
			},
			Handler: h.RekeyIkeRequest,
			Timeout: EventSaReplace,
		},

		// RekeyIkeI --> EstablishedI
		{
			Story:           "process CREATE_CHILD_SA IKE rekey response",
			From:            state.RekeyIkeI,
			Next:            state.EstablishedI,
			Flags:           FlagMsgRSet,
			RecvType:        protocol.CREATE_CHILD_SA,
			MessagePayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{
				Required: set(protocol.PayloadTypeSA, protocol.PayloadTypeNonce, protocol.PayloadTypeKE),
			},
			Handler: h.RekeyIkeResponse,
			Timeout: EventSaReplace,
		},

		// CreateChildI --> ChildInstalledI (also the Child rekey reply)
		{
			Story:           "process CREATE_CHILD_SA response",
			From:            state.CreateChildI,
			Next:            state.ChildInstalledI,
			Flags:           FlagMsgRSet,
			RecvType:        protocol.CREATE_CHILD_SA,
			MessagePayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{
				Required: set(protocol.PayloadTypeSA, protocol.PayloadTypeNonce,
					protocol.PayloadTypeTSi, protocol.PayloadTypeTSr),
				Optional: set(protocol.PayloadTypeKE),
			},
			Handler: h.ChildResponse,
			Timeout: EventSaReplace,
		},

		// CreateChildR --> ChildInstalledR (create and Child rekey)
		{
			Story:           "respond to CREATE_CHILD_SA request",
			From:            state.CreateChildR,
			Next:            state.ChildInstalledR,
			Flags:           FlagMsgRClear | FlagSend,
			RecvType:        protocol.CREATE_CHILD_SA,
			MessagePayloads: ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{
				Required: set(protocol.PayloadTypeSA, protocol.PayloadTypeNonce,
					protocol.PayloadTypeTSi, protocol.PayloadTypeTSr),
				Optional: set(protocol.PayloadTypeKE),
			},
			Handler: h.ChildRequest,
			Timeout: EventSaReplace,
		},

		// INFORMATIONAL (rfc7296 1.4):
		// HDR, SK {[N,] [D,] [CP,] ...}  -->
		//   <--  HDR, SK {[N,] [D,] [CP], ...}
		{
			Story:             "EstablishedI: INFORMATIONAL request",
			From:              state.EstablishedI,
			Next:              state.EstablishedI,
			Flags:             FlagMsgRClear,
			RecvType:          protocol.INFORMATIONAL,
			MessagePayloads:   ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{Optional: set(protocol.PayloadTypeD, protocol.PayloadTypeCP)},
			Handler:           h.Informational,
			Timeout:           EventRetain,
		},
		{
			Story:             "EstablishedI: INFORMATIONAL response",
			From:              state.EstablishedI,
			Next:              state.EstablishedI,
			Flags:             FlagMsgRSet,
			RecvType:          protocol.INFORMATIONAL,
			MessagePayloads:   ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{Optional: set(protocol.PayloadTypeD, protocol.PayloadTypeCP)},
			Handler:           h.Informational,
			Timeout:           EventRetain,
		},
		{
			Story:             "EstablishedR: INFORMATIONAL request",
			From:              state.EstablishedR,
			Next:              state.EstablishedR,
			Flags:             FlagMsgRClear,
			RecvType:          protocol.INFORMATIONAL,
			MessagePayloads:   ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{Optional: set(protocol.PayloadTypeD, protocol.PayloadTypeCP)},
			Handler:           h.Informational,
			Timeout:           EventRetain,
		},
		{
			Story:             "EstablishedR: INFORMATIONAL response",
			From:              state.EstablishedR,
			Next:              state.EstablishedR,
			Flags:             FlagMsgRSet,
			RecvType:          protocol.INFORMATIONAL,
			MessagePayloads:   ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{Optional: set(protocol.PayloadTypeD, protocol.PayloadTypeCP)},
			Handler:           h.Informational,
			Timeout:           EventRetain,
		},
		{
			Story:             "IkeSaDelete: process INFORMATIONAL",
			From:              state.IkeSaDelete,
			Next:              state.IkeSaDelete,
			RecvType:          protocol.INFORMATIONAL,
			MessagePayloads:   ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{Optional: set(protocol.PayloadTypeD, protocol.PayloadTypeCP)},
			Handler:           h.Informational,
			Timeout:           EventRetain,
		},
		{
			Story:             "ChildSaDelete: process INFORMATIONAL",
			From:              state.ChildSaDelete,
			Next:              state.ChildSaDelete,
			RecvType:          protocol.INFORMATIONAL,
			MessagePayloads:   ExpectedPayloads{Required: set(protocol.PayloadTypeSK)},
			EncryptedPayloads: ExpectedPayloads{Optional: set(protocol.PayloadTypeD, protocol.PayloadTypeCP)},
			Handler:           h.Informational,
			Timeout:           EventRetain,
		},
	}
}
