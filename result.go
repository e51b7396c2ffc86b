package ike

import (
	"fmt"

	"github.com/msgboxio/ikev2/protocol"
)

// ResultKind is the outcome a transition handler reports back to the
// completion path.
type ResultKind int

const (
	// ResultOk advances the state machine
	ResultOk ResultKind = iota
	// ResultSuspend parks the SA; Work runs off the event loop and its
	// result re-enters completion when done
	ResultSuspend
	// ResultIgnore leaves the SA untouched
	ResultIgnore
	// ResultDrop destroys the SA silently
	ResultDrop
	// ResultFatal destroys the SA and tells the admin channel
	ResultFatal
	// ResultFail emits Notification if we are the exchange responder
	ResultFail
	// ResultReenter is produced by resumed work that wants the stored
	// message dispatched again (e.g. after SKEYSEED became available)
	ResultReenter
)

// Result is what a transition handler returns; see the Handler contract.
type Result struct {
	Kind         ResultKind
	Notification protocol.NotificationType // ResultFail only
	Work         func() Result             // ResultSuspend only
}

func Ok() Result                              { return Result{Kind: ResultOk} }
func Ignore() Result                          { return Result{Kind: ResultIgnore} }
func Drop() Result                            { return Result{Kind: ResultDrop} }
func Fatal() Result                           { return Result{Kind: ResultFatal} }
func Fail(n protocol.NotificationType) Result { return Result{Kind: ResultFail, Notification: n} }
func Suspend(work func() Result) Result       { return Result{Kind: ResultSuspend, Work: work} }
func Reenter() Result                         { return Result{Kind: ResultReenter} }

func (r Result) String() string {
	switch r.Kind {
	case ResultOk:
		return "Ok"
	case ResultSuspend:
		return "Suspend"
	case ResultIgnore:
		return "Ignore"
	case ResultDrop:
		return "Drop"
	case ResultFatal:
		return "Fatal"
	case ResultFail:
		return fmt.Sprintf("Fail(%s)", r.Notification)
	case ResultReenter:
		return "Reenter"
	}
	return fmt.Sprintf("Result(%d)", int(r.Kind))
}

// TimeoutEvent is scheduled after a successful transition.
type TimeoutEvent int

const (
	// EventNone leaves no timer armed
	EventNone TimeoutEvent = iota
	// EventRetransmit arms request retransmission
	EventRetransmit
	// EventSaReplace arms SA replacement (rekey before lifetime end)
	EventSaReplace
	// EventDiscard discards a half-done SA after a responder wait
	EventDiscard
	// EventRetain keeps whatever timer is already armed
	EventRetain
)

func (e TimeoutEvent) String() string {
	switch e {
	case EventNone:
		return "None"
	case EventRetransmit:
		return "Retransmit"
	case EventSaReplace:
		return "SaReplace"
	case EventDiscard:
		return "Discard"
	case EventRetain:
		return "Retain"
	}
	return fmt.Sprintf("TimeoutEvent(%d)", int(e))
}
