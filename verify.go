package ike

import (
	"strings"

	"github.com/msgboxio/ikev2/protocol"
)

// ExpectedPayloads is the payload signature a transition row demands of
// a message: the required set, the optional set, and possibly one
// specific notification.
type ExpectedPayloads struct {
	Required protocol.PayloadSet
	Optional protocol.PayloadSet
	// Notification, when not NOTHING_WRONG, must appear in the Notify
	// chain for the row to match
	Notification protocol.NotificationType
}

// PayloadErrors is what the verifier found wrong with a message.
type PayloadErrors struct {
	Bad                 bool
	Missing             protocol.PayloadSet
	Unexpected          protocol.PayloadSet
	Excessive           protocol.PayloadSet
	MissingNotification protocol.NotificationType
}

func (e PayloadErrors) String() string {
	var parts []string
	if !e.Missing.IsEmpty() {
		parts = append(parts, "missing "+e.Missing.String())
	}
	if !e.Unexpected.IsEmpty() {
		parts = append(parts, "unexpected "+e.Unexpected.String())
	}
	if !e.Excessive.IsEmpty() {
		parts = append(parts, "excessive "+e.Excessive.String())
	}
	if e.MissingNotification != protocol.NOTHING_WRONG {
		parts = append(parts, "missing notification "+e.MissingNotification.String())
	}
	if len(parts) == 0 {
		return "ok"
	}
	return strings.Join(parts, "; ")
}

// verifyPayloads matches a decoded summary against an expected
// signature. SKF stands in for SK when it appears on its own.
func verifyPayloads(md *Message, sum *PayloadSummary, expected *ExpectedPayloads) PayloadErrors {
	seen := sum.Seen
	if seen.Has(protocol.PayloadTypeSKF) && !seen.Has(protocol.PayloadTypeSK) {
		seen = seen.Minus(protocol.MakeSet(protocol.PayloadTypeSKF)).
			Add(protocol.PayloadTypeSK)
	}

	errs := PayloadErrors{
		Missing:    expected.Required.Minus(seen),
		Unexpected: seen.Minus(expected.Required).Minus(expected.Optional).Minus(protocol.EverywherePayloads),
		Excessive:  sum.Repeated.Minus(protocol.RepeatablePayloads),
	}
	if !errs.Missing.IsEmpty() || !errs.Unexpected.IsEmpty() || !errs.Excessive.IsEmpty() {
		errs.Bad = true
	}

	if expected.Notification != protocol.NOTHING_WRONG {
		found := false
		for _, pl := range md.Chain(protocol.PayloadTypeN) {
			if pl.(*protocol.NotifyPayload).NotificationType == expected.Notification {
				found = true
				break
			}
		}
		if !found {
			errs.Bad = true
			errs.MissingNotification = expected.Notification
		}
	}
	return errs
}
