// Package state enumerates the finite states of an IKE or Child SA and
// the DoS-accounting category of each.
package state

import "fmt"

type State int

const (
	Idle State = iota

	// IKE SA initiator
	InitI0       // nothing sent yet
	InitI        // sent IKE_SA_INIT request
	AuthI        // sent IKE_AUTH request
	EstablishedI // IKE SA established, original initiator

	// IKE SA responder
	InitR0       // no state; first IKE_SA_INIT request pending
	InitR        // sent IKE_SA_INIT response
	EstablishedR // IKE SA established, original responder

	// Child SA via CREATE_CHILD_SA
	CreateChildI0 // about to initiate a new Child SA
	CreateChildI  // sent CREATE_CHILD_SA request for a new Child SA
	RekeyChildI0  // about to initiate a Child SA rekey
	RekeyChildI   // sent CREATE_CHILD_SA request rekeying a Child SA
	CreateChildR  // responding to a Child SA create or rekey

	// IKE SA rekey
	RekeyIkeI0 // about to initiate an IKE SA rekey
	RekeyIkeI  // sent CREATE_CHILD_SA request rekeying the IKE SA
	RekeyIkeR  // responding to an IKE SA rekey

	// Child SA installed
	ChildInstalledI // Child SA up, exchange initiator
	ChildInstalledR // Child SA up, exchange responder

	// deletion exchanges
	IkeSaDelete
	ChildSaDelete

	Finished

	stateRoof
)

// Category buckets states for DoS accounting; a responder gates new
// exchanges on the number of SAs in HalfOpenIke.
type Category int

const (
	CatIgnore Category = iota
	CatHalfOpenIke
	CatOpenIke
	CatEstablishedIke
	CatEstablishedChild
	CatInformational
)

func (s State) Category() Category {
	switch s {
	case InitR0, InitR:
		return CatHalfOpenIke
	case InitI0, InitI, AuthI, RekeyIkeI0, RekeyIkeI, RekeyIkeR:
		return CatOpenIke
	case EstablishedI, EstablishedR:
		return CatEstablishedIke
	case ChildInstalledI, ChildInstalledR:
		return CatEstablishedChild
	case CreateChildI0, CreateChildI, RekeyChildI0, RekeyChildI, CreateChildR,
		IkeSaDelete, ChildSaDelete:
		return CatInformational
	}
	return CatIgnore
}

// IsChildEstablished reports a Child SA data-plane state.
func (s State) IsChildEstablished() bool {
	return s == ChildInstalledI || s == ChildInstalledR
}

func (s State) IsIkeEstablished() bool {
	return s == EstablishedI || s == EstablishedR
}

var names = map[State]string{
	Idle:            "Idle",
	InitI0:          "InitI0",
	InitI:           "InitI",
	AuthI:           "AuthI",
	EstablishedI:    "EstablishedI",
	InitR0:          "InitR0",
	InitR:           "InitR",
	EstablishedR:    "EstablishedR",
	CreateChildI0:   "CreateChildI0",
	CreateChildI:    "CreateChildI",
	RekeyChildI0:    "RekeyChildI0",
	RekeyChildI:     "RekeyChildI",
	CreateChildR:    "CreateChildR",
	RekeyIkeI0:      "RekeyIkeI0",
	RekeyIkeI:       "RekeyIkeI",
	RekeyIkeR:       "RekeyIkeR",
	ChildInstalledI: "ChildInstalledI",
	ChildInstalledR: "ChildInstalledR",
	IkeSaDelete:     "IkeSaDelete",
	ChildSaDelete:   "ChildSaDelete",
	Finished:        "Finished",
}

func (s State) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var stories = map[State]string{
	InitI0:          "ready to initiate IKE_SA_INIT",
	InitI:           "sent IKE_SA_INIT request, expecting reply",
	AuthI:           "sent IKE_AUTH request, expecting reply",
	EstablishedI:    "IKE SA established (initiator)",
	InitR0:          "expecting first IKE_SA_INIT request",
	InitR:           "sent IKE_SA_INIT response, expecting IKE_AUTH",
	EstablishedR:    "IKE SA established (responder)",
	CreateChildI0:   "ready to initiate CREATE_CHILD_SA",
	CreateChildI:    "sent CREATE_CHILD_SA request for new Child SA",
	RekeyChildI0:    "ready to rekey Child SA",
	RekeyChildI:     "sent CREATE_CHILD_SA request rekeying Child SA",
	CreateChildR:    "responding to CREATE_CHILD_SA",
	RekeyIkeI0:      "ready to rekey IKE SA",
	RekeyIkeI:       "sent CREATE_CHILD_SA request rekeying IKE SA",
	RekeyIkeR:       "responding to IKE SA rekey",
	ChildInstalledI: "Child SA installed (initiator)",
	ChildInstalledR: "Child SA installed (responder)",
	IkeSaDelete:     "deleting IKE SA",
	ChildSaDelete:   "deleting Child SA",
	Finished:        "done",
}

func (s State) Story() string {
	if st, ok := stories[s]; ok {
		return st
	}
	return s.String()
}
