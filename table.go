package ike

import (
	"github.com/msgboxio/ikev2/state"
)

// parentMsgid indexes the Child SA waiting on a CREATE_CHILD_SA
// exchange of its parent.
type parentMsgid struct {
	parent uint64
	msgid  uint32
}

// SaTable is the process-wide SA map with its derived views. Only the
// event-loop task mutates it; the secondary indices are maintained in
// lockstep with the primary.
type SaTable struct {
	bySerial    map[uint64]*Sa
	bySpis      map[spiKey]*Sa
	byInitiator map[uint64]*Sa
	byMsgid     map[parentMsgid]*Sa

	nextSerial uint64
	halfOpen   int
}

func NewSaTable() *SaTable {
	return &SaTable{
		bySerial:    make(map[uint64]*Sa),
		bySpis:      make(map[spiKey]*Sa),
		byInitiator: make(map[uint64]*Sa),
		byMsgid:     make(map[parentMsgid]*Sa),
		nextSerial:  1,
	}
}

func (t *SaTable) NextSerial() uint64 {
	s := t.nextSerial
	t.nextSerial++
	return s
}

func (t *SaTable) Insert(sa *Sa) {
	t.bySerial[sa.Serial] = sa
	if !sa.IsChildSa() {
		t.bySpis[makeSaKey(sa.SpiI, sa.SpiR)] = sa
		t.byInitiator[SpiToInt64(sa.SpiI)] = sa
	} else {
		t.byMsgid[parentMsgid{parent: sa.ClonedFrom, msgid: sa.MsgId}] = sa
	}
	if sa.State.Category() == state.CatHalfOpenIke {
		t.halfOpen++
	}
}

func (t *SaTable) Remove(sa *Sa) {
	delete(t.bySerial, sa.Serial)
	if !sa.IsChildSa() {
		delete(t.bySpis, makeSaKey(sa.SpiI, sa.SpiR))
		delete(t.byInitiator, SpiToInt64(sa.SpiI))
	} else {
		delete(t.byMsgid, parentMsgid{parent: sa.ClonedFrom, msgid: sa.MsgId})
	}
	if sa.State.Category() == state.CatHalfOpenIke {
		t.halfOpen--
	}
}

// ChangeState moves an SA between states, keeping the half-open count
// true to the category transition.
func (t *SaTable) ChangeState(sa *Sa, next state.State) {
	was, now := sa.State.Category(), next.Category()
	if was == state.CatHalfOpenIke && now != state.CatHalfOpenIke {
		t.halfOpen--
	} else if was != state.CatHalfOpenIke && now == state.CatHalfOpenIke {
		t.halfOpen++
	}
	sa.State = next
}

// Rehash re-keys an IKE SA after its SPI pair changed (the initiator
// learns SPIr from the SA_INIT response; emancipation swaps in the
// rekeyed pair).
func (t *SaTable) Rehash(sa *Sa, oldSpiI, oldSpiR []byte) {
	delete(t.bySpis, makeSaKey(oldSpiI, oldSpiR))
	delete(t.byInitiator, SpiToInt64(oldSpiI))
	t.bySpis[makeSaKey(sa.SpiI, sa.SpiR)] = sa
	t.byInitiator[SpiToInt64(sa.SpiI)] = sa
}

// Promote turns a Child-SA record into an IKE SA in the indices (used
// at emancipation, after its rekey SPIs became its identity).
func (t *SaTable) Promote(sa *Sa) {
	delete(t.byMsgid, parentMsgid{parent: sa.ClonedFrom, msgid: sa.MsgId})
	sa.ClonedFrom = 0
	t.bySpis[makeSaKey(sa.SpiI, sa.SpiR)] = sa
	t.byInitiator[SpiToInt64(sa.SpiI)] = sa
}

func (t *SaTable) BySerial(serial uint64) *Sa {
	return t.bySerial[serial]
}

// FindBySpis locates an IKE SA by its full SPI pair.
func (t *SaTable) FindBySpis(spiI, spiR []byte) *Sa {
	return t.bySpis[makeSaKey(spiI, spiR)]
}

// FindByInitiator locates an IKE SA by SPIi alone; for SA_INIT requests
// (SPIr is zero) and SA_INIT responses (SPIr not yet known to us).
func (t *SaTable) FindByInitiator(spiI []byte) *Sa {
	return t.byInitiator[SpiToInt64(spiI)]
}

// FindChild locates the Child SA created by (parent, msgid) in the
// given role.
func (t *SaTable) FindChild(parent uint64, msgid uint32, role Role) *Sa {
	child := t.byMsgid[parentMsgid{parent: parent, msgid: msgid}]
	if child != nil && child.Role != role {
		return nil
	}
	return child
}

// RetireChildMsgid drops the (parent, msgid) view once the creating
// exchange is over; the Message-ID window already rejects replays, this
// keeps the index from accreting finished exchanges.
func (t *SaTable) RetireChildMsgid(sa *Sa) {
	delete(t.byMsgid, parentMsgid{parent: sa.ClonedFrom, msgid: sa.MsgId})
}

// MigrateChildren retargets every Child SA of one IKE SA onto another
// (emancipation); only live (parent, msgid) entries move with them.
func (t *SaTable) MigrateChildren(from, to uint64) {
	for _, sa := range t.bySerial {
		if sa.ClonedFrom != from {
			continue
		}
		old := parentMsgid{parent: from, msgid: sa.MsgId}
		if _, ok := t.byMsgid[old]; ok {
			delete(t.byMsgid, old)
			t.byMsgid[parentMsgid{parent: to, msgid: sa.MsgId}] = sa
		}
		sa.ClonedFrom = to
	}
}

// Children lists the Child SAs of a parent.
func (t *SaTable) Children(parent uint64) (children []*Sa) {
	for _, sa := range t.bySerial {
		if sa.ClonedFrom == parent {
			children = append(children, sa)
		}
	}
	return
}

// HalfOpenCount is the number of responder IKE SAs on which
// authentication has not yet completed (states InitR0 and InitR);
// initiator SAs are not counted.
func (t *SaTable) HalfOpenCount() int {
	return t.halfOpen
}

func (t *SaTable) Count() int {
	return len(t.bySerial)
}

func (t *SaTable) ForEach(action func(*Sa)) {
	for _, sa := range t.bySerial {
		action(sa)
	}
}
