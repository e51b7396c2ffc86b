package ike

import (
	"testing"

	"github.com/msgboxio/ikev2/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableLookups(t *testing.T) {
	d, _ := newTestDemux(nil, nil)
	tbl := d.Table()
	spiI, spiR := MakeSpi(), MakeSpi()
	sa := d.NewIkeSa(RoleResponder, state.InitR, spiI, spiR, nil, testLocal, testRemote)

	assert.Equal(t, sa, tbl.FindBySpis(spiI, spiR))
	assert.Equal(t, sa, tbl.FindByInitiator(spiI))
	assert.Equal(t, sa, tbl.BySerial(sa.Serial))
	assert.Nil(t, tbl.FindBySpis(spiI, MakeSpi()))
}

func TestTableRehash(t *testing.T) {
	d, _ := newTestDemux(nil, nil)
	tbl := d.Table()
	spiI := MakeSpi()
	sa := d.NewIkeSa(RoleInitiator, state.InitI, spiI, zeroSpi, nil, testLocal, testRemote)

	// the responder SPI gets learned from the SA_INIT response
	oldI, oldR := sa.SpiI, sa.SpiR
	spiR := MakeSpi()
	sa.SpiR = spiR
	tbl.Rehash(sa, oldI, oldR)

	assert.Equal(t, sa, tbl.FindBySpis(spiI, spiR))
	assert.Nil(t, tbl.FindBySpis(spiI, zeroSpi))
}

func TestTableChildIndex(t *testing.T) {
	d, _ := newTestDemux(nil, nil)
	tbl := d.Table()
	ike := d.NewIkeSa(RoleInitiator, state.EstablishedI, MakeSpi(), MakeSpi(), nil, testLocal, testRemote)
	child := d.NewChildSa(ike, RoleInitiator, state.CreateChildI, 3)

	assert.Equal(t, child, tbl.FindChild(ike.Serial, 3, RoleInitiator))
	// wrong role does not match
	assert.Nil(t, tbl.FindChild(ike.Serial, 3, RoleResponder))
	assert.Nil(t, tbl.FindChild(ike.Serial, 4, RoleInitiator))
}

func TestTableMigrateChildren(t *testing.T) {
	d, _ := newTestDemux(nil, nil)
	tbl := d.Table()
	oldIke := d.NewIkeSa(RoleInitiator, state.EstablishedI, MakeSpi(), MakeSpi(), nil, testLocal, testRemote)
	newIke := d.NewIkeSa(RoleInitiator, state.EstablishedI, MakeSpi(), MakeSpi(), nil, testLocal, testRemote)
	c1 := d.NewChildSa(oldIke, RoleInitiator, state.ChildInstalledI, 1)
	c2 := d.NewChildSa(oldIke, RoleInitiator, state.ChildInstalledI, 2)

	tbl.MigrateChildren(oldIke.Serial, newIke.Serial)

	assert.Equal(t, newIke.Serial, c1.ClonedFrom)
	assert.Equal(t, newIke.Serial, c2.ClonedFrom)
	assert.Equal(t, c1, tbl.FindChild(newIke.Serial, 1, RoleInitiator))
	assert.Nil(t, tbl.FindChild(oldIke.Serial, 1, RoleInitiator))
}

func TestTableHalfOpenAccounting(t *testing.T) {
	d, _ := newTestDemux(nil, nil)
	tbl := d.Table()
	require.Equal(t, 0, tbl.HalfOpenCount())

	sa := d.NewIkeSa(RoleResponder, state.InitR0, MakeSpi(), MakeSpi(), nil, testLocal, testRemote)
	assert.Equal(t, 1, tbl.HalfOpenCount())

	// still half-open after the SA_INIT reply
	tbl.ChangeState(sa, state.InitR)
	assert.Equal(t, 1, tbl.HalfOpenCount())

	// authentication completes
	tbl.ChangeState(sa, state.EstablishedR)
	assert.Equal(t, 0, tbl.HalfOpenCount())

	tbl.ChangeState(sa, state.InitR)
	assert.Equal(t, 1, tbl.HalfOpenCount())
	d.deleteSa(sa)
	assert.Equal(t, 0, tbl.HalfOpenCount())
}

func TestDeleteIkeSaTakesChildren(t *testing.T) {
	d, _ := newTestDemux(nil, nil)
	tbl := d.Table()
	ike := d.NewIkeSa(RoleInitiator, state.EstablishedI, MakeSpi(), MakeSpi(), nil, testLocal, testRemote)
	child := d.NewChildSa(ike, RoleInitiator, state.ChildInstalledI, 1)

	d.deleteSa(ike)
	assert.Nil(t, tbl.BySerial(ike.Serial))
	assert.Nil(t, tbl.BySerial(child.Serial), "a Child SA never outlives its parent")
	assert.Equal(t, 0, tbl.Count())
}
