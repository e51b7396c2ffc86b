package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategories(t *testing.T) {
	assert.Equal(t, CatHalfOpenIke, InitR0.Category())
	assert.Equal(t, CatHalfOpenIke, InitR.Category())
	assert.Equal(t, CatOpenIke, InitI.Category())
	assert.Equal(t, CatOpenIke, AuthI.Category())
	assert.Equal(t, CatEstablishedIke, EstablishedI.Category())
	assert.Equal(t, CatEstablishedIke, EstablishedR.Category())
	assert.Equal(t, CatEstablishedChild, ChildInstalledI.Category())
	assert.Equal(t, CatInformational, IkeSaDelete.Category())
	assert.Equal(t, CatIgnore, Idle.Category())
}

func TestEveryStateHasNameAndStory(t *testing.T) {
	for s := Idle + 1; s < stateRoof; s++ {
		assert.NotContains(t, s.String(), "State(", "state %d has no name", int(s))
		assert.NotEmpty(t, s.Story())
	}
}

func TestEstablishedPredicates(t *testing.T) {
	assert.True(t, EstablishedI.IsIkeEstablished())
	assert.True(t, EstablishedR.IsIkeEstablished())
	assert.False(t, InitR.IsIkeEstablished())
	assert.True(t, ChildInstalledR.IsChildEstablished())
	assert.False(t, EstablishedR.IsChildEstablished())
}
