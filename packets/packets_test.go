package packets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWrite(t *testing.T) {
	b := make([]byte, 16)
	WriteB8(b, 0, 0xab)
	WriteB16(b, 1, 0x1234)
	WriteB32(b, 3, 0xdeadbeef)
	WriteB64(b, 7, 0x0102030405060708)

	v8, err := ReadB8(b, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0xab), v8)
	v16, err := ReadB16(b, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v16)
	v32, err := ReadB32(b, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v32)
	v64, err := ReadB64(b, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v64)
}

func TestShortReads(t *testing.T) {
	b := make([]byte, 3)
	_, err := ReadB32(b, 0)
	assert.Equal(t, ErrShort, err)
	_, err = ReadB16(b, 2)
	assert.Equal(t, ErrShort, err)
	_, err = ReadB8(b, 3)
	assert.Equal(t, ErrShort, err)
}
