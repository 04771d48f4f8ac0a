package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLen(t *testing.T) {
	m := &Message{Header: []byte{0xAA, 0xBB}, Body: []byte{0x01, 0x02, 0x03}}
	require.Equal(t, 5, m.Len())
}

func TestLenNil(t *testing.T) {
	var m *Message
	require.Equal(t, 0, m.Len())
}

func TestClone(t *testing.T) {
	m := &Message{Header: []byte{0xAA}, Body: []byte{0x01, 0x02}}
	c := m.Clone()
	require.Equal(t, m.Header, c.Header)
	require.Equal(t, m.Body, c.Body)

	c.Body[0] = 0xFF
	require.NotEqual(t, m.Body[0], c.Body[0])
}

func TestNew(t *testing.T) {
	m := New(4)
	require.Len(t, m.Body, 4)
	require.Nil(t, m.Header)
}
