package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, l Link) []byte {
	t.Helper()
	select {
	case f, ok := <-l.Frames():
		require.True(t, ok, "frames channel closed")
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return nil
}

func TestPipe_SendReceive(t *testing.T) {
	a, b := NewPipe()
	require.NoError(t, a.Connect())
	require.NoError(t, b.Connect())
	defer a.Close()
	defer b.Close()

	frame := []byte{0x00, 0x80, 0x01, 0x00, 0xFF}
	require.NoError(t, a.Send(frame))
	require.NoError(t, a.Flush())
	assert.Equal(t, frame, receive(t, b))

	require.NoError(t, b.Send([]byte{0x42}))
	assert.Equal(t, []byte{0x42}, receive(t, a))
}

func TestPipe_ConnectTwice(t *testing.T) {
	a, _ := NewPipe()
	require.NoError(t, a.Connect())
	defer a.Close()

	assert.ErrorIs(t, a.Connect(), ErrAlreadyConnected)
	assert.True(t, a.IsConnected())
}

func TestPipe_Close(t *testing.T) {
	a, b := NewPipe()
	require.NoError(t, a.Connect())
	require.NoError(t, b.Connect())

	require.NoError(t, a.Close())
	assert.False(t, a.IsConnected())
	assert.ErrorIs(t, a.Send([]byte{1}), ErrNotConnected)

	// The peer reader sees EOF and closes its channel
	select {
	case _, ok := <-b.Frames():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("peer frames channel not closed")
	}

	require.NoError(t, a.Close(), "closing twice is harmless")
	require.NoError(t, b.Close())
}
