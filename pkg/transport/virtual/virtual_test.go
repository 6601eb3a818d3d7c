package virtual

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRecvRoundTrip(t *testing.T) {
	aConn, bConn := net.Pipe()
	defer aConn.Close()
	defer bConn.Close()

	a := New(1, aConn, nil)
	b := New(2, bConn, nil)

	done := make(chan struct{})
	go func() {
		n, err := a.Send([]byte{0xFF, 0x00, 0x08, 0x00, 0x00, 0x60, 0x00, 0x00})
		assert.NoError(t, err)
		assert.Equal(t, 8, n)
		close(done)
	}()

	var buf [64]byte
	var n int
	require.Eventually(t, func() bool {
		var err error
		n, err = b.Recv(buf[:])
		require.NoError(t, err)
		return n > 0
	}, time.Second, time.Millisecond)
	<-done

	assert.Equal(t, byte(0xFF), buf[0])
	assert.Equal(t, 1, a.ID())
	assert.Equal(t, 2, b.ID())
}

func TestRecvReturnsZeroWhenNothingAvailable(t *testing.T) {
	aConn, bConn := net.Pipe()
	defer aConn.Close()
	defer bConn.Close()

	a := New(1, aConn, nil)

	var buf [16]byte
	n, err := a.Recv(buf[:])
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
