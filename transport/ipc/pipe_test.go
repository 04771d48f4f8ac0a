package ipc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nngo/spipe/message"
)

func pipePair(t *testing.T, protoA, protoB uint16, rcvmax int) (a, b *Pipe) {
	t.Helper()
	ca, cb := net.Pipe()
	a = NewPipe("ipc://a", ca, protoA, rcvmax, nil)
	b = NewPipe("ipc://b", cb, protoB, rcvmax, nil)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return a, b
}

func startBoth(t *testing.T, a, b *Pipe) (errA, errB error) {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(2)
	ctx := context.Background()
	go func() {
		defer wg.Done()
		errA = a.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		errB = b.Start(ctx)
	}()
	wg.Wait()
	return
}

func TestHandshakeSuccess(t *testing.T) {
	a, b := pipePair(t, 0x0050, 0x0051, 0)
	errA, errB := startBoth(t, a, b)
	require.NoError(t, errA)
	require.NoError(t, errB)
	require.Equal(t, uint16(0x0051), a.Peer())
	require.Equal(t, uint16(0x0050), b.Peer())
}

func TestHandshakeBadMagic(t *testing.T) {
	ca, cb := net.Pipe()
	a := NewPipe("ipc://a", ca, 0x0050, 0, nil)
	t.Cleanup(func() { _ = a.Close() })

	go func() {
		// Simulate a misbehaving peer: read A's header, then send back
		// a malformed one (bad 'X' at offset 1).
		buf := make([]byte, handshakeLen)
		_, _ = cb.Read(buf)
		bad := []byte{0x00, 'X', 'P', 0x00, 0x00, 0x50, 0x00, 0x00}
		_, _ = cb.Write(bad)
		_ = cb.Close()
	}()

	err := a.Start(context.Background())
	require.ErrorIs(t, err, ErrProtocol)
}

// A simple header+body send round-trips as one 5-byte payload and
// reports the body length as its count. The frame's wire bytes are
// checked in TestFrameWireBytes.
func TestSimpleSendRecv(t *testing.T) {
	a, b := pipePair(t, 1, 2, 0)
	errA, errB := startBoth(t, a, b)
	require.NoError(t, errA)
	require.NoError(t, errB)

	msg := &message.Message{Header: []byte{0xAA, 0xBB}, Body: []byte{0x01, 0x02, 0x03}}

	done := make(chan struct {
		n   int
		err error
	}, 1)
	go func() {
		n, err := a.Send(context.Background(), msg)
		done <- struct {
			n   int
			err error
		}{n, err}
	}()

	got, err := b.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB, 0x01, 0x02, 0x03}, got.Body)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, 3, res.n) // count = original body length
}

// An oversize message surfaces ErrMsgTooLarge; the pipe is not
// auto-closed, but the caller closing it makes the next Recv fail as
// closed.
func TestRecvOversize(t *testing.T) {
	a, b := pipePair(t, 1, 2, 4)
	errA, errB := startBoth(t, a, b)
	require.NoError(t, errA)
	require.NoError(t, errB)

	msg := &message.Message{Body: []byte{0x01, 0x02, 0x03, 0x04, 0x05}}
	go func() { _, _ = a.Send(context.Background(), msg) }()

	_, err := b.Recv(context.Background())
	require.ErrorIs(t, err, ErrMsgTooLarge)

	require.NoError(t, b.Close())
	_, err = b.Recv(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

// Canceling a recv that is waiting on no incoming data finishes with
// cancellation, and a later recv on real data still works.
func TestRecvCancel(t *testing.T) {
	a, b := pipePair(t, 1, 2, 0)
	errA, errB := startBoth(t, a, b)
	require.NoError(t, errA)
	require.NoError(t, errB)

	ctx, cancel := context.WithCancel(context.Background())
	recvDone := make(chan error, 1)
	go func() {
		_, err := b.Recv(ctx)
		recvDone <- err
	}()

	time.Sleep(20 * time.Millisecond) // let Recv block on the header read
	cancel()
	err := <-recvDone
	require.ErrorIs(t, err, ErrCanceled)

	// A fresh recv on a new message still succeeds.
	msg := &message.Message{Body: []byte{0x09}}
	go func() { _, _ = a.Send(context.Background(), msg) }()
	got, err := b.Recv(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{0x09}, got.Body)
}

// Short handshake writes/reads still complete correctly.
func TestHandshakeShortTransfers(t *testing.T) {
	ca, cb := net.Pipe()
	a := NewPipe("ipc://a", &chunkedStream{stream: ca, chunk: 3}, 0x0050, 0, nil)
	b := NewPipe("ipc://b", &chunkedStream{stream: cb, chunk: 4}, 0x0051, 0, nil)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	errA, errB := startBoth(t, a, b)
	require.NoError(t, errA)
	require.NoError(t, errB)
	require.Equal(t, uint16(0x0051), a.Peer())
	require.Equal(t, uint16(0x0050), b.Peer())
}

// chunkedStream forces every Read/Write to transfer at most `chunk`
// bytes at a time, simulating a stream that reports short transfers.
type chunkedStream struct {
	stream
	chunk int
}

func (c *chunkedStream) Read(b []byte) (int, error) {
	if len(b) > c.chunk {
		b = b[:c.chunk]
	}
	return c.stream.Read(b)
}

func (c *chunkedStream) Write(b []byte) (int, error) {
	if len(b) > c.chunk {
		b = b[:c.chunk]
	}
	return c.stream.Write(b)
}

// At-most-one invariant: a second Send while one is in flight is
// rejected, not queued silently.
func TestSendBusy(t *testing.T) {
	a, b := pipePair(t, 1, 2, 0)
	errA, errB := startBoth(t, a, b)
	require.NoError(t, errA)
	require.NoError(t, errB)

	big := &message.Message{Body: make([]byte, 1<<20)}
	go func() { _, _ = a.Send(context.Background(), big) }()
	time.Sleep(10 * time.Millisecond) // let the first Send start blocking

	_, err := a.Send(context.Background(), &message.Message{Body: []byte{1}})
	require.ErrorIs(t, err, ErrBusy)
}
