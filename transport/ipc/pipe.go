package ipc

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sagernet/sing/common/bufio"
	"github.com/sirupsen/logrus"

	"github.com/nngo/spipe/message"
)

// ErrBusy is returned when a second Send/Recv/Start is attempted while
// one of the same kind is already pending on the pipe: at most one
// operation of each kind may be outstanding at a time.
var ErrBusy = errors.New("ipc: operation already pending")

// Pipe is one established IPC connection between peers. Its zero
// value is not usable; construct with NewPipe (an Endpoint's
// Dial/Accept does this for you, and tests call it directly).
type Pipe struct {
	addr   string
	stream stream
	proto  uint16
	rcvmax int
	id     uuid.UUID
	log    *logrus.Entry

	mu      sync.Mutex
	peer    uint16
	negBusy bool
	txBusy  bool
	rxBusy  bool
	rxmsg   *message.Message // non-nil only while a body read is in flight
	closed  bool

	txhead [frameHdrLen]byte
	rxhead [frameHdrLen]byte
}

// NewPipe wraps an already-connected stream as a Pipe, copying proto
// and rcvmax (addr is a non-owning reference, the stream is owned
// locally). Handshake is not run until Start is called.
func NewPipe(addr string, s stream, proto uint16, rcvmax int, log *logrus.Entry) *Pipe {
	if log == nil {
		log = discardLogger
	}
	p := &Pipe{
		addr:   addr,
		stream: s,
		proto:  proto,
		rcvmax: rcvmax,
		id:     uuid.New(),
	}
	p.log = log.WithFields(logrus.Fields{"component": "ipc.pipe", "pipe.id": p.id.String(), "pipe.addr": addr})
	return p
}

// Peer returns the remote protocol ID decoded during the handshake;
// undefined (zero) before Start completes successfully.
func (p *Pipe) Peer() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

// Start runs the handshake: post the local 8-byte header and receive
// the peer's concurrently, then validate it and decode its protocol
// ID.
func (p *Pipe) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.negBusy {
		p.mu.Unlock()
		return ErrBusy
	}
	p.negBusy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.negBusy = false
		p.mu.Unlock()
	}()

	var txbuf, rxbuf [handshakeLen]byte
	buildHandshake(txbuf[:], p.proto)

	// The send is posted and the receive is issued concurrently with
	// it, not after it fully drains: nothing guarantees the peer reads
	// our header before we read theirs, and two symmetric peers each
	// waiting for the other to read first would deadlock on an
	// unbuffered stream.
	writeDone := make(chan error, 1)
	go func() {
		writeDone <- writeFull(ctx, p.stream, txbuf[:])
	}()
	readErr := readFull(ctx, p.stream, rxbuf[:])
	writeErr := <-writeDone

	if writeErr != nil {
		return p.finishErr(writeErr)
	}
	if readErr != nil {
		return p.finishErr(readErr)
	}

	peer, err := validateHandshake(rxbuf[:])
	if err != nil {
		p.log.WithError(err).Warn("ipc: handshake magic mismatch")
		return err
	}

	p.mu.Lock()
	p.peer = peer
	p.mu.Unlock()
	p.log.WithField("peer.proto", peer).Debug("ipc: handshake complete")
	return nil
}

// Send frames msg as a 9-byte header (type 0x01, big-endian u64 total
// length) followed by msg's header and body, and writes it as a single
// gather-write when the underlying stream supports it. Ownership of
// msg is not retained past this call: on success or failure, the
// caller may reuse or discard it freely.
func (p *Pipe) Send(ctx context.Context, msg *message.Message) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if p.txBusy {
		p.mu.Unlock()
		return 0, ErrBusy
	}
	p.txBusy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.txBusy = false
		p.mu.Unlock()
	}()

	total := uint64(msg.Len())
	buildFrameHeader(p.txhead[:], total)

	segments := make([][]byte, 0, 3)
	segments = append(segments, p.txhead[:])
	if len(msg.Header) > 0 {
		segments = append(segments, msg.Header)
	}
	if len(msg.Body) > 0 {
		segments = append(segments, msg.Body)
	}

	// Falls back to one composed buffer when the underlying writer
	// can't vectorise.
	bw, ok := bufio.CreateVectorisedWriter(p.stream)

	_, err := runCancelable(ctx, p.stream.SetWriteDeadline, func() (int, error) {
		if ok {
			return bufio.WriteVectorised(bw, segments)
		}
		buf := make([]byte, 0, frameHdrLen+len(msg.Header)+len(msg.Body))
		for _, seg := range segments {
			buf = append(buf, seg...)
		}
		n, werr := p.stream.Write(buf)
		if n > frameHdrLen {
			n -= frameHdrLen
		} else {
			n = 0
		}
		return n, werr
	})
	if err != nil {
		return 0, p.finishErr(err)
	}
	return len(msg.Body), nil
}

// Recv reads one frame: a 9-byte header followed by exactly the
// declared number of body bytes.
func (p *Pipe) Recv(ctx context.Context) (*message.Message, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.rxBusy {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	p.rxBusy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.rxBusy = false
		p.mu.Unlock()
	}()

	// Phase 1: header.
	if err := readFull(ctx, p.stream, p.rxhead[:]); err != nil {
		return nil, p.finishErr(err)
	}
	length, err := parseFrameHeader(p.rxhead[:])
	if err != nil {
		return nil, err
	}
	if p.rcvmax > 0 && length > uint64(p.rcvmax) {
		return nil, ErrMsgTooLarge
	}

	msg := message.New(int(length))
	p.mu.Lock()
	p.rxmsg = msg
	p.mu.Unlock()

	// Phase 2: body.
	if err := readFull(ctx, p.stream, msg.Body); err != nil {
		p.mu.Lock()
		p.rxmsg = nil
		p.mu.Unlock()
		return nil, p.finishErr(err)
	}

	p.mu.Lock()
	p.rxmsg = nil
	p.mu.Unlock()
	return msg, nil
}

// Close aborts all pending I/O on the pipe: idempotent and
// non-blocking. Any Send/Recv/Start in flight on another goroutine
// observes the stream close and returns with an error.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.stream.Close()
}

// Fini releases the pipe's resources. There is no separate
// completion-callback thread to drain here — Close already guarantees
// any in-flight Send/Recv/Start unblocks — so Fini is simply an
// idempotent Close.
func (p *Pipe) Fini() error {
	return p.Close()
}

// GetOption never succeeds: name is unused because no pipe option
// (e.g. LOCALADDR/REMOTEADDR) is implemented. Every name returns
// ErrNotSupported.
func (p *Pipe) GetOption(name string) (interface{}, error) {
	return nil, ErrNotSupported
}

// SetOption never succeeds: name and value are unused, since no pipe
// option is writable either. Every call returns ErrNotSupported.
func (p *Pipe) SetOption(name string, value interface{}) error {
	return ErrNotSupported
}

// finishErr normalizes a ctx-cancellation into ErrCanceled and wraps
// any other underlying stream error with its cause preserved.
func (p *Pipe) finishErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCanceled
	}
	return pkgerrors.Wrap(err, "ipc")
}
