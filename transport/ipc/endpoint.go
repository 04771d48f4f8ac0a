package ipc

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// maxAddrLen bounds how long an "ipc://" URL may be.
const maxAddrLen = 128

// scheme is the URL scheme this transport registers for.
const scheme = "ipc://"

// Mode distinguishes a dialling (client) endpoint from a listening
// (server) one.
type Mode int

const (
	ModeDial Mode = iota
	ModeListen
)

// Endpoint is a local dialer or listener bound to an "ipc://" URL.
// Construct with InitEndpoint.
type Endpoint struct {
	addr   string
	mode   Mode
	proto  uint16
	rcvmax int
	ep     endpointStream
	log    *logrus.Entry

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc // cancels the in-flight Dial/Accept, if any
}

// InitEndpoint validates url and binds an Endpoint to it, copying
// proto/rcvmax from sock once, immutably.
func InitEndpoint(url string, sock Socket, mode Mode) (*Endpoint, error) {
	return initEndpoint(url, sock, mode, discardLogger)
}

// InitEndpointWithLogger is InitEndpoint with an explicit per-component
// logger.
func InitEndpointWithLogger(url string, sock Socket, mode Mode, log *logrus.Entry) (*Endpoint, error) {
	return initEndpoint(url, sock, mode, log)
}

func initEndpoint(url string, sock Socket, mode Mode, log *logrus.Entry) (*Endpoint, error) {
	if len(url) > maxAddrLen || !strings.HasPrefix(url, scheme) {
		return nil, ErrAddrInvalid
	}
	if log == nil {
		log = discardLogger
	}
	path := strings.TrimPrefix(url, scheme)
	e := &Endpoint{
		addr:   url,
		mode:   mode,
		proto:  sock.Proto(),
		rcvmax: sock.RecvMaxSize(),
		ep:     newPlatformEndpoint(path),
	}
	e.log = log.WithFields(logrus.Fields{"component": "ipc.endpoint", "endpoint.addr": url})
	return e, nil
}

// Bind begins listening synchronously.
func (e *Endpoint) Bind() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()
	if err := e.ep.Listen(); err != nil {
		return err
	}
	e.log.Info("ipc: listening")
	return nil
}

// Dial establishes an outbound connection and runs the Pipe handshake.
func (e *Endpoint) Dial(ctx context.Context) (*Pipe, error) {
	cctx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer e.end()

	conn, err := e.ep.Dial(cctx)
	if err != nil {
		return nil, e.translate(err)
	}
	return e.finish(cctx, conn)
}

// Accept waits for the next inbound connection and runs the Pipe
// handshake.
func (e *Endpoint) Accept(ctx context.Context) (*Pipe, error) {
	cctx, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer e.end()

	conn, err := e.ep.Accept(cctx)
	if err != nil {
		return nil, e.translate(err)
	}
	return e.finish(cctx, conn)
}

// begin admits one in-flight Dial/Accept at a time under mu, arming
// cancellation by deriving a child context whose cancel func Close()
// can also invoke.
func (e *Endpoint) begin(ctx context.Context) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.cancel != nil {
		return nil, ErrBusy
	}
	cctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	return cctx, nil
}

func (e *Endpoint) end() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// finish constructs the Pipe wrapping the freshly connected stream and
// runs its handshake.
func (e *Endpoint) finish(ctx context.Context, conn stream) (*Pipe, error) {
	p := NewPipe(e.addr, conn, e.proto, e.rcvmax, e.log)
	if err := p.Start(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func (e *Endpoint) translate(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCanceled
	}
	return err
}

// Close asks the platform endpoint to abort: any pending Dial/Accept
// completes with an error, and Bind's listener is released. Idempotent.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return e.ep.Close()
}

// Fini tears down the endpoint. As with Pipe.Fini, there is no separate
// completion-callback thread to drain, so Fini is an idempotent Close.
func (e *Endpoint) Fini() error {
	return e.Close()
}

// GetOption never succeeds: name is unused because no endpoint option
// is implemented. Every name returns ErrNotSupported.
func (e *Endpoint) GetOption(name string) (interface{}, error) {
	return nil, ErrNotSupported
}

// SetOption never succeeds: name and value are unused, since no
// endpoint option is writable either. Every call returns
// ErrNotSupported.
func (e *Endpoint) SetOption(name string, value interface{}) error {
	return ErrNotSupported
}
