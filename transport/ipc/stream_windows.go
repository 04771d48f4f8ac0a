//go:build windows

package ipc

import (
	"context"
	"net"

	winio "github.com/Microsoft/go-winio"
)

// winEndpoint is the Windows realization of endpointStream using named
// pipes as the per-platform bidirectional byte stream.
type winEndpoint struct {
	path     string
	listener net.Listener
}

func newPlatformEndpoint(path string) endpointStream {
	return &winEndpoint{path: path}
}

func (e *winEndpoint) Listen() error {
	l, err := winio.ListenPipe(e.path, nil)
	if err != nil {
		return err
	}
	e.listener = l
	return nil
}

func (e *winEndpoint) Dial(ctx context.Context) (stream, error) {
	conn, err := winio.DialPipeContext(ctx, e.path)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (e *winEndpoint) Accept(ctx context.Context) (stream, error) {
	if e.listener == nil {
		return nil, ErrClosed
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := e.listener.Accept()
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.conn, nil
	case <-ctx.Done():
		// go-winio's pipe listener has no deadline knob; aborting one
		// pending Accept means closing the listener, same as an
		// endpoint-level close.
		_ = e.listener.Close()
		return nil, ctx.Err()
	}
}

func (e *winEndpoint) Close() error {
	if e.listener == nil {
		return nil
	}
	return e.listener.Close()
}
