package ipc

// Transport is the registration descriptor a messaging library uses
// to add "ipc" as a dialable/listenable scheme: a scheme string paired
// with the hooks needed to construct endpoints for it. The owning
// library registers one of these per scheme it supports (inproc, tcp,
// ipc, …); this package supplies the "ipc" one.
type Transport struct{}

// Scheme returns the URL scheme this transport handles.
func (Transport) Scheme() string { return "ipc" }

// NewEndpoint constructs an Endpoint bound to url for sock, in either
// dial or listen mode.
func (Transport) NewEndpoint(url string, sock Socket, mode Mode) (*Endpoint, error) {
	return InitEndpoint(url, sock, mode)
}

// Init is a registration-time hook; a no-op for this transport.
func (Transport) Init() error { return nil }

// Fini is a registration-time hook; a no-op for this transport.
func (Transport) Fini() {}

// DefaultTransport is the package-level Transport value a messaging
// library registers by scheme.
var DefaultTransport = Transport{}
