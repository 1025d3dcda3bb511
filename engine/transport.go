package engine

import (
	"net/url"
	"sync/atomic"

	"github.com/zishang520/engine.io/v2/types"
)

// TransportState tracks a transport's connection lifecycle, independent of
// the engine-level flags (connected/polling/websocket/probing).
type TransportState string

const (
	TransportStateOpening TransportState = "opening"
	TransportStateOpen    TransportState = "open"
	TransportStatePausing TransportState = "pausing"
	TransportStatePaused  TransportState = "paused"
	TransportStateClosed  TransportState = "closed"
)

// Frame is one already-encoded outbound unit: either text (a polling frame
// body or a WebSocket text message body, both produced by the codec in
// packet.go) or raw binary bytes for a WebSocket binary message. Exactly one
// of Text/Binary is set, matching Packet's own text-xor-binary shape.
type Frame struct {
	Text   string
	Binary []byte
}

// Transport is the shared contract both the polling and WebSocket transports
// implement: a common interface two structs satisfy, rather than a sum type
// Go doesn't have. The engine drives a transport through Open/Close/Send and
// listens on its EventEmitter for "open", "packet", "close" and "error".
//
// Events emitted:
//
//	"open"            - transport is ready to carry traffic
//	"packet" (Packet) - one decoded inbound packet
//	"close" (error)   - transport closed; error is nil for a clean close
//	"error" (error)   - a recoverable transport-level error occurred
//	"drain"           - the outbound write that most recently set Writable
//	                    false has completed
type Transport interface {
	types.EventEmitter

	Name() string
	ReadyState() TransportState
	Writable() bool

	Open()
	Close()

	// Send transmits a batch of already-encoded frames. Only valid while
	// ReadyState() == TransportStateOpen; a caller racing a close will see
	// the frames silently dropped, since in-flight callbacks on a closing
	// transport must be no-ops.
	Send(frames []Frame)

	// Pause is used only by the polling transport during an upgrade
	// handoff: it quiesces any in-flight poll/post before invoking onPause,
	// so nothing is left writing to a transport the engine is about to stop
	// driving.
	Pause(onPause func())
}

// baseTransport factors out the ready-state/writable bookkeeping shared by
// pollingTransport and websocketTransport.
type baseTransport struct {
	types.EventEmitter

	name       string
	readyState atomic.Value // TransportState
	writable   atomic.Bool

	opts   *Options
	logger Logger
}

func newBaseTransport(name string, opts *Options, logger Logger) baseTransport {
	t := baseTransport{
		EventEmitter: types.NewEventEmitter(),
		name:         name,
		opts:         opts,
		logger:       logger,
	}
	t.readyState.Store(TransportStateClosed)
	return t
}

func (t *baseTransport) Name() string { return t.name }
func (t *baseTransport) ReadyState() TransportState {
	return t.readyState.Load().(TransportState)
}
func (t *baseTransport) Writable() bool { return t.writable.Load() }

// readyState and writable are read from both the transport's own goroutines
// (poll loop, WebSocket read/write loop) and the engine's queue goroutines,
// so both are atomics rather than plain fields guarded by convention.
func (t *baseTransport) setReadyState(s TransportState) { t.readyState.Store(s) }
func (t *baseTransport) setWritable(w bool)             { t.writable.Store(w) }

func (t *baseTransport) emitOpen() {
	t.setReadyState(TransportStateOpen)
	t.setWritable(true)
	t.Emit("open")
}

func (t *baseTransport) emitClose(cause error) {
	t.setReadyState(TransportStateClosed)
	t.Emit("close", cause)
}

func (t *baseTransport) emitError(reason string, cause error) {
	t.Emit("error", NewTransportError(reason, cause, nil))
}

func (t *baseTransport) emitPacket(p Packet) {
	t.Emit("packet", p)
}

func newURL(scheme, host, path string, query url.Values) *url.URL {
	u := &url.URL{Scheme: scheme, Host: host, Path: path}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u
}
