package engine

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Engine is the lifecycle controller, upgrade orchestrator and write
// serializer for an Engine.IO v3 client connection. It owns exactly one
// active Transport at a time (polling or WebSocket), and during an upgrade
// attempt a second, not-yet-authoritative probe Transport.
//
// All mutation of engine state happens on one of two single-consumer queues:
// emitQ serializes everything that touches postWait/probeWait and the
// active transport pointer (writes, connect, disconnect, the upgrade handoff
// itself); handleQ serializes dispatch of inbound packets and transport
// lifecycle events to EngineClient. Decoding a raw polling body or WebSocket
// frame into Packets needs no separate queue object here: each transport
// already serializes its own decode work onto a single goroutine (the poll
// loop processes one GET at a time; the WebSocket read loop is itself one
// goroutine), so there is never more than one decode in flight per transport
// to order.
type Engine struct {
	opts   *Options
	client EngineClient
	logger Logger

	host   string
	path   string
	secure bool

	connectParams    map[string]string
	doubleEncodeUTF8 bool
	forcePolling     bool
	forceWebsockets  bool

	connected     atomic.Bool
	closed        atomic.Bool
	invalidated   atomic.Bool
	polling       atomic.Bool
	websocket     atomic.Bool
	probing       atomic.Bool
	fastUpgrade   atomic.Bool
	closeNotified atomic.Bool

	sidMu sync.RWMutex
	sid   string

	transportMu    sync.RWMutex
	transport      Transport
	probeTransport Transport

	emitQ   *serialQueue
	handleQ *serialQueue

	// postWait and probeWait are touched only from tasks run on emitQ; every
	// method that reads or appends to them below is only ever called from an
	// emitQ task.
	postWait  []Frame
	probeWait []Frame

	hb *heartbeat
}

// NewEngine builds an Engine targeting rawURL (scheme+host, e.g.
// "https://example.com"). client receives every inbound packet and lifecycle
// notification; it must not block (see EngineClient's doc comment).
func NewEngine(rawURL string, opts *Options, client EngineClient) (*Engine, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("engine: invalid url %q: %w", rawURL, err)
	}

	path := opts.socketPath
	if path == "" {
		path = "/engine.io/"
	}

	e := &Engine{
		opts:             opts,
		client:           client,
		logger:           opts.logOrNop(),
		host:             u.Host,
		path:             path,
		secure:           opts.secure || u.Scheme == "https" || u.Scheme == "wss",
		connectParams:    opts.connectParams,
		doubleEncodeUTF8: opts.doubleEncodeUTF8,
		forcePolling:     opts.forcePolling,
		forceWebsockets:  opts.forceWebsockets,
		emitQ:            newSerialQueue(),
		handleQ:          newSerialQueue(),
	}
	return e, nil
}

// Sid returns the session id assigned by the server's OPEN packet, or "" if
// the engine has never completed a handshake.
func (e *Engine) Sid() string {
	e.sidMu.RLock()
	defer e.sidMu.RUnlock()
	return e.sid
}

func (e *Engine) setSid(sid string) {
	e.sidMu.Lock()
	e.sid = sid
	e.sidMu.Unlock()
}

// Connected reports whether the engine currently considers itself able to
// carry traffic.
func (e *Engine) Connected() bool { return e.connected.Load() }

// Closed reports whether the engine has reached its terminal state.
func (e *Engine) Closed() bool { return e.closed.Load() }

// Connect starts (or restarts) the handshake.
func (e *Engine) Connect() {
	e.emitQ.Go(func() {
		if e.connected.Load() {
			e.disconnectOnEmitQ("reconnect")
		}
		e.resetEngine()
		if e.forceWebsockets {
			e.connectWebSocketDirect()
		} else {
			e.connectPolling()
		}
	})
}

// Disconnect tears the engine down explicitly. It is ordered on emitQ after any writes already queued, so a caller that
// writes then immediately disconnects still has its write sent first where
// the transport allows it.
func (e *Engine) Disconnect(reason string) {
	e.emitQ.Go(func() { e.disconnectOnEmitQ(reason) })
}

func (e *Engine) disconnectOnEmitQ(reason string) {
	if !e.connected.Load() || e.closed.Load() {
		e.closeOutEngine()
		e.notifyClosedOnce(reason)
		return
	}

	e.transportMu.RLock()
	t := e.transport
	e.transportMu.RUnlock()

	if t != nil {
		if e.websocket.Load() {
			t.Send([]Frame{{Text: EncodeText(PacketClose, "", e.doubleEncodeUTF8)}})
			t.Close()
		} else {
			e.postWait = append(e.postWait, Frame{Text: EncodeText(PacketClose, "", e.doubleEncodeUTF8)})
			e.maybeFlushPostWaitOnEmitQ()
		}
	}
	e.closeOutEngine()
	e.notifyClosedOnce(reason)
}

// didError is the funnel every fatal transport-level error passes through:
// log it, tell the client, then disconnect.
func (e *Engine) didError(reason string, cause error) {
	e.logger.Error("engine error: %s: %v", reason, cause)
	if e.client != nil {
		e.client.EngineDidError(reason)
	}
	e.Disconnect(reason)
}

func (e *Engine) notifyClosedOnce(reason string) {
	if e.closeNotified.CompareAndSwap(false, true) && e.client != nil {
		e.client.EngineDidClose(reason)
	}
}

// resetEngine restores the engine's flags to their initial values and drops
// any transports/queued writes left over from a previous connection attempt.
// Must run on emitQ.
func (e *Engine) resetEngine() {
	e.closed.Store(false)
	e.invalidated.Store(false)
	e.connected.Store(false)
	e.polling.Store(true)
	e.websocket.Store(false)
	e.probing.Store(false)
	e.fastUpgrade.Store(false)
	e.closeNotified.Store(false)
	e.setSid("")
	e.postWait = nil
	e.probeWait = nil

	e.transportMu.Lock()
	e.transport = nil
	e.probeTransport = nil
	e.transportMu.Unlock()

	if e.hb != nil {
		e.hb.Stop()
		e.hb = nil
	}
}

// closeOutEngine invalidates the session and releases both transports. Safe
// to call more than once; idempotent beyond the first call.
func (e *Engine) closeOutEngine() {
	e.setSid("")
	e.closed.Store(true)
	e.invalidated.Store(true)
	e.connected.Store(false)
	e.websocket.Store(false)
	e.polling.Store(false)

	if e.hb != nil {
		e.hb.Stop()
	}

	e.transportMu.Lock()
	t, pt := e.transport, e.probeTransport
	e.transport, e.probeTransport = nil, nil
	e.transportMu.Unlock()

	if t != nil {
		t.Close()
	}
	if pt != nil {
		pt.Close()
	}
}

func (e *Engine) isCurrentTransport(t Transport) bool {
	e.transportMu.RLock()
	defer e.transportMu.RUnlock()
	return e.transport == t
}

func (e *Engine) transportSendLocked(frames []Frame) {
	e.transportMu.RLock()
	t := e.transport
	e.transportMu.RUnlock()
	if t != nil {
		t.Send(frames)
	}
}

// query builds the query string shared by both transports: every
// connectParams entry, transport=polling|websocket, b64=1 for polling, and
// &sid=<sid> once the handshake has produced one.
func (e *Engine) query(transport string) url.Values {
	q := url.Values{}
	for k, v := range e.connectParams {
		q.Set(k, v)
	}
	q.Set("transport", transport)
	if transport == "polling" {
		q.Set("b64", "1")
	}
	if sid := e.Sid(); sid != "" {
		q.Set("sid", sid)
	}
	return q
}

func (e *Engine) connectPolling() {
	pt := newPollingTransport(e.host, e.path, e.secure, e.query("polling"), e.opts)
	pt.continuePolling = func() bool { return !e.fastUpgrade.Load() }
	e.attachPollingListeners(pt)

	e.transportMu.Lock()
	e.transport = pt
	e.transportMu.Unlock()

	pt.Open()
}

// connectWebSocketDirect implements the force_websockets connect path: the
// WebSocket transport is primary from the start, never a probe. Writes
// issued before it opens are buffered the same way probe writes are (reusing
// the "probing" flag as "not yet authoritative"), then replayed by
// flushProbeWait once it opens.
func (e *Engine) connectWebSocketDirect() {
	wst := newWebsocketTransport(e.host, e.path, e.secure, e.query("websocket"), e.opts)
	e.attachWebSocketListeners(wst)

	e.transportMu.Lock()
	e.transport = wst
	e.transportMu.Unlock()

	e.probing.Store(true)
	wst.Open()
}

// attachPollingListeners wires a polling transport's events to the engine's
// queues. "packet" and "close"/"error" share the same handlers the WebSocket
// transport uses once it is authoritative; only "pollComplete" (driving
// doFastUpgrade) and "drain" (driving the post_wait flush) are polling-only.
func (e *Engine) attachPollingListeners(pt *pollingTransport) {
	pt.On("packet", func(args ...any) {
		pkt, _ := args[0].(Packet)
		e.handleQ.Go(func() { e.dispatch(pkt) })
	})
	pt.On("close", func(args ...any) {
		var cause error
		if len(args) > 0 {
			cause, _ = args[0].(error)
		}
		e.handleQ.Go(func() { e.onPrimaryTransportClosed(pt, cause) })
	})
	pt.On("error", func(args ...any) {
		err, _ := args[0].(error)
		e.handleQ.Go(func() { e.onPrimaryTransportError(pt, err) })
	})
	pt.On("pollComplete", func(...any) {
		e.handleQ.Go(func() {
			if e.fastUpgrade.Load() {
				e.doFastUpgrade()
			}
		})
	})
	pt.On("drain", func(...any) {
		e.emitQ.Go(func() { e.maybeFlushPostWaitOnEmitQ() })
	})
}

// attachWebSocketListeners wires a WebSocket transport's events to the
// engine's queues, whether it is a probe socket or an authoritative one.
// "open"/"close"/"error" dispatch to handlers that check, at call time,
// whether the transport is still probing or has already been promoted to
// primary.
func (e *Engine) attachWebSocketListeners(wst Transport) {
	wst.On("open", func(...any) {
		e.handleQ.Go(func() { e.onWebSocketOpen(wst) })
	})
	wst.On("packet", func(args ...any) {
		pkt, _ := args[0].(Packet)
		e.handleQ.Go(func() { e.dispatch(pkt) })
	})
	wst.On("close", func(args ...any) {
		var cause error
		if len(args) > 0 {
			cause, _ = args[0].(error)
		}
		e.handleQ.Go(func() { e.onWebSocketClosedOrErrored(wst, cause) })
	})
	wst.On("error", func(args ...any) {
		err, _ := args[0].(error)
		e.handleQ.Go(func() { e.onWebSocketClosedOrErrored(wst, err) })
	})
}

// onWebSocketOpen fires once a WebSocket connection is established: a probe
// socket sends the probe PING; a primary (force_websockets) socket becomes
// authoritative immediately.
func (e *Engine) onWebSocketOpen(wst Transport) {
	e.transportMu.RLock()
	isProbe := e.probeTransport == wst
	isPrimary := e.transport == wst
	e.transportMu.RUnlock()

	switch {
	case isProbe:
		wst.Send([]Frame{{Text: EncodeText(PacketPing, "probe", false)}})
	case isPrimary:
		e.connected.Store(true)
		e.probing.Store(false)
		e.polling.Store(false)
		e.websocket.Store(true)
		e.emitQ.Go(e.flushProbeWaitOnEmitQ)
	}
}

// onWebSocketClosedOrErrored fires when a WebSocket connection closes or
// errors: a probe socket failing just falls back to polling
// (flushProbeWait); an authoritative socket closing tears the whole engine
// down.
func (e *Engine) onWebSocketClosedOrErrored(wst Transport, cause error) {
	e.transportMu.Lock()
	switch {
	case e.probeTransport == wst:
		e.probeTransport = nil
		e.transportMu.Unlock()
		e.probing.Store(false)
		e.flushProbeWait()
		return
	case e.transport == wst:
		e.transportMu.Unlock()
		e.onPrimaryTransportClosed(wst, cause)
		return
	default:
		// Stale callback from a transport already superseded/closed out.
		e.transportMu.Unlock()
	}
}

func (e *Engine) onPrimaryTransportClosed(t Transport, cause error) {
	if !e.isCurrentTransport(t) || e.closed.Load() {
		return
	}
	e.probing.Store(false)
	e.connected.Store(false)
	e.websocket.Store(false)
	e.polling.Store(false)
	if e.hb != nil {
		e.hb.Stop()
	}
	if cause != nil {
		e.didError(cause.Error(), cause)
		return
	}
	e.Disconnect("transport closed")
}

func (e *Engine) onPrimaryTransportError(t Transport, err error) {
	if !e.isCurrentTransport(t) {
		return
	}
	e.didError(err.Error(), err)
}

// startProbe opens a second, nascent WebSocket transport alongside the
// still-active polling transport.
func (e *Engine) startProbe() {
	e.probing.Store(true)
	wst := newWebsocketTransport(e.host, e.path, e.secure, e.query("websocket"), e.opts)
	e.attachWebSocketListeners(wst)

	e.transportMu.Lock()
	e.probeTransport = wst
	e.transportMu.Unlock()

	wst.Open()
}

// upgradeTransport runs on receiving "3probe" (a PONG packet with payload
// "probe"): flush the polling channel with a NOOP and mark fast_upgrade so
// the polling response that resolves that NOOP triggers doFastUpgrade
// instead of re-polling.
func (e *Engine) upgradeTransport() {
	e.emitQ.Go(func() {
		e.transportSendLocked([]Frame{{Text: EncodeText(PacketNoop, "", e.doubleEncodeUTF8)}})
		e.fastUpgrade.Store(true)
	})
}

// doFastUpgrade promotes the probe WebSocket to the active transport, sends
// the UPGRADE packet over it, flips the engine's flags, and replays anything
// buffered in probe_wait/post_wait. The outgoing polling transport is paused
// first so any poll/post it still has in flight finishes cleanly before the
// transport pointer is swapped out from under it.
func (e *Engine) doFastUpgrade() {
	e.emitQ.Go(func() {
		e.transportMu.Lock()
		ws := e.probeTransport
		old := e.transport
		e.probeTransport = nil
		if ws == nil {
			e.transportMu.Unlock()
			return
		}
		e.transportMu.Unlock()

		finish := func() {
			e.transportMu.Lock()
			e.transport = ws
			e.transportMu.Unlock()

			ws.Send([]Frame{{Text: string(byte(PacketUpgrade))}})
			e.websocket.Store(true)
			e.polling.Store(false)
			e.probing.Store(false)
			e.fastUpgrade.Store(false)

			e.flushProbeWaitOnEmitQ()
		}

		if old != nil {
			// Pause's onPause can fire synchronously (already idle) or later,
			// from whatever goroutine observes the in-flight poll/post
			// finishing; route through emitQ either way so finish only ever
			// touches probeWait/postWait on the queue that owns them.
			old.Pause(func() { e.emitQ.Go(finish) })
			return
		}
		finish()
	})
}

// flushProbeWait schedules flushProbeWaitOnEmitQ. Exported as a separate
// method (rather than always inlining) because the probe-failure path calls
// it from handleQ, where touching probeWait/postWait directly would break
// the emitQ-only access discipline those fields rely on.
func (e *Engine) flushProbeWait() {
	e.emitQ.Go(e.flushProbeWaitOnEmitQ)
}

func (e *Engine) flushProbeWaitOnEmitQ() {
	pending := e.probeWait
	e.probeWait = nil

	if e.websocket.Load() {
		if len(pending) > 0 {
			e.transportSendLocked(pending)
		}
		if len(e.postWait) > 0 {
			batch := e.postWait
			e.postWait = nil
			e.transportSendLocked(batch)
		}
		return
	}

	// The probe failed or was never promoted: polling is still
	// authoritative, so replay through the normal poll-message path to
	// preserve ordering against anything already queued there.
	e.postWait = append(e.postWait, pending...)
	e.maybeFlushPostWaitOnEmitQ()
}

// maybeFlushPostWaitOnEmitQ sends whatever is queued in post_wait if the
// polling transport isn't already mid-POST. The "drain" listener re-invokes
// this so a write that arrived while a POST was in flight is picked up as
// soon as that POST completes.
func (e *Engine) maybeFlushPostWaitOnEmitQ() {
	if len(e.postWait) == 0 {
		return
	}
	e.transportMu.RLock()
	t := e.transport
	e.transportMu.RUnlock()
	if t == nil || !t.Writable() {
		return
	}
	batch := e.postWait
	e.postWait = nil
	t.Send(batch)
}

// Write enqueues one payload (plus any attached binary blobs) for
// transmission: send directly over WebSocket once it is authoritative;
// otherwise batch onto post_wait for polling unless a probe (or a
// force_websockets connect) is in flight, in which case it waits in
// probe_wait until that resolves.
func (e *Engine) Write(text string, kind WriteKind, binaries [][]byte) {
	frames := make([]Frame, 0, 1+len(binaries))
	frames = append(frames, Frame{Text: EncodeText(kind.packetKind(), text, e.doubleEncodeUTF8)})
	for _, b := range binaries {
		frames = append(frames, Frame{Binary: b})
	}
	e.emitQ.Go(func() { e.enqueueWriteOnEmitQ(frames) })
}

func (e *Engine) enqueueWriteOnEmitQ(frames []Frame) {
	switch {
	case e.websocket.Load():
		e.transportSendLocked(frames)
	case !e.probing.Load():
		e.postWait = append(e.postWait, frames...)
		e.maybeFlushPostWaitOnEmitQ()
	default:
		e.probeWait = append(e.probeWait, frames...)
	}
}

// dispatch routes one decoded inbound packet to the right handler. Runs on
// handleQ for every transport (polling, probe WebSocket, and authoritative
// WebSocket alike).
func (e *Engine) dispatch(pkt Packet) {
	switch pkt.Kind {
	case PacketOpen:
		e.handleOpenPacket(pkt.Text)
	case PacketClose:
		e.emitQ.Go(func() {
			e.closeOutEngine()
			e.notifyClosedOnce("Close")
		})
	case PacketPong:
		if pkt.Text == "probe" {
			e.upgradeTransport()
		} else if e.hb != nil {
			e.hb.Pong()
		}
	case PacketMessage:
		if e.client == nil {
			return
		}
		if pkt.IsBinary() {
			e.client.ParseEngineBinaryData(pkt.Binary)
		} else {
			e.client.ParseEngineMessage(pkt.Text)
		}
	case PacketNoop:
		// The polling transport's own pollComplete listener observes
		// fast_upgrade and drives doFastUpgrade; nothing else to do here.
	case PacketPing, PacketUpgrade:
		// Never sent to the client in this protocol direction; ignore if a
		// misbehaving server sends one anyway.
		e.logger.Debug("dispatch: unexpected inbound %s packet", pkt.Kind)
	case PacketKindUnparsed:
		e.handleUnparsedFrame(pkt.Text)
	default:
		e.logger.Warning("dispatch: unknown packet kind %v", pkt.Kind)
	}
}

// handleUnparsedFrame runs when a frame didn't start with a type digit at
// all: try it as the server's JSON error object {"message": "..."} and
// route a match through didError; anything else is a malformed frame, so
// it's logged and discarded rather than treated as fatal.
func (e *Engine) handleUnparsedFrame(frame string) {
	if message, ok := ParseProtocolErrorMessage(frame); ok {
		e.didError(message, NewProtocolError(message))
		return
	}
	e.logger.Warning("dispatch: dropping frame that isn't a typed packet: %q", frame)
}

type openPayload struct {
	Sid          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
}

// handleOpenPacket processes the server's OPEN packet: record sid, arm the
// heartbeat with the server's advertised intervals, maybe start a probe, and
// tell the client the engine is ready.
func (e *Engine) handleOpenPacket(text string) {
	var payload openPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		e.logger.Warning("engine: malformed OPEN payload: %v", err)
		return
	}

	e.setSid(payload.Sid)
	e.connected.Store(true)

	interval := time.Duration(payload.PingInterval) * time.Millisecond
	timeout := time.Duration(payload.PingTimeout) * time.Millisecond
	e.hb = newHeartbeat(interval, timeout, func(fn func()) { e.handleQ.Go(fn) }, e.sendPing, e.onHeartbeatTimeout)

	canUpgrade := !e.forcePolling && !e.forceWebsockets && containsString(payload.Upgrades, "websocket")
	if canUpgrade {
		e.startProbe()
	}

	e.hb.Start()

	if e.client != nil {
		e.client.EngineDidOpen("Connect")
	}
}

// sendPing is the heartbeat's onTick callback: it only transmits, leaving
// the missed-pong bookkeeping and timeout decision to heartbeat.tick.
func (e *Engine) sendPing() {
	if !e.connected.Load() {
		return
	}
	e.Write("", WriteKindPing, nil)
}

// onHeartbeatTimeout handles a missed-pong timeout: it invalidates the
// session (closeOutEngine) rather than only notifying, but does not go
// through the CLOSE-frame-sending branches of disconnect(), since the
// server is presumed unreachable.
func (e *Engine) onHeartbeatTimeout() {
	e.closeOutEngine()
	e.notifyClosedOnce("Ping timeout")
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
