package engine

import (
	"errors"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	ws "github.com/gorilla/websocket"
)

// websocketTransport implements the WebSocket transport. Each outbound
// Frame becomes exactly one WebSocket message: a text frame for
// Frame.Text, a binary frame (framing byte + payload) for Frame.Binary —
// no payload batching the way polling does, since WebSocket already framing
// each message individually.
type websocketTransport struct {
	baseTransport

	dialer *ws.Dialer
	conn   *ws.Conn
	mu     sync.Mutex

	host         string
	path         string
	secure       bool
	query        url.Values
	cookies      []*http.Cookie
	extraHeaders http.Header
	voip         bool
}

func newWebsocketTransport(host, path string, secure bool, query url.Values, opts *Options) *websocketTransport {
	jar, _ := cookieJarFor(host, opts.cookies)
	return &websocketTransport{
		baseTransport: newBaseTransport("websocket", opts, opts.logOrNop()),
		dialer: &ws.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: opts.effectiveTLSConfig(),
			Jar:             jar,
		},
		host:         host,
		path:         path,
		secure:       secure,
		query:        query,
		cookies:      opts.cookies,
		extraHeaders: opts.extraHeaders,
		voip:         opts.voipEnabled,
	}
}

func cookieJarFor(host string, cookies []*http.Cookie) (http.CookieJar, error) {
	if len(cookies) == 0 {
		return nil, nil
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	u := &url.URL{Scheme: "https", Host: host}
	jar.SetCookies(u, cookies)
	return jar, nil
}

func (w *websocketTransport) uri() string {
	scheme := "ws"
	if w.secure {
		scheme = "wss"
	}
	return newURL(scheme, w.host, w.path, w.query).String()
}

// Open dials the WebSocket connection. The caller (engine) decides, once
// "open" fires, whether this was a probe or a direct connect.
func (w *websocketTransport) Open() {
	w.setReadyState(TransportStateOpening)

	headers := http.Header{}
	for k, vs := range w.extraHeaders {
		headers[k] = append(headers[k], vs...)
	}
	if w.voip {
		// No platform-level VoIP background session concept exists for a
		// plain TCP/TLS dial, so this is carried through only as a header
		// hint a reverse proxy or load balancer can act on.
		headers.Set("X-Engine-Voip", "1")
	}

	conn, _, err := w.dialer.Dial(w.uri(), headers)
	if err != nil {
		w.emitError("websocket error", err)
		return
	}
	w.conn = conn
	go w.readLoop()
	w.emitOpen()
}

func (w *websocketTransport) readLoop() {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			if isCleanClose(err) {
				w.emitClose(nil)
			} else {
				w.emitClose(NewTransportError("websocket connection closed", err, nil))
			}
			return
		}

		var pkt Packet
		switch mt {
		case ws.TextMessage:
			pkt, err = DecodeWebSocketText(string(data), false)
		case ws.BinaryMessage:
			pkt, err = DecodeWebSocketBinary(data)
		default:
			continue
		}
		if err != nil {
			w.logger.Warning("websocket: dropping malformed frame: %v", err)
			continue
		}
		w.emitPacket(pkt)
	}
}

func isCleanClose(err error) bool {
	return ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) || errors.Is(err, net.ErrClosed)
}

// Send transmits frames, one WebSocket message per Frame.
func (w *websocketTransport) Send(frames []Frame) {
	if w.ReadyState() != TransportStateOpen {
		w.logger.Debug("websocket: transport not open, discarding frames")
		return
	}
	w.setWritable(false)
	go func() {
		defer func() {
			w.setWritable(true)
			w.Emit("drain")
		}()

		w.mu.Lock()
		defer w.mu.Unlock()

		for _, f := range frames {
			var mt int
			var data []byte
			if f.Binary != nil {
				mt = ws.BinaryMessage
				data = EncodeBinaryWebSocket(PacketMessage, f.Binary)
			} else {
				mt = ws.TextMessage
				data = []byte(f.Text)
			}
			if err := w.conn.WriteMessage(mt, data); err != nil {
				w.emitError("websocket write error", err)
				return
			}
		}
	}()
}

func (w *websocketTransport) Pause(onPause func()) {
	// The WebSocket transport is never paused; only polling needs to
	// quiesce before a handoff, since the outgoing transport being paused
	// is by construction always polling at upgrade time.
	onPause()
}

func (w *websocketTransport) Close() {
	if w.conn == nil {
		w.emitClose(nil)
		return
	}
	_ = w.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
	w.conn.Close()
	w.emitClose(nil)
}

var _ Transport = (*websocketTransport)(nil)
