package engine

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"time"

	"github.com/quic-go/quic-go"
)

// Options holds the engine's connection configuration: a plain struct with
// chained With* setters, constructed from DefaultOptions() and customized
// per call site.
type Options struct {
	// socketPath is the path prefix prepended to both transport URLs.
	// Default "/engine.io/".
	socketPath string

	// connectParams is appended to both URLs' query string as &key=value.
	connectParams map[string]string

	// cookies are added to polling requests and to the WebSocket upgrade
	// request.
	cookies []*http.Cookie

	// extraHeaders are added to polling requests and to the WebSocket
	// upgrade request.
	extraHeaders http.Header

	// doubleEncodeUTF8 enables the Latin-1-of-UTF-8 historical quirk on
	// outbound non-NOOP text frames (either transport) and on inbound
	// non-NOOP polling text frames. Default true.
	doubleEncodeUTF8 bool

	forcePolling    bool
	forceWebsockets bool
	secure          bool

	selfSigned      bool
	tlsClientConfig *tls.Config

	// tlsValidator, when set, replaces Go's default certificate-chain trust
	// evaluation with a caller-supplied check (the "security" option:
	// TLS validation hook). Wired into tls.Config.VerifyPeerCertificate with
	// InsecureSkipVerify forced on, since that's the only way to hand
	// verification to caller code instead of crypto/x509's own verifier.
	tlsValidator func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error

	// roundTripperMiddleware, when set, wraps the http.RoundTripper chain
	// the polling client uses for every GET/POST (the "session_delegate"
	// option: a delegate over the HTTP session). Go's http.Client has no
	// session-delegate concept of its own; a RoundTripper wrapper is the
	// closest seam that lets a caller observe or rewrite every outgoing
	// request and incoming response the same way a delegate would. It only
	// covers the polling transport: the WebSocket upgrade is dialed
	// directly through gorilla/websocket's Dialer, which has no
	// RoundTripper seam to hook.
	roundTripperMiddleware func(http.RoundTripper) http.RoundTripper

	// quicConfig, when non-nil, makes the polling HTTP client attempt
	// HTTP/3 (QUIC) for its GET/POST round trips. This does not change
	// which Engine.IO transport is in play (still long-polling); it only
	// changes the wire protocol underneath net/http.
	quicConfig *quic.Config

	voipEnabled bool

	pingInterval time.Duration
	pingTimeout  time.Duration

	requestTimeout time.Duration

	logger Logger
}

// DefaultOptions returns an Options with socketPath "/engine.io/",
// doubleEncodeUTF8 true, and neither force flag set.
func DefaultOptions() *Options {
	return &Options{
		socketPath:       "/engine.io/",
		connectParams:    map[string]string{},
		extraHeaders:     http.Header{},
		doubleEncodeUTF8: true,
		requestTimeout:   20 * time.Second,
		logger:           nopLogger{},
	}
}

func (o *Options) WithSocketPath(path string) *Options {
	o.socketPath = path
	return o
}

func (o *Options) WithConnectParam(key, value string) *Options {
	o.connectParams[key] = value
	return o
}

func (o *Options) WithCookies(cookies ...*http.Cookie) *Options {
	o.cookies = append(o.cookies, cookies...)
	return o
}

func (o *Options) WithExtraHeader(key, value string) *Options {
	o.extraHeaders.Add(key, value)
	return o
}

func (o *Options) WithDoubleEncodeUTF8(enabled bool) *Options {
	o.doubleEncodeUTF8 = enabled
	return o
}

func (o *Options) WithForcePolling(enabled bool) *Options {
	o.forcePolling = enabled
	return o
}

func (o *Options) WithForceWebsockets(enabled bool) *Options {
	o.forceWebsockets = enabled
	return o
}

func (o *Options) WithSecure(enabled bool) *Options {
	o.secure = enabled
	return o
}

func (o *Options) WithSelfSigned(enabled bool) *Options {
	o.selfSigned = enabled
	return o
}

func (o *Options) WithTLSClientConfig(cfg *tls.Config) *Options {
	o.tlsClientConfig = cfg
	return o
}

// WithTLSValidator installs a caller-supplied certificate validator in place
// of Go's default chain verification. validate receives the raw DER
// certificates and whatever partial chains crypto/tls could still build with
// verification disabled; a non-nil return rejects the connection.
func (o *Options) WithTLSValidator(validate func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error) *Options {
	o.tlsValidator = validate
	return o
}

// WithRoundTripperMiddleware wraps every http.RoundTripper the polling
// client would otherwise use with mw, letting a caller observe or rewrite
// each outgoing request/response the way an HTTP session delegate would.
func (o *Options) WithRoundTripperMiddleware(mw func(http.RoundTripper) http.RoundTripper) *Options {
	o.roundTripperMiddleware = mw
	return o
}

// WithQUIC opts the polling HTTP client into HTTP/3. See the quicConfig
// field doc for what this does and does not affect.
func (o *Options) WithQUIC(cfg *quic.Config) *Options {
	o.quicConfig = cfg
	return o
}

func (o *Options) WithVoipEnabled(enabled bool) *Options {
	o.voipEnabled = enabled
	return o
}

func (o *Options) WithRequestTimeout(d time.Duration) *Options {
	o.requestTimeout = d
	return o
}

func (o *Options) WithLogger(l Logger) *Options {
	if l != nil {
		o.logger = l
	}
	return o
}

func (o *Options) effectiveTLSConfig() *tls.Config {
	if o.tlsClientConfig != nil {
		return o.tlsClientConfig
	}
	if o.tlsValidator != nil {
		return &tls.Config{InsecureSkipVerify: true, VerifyPeerCertificate: o.tlsValidator}
	}
	if o.selfSigned {
		return &tls.Config{InsecureSkipVerify: true}
	}
	return nil
}

func (o *Options) logOrNop() Logger {
	if o.logger == nil {
		return nopLogger{}
	}
	return o.logger
}
