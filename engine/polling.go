package engine

import (
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"resty.dev/v3"
)

// pollingTransport implements the HTTP long-polling transport. It knows
// nothing about post_wait/probe_wait — those queues live on the engine — it
// only knows how to run one GET loop and flush one POST body at a time,
// keeping transport mechanics separate from connection-level buffering.
type pollingTransport struct {
	baseTransport

	client *resty.Client

	host           string
	path           string
	secure         bool
	query          url.Values
	cookies        []*http.Cookie
	extraHeaders   http.Header
	doubleEncodeU8 bool

	waitingForPoll atomic.Bool
	waitingForPost atomic.Bool

	// continuePolling is consulted after each completed GET, before
	// re-arming the next one: the poll response that observes fast_upgrade
	// stops the loop instead of re-polling so the engine can call
	// doFastUpgrade. Read from the poll-loop goroutine, so the engine side
	// of it must itself be race-safe (an atomic flag).
	continuePolling func() bool
}

func newPollingTransport(host, path string, secure bool, query url.Values, opts *Options) *pollingTransport {
	return &pollingTransport{
		baseTransport:  newBaseTransport("polling", opts, opts.logOrNop()),
		host:           host,
		path:           path,
		secure:         secure,
		query:          query,
		cookies:        opts.cookies,
		extraHeaders:   opts.extraHeaders,
		doubleEncodeU8: opts.doubleEncodeUTF8,
		client: resty.New().
			SetTransport(newPollingRoundTripper(opts.effectiveTLSConfig(), opts.quicConfig, opts.roundTripperMiddleware)).
			SetTimeout(opts.requestTimeout),
	}
}

func (p *pollingTransport) uri() string {
	scheme := "http"
	if p.secure {
		scheme = "https"
	}
	return newURL(scheme, p.host, p.path, p.query).String()
}

// Open starts the first GET of the polling loop.
func (p *pollingTransport) Open() {
	p.setReadyState(TransportStateOpening)
	p.poll()
}

func (p *pollingTransport) poll() {
	p.waitingForPoll.Store(true)
	go p.doPoll()
}

func (p *pollingTransport) doPoll() {
	req := p.client.R().SetHeaderMultiValues(p.extraHeaders)
	for _, c := range p.cookies {
		req.SetCookie(c)
	}
	resp, err := req.Get(p.uri())
	p.waitingForPoll.Store(false)
	if err != nil {
		p.emitError("fetch read error", err)
		return
	}
	if resp.IsError() {
		p.emitError("fetch read error", fmt.Errorf("status %d", resp.StatusCode()))
		return
	}

	packets, err := DecodePollingPayload(resp.String(), p.doubleEncodeU8)
	if err != nil {
		p.logger.Warning("polling: dropping malformed frame: %v", err)
	}

	if p.ReadyState() == TransportStateOpening {
		p.emitOpen()
	}

	for _, pkt := range packets {
		if pkt.Kind == PacketClose {
			p.emitClose(nil)
			return
		}
		p.emitPacket(pkt)
	}

	if p.ReadyState() != TransportStateClosed {
		p.Emit("pollComplete")
		if p.ReadyState() == TransportStateOpen && (p.continuePolling == nil || p.continuePolling()) {
			p.poll()
		}
	}
}

// Send encodes frames into a single polling payload and POSTs it. The
// caller (Engine.maybeFlushPostWaitOnEmitQ) is responsible for enforcing that only one
// POST is ever in flight.
func (p *pollingTransport) Send(frames []Frame) {
	if p.ReadyState() != TransportStateOpen {
		p.logger.Debug("polling: transport not open, discarding frames")
		return
	}
	p.setWritable(false)
	p.waitingForPost.Store(true)

	texts := make([]string, 0, len(frames))
	for _, f := range frames {
		if f.Binary != nil {
			texts = append(texts, EncodeBinaryPolling(f.Binary))
		} else {
			texts = append(texts, f.Text)
		}
	}
	body := EncodePollingPayload(texts)

	go p.doPost(body)
}

func (p *pollingTransport) doPost(body string) {
	req := p.client.R().
		SetHeader("Content-Type", "text/plain; charset=UTF-8").
		SetHeader("Content-Length", fmt.Sprintf("%d", len(body))).
		SetHeaderMultiValues(p.extraHeaders).
		SetBody(body)
	for _, c := range p.cookies {
		req.SetCookie(c)
	}
	resp, err := req.Post(p.uri())
	p.waitingForPost.Store(false)
	if err != nil {
		p.emitError("fetch write error", err)
		return
	}
	if resp.IsError() {
		p.emitError("fetch write error", fmt.Errorf("status %d", resp.StatusCode()))
		return
	}
	p.setWritable(true)
	p.Emit("drain")
}

// Pause quiesces the transport before an upgrade handoff: wait for any
// in-flight poll to finish and for writability to return before declaring
// the transport safely paused.
func (p *pollingTransport) Pause(onPause func()) {
	p.setReadyState(TransportStatePausing)

	pause := func() {
		p.setReadyState(TransportStatePaused)
		onPause()
	}

	waitingForPoll := p.waitingForPoll.Load()
	writable := p.Writable()
	if waitingForPoll || !writable {
		remaining := 0
		if waitingForPoll {
			remaining++
		}
		if !writable {
			remaining++
		}
		done := func() {
			remaining--
			if remaining == 0 {
				pause()
			}
		}
		if waitingForPoll {
			p.Once("pollComplete", func(...any) { done() })
		}
		if !writable {
			p.Once("drain", func(...any) { done() })
		}
		return
	}
	pause()
}

func (p *pollingTransport) Close() {
	if p.ReadyState() == TransportStateOpen {
		p.Send([]Frame{{Text: EncodeText(PacketClose, "", p.doubleEncodeU8)}})
	}
	p.emitClose(nil)
}

var _ Transport = (*pollingTransport)(nil)
