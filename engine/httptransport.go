package engine

import (
	"bytes"
	"crypto/tls"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

// newPollingRoundTripper builds the http.RoundTripper used by the polling
// transport's HTTP client. It layers transparent content-decoding for
// br/gzip/deflate polling responses (grounded on
// zishang520-socket.io/pkg/request/decompresser.go in the example corpus)
// over either the standard net/http transport or, when quicConfig is set, an
// HTTP/3 transport (grounded on that same package's transport.go). Using
// HTTP/3 here changes only the wire protocol under the GET/POST calls the
// polling transport already makes — it is not a new Engine.IO transport and
// does not touch the WebSocket path. middleware, if non-nil, wraps the whole
// chain so a caller can intercept every request/response the same way an
// HTTP session delegate would.
func newPollingRoundTripper(tlsConfig *tls.Config, quicConfig *quic.Config, middleware func(http.RoundTripper) http.RoundTripper) http.RoundTripper {
	var base http.RoundTripper
	if quicConfig != nil {
		base = &http3.Transport{TLSClientConfig: tlsConfig, QUICConfig: quicConfig}
	} else {
		base = &http.Transport{TLSClientConfig: tlsConfig}
	}
	rt := http.RoundTripper(&decodingRoundTripper{next: base})
	if middleware != nil {
		rt = middleware(rt)
	}
	return rt
}

// decodingRoundTripper transparently decodes br/gzip/deflate response
// bodies so the polling transport's frame parser always sees plain text,
// regardless of what content-encoding a proxy or the server chose.
type decodingRoundTripper struct {
	next http.RoundTripper
}

func (d *decodingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}
	resp, err := d.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	switch resp.Header.Get("Content-Encoding") {
	case "br":
		resp.Body = &readCloser{Reader: brotli.NewReader(resp.Body), closer: resp.Body}
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body = &readCloser{Reader: gz, closer: resp.Body}
	case "deflate":
		var consumed bytes.Buffer
		zr, err := zlib.NewReader(io.TeeReader(resp.Body, &consumed))
		if err != nil {
			// Some servers send raw DEFLATE (no zlib header) under the
			// "deflate" token; fall back to that before giving up, replaying
			// the bytes the zlib header check already read.
			resp.Body = &readCloser{Reader: flate.NewReader(io.MultiReader(&consumed, resp.Body)), closer: resp.Body}
			break
		}
		resp.Body = &readCloser{Reader: zr, closer: resp.Body}
	}
	return resp, nil
}

// readCloser pairs a decoding io.Reader with the underlying response body's
// Close, so closing the decoded stream still releases the connection.
type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error { return r.closer.Close() }
