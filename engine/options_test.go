package engine

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, "/engine.io/", o.socketPath)
	assert.True(t, o.doubleEncodeUTF8)
	assert.Equal(t, 20*time.Second, o.requestTimeout)
	assert.False(t, o.forcePolling)
	assert.False(t, o.forceWebsockets)
}

func TestWithSettersChainAndMutate(t *testing.T) {
	cookie := &http.Cookie{Name: "session", Value: "abc"}

	o := DefaultOptions().
		WithSocketPath("/custom/").
		WithConnectParam("token", "xyz").
		WithCookies(cookie).
		WithExtraHeader("X-Test", "1").
		WithForceWebsockets(true).
		WithRequestTimeout(5 * time.Second)

	assert.Equal(t, "/custom/", o.socketPath)
	assert.Equal(t, "xyz", o.connectParams["token"])
	assert.Equal(t, []*http.Cookie{cookie}, o.cookies)
	assert.Equal(t, "1", o.extraHeaders.Get("X-Test"))
	assert.True(t, o.forceWebsockets)
	assert.Equal(t, 5*time.Second, o.requestTimeout)
}

func TestEffectiveTLSConfigPrefersExplicitOverSelfSigned(t *testing.T) {
	o := DefaultOptions().WithSelfSigned(true)
	cfg := o.effectiveTLSConfig()
	if assert.NotNil(t, cfg) {
		assert.True(t, cfg.InsecureSkipVerify)
	}

	explicit := &tls.Config{ServerName: "example.com"}
	assert.Same(t, explicit, o.WithTLSClientConfig(explicit).effectiveTLSConfig())
}

func TestLogOrNopFallsBackWhenLoggerNil(t *testing.T) {
	o := DefaultOptions().WithLogger(nil)
	assert.IsType(t, nopLogger{}, o.logOrNop())
}

func TestTLSValidatorForcesInsecureSkipVerifyAndIsWired(t *testing.T) {
	called := false
	validate := func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		called = true
		return nil
	}
	o := DefaultOptions().WithTLSValidator(validate)
	cfg := o.effectiveTLSConfig()
	if assert.NotNil(t, cfg) {
		assert.True(t, cfg.InsecureSkipVerify)
		if assert.NotNil(t, cfg.VerifyPeerCertificate) {
			_ = cfg.VerifyPeerCertificate(nil, nil)
			assert.True(t, called)
		}
	}
}

func TestRoundTripperMiddlewareWrapsPollingTransport(t *testing.T) {
	var wrapped http.RoundTripper
	mw := func(rt http.RoundTripper) http.RoundTripper {
		wrapped = rt
		return rt
	}
	rt := newPollingRoundTripper(nil, nil, mw)
	assert.NotNil(t, rt)
	assert.NotNil(t, wrapped)
}
