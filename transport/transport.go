// Package transport supplies the HTTP client the remote API wrappers run
// over: a round tripper that attaches the current bearer credential to every
// request, enforces the fixed request timeout, and reacts to an expired
// session by firing the process-wide logout bridge.
package transport

import (
	"net/http"
	"time"

	"github.com/investaapp/authgate/bridge"
)

// DefaultTimeout mirrors the backend gateway's own request budget.
const DefaultTimeout = 15 * time.Second

// TokenSource returns the bearer token to attach to outgoing requests, or
// "" when no session is active.
type TokenSource func() string

// Options configures NewClient.
type Options struct {
	// Base is the underlying round tripper. Defaults to
	// http.DefaultTransport.
	Base http.RoundTripper

	// Token supplies the bearer credential per request. Required.
	Token TokenSource

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// OnSessionExpired runs when an authenticated request comes back
	// 401. Defaults to bridge.ForceLogout.
	OnSessionExpired func()
}

// NewClient returns an *http.Client whose transport injects the bearer
// header and detects session expiry.
func NewClient(opts Options) *http.Client {
	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.OnSessionExpired == nil {
		opts.OnSessionExpired = bridge.ForceLogout
	}
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &roundTripper{
			base:      opts.Base,
			token:     opts.Token,
			onExpired: opts.OnSessionExpired,
		},
	}
}

type roundTripper struct {
	base      http.RoundTripper
	token     TokenSource
	onExpired func()
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	authenticated := false
	if rt.token != nil {
		if tok := rt.token(); tok != "" {
			// Clone before mutating: RoundTrippers must not modify
			// the caller's request.
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+tok)
			authenticated = true
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// A 401 on an unauthenticated call (login itself) is a credential
	// rejection, not an expired session; only authenticated calls force
	// the global logout.
	if authenticated && resp.StatusCode == http.StatusUnauthorized {
		rt.onExpired()
	}
	return resp, nil
}
