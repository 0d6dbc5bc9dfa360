package utils

import "net/http"

const (
	UserAgent = "Earshot/1.0 <github.com/marcus-crane/earshot>"
)

type UARoundtripper struct {
	RT http.RoundTripper
}

func (uart *UARoundtripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := uart.RT
	if rt == nil {
		rt = http.DefaultTransport
	}
	// RoundTrip must not mutate the caller's request
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", UserAgent)
	return rt.RoundTrip(r)
}

// NewHTTPClient has no timeout of its own; callers bound requests via context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &UARoundtripper{},
	}
}

// WrapHTTPClient keeps the transport of c (handy for httptest TLS clients)
// while still stamping our User-Agent.
func WrapHTTPClient(c *http.Client) *http.Client {
	wrapped := *c
	wrapped.Transport = &UARoundtripper{RT: c.Transport}
	return &wrapped
}
