package main

import (
	"net/http"
)

// bearerTransport adds an Authorization header to every request, for Ollama
// servers that sit behind an authenticating reverse proxy.
type bearerTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(reqClone)
}

// newBearerHTTPClient returns a client that authenticates with token
func newBearerHTTPClient(token string) *http.Client {
	return &http.Client{
		Transport: &bearerTransport{
			base:  http.DefaultTransport,
			token: token,
		},
	}
}
