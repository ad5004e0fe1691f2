package authsdk

import (
	"net/http"
)

// Transport is an http.RoundTripper that authorises requests with the
// Manager's id token. A 401 from downstream resets the token cache so the
// next request fetches a fresh token.
type Transport struct {
	Manager *Manager

	// Base is the underlying transport. http.DefaultTransport when nil.
	Base http.RoundTripper
}

// NewClient returns an http.Client that sends requests through a Transport.
func NewClient(m *Manager) *http.Client {
	return &http.Client{Transport: &Transport{Manager: m}}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	creds, _, err := t.Manager.Tokens(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+creds.IDToken)

	resp, err := t.base().RoundTrip(r)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		t.Manager.OnFailedRequest()
	}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
