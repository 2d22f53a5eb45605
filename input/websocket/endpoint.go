package websocket

import (
	"fmt"
	"net/url"

	"github.com/c360/cqstream/errors"
)

// Endpoint is an immutable event endpoint address
type Endpoint struct {
	url      *url.URL
	redacted string
}

// NewEndpoint validates rawURL and appends accessToken as the access_token
// query parameter. Existing query parameters are kept.
func NewEndpoint(rawURL, accessToken string) (Endpoint, error) {
	if rawURL == "" {
		return Endpoint{}, errors.WrapInvalid(errors.ErrMissingConfig, "Endpoint", "NewEndpoint", "endpoint url is empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Endpoint{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidEndpoint, err),
			"Endpoint", "NewEndpoint", "parse endpoint url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return Endpoint{}, errors.WrapInvalid(
			fmt.Errorf("%w: scheme %q is not ws or wss", errors.ErrInvalidEndpoint, u.Scheme),
			"Endpoint", "NewEndpoint", "check endpoint scheme")
	}
	if u.Host == "" {
		return Endpoint{}, errors.WrapInvalid(
			fmt.Errorf("%w: missing host", errors.ErrInvalidEndpoint),
			"Endpoint", "NewEndpoint", "check endpoint host")
	}

	if accessToken != "" {
		q := u.Query()
		q.Set("access_token", accessToken)
		u.RawQuery = q.Encode()
	}

	// Credentials in userinfo or the query never reach logs
	redacted := *u
	if u.User != nil {
		redacted.User = url.User("REDACTED")
	}
	if rq := redacted.Query(); rq.Has("access_token") {
		rq.Set("access_token", "REDACTED")
		redacted.RawQuery = rq.Encode()
	}

	return Endpoint{url: u, redacted: redacted.String()}, nil
}

// URL returns the dial URL including the access token
func (e Endpoint) URL() string {
	if e.url == nil {
		return ""
	}
	return e.url.String()
}

// String returns the URL with the access token redacted
func (e Endpoint) String() string {
	return e.redacted
}
