// Copyright (c) 2026 wavvs
// Licensed under the MIT License. See LICENSE for terms.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wavvs/aadrecon/internal/dnsclient"
	"github.com/wavvs/aadrecon/internal/providers"
	"github.com/wavvs/aadrecon/internal/telemetry"
)

const maxBodyBytes = 1 << 20

// ErrResponseTooLarge is returned when an endpoint answers with more than maxBodyBytes.
var ErrResponseTooLarge = errors.New("response too large")

// HTTPError is a non-success response from an identity endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d;%s", e.StatusCode, e.Body)
}

func newHTTPError(status int, body []byte) *HTTPError {
	return &HTTPError{StatusCode: status, Body: strings.TrimSpace(string(body))}
}

// Client talks to the public login and autodiscover endpoints. Each call is a single
// request with no retry.
type Client struct {
	http            *dnsclient.HTTPClient
	federation      *dnsclient.HTTPClient
	loginURL        string
	autodiscoverURL string
	telemetry       *telemetry.Registry
}

type Option func(*Client)

func WithLoginBaseURL(u string) Option {
	return func(c *Client) { c.loginURL = strings.TrimRight(u, "/") }
}

func WithAutodiscoverURL(u string) Option {
	return func(c *Client) { c.autodiscoverURL = u }
}

func WithHTTPClient(h *dnsclient.HTTPClient) Option {
	return func(c *Client) { c.http = h }
}

// WithFederationClient replaces the client used for the federation-information call.
func WithFederationClient(h *dnsclient.HTTPClient) Option {
	return func(c *Client) { c.federation = h }
}

func WithTelemetry(r *telemetry.Registry) Option {
	return func(c *Client) { c.telemetry = r }
}

func New(timeout time.Duration, userAgent string, opts ...Option) *Client {
	c := &Client{
		http:            dnsclient.NewHTTPClient(timeout, userAgent),
		federation:      dnsclient.NewInsecureHTTPClient(timeout, userAgent),
		loginURL:        providers.LoginBaseURL,
		autodiscoverURL: providers.AutodiscoverURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) observe(name string, start time.Time, err *error) {
	c.telemetry.Observe(name, start, *err)
}

// readBody reads at most maxBodyBytes and fails rather than hand a truncated document to
// the decoder.
func readBody(h *dnsclient.HTTPClient, resp *http.Response) ([]byte, error) {
	body, err := h.ReadBody(resp, maxBodyBytes+1)
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, maxBodyBytes)
	}
	return body, nil
}
