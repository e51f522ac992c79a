package dnsclient

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps *http.Client and stamps a User-Agent on requests that don't carry one.
type HTTPClient struct {
	client    *http.Client
	userAgent string
}

func NewHTTPClient(timeout time.Duration, userAgent string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(nil),
		},
		userAgent: userAgent,
	}
}

// NewInsecureHTTPClient skips certificate verification. Only the federation-information
// endpoint uses it.
func NewInsecureHTTPClient(timeout time.Duration, userAgent string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: newTransport(&tls.Config{
				InsecureSkipVerify: true, //nolint:gosec
			}),
		},
		userAgent: userAgent,
	}
}

func newTransport(tlsConfig *tls.Config) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		IdleConnTimeout:     30 * time.Second,
		MaxIdleConnsPerHost: 5,
		TLSClientConfig:     tlsConfig,
	}
}

func (h *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	return h.client.Do(req)
}

func (h *HTTPClient) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return h.Do(req)
}

func (h *HTTPClient) ReadBody(resp *http.Response, maxBytes int64) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxBytes))
}
