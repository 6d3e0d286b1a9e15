package upstream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// maxResponseBody caps how much of a response body an adapter will read.
const maxResponseBody = 32 << 20

// NewHTTPClient returns a client with bounded dial and idle settings. Per-call
// deadlines come from the request context.
func NewHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// Do sends req and returns the body of a 2xx response. Non-2xx responses
// become a StatusError; transport failures are classified.
func Do(ctx context.Context, client *http.Client, service string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, Classify(service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, Classify(service, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, StatusError(service, resp.StatusCode, body)
	}
	return body, nil
}
