package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/log"
)

const (
	// DefaultRetries is the number of attempts made when the relayer
	// connection fails.
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for every relayer request.
	DefaultTimeout = 15 * time.Second

	retryDelay = 500 * time.Millisecond
)

// httpClient is a small JSON client for the relayer HTTP API.
type httpClient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

func newHTTPClient(host string, timeout time.Duration) (*httpClient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	if hostURL.Scheme == "" || hostURL.Host == "" {
		return nil, fmt.Errorf("invalid relayer url %q", host)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := &http.Transport{
		IdleConnTimeout:       timeout,
		ResponseHeaderTimeout: timeout,
	}
	return &httpClient{
		c:       &http.Client{Transport: tr, Timeout: timeout},
		host:    hostURL,
		retries: DefaultRetries,
	}, nil
}

// request performs a method request to urlPath, attaching jsonBody when it is
// not nil. It returns the response body and status code. Only transport
// errors are retried, any HTTP answer is returned to the caller.
func (c *httpClient) request(ctx context.Context, method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
	}
	log.Debugw("relayer request",
		"type", method,
		"url", u.String(),
		"body", func() string {
			if len(body) > 512 {
				return string(body[:512]) + "..."
			}
			return string(body)
		}(),
	)

	var (
		resp *http.Response
		err  error
	)
	for i := 1; i <= c.retries; i++ {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, rerr := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if rerr != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", rerr)
		}
		req.Header = headers.Clone()

		resp, err = c.c.Do(req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		log.Warnw("relayer request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
		if i == c.retries {
			break
		}
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("relayer request failed after %d attempts: %w", c.retries, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}
