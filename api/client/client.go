package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Malyypnrhz7/vote-vault-fhe/api"
	"github.com/Malyypnrhz7/vote-vault-fhe/log"
	"github.com/Malyypnrhz7/vote-vault-fhe/types"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	errCodeNot200 = "API error"

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client. Ledger
	// writes wait until mined, so it is longer than a usual HTTP timeout.
	DefaultTimeout = 5 * time.Minute
)

// HTTPclient is the vote vault API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// New returns a client for the API at host, checking it answers the ping.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	data, status, err := c.Request(context.Background(), HTTPGET, nil, nil, api.PingEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	return c, nil
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// If jsonBody is not nil it is sent as JSON. Returns the response, the status code and an error.
//
// Supports query parameters via `params` slice. If the slice is not empty, it should contain pairs of strings;
// the first element of each pair is the key, and the second element is the value.
func (c *HTTPclient) Request(ctx context.Context, method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	// Expecting even-length slice: [key1, val1, key2, val2, ...]
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i < len(params)-1; i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}

	headers := http.Header{}
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
		headers.Set("Accept", "application/json")
	}
	log.Debugw("http client request",
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

		if resp, err = c.c.Do(req); err == nil {
			break
		}
		log.Warnw("http request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
		if ctx.Err() != nil || i == c.retries {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("http request ultimately failed after retries: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// APIError is a non 200 answer of the API.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %d: %s (code %d)", errCodeNot200, e.Status, e.Message, e.Code)
}

// do runs the request and decodes the 200 answer into out.
func (c *HTTPclient) do(ctx context.Context, method string, jsonBody, out any, urlPath ...string) error {
	data, status, err := c.Request(ctx, method, jsonBody, nil, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := &APIError{Status: status}
		if err := json.Unmarshal(data, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("cannot decode response: %w", err)
	}
	return nil
}

func proposalPath(id uint64, sub ...string) []string {
	return append([]string{api.ProposalsEndpoint, strconv.FormatUint(id, 10)}, sub...)
}

// State returns the connection state of the API.
func (c *HTTPclient) State(ctx context.Context) (*api.State, error) {
	st := &api.State{}
	return st, c.do(ctx, HTTPGET, nil, st, api.StateEndpoint)
}

// Proposals returns the proposal snapshot.
func (c *HTTPclient) Proposals(ctx context.Context) ([]*types.Proposal, error) {
	ps := &api.Proposals{}
	if err := c.do(ctx, HTTPGET, nil, ps, api.ProposalsEndpoint); err != nil {
		return nil, err
	}
	return ps.Proposals, nil
}

// Proposal returns a single proposal.
func (c *HTTPclient) Proposal(ctx context.Context, id uint64) (*types.Proposal, error) {
	p := &types.Proposal{}
	return p, c.do(ctx, HTTPGET, nil, p, proposalPath(id)...)
}

// CreateProposal creates a proposal lasting durationSeconds.
func (c *HTTPclient) CreateProposal(ctx context.Context, title, description string, durationSeconds uint64) (*api.ProposalCreated, error) {
	res := &api.ProposalCreated{}
	return res, c.do(ctx, HTTPPOST, &api.NewProposal{
		Title:           title,
		Description:     description,
		DurationSeconds: durationSeconds,
	}, res, api.ProposalsEndpoint)
}

// CastVote casts choice on the proposal.
func (c *HTTPclient) CastVote(ctx context.Context, id uint64, choice types.VoteChoice) (*types.Receipt, error) {
	receipt := &types.Receipt{}
	return receipt, c.do(ctx, HTTPPOST, &api.Vote{Choice: choice.String()}, receipt, proposalPath(id, "votes")...)
}

// Voted reports whether the API voter already voted on the proposal.
func (c *HTTPclient) Voted(ctx context.Context, id uint64) (bool, error) {
	v := &api.Voted{}
	if err := c.do(ctx, HTTPGET, nil, v, proposalPath(id, "voted")...); err != nil {
		return false, err
	}
	return v.Voted, nil
}

// Tallies returns the tallies of the proposal.
func (c *HTTPclient) Tallies(ctx context.Context, id uint64) (*types.EncryptedTallies, error) {
	t := &types.EncryptedTallies{}
	return t, c.do(ctx, HTTPGET, nil, t, proposalPath(id, "tallies")...)
}

// EndProposal ends the proposal.
func (c *HTTPclient) EndProposal(ctx context.Context, id uint64) (*types.Receipt, error) {
	receipt := &types.Receipt{}
	return receipt, c.do(ctx, HTTPPOST, nil, receipt, proposalPath(id, "end")...)
}
