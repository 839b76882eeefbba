// Package backend implements the remote sync client: it registers wallet addresses with the backend and pulls the
// backend's authoritative wallet state.
//
// Every call is bounded by the client timeout. Failures are classified as ErrNetworkUnavailable (transient, the
// caller may retry) or ErrBackendRejected (permanent, retrying will not help).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultTimeout bounds each backend call when none is configured.
const DefaultTimeout = 10 * time.Second

// maxBody limits the response bytes read from the backend.
const maxBody = 1 << 20

// Errors returned
var (
	ErrNetworkUnavailable = errors.New("backend network unavailable")
	ErrBackendRejected    = errors.New("backend rejected the request")
	// ErrWalletNotFound is a rejected sync of an address the backend never registered.
	ErrWalletNotFound     = fmt.Errorf("%w: wallet not found", ErrBackendRejected)
)

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkUnavailable)
}

// Ack acknowledges a registration. Existing is true when the backend already knew the address.
type Ack struct {
	Address  string `json:"address"`
	Existing bool   `json:"existing"`
}

// SyncRecord is the backend's association between an address and the wallet metadata.
type SyncRecord struct {
	Address      string                 `json:"address"`
	RegisteredAt time.Time              `json:"registered_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// registerReq is the body posted to register a wallet.
type registerReq struct {
	Address string `json:"address"`
}

// errorRes is the body returned by the backend on errors.
type errorRes struct {
	Error string `json:"error"`
}

// Observer receives the outcome of each backend call. Result is "ok", "unavailable" or "rejected".
type Observer func(op, result string, elapsed time.Duration)

// Client talks to the backend HTTP API rooted at base.
type Client struct {
	base    *url.URL
	apiKey  string
	timeout time.Duration
	hc      *http.Client
	log     *zap.Logger
	obs     Observer
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each call to d.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying http.Client. Its Timeout is overridden by the client timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver reports every call outcome to obs.
func WithObserver(obs Observer) Option {
	return func(c *Client) { c.obs = obs }
}

// New returns a Client for the backend API at base (ie. https://api.example.com/v1).
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", base)
	}

	c := &Client{base: u, timeout: DefaultTimeout, hc: &http.Client{}, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}

	hc := *c.hc
	hc.Timeout = c.timeout
	c.hc = &hc

	return c, nil
}

// RegisterWallet upserts address in the backend. Registering an address the backend already knows is a successful
// no-op.
func (c *Client) RegisterWallet(ctx context.Context, address string) (ack Ack, err error) {
	if !common.IsHexAddress(address) {
		return ack, fmt.Errorf("%w: invalid address %q", ErrBackendRejected, address)
	}

	body, err := json.Marshal(registerReq{Address: address})
	if err != nil {
		return ack, fmt.Errorf("cannot encode request: %w", err)
	}

	status, res, err := c.do(ctx, "register", http.MethodPost, c.endpoint("wallets"), body)
	if err != nil {
		return ack, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		ack.Address = address

		if len(res) > 0 {
			var body Ack
			if errU := json.Unmarshal(res, &body); errU != nil {
				c.log.Warn("malformed register response", zap.String("address", address), zap.Error(errU))
			} else {
				ack.Existing = body.Existing
			}
		}
	case http.StatusConflict:
		ack = Ack{Address: address, Existing: true}
	}

	c.log.Debug("wallet registered", zap.String("address", address), zap.Bool("existing", ack.Existing))

	return ack, nil
}

// SyncWalletData pulls the backend state for an existing address.
func (c *Client) SyncWalletData(ctx context.Context, address string) (rec SyncRecord, err error) {
	if !common.IsHexAddress(address) {
		return rec, fmt.Errorf("%w: invalid address %q", ErrBackendRejected, address)
	}

	_, res, err := c.do(ctx, "sync", http.MethodGet, c.endpoint("wallets", address), nil)
	if err != nil {
		return rec, err
	}

	if err = json.Unmarshal(res, &rec); err != nil {
		return rec, fmt.Errorf("%w: malformed sync record: %w", ErrBackendRejected, err)
	}

	if rec.Address == "" {
		rec.Address = address
	}

	return rec, nil
}

func (c *Client) endpoint(elem ...string) string {
	u := *c.base
	for _, e := range elem {
		u.Path += "/" + url.PathEscape(e)
	}

	return u.String()
}

// do sends a request bounded by the client timeout and classifies the outcome. Success statuses (and 409 for
// register) are returned with the body; everything else becomes an error.
func (c *Client) do(ctx context.Context, op, method, uri string, body []byte) (status int, res []byte, err error) {
	start := time.Now()
	result := "ok"

	defer func() {
		switch {
		case errors.Is(err, ErrNetworkUnavailable):
			result = "unavailable"
		case err != nil:
			result = "rejected"
		}

		if c.obs != nil {
			c.obs(op, result, time.Since(start))
		}

		if err != nil {
			c.log.Warn("backend call failed", zap.String("op", op), zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrBackendRejected, err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=utf8")
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		// transport errors, timeouts and cancellations are all transient
		return 0, nil, fmt.Errorf("%w: %s: %w", ErrNetworkUnavailable, op, err)
	}
	defer resp.Body.Close()

	res, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: %s: reading response: %w", ErrNetworkUnavailable, op, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, res, nil
	case resp.StatusCode == http.StatusConflict && op == "register":
		return resp.StatusCode, res, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode >= 500:
		return resp.StatusCode, res, fmt.Errorf("%w: %s: status %d%s", ErrNetworkUnavailable, op, resp.StatusCode,
			reason(res))
	case resp.StatusCode == http.StatusNotFound && op == "sync":
		return resp.StatusCode, res, fmt.Errorf("%w: %s: status %d%s", ErrWalletNotFound, op, resp.StatusCode,
			reason(res))
	default:
		return resp.StatusCode, res, fmt.Errorf("%w: %s: status %d%s", ErrBackendRejected, op, resp.StatusCode,
			reason(res))
	}
}

// reason extracts the backend error message, if any.
func reason(res []byte) string {
	var e errorRes
	if json.Unmarshal(res, &e) == nil && e.Error != "" {
		return ": " + e.Error
	}

	return ""
}
