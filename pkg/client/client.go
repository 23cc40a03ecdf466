// Package client talks to the license service over HTTP. The CLI and the
// agent share it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/astralux/licensing/pkg/license"
)

// APIError is a non-2xx answer. It unwraps to the *license.Error of its
// code, so errors.Is(err, license.ErrRevoked) works on client errors too.
type APIError struct {
	Status    int
	Code      license.Kind
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("%s [request %s]", msg, e.RequestID)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e.Code == "" {
		return nil
	}
	return &license.Error{Kind: e.Code, Message: e.Message}
}

type Client struct {
	baseURL     string
	adminSecret string
	http        *http.Client
	retrier     *Retrier
	userAgent   string
}

type Option func(*Client)

// WithAdminSecret sends secret as a bearer token on admin calls.
func WithAdminSecret(secret string) Option {
	return func(c *Client) { c.adminSecret = secret }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithRetrier(r *Retrier) Option {
	return func(c *Client) { c.retrier = r }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		retrier:   NewRetrier(500, 5000, 3),
		userAgent: "license-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ValidateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status         string `json:"status"`
	StoreReachable bool   `json:"store_reachable"`
	Version        string `json:"version"`
}

// Validate checks key and binds it to hwid on first use.
func (c *Client) Validate(ctx context.Context, key, hwid string) (ValidateResponse, error) {
	var out ValidateResponse
	err := c.call(ctx, http.MethodPost, "/api/validate", map[string]string{"license_key": key, "hwid": hwid}, &out, false, true)
	return out, err
}

// Redeem is Validate with a mandatory hwid.
func (c *Client) Redeem(ctx context.Context, key, hwid string) (ValidateResponse, error) {
	var out ValidateResponse
	err := c.call(ctx, http.MethodPost, "/api/redeem", map[string]string{"license_key": key, "hwid": hwid}, &out, false, true)
	return out, err
}

func (c *Client) Claim(ctx context.Context, key, owner string) error {
	return c.call(ctx, http.MethodPost, "/api/claim", map[string]string{"license_key": key, "owner_identity": owner}, nil, false, true)
}

// Generate is never repeated after a transport failure, which could mint two
// licenses.
func (c *Client) Generate(ctx context.Context, owner string) (string, error) {
	var out struct {
		LicenseKey string `json:"license_key"`
	}
	err := c.call(ctx, http.MethodPost, "/api/generate", map[string]string{"owner_identity": owner}, &out, true, false)
	return out.LicenseKey, err
}

func (c *Client) Revoke(ctx context.Context, key string) error {
	return c.call(ctx, http.MethodPost, "/api/revoke", map[string]string{"license_key": key}, nil, true, true)
}

// ResetHwid spends one reset of the license named by key or owner.
func (c *Client) ResetHwid(ctx context.Context, key, owner string) (int, error) {
	body := map[string]string{}
	if key != "" {
		body["license_key"] = key
	}
	if owner != "" {
		body["owner_identity"] = owner
	}
	var out struct {
		RemainingResets int `json:"remaining_resets"`
	}
	err := c.call(ctx, http.MethodPost, "/api/hwid-reset", body, &out, true, false)
	return out.RemainingResets, err
}

func (c *Client) CheckShare(ctx context.Context, key string) (license.ShareReport, error) {
	var out license.ShareReport
	err := c.call(ctx, http.MethodPost, "/api/check-share", map[string]string{"license_key": key}, &out, true, true)
	return out, err
}

func (c *Client) Inspect(ctx context.Context, key string) (license.License, error) {
	var out license.License
	err := c.call(ctx, http.MethodGet, "/api/licenses/"+url.PathEscape(key), nil, &out, true, true)
	return out, err
}

func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.call(ctx, http.MethodGet, "/health", nil, &out, false, true)
	return out, err
}

func (c *Client) call(ctx context.Context, method, path string, body any, out any, admin, idempotent bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	retryable := IsRetryableStatus
	if idempotent {
		retryable = IsRetryable
	}
	return c.retrier.Do(ctx, func() error {
		return c.once(ctx, method, path, payload, out, admin)
	}, retryable)
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any, admin bool) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if admin && c.adminSecret != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminSecret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}
		var failure struct {
			Error     string `json:"error"`
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		}
		if json.Unmarshal(data, &failure) == nil {
			apiErr.Message = failure.Error
			apiErr.Code = license.Kind(failure.Code)
			if failure.RequestID != "" {
				apiErr.RequestID = failure.RequestID
			}
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
