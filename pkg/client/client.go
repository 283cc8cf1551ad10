// Package client talks to the forum REST API. Every response is decoded
// into a typed schema and validated before it reaches a caller, so callers
// never see half-filled records.
package client

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

	"github.com/google/uuid"
	"go.uber.org/zap"

	"questionforum/pkg/logging"
	"questionforum/pkg/models"
)

// ErrRejected is returned when the API answers 2xx with success=false.
var ErrRejected = errors.New("client: request rejected by the API")

// StatusError is a non-2xx API response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("api: %d %s", e.Code, e.Message)
}

// Is maps the statuses callers branch on to the models sentinels.
func (e *StatusError) Is(target error) bool {
	switch e.Code {
	case http.StatusUnauthorized:
		return target == models.ErrUnauthorized
	case http.StatusForbidden:
		return target == models.ErrForbidden
	case http.StatusNotFound:
		return target == models.ErrNotFound
	}
	return false
}

// ParseError is a 2xx response whose body did not match its schema.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string { return "client: decoding " + e.Op + ": " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// TokenSource supplies the bearer credential for each request.
type TokenSource interface {
	Token() string
}

type StaticToken string

func (t StaticToken) Token() string { return string(t) }

type Client struct {
	base   string
	http   *http.Client
	log    *zap.Logger
	tokens TokenSource
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(log *zap.Logger) Option { return func(c *Client) { c.log = log } }

// New returns an anonymous client for the API rooted at baseURL, e.g.
// http://localhost:8081/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: 15 * time.Second},
		log:    zap.NewNop(),
		tokens: StaticToken(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokens returns a copy of c that authenticates with src.
func (c *Client) WithTokens(src TokenSource) *Client {
	cp := *c
	cp.tokens = src
	return &cp
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return c.doAs(ctx, c.tokens.Token(), op, method, path, query, body, out)
}

func (c *Client) doAs(ctx context.Context, token, op, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encoding %s: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	id := logging.RequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	req.Header.Set(logging.RequestIDHeader, id)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s: %w", op, err)
	}
	defer resp.Body.Close()
	c.log.Debug("api call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.String("requestId", id))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &apiErr) != nil {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ParseError{Op: op, Err: err}
	}
	if err := models.Validate(out); err != nil {
		return &ParseError{Op: op, Err: err}
	}
	return nil
}
