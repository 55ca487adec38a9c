// Package transport talks to the event chat REST API. It performs one HTTP
// request per call, categorizes failures and never retries; pacing and
// backoff belong to the caller.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gameday/event-chat/internal/chat"
	"github.com/gameday/event-chat/internal/metrics"
	"github.com/gameday/event-chat/internal/protocol"
)

const (
	// RequestIDHeader carries a per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 64 << 10
	maxPageBody  = 8 << 20
)

// Transport is the set of chat API operations the session layer depends on.
type Transport interface {
	FetchSince(ctx context.Context, eventID string, cursor chat.Cursor, limit int) (chat.Page, error)
	Send(ctx context.Context, eventID, text string) (chat.Message, error)
	Delete(ctx context.Context, messageID string) error
}

// Authorizer decorates outgoing requests with credentials.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// AuthorizerFunc adapts a plain function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, req *http.Request) error

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, req *http.Request) error {
	return f(ctx, req)
}

// BearerToken returns an Authorizer that sends a static bearer token. An
// empty token leaves requests untouched.
func BearerToken(token string) Authorizer {
	return AuthorizerFunc(func(_ context.Context, req *http.Request) error {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return nil
	})
}

// Config holds the connection settings of a Client.
type Config struct {
	BaseURL string
	// Timeout bounds each request, including reading the body. Zero means
	// only the caller's context applies.
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAuthorizer installs the request authorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(c *Client) { c.auth = a }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client implements Transport over HTTP.
type Client struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	auth    Authorizer
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ Transport = (*Client)(nil)

// New creates a Client for the API rooted at cfg.BaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("transport: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("transport: base url %q must be http or https", cfg.BaseURL)
	}

	c := &Client{
		base:    base,
		timeout: cfg.Timeout,
		http:    http.DefaultClient,
		logger:  zap.NewNop(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("transport")
	return c, nil
}

// FetchSince lists messages for an event. An empty cursor asks for the most
// recent page; otherwise only messages strictly after the cursor are
// returned. A non-positive limit selects the server default.
func (c *Client) FetchSince(ctx context.Context, eventID string, cursor chat.Cursor, limit int) (chat.Page, error) {
	q := url.Values{}
	if limit > 0 {
		if limit > protocol.MaxPageLimit {
			limit = protocol.MaxPageLimit
		}
		q.Set(protocol.ParamLimit, strconv.Itoa(limit))
	}
	if !cursor.IsZero() {
		q.Set(protocol.ParamSince, string(cursor))
	}

	var page chat.Page
	err := c.do(ctx, "fetch", http.MethodGet, protocol.EventMessagesPath(url.PathEscape(eventID)), q, nil, http.StatusOK, &page)
	if err != nil {
		return chat.Page{}, err
	}
	if page.Messages == nil {
		page.Messages = []chat.Message{}
	}
	return page, nil
}

// Send posts a new message and returns it as stored by the server.
func (c *Client) Send(ctx context.Context, eventID, text string) (chat.Message, error) {
	body := protocol.SendRequest{EventID: eventID, MessageText: text}

	var msg chat.Message
	if err := c.do(ctx, "send", http.MethodPost, protocol.BasePath, nil, body, http.StatusCreated, &msg); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

// Delete removes a message owned by the caller.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	return c.do(ctx, "delete", http.MethodDelete, protocol.MessagePath(url.PathEscape(messageID)), nil, nil, http.StatusNoContent, nil)
}

// Get fetches a single message. It returns nil without error when the
// server reports the message does not exist.
func (c *Client) Get(ctx context.Context, messageID string) (*chat.Message, error) {
	var msg *chat.Message
	err := c.do(ctx, "get", http.MethodGet, protocol.MessagePath(url.PathEscape(messageID)), nil, nil, http.StatusOK, &msg)
	if err != nil {
		var te *Error
		if errors.As(err, &te) && te.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// do performs one request and expects status want. out may be nil when the
// response has no body.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in any, want int, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindNetwork, Op: op, Err: err}
		}
	}

	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("transport: %s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("transport: %s: build request: %w", op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set(RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		if err := c.auth.Authorize(ctx, req); err != nil {
			return &Error{Kind: KindAuth, Op: op, Err: err}
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("op", op),
			zap.String("request_id", reqID),
			zap.Error(err),
		)
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := &Error{
			Kind:   kindForStatus(resp.StatusCode),
			Op:     op,
			Status: resp.StatusCode,
			Detail: protocol.ParseDetail(raw),
		}
		c.logger.Debug("request rejected",
			zap.String("op", op),
			zap.String("request_id", reqID),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", e.Detail),
		)
		return e
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPageBody)).Decode(out); err != nil {
		if ctx.Err() != nil {
			return &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Err: ctx.Err()}
		}
		return &Error{Kind: KindServer, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
