// Package backend is the HTTP client for the commerce backend services
// (orders, vouchers, products, comments). Every response is wrapped in the
// {code, message, result} envelope.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// CodeOK is the envelope code for a successful call.
	CodeOK = 200

	maxResponseSizeBytes = 4 << 20
	defaultTimeout       = 20 * time.Second
)

var (
	ErrTimeout   = errors.New("backend request timed out")
	ErrMalformed = errors.New("backend response is malformed")
)

// HTTPStatusError reports a non-2xx transport status.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("backend http status=%d", e.StatusCode)
}

// EnvelopeError reports a 2xx response whose envelope code signals failure.
type EnvelopeError struct {
	Code    int
	Message string
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("backend envelope code=%d message=%s", e.Code, e.Message)
}

type Config struct {
	OrderURL   string        `envconfig:"ORDER_URL" split_words:"true" required:"true"`
	ProductURL string        `envconfig:"PRODUCT_URL" split_words:"true" required:"true"`
	CommentURL string        `envconfig:"COMMENT_URL" split_words:"true"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"20s"`
}

// Clients groups one client per backend service.
type Clients struct {
	Orders   *Client
	Products *Client
	Comments *Client
}

func NewClients(cfg Config) (Clients, error) {
	orders, err := NewClient(cfg.OrderURL, cfg.Timeout)
	if err != nil {
		return Clients{}, fmt.Errorf("order backend: %w", err)
	}
	products, err := NewClient(cfg.ProductURL, cfg.Timeout)
	if err != nil {
		return Clients{}, fmt.Errorf("product backend: %w", err)
	}

	commentURL := strings.TrimSpace(cfg.CommentURL)
	if commentURL == "" {
		commentURL = cfg.OrderURL
	}
	comments, err := NewClient(commentURL, cfg.Timeout)
	if err != nil {
		return Clients{}, fmt.Errorf("comment backend: %w", err)
	}

	return Clients{Orders: orders, Products: products, Comments: comments}, nil
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func MustNew(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c, err := NewClient(baseURL, timeout, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Request describes one backend call. Timeout overrides the client default.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Token   string
	Body    any
	Timeout time.Duration
}

// Envelope is the common response wrapper of the commerce backend.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Expect returns an *EnvelopeError unless the envelope carries the given code.
func (e Envelope) Expect(code int) error {
	if e.Code != code {
		return &EnvelopeError{Code: e.Code, Message: e.Message}
	}
	return nil
}

// DecodeResult unmarshals the envelope result into out.
func (e Envelope) DecodeResult(out any) error {
	raw := bytes.TrimSpace(e.Result)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode result: %v", ErrMalformed, err)
	}
	return nil
}

// Envelope performs req and decodes the envelope without checking its code.
func (c *Client) Envelope(ctx context.Context, req Request) (Envelope, error) {
	var env Envelope
	if err := c.Do(ctx, req, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Do performs req and decodes the JSON body into out.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, httpReq.Method, req.Path)
		}
		return fmt.Errorf("execute backend request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: read %s", ErrTimeout, req.Path)
		}
		return fmt.Errorf("read backend response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal backend body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := strings.TrimSpace(req.Token); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
