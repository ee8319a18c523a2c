// Package api is the REST client for the marketplace backend: chat history, user
// search, the request/response send endpoint, and the car catalog.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/karthikraju391/rentchat/config"
	"github.com/karthikraju391/rentchat/models"
	"github.com/karthikraju391/rentchat/normalize"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
}

// Client talks to the backend over fasthttp.
type Client struct {
	base       string
	hc         *fasthttp.Client
	timeout    time.Duration
	log        *zap.Logger
	normalizer *normalize.Normalizer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTimeout bounds requests whose context carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the underlying fasthttp client.
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// New returns a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		timeout: config.RequestTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hc == nil {
		c.hc = &fasthttp.Client{
			Name:                "rentchat",
			MaxIdleConnDuration: 30 * time.Second,
		}
	}
	c.normalizer = normalize.New(c.log)
	return c
}

// History returns the conversation between localEmail and the user peerUsername,
// oldest first.
func (c *Client) History(ctx context.Context, localEmail, peerUsername string) ([]models.Message, error) {
	path := "/chat/messages/" + url.PathEscape(localEmail) + "/" + url.PathEscape(peerUsername)
	var msgs []models.Message
	if err := c.getJSON(ctx, path, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SearchUsers finds users whose username or email contains query.
// A blank query returns nil without a request.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]models.Peer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	var peers []models.Peer
	if err := c.getJSON(ctx, "/chat/search-users?query="+url.QueryEscape(query), &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// SendMessage stores a message through the request/response endpoint.
func (c *Client) SendMessage(ctx context.Context, req models.SendRequest) (models.Message, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.Message{}, fmt.Errorf("encode send request: %w", err)
	}
	var msg models.Message
	if err := c.do(ctx, fasthttp.MethodPost, "/chat/send", body, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListCars fetches the whole catalog.
func (c *Client) ListCars(ctx context.Context) (normalize.Result, error) {
	return c.getCars(ctx, "/car/cars")
}

// SearchCars fetches the catalog filtered by f. An empty filter lists everything.
func (c *Client) SearchCars(ctx context.Context, f models.CarFilter) (normalize.Result, error) {
	if f.Empty() {
		return c.ListCars(ctx)
	}
	q := url.Values{}
	if f.Location != "" {
		q.Set("location", f.Location)
	}
	if f.CarType != "" {
		q.Set("car_type", f.CarType)
	}
	if f.MaxPrice > 0 {
		q.Set("max_price", strconv.FormatFloat(f.MaxPrice, 'f', -1, 64))
	}
	return c.getCars(ctx, "/car/cars/search?"+q.Encode())
}

// UserCars fetches the listings owned by email.
func (c *Client) UserCars(ctx context.Context, email string) (normalize.Result, error) {
	return c.getCars(ctx, "/car/user-cars?email="+url.QueryEscape(email))
}

func (c *Client) getCars(ctx context.Context, path string) (normalize.Result, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return normalize.Result{}, err
	}
	return c.normalizer.NormalizeJSON(raw), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, fasthttp.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	req.SetRequestURI(c.base + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}

	// fasthttp does not observe contexts, so the exchange runs aside and is
	// abandoned on cancellation. req and resp belong to it until it returns.
	done := make(chan error, 1)
	go func() {
		done <- c.hc.DoDeadline(req, resp, deadline)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		go func() {
			<-done
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		}()
		return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
	}
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	code := resp.StatusCode()
	if code < 200 || code > 299 {
		serr := &StatusError{Method: method, Path: path, Code: code, Detail: detail(resp.Body())}
		c.log.Debug("backend rejected request", zap.Error(serr))
		return serr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// detail extracts the {"detail": ...} message the backend attaches to errors.
func detail(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return string(b)
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
