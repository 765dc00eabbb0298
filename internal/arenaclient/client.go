package arenaclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-arena/pkg/arenadto"
	"github.com/valyala/fasthttp"
)

// StatusError is a non-2xx answer from the arena HTTP API.
type StatusError struct {
	Status int
	Body   arenadto.DomainError
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("arena api error: status=%d code=%s message=%s", e.Status, e.Body.Code, e.Body.Message)
}

// Client talks to the room and history routes of an arena server.
type Client struct {
	baseURL  string
	identity string
	http     *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithHTTPClient swaps the transport, e.g. for an in-memory listener.
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL, identity string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		identity:       strings.TrimSpace(identity),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Health(ctx context.Context) (*arenadto.Health, error) {
	var h arenadto.Health
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/healthz", nil, &h, true); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) CreateRoom(ctx context.Context, color string) (*arenadto.CreateRoomResponse, error) {
	var out arenadto.CreateRoomResponse
	in := map[string]string{"color": color}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/rooms", in, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinRoom(ctx context.Context, code string) (*arenadto.Room, error) {
	return c.roomAction(ctx, code, "join")
}

func (c *Client) CancelRoom(ctx context.Context, code string) (*arenadto.Room, error) {
	return c.roomAction(ctx, code, "cancel")
}

func (c *Client) Rematch(ctx context.Context, code string) (*arenadto.Room, error) {
	return c.roomAction(ctx, code, "rematch")
}

func (c *Client) Room(ctx context.Context, code string) (*arenadto.Room, error) {
	var out arenadto.Room
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/rooms/"+url.PathEscape(code), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) WaitingRooms(ctx context.Context) ([]arenadto.Room, error) {
	var out arenadto.RoomList
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/rooms", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

func (c *Client) Match(ctx context.Context, sessionID string) (*arenadto.MatchSummary, error) {
	var out arenadto.MatchSummary
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/matches/"+url.PathEscape(sessionID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PlayerMatches(ctx context.Context, identity string, limit int) ([]arenadto.MatchSummary, error) {
	path := "/players/" + url.PathEscape(identity) + "/matches"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out arenadto.MatchList
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

func (c *Client) roomAction(ctx context.Context, code, action string) (*arenadto.Room, error) {
	var out arenadto.RoomActionResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/rooms/"+url.PathEscape(code)+"/"+action, nil, &out, false); err != nil {
		return nil, err
	}
	if out.Room == nil {
		return nil, errors.New("arena api: empty room in response")
	}
	return out.Room, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.identity != "" {
		req.Header.Set("X-User-Id", c.identity)
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			se := &StatusError{Status: status}
			_ = json.Unmarshal(resp.Body(), &se.Body)
			if !shouldRetryStatus(status) {
				return se
			}
			lastErr = se
		} else {
			if out != nil {
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
			}
			return nil
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
