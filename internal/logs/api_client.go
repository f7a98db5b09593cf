package logs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"capstan/internal/api"
)

var ErrAPIUnavailable = errors.New("log API unavailable")

// StreamClient reads structured log events from the daemon's HTTP API.
type StreamClient struct {
	base  *url.URL
	token string
	http  *http.Client
}

// StreamQuery mirrors the /api/logs query parameters.
type StreamQuery struct {
	Since     uint64
	Limit     int
	Follow    bool
	Tail      bool
	Component string
	RecordID  int64
}

// NewStreamClient builds a client for the configured API bind address. An
// empty bind returns (nil, nil): the caller falls back to IPC log tailing.
func NewStreamClient(bind, token string) (*StreamClient, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &StreamClient{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout: follow mode blocks waiting for events until the
		// caller cancels the context.
		http: &http.Client{},
	}, nil
}

// encode renders the non-zero query fields as URL parameters.
func (q StreamQuery) encode() url.Values {
	v := url.Values{}
	if q.Since > 0 {
		v.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		v.Set("follow", "1")
	}
	if q.Tail {
		v.Set("tail", "1")
	}
	if component := strings.TrimSpace(q.Component); component != "" {
		v.Set("component", component)
	}
	if q.RecordID > 0 {
		v.Set("record", strconv.FormatInt(q.RecordID, 10))
	}
	return v
}

// Fetch performs one /api/logs request and decodes the event batch.
func (c *StreamClient) Fetch(ctx context.Context, q StreamQuery) (api.LogStreamResponse, error) {
	var empty api.LogStreamResponse
	if c == nil {
		return empty, ErrAPIUnavailable
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/logs", RawQuery: q.encode().Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return empty, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return empty, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return empty, fmt.Errorf("api logs returned status %d", resp.StatusCode)
	}

	var payload api.LogStreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return empty, err
	}
	return payload, nil
}

// IsAPIUnavailable reports whether the error means the HTTP API cannot be
// reached, as opposed to a request that reached the daemon and failed.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
