// Package logstream drives `capstan logs` output. It prefers the HTTP log
// API, which carries structured events and server-side filtering, and drops
// down to raw file tailing over IPC when the API is not reachable.
package logstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"capstan/internal/api"
	"capstan/internal/ipc"
	"capstan/internal/logs"
)

var ErrFiltersRequireAPI = errors.New("log filters require API access")

// TailClient is the IPC surface needed for fallback file tailing.
type TailClient interface {
	LogTail(req ipc.LogTailRequest) (*ipc.LogTailResponse, error)
}

// Filters narrows API streaming to one component or download. The IPC
// fallback serves raw file lines and cannot honor them.
type Filters struct {
	Component string
	RecordID  int64
}

func (f Filters) empty() bool {
	return strings.TrimSpace(f.Component) == "" && f.RecordID == 0
}

// Options controls how much history to emit and whether to keep following.
type Options struct {
	Lines   int
	Follow  bool
	Filters Filters
}

// Stream emits log output through onEvent (API events) or onLine (raw tail
// lines), whichever path ends up serving the request. The boolean reports
// whether anything was emitted.
func Stream(
	ctx context.Context,
	apiClient *logs.StreamClient,
	legacy TailClient,
	opts Options,
	onEvent func(api.LogEvent),
	onLine func(string),
) (bool, error) {
	printed, err := followAPI(ctx, apiClient, opts, onEvent)
	switch {
	case err == nil:
		return printed, nil
	case !logs.IsAPIUnavailable(err):
		return printed, err
	case !opts.Filters.empty():
		return false, fmt.Errorf("%w: %w", ErrFiltersRequireAPI, logs.ErrAPIUnavailable)
	case legacy == nil:
		return false, logs.ErrAPIUnavailable
	}
	return followIPC(ctx, legacy, opts, onLine)
}

const followPageSize = 200

func followAPI(ctx context.Context, client *logs.StreamClient, opts Options, onEvent func(api.LogEvent)) (bool, error) {
	query := logs.StreamQuery{
		Limit:     opts.Lines,
		Tail:      true,
		Component: opts.Filters.Component,
		RecordID:  opts.Filters.RecordID,
	}
	if query.Limit <= 0 {
		query.Limit = followPageSize
	}

	printed := false
	for {
		resp, err := client.Fetch(ctx, query)
		if err != nil {
			return printed, err
		}
		for _, evt := range resp.Events {
			if onEvent != nil {
				onEvent(evt)
			}
			printed = true
		}
		if !opts.Follow {
			return printed, nil
		}
		query = logs.StreamQuery{
			Since:     resp.Next,
			Limit:     followPageSize,
			Follow:    true,
			Component: opts.Filters.Component,
			RecordID:  opts.Filters.RecordID,
		}
	}
}

func followIPC(ctx context.Context, client TailClient, opts Options, onLine func(string)) (bool, error) {
	// The first request asks for the last N lines (offset -1 means "from the
	// end"); follow-up requests resume from the returned byte offset.
	req := ipc.LogTailRequest{
		Offset:     -1,
		Limit:      max(opts.Lines, 0),
		Follow:     opts.Follow,
		WaitMillis: 1000,
	}
	if req.Limit == 0 {
		req.Offset = 0
	}

	printed := false
	for {
		resp, err := client.LogTail(req)
		if err != nil {
			return printed, fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return printed, errors.New("log tail response missing")
		}
		for _, line := range resp.Lines {
			if onLine != nil {
				onLine(line)
			}
			printed = true
		}
		if !opts.Follow {
			return printed, nil
		}
		if ctx.Err() != nil {
			return printed, nil
		}
		req.Offset = resp.Offset
		req.Limit = 0
	}
}
