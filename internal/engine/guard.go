package engine

import (
	"context"
	"time"

	"capstan/internal/services"
)

const (
	defaultCallTimeout    = 30 * time.Second
	defaultResolveTimeout = 2 * time.Minute
)

// Guarded wraps an Engine with per-call deadlines. A wedged engine call
// returns an engine error to the caller instead of stalling the scheduler or
// poller loop; the abandoned call keeps its cancelled context and unwinds on
// its own.
type Guarded struct {
	inner        Engine
	callTimeout  time.Duration
	startTimeout time.Duration
}

// NewGuarded bounds every call on inner with callTimeout. Start gets
// resolveTimeout on top, since magnet metadata resolution legitimately takes
// longer than any other call. Non-positive durations fall back to defaults.
func NewGuarded(inner Engine, callTimeout, resolveTimeout time.Duration) *Guarded {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	if resolveTimeout <= 0 {
		resolveTimeout = defaultResolveTimeout
	}
	return &Guarded{
		inner:        inner,
		callTimeout:  callTimeout,
		startTimeout: resolveTimeout + callTimeout,
	}
}

func (g *Guarded) guard(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return services.Wrap(services.ErrEngine, "engine", op, "engine call exceeded its deadline", ctx.Err())
	}
}

func (g *Guarded) Validate(ctx context.Context, source string) error {
	return g.guard(ctx, "validate", g.callTimeout, func(ctx context.Context) error {
		return g.inner.Validate(ctx, source)
	})
}

func (g *Guarded) Start(ctx context.Context, sub Submission) (StartInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, g.startTimeout)
	defer cancel()

	type result struct {
		info StartInfo
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := g.inner.Start(ctx, sub)
		done <- result{info: info, err: err}
	}()

	select {
	case res := <-done:
		return res.info, res.err
	case <-ctx.Done():
		return StartInfo{}, services.Wrap(services.ErrEngine, "engine", "start", "engine call exceeded its deadline", ctx.Err())
	}
}

func (g *Guarded) Pause(ctx context.Context, id int64) error {
	return g.guard(ctx, "pause", g.callTimeout, func(ctx context.Context) error {
		return g.inner.Pause(ctx, id)
	})
}

func (g *Guarded) Resume(ctx context.Context, id int64) error {
	return g.guard(ctx, "resume", g.callTimeout, func(ctx context.Context) error {
		return g.inner.Resume(ctx, id)
	})
}

func (g *Guarded) Stop(ctx context.Context, id int64, deleteFiles bool) error {
	return g.guard(ctx, "stop", g.callTimeout, func(ctx context.Context) error {
		return g.inner.Stop(ctx, id, deleteFiles)
	})
}

func (g *Guarded) Progress(ctx context.Context, id int64) (Progress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	type result struct {
		progress Progress
		known    bool
		err      error
	}
	done := make(chan result, 1)
	go func() {
		progress, known, err := g.inner.Progress(ctx, id)
		done <- result{progress: progress, known: known, err: err}
	}()

	select {
	case res := <-done:
		return res.progress, res.known, res.err
	case <-ctx.Done():
		return Progress{}, false, services.Wrap(services.ErrEngine, "engine", "progress", "engine call exceeded its deadline", ctx.Err())
	}
}

func (g *Guarded) Shutdown(ctx context.Context) error {
	return g.guard(ctx, "shutdown", g.callTimeout, func(ctx context.Context) error {
		return g.inner.Shutdown(ctx)
	})
}
