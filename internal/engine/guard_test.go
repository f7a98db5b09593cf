package engine_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"capstan/internal/engine"
	"capstan/internal/services"
)

// blockingEngine parks every call until its context is cancelled.
type blockingEngine struct{}

func (blockingEngine) Validate(ctx context.Context, source string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingEngine) Start(ctx context.Context, sub engine.Submission) (engine.StartInfo, error) {
	<-ctx.Done()
	return engine.StartInfo{}, ctx.Err()
}

func (blockingEngine) Pause(ctx context.Context, id int64) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingEngine) Resume(ctx context.Context, id int64) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingEngine) Stop(ctx context.Context, id int64, deleteFiles bool) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingEngine) Progress(ctx context.Context, id int64) (engine.Progress, bool, error) {
	<-ctx.Done()
	return engine.Progress{}, false, ctx.Err()
}

func (blockingEngine) Shutdown(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// cannedEngine answers immediately with fixed values.
type cannedEngine struct {
	validateErr error
	startInfo   engine.StartInfo
	progress    engine.Progress
	known       bool
	stopped     []int64
}

func (c *cannedEngine) Validate(ctx context.Context, source string) error { return c.validateErr }

func (c *cannedEngine) Start(ctx context.Context, sub engine.Submission) (engine.StartInfo, error) {
	return c.startInfo, nil
}

func (c *cannedEngine) Pause(ctx context.Context, id int64) error  { return nil }
func (c *cannedEngine) Resume(ctx context.Context, id int64) error { return nil }

func (c *cannedEngine) Stop(ctx context.Context, id int64, deleteFiles bool) error {
	c.stopped = append(c.stopped, id)
	return nil
}

func (c *cannedEngine) Progress(ctx context.Context, id int64) (engine.Progress, bool, error) {
	return c.progress, c.known, nil
}

func (c *cannedEngine) Shutdown(ctx context.Context) error { return nil }

func TestGuardedPassesResultsThrough(t *testing.T) {
	inner := &cannedEngine{
		validateErr: services.Wrap(services.ErrValidation, "engine", "validate", "bad source", nil),
		startInfo:   engine.StartInfo{Name: "sample", TotalBytes: 2048, Fingerprint: "abcd"},
		progress:    engine.Progress{TotalBytes: 2048, CompletedBytes: 1024},
		known:       true,
	}
	guarded := engine.NewGuarded(inner, time.Second, time.Second)
	ctx := context.Background()

	if err := guarded.Validate(ctx, "x"); !errors.Is(err, services.ErrValidation) {
		t.Errorf("Validate() error = %v, want inner ErrValidation", err)
	}

	info, err := guarded.Start(ctx, engine.Submission{RecordID: 1})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !reflect.DeepEqual(info, inner.startInfo) {
		t.Errorf("Start() info = %+v, want %+v", info, inner.startInfo)
	}

	progress, known, err := guarded.Progress(ctx, 1)
	if err != nil || !known {
		t.Fatalf("Progress() = %v, %v", known, err)
	}
	if progress != inner.progress {
		t.Errorf("Progress() = %+v, want %+v", progress, inner.progress)
	}

	if err := guarded.Stop(ctx, 7, true); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(inner.stopped) != 1 || inner.stopped[0] != 7 {
		t.Errorf("inner Stop calls = %v, want [7]", inner.stopped)
	}
}

func TestGuardedTimesOutBlockedCalls(t *testing.T) {
	guarded := engine.NewGuarded(blockingEngine{}, 25*time.Millisecond, 25*time.Millisecond)
	ctx := context.Background()

	begin := time.Now()
	if err := guarded.Validate(ctx, "x"); !errors.Is(err, services.ErrEngine) {
		t.Errorf("Validate() error = %v, want ErrEngine", err)
	}
	if _, err := guarded.Start(ctx, engine.Submission{RecordID: 1}); !errors.Is(err, services.ErrEngine) {
		t.Errorf("Start() error = %v, want ErrEngine", err)
	}
	if _, _, err := guarded.Progress(ctx, 1); !errors.Is(err, services.ErrEngine) {
		t.Errorf("Progress() error = %v, want ErrEngine", err)
	}
	if err := guarded.Pause(ctx, 1); !errors.Is(err, services.ErrEngine) {
		t.Errorf("Pause() error = %v, want ErrEngine", err)
	}
	if err := guarded.Shutdown(ctx); !errors.Is(err, services.ErrEngine) {
		t.Errorf("Shutdown() error = %v, want ErrEngine", err)
	}
	if elapsed := time.Since(begin); elapsed > 5*time.Second {
		t.Errorf("guarded calls took %v, deadlines not applied", elapsed)
	}
}

func TestGuardedDefaultsTimeouts(t *testing.T) {
	guarded := engine.NewGuarded(&cannedEngine{}, 0, 0)
	if err := guarded.Validate(context.Background(), "x"); err != nil {
		t.Errorf("Validate() with defaulted timeouts error = %v", err)
	}
}
