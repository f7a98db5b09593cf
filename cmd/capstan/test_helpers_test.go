package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"capstan/internal/config"
	"capstan/internal/daemon"
	"capstan/internal/engine"
	"capstan/internal/history"
	"capstan/internal/ipc"
	"capstan/internal/logging"
	"capstan/internal/records"
	"capstan/internal/testsupport"
	"capstan/internal/workflow"
)

// idleEngine accepts every request and reports a fixed 1 MiB transfer so
// command tests exercise the full daemon path without network traffic.
type idleEngine struct{}

func (idleEngine) Validate(context.Context, string) error { return nil }

func (idleEngine) Start(_ context.Context, sub engine.Submission) (engine.StartInfo, error) {
	return engine.StartInfo{Name: fmt.Sprintf("transfer-%d", sub.RecordID), TotalBytes: 1 << 20}, nil
}

func (idleEngine) Pause(context.Context, int64) error  { return nil }
func (idleEngine) Resume(context.Context, int64) error { return nil }

func (idleEngine) Stop(context.Context, int64, bool) error { return nil }

func (idleEngine) Progress(context.Context, int64) (engine.Progress, bool, error) {
	return engine.Progress{TotalBytes: 1 << 20, CompletedBytes: 1 << 10}, true, nil
}

func (idleEngine) Shutdown(context.Context) error { return nil }

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	socket     string
	logPath    string
	store      *records.Store
	daemon     *daemon.Daemon
}

// setupCLITestEnv runs a daemon with an idle engine behind a real IPC socket
// and returns the flags needed to point commands at it.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	configPath := writeConfigFile(t, cfg)

	eng := idleEngine{}
	store, err := records.Open(cfg, logging.NewNop(), eng, nil)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	hist, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, logger, store, eng, nil, hist)
	logPath := filepath.Join(cfg.Paths.LogDir, "capstan.log")
	d, err := daemon.New(cfg, logger, daemon.Runtime{
		Store:   store,
		Engine:  eng,
		Manager: mgr,
		History: hist,
		LogPath: logPath,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.LogDir, "capstan.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	waitFor(t, time.Second, func() bool {
		client, dialErr := ipc.Dial(socket)
		if dialErr != nil {
			return false
		}
		_ = client.Close()
		return true
	})

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		socket:     socket,
		logPath:    logPath,
		store:      store,
		daemon:     d,
	}
}

// setupOfflineEnv returns an environment whose socket points nowhere, so
// commands exercise their store fallback paths.
func setupOfflineEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return &cliTestEnv{
		cfg:        cfg,
		configPath: writeConfigFile(t, cfg),
		socket:     filepath.Join(testsupport.BaseDir(cfg), "no-daemon.sock"),
		logPath:    filepath.Join(cfg.Paths.LogDir, "capstan.log"),
	}
}

// writeConfigFile persists the generated test config so command runs load the
// same directories the daemon uses.
func writeConfigFile(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "capstan.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	output, err := runCLIWithError(t, env, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\noutput:\n%s", args, err, output)
	}
	return output
}

func runCLIWithError(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--socket", env.socket, "--config", env.configPath}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("output missing %q:\n%s", want, output)
	}
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
