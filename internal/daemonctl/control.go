package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"capstan/internal/api"
	"capstan/internal/config"
	"capstan/internal/ipc"
	"capstan/internal/records"
)

// ErrDaemonNotRunning reports that nothing answers on the daemon socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions holds the flags forwarded to a spawned daemon process.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
	Diagnostic bool
}

// args renders the options as the daemon subcommand argument list.
func (o LaunchOptions) args() []string {
	args := []string{"daemon"}
	if cfg := strings.TrimSpace(o.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(o.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	if o.Diagnostic {
		args = append(args, "--diagnostic")
	}
	return args
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
	// StartStatePending means the process answers IPC but the workflow has
	// not reported running yet, usually a lock conflict. Message has detail.
	StartStatePending StartState = "pending"
)

// StartResult describes how a start attempt resolved.
type StartResult struct {
	State    StartState
	Launched bool
	Message  string
}

// StopResult describes how a stop attempt resolved.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// RestartResult bundles the stop and start halves of a restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Launch starts a detached capstan daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("launch daemon: empty executable path")
	}
	proc := exec.Command(executablePath, opts.args()...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	// The daemon outlives this CLI invocation.
	return proc.Process.Release()
}

const pollInterval = 200 * time.Millisecond

// pollUntil calls probe every pollInterval until it reports done or the
// timeout lapses. It returns the error from the last probe.
func pollUntil(timeout time.Duration, probe func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := probe()
		if done {
			return err
		}
		if !time.Now().Before(deadline) {
			if err == nil {
				err = errors.New("timed out")
			}
			return err
		}
		time.Sleep(pollInterval)
	}
}

// WaitForClient polls the socket until a connection succeeds and returns it.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	var client *ipc.Client
	err := pollUntil(timeout, func() (bool, error) {
		c, err := ipc.Dial(socketPath)
		if err != nil {
			return false, err
		}
		client = c
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("daemon failed to start: %w", err)
	}
	return client, nil
}

// WaitForRunning polls daemon status until the workflow reports running or
// the timeout lapses. It returns the last status seen; the error is non-nil
// only when the socket never answered.
func WaitForRunning(socketPath string, timeout time.Duration) (*ipc.StatusResponse, error) {
	client, err := WaitForClient(socketPath, timeout)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var last *ipc.StatusResponse
	_ = pollUntil(timeout, func() (bool, error) {
		status, statusErr := client.Status()
		if statusErr != nil || status == nil {
			return false, statusErr
		}
		last = status
		return status.Running, nil
	})
	if last != nil {
		return last, nil
	}
	return nil, fmt.Errorf("daemon did not report status")
}

// EnsureStarted launches the daemon process if needed and waits for the
// workflow to come up. A live process whose workflow is stopped is replaced:
// there is no remote workflow restart, only process lifecycle.
func EnsureStarted(socketPath, executablePath string, cfg *config.Config, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if client, err := ipc.Dial(socketPath); err == nil {
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && status != nil && status.Running {
			return StartResult{State: StartStateAlreadyRunning}, nil
		}
		if _, stopErr := StopAndTerminate(socketPath, cfg, 3*time.Second); stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
			return StartResult{}, fmt.Errorf("replace stale daemon: %w", stopErr)
		}
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	status, err := WaitForRunning(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}

	result := StartResult{State: StartStateStarted, Launched: true}
	if !status.Running {
		result.State = StartStatePending
		result.Message = strings.TrimSpace(status.LastError)
		if result.Message == "" {
			result.Message = "daemon launched but workflow is not running yet; check capstan logs"
		}
	}
	return result, nil
}

// WaitForShutdown waits for the daemon process to exit, observed as the IPC
// socket disappearing or refusing connections.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	err := pollUntil(timeout, func() (bool, error) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return true, nil
			}
			return false, err
		}
		_ = client.Close()
		return false, errors.New("daemon still running")
	})
	if err != nil {
		return fmt.Errorf("daemon did not stop: %w", err)
	}
	return nil
}

// ProcessInfo reports socket reachability and, when known, the daemon PID.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	pid := 0
	if status != nil {
		pid = status.PID
	}
	return true, pid, nil
}

// DeriveLogDir determines the daemon state directory from status and config hints.
func DeriveLogDir(lockPath, snapshotPath string, cfg *config.Config) string {
	if lockPath != "" {
		return filepath.Dir(lockPath)
	}
	if snapshotPath != "" {
		return filepath.Dir(snapshotPath)
	}
	if cfg != nil && strings.TrimSpace(cfg.Paths.LogDir) != "" {
		return cfg.Paths.LogDir
	}
	return ""
}

// StopAndTerminate stops the workflow over IPC, asks the process to exit with
// SIGTERM, and escalates to SIGKILL when it lingers past gracePeriod.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if isDaemonUnavailable(err) {
		return StopResult{}, ErrDaemonNotRunning
	}
	if err != nil {
		return StopResult{}, err
	}

	var lockPath, snapshotPath string
	pid := 0
	if status, statusErr := client.Status(); statusErr == nil && status != nil {
		lockPath = status.LockPath
		snapshotPath = status.SnapshotPath
		pid = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid}
	if resp != nil {
		result.StopAcknowledged = resp.Stopped
	}

	// The workflow is down; now retire the process. SIGTERM lets the daemon
	// run its ordered teardown (engine shutdown, snapshot flush, pid file).
	if pid > 0 && pid != os.Getpid() {
		if proc, findErr := os.FindProcess(pid); findErr == nil {
			_ = proc.Signal(syscall.SIGTERM)
		}
	}
	if err := WaitForShutdown(socketPath, gracePeriod); err == nil {
		return result, nil
	}
	return escalateToKill(result, socketPath, lockPath, snapshotPath, cfg)
}

// escalateToKill force-kills a daemon that outlived its SIGTERM grace period.
func escalateToKill(result StopResult, socketPath, lockPath, snapshotPath string, cfg *config.Config) (StopResult, error) {
	logDir := DeriveLogDir(lockPath, snapshotPath, cfg)
	if logDir == "" {
		return result, errors.New("cannot locate daemon log directory for force kill")
	}
	if lockPath == "" {
		lockPath = filepath.Join(logDir, "capstand.lock")
	}
	pid, err := ForceKillProcess(filepath.Join(logDir, "capstan.pid"), lockPath, result.PID)
	if err != nil {
		return result, fmt.Errorf("stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = pid
	return result, nil
}

// ForceKillProcess sends SIGKILL to the daemon process and cleans pid/lock files.
// The pid file wins over fallbackPID when both are available.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return 0, err
	}
	if pid <= 0 {
		pid = fallbackPID
	}
	switch {
	case pid <= 0:
		return 0, fmt.Errorf("daemon pid unknown (pid file: %s)", pidPath)
	case pid == os.Getpid():
		return 0, fmt.Errorf("refusing to kill own process (pid %d)", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}

	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// readPIDFile returns the pid recorded at path, or zero when the file is
// missing or holds garbage.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(socketPath string, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(socketPath, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(socketPath, executablePath, cfg, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// BuildStatusSnapshot collects daemon status, falling back to the snapshot
// store for record stats when no daemon answers.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*ipc.StatusResponse, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}

	status := fetchDaemonStatus(socketPath)
	if status == nil {
		status = &ipc.StatusResponse{}
	}

	if !status.Running && len(status.Stats) == 0 {
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		default:
		}
		if store, err := records.Open(cfg, nil, nil, nil); err == nil {
			status.Stats = api.StatsMap(store.Stats())
		}
	}

	// Offline daemons report no paths, so derive them from config.
	if status.SnapshotPath == "" {
		status.SnapshotPath = records.SnapshotPath(cfg.Paths.LogDir)
	}
	if status.HistoryPath == "" {
		status.HistoryPath = filepath.Join(cfg.Paths.LogDir, "history.db")
	}
	if status.LockPath == "" {
		status.LockPath = filepath.Join(cfg.Paths.LogDir, "capstand.lock")
	}
	return status, nil
}

// fetchDaemonStatus asks the live daemon for status, returning nil when the
// socket is unanswered or the call fails.
func fetchDaemonStatus(socketPath string) *ipc.StatusResponse {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return nil
	}
	defer client.Close()
	resp, err := client.Status()
	if err != nil {
		return nil
	}
	return resp
}

func isDaemonUnavailable(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	for _, sentinel := range []error{os.ErrNotExist, syscall.ENOENT, syscall.ECONNREFUSED} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
