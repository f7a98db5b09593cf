package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"capstan/internal/config"
	"capstan/internal/daemon"
	"capstan/internal/engine"
	"capstan/internal/history"
	"capstan/internal/ipc"
	"capstan/internal/logging"
	"capstan/internal/notifications"
	"capstan/internal/preflight"
	"capstan/internal/records"
	"capstan/internal/volumes"
	"capstan/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the capstan daemon runtime loop and blocks until the process
// receives SIGINT/SIGTERM or the parent context is cancelled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("capstan-%s.log", runID))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("capstan-%s.events", runID))
	logHub := logging.NewStreamHub(4096)
	eventArchive, archiveErr := logging.NewEventArchive(eventsPath)
	if archiveErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize log archive: %v\n", archiveErr)
	} else if eventArchive != nil {
		logHub.AddSink(eventArchive)
	}

	var sessionID string
	var debugLogPath string
	if opts.Diagnostic {
		sessionID = uuid.NewString()
		debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
		if err := os.MkdirAll(debugDir, 0o755); err != nil {
			return fmt.Errorf("create debug log directory: %w", err)
		}
		debugLogPath = filepath.Join(debugDir, fmt.Sprintf("capstan-%s.log", runID))
	}

	loggerOpts := logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logHub,
		SessionID:        sessionID,
	}
	logger, err := logging.New(loggerOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if opts.Diagnostic {
		debugLogger, debugErr := logging.New(logging.Options{
			Level:            "debug",
			Format:           "json",
			OutputPaths:      []string{debugLogPath},
			ErrorOutputPaths: []string{debugLogPath},
			Development:      true,
			SessionID:        sessionID,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = logging.TeeLogger(logger, debugLogger.Handler())
			if err := ensureCurrentLogPointer(filepath.Join(cfg.Paths.LogDir, "debug"), debugLogPath); err != nil {
				fmt.Fprintf(os.Stderr, "warn: unable to update debug/capstan.log link: %v\n", err)
			}
		}
		logger.Info("diagnostic mode enabled",
			logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
			logging.String(logging.FieldSessionID, sessionID),
			logging.String("debug_log_path", debugLogPath),
		)
	}

	logConfigSnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update capstan.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "capstan-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "capstan-*.events", Exclude: []string{eventsPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "capstan-*.log", Exclude: []string{debugLogPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, "capstan.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Error("start transfer engine", logging.Error(err))
		return err
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()
		if err := eng.Shutdown(shutdownCtx); err != nil {
			logger.Warn("engine shutdown failed",
				logging.String(logging.FieldEventType, "engine_shutdown_failed"),
				logging.Error(err))
		}
	}()

	monitor := volumes.NewMonitor(cfg, logger)

	store, err := records.Open(cfg, logger, eng, monitor)
	if err != nil {
		logger.Error("open record store", logging.Error(err))
		return err
	}

	hist, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history archive", logging.Error(err))
		return err
	}

	notifier := notifications.NewService(cfg)
	manager := workflow.NewManagerWithNotifier(cfg, logger, store, eng, monitor, hist, notifier)

	d, err := daemon.New(cfg, logger, daemon.Runtime{
		Store:      store,
		Engine:     eng,
		Manager:    manager,
		Monitor:    monitor,
		History:    hist,
		Notifier:   notifier,
		LogPath:    logPath,
		LogHub:     logHub,
		LogArchive: eventArchive,
	})
	if err != nil {
		_ = hist.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := filepath.Join(cfg.Paths.LogDir, "capstan.sock")
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and log directory access"),
			logging.String(logging.FieldImpact, "daemon will answer IPC but process no downloads"),
		)
	}

	<-signalCtx.Done()
	logger.Info("capstan daemon shutting down")
	return nil
}

// buildEngine assembles the torrent adapter behind the call-timeout guard.
func buildEngine(cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	adapter, err := engine.NewAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	callTimeout := time.Duration(cfg.Engine.CallTimeout) * time.Second
	resolveTimeout := time.Duration(cfg.Engine.ResolveTimeout) * time.Second
	return engine.NewGuarded(adapter, callTimeout, resolveTimeout), nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "capstan.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "configuration_snapshot"),
		logging.String("staging_dir", cfg.Paths.StagingDir),
		logging.String("library_dir", cfg.Paths.LibraryDir),
		logging.Int("engine_listen_port", cfg.Engine.ListenPort),
		logging.Bool("engine_dht", cfg.Engine.DHT),
		logging.Bool("engine_seed", cfg.Engine.Seed),
		logging.Int("max_active", cfg.Scheduler.MaxActive),
		logging.Int("import_workers", cfg.Import.Workers),
		logging.Bool("auto_import", cfg.Import.Auto),
		logging.Bool("api_enabled", strings.TrimSpace(cfg.Paths.APIBind) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("rescan_enabled", cfg.Catalog.RescanEnabled),
	)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_check"),
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logger.Warn("preflight check failed",
			logging.String(logging.FieldEventType, "preflight_check_failed"),
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or endpoint and restart"),
			logging.String(logging.FieldImpact, "downloads may fail to stage or import"),
		)
	}
}
