package config

const (
	defaultStagingDir              = "~/.local/share/capstan/staging"
	defaultLibraryDir              = "~/library"
	defaultLogDir                  = "~/.local/share/capstan/logs"
	defaultLogRetentionDays        = 60
	defaultVideoDir                = "video"
	defaultAudioDir                = "audio"
	defaultOtherDir                = "other"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultAPIBind                 = "127.0.0.1:7163"
	defaultEngineCallTimeout       = 30
	defaultEngineResolveTimeout    = 120
	defaultEngineMaxConnections    = 80
	defaultSchedulerMaxActive      = 3
	defaultSchedulerKickInterval   = 5
	defaultSchedulerErrorRetry     = 10
	defaultPollerInterval          = 2
	defaultStorageWarningFreeGiB   = 20
	defaultStorageCriticalFreeGiB  = 10
	defaultStorageRecoveryFreeGiB  = 15
	defaultStorageActiveInterval   = 15
	defaultStorageIdleInterval     = 60
	defaultImportMaxAttempts       = 3
	defaultImportBackoffBase       = 5
	defaultImportWorkers           = 2
	defaultCatalogRescanTimeout    = 10
	defaultNotifyRequestTimeout    = 10
	defaultNotifyDedupWindowSecond = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Engine: Engine{
			DHT:            true,
			MaxConnections: defaultEngineMaxConnections,
			CallTimeout:    defaultEngineCallTimeout,
			ResolveTimeout: defaultEngineResolveTimeout,
		},
		Scheduler: Scheduler{
			MaxActive:          defaultSchedulerMaxActive,
			KickInterval:       defaultSchedulerKickInterval,
			ErrorRetryInterval: defaultSchedulerErrorRetry,
		},
		Poller: Poller{
			Interval: defaultPollerInterval,
		},
		Storage: Storage{
			WarningFreeGiB:  defaultStorageWarningFreeGiB,
			CriticalFreeGiB: defaultStorageCriticalFreeGiB,
			RecoveryFreeGiB: defaultStorageRecoveryFreeGiB,
			ActiveInterval:  defaultStorageActiveInterval,
			IdleInterval:    defaultStorageIdleInterval,
		},
		Import: Import{
			Auto:               true,
			MaxAttempts:        defaultImportMaxAttempts,
			BackoffBaseSeconds: defaultImportBackoffBase,
			Workers:            defaultImportWorkers,
		},
		Catalog: Catalog{
			VideoDir:      defaultVideoDir,
			AudioDir:      defaultAudioDir,
			OtherDir:      defaultOtherDir,
			RescanTimeout: defaultCatalogRescanTimeout,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			Added:              true,
			Completed:          true,
			Imported:           true,
			Storage:            true,
			Errors:             true,
			DedupWindowSeconds: defaultNotifyDedupWindowSecond,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
