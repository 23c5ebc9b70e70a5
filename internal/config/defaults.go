package config

const (
	defaultBackendBaseURL         = "http://127.0.0.1:8900"
	defaultGenerationTimeout      = 300
	defaultRequestTimeout         = 30
	defaultDialTimeout            = 10
	defaultPollIntervalMillis     = 2000
	defaultAutosaveQuietMillis    = 2000
	defaultReconcileMaxRetries    = 5
	defaultReconcileBackoffMillis = 1500
	defaultArtifactCacheDir       = "~/.cache/storysync/artifacts"
	defaultMinContentBytes        = 64
	defaultListMaxAgeMillis       = 30000
	defaultNotifyTimeout          = 10
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Backend: Backend{
			BaseURL:           defaultBackendBaseURL,
			GenerationTimeout: defaultGenerationTimeout,
			RequestTimeout:    defaultRequestTimeout,
			DialTimeout:       defaultDialTimeout,
		},
		Sync: Sync{
			PollIntervalMillis:     defaultPollIntervalMillis,
			AutosaveQuietMillis:    defaultAutosaveQuietMillis,
			ReconcileMaxRetries:    defaultReconcileMaxRetries,
			ReconcileBackoffMillis: defaultReconcileBackoffMillis,
		},
		ArtifactCache: ArtifactCache{
			Dir:              defaultArtifactCacheDir,
			MinContentBytes:  defaultMinContentBytes,
			ListMaxAgeMillis: defaultListMaxAgeMillis,
		},
		Notifications: Notifications{
			RequestTimeoutSecs: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
