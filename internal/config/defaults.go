package config

const (
	defaultStagingDir         = "~/.local/share/stagehand/staging"
	defaultLibraryDir         = "~/karaoke-library"
	defaultLogDir             = "~/.local/share/stagehand/logs"
	defaultLockDir            = "~/.local/share/stagehand/locks"
	defaultLogRetentionDays   = 60
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultStoreBackend       = "sqlite"
	defaultSQLitePath         = "~/.local/share/stagehand/jobs.db"
	defaultRedisAddr          = "127.0.0.1:6379"
	defaultAcquisition        = 1800
	defaultSeparationModel    = "htdemucs"
	defaultSeparationTimeout  = 1800
	defaultGPUSlots           = 1
	defaultTranscriptionModel = "large-v3"
	defaultTranscription      = 1800
	defaultLanguage           = "en"
	defaultPreviewResolution  = "1280x720"
	defaultRenderTimeout      = 3600
	defaultEncodingQuality    = 18
	defaultEncodingPreset     = "medium"
	defaultEncodingTimeout    = 3600
	defaultBrandPrefix        = "KV"
	defaultSettleSeconds      = 30
	defaultNotifyTimeout      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
			LockDir:    defaultLockDir,
		},
		Store: Store{
			Backend:    defaultStoreBackend,
			SQLitePath: defaultSQLitePath,
			RedisAddr:  defaultRedisAddr,
		},
		Acquisition: Acquisition{
			Timeout: defaultAcquisition,
		},
		Separation: Separation{
			Model:       defaultSeparationModel,
			CUDAEnabled: true,
			Timeout:     defaultSeparationTimeout,
			GPUSlots:    defaultGPUSlots,
		},
		Transcription: Transcription{
			Model:       defaultTranscriptionModel,
			CUDAEnabled: true,
			Timeout:     defaultTranscription,
			Language:    defaultLanguage,
		},
		Render: Render{
			PreviewResolution: defaultPreviewResolution,
			Timeout:           defaultRenderTimeout,
		},
		Encoding: Encoding{
			HardwareEnabled: true,
			Quality:         defaultEncodingQuality,
			Preset:          defaultEncodingPreset,
			Timeout:         defaultEncodingTimeout,
		},
		Archive: Archive{
			BrandPrefix:   defaultBrandPrefix,
			SettleSeconds: defaultSettleSeconds,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Review:         true,
			Finalize:       true,
			Completion:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
