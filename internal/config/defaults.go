package config

const (
	defaultConfigPath            = "~/.config/saucetag/config.toml"
	defaultAlbumPath             = "~/Pictures"
	defaultTablePath             = "~/.local/share/saucetag/table.json"
	defaultStateDir              = "~/.local/share/saucetag"
	defaultSauceNAOBaseURL       = "https://saucenao.com"
	defaultSimilarityThreshold   = 55
	defaultSauceNAODBIndex       = 25 // Gelbooru
	defaultSauceNAOTimeout       = 60
	defaultGelbooruBaseURL       = "https://gelbooru.com"
	defaultGelbooruRate          = 1.0
	defaultPreserveQuotaPercent  = 25
	defaultShortWindowSeconds    = 30
	defaultQuotaStateTTLMinutes  = 60
	defaultRescanIntervalMinutes = 5
	defaultFlushEveryNItems      = 3
	defaultInvalidStrikeLimit    = 3
	defaultWatchSettleSeconds    = 2
	defaultDedupMaxDistance      = 4
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			AlbumPath: defaultAlbumPath,
			TablePath: defaultTablePath,
			StateDir:  defaultStateDir,
		},
		SauceNAO: SauceNAO{
			BaseURL:             defaultSauceNAOBaseURL,
			SimilarityThreshold: defaultSimilarityThreshold,
			DBIndex:             defaultSauceNAODBIndex,
			TimeoutSeconds:      defaultSauceNAOTimeout,
		},
		Gelbooru: Gelbooru{
			BaseURL:           defaultGelbooruBaseURL,
			RequestsPerSecond: defaultGelbooruRate,
		},
		Quota: Quota{
			PreserveQuotaPercent: defaultPreserveQuotaPercent,
			ShortWindowSeconds:   defaultShortWindowSeconds,
			StateTTLMinutes:      defaultQuotaStateTTLMinutes,
		},
		Workflow: Workflow{
			RescanIntervalMinutes: defaultRescanIntervalMinutes,
			FlushEveryNItems:      defaultFlushEveryNItems,
			InvalidStrikeLimit:    defaultInvalidStrikeLimit,
			WatchSettleSeconds:    defaultWatchSettleSeconds,
		},
		Dedup: Dedup{
			Enabled:     true,
			MaxDistance: defaultDedupMaxDistance,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
