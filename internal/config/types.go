package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("55s", "5m"). Empty values take the
// defaults applied by ApplyDefaults.
type Config struct {
	Source  SourceConfig  `json:"source"`
	Storage StorageConfig `json:"storage"`
	Poll    PollConfig    `json:"poll"`
	Notify  NotifyConfig  `json:"notify"`
	Logging LoggingConfig `json:"logging"`
	Systemd SystemdConfig `json:"systemd"`
}

type SourceConfig struct {
	// URL is the search results page to watch.
	URL     string `json:"url"`
	BaseURL string `json:"base_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
	// MaxPages caps pagination; 1 fetches only URL.
	MaxPages     int             `json:"max_pages,omitempty"`
	PageDelayMin string          `json:"page_delay_min,omitempty"`
	PageDelayMax string          `json:"page_delay_max,omitempty"`
	UserAgents   []string        `json:"user_agents,omitempty"`
	Selectors    SelectorsConfig `json:"selectors,omitempty"`
}

// SelectorsConfig overrides individual CSS selectors of the extractor.
type SelectorsConfig struct {
	Card           string `json:"card,omitempty"`
	Anchor         string `json:"anchor,omitempty"`
	Description    string `json:"description,omitempty"`
	Price          string `json:"price,omitempty"`
	Address        string `json:"address,omitempty"`
	Image          string `json:"image,omitempty"`
	Pagination     string `json:"pagination,omitempty"`
	PrimaryClass   string `json:"primary_class,omitempty"`
	SecondaryClass string `json:"secondary_class,omitempty"`
	PerUnitClass   string `json:"per_unit_class,omitempty"`
}

// StorageConfig selects the history backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/listings.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type PollConfig struct {
	MinDelay               string `json:"min_delay,omitempty"`
	MaxDelay               string `json:"max_delay,omitempty"`
	ErrorMinDelay          string `json:"error_min_delay,omitempty"`
	ErrorMaxDelay          string `json:"error_max_delay,omitempty"`
	MaxConsecutiveFailures int    `json:"max_consecutive_failures,omitempty"`
	Cooldown               string `json:"cooldown,omitempty"`
	// SeedOnFirstRun is a pointer so an explicit false survives defaulting.
	SeedOnFirstRun *bool `json:"seed_on_first_run,omitempty"`
	// Heartbeat is a cron spec ("0 0 9 * * *", "@every 6h"); empty disables it.
	Heartbeat string `json:"heartbeat,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

type NotifyConfig struct {
	SinkTimeout string         `json:"sink_timeout,omitempty"`
	Telegram    TelegramConfig `json:"telegram"`
	Email       EmailConfig    `json:"email"`
	Log         LogSinkConfig  `json:"log"`
}

type TelegramConfig struct {
	Enabled      bool   `json:"enabled"`
	Token        string `json:"token,omitempty"`
	ChatID       int64  `json:"chat_id,omitempty"`
	ThreadID     int    `json:"thread_id,omitempty"`
	RatePerSec   int    `json:"rate_per_sec,omitempty"`
	LinkTemplate string `json:"link_template,omitempty"`
}

type EmailConfig struct {
	Enabled       bool     `json:"enabled"`
	Host          string   `json:"host,omitempty"`
	Port          int      `json:"port,omitempty"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	From          string   `json:"from,omitempty"`
	To            []string `json:"to,omitempty"`
	SubjectPrefix string   `json:"subject_prefix,omitempty"`
	TLS           string   `json:"tls,omitempty"`
}

type LogSinkConfig struct {
	Enabled bool `json:"enabled"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

type SystemdConfig struct {
	// Notify sends READY/STOPPING/STATUS and watchdog pings when running
	// under systemd (NOTIFY_SOCKET set).
	Notify bool `json:"notify"`
}
