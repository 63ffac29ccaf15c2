package config

import "time"

// DefaultUserAgent is a desktop browser UA the platform serves full pages to
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36"

// AppConfig holds the global application configuration
type AppConfig struct {
	Domain             string           `yaml:"domain"`                      // Platform domain, e.g. twitcasting.tv
	UserAgent          string           `yaml:"user_agent"`                  // Sent on page fetches and to the muxer
	OutputDir          string           `yaml:"output_dir"`                  // Where media files are written
	MemberSubdir       string           `yaml:"member_subdir"`               // Subdirectory for members-only videos
	PlaceholderTitle   string           `yaml:"placeholder_title"`           // Title used when none can be read
	StateDir           string           `yaml:"state_dir,omitempty"`         // Outcome database location (empty = disabled)
	DelayPerRequest    time.Duration    `yaml:"delay_per_request,omitempty"` // Minimum gap between page fetches
	MaxRetries         int              `yaml:"max_retries,omitempty"`
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay,omitempty"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
	Muxer              MuxerConfig      `yaml:"muxer,omitempty"`
	Browser            BrowserConfig    `yaml:"browser,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// MuxerConfig holds settings for the external ffmpeg process
type MuxerConfig struct {
	Path        string `yaml:"path,omitempty"`         // ffmpeg binary, looked up in PATH when bare
	LogProgress *bool  `yaml:"log_progress,omitempty"` // Stream ffmpeg -stats lines to the debug log
}

// BrowserConfig holds settings for the headless browser used on passcode pages
type BrowserConfig struct {
	ExecPath    string        `yaml:"exec_path,omitempty"`    // Chrome/Chromium binary (empty = autodetect)
	Headless    *bool         `yaml:"headless,omitempty"`     // nil = true
	PrimaryWait time.Duration `yaml:"primary_wait,omitempty"` // Wait for input/button/payload
	ConfirmWait time.Duration `yaml:"confirm_wait,omitempty"` // Wait used to re-check the input after submitting
}

// RunOptions holds per-invocation input taken from the command line
type RunOptions struct {
	Link          string
	Name          string   // Scrape output filename override
	ScrapeOnly    bool     // Record manifest URLs instead of downloading
	ArchivePath   string   // Archive ledger file (empty = disabled)
	CookieFile    string   // File holding tc_id and tc_ss
	Passcodes     []string // Candidates given directly
	PasscodeFile  string   // File of candidates, one per line
	SummaryPath   string   // Run summary YAML (empty = disabled)
	StatusLogPath string   // Export of the outcome database (empty = disabled)
	ShowProgress  bool
	ResumeState   bool // Keep the existing outcome database instead of starting fresh
	SkipSucceeded bool // Skip videos the outcome database already marks as done
}

// GetEffectiveHeadless determines whether the browser runs headless
func GetEffectiveHeadless(cfg BrowserConfig) bool {
	if cfg.Headless != nil {
		return *cfg.Headless
	}
	return true
}

// GetEffectiveLogProgress determines whether ffmpeg progress lines are logged
func GetEffectiveLogProgress(cfg MuxerConfig) bool {
	if cfg.LogProgress != nil {
		return *cfg.LogProgress
	}
	return true
}
