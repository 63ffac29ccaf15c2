package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"castdl/pkg/utils"
)

func boolPtr(b bool) *bool {
	return &b
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{} // Zero value
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "twitcasting.tv", cfg.Domain)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "【Member Video】", cfg.MemberSubdir)
	assert.Equal(t, "temp", cfg.PlaceholderTitle)
	assert.Equal(t, "", cfg.StateDir, "state DB stays disabled unless configured")
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, "ffmpeg", cfg.Muxer.Path)

	assert.Equal(t, 15*time.Second, cfg.Browser.PrimaryWait)
	assert.Equal(t, 10*time.Second, cfg.Browser.ConfirmWait)

	assert.Equal(t, 45*time.Second, cfg.HTTPClientSettings.Timeout)
	assert.Equal(t, 10, cfg.HTTPClientSettings.MaxIdleConns)
	assert.Equal(t, 2, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, cfg.HTTPClientSettings.IdleConnTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPClientSettings.TLSHandshakeTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTPClientSettings.DialerTimeout)
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		Domain:            "example.tv",
		OutputDir:         "/videos",
		MemberSubdir:      "members",
		MaxRetries:        5,
		InitialRetryDelay: 2 * time.Second,
		MaxRetryDelay:     60 * time.Second,
		Browser: BrowserConfig{
			PrimaryWait: 20 * time.Second,
			ConfirmWait: 5 * time.Second,
		},
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "example.tv", cfg.Domain)
	assert.Equal(t, "/videos", cfg.OutputDir)
	assert.Equal(t, "members", cfg.MemberSubdir)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 20*time.Second, cfg.Browser.PrimaryWait)
	assert.Equal(t, 5*time.Second, cfg.Browser.ConfirmWait)
}

func TestAppConfig_Validate_Corrections(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AppConfig
		warning string
		check   func(t *testing.T, cfg AppConfig)
	}{
		{
			name:    "negative retries",
			cfg:     AppConfig{MaxRetries: -1, InitialRetryDelay: time.Second},
			warning: "max_retries cannot be negative",
			check: func(t *testing.T, cfg AppConfig) {
				assert.Equal(t, 0, cfg.MaxRetries)
			},
		},
		{
			name:    "initial delay above max",
			cfg:     AppConfig{MaxRetries: 2, InitialRetryDelay: time.Minute, MaxRetryDelay: time.Second},
			warning: "initial_retry_delay",
			check: func(t *testing.T, cfg AppConfig) {
				assert.Equal(t, time.Second, cfg.InitialRetryDelay)
			},
		},
		{
			name:    "negative delay per request",
			cfg:     AppConfig{DelayPerRequest: -time.Second},
			warning: "delay_per_request cannot be negative",
			check: func(t *testing.T, cfg AppConfig) {
				assert.Equal(t, time.Duration(0), cfg.DelayPerRequest)
			},
		},
		{
			name:    "member subdir with separator",
			cfg:     AppConfig{MemberSubdir: "a/b"},
			warning: "member_subdir",
			check: func(t *testing.T, cfg AppConfig) {
				assert.Equal(t, "a_b", cfg.MemberSubdir)
			},
		},
		{
			name:    "confirm wait longer than primary",
			cfg:     AppConfig{Browser: BrowserConfig{PrimaryWait: time.Second, ConfirmWait: time.Minute}},
			warning: "browser.confirm_wait",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			warnings, err := cfg.Validate()
			require.NoError(t, err)
			assert.True(t, containsWarning(warnings, tt.warning), "warnings: %v", warnings)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestAppConfig_Validate_DomainNormalization(t *testing.T) {
	cfg := AppConfig{Domain: " example.tv/ "}
	_, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, "example.tv", cfg.Domain)

	bad := AppConfig{Domain: "https://example.tv"}
	_, err = bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestAppConfig_YAML(t *testing.T) {
	data := `
domain: twitcasting.tv
output_dir: ./videos
state_dir: ./state
delay_per_request: 500ms
muxer:
  path: /usr/bin/ffmpeg
  log_progress: false
browser:
  headless: false
  primary_wait: 20s
`
	var cfg AppConfig
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))
	_, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, "./videos", cfg.OutputDir)
	assert.Equal(t, "./state", cfg.StateDir)
	assert.Equal(t, 500*time.Millisecond, cfg.DelayPerRequest)
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Muxer.Path)
	assert.False(t, GetEffectiveLogProgress(cfg.Muxer))
	assert.False(t, GetEffectiveHeadless(cfg.Browser))
	assert.Equal(t, 20*time.Second, cfg.Browser.PrimaryWait)
	assert.Equal(t, 10*time.Second, cfg.Browser.ConfirmWait)
}

func TestGetEffectiveHeadless(t *testing.T) {
	assert.True(t, GetEffectiveHeadless(BrowserConfig{}))
	assert.True(t, GetEffectiveHeadless(BrowserConfig{Headless: boolPtr(true)}))
	assert.False(t, GetEffectiveHeadless(BrowserConfig{Headless: boolPtr(false)}))
}

func TestRunOptions_Validate(t *testing.T) {
	t.Run("link required", func(t *testing.T) {
		opts := RunOptions{Link: "  "}
		_, err := opts.Validate()
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
	})

	t.Run("passcode file and list are exclusive", func(t *testing.T) {
		opts := RunOptions{
			Link:         "https://twitcasting.tv/someone",
			PasscodeFile: "codes.txt",
			Passcodes:    []string{"1234"},
		}
		_, err := opts.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrConfigValidation)
		assert.Contains(t, err.Error(), "mutually exclusive")
	})

	t.Run("name gets txt suffix", func(t *testing.T) {
		opts := RunOptions{Link: "https://twitcasting.tv/someone", Name: "links", ScrapeOnly: true}
		warnings, err := opts.Validate()
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, "links.txt", opts.Name)
	})

	t.Run("name without scrape warns", func(t *testing.T) {
		opts := RunOptions{Link: "https://twitcasting.tv/someone", Name: "links.txt"}
		warnings, err := opts.Validate()
		require.NoError(t, err)
		assert.True(t, containsWarning(warnings, "scrape mode"))
		assert.Equal(t, "links.txt", opts.Name)
	})

	t.Run("skip succeeded implies resume", func(t *testing.T) {
		opts := RunOptions{Link: "https://twitcasting.tv/someone", SkipSucceeded: true}
		warnings, err := opts.Validate()
		require.NoError(t, err)
		assert.True(t, opts.ResumeState)
		assert.True(t, containsWarning(warnings, "enabling resume"))
	})
}
