package config

import (
	"fmt"
	"strings"
	"time"

	"castdl/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Domain
	c.Domain = strings.TrimSuffix(strings.TrimSpace(c.Domain), "/")
	if c.Domain == "" {
		c.Domain = "twitcasting.tv"
	}
	if strings.Contains(c.Domain, "://") || strings.Contains(c.Domain, "/") {
		return nil, fmt.Errorf("%w: domain must be a bare host name, got %q", utils.ErrConfigValidation, c.Domain)
	}

	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// OutputDir
	if c.OutputDir == "" {
		c.OutputDir = "."
	}

	if c.MemberSubdir == "" {
		c.MemberSubdir = "【Member Video】"
	}
	if strings.ContainsAny(c.MemberSubdir, `/\`) {
		warnings = append(warnings, fmt.Sprintf(
			"member_subdir %q contains path separators, sanitizing", c.MemberSubdir))
		c.MemberSubdir = utils.SanitizeFilename(c.MemberSubdir)
	}

	if c.PlaceholderTitle == "" {
		c.PlaceholderTitle = "temp"
	}

	if c.DelayPerRequest < 0 {
		warnings = append(warnings, "delay_per_request cannot be negative, disabling delay")
		c.DelayPerRequest = 0
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 3
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	c.validateHTTPClientSettings()
	warnings = append(warnings, c.validateBrowserSettings()...)

	if c.Muxer.Path == "" {
		c.Muxer.Path = "ffmpeg"
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 10
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// validateBrowserSettings applies the passcode page wait defaults.
func (c *AppConfig) validateBrowserSettings() (warnings []string) {
	b := &c.Browser
	if b.PrimaryWait <= 0 {
		b.PrimaryWait = 15 * time.Second
	}
	if b.ConfirmWait <= 0 {
		b.ConfirmWait = 10 * time.Second
	}
	if b.ConfirmWait > b.PrimaryWait {
		warnings = append(warnings, fmt.Sprintf(
			"browser.confirm_wait (%v) > browser.primary_wait (%v), wrong passcodes will be slow to reject",
			b.ConfirmWait, b.PrimaryWait))
	}
	return warnings
}

// Validate checks RunOptions fields and applies defaults.
// Returns collected warnings and any fatal error.
func (o *RunOptions) Validate() (warnings []string, err error) {
	o.Link = strings.TrimSpace(o.Link)
	if o.Link == "" {
		return nil, fmt.Errorf("%w: a link is required", utils.ErrConfigValidation)
	}

	if o.PasscodeFile != "" && len(o.Passcodes) > 0 {
		return nil, fmt.Errorf("%w: passcode file and passcode list are mutually exclusive", utils.ErrConfigValidation)
	}

	if o.Name != "" {
		if !o.ScrapeOnly {
			warnings = append(warnings, "name only applies to scrape mode, ignoring")
		}
		o.Name = utils.EnsureSuffix(o.Name, ".txt")
	}

	if o.SkipSucceeded && !o.ResumeState {
		warnings = append(warnings, "skipping succeeded videos needs the previous outcome database, enabling resume")
		o.ResumeState = true
	}

	return warnings, nil
}
