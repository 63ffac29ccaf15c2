package passcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"castdl/pkg/manifest"
	"castdl/pkg/utils"
)

// Selectors of the passcode prompt and the unlocked player
const (
	InputSelector   = "input[name='password']"
	ButtonSelector  = ".tw-button-secondary.tw-button-small"
	PayloadSelector = "[data-movie-playlist]"
)

// Browser is the page automation the resolver needs. Waits are bounded by
// the given timeout; Count returns 0 (not an error) when nothing matched in time.
type Browser interface {
	Navigate(ctx context.Context, pageURL string, timeout time.Duration) error
	Count(ctx context.Context, selector string, timeout time.Duration) (int, error)
	SendKeys(ctx context.Context, selector, text string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, error)
	Close() error
}

// BrowserFactory starts a fresh browser session.
type BrowserFactory func(ctx context.Context) (Browser, error)

// LockedError reports a video that stayed locked after all candidates were tried
type LockedError struct {
	URL       string
	Tried     int
	Remaining int
	Err       error // Underlying cause, nil when every candidate was simply rejected
}

func (e *LockedError) Error() string {
	msg := fmt.Sprintf("%s still locked after %d passcode(s), %d remaining", e.URL, e.Tried, e.Remaining)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrLocked and the underlying cause to errors.Is.
func (e *LockedError) Unwrap() []error {
	if e.Err == nil {
		return []error{utils.ErrLocked}
	}
	return []error{utils.ErrLocked, e.Err}
}

// Resolver drives the passcode prompt of a video page
type Resolver struct {
	newBrowser  BrowserFactory
	primaryWait time.Duration // Input, button and payload waits
	confirmWait time.Duration // Re-check of the input after submitting
	log         *logrus.Entry
}

// NewResolver creates a Resolver.
func NewResolver(factory BrowserFactory, primaryWait, confirmWait time.Duration, log *logrus.Entry) *Resolver {
	return &Resolver{
		newBrowser:  factory,
		primaryWait: primaryWait,
		confirmWait: confirmWait,
		log:         log,
	}
}

// Resolve opens videoURL, tries the candidates of set in order and returns the
// stream URLs of the unlocked player. The candidate that worked is removed
// from set.
func (r *Resolver) Resolve(ctx context.Context, videoURL string, set *Set) ([]string, error) {
	rlog := r.log.WithField("url", videoURL)

	b, err := r.newBrowser(ctx)
	if err != nil {
		return nil, &LockedError{URL: videoURL, Remaining: set.Len(), Err: fmt.Errorf("%w: %w", utils.ErrBrowser, err)}
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			rlog.Debugf("Closing browser: %v", cerr)
		}
	}()

	if err := b.Navigate(ctx, videoURL, r.primaryWait); err != nil {
		return nil, &LockedError{URL: videoURL, Remaining: set.Len(), Err: fmt.Errorf("%w: %w", utils.ErrBrowser, err)}
	}

	prompt, err := b.Count(ctx, InputSelector, r.primaryWait)
	if err != nil {
		return nil, &LockedError{URL: videoURL, Remaining: set.Len(), Err: fmt.Errorf("%w: %w", utils.ErrBrowser, err)}
	}

	used, tried := "", 0
	if prompt > 0 {
		for _, code := range set.Snapshot() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tried++
			if r.attempt(ctx, b, code, rlog) {
				used = code
				break
			}
		}
		if used == "" {
			rlog.WithField("tried", tried).Warn("No passcode unlocked the video")
			return nil, &LockedError{URL: videoURL, Tried: tried, Remaining: set.Len()}
		}
		rlog.Info("Passcode accepted")
	} else {
		rlog.Debug("No passcode prompt shown, reading player directly")
	}

	payload, err := b.Attribute(ctx, PayloadSelector, manifest.PlaylistAttribute, r.primaryWait)
	if err != nil {
		return nil, &LockedError{URL: videoURL, Tried: tried, Remaining: set.Len(), Err: fmt.Errorf("%w: %w", utils.ErrBrowser, err)}
	}
	urls, err := manifest.DecodePayload(payload)
	if err != nil {
		return nil, &LockedError{URL: videoURL, Tried: tried, Remaining: set.Len(), Err: err}
	}

	if used != "" {
		set.Remove(used)
	}
	return urls, nil
}

// attempt types code, submits it and reports whether the prompt went away.
func (r *Resolver) attempt(ctx context.Context, b Browser, code string, rlog *logrus.Entry) bool {
	if err := b.SendKeys(ctx, InputSelector, code, r.primaryWait); err != nil {
		rlog.Debugf("Typing passcode failed: %v", err)
		return false
	}
	// Some pages submit on input alone, so a missing button is not a failure
	if err := b.Click(ctx, ButtonSelector, r.primaryWait); err != nil && !errors.Is(err, context.Canceled) {
		rlog.Debugf("Confirm button not clicked: %v", err)
	}
	remaining, err := b.Count(ctx, InputSelector, r.confirmWait)
	if err != nil {
		rlog.Debugf("Re-checking passcode prompt failed: %v", err)
		return false
	}
	return remaining == 0
}
