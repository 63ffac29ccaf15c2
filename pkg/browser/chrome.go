// Package browser implements passcode.Browser on top of a headless Chrome driven by chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"castdl/pkg/config"
	"castdl/pkg/cookies"
	"castdl/pkg/passcode"
	"castdl/pkg/utils"
)

// Chrome is one browser session. It is not safe for concurrent use.
type Chrome struct {
	ctx     context.Context
	cancels []context.CancelFunc
	log     *logrus.Entry
}

// Options configures new sessions
type Options struct {
	ExecPath  string // Empty lets chromedp locate Chrome
	Headless  bool
	UserAgent string
	Domain    string          // Cookie domain for Session
	Session   cookies.Session // Optional logged-in session
}

// OptionsFromConfig builds Options from the application config.
func OptionsFromConfig(cfg *config.AppConfig, session cookies.Session) Options {
	return Options{
		ExecPath:  cfg.Browser.ExecPath,
		Headless:  config.GetEffectiveHeadless(cfg.Browser),
		UserAgent: cfg.UserAgent,
		Domain:    cfg.Domain,
		Session:   session,
	}
}

// Factory returns a passcode.BrowserFactory starting a fresh Chrome per call.
func Factory(opts Options, log *logrus.Entry) passcode.BrowserFactory {
	return func(ctx context.Context) (passcode.Browser, error) {
		return New(ctx, opts, log)
	}
}

// New starts Chrome. The session ends when ctx is canceled or Close is called.
func New(ctx context.Context, opts Options, log *logrus.Entry) (*Chrome, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("window-size", "1280,800"),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debugf))
	c := &Chrome{
		ctx:     taskCtx,
		cancels: []context.CancelFunc{cancelTask, cancelAlloc},
		log:     log,
	}

	// First Run launches the browser process
	if err := chromedp.Run(taskCtx, network.Enable()); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: starting chrome: %w", utils.ErrBrowser, err)
	}
	if opts.Session.Header() != "" {
		if err := c.setSession(opts.Domain, opts.Session); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Chrome) setSession(domain string, s cookies.Session) error {
	expires := cdp.TimeSinceEpoch(time.Now().Add(24 * time.Hour))
	for name, value := range map[string]string{"tc_id": s.ID, "tc_ss": s.Secret} {
		err := chromedp.Run(c.ctx, network.SetCookie(name, value).
			WithDomain("."+domain).
			WithPath("/").
			WithSecure(true).
			WithExpires(&expires))
		if err != nil {
			return fmt.Errorf("%w: setting cookie %s: %w", utils.ErrBrowser, name, err)
		}
	}
	return nil
}

// Navigate loads pageURL and waits up to timeout for the document body.
func (c *Chrome) Navigate(ctx context.Context, pageURL string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	return chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Count waits up to timeout for selector and returns how many nodes match.
// A selector that never appears yields 0 without error.
func (c *Chrome) Count(ctx context.Context, selector string, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	waitCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil
		}
		return 0, err
	}

	var nodes []*cdp.Node
	if err := chromedp.Run(c.ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// SendKeys replaces the value of the input matched by selector with text.
// The input must appear within timeout.
func (c *Chrome) SendKeys(ctx context.Context, selector, text string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	keysCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	return chromedp.Run(keysCtx,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// Click clicks the first visible node matched by selector.
func (c *Chrome) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clickCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	return chromedp.Run(clickCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Attribute returns attribute name of the first node matched by selector.
func (c *Chrome) Attribute(ctx context.Context, selector, name string, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	attrCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	var (
		value string
		ok    bool
	)
	if err := chromedp.Run(attrCtx, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery)); err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("attribute %s missing on %s", name, selector)
	}
	return value, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() error {
	for _, cancel := range c.cancels {
		cancel()
	}
	return nil
}

var _ passcode.Browser = (*Chrome)(nil)
