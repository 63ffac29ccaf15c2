package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"castdl/pkg/config"
	"castdl/pkg/utils"
)

// PageFetcher retrieves platform pages as parsed HTML documents, sending the
// headers the site expects from a browser.
type PageFetcher struct {
	fetcher *Fetcher
	limiter *RateLimiter
	cfg     *config.AppConfig
	cookie  string // Complete Cookie header value, empty for anonymous access
	log     *logrus.Entry
}

// NewPageFetcher creates a PageFetcher. cookieHeader may be empty.
func NewPageFetcher(fetcher *Fetcher, limiter *RateLimiter, cfg *config.AppConfig, cookieHeader string, log *logrus.Entry) *PageFetcher {
	return &PageFetcher{
		fetcher: fetcher,
		limiter: limiter,
		cfg:     cfg,
		cookie:  cookieHeader,
		log:     log,
	}
}

// Origin returns the Origin header value sent with every page request.
func Origin(domain string) string {
	return "https://" + domain
}

// Document fetches pageURL and parses the response body as HTML.
func (p *PageFetcher) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: URL %q: %w", utils.ErrParsing, pageURL, err)
	}

	req, err := http.NewRequest(http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Origin", Origin(p.cfg.Domain))
	if p.cookie != "" {
		req.Header.Set("Cookie", p.cookie)
	}

	host := parsed.Hostname()
	if p.limiter != nil {
		p.limiter.ApplyDelay(ctx, host, p.cfg.DelayPerRequest)
	}
	resp, err := p.fetcher.FetchWithRetry(ctx, req)
	if p.limiter != nil {
		p.limiter.UpdateLastRequestTime(host)
	}
	if err != nil {
		drainAndClose(resp)
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: HTML document %s: %w", utils.ErrParsing, pageURL, err)
	}
	p.log.WithField("url", pageURL).Debug("Document parsed")
	return doc, nil
}
