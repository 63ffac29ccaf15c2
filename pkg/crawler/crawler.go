// Package crawler drives an archiver run: it walks a channel listing or a
// single video page, resolves each video's streams and hands them to a sink.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-multierror"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"castdl/pkg/archive"
	"castdl/pkg/config"
	"castdl/pkg/listing"
	"castdl/pkg/manifest"
	"castdl/pkg/models"
	"castdl/pkg/mux"
	"castdl/pkg/parse"
	"castdl/pkg/passcode"
	"castdl/pkg/storage"
	"castdl/pkg/utils"
)

// Selectors on a single video page
const (
	videoTitleSelector  = "span.tw-player-page__title-editor-value"
	lockedTitleSelector = "div.tw-basic-page-single-column h2"
	videoDateSelector   = ".tw-movie-thumbnail-date"
)

// PasscodeResolver unlocks a passcode protected video page and returns its stream URLs
type PasscodeResolver interface {
	Resolve(ctx context.Context, videoURL string, set *passcode.Set) ([]string, error)
}

// SinkOpener creates the sink for a run once the channel name is known
type SinkOpener func(channel string, kind parse.Kind) (mux.Sink, error)

// Result is the tally of a run
type Result struct {
	LinksExtracted int // Streams dispatched
	LinksExpected  int // Items the listing announced, 1 for single targets
	Skipped        int // Entries already archived or already successful
	Failed         int // Entries that could not be completed
	Errors         *multierror.Error
}

// Tally formats the extracted/expected counts.
func (r Result) Tally() string {
	return fmt.Sprintf("%d/%d", r.LinksExtracted, r.LinksExpected)
}

// Err returns the aggregated recoverable errors, or nil.
func (r Result) Err() error {
	return r.Errors.ErrorOrNil()
}

// Deps are the collaborators of a Crawler. Resolver, Passcodes, Store and
// Summary are optional.
type Deps struct {
	Config    *config.AppConfig
	Pages     listing.DocumentSource
	Resolver  PasscodeResolver
	Passcodes *passcode.Set
	Ledger    *archive.Ledger
	OpenSink  SinkOpener
	Store     storage.EntryStore
	Summary   *SummaryWriter
	Log       *logrus.Entry
}

// Options tune a run
type Options struct {
	SkipSucceeded bool      // Skip entries the outcome database marks terminal
	ShowProgress  bool      // Render a progress bar over expected items
	ProgressOut   io.Writer // Progress bar destination, stderr when nil
}

// Crawler runs one archiver pass
type Crawler struct {
	cfg       *config.AppConfig
	pages     listing.DocumentSource
	paginator *listing.Paginator
	resolver  PasscodeResolver
	passcodes *passcode.Set
	ledger    *archive.Ledger
	openSink  SinkOpener
	store     storage.EntryStore
	summary   *SummaryWriter
	opts      Options
	log       *logrus.Entry

	sink mux.Sink
	bar  *progressbar.ProgressBar
}

// New validates deps and creates a Crawler.
func New(deps Deps, opts Options) (*Crawler, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("crawler: config is required")
	case deps.Pages == nil:
		return nil, errors.New("crawler: page source is required")
	case deps.OpenSink == nil:
		return nil, errors.New("crawler: sink opener is required")
	case deps.Log == nil:
		return nil, errors.New("crawler: logger is required")
	}

	ledger := deps.Ledger
	if ledger == nil {
		var err error
		if ledger, err = archive.Load(""); err != nil {
			return nil, err
		}
	}
	passcodes := deps.Passcodes
	if passcodes == nil {
		passcodes = passcode.NewSet(nil)
	}
	summary := deps.Summary
	if summary == nil {
		summary = NewSummaryWriter("", deps.Log)
	}

	return &Crawler{
		cfg:       deps.Config,
		pages:     deps.Pages,
		paginator: listing.NewPaginator(deps.Pages, deps.Config.Domain, deps.Config.PlaceholderTitle, deps.Log.WithField("component", "paginator")),
		resolver:  deps.Resolver,
		passcodes: passcodes,
		ledger:    ledger,
		openSink:  deps.OpenSink,
		store:     deps.Store,
		summary:   summary,
		opts:      opts,
		log:       deps.Log,
	}, nil
}

// Run crawls target. The returned error is fatal for the run; recoverable
// per-entry failures are collected in Result.Errors.
func (c *Crawler) Run(ctx context.Context, target parse.Target) (Result, error) {
	c.summary.Begin(target.Raw, target.Kind.String())

	var (
		res Result
		err error
	)
	if target.Kind.IsListing() {
		res, err = c.runListing(ctx, target)
	} else {
		res, err = c.runSingle(ctx, target)
	}
	return c.finish(res, err)
}

// RunDirect downloads an already resolved stream manifest into <output>/<streamID>.mp4.
func (c *Crawler) RunDirect(ctx context.Context, m parse.DirectManifest) (Result, error) {
	c.summary.Begin(m.URL, "direct")
	res := Result{LinksExpected: 1}

	sink, err := c.openSink("", parse.KindSingleVideo)
	if err != nil {
		return c.finish(res, err)
	}
	c.sink = sink

	job := mux.Job{
		Input:    m.URL,
		Output:   filepath.Join(c.cfg.OutputDir, m.StreamID+".mp4"),
		VideoID:  m.StreamID,
		Realtime: true,
	}
	meta := models.VideoMetadata{URL: m.URL, VideoID: m.StreamID}
	c.log.WithField("stream_id", m.StreamID).Info("Downloading direct manifest")
	if err := sink.Dispatch(ctx, job); err != nil {
		meta.Status, meta.Error = models.EntryStatusFailure, err.Error()
		c.summary.Add(meta)
		res.Failed++
		return c.finish(res, err)
	}
	res.LinksExtracted++
	meta.Status, meta.Outputs = models.EntryStatusSuccess, []string{job.Output}
	c.summary.Add(meta)
	return c.finish(res, nil)
}

func (c *Crawler) runListing(ctx context.Context, target parse.Target) (Result, error) {
	var res Result

	first, err := c.paginator.Open(ctx, target)
	if err != nil {
		return res, err
	}
	res.LinksExpected = first.TotalItems

	if c.sink, err = c.openSink(first.Channel, target.Kind); err != nil {
		return res, err
	}
	c.startProgress(first.TotalItems)

	for i := 0; i < first.TotalPages; i++ {
		page, err := c.paginator.Page(ctx, target, first, i)
		if err != nil {
			return res, err
		}
		c.log.WithFields(logrus.Fields{"page": i + 1, "of": first.TotalPages, "entries": len(page.Entries)}).Info("Processing listing page")

		for j := range page.Entries {
			if err := c.processEntry(ctx, &page.Entries[j], nil, listingPolicy, &res); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func (c *Crawler) runSingle(ctx context.Context, target parse.Target) (Result, error) {
	res := Result{LinksExpected: 1}

	doc, err := c.pages.Document(ctx, target.Base)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return res, err
		}
		return res, fmt.Errorf("%w: video page %s: %w", utils.ErrPageFetch, target.Base, err)
	}

	entry := c.singleEntry(doc, target.Base)
	if c.sink, err = c.openSink(listing.ParseChannelName(doc), target.Kind); err != nil {
		return res, err
	}
	err = c.processEntry(ctx, &entry, doc, singlePolicy, &res)
	return res, err
}

// singleEntry reads the title and date of a video page.
func (c *Crawler) singleEntry(doc *goquery.Document, pageURL string) models.VideoEntry {
	entry := models.VideoEntry{URL: pageURL, Title: c.cfg.PlaceholderTitle}

	titleSel := videoTitleSelector
	if c.passcodes.Len() == 1 {
		// The player title is hidden until the passcode is entered
		titleSel = lockedTitleSelector
		entry.Locked = true
	}
	if title := strings.TrimSpace(doc.Find(titleSel).First().Text()); title != "" {
		entry.Title = title
	}

	date := doc.Find(videoDateSelector).First()
	if date.Length() == 0 {
		date = doc.Find("time").First()
	}
	entry.RawDate = strings.TrimSpace(date.Text())

	if id, err := models.ExtractVideoID(pageURL); err == nil {
		entry.VideoID = id
	}
	return entry
}

// processEntry runs one entry through archive check, date and id parsing,
// stream resolution, dispatch and ledger update. Only errors that end the
// run are returned; everything else is tallied in res.
func (c *Crawler) processEntry(ctx context.Context, entry *models.VideoEntry, doc *goquery.Document, policy batchPolicy, res *Result) error {
	elog := c.log.WithFields(logrus.Fields{"url": entry.URL, "video_id": entry.VideoID, "batch": policy.name})
	defer c.advanceProgress()

	if err := ctx.Err(); err != nil {
		return err
	}

	meta := models.VideoMetadata{URL: entry.URL, VideoID: entry.VideoID, Title: entry.Title}

	if c.ledger.Contains(entry.URL) {
		elog.Info("Already in archive, skipping")
		res.Skipped++
		meta.Status = models.EntryStatusSkipped
		c.summary.Add(meta)
		return nil
	}
	if c.opts.SkipSucceeded && c.store != nil {
		if status, _, _ := c.store.CheckEntryStatus(entry.URL); status.IsTerminal() {
			elog.WithField("status", status).Info("Already completed in a previous run, skipping")
			res.Skipped++
			meta.Status = models.EntryStatusSkipped
			c.summary.Add(meta)
			return nil
		}
	}

	attempt := time.Now()
	date, outputs, streams, err := c.handleEntry(ctx, entry, doc, policy, elog, res)
	meta.VideoID = entry.VideoID
	if err == nil {
		meta.Published = date.String()
	}
	meta.Outputs = outputs

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		status := models.EntryStatusFailure
		if errors.Is(err, utils.ErrLocked) {
			status = models.EntryStatusLocked
		}
		meta.Status, meta.Error = status, err.Error()
		c.summary.Add(meta)
		c.recordOutcome(entry, status, utils.CategorizeError(err), streams, outputs, attempt, elog)
		res.Failed++

		if utils.IsFatal(err) || policy.failFast {
			return err
		}
		c.logEntryError(elog, err)
		res.Errors = multierror.Append(res.Errors, fmt.Errorf("[%s] %w", entry.URL, err))
		return nil
	}

	meta.Status = models.EntryStatusSuccess
	c.summary.Add(meta)
	c.recordOutcome(entry, models.EntryStatusSuccess, "", streams, outputs, attempt, elog)
	return nil
}

// handleEntry returns the published date, the dispatched outputs and the stream count.
func (c *Crawler) handleEntry(ctx context.Context, entry *models.VideoEntry, doc *goquery.Document, policy batchPolicy, elog *logrus.Entry, res *Result) (models.PublishedDate, []string, int, error) {
	var (
		date models.PublishedDate
		err  error
	)
	if !policy.resolveBeforeDate {
		if date, err = models.ParseDate(entry.RawDate); err != nil {
			return date, nil, 0, err
		}
	}
	if entry.VideoID == "" {
		if entry.VideoID, err = models.ExtractVideoID(entry.URL); err != nil {
			return date, nil, 0, err
		}
	}

	desc, err := c.resolve(ctx, entry, doc, policy, elog)
	if err != nil {
		return date, nil, 0, err
	}
	if policy.resolveBeforeDate {
		if date, err = models.ParseDate(entry.RawDate); err != nil {
			return date, nil, 0, err
		}
	}
	desc.Entry = entry
	if desc.MembersOnly {
		elog.Info("Members-only video")
	}

	outputs, err := c.dispatch(ctx, desc, date, policy, elog, res)
	if err != nil {
		return date, outputs, len(desc.StreamURLs), err
	}

	if err := c.ledger.Record(entry.URL); err != nil {
		return date, outputs, len(desc.StreamURLs), err
	}
	return date, outputs, len(desc.StreamURLs), nil
}

// resolve finds the stream URLs of entry, using the passcode resolver when the policy calls for it.
func (c *Crawler) resolve(ctx context.Context, entry *models.VideoEntry, doc *goquery.Document, policy batchPolicy, elog *logrus.Entry) (models.Descriptor, error) {
	if doc == nil {
		var err error
		if doc, err = c.pages.Document(ctx, entry.URL); err != nil {
			if errors.Is(err, context.Canceled) {
				return models.Descriptor{}, err
			}
			return models.Descriptor{}, fmt.Errorf("%w: fetching video page: %w", utils.ErrNoManifest, err)
		}
	}
	desc, decodeErr := manifest.Decode(doc)

	if c.resolver == nil || !policy.usePasscodes(entry, c.passcodes.Len()) {
		return desc, decodeErr
	}
	if policy.decodeFirst {
		if decodeErr == nil {
			return desc, nil
		}
		elog.Debugf("Page decode failed, falling back to passcodes: %v", decodeErr)
	}

	elog.WithField("candidates", c.passcodes.Len()).Info("Trying passcodes")
	urls, err := c.resolver.Resolve(ctx, entry.URL, c.passcodes)
	if err != nil {
		return desc, err
	}
	desc.StreamURLs = urls
	return desc, nil
}

// dispatch hands every stream of desc to the sink and returns the outputs written.
func (c *Crawler) dispatch(ctx context.Context, desc models.Descriptor, date models.PublishedDate, policy batchPolicy, elog *logrus.Entry, res *Result) ([]string, error) {
	dir := c.outputDir(desc)
	outputs := make([]string, 0, len(desc.StreamURLs))
	var errs *multierror.Error

	for i, streamURL := range desc.StreamURLs {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}
		path := filepath.Join(dir, OutputName(date, desc.Entry.Title, desc.Entry.VideoID, i))
		if fileExists(path) {
			path = strings.TrimSuffix(path, ".mp4") + strconv.Itoa(i) + ".mp4"
		}

		job := mux.Job{
			Input:      streamURL,
			Output:     path,
			VideoID:    desc.Entry.VideoID,
			Title:      desc.Entry.Title,
			PageSource: true,
		}
		jlog := elog.WithFields(logrus.Fields{"stream": fmt.Sprintf("%d/%d", i+1, len(desc.StreamURLs)), "output": filepath.Base(path)})
		jlog.Info("Dispatching stream")

		if err := c.sink.Dispatch(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) || policy.failFast {
				return outputs, err
			}
			jlog.WithField("error_type", utils.CategorizeError(err)).Errorf("Stream failed: %v", err)
			errs = multierror.Append(errs, fmt.Errorf("stream %d: %w", i+1, err))
			continue
		}
		res.LinksExtracted++
		outputs = append(outputs, path)
	}
	return outputs, errs.ErrorOrNil()
}

// outputDir picks the destination for desc from its own membership flag.
func (c *Crawler) outputDir(desc models.Descriptor) string {
	if desc.MembersOnly {
		return filepath.Join(c.cfg.OutputDir, c.cfg.MemberSubdir)
	}
	return c.cfg.OutputDir
}

// OutputName builds "YYYYMMDD - title[_n] (id).mp4" for stream index i.
func OutputName(date models.PublishedDate, title, videoID string, i int) string {
	name := date.Compact() + " - " + utils.SanitizeFilename(title)
	if i > 0 {
		name += "_" + strconv.Itoa(i+1)
	}
	return name + " (" + videoID + ").mp4"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (c *Crawler) recordOutcome(entry *models.VideoEntry, status models.EntryStatus, errType string, streams int, outputs []string, attempt time.Time, elog *logrus.Entry) {
	if c.store == nil {
		return
	}
	dbEntry := &models.EntryDBEntry{
		Status:      status,
		ErrorType:   errType,
		Title:       entry.Title,
		Streams:     streams,
		Outputs:     outputs,
		LastAttempt: attempt,
	}
	if status == models.EntryStatusSuccess {
		dbEntry.CompletedAt = time.Now()
	}
	if err := c.store.UpdateEntryStatus(entry.URL, dbEntry); err != nil {
		elog.Warnf("Could not record outcome: %v", err)
	}
}

func (c *Crawler) logEntryError(elog *logrus.Entry, err error) {
	elog = elog.WithField("error_type", utils.CategorizeError(err))
	var locked *passcode.LockedError
	switch {
	case errors.As(err, &locked):
		elog.WithField("passcodes_remaining", locked.Remaining).Warnf("Video stays locked: %v", err)
	case errors.Is(err, utils.ErrNoManifest):
		elog.Warnf("Private or unavailable video: %v", err)
	default:
		elog.Errorf("Entry failed: %v", err)
	}
}

func (c *Crawler) startProgress(total int) {
	if !c.opts.ShowProgress || total <= 0 {
		return
	}
	out := c.opts.ProgressOut
	if out == nil {
		out = os.Stderr
	}
	c.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("videos"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
	)
}

func (c *Crawler) advanceProgress() {
	if c.bar != nil {
		_ = c.bar.Add(1)
	}
}

// finish closes the sink, logs the tally and writes the summary.
func (c *Crawler) finish(res Result, runErr error) (Result, error) {
	if c.bar != nil {
		_ = c.bar.Finish()
		c.bar = nil
	}
	if c.sink != nil {
		if err := c.sink.Close(); err != nil {
			c.log.Errorf("Closing sink: %v", err)
			if runErr == nil {
				runErr = err
			}
		}
		c.sink = nil
	}

	c.log.WithFields(logrus.Fields{
		"skipped": res.Skipped,
		"failed":  res.Failed,
	}).Infof("Total Links Extracted: %s", res.Tally())

	if err := c.summary.Finish(res); err != nil {
		c.log.Errorf("Writing run summary: %v", err)
	}
	return res, runErr
}
