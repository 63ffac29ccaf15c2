// Package listing walks a channel's paginated video listing.
package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"castdl/pkg/models"
	"castdl/pkg/parse"
	"castdl/pkg/utils"
)

// DocumentSource fetches a page as a parsed HTML document
type DocumentSource interface {
	Document(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// Page is one listing page. TotalPages and TotalItems are read from page 0
// and copied onto later pages.
type Page struct {
	Index      int
	TotalPages int
	TotalItems int
	Channel    string // Channel display name
	Entries    []models.VideoEntry
}

// Paginator fetches listing pages for a target
type Paginator struct {
	src         DocumentSource
	domain      string
	placeholder string
	log         *logrus.Entry
}

// NewPaginator creates a Paginator. placeholder is the title given to private entries.
func NewPaginator(src DocumentSource, domain, placeholder string, log *logrus.Entry) *Paginator {
	return &Paginator{
		src:         src,
		domain:      domain,
		placeholder: placeholder,
		log:         log,
	}
}

// Open fetches page 0 and reads the listing totals. Any failure here is fatal
// for the run and is reported as ErrPageFetch.
func (p *Paginator) Open(ctx context.Context, target parse.Target) (Page, error) {
	if !target.Kind.IsListing() {
		return Page{}, fmt.Errorf("%w: %s is not a listing", utils.ErrInvalidURL, target.Base)
	}
	doc, err := p.fetch(ctx, target, 0)
	if err != nil {
		return Page{}, err
	}
	totalPages, totalItems, err := ParseCounts(doc, target.Kind)
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Index:      0,
		TotalPages: totalPages,
		TotalItems: totalItems,
		Channel:    ParseChannelName(doc),
		Entries:    ParseEntries(doc, p.domain, p.placeholder),
	}
	p.log.WithFields(logrus.Fields{
		"total_pages": totalPages,
		"total_items": totalItems,
		"channel":     page.Channel,
	}).Info("Listing opened")
	return page, nil
}

// Page fetches listing page index (> 0) and carries the totals over from first.
func (p *Paginator) Page(ctx context.Context, target parse.Target, first Page, index int) (Page, error) {
	if index == 0 {
		return first, nil
	}
	doc, err := p.fetch(ctx, target, index)
	if err != nil {
		return Page{}, err
	}
	page := Page{
		Index:      index,
		TotalPages: first.TotalPages,
		TotalItems: first.TotalItems,
		Channel:    first.Channel,
		Entries:    ParseEntries(doc, p.domain, p.placeholder),
	}
	p.log.WithFields(logrus.Fields{"page": index, "entries": len(page.Entries)}).Debug("Listing page parsed")
	return page, nil
}

func (p *Paginator) fetch(ctx context.Context, target parse.Target, index int) (*goquery.Document, error) {
	pageURL := target.PageURL(index)
	doc, err := p.src.Document(ctx, pageURL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: page %d (%s): %w", utils.ErrPageFetch, index, pageURL, err)
	}
	return doc, nil
}
