package listing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"castdl/pkg/models"
	"castdl/pkg/parse"
	"castdl/pkg/utils"
)

// Selectors for the channel listing page structure
const (
	PagerSelector        = ".tw-pager"
	ButtonSelector       = "a.btn"
	ItemCountSelector    = ".tw-user-nav-list-count"
	ChannelNameSelector  = ".tw-user-nav-name"
	EntryLinkSelector    = "a.tw-movie-thumbnail"
	EntryTitleSelector   = "span.tw-movie-thumbnail-title"
	EntryDateSelector    = ".tw-movie-thumbnail-date"
	FallbackDateSelector = "time"
)

var digits = regexp.MustCompile(`\d[\d,]*`)

// ParseCounts reads the total number of pages and items announced on the
// first listing page. Clip listings carry their count on the second button
// ("Clip (N)"); other listings use the channel navigation counter.
func ParseCounts(doc *goquery.Document, kind parse.Kind) (totalPages, totalItems int, err error) {
	pager := doc.Find(PagerSelector).First()
	if pager.Length() == 0 {
		return 0, 0, fmt.Errorf("%w: pager %s not found", utils.ErrPageFetch, PagerSelector)
	}
	totalPages, err = firstNumber(pager.Find("*").Last().Text())
	if err != nil {
		return 0, 0, fmt.Errorf("%w: total pages: %w", utils.ErrPageFetch, err)
	}

	var countText string
	if kind == parse.KindListingClips {
		buttons := doc.Find(ButtonSelector)
		if buttons.Length() < 2 {
			return 0, 0, fmt.Errorf("%w: clip count button not found", utils.ErrPageFetch)
		}
		countText = buttons.Eq(1).Text()
	} else {
		counter := doc.Find(ItemCountSelector).First()
		if counter.Length() == 0 {
			return 0, 0, fmt.Errorf("%w: item counter %s not found", utils.ErrPageFetch, ItemCountSelector)
		}
		countText = counter.Text()
	}
	totalItems, err = firstNumber(countText)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: total items: %w", utils.ErrPageFetch, err)
	}
	return totalPages, totalItems, nil
}

// ParseChannelName returns the channel display name, or "" when absent.
func ParseChannelName(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find(ChannelNameSelector).First().Text())
}

// ParseEntries aligns the link, title and date collections of a listing page
// by position. When the dated thumbnails do not line up with the links, every
// time element on the page is used instead. Entries beyond the shortest
// collection are dropped.
func ParseEntries(doc *goquery.Document, domain, placeholderTitle string) []models.VideoEntry {
	links := doc.Find(EntryLinkSelector)
	titles := doc.Find(EntryTitleSelector)
	dates := doc.Find(EntryDateSelector)
	if dates.Length() != links.Length() {
		dates = doc.Find(FallbackDateSelector)
	}

	n := min(links.Length(), titles.Length(), dates.Length())
	entries := make([]models.VideoEntry, 0, n)
	origin := "https://" + domain
	for i := 0; i < n; i++ {
		href, _ := links.Eq(i).Attr("href")
		entry := models.VideoEntry{
			URL:     absolute(origin, href),
			RawDate: strings.TrimSpace(dates.Eq(i).Text()),
		}
		applyTitle(&entry, titles.Eq(i), placeholderTitle)
		entry.VideoID, _ = models.ExtractVideoID(entry.URL)
		entries = append(entries, entry)
	}
	return entries
}

// applyTitle fills the title, private and locked fields from a title span.
// A src attribute marks a private video; an embedded image is the lock icon.
func applyTitle(entry *models.VideoEntry, title *goquery.Selection, placeholder string) {
	if _, ok := title.Attr("src"); ok {
		entry.Private = true
		entry.Title = placeholder
	} else {
		entry.Title = strings.TrimSpace(title.Text())
		if entry.Title == "" {
			entry.Title = placeholder
		}
	}
	entry.Locked = title.Find("img").Length() > 0
}

func absolute(origin, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return origin + href
}

func firstNumber(text string) (int, error) {
	m := digits.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("no number in %q", strings.TrimSpace(text))
	}
	return strconv.Atoi(strings.ReplaceAll(m, ",", ""))
}
