package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"castdl/pkg/utils"
)

var (
	videoIDPattern = regexp.MustCompile(`(\d+)$`)
	datePattern    = regexp.MustCompile(`(\d{4})/(\d{2})/(\d{2})`)
)

// VideoEntry is one video as it appears on a listing page (or a single video page)
type VideoEntry struct {
	URL     string // Absolute URL of the video page
	Title   string // Display title; placeholder when Private
	RawDate string // Date text as displayed, contains YYYY/MM/DD somewhere
	Private bool   // Title element carries a src attribute
	Locked  bool   // Title shows the lock icon (passcode required)
	VideoID string // Trailing digit run of URL, empty when none
}

// ExtractVideoID returns the trailing run of digits of a video URL.
func ExtractVideoID(videoURL string) (string, error) {
	m := videoIDPattern.FindStringSubmatch(videoURL)
	if m == nil {
		return "", fmt.Errorf("%w: %s", utils.ErrVideoID, videoURL)
	}
	return m[1], nil
}

// PublishedDate is the calendar date a video was published
type PublishedDate struct {
	Year  int
	Month int
	Day   int
}

// ParseDate finds the first YYYY/MM/DD group in raw.
func ParseDate(raw string) (PublishedDate, error) {
	m := datePattern.FindStringSubmatch(raw)
	if m == nil {
		return PublishedDate{}, fmt.Errorf("%w: %q", utils.ErrDateParse, raw)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return PublishedDate{}, fmt.Errorf("%w: %q out of range", utils.ErrDateParse, raw)
	}
	return PublishedDate{Year: year, Month: month, Day: day}, nil
}

// Compact formats the date as YYYYMMDD for filenames.
func (d PublishedDate) Compact() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, d.Month, d.Day)
}

// String formats the date as YYYY-MM-DD.
func (d PublishedDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Descriptor is the resolved playback information for one video
type Descriptor struct {
	Entry       *VideoEntry // Non-owning; nil for descriptors decoded without an entry
	StreamURLs  []string    // Ordered; index i>0 yields a "_{i+1}" filename suffix
	MembersOnly bool        // Page carried the members-only group marker
}

// EntryDBEntry stores the outcome of processing a video in the state database
type EntryDBEntry struct {
	Status      EntryStatus `json:"status"`
	ErrorType   string      `json:"error_type,omitempty"`   // Error category (on failure)
	Title       string      `json:"title,omitempty"`        // Title at the time of the attempt
	Streams     int         `json:"streams,omitempty"`      // Number of streams resolved
	Outputs     []string    `json:"outputs,omitempty"`      // Files written or manifest URLs recorded
	CompletedAt time.Time   `json:"completed_at,omitempty"` // Timestamp of successful processing
	LastAttempt time.Time   `json:"last_attempt"`           // Timestamp of the last processing attempt
}

// RunMetadata holds all metadata for a single archiver run.
type RunMetadata struct {
	RunID          string          `yaml:"run_id"`
	Link           string          `yaml:"link"`
	Kind           string          `yaml:"kind"`
	Mode           string          `yaml:"mode"` // "download" or "scrape"
	StartTime      time.Time       `yaml:"start_time"`
	EndTime        time.Time       `yaml:"end_time"`
	LinksExtracted int             `yaml:"links_extracted"`
	LinksExpected  int             `yaml:"links_expected"`
	Skipped        int             `yaml:"skipped"`
	Failed         int             `yaml:"failed"`
	Videos         []VideoMetadata `yaml:"videos"`
}

// VideoMetadata holds metadata for a single processed video.
type VideoMetadata struct {
	URL       string      `yaml:"url"`
	VideoID   string      `yaml:"video_id,omitempty"`
	Title     string      `yaml:"title,omitempty"`
	Published string      `yaml:"published,omitempty"`
	Status    EntryStatus `yaml:"status"`
	Error     string      `yaml:"error,omitempty"`
	Outputs   []string    `yaml:"outputs,omitempty"`
}
