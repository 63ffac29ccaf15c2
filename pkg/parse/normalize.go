package parse

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"castdl/pkg/utils"
)

// Kind classifies what a user-supplied link points at
type Kind int

const (
	KindSingleVideo    Kind = iota // /<channel>/movie/<id>
	KindListingShow                // /<channel>/show/
	KindListingClips               // /<channel>/showclips/
	KindListingArchive             // /<channel>/archive/
)

// String implements fmt.Stringer for logging
func (k Kind) String() string {
	switch k {
	case KindSingleVideo:
		return "single"
	case KindListingShow:
		return "show"
	case KindListingClips:
		return "showclips"
	case KindListingArchive:
		return "archive"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsListing reports whether the target is paginated.
func (k Kind) IsListing() bool {
	return k != KindSingleVideo
}

// listingSegments maps a path segment to the listing kind it selects
var listingSegments = map[string]Kind{
	"showclips": KindListingClips,
	"show":      KindListingShow,
	"archive":   KindListingArchive,
}

var movieSegment = regexp.MustCompile(`^\d+$`)

// Target is a normalized crawl input. Listing bases always end with a slash
// so that page N is addressed as Base+N.
type Target struct {
	Raw       string // Link as the user supplied it
	Base      string
	Kind      Kind
	ChannelID string
}

// DirectManifest is a link that already is a playable stream manifest
type DirectManifest struct {
	URL      string
	StreamID string
}

// Normalizer turns user links into crawl targets for one platform domain
type Normalizer struct {
	domain string
	direct *regexp.Regexp
}

// NewNormalizer creates a Normalizer for domain (e.g. "twitcasting.tv").
func NewNormalizer(domain string) *Normalizer {
	quoted := regexp.QuoteMeta(domain)
	return &Normalizer{
		domain: domain,
		direct: regexp.MustCompile(`^https?://.*\.` + quoted + `/tc\.vod/v/(\d+).*/fmp4/index\.m3u8$`),
	}
}

// Normalize classifies raw. Exactly one of the Target or the *DirectManifest is
// meaningful on success: a non-nil DirectManifest short-circuits the crawl.
func (n *Normalizer) Normalize(raw string) (Target, *DirectManifest, error) {
	link := strings.TrimSpace(raw)
	if m := n.direct.FindStringSubmatch(link); m != nil {
		return Target{}, &DirectManifest{URL: link, StreamID: m[1]}, nil
	}

	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return Target{}, nil, fmt.Errorf("%w: %q: %w", utils.ErrInvalidURL, raw, err)
	}
	if !n.onDomain(u.Hostname()) {
		return Target{}, nil, fmt.Errorf("%w: %q is not on %s", utils.ErrInvalidURL, raw, n.domain)
	}

	segments := splitPath(u.Path)
	if len(segments) == 0 {
		return Target{}, nil, fmt.Errorf("%w: %q has no channel", utils.ErrInvalidURL, raw)
	}
	channel := segments[0]
	root := u.Scheme + "://" + u.Host + "/"
	target := Target{Raw: raw, ChannelID: channel}

	for i := 1; i < len(segments); i++ {
		if kind, ok := listingSegments[segments[i]]; ok {
			target.Kind = kind
			target.Base = root + strings.Join(segments[:i+1], "/") + "/"
			return target, nil, nil
		}
	}

	switch {
	case len(segments) >= 3 && segments[1] == "movie" && movieSegment.MatchString(segments[2]):
		target.Kind = KindSingleVideo
		target.Base = root + strings.Join(segments[:3], "/")
	case len(segments) == 1:
		target.Kind = KindListingShow
		target.Base = root + channel + "/show/"
	default:
		return Target{}, nil, fmt.Errorf("%w: %q is neither a channel, a listing nor a video", utils.ErrInvalidURL, raw)
	}
	return target, nil, nil
}

// PageURL returns the address of listing page index (0-based).
func (t Target) PageURL(index int) string {
	if index == 0 {
		return t.Base
	}
	return fmt.Sprintf("%s%d", t.Base, index)
}

func (n *Normalizer) onDomain(host string) bool {
	host = strings.ToLower(host)
	return host == n.domain || strings.HasSuffix(host, "."+n.domain)
}

func splitPath(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
