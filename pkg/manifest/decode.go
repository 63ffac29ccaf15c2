// Package manifest extracts stream manifest URLs from a video page's player element.
package manifest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"castdl/pkg/models"
	"castdl/pkg/utils"
)

const (
	PlayerSelector      = ".video-js"
	PlaylistAttribute   = "data-movie-playlist"
	MembersOnlySelector = "#groupinfolink"
)

// playlist is the decoded player payload; key "2" holds the stream sources
type playlist struct {
	Sources []struct {
		Source struct {
			URL string `json:"url"`
		} `json:"source"`
	} `json:"2"`
}

// Decode reads the player element of a video page and returns its streams.
// The returned Descriptor has no Entry; callers attach it.
func Decode(doc *goquery.Document) (models.Descriptor, error) {
	desc := models.Descriptor{
		MembersOnly: doc.Find(MembersOnlySelector).Length() > 0,
	}
	raw, ok := doc.Find(PlayerSelector).First().Attr(PlaylistAttribute)
	if !ok {
		return desc, fmt.Errorf("%w: player element or %s attribute missing", utils.ErrNoManifest, PlaylistAttribute)
	}
	urls, err := DecodePayload(raw)
	if err != nil {
		return desc, err
	}
	desc.StreamURLs = urls
	return desc, nil
}

// DecodePayload turns a raw playlist attribute value into ordered stream URLs.
// Plain JSON is recognised by the presence of a double quote, which the
// reversed base64 form can never contain.
func DecodePayload(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty playlist payload", utils.ErrNoManifest)
	}

	data := []byte(raw)
	if !strings.Contains(raw, `"`) {
		decoded, err := reversedBase64(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", utils.ErrNoManifest, err)
		}
		data = decoded
	}
	return ParsePlaylist(data)
}

// ParsePlaylist extracts the stream URLs from a decoded JSON payload.
// Stray backslashes left by the site's escaping are removed.
func ParsePlaylist(data []byte) ([]string, error) {
	var pl playlist
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, fmt.Errorf("%w: %w: JSON playlist: %w", utils.ErrNoManifest, utils.ErrParsing, err)
	}

	urls := make([]string, 0, len(pl.Sources))
	for _, s := range pl.Sources {
		u := strings.ReplaceAll(s.Source.URL, `\`, "")
		if u == "" {
			continue
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: playlist has no sources", utils.ErrNoManifest)
	}
	return urls, nil
}

func reversedBase64(raw string) ([]byte, error) {
	b := []byte(raw)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	enc := base64.StdEncoding
	if len(b)%4 != 0 {
		enc = base64.RawStdEncoding
		b = []byte(strings.TrimRight(string(b), "="))
	}
	out, err := enc.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("%w: base64 payload: %w", utils.ErrParsing, err)
	}
	return out, nil
}
