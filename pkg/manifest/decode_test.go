package manifest

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castdl/pkg/utils"
)

const samplePayload = `{"2":[{"source":{"url":"https:\/\/dl01.twitcasting.tv\/tc.vod\/v\/123.0.2\/hls\/index.m3u8?k=1&t=2"}},{"source":{"url":"https://dl01.twitcasting.tv/tc.vod/v/124/hls/index.m3u8"}}],"1":{"title":"ignored"}}`

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

func encodeReversed(s string) string {
	return reverse(base64.StdEncoding.EncodeToString([]byte(s)))
}

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

var wantURLs = []string{
	"https://dl01.twitcasting.tv/tc.vod/v/123.0.2/hls/index.m3u8?k=1&t=2",
	"https://dl01.twitcasting.tv/tc.vod/v/124/hls/index.m3u8",
}

func TestDecodePayload_StrategiesAgree(t *testing.T) {
	plain, err := DecodePayload(samplePayload)
	require.NoError(t, err)

	encoded, err := DecodePayload(encodeReversed(samplePayload))
	require.NoError(t, err)

	assert.Equal(t, wantURLs, plain)
	assert.Equal(t, plain, encoded)
}

func TestDecodePayload_MissingPadding(t *testing.T) {
	payload := `{"2":[{"source":{"url":"https://a.twitcasting.tv/x.m3u8"}}]}`
	raw := reverse(strings.TrimRight(base64.StdEncoding.EncodeToString([]byte(payload)), "="))

	urls, err := DecodePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.twitcasting.tv/x.m3u8"}, urls)
}

func TestDecodePayload_BackslashesStripped(t *testing.T) {
	urls, err := DecodePayload(`{"2":[{"source":{"url":"https:\\/\\/a.tv\\/x.m3u8"}}]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.tv/x.m3u8"}, urls)
}

func TestDecodePayload_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not base64", "%%%not-base64%%%"},
		{"base64 of non-json", reverse(base64.StdEncoding.EncodeToString([]byte("hello")))},
		{"json without key 2", `{"1":[]}`},
		{"json with empty sources", `{"2":[]}`},
		{"json with wrong shape", `{"2":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrNoManifest)
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("public video", func(t *testing.T) {
		doc := docFrom(t, `<html><body><video class="video-js" data-movie-playlist='`+encodeReversed(samplePayload)+`'></video></body></html>`)
		desc, err := Decode(doc)
		require.NoError(t, err)
		assert.Equal(t, wantURLs, desc.StreamURLs)
		assert.False(t, desc.MembersOnly)
		assert.Nil(t, desc.Entry)
	})

	t.Run("members only marker", func(t *testing.T) {
		doc := docFrom(t, `<html><body><a id="groupinfolink" href="#">group</a><video class="video-js" data-movie-playlist='`+samplePayload+`'></video></body></html>`)
		desc, err := Decode(doc)
		require.NoError(t, err)
		assert.True(t, desc.MembersOnly)
		assert.Len(t, desc.StreamURLs, 2)
	})

	t.Run("no player element", func(t *testing.T) {
		doc := docFrom(t, `<html><body><a id="groupinfolink">group</a><p>private</p></body></html>`)
		desc, err := Decode(doc)
		require.Error(t, err)
		assert.ErrorIs(t, err, utils.ErrNoManifest)
		assert.True(t, desc.MembersOnly, "membership is reported even without a manifest")
	})

	t.Run("player without attribute", func(t *testing.T) {
		doc := docFrom(t, `<html><body><video class="video-js"></video></body></html>`)
		_, err := Decode(doc)
		assert.ErrorIs(t, err, utils.ErrNoManifest)
	})
}
