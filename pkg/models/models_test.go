package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castdl/pkg/utils"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"movie page", "https://twitcasting.tv/someone/movie/123456", "123456", false},
		{"only trailing digits", "https://twitcasting.tv/c4l2/movie/98", "98", false},
		{"no digits", "https://twitcasting.tv/someone/movie/", "", true},
		{"digits not at end", "https://twitcasting.tv/123/show", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVideoID(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, utils.ErrVideoID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	t.Run("embedded in display text", func(t *testing.T) {
		d, err := ParseDate(" 2023/04/09 21:03 ")
		require.NoError(t, err)
		assert.Equal(t, PublishedDate{Year: 2023, Month: 4, Day: 9}, d)
		assert.Equal(t, "20230409", d.Compact())
		assert.Equal(t, "2023-04-09", d.String())
	})

	t.Run("missing date", func(t *testing.T) {
		_, err := ParseDate("yesterday")
		assert.ErrorIs(t, err, utils.ErrDateParse)
	})

	t.Run("month out of range", func(t *testing.T) {
		_, err := ParseDate("2023/13/01")
		assert.ErrorIs(t, err, utils.ErrDateParse)
	})
}
