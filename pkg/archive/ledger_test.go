package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castdl/pkg/utils"
)

func readLines(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestLoad_Disabled(t *testing.T) {
	l, err := Load("")
	require.NoError(t, err)
	assert.False(t, l.Enabled())
	assert.False(t, l.Contains("https://twitcasting.tv/a/movie/1"))
	require.NoError(t, l.Record("https://twitcasting.tv/a/movie/1"))
	assert.Equal(t, 0, l.Len())
}

func TestLoad_ExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://twitcasting.tv/a/movie/1\n\nhttps://twitcasting.tv/a/movie/2\n"), 0644))

	l, err := Load(path)
	require.NoError(t, err)
	assert.True(t, l.Enabled())
	assert.Equal(t, 2, l.Len())
	assert.True(t, l.Contains("https://twitcasting.tv/a/movie/1"))
	assert.True(t, l.Contains("https://twitcasting.tv/a/movie/2"))
	assert.False(t, l.Contains("https://twitcasting.tv/a/movie/3"))

	require.NoError(t, l.Record("https://twitcasting.tv/a/movie/3"))
	assert.Equal(t,
		"https://twitcasting.tv/a/movie/1\n\nhttps://twitcasting.tv/a/movie/2\nhttps://twitcasting.tv/a/movie/3\n",
		readLines(t, path), "existing content is preserved")
}

func TestRecord_NewFileThenAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.txt")
	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	// A file appearing between Load and the first write is replaced
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0644))

	require.NoError(t, l.Record("https://twitcasting.tv/a/movie/1"))
	require.NoError(t, l.Record("https://twitcasting.tv/a/movie/2"))
	require.NoError(t, l.Record("https://twitcasting.tv/a/movie/1"))

	assert.Equal(t, "https://twitcasting.tv/a/movie/1\nhttps://twitcasting.tv/a/movie/2\n", readLines(t, path))
	assert.True(t, l.Contains("https://twitcasting.tv/a/movie/2"))
}

func TestRecord_PersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.txt")
	first, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, first.Record("https://twitcasting.tv/a/movie/1"))

	second, err := Load(path)
	require.NoError(t, err)
	assert.True(t, second.Contains("https://twitcasting.tv/a/movie/1"))
}

func TestRecord_UnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "archive.txt")
	l, err := Load(path)
	require.NoError(t, err)

	err = l.Record("https://twitcasting.tv/a/movie/1")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrArchiveIO)
	assert.False(t, l.Contains("https://twitcasting.tv/a/movie/1"))
}

func TestLoad_Directory(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrArchiveIO)
}
