package download

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-tululu/fetch"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies: make(map[string]string),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	body, ok := f.bodies[rawURL]
	if !ok {
		return nil, &fetch.TransportError{URL: rawURL, StatusCode: http.StatusNotFound, Kind: "not_found", Err: errors.New("no fixture")}
	}
	return &fetch.Response{URL: rawURL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func newTestDownloader(t *testing.T, f Fetcher) *Downloader {
	t.Helper()
	d, err := New(f, 16)
	require.NoError(t, err)
	return d
}

func TestDownloadText(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://example.test/txt.php?id=1"] = "Call me Ishmael."
	d := newTestDownloader(t, f)
	dir := filepath.Join(t.TempDir(), TextDir)

	path, err := d.DownloadText(context.Background(), "http://example.test/txt.php?id=1", "Moby Dick", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Moby Dick.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Call me Ishmael.", string(data))
}

func TestDownloadTextIsIdempotent(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://example.test/txt.php?id=1"] = "Call me Ishmael."
	d := newTestDownloader(t, f)
	dir := t.TempDir()

	first, err := d.DownloadText(context.Background(), "http://example.test/txt.php?id=1", "Moby Dick", dir)
	require.NoError(t, err)
	before, err := os.ReadFile(first)
	require.NoError(t, err)

	second, err := d.DownloadText(context.Background(), "http://example.test/txt.php?id=1", "Moby Dick", dir)
	require.NoError(t, err)
	after, err := os.ReadFile(second)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, after)
}

func TestDownloadRedirectWritesNothing(t *testing.T) {
	f := newFakeFetcher()
	f.errs["http://example.test/txt.php?id=2"] = &fetch.RedirectError{URL: "http://example.test/txt.php?id=2", StatusCode: http.StatusFound, Location: "/"}
	f.errs["http://example.test/shots/2.jpg"] = &fetch.RedirectError{URL: "http://example.test/shots/2.jpg", StatusCode: http.StatusMovedPermanently}
	d := newTestDownloader(t, f)
	dest := t.TempDir()

	_, err := d.DownloadText(context.Background(), "http://example.test/txt.php?id=2", "Missing", filepath.Join(dest, TextDir))
	require.Error(t, err)
	assert.True(t, fetch.IsRedirect(err))

	_, err = d.DownloadImage(context.Background(), "http://example.test/b2/", "/shots/2.jpg", filepath.Join(dest, ImageDir))
	require.Error(t, err)
	assert.True(t, fetch.IsRedirect(err))

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "no directory or file may be created for a redirected asset")
}

func TestDownloadImageResolvesAgainstPage(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://example.test/shots/239.jpg?v=2"] = "\xff\xd8\xff\xe0binary"
	d := newTestDownloader(t, f)
	dir := t.TempDir()

	path, err := d.DownloadImage(context.Background(), "http://example.test/b239/", "../shots/239.jpg?v=2", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "239.jpg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\xff\xd8\xff\xe0binary"), data)
}

func TestDownloadImageReusesSavedCover(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://example.test/images/nopic.gif"] = "GIF89a"
	d := newTestDownloader(t, f)
	dir := t.TempDir()

	for _, page := range []string{"http://example.test/b1/", "http://example.test/b2/"} {
		path, err := d.DownloadImage(context.Background(), page, "/images/nopic.gif", dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "nopic.gif"), path)
	}
	assert.Equal(t, 1, f.calls["http://example.test/images/nopic.gif"])
}

func TestSaveOverwritesCollidingTitle(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://example.test/txt.php?id=1"] = "first edition"
	f.bodies["http://example.test/txt.php?id=2"] = "second edition"
	d := newTestDownloader(t, f)
	dir := t.TempDir()

	_, err := d.DownloadText(context.Background(), "http://example.test/txt.php?id=1", "Poems", dir)
	require.NoError(t, err)
	path, err := d.DownloadText(context.Background(), "http://example.test/txt.php?id=2", "Poems", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second edition", string(data))
}

func TestFetchThenSaveSeparately(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://example.test/txt.php?id=1"] = "body"
	d := newTestDownloader(t, f)
	dir := filepath.Join(t.TempDir(), "nested", TextDir)

	asset, err := d.FetchText(context.Background(), "http://example.test/txt.php?id=1", "Title", dir)
	require.NoError(t, err)
	_, statErr := os.Stat(asset.Path)
	assert.True(t, os.IsNotExist(statErr), "fetch must not touch the disk")

	path, err := d.Save(asset)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Moby Dick", expected: "Moby Dick"},
		{input: "Алиса в стране чудес", expected: "Алиса в стране чудес"},
		{input: "What? Why: How*", expected: "What_ Why_ How"},
		{input: "../../etc/passwd", expected: "etc_passwd"},
		{input: "/absolute/path", expected: "absolute_path"},
		{input: `C:\Windows\evil`, expected: "C_Windows_evil"},
		{input: "..", expected: "untitled"},
		{input: ".", expected: "untitled"},
		{input: "", expected: "untitled"},
		{input: "a\x00b\nc", expected: "a_b_c"},
		{input: "cover.jpg", expected: "cover.jpg"},
		{input: "Title...", expected: "Title"},
		{input: "CON", expected: "CON_"},
		{input: "nul.jpg", expected: "nul_.jpg"},
		{input: "Com1", expected: "Com1_"},
		{input: "lpt9.tar.gz", expected: "lpt9_.tar.gz"},
		{input: "Console", expected: "Console"},
		{input: "CON?", expected: "CON_"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Sanitize(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, `\`)
		})
	}
}

func TestSanitizeTruncatesOnRuneBoundary(t *testing.T) {
	got := Sanitize(strings.Repeat("ж", 200))
	assert.LessOrEqual(t, len(got), maxFilenameLength)
	assert.True(t, strings.HasPrefix(strings.Repeat("ж", 200), got))
}

func TestSanitizeTruncationKeepsExtension(t *testing.T) {
	long := strings.Repeat("ж", 120) + ".jpeg"

	got := Sanitize(long)
	assert.LessOrEqual(t, len(got), maxFilenameLength)
	assert.Equal(t, ".jpeg", filepath.Ext(got))
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasPrefix(long, strings.TrimSuffix(got, ".jpeg")))
}

func TestSafeJoin(t *testing.T) {
	dir := t.TempDir()

	joined, err := safeJoin(dir, "book.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "book.txt"), joined)

	for _, leaf := range []string{"", ".", "..", "../x", "a/b", "/etc/passwd"} {
		_, err := safeJoin(dir, leaf)
		assert.Error(t, err, "leaf %q", leaf)
	}
}
