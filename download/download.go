// Package download stores book texts and cover images on disk.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

const (
	// TextDir is the subdirectory of the destination holding book texts.
	TextDir = "books"
	// ImageDir is the subdirectory of the destination holding cover images.
	ImageDir = "images"

	KindText  = "text"
	KindImage = "image"
)

// Fetcher performs a single GET.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Asset is a fetched file waiting to be written.
type Asset struct {
	Kind   string
	Source string
	Path   string
	Data   []byte

	cached bool
}

// Cached reports whether the asset was already saved from the same source
// during this run, in which case Save does not touch the disk.
func (a *Asset) Cached() bool {
	return a.cached
}

// Downloader fetches assets and writes them under a destination directory.
// Existing files are overwritten.
type Downloader struct {
	fetcher Fetcher
	saved   *lru.Cache[string, string] // path -> source URL written during this run

	writeMu sync.Mutex
}

// New returns a Downloader remembering up to cacheSize saved files.
func New(fetcher Fetcher, cacheSize int) (*Downloader, error) {
	saved, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create asset cache: %w", err)
	}
	return &Downloader{fetcher: fetcher, saved: saved}, nil
}

// FetchText downloads the book text at sourceURL. The asset is destined for
// dir/<sanitized title>.txt.
func (d *Downloader) FetchText(ctx context.Context, sourceURL, title, dir string) (*Asset, error) {
	target, err := safeJoin(dir, Sanitize(title)+".txt")
	if err != nil {
		return nil, err
	}

	resp, err := d.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("fetch text: %w", err)
	}
	return &Asset{Kind: KindText, Source: sourceURL, Path: target, Data: resp.Body}, nil
}

// FetchImage downloads the cover at imageURL, resolved against pageURL. The
// asset is destined for dir/<sanitized basename of the image path>.
func (d *Downloader) FetchImage(ctx context.Context, pageURL, imageURL, dir string) (*Asset, error) {
	source, name, err := resolveImage(pageURL, imageURL)
	if err != nil {
		return nil, err
	}
	target, err := safeJoin(dir, Sanitize(name))
	if err != nil {
		return nil, err
	}

	if prev, ok := d.saved.Get(target); ok && prev == source {
		return &Asset{Kind: KindImage, Source: source, Path: target, cached: true}, nil
	}

	resp, err := d.fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	return &Asset{Kind: KindImage, Source: source, Path: target, Data: resp.Body}, nil
}

// Save writes the asset, creating its directory when needed, and returns the
// written path.
func (d *Downloader) Save(a *Asset) (string, error) {
	if a.cached {
		return a.Path, nil
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %q: %w", a.Path, err)
	}
	if prev, ok := d.saved.Peek(a.Path); ok && prev != a.Source {
		slog.Warn("overwriting file written earlier in this run",
			slog.String("path", a.Path),
			slog.String("previous_source", prev),
			slog.String("source", a.Source),
		)
	}
	if err := os.WriteFile(a.Path, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s %q: %w", a.Kind, a.Path, err)
	}
	d.saved.Add(a.Path, a.Source)
	return a.Path, nil
}

// DownloadText fetches and saves a book text in one step.
func (d *Downloader) DownloadText(ctx context.Context, sourceURL, title, dir string) (string, error) {
	asset, err := d.FetchText(ctx, sourceURL, title, dir)
	if err != nil {
		return "", err
	}
	return d.Save(asset)
}

// DownloadImage fetches and saves a cover image in one step.
func (d *Downloader) DownloadImage(ctx context.Context, pageURL, imageURL, dir string) (string, error) {
	asset, err := d.FetchImage(ctx, pageURL, imageURL, dir)
	if err != nil {
		return "", err
	}
	return d.Save(asset)
}

func resolveImage(pageURL, imageURL string) (string, string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", "", &parser.MalformedPageError{Reason: fmt.Sprintf("page url %q: %v", pageURL, err)}
	}
	ref, err := url.Parse(imageURL)
	if err != nil {
		return "", "", &parser.MalformedPageError{Reason: fmt.Sprintf("image url %q: %v", imageURL, err)}
	}
	abs := base.ResolveReference(ref)
	name := path.Base(abs.Path)
	if name == "/" || name == "." {
		name = ""
	}
	return abs.String(), name, nil
}
