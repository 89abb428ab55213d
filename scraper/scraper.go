// Package scraper drives the category crawl: it resolves the page range,
// walks the category pages, and turns every listed book into a manifest
// entry plus the downloaded text and cover.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/download"
	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
	"github.com/aluiziolira/go-scrape-tululu/pipeline"
)

// Fetcher performs a single GET.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// Crawler walks a category of the site.
type Crawler struct {
	cfg        *config.Config
	fetcher    Fetcher
	downloader *download.Downloader
	Metrics    *Metrics
}

// NewCrawler builds a crawler. metrics may be nil.
func NewCrawler(cfg *config.Config, fetcher Fetcher, metrics *Metrics) (*Crawler, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	downloader, err := download.New(fetcher, cfg.ImageCacheSize)
	if err != nil {
		return nil, err
	}
	return &Crawler{
		cfg:        cfg,
		fetcher:    fetcher,
		downloader: downloader,
		Metrics:    metrics,
	}, nil
}

// outcome is what one book yields once all of its assets are fetched. Nothing
// is on disk yet; Run saves the assets in page order.
type outcome struct {
	book   *models.Book
	assets []*download.Asset
	err    error
}

// Run crawls every page of rng and submits each saved book to p. Pages are
// processed in order. The books of one page are fetched concurrently, up to
// the configured parallelism, and then written to disk in page order, so when
// two books share a file name the later one wins. A page or book that fails
// with a skippable error is logged and left out. Any other error stops the run.
func (c *Crawler) Run(ctx context.Context, rng models.CrawlRange, target models.DownloadTarget, p *pipeline.Pipeline) (*models.CrawlResult, error) {
	if err := rng.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawl range: %w", err)
	}

	result := &models.CrawlResult{
		Range:           rng,
		StartTime:       time.Now(),
		SkippedByReason: make(map[string]int),
	}
	textDir := filepath.Join(target.Dir, download.TextDir)
	imageDir := filepath.Join(target.Dir, download.ImageDir)

	for page := rng.StartPage; page <= rng.EndPage; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL := c.cfg.PageURL(page)
		links, err := c.pageLinks(ctx, pageURL)
		if err != nil {
			if !Skippable(err) {
				return nil, fmt.Errorf("page %d: %w", page, err)
			}
			c.skip(result, "page", pageURL, err)
			result.PagesSkipped++
			c.Metrics.IncPage("skipped")
			continue
		}

		outcomes := make([]outcome, len(links))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Parallelism)
		for i, link := range links {
			g.Go(func() error {
				outcomes[i] = c.processBook(gctx, link, target, textDir, imageDir)
				if err := outcomes[i].err; err != nil && !Skippable(err) {
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		saved := 0
		for i, o := range outcomes {
			if o.err != nil {
				c.skip(result, "book", links[i], o.err)
				result.BooksSkipped++
				continue
			}
			if err := p.Process(pipeline.Entry{Page: page, Position: i, Book: o.book}); err != nil {
				if pipeline.IsInvalidRecord(err) {
					c.skip(result, "book", links[i], err)
					result.BooksSkipped++
					continue
				}
				return nil, fmt.Errorf("submit %s: %w", links[i], err)
			}
			if err := c.saveAssets(result, o.assets); err != nil {
				return nil, fmt.Errorf("save %s: %w", links[i], err)
			}
			saved++
			result.BooksSaved++
			c.Metrics.IncBooks()
		}

		result.PagesVisited++
		c.Metrics.IncPage("visited")
		slog.Info("page crawled",
			slog.Int("page", page),
			slog.Int("books", len(links)),
			slog.Int("saved", saved),
		)
	}

	result.EndTime = time.Now()
	return result, nil
}

func (c *Crawler) pageLinks(ctx context.Context, pageURL string) ([]string, error) {
	resp, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return parser.ParseBookLinks(resp.Text(), resp.FinalURL)
}

// processBook fetches the book page and every asset of the book without
// writing anything, so a book that turns out to be missing leaves nothing on
// disk.
func (c *Crawler) processBook(ctx context.Context, bookURL string, target models.DownloadTarget, textDir, imageDir string) outcome {
	resp, err := c.fetcher.Fetch(ctx, bookURL)
	if err != nil {
		return outcome{err: err}
	}

	book, err := parser.ParseBookPage(resp.Text())
	if err != nil {
		return outcome{err: fmt.Errorf("parse %s: %w", bookURL, err)}
	}

	o := outcome{book: book}
	if !target.SkipText {
		id, err := parser.BookID(bookURL)
		if err != nil {
			return outcome{err: err}
		}
		asset, err := c.downloader.FetchText(ctx, c.cfg.TextURL(id), book.Title, textDir)
		if err != nil {
			return outcome{err: err}
		}
		o.assets = append(o.assets, asset)
	}
	if !target.SkipImages {
		pageURL := bookURL
		if resp.FinalURL != nil {
			pageURL = resp.FinalURL.String()
		}
		asset, err := c.downloader.FetchImage(ctx, pageURL, book.ImageURL, imageDir)
		if err != nil {
			return outcome{err: err}
		}
		o.assets = append(o.assets, asset)
	}
	return o
}

func (c *Crawler) saveAssets(result *models.CrawlResult, assets []*download.Asset) error {
	for _, asset := range assets {
		path, err := c.downloader.Save(asset)
		if err != nil {
			return err
		}
		switch asset.Kind {
		case download.KindText:
			result.TextsSaved++
		case download.KindImage:
			result.ImagesSaved++
		}
		if !asset.Cached() {
			c.Metrics.IncDownload(asset.Kind)
		}
		slog.Debug("asset saved", slog.String("kind", asset.Kind), slog.String("path", path))
	}
	return nil
}

func (c *Crawler) skip(result *models.CrawlResult, unit, target string, err error) {
	reason := ErrorLabel(err)
	result.SkippedByReason[reason]++
	result.FailedURLs = append(result.FailedURLs, target)
	c.Metrics.IncSkipped(unit, reason)

	level := slog.LevelWarn
	if fetch.IsRedirect(err) {
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, "skipping "+unit,
		slog.String("url", target),
		slog.String("reason", reason),
		slog.Any("error", err),
	)
}
