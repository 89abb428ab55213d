package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

// LocateLastPage fetches the category root and returns the highest page
// number advertised by its pagination. A category without pagination yields
// *parser.ParseError.
func (c *Crawler) LocateLastPage(ctx context.Context) (int, error) {
	root := c.cfg.CategoryURL()
	resp, err := c.fetcher.Fetch(ctx, root)
	if err != nil {
		return 0, fmt.Errorf("fetch category root %s: %w", root, err)
	}
	return parser.ParseLastPage(resp.Text())
}

// ResolveRange fills in the parts of the crawl range left unset in the
// configuration. The end page defaults to the last page of the category and
// the start page to the page before the end page. The category root is only
// fetched when the end page is unset; a category without pagination counts
// as a single page.
func (c *Crawler) ResolveRange(ctx context.Context) (models.CrawlRange, error) {
	end := c.cfg.EndPage
	if end == 0 {
		last, err := c.LocateLastPage(ctx)
		switch {
		case parser.IsParseError(err):
			slog.Info("category has no readable pagination, assuming a single page",
				slog.String("url", c.cfg.CategoryURL()),
				slog.Any("error", err),
			)
			last = 1
		case err != nil:
			return models.CrawlRange{}, fmt.Errorf("locate last page: %w", err)
		}
		end = last
	}

	start := c.cfg.StartPage
	if start == 0 {
		start = max(1, end-1)
	}

	rng := models.CrawlRange{StartPage: start, EndPage: end}
	if err := rng.Validate(); err != nil {
		return models.CrawlRange{}, err
	}
	return rng, nil
}
