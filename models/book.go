// Package models defines data structures for the scraper.
package models

import (
	"fmt"
	"time"
)

// Book is the record extracted from one book-detail page.
type Book struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Genres   []string `json:"genres"`
	Comments []string `json:"comments"`
	ImageURL string   `json:"image_url"`
}

// Manifest is the ordered set of books collected during one run.
type Manifest []Book

// CrawlRange is an inclusive range of category pages.
type CrawlRange struct {
	StartPage int
	EndPage   int
}

// Validate reports whether the range can be crawled.
func (r CrawlRange) Validate() error {
	if r.StartPage < 1 {
		return fmt.Errorf("start page must be at least 1, got %d", r.StartPage)
	}
	if r.EndPage < r.StartPage {
		return fmt.Errorf("end page (%d) must not be less than start page (%d)", r.EndPage, r.StartPage)
	}
	return nil
}

// Pages returns the number of pages in the range.
func (r CrawlRange) Pages() int {
	if r.EndPage < r.StartPage {
		return 0
	}
	return r.EndPage - r.StartPage + 1
}

func (r CrawlRange) String() string {
	return fmt.Sprintf("%d..%d", r.StartPage, r.EndPage)
}

// DownloadTarget controls where and which assets are stored.
type DownloadTarget struct {
	Dir        string
	SkipText   bool
	SkipImages bool
}

// CrawlResult holds the overall result of a crawl.
type CrawlResult struct {
	Range           CrawlRange
	StartTime       time.Time
	EndTime         time.Time
	PagesVisited    int
	PagesSkipped    int
	BooksSaved      int
	BooksSkipped    int
	TextsSaved      int
	ImagesSaved     int
	SkippedByReason map[string]int
	FailedURLs      []string
}
