package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	bookLinkSelector   = "div.bookimage a"
	paginationSelector = "a.npage"
)

var bookIDPattern = regexp.MustCompile(`/b(\d+)/?$`)

// ParseBookLinks returns the absolute URLs of the books listed on a category
// page, in document order. Relative links are resolved against pageURL.
func ParseBookLinks(markup string, pageURL *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, &MalformedPageError{Reason: fmt.Sprintf("read markup: %v", err)}
	}

	links := make([]string, 0)
	var resolveErr error
	doc.Find(bookLinkSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			resolveErr = &MalformedPageError{Reason: fmt.Sprintf("book link %q: %v", href, err)}
			return false
		}
		if pageURL != nil {
			ref = pageURL.ResolveReference(ref)
		}
		links = append(links, ref.String())
		return true
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	return links, nil
}

// ParseLastPage reads the highest page number from the category pagination,
// which is the text of its last page link.
func ParseLastPage(markup string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return 0, &ParseError{Reason: "read markup", Err: err}
	}

	last := doc.Find(paginationSelector).Last()
	if last.Length() == 0 {
		return 0, &ParseError{Reason: "no pagination links"}
	}

	text := strings.TrimSpace(last.Text())
	page, err := strconv.Atoi(text)
	if err != nil {
		return 0, &ParseError{Reason: fmt.Sprintf("page link text %q", text), Err: err}
	}
	if page < 1 {
		return 0, &ParseError{Reason: fmt.Sprintf("page number %d out of range", page)}
	}
	return page, nil
}

// BookID extracts the numeric id from a book URL such as
// https://tululu.org/b239/.
func BookID(bookURL string) (string, error) {
	u, err := url.Parse(bookURL)
	if err != nil {
		return "", &MalformedPageError{Reason: fmt.Sprintf("book url %q: %v", bookURL, err)}
	}
	match := bookIDPattern.FindStringSubmatch(u.Path)
	if match == nil {
		return "", &MalformedPageError{Reason: fmt.Sprintf("book url %q carries no id", bookURL)}
	}
	return match[1], nil
}
