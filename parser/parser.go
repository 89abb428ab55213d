// Package parser extracts book records and links from the site's markup.
package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

const (
	headingSelector     = "h1"
	commentSelector     = "div.texts"
	commentTextSelector = "span.black"
	genreSelector       = "span.d_book a"
	coverSelector       = "div.bookimage img"

	titleSeparator = "::"
)

// ParseBookPage extracts a book record from book-detail markup.
//
// The heading must read "<title> :: <author>" with exactly one separator and
// the cover image must be present, otherwise *MalformedPageError is
// returned. A comment block without its text node is left out of Comments.
func ParseBookPage(markup string) (*models.Book, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, &MalformedPageError{Reason: fmt.Sprintf("read markup: %v", err)}
	}

	title, author, err := splitHeading(doc)
	if err != nil {
		return nil, err
	}

	comments := make([]string, 0)
	doc.Find(commentSelector).Each(func(_ int, block *goquery.Selection) {
		text := block.Find(commentTextSelector).First()
		if text.Length() == 0 {
			return
		}
		comments = append(comments, text.Text())
	})

	genres := make([]string, 0)
	doc.Find(genreSelector).Each(func(_ int, genre *goquery.Selection) {
		genres = append(genres, genre.Text())
	})

	imageURL, ok := doc.Find(coverSelector).First().Attr("src")
	if !ok {
		return nil, &MalformedPageError{Reason: "cover image not found"}
	}

	return &models.Book{
		Title:    title,
		Author:   author,
		Genres:   genres,
		Comments: comments,
		ImageURL: imageURL,
	}, nil
}

func splitHeading(doc *goquery.Document) (string, string, error) {
	heading := doc.Find(headingSelector).First()
	if heading.Length() == 0 {
		return "", "", &MalformedPageError{Reason: "heading not found"}
	}

	parts := strings.Split(heading.Text(), titleSeparator)
	if len(parts) != 2 {
		return "", "", &MalformedPageError{
			Reason: fmt.Sprintf("heading %q has %d %q separators, want 1", strings.TrimSpace(heading.Text()), len(parts)-1, titleSeparator),
		}
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

// ValidateBook rejects a record that identifies nothing: a nil book or one
// whose heading carried neither a title nor an author. A record missing only
// one of the two is kept.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.Title) == "" && strings.TrimSpace(b.Author) == "" {
		return fmt.Errorf("book has neither title nor author")
	}
	return nil
}
