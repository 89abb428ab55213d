package scraper

import (
	"context"
	"errors"

	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/parser"
	"github.com/aluiziolira/go-scrape-tululu/pipeline"
)

// Skippable reports whether err only invalidates the current page or book.
// Redirects, transport failures, malformed markup and records the pipeline
// rejects are skippable; filesystem failures and cancellation end the run.
func Skippable(err error) bool {
	if err == nil {
		return false
	}
	return fetch.IsRedirect(err) || fetch.IsTransport(err) || parser.IsMalformed(err) || pipeline.IsInvalidRecord(err)
}

// ErrorLabel maps an error to a short label for logs and metrics.
func ErrorLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	if fetch.IsRedirect(err) {
		return "redirect"
	}
	var transport *fetch.TransportError
	if errors.As(err, &transport) {
		return transport.Kind
	}
	if parser.IsMalformed(err) {
		return "malformed"
	}
	if pipeline.IsInvalidRecord(err) {
		return "invalid_record"
	}
	if parser.IsParseError(err) {
		return "parse"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}
