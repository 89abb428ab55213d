// Package pipeline accumulates crawled books and writes the manifest once.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// InvalidRecordError reports a book that Process refused to add to the
// manifest.
type InvalidRecordError struct {
	Page     int
	Position int
	Err      error
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record on page %d position %d: %v", e.Page, e.Position, e.Err)
}

func (e *InvalidRecordError) Unwrap() error {
	return e.Err
}

// IsInvalidRecord reports whether err is or wraps an *InvalidRecordError.
func IsInvalidRecord(err error) bool {
	var invalid *InvalidRecordError
	return errors.As(err, &invalid)
}

// OutputWriter defines the interface for manifest output.
type OutputWriter interface {
	Write(manifest models.Manifest) error
	Close() error
	Validate() error
}

// Entry is a book together with where it was found. Page and Position fix
// the book's place in the manifest regardless of completion order.
type Entry struct {
	Page     int
	Position int
	Book     *models.Book
}

// Pipeline validates submitted books, collects them on worker goroutines and
// writes them, ordered by page and position, when it is closed.
type Pipeline struct {
	writer  OutputWriter
	entryCh chan Entry

	wg sync.WaitGroup

	entriesMu sync.Mutex
	entries   []Entry
	manifest  models.Manifest

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a modest in-memory buffer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:   writer,
		entryCh:  make(chan Entry, 256),
		metrics:  newMetrics(),
		shutdown: make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process validates an entry and enqueues it for the manifest. A book that
// fails validation is counted, logged and returned as *InvalidRecordError.
func (p *Pipeline) Process(entry Entry) error {
	if entry.Book == nil {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	if err := parser.ValidateBook(entry.Book); err != nil {
		p.metrics.addValidation("invalid_record")
		slog.Warn("dropping invalid record",
			slog.Int("page", entry.Page),
			slog.Int("position", entry.Position),
			slog.Any("error", err),
		)
		return &InvalidRecordError{Page: entry.Page, Position: entry.Position, Err: err}
	}
	return p.enqueue(entry)
}

// Close stops accepting entries, waits for the workers, and writes the
// ordered manifest exactly once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	alreadyClosed := p.closed
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.entryCh)
	})
	p.wg.Wait()

	if alreadyClosed {
		return p.Err()
	}

	p.entriesMu.Lock()
	sort.SliceStable(p.entries, func(i, j int) bool {
		if p.entries[i].Page != p.entries[j].Page {
			return p.entries[i].Page < p.entries[j].Page
		}
		return p.entries[i].Position < p.entries[j].Position
	})
	manifest := make(models.Manifest, 0, len(p.entries))
	for _, entry := range p.entries {
		manifest = append(manifest, *entry.Book)
	}
	p.manifest = manifest
	p.entriesMu.Unlock()

	if err := p.writer.Write(manifest); err != nil {
		p.setErr(fmt.Errorf("write manifest: %w", err))
	}
	return p.Err()
}

// Manifest returns the ordered books. It is populated by Close.
func (p *Pipeline) Manifest() models.Manifest {
	p.entriesMu.Lock()
	defer p.entriesMu.Unlock()
	out := make(models.Manifest, len(p.manifest))
	copy(out, p.manifest)
	return out
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_books"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Int("validation_errors", len(validation)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for entry := range p.entryCh {
		p.entriesMu.Lock()
		p.entries = append(p.entries, entry)
		p.entriesMu.Unlock()
		p.metrics.incrementProcessed()
	}
}

func (p *Pipeline) enqueue(entry Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.entryCh <- entry:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	p.err = err
	p.closed = true
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_books":   m.processed,
		"validation_errors": copyValidation,
	}
}
