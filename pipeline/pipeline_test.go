package pipeline

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

type mockWriter struct {
	mu        sync.Mutex
	manifests []models.Manifest
	closed    bool
	writeErr  error
}

func (mw *mockWriter) Write(manifest models.Manifest) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyManifest := make(models.Manifest, len(manifest))
	copy(copyManifest, manifest)
	mw.manifests = append(mw.manifests, copyManifest)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return nil
}

func (mw *mockWriter) writes() []models.Manifest {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	out := make([]models.Manifest, len(mw.manifests))
	copy(out, mw.manifests)
	return out
}

func TestPipelineValidation(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(1)

	valid := &models.Book{Title: "Moby Dick", Author: "Herman Melville"}
	untitled := &models.Book{Title: "", Author: "Anonymous"}
	invalid := &models.Book{Title: "", Author: ""}

	for i, book := range []*models.Book{valid, untitled} {
		if err := p.Process(Entry{Page: 1, Position: i, Book: book}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	err := p.Process(Entry{Page: 1, Position: 2, Book: invalid})
	if !IsInvalidRecord(err) {
		t.Fatalf("process invalid = %v, want *InvalidRecordError", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	writes := writer.writes()
	if len(writes) != 1 {
		t.Fatalf("manifest writes = %d, want exactly 1", len(writes))
	}
	if got := len(writes[0]); got != 2 {
		t.Fatalf("written books = %d, want 2", got)
	}

	metrics := p.GetMetrics()
	if processed := metrics["processed_books"].(int64); processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}
	validation := metrics["validation_errors"].(map[string]int)
	if validation["invalid_record"] != 1 {
		t.Fatalf("invalid_record = %d, want 1", validation["invalid_record"])
	}
}

func TestPipelineKeepsDuplicates(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(2)

	book := &models.Book{Title: "Poems", Author: "Anonymous"}
	for i := 0; i < 2; i++ {
		if err := p.Process(Entry{Page: 1, Position: i, Book: book}); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := len(p.Manifest()); got != 2 {
		t.Fatalf("manifest length = %d, want 2", got)
	}
}

func TestPipelineOrdersByPageAndPosition(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(4)

	var wg sync.WaitGroup
	for page := 3; page >= 1; page-- {
		for pos := 4; pos >= 0; pos-- {
			wg.Add(1)
			go func(page, pos int) {
				defer wg.Done()
				book := &models.Book{Title: strconv.Itoa(page) + "-" + strconv.Itoa(pos), Author: "A"}
				if err := p.Process(Entry{Page: page, Position: pos, Book: book}); err != nil {
					t.Errorf("process: %v", err)
				}
			}(page, pos)
		}
	}
	wg.Wait()

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	manifest := p.Manifest()
	if len(manifest) != 15 {
		t.Fatalf("manifest length = %d, want 15", len(manifest))
	}
	i := 0
	for page := 1; page <= 3; page++ {
		for pos := 0; pos <= 4; pos++ {
			want := strconv.Itoa(page) + "-" + strconv.Itoa(pos)
			if manifest[i].Title != want {
				t.Fatalf("manifest[%d] = %q, want %q", i, manifest[i].Title, want)
			}
			i++
		}
	}
}

func TestPipelineWritesEmptyManifest(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(1)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	writes := writer.writes()
	if len(writes) != 1 || len(writes[0]) != 0 {
		t.Fatalf("expected one empty manifest write, got %v", writes)
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(1)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	err := p.Process(Entry{Page: 1, Book: &models.Book{Title: "Late", Author: "A"}})
	if !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestPipelineCloseTwiceWritesOnce(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(writer)
	p.Start(1)

	if err := p.Process(Entry{Page: 1, Book: &models.Book{Title: "T", Author: "A"}}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if got := len(writer.writes()); got != 1 {
		t.Fatalf("manifest writes = %d, want 1", got)
	}
}

func TestPipelineWriteError(t *testing.T) {
	writer := &mockWriter{writeErr: errors.New("disk full")}
	p := NewPipeline(writer)
	p.Start(1)

	err := p.Close()
	if err == nil {
		t.Fatalf("expected write error")
	}
	if !errors.Is(err, writer.writeErr) {
		t.Fatalf("expected wrapped disk full error, got %v", err)
	}
}
