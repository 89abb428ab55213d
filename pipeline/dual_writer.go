package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// DualWriter writes books_description.json and books_description.csv side by
// side in one directory. The JSON manifest is authoritative: it is written
// first, and a CSV failure is reported without removing it.
type DualWriter struct {
	jsonWriter *JSONWriter
	csvWriter  *CSVWriter
	mu         sync.Mutex
}

// NewDualWriter prepares both manifests under dir.
func NewDualWriter(dir string) (*DualWriter, error) {
	jsonWriter, err := NewJSONWriter(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("json manifest: %w", err)
	}
	csvWriter, err := NewCSVWriter(filepath.Join(dir, CSVManifestName))
	if err != nil {
		return nil, fmt.Errorf("csv manifest: %w", err)
	}
	return &DualWriter{jsonWriter: jsonWriter, csvWriter: csvWriter}, nil
}

// Paths returns the JSON and CSV manifest paths.
func (dw *DualWriter) Paths() (string, string) {
	return dw.jsonWriter.filename, dw.csvWriter.filename
}

func (dw *DualWriter) Write(manifest models.Manifest) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.jsonWriter.Write(manifest); err != nil {
		return fmt.Errorf("write %s: %w", ManifestName, err)
	}
	if err := dw.csvWriter.Write(manifest); err != nil {
		return fmt.Errorf("write %s (json manifest kept): %w", CSVManifestName, err)
	}
	return nil
}

func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return errors.Join(dw.jsonWriter.Close(), dw.csvWriter.Close())
}

// Validate checks that both manifests were written.
func (dw *DualWriter) Validate() error {
	return errors.Join(dw.jsonWriter.Validate(), dw.csvWriter.Validate())
}
