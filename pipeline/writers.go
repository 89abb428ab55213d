package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

const (
	// ManifestName is the file name of the JSON manifest.
	ManifestName = "books_description.json"
	// CSVManifestName is the file name of the CSV rendering of the manifest.
	CSVManifestName = "books_description.csv"
)

var errAlreadyWritten = errors.New("manifest already written")

// JSONWriter writes the manifest as a single JSON array. The file is created
// by Write, so an interrupted run leaves no manifest behind.
type JSONWriter struct {
	filename string
	file     *os.File
	mu       sync.Mutex
}

// NewJSONWriter prepares a JSON writer, creating the parent directory.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONWriter{filename: filename}, nil
}

// Write encodes the whole manifest. Non-ASCII text is written as-is.
func (jw *JSONWriter) Write(manifest models.Manifest) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.file != nil {
		return errAlreadyWritten
	}
	if manifest == nil {
		manifest = models.Manifest{}
	}

	f, err := os.Create(jw.filename)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	jw.file = f

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(manifest); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := buffer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close closes the underlying file, if one was written.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.file == nil {
		return nil
	}
	return jw.file.Close()
}

// Validate ensures the JSON file exists and has data.
func (jw *JSONWriter) Validate() error {
	info, err := os.Stat(jw.filename)
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// CSVWriter writes the manifest as CSV, one row per book.
type CSVWriter struct {
	filename string
	file     *os.File
	mu       sync.Mutex
}

// NewCSVWriter prepares a CSV writer, creating the parent directory.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &CSVWriter{filename: filename}, nil
}

// Write emits the header row followed by the manifest. Genres and comments
// are joined with "; ".
func (cw *CSVWriter) Write(manifest models.Manifest) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.file != nil {
		return errAlreadyWritten
	}

	f, err := os.Create(cw.filename)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	cw.file = f

	writer := csv.NewWriter(f)
	header := []string{"title", "author", "genres", "comments", "image_url"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, book := range manifest {
		record := []string{
			book.Title,
			book.Author,
			strings.Join(book.Genres, "; "),
			strings.Join(book.Comments, "; "),
			book.ImageURL,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close closes the file handle, if one was written.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.file == nil {
		return nil
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.filename)
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
