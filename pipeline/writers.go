package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

var csvHeader = []string{"reviewer_id", "useful_votes", "reviewer_name", "status", "rating", "published_at", "body", "source_url", "crawled_at"}

// CSVWriter writes comments to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// InsertMany appends comments to the CSV output.
func (cw *CSVWriter) InsertMany(_ context.Context, comments []*models.Comment) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, c := range comments {
		crawledAt := ""
		if !c.CrawledAt.IsZero() {
			crawledAt = c.CrawledAt.Format(time.RFC3339)
		}
		record := []string{
			c.ReviewerID,
			strconv.Itoa(c.UsefulVotes),
			c.ReviewerName,
			c.Status,
			c.Rating,
			c.PublishedAt,
			c.Body,
			c.SourceURL,
			crawledAt,
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate re-reads the file and checks the header and that at least one
// comment row follows it.
func (cw *CSVWriter) Validate() error {
	f, err := os.Open(cw.file.Name())
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(csvHeader, ",") {
		return fmt.Errorf("csv header mismatch: %v", header)
	}
	if _, err := reader.Read(); errors.Is(err, io.EOF) {
		return fmt.Errorf("csv file %s has no comment rows", cw.file.Name())
	} else if err != nil {
		return fmt.Errorf("read csv record: %w", err)
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// InsertMany appends comments in JSONL format.
func (jw *JSONWriter) InsertMany(_ context.Context, comments []*models.Comment) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, c := range comments {
		if err := jw.encoder.Encode(c); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate checks that the first line decodes into a comment with a
// reviewer id.
func (jw *JSONWriter) Validate() error {
	f, err := os.Open(jw.file.Name())
	if err != nil {
		return fmt.Errorf("open json file: %w", err)
	}
	defer f.Close()

	var first models.Comment
	if err := json.NewDecoder(f).Decode(&first); errors.Is(err, io.EOF) {
		return fmt.Errorf("json file %s has no comment records", jw.file.Name())
	} else if err != nil {
		return fmt.Errorf("decode json record: %w", err)
	}
	if first.ReviewerID == "" {
		return fmt.Errorf("json record without reviewer_id")
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
