package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

func sampleComment() *models.Comment {
	return &models.Comment{
		ReviewerID:   "1403047781",
		UsefulVotes:  12,
		ReviewerName: "影迷甲",
		Status:       "看过",
		Rating:       "推荐",
		PublishedAt:  "2018-07-06",
		Body:         "好看, \"真的\"",
		SourceURL:    "https://movie.douban.com/subject/26752088/comments",
		CrawledAt:    time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
	}
}

func TestCSVWriterInsertMany(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "comments.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.InsertMany(context.Background(), []*models.Comment{sampleComment()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.InsertMany(context.Background(), nil); err != nil {
		t.Fatalf("write empty batch: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "reviewer_id" || records[0][1] != "useful_votes" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][1] != "12" || records[1][6] != "好看, \"真的\"" || records[1][8] != "2025-11-04T13:09:13Z" {
		t.Fatalf("unexpected row: %v", records[1])
	}
}

func TestJSONWriterInsertMany(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "comments.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.InsertMany(context.Background(), []*models.Comment{sampleComment(), sampleComment()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.Comment
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.ReviewerID != "1403047781" || decoded.Rating != "推荐" {
			t.Fatalf("decoded = %+v", decoded)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 2 {
		t.Fatalf("json lines=%d, want 2", count)
	}
}

func TestWriterValidateRejectsEmptyOutput(t *testing.T) {
	dir := t.TempDir()

	csvWriter, err := NewCSVWriter(filepath.Join(dir, "header-only.csv"))
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := csvWriter.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := csvWriter.Validate(); err == nil {
		t.Fatalf("header-only csv should fail validation")
	}

	jsonWriter, err := NewJSONWriter(filepath.Join(dir, "empty.jsonl"))
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := jsonWriter.InsertMany(context.Background(), nil); err != nil {
		t.Fatalf("write empty batch: %v", err)
	}
	if err := jsonWriter.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}
	if err := jsonWriter.Validate(); err == nil {
		t.Fatalf("empty jsonl should fail validation")
	}
}

func TestCSVWriterValidateRejectsForeignHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comments.csv")
	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := os.WriteFile(path, []byte("title,price\nA Light in the Attic,51.77\n"), 0o644); err != nil {
		t.Fatalf("overwrite csv: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("csv with a foreign header should fail validation")
	}
}

type failingSink struct {
	err    error
	closed bool
}

func (fs *failingSink) InsertMany(context.Context, []*models.Comment) error {
	return fs.err
}

func (fs *failingSink) Close() error {
	fs.closed = true
	return nil
}

func TestMultiSinkFansOut(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "comments.csv")
	jsonPath := filepath.Join(dir, "comments.jsonl")

	csvWriter, err := NewCSVWriter(csvPath)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	jsonWriter, err := NewJSONWriter(jsonPath)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	boom := errors.New("disk full")
	broken := &failingSink{err: boom}

	sink := NewMultiSink(csvWriter, broken, jsonWriter)
	err = sink.InsertMany(context.Background(), []*models.Comment{sampleComment()})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close multi sink: %v", err)
	}
	if !broken.closed {
		t.Fatalf("every sink should be closed")
	}
	if err := sink.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	// The JSON sink after the failing one still received the batch.
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}
