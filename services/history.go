package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"greenthumb/config"
	apperrors "greenthumb/errors"
	"greenthumb/models"

	"go.uber.org/zap"
)

// HistoryTimeLayout is the timestamp format of the log, second precision
const HistoryTimeLayout = "2006-01-02 15:04:05"

// HistoryHeader is the fixed column order of the log
var HistoryHeader = []string{"timestamp", "humidity", "temperature", "diagnosis"}

// utf8BOM lets spreadsheet tools detect the encoding of the exported file
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// HistoryStore is an append-only record log
type HistoryStore interface {
	Append(ctx context.Context, record models.HistoryRecord) error
	// LoadAll returns every record in append order, or an empty slice when nothing was written yet
	LoadAll(ctx context.Context) ([]models.HistoryRecord, error)
}

// MostRecent returns the last n records newest first
func MostRecent(ctx context.Context, store HistoryStore, n int) ([]models.HistoryRecord, error) {
	records, err := store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	if n > len(records) {
		n = len(records)
	}

	out := make([]models.HistoryRecord, 0, n)
	for i := len(records) - 1; i >= len(records)-n; i-- {
		out = append(out, records[i])
	}
	return out, nil
}

// ExportCSV streams the full log, header included, in append order
func ExportCSV(ctx context.Context, store HistoryStore, w io.Writer) error {
	records, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	if err := encodeRows(&buf, HistoryHeader); err != nil {
		return apperrors.NewStoreError("failed to encode header", err)
	}
	for _, record := range records {
		if err := encodeRows(&buf, recordToRow(record)); err != nil {
			return apperrors.NewStoreError("failed to encode record", err)
		}
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// OpenHistoryStore builds the backend selected by HISTORY_BACKEND
func OpenHistoryStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (HistoryStore, error) {
	switch cfg.HistoryBackend {
	case config.HistoryBackendFirebase:
		return NewFirebaseHistoryStore(ctx, cfg.FirebaseDbUrl, cfg.FirebaseServiceAccountJSON, cfg.FirebaseHistoryPath, logger)
	case config.HistoryBackendCSV:
		return NewCSVHistoryStore(cfg.HistoryFile, logger), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}

// CSVHistoryStore keeps the log in a single UTF-8 CSV file
type CSVHistoryStore struct {
	path   string
	logger *zap.Logger
}

func NewCSVHistoryStore(path string, logger *zap.Logger) *CSVHistoryStore {
	return &CSVHistoryStore{
		path:   path,
		logger: logger,
	}
}

// Path returns the backing file location
func (s *CSVHistoryStore) Path() string {
	return s.path
}

// Append writes one row. A missing or empty file gets the BOM and header first,
// and a file whose last row lacks a line break gets one.
// Each call is a single write on an O_APPEND descriptor, so earlier rows are never touched.
func (s *CSVHistoryStore) Append(ctx context.Context, record models.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStoreError("append cancelled", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.NewStoreError("failed to create history directory", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return apperrors.NewStoreError("failed to open history file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperrors.NewStoreError("failed to stat history file", err)
	}

	var buf bytes.Buffer
	created := info.Size() == 0
	switch {
	case created:
		buf.Write(utf8BOM)
	case info.Size() == int64(len(utf8BOM)):
		// a bare BOM still needs its header
		tail := make([]byte, len(utf8BOM))
		if _, err := f.ReadAt(tail, 0); err != nil {
			return apperrors.NewStoreError("failed to read history file", err)
		}
		created = bytes.Equal(tail, utf8BOM)
		if !created && tail[len(tail)-1] != '\n' {
			buf.WriteByte('\n')
		}
	default:
		// a last row without its line break would swallow the new one
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err != nil {
			return apperrors.NewStoreError("failed to read history file", err)
		}
		if last[0] != '\n' {
			buf.WriteByte('\n')
		}
	}
	if created {
		if err := encodeRows(&buf, HistoryHeader); err != nil {
			return apperrors.NewStoreError("failed to encode header", err)
		}
	}
	if err := encodeRows(&buf, recordToRow(record)); err != nil {
		return apperrors.NewStoreError("failed to encode record", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return apperrors.NewStoreError("failed to append record", err)
	}
	if err := f.Sync(); err != nil {
		return apperrors.NewStoreError("failed to sync history file", err)
	}

	s.logger.Debug("History record appended",
		zap.String("path", s.path),
		zap.Time("timestamp", record.Timestamp),
		zap.Bool("created", created))
	return nil
}

// LoadAll reads the whole file in row order
func (s *CSVHistoryStore) LoadAll(ctx context.Context) ([]models.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStoreError("load cancelled", err)
	}

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return []models.HistoryRecord{}, nil
	}
	if err != nil {
		return nil, apperrors.NewStoreError("failed to open history file", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	if bom, err := reader.Peek(len(utf8BOM)); err == nil && bytes.Equal(bom, utf8BOM) {
		if _, err := reader.Discard(len(utf8BOM)); err != nil {
			return nil, apperrors.NewStoreError("failed to read history file", err)
		}
	}

	r := csv.NewReader(reader)
	r.FieldsPerRecord = len(HistoryHeader)

	records := []models.HistoryRecord{}
	header := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewStoreError("corrupt history file", err)
		}
		if header {
			header = false
			continue
		}

		record, err := rowToRecord(row)
		if err != nil {
			line, _ := r.FieldPos(0)
			return nil, apperrors.NewStoreError(fmt.Sprintf("corrupt history row at line %d", line), err)
		}
		records = append(records, record)
	}

	return records, nil
}

func encodeRows(w io.Writer, rows ...[]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func recordToRow(record models.HistoryRecord) []string {
	return []string{
		record.Timestamp.Format(HistoryTimeLayout),
		strconv.Itoa(record.Humidity),
		strconv.Itoa(record.Temperature),
		record.Diagnosis,
	}
}

func rowToRecord(row []string) (models.HistoryRecord, error) {
	ts, err := time.ParseInLocation(HistoryTimeLayout, row[0], time.Local)
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("invalid timestamp %q: %w", row[0], err)
	}
	humidity, err := strconv.Atoi(row[1])
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("invalid humidity %q: %w", row[1], err)
	}
	temperature, err := strconv.Atoi(row[2])
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("invalid temperature %q: %w", row[2], err)
	}
	return models.HistoryRecord{
		Timestamp:   ts,
		Humidity:    humidity,
		Temperature: temperature,
		Diagnosis:   row[3],
	}, nil
}
