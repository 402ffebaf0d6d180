package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mount_modeling/internal/models"
)

// Columns a result file must carry to be replayed into the mount.
var RequiredBatchColumns = []string{
	"RaJNow",
	"DecJNow",
	"RaJNowSolved",
	"DecJNowSolved",
	"Pierside",
	"LocalSiderealTime",
}

var (
	ErrMissingColumn = errors.New("result file is missing a required column")
	ErrRaggedColumns = errors.New("result file columns differ in length")
)

// WriteResultFile stores results column-wise: one JSON object whose keys
// are the PointResult field names, each holding one value per point.
func WriteResultFile(path string, results []models.PointResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create result dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	if err := EncodeResults(f, results); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func EncodeResults(w io.Writer, results []models.PointResult) error {
	columns := make(map[string][]json.RawMessage)
	for _, r := range results {
		row, err := toRow(r)
		if err != nil {
			return err
		}
		for k, v := range row {
			columns[k] = append(columns[k], v)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(columns); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

func toRow(r models.PointResult) (map[string]json.RawMessage, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode point %d: %w", r.Index, err)
	}
	var row map[string]json.RawMessage
	if err := json.Unmarshal(b, &row); err != nil {
		return nil, fmt.Errorf("pivot point %d: %w", r.Index, err)
	}
	return row, nil
}

// ReadResultFile loads a file written by WriteResultFile. The required
// batch columns are checked before any row is decoded.
func ReadResultFile(path string) ([]models.PointResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open result file: %w", err)
	}
	defer f.Close()
	return DecodeResults(f)
}

func DecodeResults(r io.Reader) ([]models.PointResult, error) {
	var columns map[string][]json.RawMessage
	if err := json.NewDecoder(r).Decode(&columns); err != nil {
		return nil, fmt.Errorf("decode result file: %w", err)
	}
	for _, name := range RequiredBatchColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	n := len(columns[RequiredBatchColumns[0]])
	for name, values := range columns {
		if len(values) != n {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrRaggedColumns, name, len(values), n)
		}
	}

	out := make([]models.PointResult, n)
	for i := 0; i < n; i++ {
		row := make(map[string]json.RawMessage, len(columns))
		for name, values := range columns {
			row[name] = values[i]
		}
		b, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if err := json.Unmarshal(b, &out[i]); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return out, nil
}
