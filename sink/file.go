// Package sink provides durable side-channels for the gateway usage log.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lumenlab/aigateway"
)

// File persists the usage log as a JSON snapshot on local disk.
type File struct {
	path string
}

var _ aigateway.Sink = (*File)(nil)

// NewFile creates a file sink writing to the given path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Persist writes the full log snapshot atomically (write to temp, rename).
func (f *File) Persist(_ context.Context, records []aigateway.UsageRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("sink: marshal usage log: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".usage-*")
	if err != nil {
		return fmt.Errorf("sink: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sink: write usage log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("sink: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("sink: replace usage log: %w", err)
	}
	return nil
}

// Load reads a previously persisted usage log. A missing file is not an
// error; it returns an empty log.
func (f *File) Load() ([]aigateway.UsageRecord, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sink: read usage log: %w", err)
	}

	var records []aigateway.UsageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("sink: parse usage log: %w", err)
	}
	return records, nil
}
