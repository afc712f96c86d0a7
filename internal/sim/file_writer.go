package sim

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"netsir-sim/internal/telemetry"
)

// FileWriter writes the result log and, optionally, per-node records as JSONL.
type FileWriter struct {
	mu        sync.Mutex
	results   *os.File
	buf       *bufio.Writer
	nodeFile  *os.File
	nodeEnc   *json.Encoder
	closeOnce sync.Once
	closeErr  error
}

// NewFileWriter creates a FileWriter. nodePath may be empty to skip node records.
func NewFileWriter(resultPath, nodePath string) (*FileWriter, error) {
	rf, err := os.Create(resultPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{results: rf, buf: bufio.NewWriter(rf)}
	if nodePath != "" {
		nf, err := os.Create(nodePath)
		if err != nil {
			rf.Close()
			return nil, err
		}
		fw.nodeFile = nf
		fw.nodeEnc = json.NewEncoder(nf)
	}
	return fw, nil
}

// NextResultPath returns dir/output<k>.csv where k is the number of entries
// already in dir. The directory is created when missing.
func NextResultPath(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read output dir: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("output%d.csv", len(entries))), nil
}

// WriteHeader writes the two-line result-log header.
func (f *FileWriter) WriteHeader() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.buf.WriteString(telemetry.ResultHeader)
	return err
}

// WriteRound appends one result-log record.
func (f *FileWriter) WriteRound(row telemetry.RoundRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.buf.WriteString(telemetry.FormatResult(row)); err != nil {
		return err
	}
	return f.buf.Flush()
}

// WriteNodes logs node rows, if enabled.
func (f *FileWriter) WriteNodes(rows []telemetry.NodeRow) error {
	if f.nodeEnc == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if err := f.nodeEnc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the underlying files. Safe to call more than once.
func (f *FileWriter) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if err := f.buf.Flush(); err != nil {
			f.closeErr = err
		}
		if err := f.results.Close(); err != nil && f.closeErr == nil {
			f.closeErr = err
		}
		if f.nodeFile != nil {
			if err := f.nodeFile.Close(); err != nil && f.closeErr == nil {
				f.closeErr = err
			}
		}
	})
	return f.closeErr
}
