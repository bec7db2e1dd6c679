// Package bucketlog appends scored domains to per-run, per-hour,
// per-severity JSON-lines files.
package bucketlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/phishcatch/internal/model"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755

	hourLayout = "2006-01-02-15"
)

// Writer appends detection records to bucket files under a fixed directory.
// No file handle is held between appends, so hourly rotation needs no
// coordination.
type Writer struct {
	mu    sync.Mutex
	dir   string
	runID string
}

// Open prepares dir for writing and returns a Writer for the given run.
func Open(dir, runID string) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("bucketlog: directory is empty")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("bucketlog: run id is empty")
	}
	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return nil, fmt.Errorf("bucketlog: mkdir: %w", err)
	}
	return &Writer{dir: dir, runID: runID}, nil
}

// FileName returns pc_<run>.<YYYY-MM-DD-HH>.<bucket>.log for t in local time.
func FileName(runID string, t time.Time, bucket int) string {
	return fmt.Sprintf("pc_%s.%s.%d.log", runID, t.Local().Format(hourLayout), bucket)
}

// Path returns the file a record stamped t in bucket is written to.
func (w *Writer) Path(t time.Time, bucket int) string {
	return filepath.Join(w.dir, FileName(w.runID, t, bucket))
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// RunID returns the run identifier embedded in file names.
func (w *Writer) RunID() string { return w.runID }

// Append writes record as one line to its bucket file and returns the path.
// The line is written with a single write call on an O_APPEND descriptor.
func (w *Writer) Append(record *model.DetectionRecord) (string, error) {
	if record == nil {
		return "", errors.New("bucketlog: nil record")
	}
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if record.Time == 0 {
		record.Time = float64(ts.UnixNano()) / float64(time.Second)
	}

	line, err := encodeLine(record)
	if err != nil {
		return "", err
	}

	path := w.Path(ts, record.Bucket)

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return "", fmt.Errorf("bucketlog: open %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("bucketlog: write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("bucketlog: close %s: %w", filepath.Base(path), err)
	}
	return path, nil
}

// Add implements the processor sink contract.
func (w *Writer) Add(record *model.DetectionRecord) error {
	_, err := w.Append(record)
	return err
}

func encodeLine(record *model.DetectionRecord) ([]byte, error) {
	out := *record
	if out.Tags == nil {
		out.Tags = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("bucketlog: marshal record: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadFile returns every complete record in a bucket file. A partially
// written trailing line is ignored.
func ReadFile(path string) ([]model.DetectionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bucketlog: open for read: %w", err)
	}
	defer f.Close()

	var records []model.DetectionRecord
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return records, fmt.Errorf("bucketlog: read: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			return records, nil
		}

		var rec model.DetectionRecord
		if uerr := json.Unmarshal(line, &rec); uerr != nil {
			return records, fmt.Errorf("bucketlog: decode %s: %w", filepath.Base(path), uerr)
		}
		records = append(records, rec)

		if errors.Is(err, io.EOF) {
			return records, nil
		}
	}
}
