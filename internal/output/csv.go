package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"

	"orderflow-engine/pkg/types"
)

var csvHeader = []string{"timestamp", "type", "price", "confidence", "pattern", "volatility", "delta", "sweep_levels", "reasons"}

// CSVLog appends one row per emitted signal. Status and Final are no-ops:
// the original's SAVE_TO_CSV option only ever logged signals.
type CSVLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVLog opens (or creates) path for appending and writes the header row
// if the file is new. Returns nil, nil if path is empty (CSV logging disabled).
func NewCSVLog(path string) (*CSVLog, error) {
	if path == "" {
		return nil, nil
	}

	info, statErr := os.Stat(path)
	isNew := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv log: %w", err)
	}

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
	}

	return &CSVLog{file: f, writer: w}, nil
}

func (c *CSVLog) Signal(s types.Signal) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	row := []string{
		s.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		string(s.Type),
		s.Price.String(),
		fmt.Sprintf("%d", s.Confidence),
		string(s.Pattern),
		string(s.Volatility),
		s.Delta.String(),
		fmt.Sprintf("%d", s.SweepLevels),
		strings.Join(s.Reasons, "|"),
	}
	c.writer.Write(row)
	c.writer.Flush()
}

func (c *CSVLog) Status(types.StatusUpdate) {}
func (c *CSVLog) Final(types.FinalStats)    {}

// Close flushes and closes the underlying file.
func (c *CSVLog) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}
