package rep

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ScalarSink receives per-step training metrics.
type ScalarSink interface {
	RecordScalar(name string, step int, value float64)
}

// NopSink discards all metrics.
type NopSink struct{}

// RecordScalar implements ScalarSink.
func (NopSink) RecordScalar(string, int, float64) {}

// scalarRecord is one line of the scalars file.
type scalarRecord struct {
	Name  string    `json:"name"`
	Step  int       `json:"step"`
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// TrainLogger writes a human-readable training log plus a machine-readable
// scalar stream (JSON lines) under one directory.
type TrainLogger struct {
	logFile    *os.File
	scalarFile *os.File
	logger     *log.Logger
	scalars    *json.Encoder
}

// NewTrainLogger creates the log directory and both files, truncating any
// previous run's output.
func NewTrainLogger(dir string) (*TrainLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.Create(filepath.Join(dir, "train_log.txt"))
	if err != nil {
		return nil, fmt.Errorf("create train log: %w", err)
	}
	scalarFile, err := os.Create(filepath.Join(dir, "scalars.jsonl"))
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("create scalar log: %w", err)
	}
	return &TrainLogger{
		logFile:    logFile,
		scalarFile: scalarFile,
		logger:     log.New(logFile, "", log.LstdFlags),
		scalars:    json.NewEncoder(scalarFile),
	}, nil
}

// Printf writes one line to the text log.
func (l *TrainLogger) Printf(format string, args ...interface{}) {
	l.logger.Printf(format, args...)
}

// RecordScalar implements ScalarSink.
func (l *TrainLogger) RecordScalar(name string, step int, value float64) {
	l.scalars.Encode(scalarRecord{Name: name, Step: step, Value: value, At: time.Now().UTC()})
}

// Close flushes and closes both files.
func (l *TrainLogger) Close() error {
	err := l.logFile.Close()
	if cerr := l.scalarFile.Close(); err == nil {
		err = cerr
	}
	return err
}
