package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

var ErrSessionClosed = errors.New("telemetry session closed")

// Record is one mapping passed to Logger.Log, as seen by publishers.
type Record struct {
	Dataset   string         `json:"dataset"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Publisher receives every logged record after it has been profiled.
type Publisher interface {
	Publish(Record)
}

// Logger profiles the records of one dataset. Records accumulate into the
// current profile until Flush hands it to the session's writers.
type Logger struct {
	session          *Session
	name             string
	datasetTimestamp time.Time
	log              *zap.Logger

	mu      sync.Mutex
	profile *DatasetProfile
	closed  bool
}

func newLogger(s *Session, name string, datasetTimestamp time.Time) *Logger {
	return &Logger{
		session:          s,
		name:             name,
		datasetTimestamp: datasetTimestamp,
		log:              s.log.With(zap.String("dataset", name)),
		profile:          NewDatasetProfile(name, s.id, datasetTimestamp, s.cfg.FrequentItems),
	}
}

func (l *Logger) Name() string {
	return l.name
}

// Log tracks one mapping. Column names are NFC-normalized so visually equal
// keys land in the same column.
func (l *Logger) Log(ctx context.Context, record map[string]any) error {
	if record == nil {
		return errors.New("telemetry: nil record")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	normalized := make(map[string]any, len(record))
	for key, value := range record {
		normalized[norm.NFC.String(key)] = value
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrSessionClosed
	}
	l.profile.Track(normalized)
	l.mu.Unlock()

	if l.session.cfg.Verbose {
		l.log.Debug("record logged", zap.Int("columns", len(normalized)))
	}
	l.session.publish(Record{Dataset: l.name, Timestamp: time.Now().UTC(), Data: normalized})
	return nil
}

// Profile returns a snapshot of the current window without resetting it.
func (l *Logger) Profile() ProfileSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summaryLocked()
}

// Flush writes the current profile to every writer and starts a new one.
// Empty profiles are skipped. When every writer fails the window is merged
// back so the next flush retries it.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	if l.profile.RecordCount() == 0 {
		l.mu.Unlock()
		return nil
	}
	stale := l.profile
	summary := l.summaryLocked()
	l.profile = NewDatasetProfile(l.name, l.session.id, l.datasetTimestamp, l.session.cfg.FrequentItems)
	l.mu.Unlock()

	var errs error
	failed := 0
	for _, w := range l.session.writers {
		if err := w.Write(ctx, summary); err != nil {
			errs = multierr.Append(errs, err)
			failed++
		}
	}
	if errs == nil {
		l.log.Info("profile flushed", zap.Int64("records", summary.RecordCount), zap.Int("writers", len(l.session.writers)))
		return nil
	}

	if failed == len(l.session.writers) {
		l.mu.Lock()
		stale.Merge(l.profile)
		l.profile = stale
		l.mu.Unlock()
		l.log.Error("profile flush failed, keeping window", zap.Int64("records", summary.RecordCount), zap.Error(errs))
		return errs
	}
	l.log.Error("profile flush partially failed", zap.Int64("records", summary.RecordCount), zap.Int("failed_writers", failed), zap.Error(errs))
	return errs
}

func (l *Logger) close(ctx context.Context) error {
	err := l.Flush(ctx)
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return err
}

func (l *Logger) summaryLocked() ProfileSummary {
	summary := l.profile.Summary()
	summary.Project = l.session.cfg.Project
	summary.Pipeline = l.session.cfg.Pipeline
	return summary
}
