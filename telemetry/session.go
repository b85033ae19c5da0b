// Package telemetry profiles logged records per dataset and ships the
// profiles to local files, SQLite, or a remote backend.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"churnserve/db"
)

// Session is the process-wide telemetry state. Build one at startup and
// Close it on shutdown to flush what is left.
type Session struct {
	cfg     SessionConfig
	id      string
	log     *zap.Logger
	writers []Writer
	closers []io.Closer

	mu         sync.Mutex
	loggers    map[string]*Logger
	publishers []Publisher
	closed     bool

	stop chan struct{}
	done chan struct{}
}

type Option func(*Session)

// WithWriter adds a writer next to the ones named in the session config.
func WithWriter(w Writer) Option {
	return func(s *Session) {
		s.writers = append(s.writers, w)
	}
}

func NewSession(cfg SessionConfig, log *zap.Logger, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FrequentItems <= 0 {
		cfg.FrequentItems = DefaultSessionConfig().FrequentItems
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Session{
		cfg:     cfg,
		id:      uuid.NewString(),
		loggers: make(map[string]*Logger),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.log = log.With(zap.String("session_id", s.id))

	if err := s.buildWriters(); err != nil {
		s.closeResources()
		return nil, err
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Rotation > 0 {
		go s.rotate(cfg.Rotation)
	} else {
		close(s.done)
	}

	s.log.Info("telemetry session started",
		zap.String("project", cfg.Project),
		zap.String("pipeline", cfg.Pipeline),
		zap.Int("writers", len(s.writers)),
		zap.Duration("rotation", cfg.Rotation))
	return s, nil
}

func (s *Session) buildWriters() error {
	for _, wc := range s.cfg.Writers {
		switch wc.Type {
		case WriterLocal:
			s.writers = append(s.writers, NewLocalWriter(wc.OutputPath))
		case WriterSQLite:
			store, err := db.Open(wc.OutputPath)
			if err != nil {
				return fmt.Errorf("open sqlite writer: %w", err)
			}
			s.closers = append(s.closers, store)
			s.writers = append(s.writers, NewSQLiteWriter(store))
		case WriterBackend:
			w, err := NewBackendWriter(s.cfg.Backend, s.log)
			if err != nil {
				return err
			}
			s.writers = append(s.writers, w)
		}
	}
	return nil
}

func (s *Session) ID() string {
	return s.id
}

// Logger returns the logger for dataset name, creating it on first use.
// The dataset timestamp of an existing logger is kept.
func (s *Session) Logger(name string, datasetTimestamp time.Time) (*Logger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if l, ok := s.loggers[name]; ok {
		return l, nil
	}
	l := newLogger(s, name, datasetTimestamp.UTC())
	s.loggers[name] = l
	return l, nil
}

func (s *Session) Subscribe(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishers = append(s.publishers, p)
}

func (s *Session) publish(r Record) {
	s.mu.Lock()
	publishers := s.publishers
	s.mu.Unlock()
	for _, p := range publishers {
		p.Publish(r)
	}
}

// Flush writes every logger's current profile.
func (s *Session) Flush(ctx context.Context) error {
	var errs error
	for _, l := range s.snapshotLoggers() {
		errs = multierr.Append(errs, l.Flush(ctx))
	}
	return errs
}

// Close stops rotation, flushes all loggers and releases writer resources.
// Calling Close more than once is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	var errs error
	for _, l := range s.snapshotLoggers() {
		errs = multierr.Append(errs, l.close(ctx))
	}
	errs = multierr.Append(errs, s.closeResources())
	s.log.Info("telemetry session closed")
	return errs
}

func (s *Session) snapshotLoggers() []*Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	loggers := make([]*Logger, 0, len(s.loggers))
	for _, l := range s.loggers {
		loggers = append(loggers, l)
	}
	return loggers
}

func (s *Session) closeResources() error {
	var errs error
	for _, c := range s.closers {
		errs = multierr.Append(errs, c.Close())
	}
	s.closers = nil
	return errs
}

func (s *Session) rotate(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.Flush(context.Background()); err != nil {
				s.log.Warn("profile rotation failed", zap.Error(err))
			}
		}
	}
}
