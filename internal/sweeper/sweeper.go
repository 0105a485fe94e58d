// Package sweeper runs periodic purges of expired rows.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PurgeFunc deletes whatever is expired at now and reports how many rows went.
type PurgeFunc func(ctx context.Context, now time.Time) (int64, error)

// Sweeper calls a PurgeFunc on a fixed interval. Errors are logged and the
// next tick runs as usual.
type Sweeper struct {
	name     string
	purge    PurgeFunc
	logger   *zap.SugaredLogger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Sweeper)

func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTimeout bounds a single purge call.
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(name string, purge PurgeFunc, logger *zap.SugaredLogger, opts ...Option) *Sweeper {
	s := &Sweeper{
		name:     name,
		purge:    purge,
		logger:   logger,
		interval: time.Minute,
		timeout:  30 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce performs one purge pass.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	n, err := s.purge(ctx, now)
	if err != nil {
		s.logger.Warnw("sweep failed", "sweeper", s.name, "err", err)
		return 0, err
	}
	if n > 0 {
		s.logger.Infow("sweep removed rows", "sweeper", s.name, "count", n, "before", now.Format(time.RFC3339))
	}
	return n, nil
}

// Run blocks, purging every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Debugw("sweeper started", "sweeper", s.name, "interval", s.interval.String())
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debugw("sweeper stopped", "sweeper", s.name)
			return
		case <-t.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}
