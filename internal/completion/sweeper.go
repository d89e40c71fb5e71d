// Package completion marks elapsed appointments as completed on a schedule.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

const lockName = "completion-sweep"

// Completer is the appointment operation a sweep drives.
type Completer interface {
	CompleteElapsed(ctx context.Context, cutoff time.Time) (int, error)
}

type Sweeper struct {
	completer Completer
	locker    redisclient.Locker
	grace     time.Duration
	timeout   time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSweeper completes appointments that ended more than grace ago. Only
// one replica sweeps at a time; the others skip their turn.
func NewSweeper(completer Completer, locker redisclient.Locker, grace time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		completer: completer,
		locker:    locker,
		grace:     grace,
		timeout:   20 * time.Second,
		logger:    logger,
		now:       time.Now,
	}
}

// RunOnce performs one sweep. It reports how many appointments it completed;
// losing the lock to another replica is not an error.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	cutoff := s.now().Add(-s.grace)

	var completed int
	err := s.locker.WithLock(runCtx, lockName, func(ctx context.Context) error {
		var err error
		completed, err = s.completer.CompleteElapsed(ctx, cutoff)
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		s.logger.Debug().Msg("another replica holds the sweep lock, skipping")
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("completion sweep: %w", err)
	}

	s.logger.Info().
		Int("completed", completed).
		Time("cutoff", cutoff).
		Dur("took", time.Since(start)).
		Msg("completion sweep finished")
	return completed, nil
}

// Run sweeps once at startup and then on every tick of spec until ctx ends.
func (s *Sweeper) Run(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("completion sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid completion schedule %q: %w", spec, err)
	}

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("completion sweep failed")
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
