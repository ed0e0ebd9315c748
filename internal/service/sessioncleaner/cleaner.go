package sessioncleaner

import (
	"context"
	"time"
)

const defaultSweepInterval = time.Hour

// Part of repository.SessionRepo the cleaner needs
type sessionRepo interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Cleaner periodically deletes expired refresh sessions
// Without it abandoned sessions accumulate forever: expired rows are rejected
// on refresh but nothing else ever removes them
type Cleaner struct {
	sessions sessionRepo
	logger   logger
	interval time.Duration
}

func New(sessions sessionRepo, logger logger, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &Cleaner{
		sessions: sessions,
		logger:   logger,
		interval: interval,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled
func (c *Cleaner) Run(ctx context.Context) {
	c.sweep(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cleaner) sweep(ctx context.Context) {
	deleted, err := c.sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		c.logger.Error("expired sessions sweep failed", "error", err.Error())
		return
	}

	if deleted > 0 {
		c.logger.Info("expired sessions swept", "deleted", deleted)
	}
}
