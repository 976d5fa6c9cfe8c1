package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/attachvault/internal/attachments"
	"github.com/charlesng35/attachvault/internal/messages"
	"github.com/charlesng35/attachvault/pkg/logger"
)

const defaultCacheSpec = "@hourly"

// Cleaner coordinates background maintenance: sweeping dead attachment cache
// entries and pruning expired messages.
type Cleaner struct {
	cache    *attachments.Cache
	messages *messages.Service
	cron     *cron.Cron
	log      *zap.Logger
	enabled  bool

	cacheSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithCacheSchedule overrides the cron specification for the cache sweep.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding cleanup job being skipped.
func NewCleaner(cache *attachments.Cache, msgService *messages.Service, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		cache:         cache,
		messages:      msgService,
		cacheSchedule: defaultCacheSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.cache != nil || cleaner.messages != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at
// least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("maintenance sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Also used
// during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	var errs error

	if c.cache != nil {
		removed, err := c.cache.Cleanup(ctx)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if removed > 0 {
			c.log.Info("cache sweep removed entries", zap.Int("removed", removed))
		}
	}

	if c.messages != nil {
		removed, err := c.messages.Cleanup(ctx)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else if removed > 0 {
			c.log.Info("message sweep removed records", zap.Int64("removed", removed))
		}
	}

	if errs == nil {
		c.log.Debug("maintenance sweep finished", zap.Duration("elapsed", time.Since(start)))
	}
	return errs
}
