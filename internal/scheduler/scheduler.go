package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mediavault/internal/clock"
	obscontext "github.com/smallbiznis/mediavault/internal/observability/context"
	obslogger "github.com/smallbiznis/mediavault/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mediavault/internal/observability/metrics"
	"github.com/smallbiznis/mediavault/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/mediavault/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobExpireSubscriptions = "expire_subscriptions"

	lockKeyPrefix = "mediavault:scheduler:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	Locker          *ratelimit.Locker   `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
	Config          Config              `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	locker          *ratelimit.Locker
	obsMetrics      *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.SubscriptionSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		locker:          p.Locker,
		obsMetrics:      p.ObsMetrics,
	}, nil
}

// runJob runs fn under a deadline. Hitting the deadline is logged and swallowed;
// the next tick picks up whatever is left.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) (int, error),
) error {
	start := s.clock.Now()
	runID := s.genID.Generate().String()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	ctx = obscontext.WithRequestID(ctx, runID)

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)

	if s.locker != nil {
		key := lockKeyPrefix + name
		token, ok, err := s.locker.TryLock(ctx, key, timeout)
		if err != nil {
			s.obsMetrics.RecordSchedulerJob(ctx, name, "error")
			return fmt.Errorf("%s: lock: %w", name, err)
		}
		if !ok {
			log.Debug("scheduler.job.skipped", zap.String("reason", "lease_held"))
			s.obsMetrics.RecordSchedulerJob(ctx, name, "skipped")
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn("scheduler lease release failed", zap.Error(err))
			}
		}()
	}

	log.Info("scheduler.job.start", zap.Int("batch_size", batchSize))
	processed, err := fn(ctx)

	fields := []zap.Field{
		zap.Int64("duration_ms", s.clock.Now().Sub(start).Milliseconds()),
		zap.Int("processed_count", processed),
	}
	if err == nil {
		log.Info("scheduler.job.finish", fields...)
		s.obsMetrics.RecordSchedulerJob(ctx, name, "ok")
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out", append(fields, zap.Duration("timeout", timeout), zap.Error(err))...)
		s.obsMetrics.RecordSchedulerJob(ctx, name, "timeout")
		return nil
	}

	log.Warn("scheduler.job.finish", append(fields, zap.Error(err))...)
	s.obsMetrics.RecordSchedulerJob(ctx, name, "error")
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobExpireSubscriptions, func(ctx context.Context) error {
			return s.runJob(ctx, JobExpireSubscriptions, s.cfg.BatchSize, s.cfg.JobTimeout, s.ExpireSubscriptionsJob)
		}},
	}

	for _, job := range jobs {
		err = errors.Join(err, job.Run(parent))
	}
	return err
}

// ExpireSubscriptionsJob drains lapsed ACTIVE subscriptions in batches until a
// short batch comes back.
func (s *Scheduler) ExpireSubscriptionsJob(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		moved, err := s.subscriptionSvc.ExpireDue(ctx, s.cfg.BatchSize)
		total += moved
		if err != nil {
			return total, err
		}
		if moved < s.cfg.BatchSize {
			return total, nil
		}
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
