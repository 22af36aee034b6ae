package housekeeping

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"simrig-booking-backend/config"
	"simrig-booking-backend/internal/localtime"
)

// Expirer cancels queue entries left over from earlier business dates.
type Expirer interface {
	ExpireQueueEntries(ctx context.Context, beforeDate string, now time.Time) (int64, error)
}

// Service periodically closes the walk-in queue of past operating days so
// stale tickets do not hold line positions.
type Service struct {
	cfg    config.HousekeepingConfig
	store  Expirer
	zone   *time.Location
	now    localtime.Clock
	logger *zap.Logger
}

func NewService(cfg config.HousekeepingConfig, business config.BusinessConfig, store Expirer, now localtime.Clock, logger *zap.Logger) (*Service, error) {
	zone, err := localtime.LoadZone(business.Timezone)
	if err != nil {
		return nil, fmt.Errorf("business timezone: %w", err)
	}
	if now == nil {
		now = localtime.SystemClock
	}
	return &Service{cfg: cfg, store: store, zone: zone, now: now, logger: logger}, nil
}

// Run sweeps once and then every configured interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("Housekeeping is disabled. Not starting.")
		return
	}
	s.logger.Info("Starting housekeeping", zap.Duration("interval", s.cfg.Interval))

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Housekeeping shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SweepOnce cancels every waiting or called entry dated before today and
// returns how many were cancelled.
func (s *Service) SweepOnce(ctx context.Context) int64 {
	now := s.now()
	today := localtime.BusinessDate(now, s.zone)
	n, err := s.store.ExpireQueueEntries(ctx, today, now)
	if err != nil {
		s.logger.Error("Error expiring queue entries", zap.String("before", today), zap.Error(err))
		return 0
	}
	if n > 0 {
		s.logger.Info("Expired stale queue entries", zap.String("before", today), zap.Int64("count", n))
	}
	return n
}
