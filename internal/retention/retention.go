// Package retention runs the periodic cleanup of realtime and moderation data.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"realtime-chat/internal/logger"
	"realtime-chat/internal/realtime"
	"realtime-chat/internal/repositories"
)

// StaleTyping is how old a typing record may get before it is treated as left
// behind by a client that went away without clearing it.
const StaleTyping = 30 * time.Second

const defaultCron = "*/5 * * * *"

// Notifier refreshes listener topics after a sweep deleted appeals.
type Notifier interface {
	Notify(ctx context.Context, topics ...string)
}

// Sweeper holds what a retention run touches.
type Sweeper struct {
	Realtime        realtime.Store
	Appeals         repositories.AppealRepository
	Hub             Notifier
	AppealRetention time.Duration
	AppealsTopic    string
	Now             func() time.Time
}

// Result reports what one run removed.
type Result struct {
	TypingCleared  int
	AppealsDeleted int64
}

// RunOnce performs a single retention pass. Both steps run even if one fails;
// the first error is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	t := now().UTC()

	var (
		res      Result
		firstErr error
	)
	if s.Realtime != nil {
		n, err := s.Realtime.SweepTyping(ctx, t.Add(-StaleTyping))
		if err != nil {
			logger.Log.Error("retention_typing_failed", zap.Error(err))
			firstErr = err
		}
		res.TypingCleared = n
	}
	if s.Appeals != nil && s.AppealRetention > 0 {
		n, err := s.Appeals.DeleteResolved(ctx, t.Add(-s.AppealRetention))
		if err != nil {
			logger.Log.Error("retention_appeals_failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
		res.AppealsDeleted = n
		if n > 0 && s.Hub != nil && s.AppealsTopic != "" {
			s.Hub.Notify(ctx, s.AppealsTopic)
		}
	}

	logger.Log.Info("retention_run_complete",
		zap.Int("typing_cleared", res.TypingCleared),
		zap.Int64("appeals_deleted", res.AppealsDeleted),
	)
	return res, firstErr
}

// Start validates cronExpr and runs the sweeper on every tick until ctx is
// done or the returned cancel func is called. An empty expression means
// every five minutes.
func Start(ctx context.Context, cronExpr string, s *Sweeper) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Log.Error("retention_invalid_cron", zap.String("cron", cronExpr))
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}

	ctx, cancel := context.WithCancel(ctx)
	go schedule(ctx, cronExpr, s)
	logger.Log.Info("retention_scheduler_started", zap.String("cron", cronExpr))
	return cancel, nil
}

func schedule(ctx context.Context, cronExpr string, s *Sweeper) {
	for {
		next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
		wait := time.Until(next)
		if err != nil {
			logger.Log.Error("retention_nexttick_failed", zap.String("cron", cronExpr), zap.Error(err))
			wait = 30 * time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Log.Info("retention_scheduler_stopping")
			return
		case <-timer.C:
		}
		if err == nil {
			_, _ = s.RunOnce(ctx)
		}
	}
}
