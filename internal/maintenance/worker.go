package maintenance

import (
	"context"
	"time"

	allowancedomain "github.com/counselops/letterflow/internal/allowance/domain"
	"github.com/counselops/letterflow/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config tunes the background maintenance sweeps.
type Config struct {
	Interval        time.Duration
	BatchSize       int
	OutboxRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.OutboxRetention <= 0 {
		c.OutboxRetention = 30 * 24 * time.Hour
	}
	return c
}

func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// Worker runs periodic housekeeping: lapsing subscriptions whose period
// ended, deleting expired sessions, and pruning delivered outbox rows.
type Worker struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	cfg   Config
}

func NewWorker(db *gorm.DB, log *zap.Logger, clk clock.Clock, cfg Config) *Worker {
	return &Worker{
		db:    db,
		log:   log.Named("maintenance.worker"),
		clock: clk,
		cfg:   cfg.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) {
	if n, err := w.LapseExpiredSubscriptions(ctx); err != nil {
		w.log.Warn("subscription sweep failed", zap.Error(err))
	} else if n > 0 {
		w.log.Info("subscriptions lapsed", zap.Int64("count", n))
	}
	if n, err := w.ReapExpiredSessions(ctx); err != nil {
		w.log.Warn("session sweep failed", zap.Error(err))
	} else if n > 0 {
		w.log.Info("expired sessions reaped", zap.Int64("count", n))
	}
	if n, err := w.PruneDeliveredOutbox(ctx); err != nil {
		w.log.Warn("outbox prune failed", zap.Error(err))
	} else if n > 0 {
		w.log.Info("delivered outbox rows pruned", zap.Int64("count", n))
	}
}

// LapseExpiredSubscriptions moves active subscriptions whose paid period has
// ended to past_due. Rows are claimed with SKIP LOCKED so concurrent
// instances never fight over the same batch.
func (w *Worker) LapseExpiredSubscriptions(ctx context.Context) (int64, error) {
	now := w.clock.Now()
	var total int64
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		err := tx.WithContext(ctx).Raw(
			`SELECT id
			 FROM subscriptions
			 WHERE status = ? AND current_period_end < ?
			 ORDER BY current_period_end ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT ?`,
			allowancedomain.SubscriptionStatusActive,
			now,
			w.cfg.BatchSize,
		).Scan(&ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		result := tx.WithContext(ctx).Exec(
			`UPDATE subscriptions
			 SET status = ?, updated_at = ?
			 WHERE id IN ? AND status = ?`,
			allowancedomain.SubscriptionStatusPastDue,
			now,
			ids,
			allowancedomain.SubscriptionStatusActive,
		)
		if result.Error != nil {
			return result.Error
		}
		total = result.RowsAffected
		return nil
	})
	return total, err
}

func (w *Worker) ReapExpiredSessions(ctx context.Context) (int64, error) {
	result := w.db.WithContext(ctx).Exec(
		`DELETE FROM sessions WHERE expires_at < ?`,
		w.clock.Now(),
	)
	return result.RowsAffected, result.Error
}

// PruneDeliveredOutbox drops published notifications past the retention
// window. Unpublished rows are never touched.
func (w *Worker) PruneDeliveredOutbox(ctx context.Context) (int64, error) {
	cutoff := w.clock.Now().Add(-w.cfg.OutboxRetention)
	result := w.db.WithContext(ctx).Exec(
		`DELETE FROM notification_outbox
		 WHERE published = TRUE AND published_at < ?`,
		cutoff,
	)
	return result.RowsAffected, result.Error
}
