package notification

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config controls the dispatch worker loop.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    25,
		PollInterval: 5 * time.Second,
		MaxAttempts:  5,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	return c
}

type WorkerParams struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Sender Sender
	Config Config `optional:"true"`
}

// Worker polls the outbox and delivers pending notifications. A message that
// keeps failing is parked once it reaches MaxAttempts.
type Worker struct {
	db     *gorm.DB
	log    *zap.Logger
	sender Sender
	cfg    Config
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		db:     p.DB,
		log:    p.Log.Named("notification.worker"),
		sender: p.Sender,
		cfg:    p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("notification dispatch run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) error {
	if w.db == nil || w.sender == nil {
		return errors.New("notification_worker_unavailable")
	}

	var pending []*Outbox
	err := w.db.WithContext(ctx).
		Where("published = ? AND attempts < ?", false, w.cfg.MaxAttempts).
		Order("created_at ASC, id ASC").
		Limit(w.cfg.BatchSize).
		Find(&pending).Error
	if err != nil {
		return err
	}

	for _, msg := range pending {
		w.deliver(ctx, msg)
	}
	return nil
}

func (w *Worker) deliver(ctx context.Context, msg *Outbox) {
	now := time.Now().UTC()

	if err := w.sender.Send(ctx, msg.Template, msg.Recipient, msg.Payload); err != nil {
		w.log.Warn("notification delivery failed",
			zap.String("outbox_id", msg.ID.String()),
			zap.String("template", msg.Template),
			zap.Int("attempts", msg.Attempts+1),
			zap.Error(err),
		)
		if updateErr := w.db.WithContext(ctx).Exec(
			`UPDATE notification_outbox SET attempts = attempts + 1 WHERE id = ?`,
			msg.ID,
		).Error; updateErr != nil {
			w.log.Warn("notification attempt bump failed", zap.Error(updateErr))
		}
		return
	}

	if err := w.db.WithContext(ctx).Exec(
		`UPDATE notification_outbox
		 SET published = TRUE, published_at = ?, attempts = attempts + 1
		 WHERE id = ? AND published = FALSE`,
		now,
		msg.ID,
	).Error; err != nil {
		w.log.Warn("notification publish mark failed",
			zap.String("outbox_id", msg.ID.String()),
			zap.Error(err),
		)
	}
}
