package notification

import (
	"context"

	"github.com/counselops/letterflow/internal/observability/logger"
	"go.uber.org/zap"
)

// Sender delivers one rendered notification. Implementations wrap the
// outbound email provider.
type Sender interface {
	Send(ctx context.Context, template string, recipient string, payload map[string]any) error
}

// LogSender writes notifications to the log instead of delivering them.
// Default for development and tests.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(ctx context.Context, template string, recipient string, payload map[string]any) error {
	log := s.Log
	if log == nil {
		log = zap.L()
	}
	log.Named("notification.sender").Info("notification dispatched",
		zap.String("template", template),
		zap.String("recipient", recipient),
		zap.Any("payload", logger.MaskJSON(payload)),
	)
	return nil
}
