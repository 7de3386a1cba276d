package services

import (
	"context"

	"github.com/insidebox/backend/internal/events"
	"github.com/insidebox/backend/internal/models"
	"go.uber.org/zap"
)

// Audit and event delivery are best effort; a failure is logged and the
// operation that triggered it still succeeds.

func recordAudit(ctx context.Context, audit AuditLogger, log *zap.Logger, entry models.AuditLog) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		log.Warn("failed to write audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func publish(ctx context.Context, publisher events.Publisher, event events.Event) {
	if publisher == nil {
		return
	}
	_ = publisher.Publish(ctx, events.StreamAccounts, event)
}
