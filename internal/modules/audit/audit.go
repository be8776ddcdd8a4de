package audit

import (
	"context"
	"fmt"
	"time"

	"guildwarden/internal/schedule"
	"guildwarden/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

// Logger records moderation and scheduler activity to the audit table and
// the structured log, and optionally relays entries to the guild mod-log
// channel via the notifier.
type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.store != nil {
		_ = l.store.AddAuditLog(ctx, entry)
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

// LogOutcome is the scheduler's reporter hook: one audit entry per executed
// action, leveled by how it ended.
func (l *Logger) LogOutcome(ctx context.Context, action schedule.PendingAction, outcome schedule.Outcome, err error) {
	level := LevelInfo
	details := fmt.Sprintf("kind=%s outcome=%s", action.Kind, outcome)
	switch outcome {
	case schedule.OutcomeRetry:
		// Transient; the row is still pending, nothing worth persisting yet.
		return
	case schedule.OutcomeAbandoned:
		level = LevelWarn
	}
	if err != nil {
		details += " error=" + err.Error()
	}
	userID := action.Subject.TargetID
	if action.Kind == schedule.KindScheduledMessage {
		userID = ""
	}
	l.Log(ctx, level, action.Subject.GuildID, userID, "action_"+outcome.String(), details)
}
