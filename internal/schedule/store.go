package schedule

import (
	"context"
	"time"
)

// Store is the durable home of pending actions and the only authoritative
// copy of the pending set. All uniqueness and ordering is enforced here.
type Store interface {
	// InsertAction fails with ErrDuplicate when a live action with the same
	// (kind, subject, dedupe key) already exists and the key is non-empty.
	InsertAction(ctx context.Context, action PendingAction) error
	// ReplaceAction atomically supersedes any existing row for the same
	// (kind, subject, dedupe key) and returns the surviving row id.
	ReplaceAction(ctx context.Context, action PendingAction) (string, error)
	// DueActions returns all actions with trigger_at <= now, ascending by
	// (trigger_at, created_at).
	DueActions(ctx context.Context, now time.Time) ([]PendingAction, error)
	// PeekNextAction returns the soonest pending trigger time across all
	// kinds; ok is false when nothing is pending.
	PeekNextAction(ctx context.Context) (next time.Time, ok bool, err error)
	GetAction(ctx context.Context, id string) (PendingAction, bool, error)
	DeleteAction(ctx context.Context, id string) error
	// CancelAction reports false when the row is already gone; cancel racing
	// the drain is expected and not an error.
	CancelAction(ctx context.Context, id string) (bool, error)
	// RescheduleAction moves trigger_at; false when the row no longer exists.
	RescheduleAction(ctx context.Context, id string, triggerAt time.Time) (bool, error)
	// UpdateActionPayload rewrites the payload in place. Used by the
	// scheduled-message retry bookkeeping.
	UpdateActionPayload(ctx context.Context, id string, payload []byte) error
	ListActionsForSubject(ctx context.Context, subject Subject) ([]PendingAction, error)
	ListAllActions(ctx context.Context) ([]PendingAction, error)

	// Warn ledger, owned by the moderation record but mutated by the
	// WarnDecay executor as the chain steps down.
	WarnLevel(ctx context.Context, guildID, userID string) (int, error)
	SetWarnLevel(ctx context.Context, guildID, userID string, level int) error
}
