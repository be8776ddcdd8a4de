package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ExecutorConfig struct {
	// WarnDecayPeriod is the gap between steps of the warn decay chain.
	WarnDecayPeriod time.Duration
}

// Executor applies one due action against the guild. Every handler is
// idempotent: re-executing after a crash between act and delete must not
// double-free a role or double-send a message.
type Executor struct {
	cfg     ExecutorConfig
	gateway Gateway
	store   Store
	logger  *zap.Logger
	clock   Clock
}

func NewExecutor(cfg ExecutorConfig, gateway Gateway, store Store, logger *zap.Logger) *Executor {
	if cfg.WarnDecayPeriod <= 0 {
		cfg.WarnDecayPeriod = 7 * 24 * time.Hour
	}
	return &Executor{
		cfg:     cfg,
		gateway: gateway,
		store:   store,
		logger:  logger,
		clock:   realClock{},
	}
}

func (e *Executor) WithClock(clock Clock) {
	e.clock = clock
}

func (e *Executor) Execute(ctx context.Context, action PendingAction) (Outcome, error) {
	switch action.Kind {
	case KindTempRoleExpiry:
		payload, err := decodePayload[TempRolePayload](action)
		if err != nil {
			return OutcomeAbandoned, err
		}
		return e.expireRole(ctx, action.Subject, payload.RoleID)
	case KindGiveawayBlacklistLift:
		payload, err := decodePayload[BlacklistPayload](action)
		if err != nil {
			return OutcomeAbandoned, err
		}
		return e.expireRole(ctx, action.Subject, payload.RoleID)
	case KindMuteExpiry:
		return e.expireMute(ctx, action)
	case KindWarnDecay:
		return e.decayWarn(ctx, action)
	case KindScheduledMessage:
		return e.sendScheduled(ctx, action)
	default:
		return OutcomeAbandoned, fmt.Errorf("unknown action kind %q", action.Kind)
	}
}

// expireRole removes a time-granted role. An absent member is terminal
// success: Discord does not restore roles on rejoin, so there is nothing
// left to undo.
func (e *Executor) expireRole(ctx context.Context, subject Subject, roleID string) (Outcome, error) {
	member, err := e.gateway.GetMember(ctx, subject.GuildID, subject.TargetID)
	if errors.Is(err, ErrNotFound) {
		e.logger.Info("member left before expiry, nothing to undo",
			zap.String("guild_id", subject.GuildID), zap.String("user_id", subject.TargetID))
		return OutcomeCompleted, nil
	}
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return OutcomeAbandoned, err
		}
		return OutcomeRetry, err
	}
	if !member.HasRole(roleID) {
		// Already removed by hand; the intent is satisfied.
		return OutcomeCompleted, nil
	}

	if err := e.gateway.RemoveRole(ctx, subject.GuildID, subject.TargetID, roleID); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
			return OutcomeAbandoned, err
		}
		return OutcomeRetry, err
	}
	return OutcomeCompleted, nil
}

// expireMute lifts the mute role and restores the prior-role snapshot.
// Roles deleted guild-wide during the mute are skipped, not errors.
func (e *Executor) expireMute(ctx context.Context, action PendingAction) (Outcome, error) {
	payload, err := decodePayload[MutePayload](action)
	if err != nil {
		return OutcomeAbandoned, err
	}
	subject := action.Subject

	member, err := e.gateway.GetMember(ctx, subject.GuildID, subject.TargetID)
	if errors.Is(err, ErrNotFound) {
		e.logger.Info("muted member left guild, no snapshot restore",
			zap.String("guild_id", subject.GuildID), zap.String("user_id", subject.TargetID))
		return OutcomeCompleted, nil
	}
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return OutcomeAbandoned, err
		}
		return OutcomeRetry, err
	}

	if member.HasRole(payload.MuteRoleID) {
		if err := e.gateway.RemoveRole(ctx, subject.GuildID, subject.TargetID, payload.MuteRoleID); err != nil {
			if errors.Is(err, ErrForbidden) {
				return OutcomeAbandoned, err
			}
			if !errors.Is(err, ErrNotFound) {
				return OutcomeRetry, err
			}
		}
	}

	for _, roleID := range payload.PriorRoles {
		exists, err := e.gateway.RoleExists(ctx, subject.GuildID, roleID)
		if err != nil {
			return OutcomeRetry, err
		}
		if !exists {
			e.logger.Info("snapshot role no longer exists, skipping",
				zap.String("guild_id", subject.GuildID), zap.String("role_id", roleID))
			continue
		}
		if member.HasRole(roleID) {
			continue
		}
		if err := e.gateway.AddRole(ctx, subject.GuildID, subject.TargetID, roleID); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if errors.Is(err, ErrForbidden) {
				return OutcomeAbandoned, err
			}
			return OutcomeRetry, err
		}
	}
	return OutcomeCompleted, nil
}

// decayWarn steps the moderation record down one level. This is the one
// kind that schedules its own successor: the chain re-arms until the level
// reaches zero, at which point the warn role is stripped.
func (e *Executor) decayWarn(ctx context.Context, action PendingAction) (Outcome, error) {
	payload, err := decodePayload[WarnDecayPayload](action)
	if err != nil {
		return OutcomeAbandoned, err
	}
	subject := action.Subject

	level, err := e.store.WarnLevel(ctx, subject.GuildID, subject.TargetID)
	if err != nil {
		return OutcomeRetry, err
	}
	if level <= 0 {
		// Record already cleared, e.g. by a manual pardon.
		return OutcomeCompleted, nil
	}
	if payload.FromLevel > 0 && level < payload.FromLevel {
		// The decrement landed on a pass that never settled this row.
		// Replaying it now would walk the level down twice.
		return OutcomeCompleted, nil
	}
	next := level - 1

	if next == 0 {
		// Strip the warn role before touching the record, so a transient
		// failure here retries without losing a decay step.
		member, err := e.gateway.GetMember(ctx, subject.GuildID, subject.TargetID)
		switch {
		case errors.Is(err, ErrNotFound):
			// Member gone; still clear the stored level below.
		case err != nil && errors.Is(err, ErrForbidden):
			return OutcomeAbandoned, err
		case err != nil:
			return OutcomeRetry, err
		case payload.WarnRoleID != "" && member.HasRole(payload.WarnRoleID):
			if err := e.gateway.RemoveRole(ctx, subject.GuildID, subject.TargetID, payload.WarnRoleID); err != nil {
				if errors.Is(err, ErrForbidden) {
					return OutcomeAbandoned, err
				}
				if !errors.Is(err, ErrNotFound) {
					return OutcomeRetry, err
				}
			}
		}
		if err := e.store.SetWarnLevel(ctx, subject.GuildID, subject.TargetID, 0); err != nil {
			return OutcomeRetry, err
		}
		return OutcomeCompleted, nil
	}

	// Persist the level being decayed from before mutating anything, in
	// the same way sendScheduled marks the payload before delivery.
	if payload.FromLevel != level {
		marked := payload
		marked.FromLevel = level
		if err := e.store.UpdateActionPayload(ctx, action.ID, mustEncode(marked)); err != nil {
			return OutcomeRetry, err
		}
		payload = marked
	}

	now := e.clock.Now()
	successor := PendingAction{
		ID:      uuid.NewString(),
		Kind:    KindWarnDecay,
		Subject: subject,
		// Keyed on the predecessor so a replayed step cannot fork the
		// chain by re-arming a second successor.
		DedupeKey: action.ID,
		Payload:   mustEncode(WarnDecayPayload{WarnRoleID: payload.WarnRoleID}),
		TriggerAt: now.Add(e.cfg.WarnDecayPeriod),
		CreatedAt: now,
	}
	if err := e.store.InsertAction(ctx, successor); err != nil && !errors.Is(err, ErrDuplicate) {
		return OutcomeRetry, err
	}
	if err := e.store.SetWarnLevel(ctx, subject.GuildID, subject.TargetID, next); err != nil {
		// Undo the re-arm so the retry starts from a clean slate.
		_, _ = e.store.CancelAction(ctx, successor.ID)
		return OutcomeRetry, err
	}
	return OutcomeCompleted, nil
}

// sendScheduled delivers an announcement at most once. The sent marker is
// persisted before delivery, so a crash between send and delete settles on
// the next pass instead of double-posting. A stale announcement must not
// resend forever either, so transient failures get exactly one retry.
func (e *Executor) sendScheduled(ctx context.Context, action PendingAction) (Outcome, error) {
	payload, err := decodePayload[MessagePayload](action)
	if err != nil {
		return OutcomeAbandoned, err
	}
	if payload.Sent {
		return OutcomeCompleted, nil
	}

	marked := payload
	marked.Sent = true
	if err := e.store.UpdateActionPayload(ctx, action.ID, mustEncode(marked)); err != nil {
		return OutcomeRetry, err
	}

	err = e.gateway.SendMessage(ctx, action.Subject.TargetID, payload.Content)
	if err == nil {
		return OutcomeCompleted, nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
		return OutcomeAbandoned, err
	}
	if payload.Retried {
		return OutcomeAbandoned, fmt.Errorf("giving up after retry: %w", err)
	}
	// Clear the marker so the retry actually delivers.
	retry := payload
	retry.Retried = true
	if uerr := e.store.UpdateActionPayload(ctx, action.ID, mustEncode(retry)); uerr != nil {
		return OutcomeRetry, uerr
	}
	return OutcomeRetry, err
}

func mustEncode(payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		// All payload types are plain structs; this cannot fail at runtime.
		panic(err)
	}
	return data
}
