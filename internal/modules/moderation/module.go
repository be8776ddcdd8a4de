// Package moderation implements warn and mute: the command-facing side of
// the temporal moderation engine. All pending state lives in the action
// store; this module never caches who is muted or warned.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guildwarden/internal/modules/audit"
	"guildwarden/internal/schedule"
	"guildwarden/internal/storage"
)

type Config struct {
	WarnDecayPeriod time.Duration
}

type Module struct {
	cfg     Config
	store   *storage.Store
	gateway schedule.Gateway
	svc     *schedule.Service
	audit   *audit.Logger
}

func New(cfg Config, store *storage.Store, gw schedule.Gateway, svc *schedule.Service, auditLogger *audit.Logger) *Module {
	if cfg.WarnDecayPeriod <= 0 {
		cfg.WarnDecayPeriod = 7 * 24 * time.Hour
	}
	return &Module{cfg: cfg, store: store, gateway: gw, svc: svc, audit: auditLogger}
}

// Warn raises the member's warn level, applies the warn role once the
// threshold is crossed, and (re-)arms the decay chain. Returns the new
// level.
func (m *Module) Warn(ctx context.Context, settings storage.GuildSettings, userID, actorID, reason string) (int, error) {
	guildID := settings.GuildID
	level, err := m.store.IncrementWarn(ctx, guildID, userID, actorID)
	if err != nil {
		return 0, err
	}

	if settings.WarnRoleID != "" && level >= settings.WarnThreshold {
		if err := m.gateway.AddRole(ctx, guildID, userID, settings.WarnRoleID); err != nil && !errors.Is(err, schedule.ErrNotFound) {
			return level, fmt.Errorf("apply warn role: %w", err)
		}
	}

	if err := m.armDecay(ctx, guildID, userID, settings.WarnRoleID); err != nil {
		return level, err
	}

	m.audit.Log(ctx, audit.LevelWarn, guildID, userID, "member_warned",
		fmt.Sprintf("level=%d actor=%s reason=%s", level, actorID, reason))
	return level, nil
}

// armDecay keeps exactly one decay row per member: an existing row is
// pushed out to a fresh full period, otherwise a new chain starts. The
// executor owns every later step.
func (m *Module) armDecay(ctx context.Context, guildID, userID, warnRoleID string) error {
	subject := schedule.Subject{GuildID: guildID, TargetID: userID}
	pending, err := m.svc.List(ctx, subject)
	if err != nil {
		return err
	}
	triggerAt := time.Now().Add(m.cfg.WarnDecayPeriod)
	for _, action := range pending {
		if action.Kind == schedule.KindWarnDecay {
			_, err := m.svc.Reschedule(ctx, action.ID, triggerAt)
			return err
		}
	}
	_, err = m.svc.Schedule(ctx, schedule.KindWarnDecay, subject,
		schedule.WarnDecayPayload{WarnRoleID: warnRoleID}, triggerAt)
	return err
}

// Mute snapshots the member's current roles, swaps in the mute role, and
// schedules the expiry. Muting an already-muted member extends the expiry
// and keeps the original snapshot, so the eventual restore is the state
// before the first mute.
func (m *Module) Mute(ctx context.Context, settings storage.GuildSettings, userID, actorID string, duration time.Duration) (time.Time, error) {
	guildID := settings.GuildID
	if settings.MuteRoleID == "" {
		return time.Time{}, errors.New("mute role not configured")
	}

	member, err := m.gateway.GetMember(ctx, guildID, userID)
	if err != nil {
		return time.Time{}, err
	}

	expiry := time.Now().Add(duration)
	subject := schedule.Subject{GuildID: guildID, TargetID: userID}
	payload := schedule.MutePayload{MuteRoleID: settings.MuteRoleID, PriorRoles: member.Roles}

	_, err = m.svc.Schedule(ctx, schedule.KindMuteExpiry, subject, payload, expiry)
	if errors.Is(err, schedule.ErrDuplicate) {
		existing, lerr := m.findMute(ctx, subject, settings.MuteRoleID)
		if lerr != nil {
			return time.Time{}, lerr
		}
		if existing != nil {
			// Preserve the pre-mute snapshot; only the expiry moves.
			if _, rerr := m.svc.Reschedule(ctx, existing.ID, expiry); rerr != nil {
				return time.Time{}, rerr
			}
			m.audit.Log(ctx, audit.LevelWarn, guildID, userID, "mute_extended",
				fmt.Sprintf("until=%s actor=%s", expiry.UTC().Format(time.RFC3339), actorID))
			return expiry, nil
		}
		// Row vanished between insert and lookup; fall through to replace.
		if _, rerr := m.svc.ScheduleReplace(ctx, schedule.KindMuteExpiry, subject, payload, expiry); rerr != nil {
			return time.Time{}, rerr
		}
	} else if err != nil {
		return time.Time{}, err
	}

	if err := m.gateway.AddRole(ctx, guildID, userID, settings.MuteRoleID); err != nil {
		return time.Time{}, fmt.Errorf("apply mute role: %w", err)
	}
	for _, roleID := range member.Roles {
		if roleID == settings.MuteRoleID {
			continue
		}
		if err := m.gateway.RemoveRole(ctx, guildID, userID, roleID); err != nil && !errors.Is(err, schedule.ErrNotFound) {
			m.audit.Log(ctx, audit.LevelWarn, guildID, userID, "mute_partial",
				fmt.Sprintf("role=%s error=%v", roleID, err))
		}
	}

	m.audit.Log(ctx, audit.LevelWarn, guildID, userID, "member_muted",
		fmt.Sprintf("until=%s actor=%s", expiry.UTC().Format(time.RFC3339), actorID))
	return expiry, nil
}

// Unmute lifts a mute early by running the pending expiry through the
// normal exactly-once path. Reports false when no mute was pending.
func (m *Module) Unmute(ctx context.Context, settings storage.GuildSettings, userID, actorID string) (bool, error) {
	subject := schedule.Subject{GuildID: settings.GuildID, TargetID: userID}
	existing, err := m.findMute(ctx, subject, settings.MuteRoleID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if _, err := m.svc.ExecuteNow(ctx, existing.ID); err != nil {
		return true, err
	}
	m.audit.Log(ctx, audit.LevelInfo, settings.GuildID, userID, "member_unmuted", "actor="+actorID)
	return true, nil
}

// Pardon clears the warn record and cancels the decay chain.
func (m *Module) Pardon(ctx context.Context, settings storage.GuildSettings, userID, actorID string) error {
	guildID := settings.GuildID
	if err := m.store.SetWarnLevel(ctx, guildID, userID, 0); err != nil {
		return err
	}

	subject := schedule.Subject{GuildID: guildID, TargetID: userID}
	pending, err := m.svc.List(ctx, subject)
	if err != nil {
		return err
	}
	for _, action := range pending {
		if action.Kind == schedule.KindWarnDecay {
			_, _ = m.svc.Cancel(ctx, action.ID)
		}
	}

	if settings.WarnRoleID != "" {
		if err := m.gateway.RemoveRole(ctx, guildID, userID, settings.WarnRoleID); err != nil && !errors.Is(err, schedule.ErrNotFound) {
			return err
		}
	}
	m.audit.Log(ctx, audit.LevelInfo, guildID, userID, "member_pardoned", "actor="+actorID)
	return nil
}

func (m *Module) findMute(ctx context.Context, subject schedule.Subject, muteRoleID string) (*schedule.PendingAction, error) {
	pending, err := m.svc.List(ctx, subject)
	if err != nil {
		return nil, err
	}
	for i, action := range pending {
		if action.Kind == schedule.KindMuteExpiry && action.DedupeKey == muteRoleID {
			return &pending[i], nil
		}
	}
	return nil, nil
}
