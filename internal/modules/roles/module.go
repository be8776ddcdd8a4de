// Package roles handles time-bounded role grants: temp roles and giveaway
// blacklists. Granting again while a grant is live replaces the expiry
// instead of stacking a second removal.
package roles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guildwarden/internal/modules/audit"
	"guildwarden/internal/schedule"
)

type Module struct {
	gateway schedule.Gateway
	svc     *schedule.Service
	audit   *audit.Logger
}

func New(gw schedule.Gateway, svc *schedule.Service, auditLogger *audit.Logger) *Module {
	return &Module{gateway: gw, svc: svc, audit: auditLogger}
}

// GrantTempRole adds the role now and schedules its removal. Returns the
// expiry actually in effect.
func (m *Module) GrantTempRole(ctx context.Context, guildID, userID, roleID, actorID string, duration time.Duration) (time.Time, error) {
	if err := m.gateway.AddRole(ctx, guildID, userID, roleID); err != nil {
		return time.Time{}, err
	}

	expiry := time.Now().Add(duration)
	subject := schedule.Subject{GuildID: guildID, TargetID: userID}
	payload := schedule.TempRolePayload{RoleID: roleID}

	_, err := m.svc.Schedule(ctx, schedule.KindTempRoleExpiry, subject, payload, expiry)
	if errors.Is(err, schedule.ErrDuplicate) {
		_, err = m.svc.ScheduleReplace(ctx, schedule.KindTempRoleExpiry, subject, payload, expiry)
	}
	if err != nil {
		return time.Time{}, err
	}

	m.audit.Log(ctx, audit.LevelInfo, guildID, userID, "temp_role_granted",
		fmt.Sprintf("role=%s until=%s actor=%s", roleID, expiry.UTC().Format(time.RFC3339), actorID))
	return expiry, nil
}

// Blacklist bars a member from giveaways until the lift time.
func (m *Module) Blacklist(ctx context.Context, guildID, userID, roleID, actorID string, duration time.Duration) (time.Time, error) {
	if err := m.gateway.AddRole(ctx, guildID, userID, roleID); err != nil {
		return time.Time{}, err
	}

	lift := time.Now().Add(duration)
	subject := schedule.Subject{GuildID: guildID, TargetID: userID}
	payload := schedule.BlacklistPayload{RoleID: roleID}

	_, err := m.svc.Schedule(ctx, schedule.KindGiveawayBlacklistLift, subject, payload, lift)
	if errors.Is(err, schedule.ErrDuplicate) {
		_, err = m.svc.ScheduleReplace(ctx, schedule.KindGiveawayBlacklistLift, subject, payload, lift)
	}
	if err != nil {
		return time.Time{}, err
	}

	m.audit.Log(ctx, audit.LevelWarn, guildID, userID, "giveaway_blacklisted",
		fmt.Sprintf("role=%s until=%s actor=%s", roleID, lift.UTC().Format(time.RFC3339), actorID))
	return lift, nil
}
