package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reconciler detects drift between stored intent and live guild state. It
// runs once when the process (re)connects, on a slow interval as a safety
// net, and opportunistically when a member leaves.
type Reconciler struct {
	store   Store
	gateway Gateway
	exec    *Executor
	sched   *Scheduler
	logger  *zap.Logger
	clock   Clock

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewReconciler(store Store, gateway Gateway, exec *Executor, sched *Scheduler, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		gateway: gateway,
		exec:    exec,
		sched:   sched,
		logger:  logger,
		clock:   realClock{},
		done:    make(chan struct{}),
	}
}

func (r *Reconciler) WithClock(clock Clock) {
	r.clock = clock
}

// Recover is the startup pass: abandon drifted rows, then feed anything
// whose trigger fired while the process was offline straight to the
// executor. Must run before the scheduler loop starts, so the two never
// race over the same row.
func (r *Reconciler) Recover(ctx context.Context) error {
	actions, err := r.store.ListAllActions(ctx)
	if err != nil {
		return err
	}
	now := r.clock.Now()

	for _, action := range actions {
		drifted, err := r.checkDrift(ctx, action)
		if err != nil {
			r.logger.Warn("drift check skipped",
				zap.String("action_id", action.ID), zap.Error(err))
			continue
		}
		if drifted {
			continue
		}
		if !action.TriggerAt.After(now) {
			r.runMissed(ctx, action)
		}
	}
	return nil
}

// Start runs periodic drift sweeps. The sweep never executes actions
// itself; it abandons drifted rows and nudges the scheduler, which owns
// the exactly-once execution path while the process is live.
func (r *Reconciler) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
				if err := r.Sweep(context.Background()); err != nil {
					r.logger.Warn("reconcile sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (r *Reconciler) Stop() {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
}

// Sweep checks every pending row for drift and wakes the scheduler.
func (r *Reconciler) Sweep(ctx context.Context) error {
	actions, err := r.store.ListAllActions(ctx)
	if err != nil {
		return err
	}
	for _, action := range actions {
		if _, err := r.checkDrift(ctx, action); err != nil {
			r.logger.Warn("drift check skipped",
				zap.String("action_id", action.ID), zap.Error(err))
		}
	}
	r.sched.Nudge()
	return nil
}

// OnMemberRemove applies the absent-member policy early: a member who left
// has nothing to undo at expiry, and rejoining does not bring roles back,
// so their member-targeted rows are settled now.
func (r *Reconciler) OnMemberRemove(ctx context.Context, guildID, userID string) {
	actions, err := r.store.ListActionsForSubject(ctx, Subject{GuildID: guildID, TargetID: userID})
	if err != nil {
		r.logger.Warn("member-remove reconcile failed",
			zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return
	}
	for _, action := range actions {
		if action.Kind == KindScheduledMessage {
			continue
		}
		if err := r.store.DeleteAction(ctx, action.ID); err != nil {
			r.logger.Error("failed to settle action for departed member",
				zap.String("action_id", action.ID), zap.Error(err))
			continue
		}
		r.logger.Info("settled action for departed member",
			zap.String("action_id", action.ID), zap.String("kind", string(action.Kind)),
			zap.String("guild_id", guildID), zap.String("user_id", userID))
	}
}

// checkDrift abandons a row whose expected effect is already gone: evidence
// a human undid it by hand. Reports true when the row was removed. A
// transient gateway failure returns an error and leaves the row alone.
func (r *Reconciler) checkDrift(ctx context.Context, action PendingAction) (bool, error) {
	var expectedRole string
	switch action.Kind {
	case KindTempRoleExpiry:
		payload, err := decodePayload[TempRolePayload](action)
		if err != nil {
			return false, err
		}
		expectedRole = payload.RoleID
	case KindGiveawayBlacklistLift:
		payload, err := decodePayload[BlacklistPayload](action)
		if err != nil {
			return false, err
		}
		expectedRole = payload.RoleID
	case KindMuteExpiry:
		payload, err := decodePayload[MutePayload](action)
		if err != nil {
			return false, err
		}
		expectedRole = payload.MuteRoleID
	case KindWarnDecay:
		level, err := r.store.WarnLevel(ctx, action.Subject.GuildID, action.Subject.TargetID)
		if err != nil {
			return false, err
		}
		if level > 0 {
			return false, nil
		}
		return true, r.abandon(ctx, action, "warn level already cleared")
	default:
		return false, nil
	}

	member, err := r.gateway.GetMember(ctx, action.Subject.GuildID, action.Subject.TargetID)
	if errors.Is(err, ErrNotFound) {
		return true, r.abandon(ctx, action, "member no longer in guild")
	}
	if err != nil {
		return false, err
	}
	if member.HasRole(expectedRole) {
		return false, nil
	}
	return true, r.abandon(ctx, action, "role already removed manually")
}

func (r *Reconciler) abandon(ctx context.Context, action PendingAction, reason string) error {
	if err := r.store.DeleteAction(ctx, action.ID); err != nil {
		return err
	}
	// Drift means someone changed guild state out from under us; worth a
	// warning even though the resolution is silent.
	r.logger.Warn("abandoned drifted action",
		zap.String("action_id", action.ID),
		zap.String("kind", string(action.Kind)),
		zap.String("guild_id", action.Subject.GuildID),
		zap.String("target_id", action.Subject.TargetID),
		zap.String("reason", reason))
	return nil
}

// runMissed settles one action whose trigger fired while the process was
// offline, using the same execute-then-delete commit as the drain loop.
func (r *Reconciler) runMissed(ctx context.Context, action PendingAction) {
	outcome, execErr := r.exec.Execute(ctx, action)
	if execErr != nil {
		r.logger.Warn("missed action execution",
			zap.String("action_id", action.ID), zap.String("outcome", outcome.String()), zap.Error(execErr))
	} else {
		r.logger.Info("recovered missed action",
			zap.String("action_id", action.ID), zap.String("kind", string(action.Kind)))
	}
	if outcome == OutcomeRetry {
		return
	}
	if err := r.store.DeleteAction(ctx, action.ID); err != nil {
		r.logger.Error("failed to settle recovered action",
			zap.String("action_id", action.ID), zap.Error(err))
	}
}
