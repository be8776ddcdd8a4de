package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service is the surface command handlers talk to. Every mutation goes
// through the store and then nudges the scheduler so a sooner trigger
// pre-empts the current wait.
type Service struct {
	store  Store
	sched  *Scheduler
	exec   *Executor
	logger *zap.Logger
	clock  Clock
}

func NewService(store Store, sched *Scheduler, exec *Executor, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		sched:  sched,
		exec:   exec,
		logger: logger,
		clock:  realClock{},
	}
}

func (s *Service) WithClock(clock Clock) {
	s.clock = clock
}

// Schedule persists a new pending action. Returns ErrDuplicate when a live
// action of a uniqueness-constrained kind already covers the same subject
// and key; callers surface that as "already scheduled, use reschedule".
func (s *Service) Schedule(ctx context.Context, kind Kind, subject Subject, payload Payload, triggerAt time.Time) (string, error) {
	action := s.build(kind, subject, payload, triggerAt)
	if err := s.store.InsertAction(ctx, action); err != nil {
		return "", err
	}
	s.sched.Nudge()
	return action.ID, nil
}

// ScheduleReplace supersedes any existing row for the same subject and key,
// extending or overwriting the expiry instead of stacking a second grant.
func (s *Service) ScheduleReplace(ctx context.Context, kind Kind, subject Subject, payload Payload, triggerAt time.Time) (string, error) {
	action := s.build(kind, subject, payload, triggerAt)
	id, err := s.store.ReplaceAction(ctx, action)
	if err != nil {
		return "", err
	}
	s.sched.Nudge()
	return id, nil
}

// Cancel reports false when the row is already gone; cancel racing
// execution is expected, not an error.
func (s *Service) Cancel(ctx context.Context, id string) (bool, error) {
	return s.store.CancelAction(ctx, id)
}

func (s *Service) List(ctx context.Context, subject Subject) ([]PendingAction, error) {
	return s.store.ListActionsForSubject(ctx, subject)
}

func (s *Service) Reschedule(ctx context.Context, id string, triggerAt time.Time) (bool, error) {
	ok, err := s.store.RescheduleAction(ctx, id, triggerAt)
	if err != nil || !ok {
		return ok, err
	}
	s.sched.Nudge()
	return true, nil
}

// ExecuteNow runs a pending action immediately through the normal
// exactly-once path, bypassing its trigger time. Used by manual overrides
// such as /unmute.
func (s *Service) ExecuteNow(ctx context.Context, id string) (Outcome, error) {
	action, found, err := s.store.GetAction(ctx, id)
	if err != nil {
		return OutcomeRetry, err
	}
	if !found {
		return OutcomeCompleted, nil
	}
	outcome, execErr := s.exec.Execute(ctx, action)
	if outcome != OutcomeRetry {
		if err := s.store.DeleteAction(ctx, action.ID); err != nil {
			return outcome, err
		}
	}
	return outcome, execErr
}

func (s *Service) build(kind Kind, subject Subject, payload Payload, triggerAt time.Time) PendingAction {
	return PendingAction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Subject:   subject,
		DedupeKey: payload.DedupeKey(),
		Payload:   mustEncode(payload),
		TriggerAt: triggerAt.UTC(),
		CreatedAt: s.clock.Now().UTC(),
	}
}
