package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestService(store *memStore, gw *fakeGateway, clock *fakeClock) *Service {
	exec := NewExecutor(ExecutorConfig{}, gw, store, zap.NewNop())
	exec.WithClock(clock)
	sched := NewScheduler(SchedulerConfig{}, store, exec, zap.NewNop())
	sched.WithClock(clock)
	svc := NewService(store, sched, exec, zap.NewNop())
	svc.WithClock(clock)
	return svc
}

func TestScheduleRejectsDuplicateGrant(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(testStart)
	svc := newTestService(store, newFakeGateway(), clock)

	subject := Subject{GuildID: "g1", TargetID: "u1"}
	payload := TempRolePayload{RoleID: "r1"}
	if _, err := svc.Schedule(context.Background(), KindTempRoleExpiry, subject, payload, testStart.Add(time.Hour)); err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	_, err := svc.Schedule(context.Background(), KindTempRoleExpiry, subject, payload, testStart.Add(2*time.Hour))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// A different role for the same member is a separate grant.
	if _, err := svc.Schedule(context.Background(), KindTempRoleExpiry, subject, TempRolePayload{RoleID: "r2"}, testStart.Add(time.Hour)); err != nil {
		t.Fatalf("distinct dedupe key should insert: %v", err)
	}
}

func TestScheduleReplaceSupersedesExisting(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(testStart)
	svc := newTestService(store, newFakeGateway(), clock)

	subject := Subject{GuildID: "g1", TargetID: "u1"}
	payload := TempRolePayload{RoleID: "r1"}
	first, err := svc.Schedule(context.Background(), KindTempRoleExpiry, subject, payload, testStart.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	surviving, err := svc.ScheduleReplace(context.Background(), KindTempRoleExpiry, subject, payload, testStart.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if surviving != first {
		t.Fatalf("replace must keep the existing row id, got %s want %s", surviving, first)
	}
	if store.count() != 1 {
		t.Fatalf("replace must not stack rows, have %d", store.count())
	}
	action, found, _ := store.GetAction(context.Background(), first)
	if !found || !action.TriggerAt.Equal(testStart.Add(3*time.Hour)) {
		t.Fatalf("trigger not extended: %+v", action)
	}
}

func TestWarnDecayActionsMayStack(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(testStart)
	svc := newTestService(store, newFakeGateway(), clock)

	subject := Subject{GuildID: "g1", TargetID: "u1"}
	if _, err := svc.Schedule(context.Background(), KindWarnDecay, subject, WarnDecayPayload{WarnRoleID: "w"}, testStart.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Schedule(context.Background(), KindWarnDecay, subject, WarnDecayPayload{WarnRoleID: "w"}, testStart.Add(2*time.Hour)); err != nil {
		t.Fatalf("empty dedupe key must not collide: %v", err)
	}
}

func TestCancelReportsSettledRows(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(testStart)
	svc := newTestService(store, newFakeGateway(), clock)

	id, err := svc.Schedule(context.Background(), KindTempRoleExpiry, Subject{GuildID: "g1", TargetID: "u1"}, TempRolePayload{RoleID: "r1"}, testStart.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	ok, err := svc.Cancel(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("cancel live row: ok=%v err=%v", ok, err)
	}
	ok, err = svc.Cancel(context.Background(), id)
	if err != nil || ok {
		t.Fatalf("second cancel must report the row gone: ok=%v err=%v", ok, err)
	}
}

func TestExecuteNowSettlesImmediately(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	gw.putMember("g1", "u1", "r1")
	clock := newFakeClock(testStart)
	svc := newTestService(store, gw, clock)

	id, err := svc.Schedule(context.Background(), KindTempRoleExpiry, Subject{GuildID: "g1", TargetID: "u1"}, TempRolePayload{RoleID: "r1"}, testStart.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	outcome, err := svc.ExecuteNow(context.Background(), id)
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %v err %v", outcome, err)
	}
	if store.count() != 0 {
		t.Fatalf("executed row should be deleted")
	}
	if len(gw.removedRoles()) != 1 {
		t.Fatalf("role should be removed ahead of schedule")
	}
}

func TestExecuteNowMissingRowIsNoop(t *testing.T) {
	svc := newTestService(newMemStore(), newFakeGateway(), newFakeClock(testStart))
	outcome, err := svc.ExecuteNow(context.Background(), "nope")
	if err != nil || outcome != OutcomeCompleted {
		t.Fatalf("missing row should be a no-op, got %v err %v", outcome, err)
	}
}
