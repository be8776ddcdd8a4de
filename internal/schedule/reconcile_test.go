package schedule

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestReconciler(store *memStore, gw *fakeGateway, clock *fakeClock) *Reconciler {
	exec := NewExecutor(ExecutorConfig{}, gw, store, zap.NewNop())
	exec.WithClock(clock)
	sched := NewScheduler(SchedulerConfig{}, store, exec, zap.NewNop())
	sched.WithClock(clock)
	rec := NewReconciler(store, gw, exec, sched, zap.NewNop())
	rec.WithClock(clock)
	return rec
}

func TestRecoverExecutesMissedAction(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	gw.putMember("g1", "u1", "r1")
	clock := newFakeClock(testStart)

	missed := makeAction(KindTempRoleExpiry, Subject{GuildID: "g1", TargetID: "u1"}, TempRolePayload{RoleID: "r1"}, testStart.Add(-time.Hour))
	if err := store.InsertAction(context.Background(), missed); err != nil {
		t.Fatal(err)
	}

	rec := newTestReconciler(store, gw, clock)
	if err := rec.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("missed action should be settled")
	}
	removed := gw.removedRoles()
	if len(removed) != 1 || removed[0] != "g1:u1:r1" {
		t.Fatalf("unexpected removals: %v", removed)
	}
}

func TestRecoverKeepsFutureAction(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	gw.putMember("g1", "u1", "r1")
	clock := newFakeClock(testStart)

	future := makeAction(KindTempRoleExpiry, Subject{GuildID: "g1", TargetID: "u1"}, TempRolePayload{RoleID: "r1"}, testStart.Add(time.Hour))
	if err := store.InsertAction(context.Background(), future); err != nil {
		t.Fatal(err)
	}

	rec := newTestReconciler(store, gw, clock)
	if err := rec.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("future action must stay pending")
	}
	if len(gw.removedRoles()) != 0 {
		t.Fatalf("nothing should execute early")
	}
}

func TestRecoverAbandonsManuallyRemovedRole(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	gw.putMember("g1", "u1", "other")
	clock := newFakeClock(testStart)

	drifted := makeAction(KindTempRoleExpiry, Subject{GuildID: "g1", TargetID: "u1"}, TempRolePayload{RoleID: "r1"}, testStart.Add(time.Hour))
	if err := store.InsertAction(context.Background(), drifted); err != nil {
		t.Fatal(err)
	}

	rec := newTestReconciler(store, gw, clock)
	if err := rec.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("drifted action should be abandoned")
	}
	if len(gw.removedRoles()) != 0 {
		t.Fatalf("abandoning must not touch the gateway")
	}
}

func TestRecoverAbandonsWhenMemberLeft(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	clock := newFakeClock(testStart)

	orphan := makeAction(KindMuteExpiry, Subject{GuildID: "g1", TargetID: "gone"}, MutePayload{MuteRoleID: "muted"}, testStart.Add(time.Hour))
	if err := store.InsertAction(context.Background(), orphan); err != nil {
		t.Fatal(err)
	}

	rec := newTestReconciler(store, gw, clock)
	if err := rec.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("action for departed member should be abandoned")
	}
}

func TestRecoverAbandonsClearedWarnDecay(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	gw.putMember("g1", "u1", "warned")
	clock := newFakeClock(testStart)

	decay := makeAction(KindWarnDecay, Subject{GuildID: "g1", TargetID: "u1"}, WarnDecayPayload{WarnRoleID: "warned"}, testStart.Add(time.Hour))
	if err := store.InsertAction(context.Background(), decay); err != nil {
		t.Fatal(err)
	}

	rec := newTestReconciler(store, gw, clock)
	if err := rec.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("decay for a cleared record should be abandoned")
	}

	// With a live warn level the chain must survive.
	if err := store.SetWarnLevel(context.Background(), "g1", "u1", 2); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertAction(context.Background(), decay); err != nil {
		t.Fatal(err)
	}
	if err := rec.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("live decay chain must stay pending")
	}
}

func TestSweepAbandonsDriftButNeverExecutes(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	gw.putMember("g1", "u1", "r1")
	gw.putMember("g1", "u2", "other")
	clock := newFakeClock(testStart)

	overdue := makeAction(KindTempRoleExpiry, Subject{GuildID: "g1", TargetID: "u1"}, TempRolePayload{RoleID: "r1"}, testStart.Add(-time.Hour))
	drifted := makeAction(KindTempRoleExpiry, Subject{GuildID: "g1", TargetID: "u2"}, TempRolePayload{RoleID: "r2"}, testStart.Add(-time.Hour))
	if err := store.InsertAction(context.Background(), overdue); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertAction(context.Background(), drifted); err != nil {
		t.Fatal(err)
	}

	rec := newTestReconciler(store, gw, clock)
	if err := rec.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// Execution stays with the scheduler; the sweep only clears drift.
	if len(gw.removedRoles()) != 0 {
		t.Fatalf("sweep must never execute actions, got %v", gw.removedRoles())
	}
	if _, found, _ := store.GetAction(context.Background(), overdue.ID); !found {
		t.Fatalf("overdue but intact action must survive the sweep")
	}
	if _, found, _ := store.GetAction(context.Background(), drifted.ID); found {
		t.Fatalf("drifted action should be abandoned by the sweep")
	}
}

func TestOnMemberRemoveSettlesMemberActions(t *testing.T) {
	store := newMemStore()
	gw := newFakeGateway()
	clock := newFakeClock(testStart)

	subject := Subject{GuildID: "g1", TargetID: "u1"}
	mute := makeAction(KindMuteExpiry, subject, MutePayload{MuteRoleID: "muted"}, testStart.Add(time.Hour))
	temp := makeAction(KindTempRoleExpiry, subject, TempRolePayload{RoleID: "r1"}, testStart.Add(2*time.Hour))
	message := makeAction(KindScheduledMessage, Subject{GuildID: "g1", TargetID: "u1"}, MessagePayload{Content: "hi"}, testStart.Add(time.Hour))
	for _, action := range []PendingAction{mute, temp, message} {
		if err := store.InsertAction(context.Background(), action); err != nil {
			t.Fatal(err)
		}
	}

	rec := newTestReconciler(store, gw, clock)
	rec.OnMemberRemove(context.Background(), "g1", "u1")

	if _, found, _ := store.GetAction(context.Background(), mute.ID); found {
		t.Fatalf("mute expiry should be settled on member remove")
	}
	if _, found, _ := store.GetAction(context.Background(), temp.ID); found {
		t.Fatalf("temp role expiry should be settled on member remove")
	}
	if _, found, _ := store.GetAction(context.Background(), message.ID); !found {
		t.Fatalf("scheduled messages target channels and must survive")
	}
}
