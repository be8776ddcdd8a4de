package storage

import (
	"context"
	"testing"
	"time"
)

func TestUpsertGuildSettings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	settings := GuildSettings{
		GuildID:       "g1",
		ModLogChannel: "c1",
		MuteRoleID:    "mute",
		WarnRoleID:    "warn",
		WarnThreshold: 3,
		LadderEnabled: true,
	}
	if err := store.UpsertGuildSettings(ctx, settings); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	settings.ModLogChannel = "c2"
	settings.LadderEnabled = false
	if err := store.UpsertGuildSettings(ctx, settings); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	loaded, err := store.GetGuildSettings(ctx, "g1", GuildSettings{})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.ModLogChannel != "c2" || loaded.LadderEnabled || loaded.WarnThreshold != 3 {
		t.Fatalf("unexpected settings: %+v", loaded)
	}
}

func TestGetGuildSettingsFallsBackToDefaults(t *testing.T) {
	store := newTestStore(t)

	defaults := GuildSettings{MuteRoleID: "default-mute", WarnThreshold: 5}
	loaded, err := store.GetGuildSettings(context.Background(), "missing", defaults)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.GuildID != "missing" || loaded.MuteRoleID != "default-mute" || loaded.WarnThreshold != 5 {
		t.Fatalf("defaults not applied: %+v", loaded)
	}
}

func TestAuditLogRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	entries := []AuditLog{
		{GuildID: "g1", UserID: "u1", Level: "INFO", Event: "action_completed", Details: "temp role expired", CreatedAt: now},
		{GuildID: "g1", UserID: "u2", Level: "WARN", Event: "action_abandoned", Details: "member left", CreatedAt: now},
		{GuildID: "g2", UserID: "u1", Level: "INFO", Event: "action_completed", Details: "other guild", CreatedAt: now},
	}
	for _, entry := range entries {
		if err := store.AddAuditLog(ctx, entry); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	logs, err := store.ListAuditLogs(ctx, "g1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries for g1, got %d", len(logs))
	}

	logs, err = store.ListAuditLogs(ctx, "g1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("list future cutoff: %v", err)
	}
	if len(logs) != 0 {
		t.Fatalf("future cutoff should match nothing, got %d", len(logs))
	}
}

func TestLadderRatingsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rating, err := store.GetRating(ctx, "g1", "u1", 1000)
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if rating.Rating != 1000 || rating.Wins != 0 {
		t.Fatalf("fresh rating should use the base: %+v", rating)
	}

	winner := LadderRating{GuildID: "g1", UserID: "u1", Rating: 1016, Wins: 1}
	loser := LadderRating{GuildID: "g1", UserID: "u2", Rating: 984, Losses: 1}
	if err := store.RecordMatch(ctx, winner, loser); err != nil {
		t.Fatalf("record: %v", err)
	}

	top, err := store.TopRatings(ctx, "g1", 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "u1" || top[1].UserID != "u2" {
		t.Fatalf("unexpected standings: %+v", top)
	}
	if top[0].Rating != 1016 || top[0].Wins != 1 || top[1].Losses != 1 {
		t.Fatalf("ratings not persisted: %+v", top)
	}
}

func TestColorRoleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	roleID, err := store.GetColorRole(ctx, "g1", "u1")
	if err != nil || roleID != "" {
		t.Fatalf("fresh lookup: role=%q err=%v", roleID, err)
	}

	if err := store.SetColorRole(ctx, "g1", "u1", "role1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetColorRole(ctx, "g1", "u1", "role2"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	roleID, err = store.GetColorRole(ctx, "g1", "u1")
	if err != nil || roleID != "role2" {
		t.Fatalf("after set: role=%q err=%v", roleID, err)
	}

	if err := store.DeleteColorRole(ctx, "g1", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	roleID, _ = store.GetColorRole(ctx, "g1", "u1")
	if roleID != "" {
		t.Fatalf("delete did not clear the row: %q", roleID)
	}
}
