package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"guildwarden/internal/schedule"
)

// Pending-action rows store trigger and creation instants at nanosecond
// precision so the (trigger_at, created_at) drain order is stable.

func (s *Store) InsertAction(ctx context.Context, action schedule.PendingAction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_actions (id, kind, guild_id, target_id, dedupe_key, payload, trigger_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		action.ID,
		string(action.Kind),
		action.Subject.GuildID,
		action.Subject.TargetID,
		action.DedupeKey,
		string(action.Payload),
		action.TriggerAt.UnixNano(),
		action.CreatedAt.UnixNano(),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s %s", schedule.ErrDuplicate, action.Kind, action.Subject.Key())
	}
	return err
}

func (s *Store) ReplaceAction(ctx context.Context, action schedule.PendingAction) (string, error) {
	if action.DedupeKey == "" {
		return action.ID, s.InsertAction(ctx, action)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO pending_actions (id, kind, guild_id, target_id, dedupe_key, payload, trigger_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, guild_id, target_id, dedupe_key) WHERE dedupe_key != ''
		DO UPDATE SET
			payload = excluded.payload,
			trigger_at = excluded.trigger_at,
			created_at = excluded.created_at
		RETURNING id
	`,
		action.ID,
		string(action.Kind),
		action.Subject.GuildID,
		action.Subject.TargetID,
		action.DedupeKey,
		string(action.Payload),
		action.TriggerAt.UnixNano(),
		action.CreatedAt.UnixNano(),
	)
	var id string
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) DueActions(ctx context.Context, now time.Time) ([]schedule.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, guild_id, target_id, dedupe_key, payload, trigger_at, created_at
		FROM pending_actions
		WHERE trigger_at <= ?
		ORDER BY trigger_at ASC, created_at ASC
	`, now.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActions(rows)
}

func (s *Store) PeekNextAction(ctx context.Context) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT MIN(trigger_at) FROM pending_actions`)
	var next sql.NullInt64
	if err := row.Scan(&next); err != nil {
		return time.Time{}, false, err
	}
	if !next.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(0, next.Int64), true, nil
}

func (s *Store) GetAction(ctx context.Context, id string) (schedule.PendingAction, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, guild_id, target_id, dedupe_key, payload, trigger_at, created_at
		FROM pending_actions WHERE id = ?
	`, id)
	action, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.PendingAction{}, false, nil
	}
	if err != nil {
		return schedule.PendingAction{}, false, err
	}
	return action, true, nil
}

func (s *Store) DeleteAction(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id)
	return err
}

func (s *Store) CancelAction(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) RescheduleAction(ctx context.Context, id string, triggerAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE pending_actions SET trigger_at = ? WHERE id = ?
	`, triggerAt.UnixNano(), id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) UpdateActionPayload(ctx context.Context, id string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pending_actions SET payload = ? WHERE id = ?`, string(payload), id)
	return err
}

func (s *Store) ListActionsForSubject(ctx context.Context, subject schedule.Subject) ([]schedule.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, guild_id, target_id, dedupe_key, payload, trigger_at, created_at
		FROM pending_actions
		WHERE guild_id = ? AND target_id = ?
		ORDER BY trigger_at ASC, created_at ASC
	`, subject.GuildID, subject.TargetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActions(rows)
}

func (s *Store) ListAllActions(ctx context.Context) ([]schedule.PendingAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, guild_id, target_id, dedupe_key, payload, trigger_at, created_at
		FROM pending_actions
		ORDER BY trigger_at ASC, created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (schedule.PendingAction, error) {
	var action schedule.PendingAction
	var kind, payload string
	var triggerAt, createdAt int64
	err := row.Scan(
		&action.ID,
		&kind,
		&action.Subject.GuildID,
		&action.Subject.TargetID,
		&action.DedupeKey,
		&payload,
		&triggerAt,
		&createdAt,
	)
	if err != nil {
		return schedule.PendingAction{}, err
	}
	action.Kind = schedule.Kind(kind)
	action.Payload = []byte(payload)
	action.TriggerAt = time.Unix(0, triggerAt)
	action.CreatedAt = time.Unix(0, createdAt)
	return action, nil
}

func scanActions(rows *sql.Rows) ([]schedule.PendingAction, error) {
	var actions []schedule.PendingAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}
