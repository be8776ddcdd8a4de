package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type WarnRecord struct {
	GuildID   string
	UserID    string
	Level     int
	LastAt    time.Time
	LastActor string
}

func (s *Store) GetWarnRecord(ctx context.Context, guildID, userID string) (WarnRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, user_id, level, last_at, COALESCE(last_actor, '')
		FROM warn_records
		WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)

	var rec WarnRecord
	var lastAt int64
	err := row.Scan(&rec.GuildID, &rec.UserID, &rec.Level, &lastAt, &rec.LastActor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WarnRecord{GuildID: guildID, UserID: userID}, nil
		}
		return WarnRecord{}, err
	}
	rec.LastAt = time.Unix(lastAt, 0)
	return rec, nil
}

// IncrementWarn bumps the stored warn level by one and returns the new
// level. Runs in a transaction so two moderators warning at once both
// count.
func (s *Store) IncrementWarn(ctx context.Context, guildID, userID, actorID string) (int, error) {
	now := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var level int
	row := tx.QueryRowContext(ctx, `
		SELECT level FROM warn_records WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)
	scanErr := row.Scan(&level)
	if scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		err = scanErr
		return 0, err
	}

	level++
	_, err = tx.ExecContext(ctx, `
		INSERT INTO warn_records (guild_id, user_id, level, last_at, last_actor)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			level = excluded.level,
			last_at = excluded.last_at,
			last_actor = excluded.last_actor
	`, guildID, userID, level, now.Unix(), actorID)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return level, nil
}

func (s *Store) WarnLevel(ctx context.Context, guildID, userID string) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT level FROM warn_records WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)
	var level int
	if err := row.Scan(&level); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return level, nil
}

func (s *Store) SetWarnLevel(ctx context.Context, guildID, userID string, level int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warn_records (guild_id, user_id, level, last_at, last_actor)
		VALUES (?, ?, ?, ?, '')
		ON CONFLICT(guild_id, user_id) DO UPDATE SET level = excluded.level
	`, guildID, userID, level, time.Now().Unix())
	return err
}
