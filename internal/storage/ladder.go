package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type LadderRating struct {
	GuildID string
	UserID  string
	Rating  float64
	Wins    int
	Losses  int
}

func (s *Store) GetRating(ctx context.Context, guildID, userID string, base float64) (LadderRating, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, user_id, rating, wins, losses
		FROM ladder_ratings
		WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)

	var rating LadderRating
	err := row.Scan(&rating.GuildID, &rating.UserID, &rating.Rating, &rating.Wins, &rating.Losses)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LadderRating{GuildID: guildID, UserID: userID, Rating: base}, nil
		}
		return LadderRating{}, err
	}
	return rating, nil
}

// RecordMatch writes both players' updated ratings in one transaction.
func (s *Store) RecordMatch(ctx context.Context, winner, loser LadderRating) error {
	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := `
		INSERT INTO ladder_ratings (guild_id, user_id, rating, wins, losses, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			rating = excluded.rating,
			wins = excluded.wins,
			losses = excluded.losses,
			updated_at = excluded.updated_at
	`
	if _, err = tx.ExecContext(ctx, upsert, winner.GuildID, winner.UserID, winner.Rating, winner.Wins, winner.Losses, now); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, upsert, loser.GuildID, loser.UserID, loser.Rating, loser.Wins, loser.Losses, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) TopRatings(ctx context.Context, guildID string, limit int) ([]LadderRating, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, user_id, rating, wins, losses
		FROM ladder_ratings
		WHERE guild_id = ?
		ORDER BY rating DESC
		LIMIT ?
	`, guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ratings []LadderRating
	for rows.Next() {
		var rating LadderRating
		if err := rows.Scan(&rating.GuildID, &rating.UserID, &rating.Rating, &rating.Wins, &rating.Losses); err != nil {
			return nil, err
		}
		ratings = append(ratings, rating)
	}
	return ratings, rows.Err()
}

// Color roles are per-member cosmetic roles; the store tracks which role
// id belongs to which member so repeat commands edit instead of stacking.

func (s *Store) GetColorRole(ctx context.Context, guildID, userID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT role_id FROM color_roles WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)
	var roleID string
	if err := row.Scan(&roleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return roleID, nil
}

func (s *Store) SetColorRole(ctx context.Context, guildID, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO color_roles (guild_id, user_id, role_id)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET role_id = excluded.role_id
	`, guildID, userID, roleID)
	return err
}

func (s *Store) DeleteColorRole(ctx context.Context, guildID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM color_roles WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return err
}
