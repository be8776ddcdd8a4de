// Package ladder tracks the TCG ELO ladder. Ratings live in the store;
// the update itself is a stateless function of the two current ratings.
package ladder

import (
	"context"
	"math"

	"guildwarden/internal/storage"
)

type Config struct {
	KFactor    float64
	BaseRating float64
}

type Engine struct {
	cfg   Config
	store *storage.Store
}

type MatchResult struct {
	Winner storage.LadderRating
	Loser  storage.LadderRating
	Delta  float64
}

func NewEngine(cfg Config, store *storage.Store) *Engine {
	if cfg.KFactor <= 0 {
		cfg.KFactor = 32
	}
	if cfg.BaseRating <= 0 {
		cfg.BaseRating = 1000
	}
	return &Engine{cfg: cfg, store: store}
}

// Expected is the standard ELO expectation of a beating b.
func Expected(a, b float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/400))
}

// ReportMatch applies one match result and persists both new ratings
// atomically.
func (e *Engine) ReportMatch(ctx context.Context, guildID, winnerID, loserID string) (MatchResult, error) {
	winner, err := e.store.GetRating(ctx, guildID, winnerID, e.cfg.BaseRating)
	if err != nil {
		return MatchResult{}, err
	}
	loser, err := e.store.GetRating(ctx, guildID, loserID, e.cfg.BaseRating)
	if err != nil {
		return MatchResult{}, err
	}

	delta := e.cfg.KFactor * (1 - Expected(winner.Rating, loser.Rating))
	winner.Rating += delta
	winner.Wins++
	loser.Rating -= delta
	loser.Losses++

	if err := e.store.RecordMatch(ctx, winner, loser); err != nil {
		return MatchResult{}, err
	}
	return MatchResult{Winner: winner, Loser: loser, Delta: delta}, nil
}

func (e *Engine) Standings(ctx context.Context, guildID string, limit int) ([]storage.LadderRating, error) {
	if limit <= 0 {
		limit = 10
	}
	return e.store.TopRatings(ctx, guildID, limit)
}
