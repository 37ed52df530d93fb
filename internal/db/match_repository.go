package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MatchResult is one finished (or aborted) match as recorded in history.
type MatchResult struct {
	BlackName  string
	WhiteName  string
	Winner     string // "black", "white" or "" when the game never finished
	BlackScore int
	WhiteScore int
	Reason     string // "finished", "abandoned" or "disconnect"
	StartedAt  time.Time
	EndedAt    time.Time
}

// MatchRepository stores match results in PostgreSQL.
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository creates a repository over the given pool.
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// RecordMatch inserts one match result.
func (r *MatchRepository) RecordMatch(ctx context.Context, m MatchResult) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO matches
		   (black_name, white_name, winner, black_score, white_score, reason, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.BlackName, m.WhiteName, m.Winner, m.BlackScore, m.WhiteScore,
		m.Reason, m.StartedAt, m.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("recording match %s vs %s: %w", m.BlackName, m.WhiteName, err)
	}
	return nil
}

// RecentMatches returns up to limit most recently finished matches.
func (r *MatchRepository) RecentMatches(ctx context.Context, limit int) ([]MatchResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT black_name, white_name, winner, black_score, white_score, reason, started_at, ended_at
		 FROM matches ORDER BY ended_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent matches: %w", err)
	}
	defer rows.Close()

	var out []MatchResult
	for rows.Next() {
		var m MatchResult
		if err := rows.Scan(&m.BlackName, &m.WhiteName, &m.Winner,
			&m.BlackScore, &m.WhiteScore, &m.Reason, &m.StartedAt, &m.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning match row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match rows: %w", err)
	}
	return out, nil
}
