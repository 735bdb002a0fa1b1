package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// appendLockKey serializes appends across every process sharing the database.
const appendLockKey = 0x746f776572 // "tower"

// PostgresStore persists history in the tower_games and tower_leaderboard
// tables created by the migrations.
type PostgresStore struct {
	pool     *pgxpool.Pool
	capacity int
}

func NewPostgresStore(pool *pgxpool.Pool, capacity int) *PostgresStore {
	if capacity <= 0 {
		capacity = DefaultLeaderboardSize
	}
	return &PostgresStore{pool: pool, capacity: capacity}
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(appendLockKey)); err != nil {
			return fmt.Errorf("lock history: %w", err)
		}

		var gameID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO tower_games (identity, won, multiplier, level, stake_returned, played_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			e.Identity, e.Outcome.Won, e.Outcome.MultiplierAchieved, e.Outcome.Level,
			e.Outcome.StakeReturned, e.Timestamp,
		).Scan(&gameID)
		if err != nil {
			return fmt.Errorf("insert game: %w", err)
		}

		if !e.Outcome.Won {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO tower_leaderboard (game_id, identity, multiplier, achieved_at)
			VALUES ($1, $2, $3, $4)`,
			gameID, e.Identity, e.Outcome.MultiplierAchieved, e.Timestamp,
		); err != nil {
			return fmt.Errorf("insert leaderboard entry: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM tower_leaderboard WHERE id IN (
				SELECT id FROM tower_leaderboard
				ORDER BY multiplier DESC, achieved_at DESC, id DESC
				OFFSET $1
			)`, s.capacity,
		); err != nil {
			return fmt.Errorf("trim leaderboard: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) TopEntries(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	if n <= 0 {
		return []LeaderboardEntry{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT identity, multiplier, achieved_at
		FROM tower_leaderboard
		ORDER BY multiplier DESC, achieved_at DESC, id DESC
		LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LeaderboardEntry, error) {
		var le LeaderboardEntry
		err := row.Scan(&le.Identity, &le.Multiplier, &le.Timestamp)
		return le, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan leaderboard: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RecentGames(ctx context.Context, identity string, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT identity, won, multiplier, level, stake_returned, played_at
		FROM tower_games
		WHERE $1 = '' OR identity = $1
		ORDER BY played_at DESC, id DESC
		LIMIT $2`, identity, n)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.Identity, &e.Outcome.Won, &e.Outcome.MultiplierAchieved,
			&e.Outcome.Level, &e.Outcome.StakeReturned, &e.Timestamp)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan games: %w", err)
	}
	return out, nil
}
