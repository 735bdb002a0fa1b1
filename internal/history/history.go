// Package history records settled tower rounds: an append-only game log and
// a bounded leaderboard of the best wins.
package history

import (
	"context"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"tower/internal/game"
)

const DefaultLeaderboardSize = 10

// Entry is one settled round in the game log.
type Entry struct {
	Identity  string       `json:"identity"`
	Outcome   game.Outcome `json:"outcome"`
	Timestamp time.Time    `json:"timestamp"`
}

// LeaderboardEntry is a winning round ranked by multiplier.
type LeaderboardEntry struct {
	Identity   string    `json:"identity"`
	Multiplier float64   `json:"multiplier"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store is the HistoryStore. Append always logs the entry and, for a win,
// ranks it on the leaderboard, evicting the lowest-ranked entry once the
// board is over capacity. Reads never observe a half-applied Append.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// TopEntries returns up to n leaderboard entries, highest multiplier
	// first and most recent first on ties.
	TopEntries(ctx context.Context, n int) ([]LeaderboardEntry, error)
	// RecentGames returns up to n log entries for identity, newest first.
	// An empty identity reads the whole log.
	RecentGames(ctx context.Context, identity string, n int) ([]Entry, error)
}

// LeaderboardSizeFromEnv reads HISTORY_LEADERBOARD_SIZE.
func LeaderboardSizeFromEnv() int {
	if val := os.Getenv("HISTORY_LEADERBOARD_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return DefaultLeaderboardSize
}

// ranksAbove orders leaderboard entries: multiplier desc, then newest first.
func ranksAbove(a, b LeaderboardEntry) bool {
	if a.Multiplier != b.Multiplier {
		return a.Multiplier > b.Multiplier
	}
	return a.Timestamp.After(b.Timestamp)
}
