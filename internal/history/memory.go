package history

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps history in process. Appends are serialized; reads take
// a shared lock and copy, so they always see a whole board.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	games    []Entry
	board    []LeaderboardEntry
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultLeaderboardSize
	}
	return &MemoryStore{
		capacity: capacity,
		board:    make([]LeaderboardEntry, 0, capacity+1),
	}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.games = append(s.games, e)
	if !e.Outcome.Won {
		return nil
	}

	le := LeaderboardEntry{
		Identity:   e.Identity,
		Multiplier: e.Outcome.MultiplierAchieved,
		Timestamp:  e.Timestamp,
	}
	// a newcomer ranks above existing entries it ties with
	i := sort.Search(len(s.board), func(i int) bool {
		return !ranksAbove(s.board[i], le)
	})
	s.board = append(s.board, LeaderboardEntry{})
	copy(s.board[i+1:], s.board[i:])
	s.board[i] = le

	if len(s.board) > s.capacity {
		s.board = s.board[:s.capacity]
	}
	return nil
}

func (s *MemoryStore) TopEntries(_ context.Context, n int) ([]LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.board) {
		n = len(s.board)
	}
	if n <= 0 {
		return []LeaderboardEntry{}, nil
	}
	out := make([]LeaderboardEntry, n)
	copy(out, s.board[:n])
	return out, nil
}

func (s *MemoryStore) RecentGames(_ context.Context, identity string, n int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Entry{}
	for i := len(s.games) - 1; i >= 0 && len(out) < n; i-- {
		if identity == "" || s.games[i].Identity == identity {
			out = append(out, s.games[i])
		}
	}
	return out, nil
}
