package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tower/internal/game"
)

type failingStore struct {
	*MemoryStore
	mu    sync.Mutex
	calls int
}

func (f *failingStore) Append(context.Context, Entry) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("storage unavailable")
}

type slowStore struct {
	*MemoryStore
	release chan struct{}
}

func (s *slowStore) Append(ctx context.Context, e Entry) error {
	<-s.release
	return s.MemoryStore.Append(ctx, e)
}

func TestRecorder_WritesThrough(t *testing.T) {
	store := NewMemoryStore(5)
	r, err := NewRecorder(store, 4, nil)
	if err != nil {
		t.Fatal(err)
	}

	r.Record("alice", game.Outcome{Won: true, MultiplierAchieved: 2, StakeReturned: 20}, t0)
	r.Record("bob", game.Outcome{Won: false, MultiplierAchieved: 1}, t0.Add(time.Second))

	if err := r.Close(time.Second); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	games, _ := store.RecentGames(context.Background(), "", 10)
	if len(games) != 2 {
		t.Errorf("logged %d games, want 2", len(games))
	}
	top, _ := store.TopEntries(context.Background(), 10)
	if len(top) != 1 || top[0].Identity != "alice" {
		t.Errorf("leaderboard = %+v", top)
	}
}

func TestRecorder_StoreFailureIsSwallowed(t *testing.T) {
	store := &failingStore{}
	r, _ := NewRecorder(store, 2, nil)

	r.Record("alice", game.Outcome{Won: true, MultiplierAchieved: 2}, t0)
	r.Close(time.Second)

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.calls != 1 {
		t.Errorf("store called %d times, want 1", store.calls)
	}
}

func TestRecorder_NeverBlocks(t *testing.T) {
	store := &slowStore{MemoryStore: NewMemoryStore(5), release: make(chan struct{})}
	r, _ := NewRecorder(store, 1, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			r.Record("alice", game.Outcome{Won: true, MultiplierAchieved: 2}, t0)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record() blocked on a saturated pool")
	}

	close(store.release)
	r.Close(time.Second)
}
