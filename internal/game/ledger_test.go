package game

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	if b, _ := l.Balance(ctx, "nobody"); b != 0 {
		t.Errorf("unknown user balance = %v", b)
	}

	l.SetBalance(ctx, "bob", 1.3)
	left, err := l.Debit(ctx, "bob", 1.1)
	if err != nil {
		t.Fatal(err)
	}
	if left != 0.2 {
		t.Errorf("Debit() left %v, want 0.2", left)
	}

	if _, err := l.Debit(ctx, "bob", 5); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overdraft error = %v", err)
	}

	if b, _ := l.Credit(ctx, "bob", 0.1); b != 0.3 {
		t.Errorf("Credit() = %v, want 0.3", b)
	}
}

func TestMemoryLedger_ConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetBalance(ctx, "bob", 10)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Debit(ctx, "bob", 1); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 10 {
		t.Errorf("%d debits succeeded, want 10", ok)
	}
	if b, _ := l.Balance(ctx, "bob"); b != 0 {
		t.Errorf("balance = %v, want 0", b)
	}
}

func TestMemoryRoundStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryRoundStore()

	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrRoundNotFound) {
		t.Errorf("Load() missing error = %v", err)
	}

	round, _ := Create(fourLevelLayout(), 5, &FixedSource{draws: []int{1, 0, 1, 0}})
	if err := s.Save(ctx, &Session{RoundID: "r1", UserID: "bob", Round: round, ServerSeed: "secret"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ServerSeed != "secret" || got.Round.HazardIndex[0] != 1 || got.Round.Stake != 5 {
		t.Errorf("loaded session = %+v", got)
	}

	s.Delete(ctx, "r1")
	if _, err := s.Load(ctx, "r1"); !errors.Is(err, ErrRoundNotFound) {
		t.Errorf("Load() after Delete error = %v", err)
	}
}
