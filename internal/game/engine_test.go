package game

import (
	"errors"
	"reflect"
	"testing"
)

// FixedSource returns scripted draws in order, then zeros.
type FixedSource struct {
	draws []int
	i     int
}

func (f *FixedSource) Intn(n int) int {
	if f.i >= len(f.draws) {
		return 0
	}
	v := f.draws[f.i] % n
	f.i++
	return v
}

func twoLevelLayout() LayoutConfig {
	return LayoutConfig{Name: "test", Levels: []int{3, 3}, Multipliers: []float64{1.5, 2.0}}
}

func fourLevelLayout() LayoutConfig {
	return LayoutConfig{Name: "test4", Levels: []int{2, 2, 2, 2}, Multipliers: []float64{1.2, 1.5, 2.0, 3.0}}
}

// safeSlot returns a slot on the given level that is not the hazard.
func safeSlot(r Round, level int) int {
	if r.HazardIndex[level] == 0 {
		return 1
	}
	return 0
}

func TestCreate(t *testing.T) {
	t.Run("draws one hazard per level", func(t *testing.T) {
		layout := DefaultLayouts()
		classic, _ := layout.Get(LayoutClassic)
		r, err := Create(classic, 1.0, CryptoSource{})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if len(r.HazardIndex) != classic.LevelCount() {
			t.Fatalf("got %d hazards, want %d", len(r.HazardIndex), classic.LevelCount())
		}
		for level, h := range r.HazardIndex {
			if h < 0 || h >= classic.Levels[level] {
				t.Errorf("hazard %d at level %d outside [0, %d)", h, level, classic.Levels[level])
			}
			if r.RevealedIndex[level] != Unrevealed {
				t.Errorf("level %d should start unrevealed", level)
			}
		}
		if r.Status != StatusActive || r.CurrentLevel != 0 {
			t.Errorf("new round status=%s level=%d", r.Status, r.CurrentLevel)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		tests := []struct {
			name   string
			layout LayoutConfig
			stake  float64
			src    RandomSource
			opts   []CreateOption
		}{
			{"zero stake", twoLevelLayout(), 0, CryptoSource{}, nil},
			{"negative stake", twoLevelLayout(), -1, CryptoSource{}, nil},
			{"mismatched lengths", LayoutConfig{Levels: []int{3, 3}, Multipliers: []float64{1.5}}, 1, CryptoSource{}, nil},
			{"degenerate width", LayoutConfig{Levels: []int{1, 3}, Multipliers: []float64{1.5, 2}}, 1, CryptoSource{}, nil},
			{"flat multipliers", LayoutConfig{Levels: []int{3, 3}, Multipliers: []float64{1.5, 1.5}}, 1, CryptoSource{}, nil},
			{"empty layout", LayoutConfig{}, 1, CryptoSource{}, nil},
			{"nil source", twoLevelLayout(), 1, nil, nil},
			{"negative auto cashout", twoLevelLayout(), 1, CryptoSource{}, []CreateOption{WithAutoCashout(-2)}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Create(tt.layout, tt.stake, tt.src, tt.opts...)
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Create() error = %v, want ErrInvalidConfig", err)
				}
			})
		}
	})

	t.Run("layout is copied", func(t *testing.T) {
		layout := twoLevelLayout()
		r, _ := Create(layout, 1, &FixedSource{})
		layout.Levels[0] = 99
		if r.Layout.Levels[0] != 3 {
			t.Error("round layout changed with the caller's slice")
		}
	})
}

func TestCreate_HazardDistribution(t *testing.T) {
	layout := LayoutConfig{Levels: []int{2, 4, 6}, Multipliers: []float64{1.5, 2, 3}}
	const rounds = 30000

	counts := make([][]int, len(layout.Levels))
	for i, w := range layout.Levels {
		counts[i] = make([]int, w)
	}
	src := NewSeededSource("distribution", "client", 1)
	for i := 0; i < rounds; i++ {
		r, err := Create(layout, 1, src)
		if err != nil {
			t.Fatal(err)
		}
		for level, h := range r.HazardIndex {
			counts[level][h]++
		}
	}

	for level, w := range layout.Levels {
		expected := float64(rounds) / float64(w)
		for slot, c := range counts[level] {
			dev := (float64(c) - expected) / expected
			if dev < -0.05 || dev > 0.05 {
				t.Errorf("level %d slot %d drawn %d times, expected ~%.0f", level, slot, c, expected)
			}
		}
	}
}

func TestReveal_Scenarios(t *testing.T) {
	t.Run("clearing the tower settles at the top multiplier", func(t *testing.T) {
		r, err := Create(twoLevelLayout(), 1.0, &FixedSource{draws: []int{1, 0}})
		if err != nil {
			t.Fatal(err)
		}

		r, out, err := Reveal(r, 0, 0)
		if err != nil || out != nil {
			t.Fatalf("Reveal(0,0) = %v, %v", out, err)
		}
		if r.CurrentLevel != 1 || r.Status != StatusActive {
			t.Fatalf("after first reveal level=%d status=%s", r.CurrentLevel, r.Status)
		}

		r, out, err = Reveal(r, 1, 1)
		if err != nil {
			t.Fatal(err)
		}
		want := &Outcome{Won: true, MultiplierAchieved: 2.0, Level: 2, StakeReturned: 2.0}
		if !reflect.DeepEqual(out, want) {
			t.Errorf("outcome = %+v, want %+v", out, want)
		}
		if r.Status != StatusCashedOut {
			t.Errorf("status = %s, want CASHED_OUT", r.Status)
		}
	})

	t.Run("hazard on the first level busts at 1.0", func(t *testing.T) {
		r, _ := Create(twoLevelLayout(), 1.0, &FixedSource{draws: []int{1, 0}})

		r, out, err := Reveal(r, 0, 1)
		if err != nil {
			t.Fatal(err)
		}
		want := &Outcome{Won: false, MultiplierAchieved: 1.0, Level: 0, StakeReturned: 0}
		if !reflect.DeepEqual(out, want) {
			t.Errorf("outcome = %+v, want %+v", out, want)
		}
		if r.Status != StatusBusted {
			t.Errorf("status = %s, want BUSTED", r.Status)
		}
	})
}

func TestReveal_Bust(t *testing.T) {
	r, _ := Create(fourLevelLayout(), 10, &FixedSource{draws: []int{0, 0, 1, 0}})
	hazards := append([]int(nil), r.HazardIndex...)

	r, _, _ = Reveal(r, 0, 1)
	r, _, _ = Reveal(r, 1, 1)

	if r.View().HazardIndex != nil {
		t.Error("hazards must stay hidden while the round is active")
	}

	r, out, err := Reveal(r, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if out.Won || out.StakeReturned != 0 {
		t.Errorf("bust outcome = %+v", out)
	}
	if out.MultiplierAchieved != 1.5 || out.Level != 2 {
		t.Errorf("bust at level 2 should report multiplier 1.5, got %+v", out)
	}
	if !reflect.DeepEqual(r.HazardIndex, hazards) {
		t.Errorf("hazards changed on bust: %v -> %v", hazards, r.HazardIndex)
	}
	if !reflect.DeepEqual(r.View().HazardIndex, hazards) {
		t.Errorf("bust should disclose the hazard map, got %v", r.View().HazardIndex)
	}

	if _, _, err := Reveal(r, 3, 0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reveal after bust error = %v, want ErrInvalidState", err)
	}
}

func TestReveal_Validation(t *testing.T) {
	base, _ := Create(fourLevelLayout(), 1, &FixedSource{draws: []int{0, 0, 0, 0}})
	advanced, _, _ := Reveal(base, 0, 1)

	tests := []struct {
		name  string
		round Round
		level int
		slot  int
		want  error
	}{
		{"future level", base, 1, 0, ErrWrongLevel},
		{"negative level", base, -1, 0, ErrWrongLevel},
		{"beyond last level", base, 4, 0, ErrWrongLevel},
		{"revealed level", advanced, 0, 1, ErrAlreadyRevealed},
		{"slot too large", base, 0, 2, ErrOutOfRange},
		{"negative slot", base, 0, -1, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.round.clone()
			after, out, err := Reveal(tt.round, tt.level, tt.slot)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Reveal() error = %v, want %v", err, tt.want)
			}
			if out != nil {
				t.Error("rejected reveal returned an outcome")
			}
			if !reflect.DeepEqual(after, before) || !reflect.DeepEqual(tt.round, before) {
				t.Error("rejected reveal changed the round")
			}
		})
	}
}

func TestReveal_DoesNotMutateInput(t *testing.T) {
	r, _ := Create(fourLevelLayout(), 1, &FixedSource{draws: []int{0, 0, 0, 0}})
	before := r.clone()

	next, _, err := Reveal(r, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(r, before) {
		t.Error("Reveal mutated the round it was given")
	}
	if next.CurrentLevel != 1 {
		t.Errorf("next.CurrentLevel = %d, want 1", next.CurrentLevel)
	}
}

func TestCashOut(t *testing.T) {
	layout := fourLevelLayout()

	t.Run("multiplier grows with every safe reveal", func(t *testing.T) {
		prev := 0.0
		for cleared := 1; cleared < layout.LevelCount(); cleared++ {
			r, _ := Create(layout, 10, &FixedSource{draws: []int{0, 0, 0, 0}})
			for level := 0; level < cleared; level++ {
				r, _, _ = Reveal(r, level, safeSlot(r, level))
			}
			_, out, err := CashOut(r)
			if err != nil {
				t.Fatal(err)
			}
			if out.MultiplierAchieved != layout.Multipliers[cleared-1] {
				t.Errorf("cleared %d: multiplier = %v, want %v", cleared, out.MultiplierAchieved, layout.Multipliers[cleared-1])
			}
			if out.MultiplierAchieved <= prev {
				t.Errorf("cleared %d: multiplier %v not above %v", cleared, out.MultiplierAchieved, prev)
			}
			if out.StakeReturned != Payout(10, out.MultiplierAchieved) || out.Level != cleared || !out.Won {
				t.Errorf("cleared %d: outcome = %+v", cleared, out)
			}
			prev = out.MultiplierAchieved
		}
	})

	t.Run("nothing cleared", func(t *testing.T) {
		r, _ := Create(layout, 10, &FixedSource{})
		after, out, err := CashOut(r)
		if !errors.Is(err, ErrInvalidState) || out != nil {
			t.Errorf("CashOut() = %v, %v; want ErrInvalidState", out, err)
		}
		if after.Status != StatusActive {
			t.Error("rejected cash-out changed the status")
		}
	})

	t.Run("second cash-out is rejected", func(t *testing.T) {
		r, _ := Create(layout, 10, &FixedSource{draws: []int{0, 0, 0, 0}})
		r, _, _ = Reveal(r, 0, 1)
		r, first, err := CashOut(r)
		if err != nil {
			t.Fatal(err)
		}
		again, out, err := CashOut(r)
		if !errors.Is(err, ErrInvalidState) || out != nil {
			t.Errorf("second CashOut() = %v, %v", out, err)
		}
		if !reflect.DeepEqual(again.Outcome, first) {
			t.Errorf("settled outcome changed: %+v -> %+v", first, again.Outcome)
		}
	})

	t.Run("busted round", func(t *testing.T) {
		r, _ := Create(layout, 10, &FixedSource{draws: []int{0, 0, 0, 0}})
		r, _, _ = Reveal(r, 0, 1)
		r, _, _ = Reveal(r, 1, 0)
		if _, _, err := CashOut(r); !errors.Is(err, ErrInvalidState) {
			t.Errorf("CashOut() on busted round error = %v", err)
		}
	})
}

func TestAutoCashout(t *testing.T) {
	layout := fourLevelLayout()
	r, err := Create(layout, 2, &FixedSource{draws: []int{0, 0, 0, 0}}, WithAutoCashout(layout.Multipliers[2]))
	if err != nil {
		t.Fatal(err)
	}

	for level := 0; level < 2; level++ {
		var out *Outcome
		r, out, err = Reveal(r, level, 1)
		if err != nil || out != nil {
			t.Fatalf("reveal %d: outcome=%v err=%v", level, out, err)
		}
	}

	r, out, err := Reveal(r, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil || !out.Won || out.MultiplierAchieved != layout.Multipliers[2] || out.Level != 3 {
		t.Fatalf("third safe reveal outcome = %+v", out)
	}
	if out.StakeReturned != 4 {
		t.Errorf("stake returned = %v, want 4", out.StakeReturned)
	}
	if r.Status != StatusCashedOut {
		t.Errorf("status = %s", r.Status)
	}
	if _, _, err := Reveal(r, 3, 1); !errors.Is(err, ErrInvalidState) {
		t.Errorf("fourth reveal error = %v, want ErrInvalidState", err)
	}
}

func TestPayout(t *testing.T) {
	tests := []struct {
		stake, multiplier, want float64
	}{
		{1, 2, 2},
		{0.1, 3, 0.3},
		{10, 1.1, 11},
		{3.33, 1.32, 4.3956},
	}
	for _, tt := range tests {
		if got := Payout(tt.stake, tt.multiplier); got != tt.want {
			t.Errorf("Payout(%v, %v) = %v, want %v", tt.stake, tt.multiplier, got, tt.want)
		}
	}
}
