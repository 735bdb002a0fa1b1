package game

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCashedOut Status = "CASHED_OUT"
	StatusBusted    Status = "BUSTED"

	Unrevealed = -1

	payoutPlaces = 8
)

// Round is one play of the tower. It is treated as a value: Reveal and
// CashOut return an updated copy and never touch the Round they were given.
type Round struct {
	Layout         LayoutConfig `json:"layout"`
	Stake          float64      `json:"stake"`
	AutoCashTarget float64      `json:"auto_cash_target,omitempty"` // 0 means unset
	HazardIndex    []int        `json:"hazard_index"`
	RevealedIndex  []int        `json:"revealed_index"`
	// HazardsShown is set on bust, when the full hazard map becomes visible.
	HazardsShown bool     `json:"hazards_shown"`
	CurrentLevel int      `json:"current_level"`
	Status       Status   `json:"status"`
	Outcome      *Outcome `json:"outcome,omitempty"`
}

// Outcome is the settlement of a terminal round.
type Outcome struct {
	Won                bool    `json:"won"`
	MultiplierAchieved float64 `json:"multiplier_achieved"`
	Level              int     `json:"level"`
	StakeReturned      float64 `json:"stake_returned"`
}

type CreateOption func(*Round)

// WithAutoCashout settles the round as a win as soon as a safe reveal
// reaches a multiplier >= target.
func WithAutoCashout(target float64) CreateOption {
	return func(r *Round) {
		r.AutoCashTarget = target
	}
}

// Create starts a round. Every hazard is drawn here, once, from src.
func Create(layout LayoutConfig, stake float64, src RandomSource, opts ...CreateOption) (Round, error) {
	if err := layout.Validate(); err != nil {
		return Round{}, err
	}
	if stake <= 0 || math.IsNaN(stake) || math.IsInf(stake, 0) {
		return Round{}, fmt.Errorf("%w: stake must be positive, got %v", ErrInvalidConfig, stake)
	}
	if src == nil {
		return Round{}, fmt.Errorf("%w: random source is required", ErrInvalidConfig)
	}

	r := Round{
		Layout:        layout.clone(),
		Stake:         stake,
		HazardIndex:   make([]int, len(layout.Levels)),
		RevealedIndex: make([]int, len(layout.Levels)),
		CurrentLevel:  0,
		Status:        StatusActive,
	}
	for _, opt := range opts {
		opt(&r)
	}
	if r.AutoCashTarget < 0 || math.IsNaN(r.AutoCashTarget) {
		return Round{}, fmt.Errorf("%w: auto cash-out target must not be negative", ErrInvalidConfig)
	}

	for level, width := range layout.Levels {
		r.HazardIndex[level] = src.Intn(width)
		r.RevealedIndex[level] = Unrevealed
	}
	return r, nil
}

// Reveal opens slotIndex on the given level. The returned Outcome is nil
// unless the reveal ended the round.
func Reveal(r Round, level, slotIndex int) (Round, *Outcome, error) {
	if r.Status != StatusActive {
		return r, nil, fmt.Errorf("%w: round is %s", ErrInvalidState, r.Status)
	}
	if level < 0 || level >= len(r.Layout.Levels) {
		return r, nil, fmt.Errorf("%w: level %d, current level is %d", ErrWrongLevel, level, r.CurrentLevel)
	}
	if r.RevealedIndex[level] != Unrevealed {
		return r, nil, fmt.Errorf("%w: level %d", ErrAlreadyRevealed, level)
	}
	if level != r.CurrentLevel {
		return r, nil, fmt.Errorf("%w: level %d, current level is %d", ErrWrongLevel, level, r.CurrentLevel)
	}
	if width := r.Layout.Levels[level]; slotIndex < 0 || slotIndex >= width {
		return r, nil, fmt.Errorf("%w: slot %d not in [0, %d)", ErrOutOfRange, slotIndex, width)
	}

	next := r.clone()
	next.RevealedIndex[level] = slotIndex

	if slotIndex == next.HazardIndex[level] {
		next.Status = StatusBusted
		next.HazardsShown = true
		out := &Outcome{
			Won:                false,
			MultiplierAchieved: next.Layout.MultiplierAfter(level),
			Level:              level,
			StakeReturned:      0,
		}
		next.Outcome = out
		return next, out, nil
	}

	next.CurrentLevel++
	multiplier := next.Layout.MultiplierAfter(next.CurrentLevel)

	if next.CurrentLevel == len(next.Layout.Levels) {
		out := next.settleWin(multiplier)
		return next, out, nil
	}
	if next.AutoCashTarget > 0 && multiplier >= next.AutoCashTarget {
		out := next.settleWin(multiplier)
		return next, out, nil
	}
	return next, nil, nil
}

// CashOut banks the multiplier of the highest cleared level.
func CashOut(r Round) (Round, *Outcome, error) {
	if r.Status != StatusActive {
		return r, nil, fmt.Errorf("%w: round is %s", ErrInvalidState, r.Status)
	}
	if r.CurrentLevel == 0 {
		return r, nil, fmt.Errorf("%w: nothing to cash out before the first safe reveal", ErrInvalidState)
	}

	next := r.clone()
	out := next.settleWin(next.Layout.MultiplierAfter(next.CurrentLevel))
	return next, out, nil
}

func (r *Round) settleWin(multiplier float64) *Outcome {
	r.Status = StatusCashedOut
	out := &Outcome{
		Won:                true,
		MultiplierAchieved: multiplier,
		Level:              r.CurrentLevel,
		StakeReturned:      Payout(r.Stake, multiplier),
	}
	r.Outcome = out
	return out
}

// Payout is stake * multiplier in decimal arithmetic, rounded to 8 places.
func Payout(stake, multiplier float64) float64 {
	p, _ := decimal.NewFromFloat(stake).
		Mul(decimal.NewFromFloat(multiplier)).
		Round(payoutPlaces).
		Float64()
	return p
}

// Multiplier is the multiplier currently banked by the round.
func (r Round) Multiplier() float64 {
	return r.Layout.MultiplierAfter(r.CurrentLevel)
}

func (r Round) Terminal() bool {
	return r.Status != StatusActive
}

func (r Round) clone() Round {
	out := r
	out.Layout = r.Layout.clone()
	out.HazardIndex = append([]int(nil), r.HazardIndex...)
	out.RevealedIndex = append([]int(nil), r.RevealedIndex...)
	if r.Outcome != nil {
		o := *r.Outcome
		out.Outcome = &o
	}
	return out
}

// RoundView is what a player may see of a round. Hazards appear only once
// the round is busted.
type RoundView struct {
	Levels         []int     `json:"levels"`
	Multipliers    []float64 `json:"multipliers"`
	Stake          float64   `json:"stake"`
	AutoCashTarget float64   `json:"auto_cash_target,omitempty"`
	RevealedIndex  []int     `json:"revealed_index"`
	HazardIndex    []int     `json:"hazard_index,omitempty"`
	CurrentLevel   int       `json:"current_level"`
	Multiplier     float64   `json:"multiplier"`
	Status         Status    `json:"status"`
	Outcome        *Outcome  `json:"outcome,omitempty"`
}

func (r Round) View() RoundView {
	c := r.clone()
	v := RoundView{
		Levels:         c.Layout.Levels,
		Multipliers:    c.Layout.Multipliers,
		Stake:          c.Stake,
		AutoCashTarget: c.AutoCashTarget,
		RevealedIndex:  c.RevealedIndex,
		CurrentLevel:   c.CurrentLevel,
		Multiplier:     c.Multiplier(),
		Status:         c.Status,
		Outcome:        c.Outcome,
	}
	if c.HazardsShown {
		v.HazardIndex = c.HazardIndex
	}
	return v
}
