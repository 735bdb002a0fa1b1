package game

import (
	"sync"
	"time"
)

type BetRequest struct {
	UserID      string  `json:"user_id"`
	Amount      float64 `json:"amount"`
	Layout      string  `json:"layout,omitempty"`
	AutoCashout float64 `json:"auto_cashout,omitempty"`
	ClientSeed  string  `json:"client_seed,omitempty"`
}

type BetResponse struct {
	RoundID        string    `json:"round_id"`
	Layout         string    `json:"layout"`
	Balance        float64   `json:"balance"`
	HashCommitment string    `json:"hash_commitment"`
	ClientSeed     string    `json:"client_seed"`
	Nonce          int       `json:"nonce"`
	Round          RoundView `json:"round"`
}

type RevealRequest struct {
	UserID  string `json:"user_id"`
	RoundID string `json:"round_id"`
	Level   int    `json:"level"`
	Slot    int    `json:"slot"`
}

type RevealResponse struct {
	RoundID  string         `json:"round_id"`
	Safe     bool           `json:"safe"`
	Round    RoundView      `json:"round"`
	Outcome  *Outcome       `json:"outcome,omitempty"`
	Balance  float64        `json:"balance,omitempty"`
	Fairness *FairnessProof `json:"fairness,omitempty"`
}

type CashoutRequest struct {
	UserID  string `json:"user_id"`
	RoundID string `json:"round_id"`
}

type CashoutResponse struct {
	RoundID  string         `json:"round_id"`
	Outcome  Outcome        `json:"outcome"`
	Balance  float64        `json:"balance"`
	Fairness *FairnessProof `json:"fairness,omitempty"`
}

// FairnessProof is disclosed only once a round is settled.
type FairnessProof struct {
	ServerSeed     string `json:"server_seed"`
	ClientSeed     string `json:"client_seed"`
	Nonce          int    `json:"nonce"`
	HashCommitment string `json:"hash_commitment"`
	HazardIndex    []int  `json:"hazard_index"`
}

// Session is a round plus everything the caller layer tracks around it.
// It is what the RoundStore persists.
type Session struct {
	RoundID        string    `json:"round_id"`
	UserID         string    `json:"user_id"`
	LayoutName     string    `json:"layout_name"`
	Round          Round     `json:"round"`
	ServerSeed     string    `json:"server_seed"`
	ClientSeed     string    `json:"client_seed"`
	Nonce          int       `json:"nonce"`
	HashCommitment string    `json:"hash_commitment"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`

	mu sync.Mutex
	// closed is set when the round was refunded and dropped without settling.
	closed bool
}

type SessionView struct {
	RoundID        string         `json:"round_id"`
	UserID         string         `json:"user_id"`
	Layout         string         `json:"layout"`
	HashCommitment string         `json:"hash_commitment"`
	Round          RoundView      `json:"round"`
	CreatedAt      time.Time      `json:"created_at"`
	EndedAt        time.Time      `json:"ended_at,omitempty"`
	Fairness       *FairnessProof `json:"fairness,omitempty"`
}

func (s *Session) view() SessionView {
	return SessionView{
		RoundID:        s.RoundID,
		UserID:         s.UserID,
		Layout:         s.LayoutName,
		HashCommitment: s.HashCommitment,
		Round:          s.Round.View(),
		CreatedAt:      s.CreatedAt,
		EndedAt:        s.EndedAt,
		Fairness:       s.proof(),
	}
}

func (s *Session) proof() *FairnessProof {
	if !s.Round.Terminal() {
		return nil
	}
	return &FairnessProof{
		ServerSeed:     s.ServerSeed,
		ClientSeed:     s.ClientSeed,
		Nonce:          s.Nonce,
		HashCommitment: s.HashCommitment,
		HazardIndex:    append([]int(nil), s.Round.HazardIndex...),
	}
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// SettlementMessage is broadcast to feed subscribers when a round ends.
type SettlementMessage struct {
	RoundID    string  `json:"round_id"`
	UserID     string  `json:"user_id"`
	Layout     string  `json:"layout"`
	Won        bool    `json:"won"`
	Level      int     `json:"level"`
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
}
