package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tower/internal/metrics"
)

const (
	MAX_BET_AMOUNT = 10000.0
	MIN_BET_AMOUNT = 0.1

	DEFAULT_IDLE_TIMEOUT = 15 * time.Minute
	SWEEP_INTERVAL       = 30 * time.Second
)

// Recorder receives every settled outcome. Implementations must not block.
type Recorder interface {
	Record(userID string, out Outcome, at time.Time)
}

// Manager is the session layer around the engine. It owns active rounds,
// serializes calls against each of them, moves funds through the Ledger and
// reports settlements to history, metrics and the websocket feed.
type Manager struct {
	layouts       *Layouts
	defaultLayout string
	store         RoundStore
	ledger        Ledger
	recorder      Recorder
	hub           *Hub
	log           *zap.Logger

	now      func() time.Time
	seed     func() string
	shuffle  RandomSource
	nonce    atomic.Int64
	mu       sync.RWMutex
	sessions map[string]*Session
}

type ManagerOption func(*Manager)

func WithDefaultLayout(name string) ManagerOption {
	return func(m *Manager) { m.defaultLayout = strings.ToLower(name) }
}

func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = r }
}

func WithHub(h *Hub) ManagerOption {
	return func(m *Manager) { m.hub = h }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithSeedFunc replaces the server seed generator.
func WithSeedFunc(seed func() string) ManagerOption {
	return func(m *Manager) { m.seed = seed }
}

// WithShuffleSource replaces the source used to pick a layout for shuffle bets.
func WithShuffleSource(src RandomSource) ManagerOption {
	return func(m *Manager) { m.shuffle = src }
}

func NewManager(layouts *Layouts, store RoundStore, ledger Ledger, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		layouts:       layouts,
		defaultLayout: LayoutClassic,
		store:         store,
		ledger:        ledger,
		log:           logger.Named("tower"),
		now:           time.Now,
		seed:          GenerateSeed,
		shuffle:       CryptoSource{},
		sessions:      make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Layouts() []LayoutConfig {
	names := m.layouts.Names()
	out := make([]LayoutConfig, 0, len(names))
	for _, name := range names {
		l, _ := m.layouts.Get(name)
		out = append(out, l)
	}
	return out
}

// Bet debits the stake and opens a new round.
func (m *Manager) Bet(ctx context.Context, req BetRequest) (BetResponse, error) {
	if req.UserID == "" {
		return BetResponse{}, fmt.Errorf("%w: user id is required", ErrInvalidConfig)
	}
	if req.Amount < MIN_BET_AMOUNT || req.Amount > MAX_BET_AMOUNT {
		return BetResponse{}, fmt.Errorf("%w: bet must be between %.2f and %.2f", ErrInvalidConfig, MIN_BET_AMOUNT, MAX_BET_AMOUNT)
	}

	layoutName := req.Layout
	switch strings.ToLower(strings.TrimSpace(layoutName)) {
	case "":
		layoutName = m.defaultLayout
	case LayoutShuffle:
		names := m.layouts.Names()
		if len(names) == 0 {
			return BetResponse{}, fmt.Errorf("%w: no layouts registered", ErrInvalidConfig)
		}
		layoutName = names[m.shuffle.Intn(len(names))]
	}
	layout, ok := m.layouts.Get(layoutName)
	if !ok {
		return BetResponse{}, fmt.Errorf("%w: unknown layout %q", ErrInvalidConfig, layoutName)
	}

	serverSeed := m.seed()
	clientSeed := req.ClientSeed
	if clientSeed == "" {
		clientSeed = GenerateSeed()
	}
	nonce := int(m.nonce.Add(1))

	round, err := Create(layout, req.Amount, NewSeededSource(serverSeed, clientSeed, nonce), WithAutoCashout(req.AutoCashout))
	if err != nil {
		return BetResponse{}, err
	}

	balance, err := m.ledger.Debit(ctx, req.UserID, req.Amount)
	if err != nil {
		return BetResponse{Balance: balance}, err
	}

	now := m.now()
	sess := &Session{
		RoundID:        uuid.NewString(),
		UserID:         req.UserID,
		LayoutName:     layout.Name,
		Round:          round,
		ServerSeed:     serverSeed,
		ClientSeed:     clientSeed,
		Nonce:          nonce,
		HashCommitment: HashCommitment(serverSeed),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	m.mu.Lock()
	m.sessions[sess.RoundID] = sess
	m.mu.Unlock()
	m.persist(ctx, sess)

	metrics.RoundStarted(layout.Name, req.Amount)
	m.log.Info("round started",
		zap.String("round_id", sess.RoundID),
		zap.String("user_id", req.UserID),
		zap.String("layout", layout.Name),
		zap.Float64("stake", req.Amount),
		zap.Float64("auto_cashout", req.AutoCashout))

	return BetResponse{
		RoundID:        sess.RoundID,
		Layout:         layout.Name,
		Balance:        balance,
		HashCommitment: sess.HashCommitment,
		ClientSeed:     clientSeed,
		Nonce:          nonce,
		Round:          round.View(),
	}, nil
}

func (m *Manager) Reveal(ctx context.Context, req RevealRequest) (RevealResponse, error) {
	sess, err := m.owned(ctx, req.UserID, req.RoundID)
	if err != nil {
		return RevealResponse{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return RevealResponse{}, ErrRoundNotFound
	}

	next, out, err := Reveal(sess.Round, req.Level, req.Slot)
	if err != nil {
		metrics.ActionRejected(rejectReason(err))
		return RevealResponse{}, err
	}
	sess.Round = next
	sess.UpdatedAt = m.now()

	resp := RevealResponse{
		RoundID: sess.RoundID,
		Safe:    next.Status != StatusBusted,
		Round:   next.View(),
	}
	if out == nil {
		m.persist(ctx, sess)
		return resp, nil
	}

	result := metrics.ResultBust
	if out.Won {
		result = metrics.ResultAutoCashout
		if next.CurrentLevel == next.Layout.LevelCount() {
			result = metrics.ResultTop
		}
	}
	resp.Outcome = out
	resp.Fairness = sess.proof()
	resp.Balance, err = m.settle(ctx, sess, *out, result)
	return resp, err
}

func (m *Manager) CashOut(ctx context.Context, req CashoutRequest) (CashoutResponse, error) {
	sess, err := m.owned(ctx, req.UserID, req.RoundID)
	if err != nil {
		return CashoutResponse{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return CashoutResponse{}, ErrRoundNotFound
	}

	next, out, err := CashOut(sess.Round)
	if err != nil {
		metrics.ActionRejected(rejectReason(err))
		return CashoutResponse{}, err
	}
	sess.Round = next
	sess.UpdatedAt = m.now()

	resp := CashoutResponse{
		RoundID:  sess.RoundID,
		Outcome:  *out,
		Fairness: sess.proof(),
	}
	resp.Balance, err = m.settle(ctx, sess, *out, metrics.ResultCashout)
	return resp, err
}

// Round returns the caller-safe view of a round, active or settled.
func (m *Manager) Round(ctx context.Context, roundID string) (SessionView, error) {
	sess, err := m.session(ctx, roundID)
	if err != nil {
		return SessionView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

func (m *Manager) Balance(ctx context.Context, userID string) (float64, error) {
	return m.ledger.Balance(ctx, userID)
}

func (m *Manager) SetBalance(ctx context.Context, userID string, amount float64) error {
	return m.ledger.SetBalance(ctx, userID, amount)
}

// ExpireIdle settles rounds nobody has touched for maxIdle. A round with at
// least one cleared level is cashed out; an untouched round is dropped from
// the store and then refunded. Settled rounds whose final save failed are
// saved again.
func (m *Manager) ExpireIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		candidates = append(candidates, sess)
	}
	m.mu.RUnlock()

	expired := 0
	for _, sess := range candidates {
		if m.expire(ctx, sess, cutoff) {
			expired++
		}
	}
	if expired > 0 {
		m.log.Info("expired idle rounds", zap.Int("count", expired))
	}
	return expired
}

func (m *Manager) expire(ctx context.Context, sess *Session, cutoff time.Time) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.closed {
		return false
	}
	if sess.Round.Terminal() {
		// settled earlier but the final state never reached the store
		if m.persist(ctx, sess) == nil {
			m.forget(sess.RoundID)
		}
		return false
	}
	if !sess.UpdatedAt.Before(cutoff) {
		return false
	}

	if sess.Round.CurrentLevel > 0 {
		next, out, err := CashOut(sess.Round)
		if err != nil {
			return false
		}
		sess.Round = next
		if _, err := m.settle(ctx, sess, *out, metrics.ResultExpired); err != nil {
			m.log.Error("settle expired round", zap.String("round_id", sess.RoundID), zap.Error(err))
		}
		return true
	}

	// The stored copy goes first so a refunded round can never be reloaded.
	if err := m.store.Delete(ctx, sess.RoundID); err != nil {
		m.log.Warn("delete expired round", zap.String("round_id", sess.RoundID), zap.Error(err))
		return false
	}
	if _, err := m.ledger.Credit(ctx, sess.UserID, sess.Round.Stake); err != nil {
		m.log.Error("refund expired round", zap.String("round_id", sess.RoundID), zap.Error(err))
		m.persist(ctx, sess)
		return false
	}
	sess.closed = true
	m.forget(sess.RoundID)
	metrics.RoundSettled(sess.LayoutName, metrics.ResultExpired, 1.0, 0)
	m.log.Info("refunded untouched round",
		zap.String("round_id", sess.RoundID),
		zap.String("user_id", sess.UserID),
		zap.Float64("stake", sess.Round.Stake))
	return true
}

// RunSweeper calls ExpireIdle every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.ExpireIdle(ctx, maxIdle)
		}
	}
}

// settle runs once per round, with sess.mu held, after the engine has
// produced the outcome. Only a failed credit is returned. A session whose
// terminal state could not be saved stays in memory, where it rejects further
// moves, until the sweeper manages to save it.
func (m *Manager) settle(ctx context.Context, sess *Session, out Outcome, result string) (float64, error) {
	sess.EndedAt = m.now()
	sess.UpdatedAt = sess.EndedAt
	if m.persist(ctx, sess) == nil {
		m.forget(sess.RoundID)
	}

	var (
		balance float64
		err     error
	)
	if out.StakeReturned > 0 {
		balance, err = m.ledger.Credit(ctx, sess.UserID, out.StakeReturned)
		if err != nil {
			m.log.Error("credit payout",
				zap.String("round_id", sess.RoundID),
				zap.String("user_id", sess.UserID),
				zap.Float64("payout", out.StakeReturned),
				zap.Error(err))
			err = fmt.Errorf("credit payout for round %s: %w", sess.RoundID, err)
		}
	} else {
		balance, _ = m.ledger.Balance(ctx, sess.UserID)
	}

	if m.recorder != nil {
		m.recorder.Record(sess.UserID, out, sess.EndedAt)
	}
	if m.hub != nil {
		m.hub.BroadcastSettlement(SettlementMessage{
			RoundID:    sess.RoundID,
			UserID:     sess.UserID,
			Layout:     sess.LayoutName,
			Won:        out.Won,
			Level:      out.Level,
			Multiplier: out.MultiplierAchieved,
			Payout:     out.StakeReturned,
		})
	}
	metrics.RoundSettled(sess.LayoutName, result, out.MultiplierAchieved, out.StakeReturned)

	m.log.Info("round settled",
		zap.String("round_id", sess.RoundID),
		zap.String("user_id", sess.UserID),
		zap.String("result", result),
		zap.Int("level", out.Level),
		zap.Float64("multiplier", out.MultiplierAchieved),
		zap.Float64("payout", out.StakeReturned))

	return balance, err
}

func (m *Manager) owned(ctx context.Context, userID, roundID string) (*Session, error) {
	sess, err := m.session(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrNotOwner
	}
	return sess, nil
}

func (m *Manager) session(ctx context.Context, roundID string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[roundID]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	sess, err := m.store.Load(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if sess.Round.Terminal() {
		return sess, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[roundID]; ok {
		return existing, nil
	}
	m.sessions[roundID] = sess
	return sess, nil
}

func (m *Manager) forget(roundID string) {
	m.mu.Lock()
	delete(m.sessions, roundID)
	m.mu.Unlock()
}

func (m *Manager) persist(ctx context.Context, sess *Session) error {
	err := m.store.Save(ctx, sess)
	if err != nil {
		m.log.Warn("persist round", zap.String("round_id", sess.RoundID), zap.Error(err))
	}
	return err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrWrongLevel):
		return "wrong_level"
	case errors.Is(err, ErrAlreadyRevealed):
		return "already_revealed"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range"
	default:
		return "other"
	}
}
