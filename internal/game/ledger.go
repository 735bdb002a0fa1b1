package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const REDIS_KEY_USER_BALANCE = "tower:balance:"

// Ledger moves funds around a round: the stake is debited before the round
// is created and the payout credited after it settles.
type Ledger interface {
	Balance(ctx context.Context, userID string) (float64, error)
	SetBalance(ctx context.Context, userID string, amount float64) error
	Debit(ctx context.Context, userID string, amount float64) (float64, error)
	Credit(ctx context.Context, userID string, amount float64) (float64, error)
}

// debitScript checks and debits in one step so two bets cannot both pass
// the balance check.
var debitScript = redis.NewScript(`
local balance = tonumber(redis.call("GET", KEYS[1]) or "0")
local amount = tonumber(ARGV[1])
if balance < amount then
	return {0, tostring(balance)}
end
local left = redis.call("INCRBYFLOAT", KEYS[1], -amount)
return {1, left}
`)

type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Balance(ctx context.Context, userID string) (float64, error) {
	balance, err := l.client.Get(ctx, REDIS_KEY_USER_BALANCE+userID).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return balance, err
}

func (l *RedisLedger) SetBalance(ctx context.Context, userID string, amount float64) error {
	return l.client.Set(ctx, REDIS_KEY_USER_BALANCE+userID, amount, 0).Err()
}

func (l *RedisLedger) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	res, err := debitScript.Run(ctx, l.client, []string{REDIS_KEY_USER_BALANCE + userID}, amount).Slice()
	if err != nil {
		return 0, fmt.Errorf("debit %s: %w", userID, err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("debit %s: unexpected script reply %v", userID, res)
	}

	balance, err := decimal.NewFromString(fmt.Sprint(res[1]))
	if err != nil {
		return 0, fmt.Errorf("debit %s: %w", userID, err)
	}
	left, _ := balance.Float64()
	if ok, _ := res[0].(int64); ok != 1 {
		return left, ErrInsufficientBalance
	}
	return left, nil
}

func (l *RedisLedger) Credit(ctx context.Context, userID string, amount float64) (float64, error) {
	return l.client.IncrByFloat(ctx, REDIS_KEY_USER_BALANCE+userID, amount).Result()
}

// MemoryLedger is an in-process Ledger.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]decimal.Decimal)}
}

func (l *MemoryLedger) Balance(_ context.Context, userID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, _ := l.balances[userID].Float64()
	return f, nil
}

func (l *MemoryLedger) SetBalance(_ context.Context, userID string, amount float64) error {
	l.mu.Lock()
	l.balances[userID] = decimal.NewFromFloat(amount)
	l.mu.Unlock()
	return nil
}

func (l *MemoryLedger) Debit(_ context.Context, userID string, amount float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balances[userID]
	d := decimal.NewFromFloat(amount)
	if balance.LessThan(d) {
		f, _ := balance.Float64()
		return f, ErrInsufficientBalance
	}
	balance = balance.Sub(d)
	l.balances[userID] = balance
	f, _ := balance.Float64()
	return f, nil
}

func (l *MemoryLedger) Credit(_ context.Context, userID string, amount float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balances[userID].Add(decimal.NewFromFloat(amount))
	l.balances[userID] = balance
	f, _ := balance.Float64()
	return f, nil
}
