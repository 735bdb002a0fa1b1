package history

import (
	"context"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"tower/internal/game"
	"tower/internal/metrics"
)

const (
	DEFAULT_RECORDER_WORKERS = 16
	RECORD_TIMEOUT           = 5 * time.Second
)

// Recorder writes outcomes to a Store from a bounded worker pool. Record
// never blocks the settlement that produced the outcome: when the pool is
// saturated or the store fails, the entry is dropped and logged.
type Recorder struct {
	store Store
	pool  *ants.Pool
	log   *zap.Logger
}

var _ game.Recorder = (*Recorder)(nil)

func NewRecorder(store Store, workers int, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = DEFAULT_RECORDER_WORKERS
	}
	log := logger.Named("history")

	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			log.Error("history write panicked", zap.Any("panic", p))
			metrics.HistoryDropped()
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Recorder{store: store, pool: pool, log: log}, nil
}

func (r *Recorder) Record(userID string, out game.Outcome, at time.Time) {
	entry := Entry{Identity: userID, Outcome: out, Timestamp: at}

	err := r.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), RECORD_TIMEOUT)
		defer cancel()
		if err := r.store.Append(ctx, entry); err != nil {
			metrics.HistoryDropped()
			r.log.Warn("append history", zap.String("user_id", userID), zap.Error(err))
		}
	})
	if err != nil {
		metrics.HistoryDropped()
		r.log.Warn("history pool rejected entry", zap.String("user_id", userID), zap.Error(err))
	}
}

func (r *Recorder) Store() Store {
	return r.store
}

// Close waits up to timeout for queued writes to finish.
func (r *Recorder) Close(timeout time.Duration) error {
	return r.pool.ReleaseTimeout(timeout)
}
