package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelLayout = "layout"
	labelResult = "result"
	labelReason = "reason"

	ResultCashout     = "cashout"
	ResultAutoCashout = "auto_cashout"
	ResultTop         = "top"
	ResultBust        = "bust"
	ResultExpired     = "expired"
)

// metric names: tower_<name>

var (
	roundsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_rounds_started_total",
		Help: "Rounds created",
	}, []string{labelLayout})

	roundsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_rounds_settled_total",
		Help: "Rounds that reached a terminal state",
	}, []string{labelLayout, labelResult})

	settledMultiplier = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tower_settled_multiplier",
		Help:    "Multiplier achieved by winning rounds",
		Buckets: []float64{1.1, 1.5, 2, 3, 5, 10, 20, 50, 100, 400},
	}, []string{labelLayout})

	totalStaked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tower_staked_total",
		Help: "Sum of stakes placed",
	})

	totalPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tower_paid_total",
		Help: "Sum of stake returned to winners",
	})

	actionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tower_actions_rejected_total",
		Help: "Reveal or cash-out calls rejected by validation",
	}, []string{labelReason})

	historyDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tower_history_dropped_total",
		Help: "History writes that were dropped or failed",
	})
)

func RoundStarted(layout string, stake float64) {
	roundsStarted.WithLabelValues(layout).Inc()
	totalStaked.Add(stake)
}

func RoundSettled(layout, result string, multiplier, paid float64) {
	roundsSettled.WithLabelValues(layout, result).Inc()
	if paid > 0 {
		settledMultiplier.WithLabelValues(layout).Observe(multiplier)
		totalPaid.Add(paid)
	}
}

func ActionRejected(reason string) {
	actionsRejected.WithLabelValues(reason).Inc()
}

func HistoryDropped() {
	historyDropped.Inc()
}
