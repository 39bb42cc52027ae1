package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Ledger records operation outcomes and pool aggregates. A nil *Ledger is
// valid and records nothing.
type Ledger struct {
	operations   *prometheus.CounterVec
	totalStaked  *prometheus.GaugeVec
	totalRewards *prometheus.GaugeVec
	totalWeight  *prometheus.GaugeVec
	distributed  *prometheus.CounterVec
}

// NewLedger builds the collectors and registers them with reg.
func NewLedger(reg prometheus.Registerer) (*Ledger, error) {
	m := &Ledger{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stakepool_operations_total",
			Help: "Ledger operations by name and result code.",
		}, []string{"op", "result"}),
		totalStaked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stakepool_total_staked",
			Help: "Principal held by each pool.",
		}, []string{"pool"}),
		totalRewards: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stakepool_total_rewards",
			Help: "Undistributed rewards held by each pool.",
		}, []string{"pool"}),
		totalWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stakepool_total_weighted_stake",
			Help: "Weighted stake aggregate of each pool as of its last stake or withdraw.",
		}, []string{"pool"}),
		distributed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stakepool_rewards_paid_total",
			Help: "Rewards paid out or compounded, by mode.",
		}, []string{"pool", "mode"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.operations, m.totalStaked, m.totalRewards, m.totalWeight, m.distributed} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveOperation counts one operation. result is "ok" or an error code.
func (m *Ledger) ObserveOperation(op, result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// SetPool publishes the aggregates of one pool.
func (m *Ledger) SetPool(pool string, staked, rewards, weighted uint64) {
	if m == nil {
		return
	}
	m.totalStaked.WithLabelValues(pool).Set(float64(staked))
	m.totalRewards.WithLabelValues(pool).Set(float64(rewards))
	m.totalWeight.WithLabelValues(pool).Set(float64(weighted))
}

// AddRewardsPaid accumulates a distributed or compounded share.
func (m *Ledger) AddRewardsPaid(pool, mode string, amount uint64) {
	if m == nil {
		return
	}
	m.distributed.WithLabelValues(pool, mode).Add(float64(amount))
}

// OperationsVec exposes the operations counter for inspection.
func (m *Ledger) OperationsVec() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.operations
}
