package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLedgerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewLedger(reg)
	require.NoError(t, err)

	m.ObserveOperation("stake", "ok")
	m.ObserveOperation("stake", "ok")
	m.ObserveOperation("withdraw", "StakeTimeNotReached")
	m.SetPool("0xpool", 100, 20, 150)
	m.AddRewardsPaid("0xpool", "distribute", 7)

	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("stake", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("withdraw", "StakeTimeNotReached")))
	require.Equal(t, 150.0, testutil.ToFloat64(m.totalWeight.WithLabelValues("0xpool")))
	require.Equal(t, 7.0, testutil.ToFloat64(m.distributed.WithLabelValues("0xpool", "distribute")))

	_, err = NewLedger(reg)
	require.Error(t, err, "duplicate registration must fail")
}

func TestNilLedgerIsNoop(t *testing.T) {
	var m *Ledger
	m.ObserveOperation("stake", "ok")
	m.SetPool("p", 1, 2, 3)
	m.AddRewardsPaid("p", "compound", 1)
	require.Nil(t, m.OperationsVec())
}
