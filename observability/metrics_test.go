package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.errors.WithLabelValues("vault", "deposit", "409"))
	m.Observe("vault", "deposit", 409, time.Millisecond)
	m.Observe("vault", "deposit", 200, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.errors.WithLabelValues("vault", "deposit", "409")))

	throttled := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "rate_limit"))
	m.RecordThrottle("", "rate_limit")
	require.Equal(t, throttled+1, testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "rate_limit")))
}

func TestRouterMetrics(t *testing.T) {
	m := Router()
	fees := testutil.ToFloat64(m.fees.WithLabelValues("USDC"))
	m.RecordSwap("orca-whirlpool", " usdc", 30)
	m.RecordSwap("orca-whirlpool", "usdc", 0)
	require.Equal(t, fees+30, testutil.ToFloat64(m.fees.WithLabelValues("USDC")))

	m.RecordBatch(10, 1234)
	require.Equal(t, float64(1234), testutil.ToFloat64(m.totalVolume))
}

func TestVaultMetricsOnlyCountCommittedProfit(t *testing.T) {
	m := Vault()
	profit := testutil.ToFloat64(m.profit)
	m.RecordArbitrage("insufficient_profit", 500, 50)
	m.RecordArbitrage("committed", 270, 30)
	require.Equal(t, profit+270, testutil.ToFloat64(m.profit))

	m.SetValuation(1270, 1000)
	require.Equal(t, float64(1000), testutil.ToFloat64(m.totalShares))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var runtime *RuntimeMetrics
	runtime.ObserveCall("deposit", "committed", time.Second)
	runtime.SetHeight(1)
	var vault *VaultMetrics
	vault.RecordDeposit()
}

func TestRuntimeMetrics(t *testing.T) {
	m := Runtime()
	before := testutil.ToFloat64(m.calls.WithLabelValues("deposit", "committed"))
	m.ObserveCall("deposit", "committed", time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.calls.WithLabelValues("deposit", "committed")))

	m.SetHeight(7)
	require.Equal(t, float64(7), testutil.ToFloat64(m.height))
	m.RecordEvent("")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.events.WithLabelValues("unknown")), float64(1))
}
