package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, httpRequestsTotal)
	require.NotNil(t, rateLimitDelaySeconds)
	require.NotNil(t, tasksInFlight)
	require.NotNil(t, resultWritesTotal)
}

func TestTasksInFlightGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(tasksInFlight)
	IncTasksInFlight()
	IncTasksInFlight()
	DecTasksInFlight()
	require.InDelta(t, before+1, testutil.ToFloat64(tasksInFlight), 1e-9)
	DecTasksInFlight()
}

func TestObserveResultWrite(t *testing.T) {
	Init()
	ObserveResultWrite("blob", nil)
	ObserveResultWrite("blob", errors.New("bucket missing"))

	require.GreaterOrEqual(t, testutil.ToFloat64(resultWritesTotal.WithLabelValues("blob", "success")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(resultWritesTotal.WithLabelValues("blob", "error")), 1.0)
}

func TestObserveRateLimitDelayLabelsBySite(t *testing.T) {
	Init()
	ObserveRateLimitDelay("https://WWW.Camara.cl/diputados", 250*time.Millisecond)
	require.GreaterOrEqual(t, testutil.CollectAndCount(rateLimitDelaySeconds, "roster_rate_limit_delay_seconds"), 1)
}
