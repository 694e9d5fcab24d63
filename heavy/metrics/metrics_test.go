package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveModelCall("xai", "grok-4", nil, time.Second)
	m.ObserveModelCall("xai", "grok-4", errors.New("boom"), time.Second)
	m.ObserveRun("numeric", nil, 3*time.Second)
	m.ObserveVotes(4, 1, 0.5)
	m.ObserveCacheHit()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCalls.WithLabelValues("xai", "grok-4", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCalls.WithLabelValues("xai", "grok-4", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("numeric", "done")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Votes.WithLabelValues("counted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Votes.WithLabelValues("discarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveModelCall("xai", "grok-4", nil, time.Second)
		m.ObserveTokens("grok-4", 1, 2)
		m.ObserveCacheHit()
		m.ObserveRun("aspects", nil, time.Second)
		m.ObserveVotes(1, 0, 0)
	})
}
