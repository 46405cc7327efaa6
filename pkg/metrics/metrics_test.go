package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/resilience"
)

func TestObserveBreaker(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.ObserveBreaker("redis-index", resilience.StateClosed, resilience.StateOpen)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis-index")))

	m.ObserveBreaker("redis-index", resilience.StateOpen, resilience.StateHalfOpen)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis-index")))
}
