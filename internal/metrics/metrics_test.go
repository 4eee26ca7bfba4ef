package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordsOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveBatch("InternalIndex", 3, 10*time.Millisecond, nil)
	m.ObserveBatch("InternalIndex", 1, time.Millisecond, errors.New("disk full"))
	m.AddOperations("InternalIndex", "deleted", 2)
	m.AddOperations("InternalIndex", "deleted", 0)
	m.ObserveQuery("ExternalIndex", time.Millisecond, nil)
	m.SetDocuments("InternalIndex", 42)
	m.SetAvailable("MembersIndex", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues("InternalIndex", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues("InternalIndex", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("InternalIndex", "deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("ExternalIndex", "ok")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.Documents.WithLabelValues("InternalIndex")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Available.WithLabelValues("MembersIndex")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBatch("x", 1, time.Second, nil)
		m.AddOperations("x", "upserted", 1)
		m.ObserveQuery("x", time.Second, nil)
		m.SetDocuments("x", 1)
		m.SetAvailable("x", true)
	})
}

func TestNew_PrivateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
