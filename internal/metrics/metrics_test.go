package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAPICall("getDlvrReqDtlInfoList", true, 120*time.Millisecond)
	m.ObserveAPICall("getDlvrReqDtlInfoList", false, time.Second)
	m.AddRecords("stored", 3)
	m.AddRecords("filtered", 0)
	m.ObserveBatch("sync", "SUCCESS", time.Minute)
	m.AddEntities("company", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.APICalls.WithLabelValues("getDlvrReqDtlInfoList", "failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Records.WithLabelValues("stored")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Records.WithLabelValues("filtered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchRuns.WithLabelValues("sync", "SUCCESS")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntitiesCreated.WithLabelValues("company")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAPICall("op", true, time.Second)
		m.AddRecords("stored", 1)
		m.ObserveBatch("sync", "FAILED", time.Second)
		m.AddEntities("product", 1)
	})
}
