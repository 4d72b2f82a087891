package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/keyexec-go/core/engine"
)

func gatherNames(t *testing.T, reg *prometheus.Registry) map[string]bool {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	require.NotNil(t, m)

	m.ItemAccepted("mail")
	m.ItemRefused("mail", engine.RefusedCeiling)
	m.PendingItems("mail", 3)
	m.ItemDequeued("mail")

	timer := m.ItemDuration("mail")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.ItemCompleted("mail", engine.OutcomeOK)
	m.ItemCompleted("mail", engine.OutcomePanic)
	m.WorkersActive("mail", 4)
	m.WorkerRetired("mail")
	m.KeysActive("mail", 2)

	names := gatherNames(t, reg)
	assert.True(t, names["keyexec_engine_submissions_total"])
	assert.True(t, names["keyexec_engine_pending_items"])
	assert.True(t, names["keyexec_engine_dequeued_total"])
	assert.True(t, names["keyexec_engine_item_duration_seconds"])
	assert.True(t, names["keyexec_engine_items_total"])
	assert.True(t, names["keyexec_engine_workers_active"])
	assert.True(t, names["keyexec_engine_workers_retired_total"])
	assert.True(t, names["keyexec_engine_keys_active"])
}

func TestEngineMetrics_WiredIntoEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	b := engine.NewBounded("tasks", 2, 10, engine.WithMetrics(NewEngineMetrics(reg)))

	for i := 0; i < 5; i++ {
		require.True(t, b.Submit(i, func() {}))
	}
	require.False(t, b.Submit(nil, func() {}))
	require.NoError(t, b.StopWhenEmpty(t.Context()))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var accepted, refused, ok float64
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			switch mf.GetName() {
			case "keyexec_engine_submissions_total":
				if labels["accepted"] == "true" {
					accepted += metric.GetCounter().GetValue()
				} else {
					refused += metric.GetCounter().GetValue()
				}
			case "keyexec_engine_items_total":
				if labels["outcome"] == engine.OutcomeOK {
					ok += metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 5.0, accepted)
	assert.Equal(t, 1.0, refused)
	assert.Equal(t, 5.0, ok)
}

func TestItemDuration_ObservesOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)

	m.ItemDuration("mail").ObserveDuration()
	m.ItemDuration("mail").ObserveDuration()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "keyexec_engine_item_duration_seconds" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(2), h.GetSampleCount())
		assert.GreaterOrEqual(t, h.GetSampleSum(), 0.0)
		return
	}
	t.Fatal("item duration histogram not gathered")
}
