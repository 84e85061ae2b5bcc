package task

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundTaskManager_RunsImmediatelyAndRepeatedly(t *testing.T) {
	m := NewBackgroundTaskManager("test_", prometheus.NewRegistry())
	var calls atomic.Int32
	m.Register(func() { calls.Add(1) }, 10*time.Millisecond, "counter")

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, m.StopAll(time.Second))

	stoppedAt := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stoppedAt, calls.Load())
}

func TestBackgroundTaskManager_StopAllTimesOut(t *testing.T) {
	m := NewBackgroundTaskManager("test_", prometheus.NewRegistry())
	release := make(chan struct{})
	started := make(chan struct{})
	m.Register(func() {
		close(started)
		<-release
	}, time.Hour, "blocked")

	<-started
	assert.True(t, m.StopAll(20*time.Millisecond))
	close(release)
}

func TestBackgroundTaskManager_RegistersLatencyHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewBackgroundTaskManager("test_", registry)
	m.Register(func() {}, time.Hour, "noop")
	defer m.StopAll(time.Second)

	require.Eventually(t, func() bool {
		families, err := registry.Gather()
		if err != nil {
			return false
		}
		for _, family := range families {
			if family.GetName() == "test_noop_latency_seconds" {
				return family.GetMetric()[0].GetHistogram().GetSampleCount() >= 1
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}
