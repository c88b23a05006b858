package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector("test")
	require.NotNil(t, c)
	assert.NotNil(t, c.Registry())
}

func TestNewCollector_DefaultNamespace(t *testing.T) {
	c := NewCollector("")
	c.RecordTick(time.Millisecond)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "orchestrator_tick_total" {
			found = true
		}
	}
	assert.True(t, found, "default namespace should prefix metric names")
}

func TestCollector_LifecycleMetrics(t *testing.T) {
	c := NewCollector("test")

	c.RecordServiceStatus("tokens", 2)
	c.RecordServiceStart("tokens", 5*time.Millisecond, nil)
	c.RecordServiceStart("sockets", time.Millisecond, errors.New("preinit refused"))
	c.RecordServiceFailure("sockets", "preinit")
	c.RecordServiceFailure("sockets", "preinit")
	c.RecordServicesRunning(1)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.serviceStatus.WithLabelValues("tokens")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.serviceFailures.WithLabelValues("sockets", "preinit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.servicesRunning))
}

func TestCollector_BusMetrics(t *testing.T) {
	c := NewCollector("test")

	c.RecordScatter("token.moved", "owner")
	c.RecordScatter("token.moved", "handoff")
	c.RecordScatter("token.moved", "handoff")
	c.RecordHandler("deferred")
	c.RecordHandler("catch_all")
	c.RecordDispatchError()
	c.RecordDeferredPending(4)
	c.RecordShutdownDiscards(2, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.busScatterTotal.WithLabelValues("token.moved", "handoff")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.busHandlersTotal.WithLabelValues("catch_all")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.busDispatchErrors))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.busDeferred))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.busDrained))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.busDropped))
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector("test")
	c.RecordServicesRunning(3)
	c.RecordDeferredPending(2)
	c.UpdateUptime()

	c.Reset()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.servicesRunning))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.busDeferred))
}

func TestNoOpCollector(t *testing.T) {
	var c MetricsCollector = NewNoOpCollector()

	// Should not panic
	c.RecordServiceStatus("tokens", 2)
	c.RecordServiceStart("tokens", time.Millisecond, nil)
	c.RecordServiceFailure("tokens", "init")
	c.RecordServicesRunning(1)
	c.RecordScatter("x", "owner")
	c.RecordHandler("deferred")
	c.RecordDispatchError()
	c.RecordDeferredPending(1)
	c.RecordShutdownDiscards(1, 1)
	c.RecordTick(time.Second)
	c.UpdateUptime()
	c.Reset()
}
