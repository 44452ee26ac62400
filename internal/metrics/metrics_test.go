package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	// Vectors without children are not gathered.
	assert.True(t, names["sync_operations_enqueued_total"])
	assert.True(t, names["sync_pending_operations"])
}

func TestObserveFailure(t *testing.T) {
	before := testutil.ToFloat64(OperationsFailed.WithLabelValues("true"))
	ObserveFailure(true)
	ObserveFailure(false)
	assert.Equal(t, before+1, testutil.ToFloat64(OperationsFailed.WithLabelValues("true")))
}
