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

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)

	SetInstances(map[string]int{"open": 1}, 10)
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSetInstancesResetsStaleStates(t *testing.T) {
	SetInstances(map[string]int{"open": 2, "closed": 1}, 72.5)
	assert.Equal(t, float64(2), testutil.ToFloat64(instancesByState.WithLabelValues("open")))
	assert.Equal(t, 72.5, testutil.ToFloat64(averageHealth))

	SetInstances(map[string]int{"open": 3}, 80)
	assert.Equal(t, 1, testutil.CollectAndCount(instancesByState))
}

func TestRecordSync(t *testing.T) {
	before := testutil.ToFloat64(syncTotal.WithLabelValues("error"))
	RecordSync(errors.New("boom"), time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(syncTotal.WithLabelValues("error")))

	at := time.Unix(1700000000, 0)
	RecordSync(nil, at)
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(lastSync))
}

func TestRecordBatchAndPairing(t *testing.T) {
	ok := testutil.ToFloat64(batchItems.WithLabelValues("delete", "success"))
	RecordBatch("delete", 2, 1)
	assert.Equal(t, ok+2, testutil.ToFloat64(batchItems.WithLabelValues("delete", "success")))

	hits := testutil.ToFloat64(pairingIssued.WithLabelValues("cache"))
	RecordPairing(true)
	assert.Equal(t, hits+1, testutil.ToFloat64(pairingIssued.WithLabelValues("cache")))
}
