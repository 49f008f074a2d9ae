package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewRecorder(12, func() time.Time { return now })

	for i := 0; i < 15; i++ {
		risk := "LOW"
		if i%3 == 0 {
			risk = "CRITICAL"
		}
		r.Record(Record{ID: fmt.Sprintf("s%d", i), TotalFindings: i, OverallRisk: risk})
	}
	r.Record(Record{ID: "blank"})

	snap := r.Snapshot(2, 1)
	assert.Equal(t, 16, snap.TotalScans)
	assert.Equal(t, 105, snap.TotalFindings)
	assert.Equal(t, 2, snap.ActiveScans)
	assert.Equal(t, 1, snap.ActiveMonitors)
	assert.Equal(t, map[string]int{"CRITICAL": 5, "LOW": 11}, snap.RiskDistribution)

	require.Len(t, snap.RecentScans, 10)
	assert.Equal(t, "blank", snap.RecentScans[0].ID)
	assert.Equal(t, "LOW", snap.RecentScans[0].OverallRisk)
	assert.Equal(t, now, snap.RecentScans[0].Timestamp)
	assert.Equal(t, "s14", snap.RecentScans[1].ID)
	assert.Equal(t, "s6", snap.RecentScans[9].ID)

	t.Run("Empty", func(t *testing.T) {
		snap := NewRecorder(0, nil).Snapshot(0, 0)
		assert.Zero(t, snap.TotalScans)
		assert.NotNil(t, snap.RecentScans)
		assert.NotNil(t, snap.RiskDistribution)
	})
}

func TestRiskFromCount(t *testing.T) {
	assert.Equal(t, "HIGH", RiskFromCount(3))
	assert.Equal(t, "LOW", RiskFromCount(0))
}
