package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heatlens/api/models"
)

func TestRangeClauseEndBoundIsDayGranular(t *testing.T) {
	s := &EventStore{}
	req := models.HeatmapRequest{
		SiteID:  "s1",
		PageURL: "/pricing",
		End:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	clause, args := s.rangeClause(req)

	// A bare end date must include the whole end day, exactly as the
	// aggregate tables' date <= predicate does.
	assert.Contains(t, clause, "toDate(timestamp) <= ?")
	assert.NotContains(t, clause, "timestamp <= ?")
	require.Len(t, args, 3)
	assert.Equal(t, "2025-01-01", args[2])
}

func TestRangeClauseOptionalFilters(t *testing.T) {
	s := &EventStore{}

	clause, args := s.rangeClause(models.HeatmapRequest{SiteID: "s1", PageURL: "/p"})
	assert.NotContains(t, clause, "timestamp")
	assert.NotContains(t, clause, "device_type")
	assert.Len(t, args, 2)

	start := time.Date(2025, 1, 1, 12, 30, 0, 0, time.UTC)
	clause, args = s.rangeClause(models.HeatmapRequest{
		SiteID: "s1", PageURL: "/p", DeviceType: "mobile", Start: start,
	})
	assert.Contains(t, clause, "device_type = ?")
	assert.Contains(t, clause, "timestamp >= ?")
	require.Len(t, args, 4)
	assert.Equal(t, start, args[3])
}
