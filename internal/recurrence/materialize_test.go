package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evcal/internal/model"
)

func TestMaterialize(t *testing.T) {
	dates := []time.Time{day(2024, 1, 1), day(2024, 1, 8)}

	t.Run("all-day spans whole days", func(t *testing.T) {
		ev := model.Event{
			ID:        "trip",
			StartDate: day(2024, 1, 1),
			EndDate:   day(2024, 1, 2),
			AllDay:    true,
			StartTime: 9 * 60, // ignored
		}
		occ := Materialize(ev, dates, time.UTC)
		require.Len(t, occ, 2)
		assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), occ[1].Start)
		assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), occ[1].End)
		assert.True(t, occ[1].AllDay)
		assert.Equal(t, "trip/20240108", occ[1].InstanceKey)
	})

	t.Run("timed event uses clock fields", func(t *testing.T) {
		ev := model.Event{
			ID:        "standup",
			StartDate: day(2024, 1, 1),
			EndDate:   day(2024, 1, 1),
			StartTime: 9 * 60,
			EndTime:   10*60 + 30,
			Summary:   "Standup",
			Sequence:  3,
		}
		occ := Materialize(ev, dates[:1], time.UTC)
		require.Len(t, occ, 1)
		assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), occ[0].Start)
		assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), occ[0].End)
		assert.Equal(t, "Standup", occ[0].Summary)
		assert.Equal(t, 3, occ[0].Sequence)
		assert.Equal(t, 1, occ[0].Slot)
	})

	t.Run("end before start rolls past midnight", func(t *testing.T) {
		ev := model.Event{
			ID:        "night",
			StartDate: day(2024, 1, 1),
			StartTime: 22 * 60,
			EndTime:   60,
		}
		occ := Materialize(ev, dates[:1], time.UTC)
		require.Len(t, occ, 1)
		assert.Equal(t, time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC), occ[0].End)
	})

	t.Run("split event yields two windows per date", func(t *testing.T) {
		ev := model.Event{
			ID:         "clinic",
			StartDate:  day(2024, 1, 1),
			EndDate:    day(2024, 1, 1),
			Split:      true,
			StartTime:  8 * 60,
			EndTime:    12 * 60,
			StartTime2: 14 * 60,
			EndTime2:   18 * 60,
		}
		occ := Materialize(ev, dates, time.UTC)
		require.Len(t, occ, 4)
		assert.Equal(t, "clinic/20240101", occ[0].InstanceKey)
		assert.Equal(t, "clinic/20240101-2", occ[1].InstanceKey)
		assert.Equal(t, 2, occ[1].Slot)
		assert.Equal(t, time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), occ[1].Start)
		assert.Equal(t, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), occ[1].End)
		assert.Equal(t, occ[0].Date, occ[1].Date)
	})

	t.Run("timestamps are built in the given location", func(t *testing.T) {
		loc := time.FixedZone("UTC+9", 9*60*60)
		ev := model.Event{ID: "x", StartDate: day(2024, 1, 1), StartTime: 9 * 60, EndTime: 10 * 60}
		occ := Materialize(ev, dates[:1], loc)
		require.Len(t, occ, 1)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), occ[0].Start.UTC())
	})
}
