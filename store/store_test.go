package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ambient.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedReadings(t *testing.T, s *Store) time.Time {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 8, 10, 8, 0, 0, 0, time.UTC)
	records := []Record{
		{JobID: "job-1", Lux: 200, FullSpectrum: 300, Infrared: 100, Visible: 200,
			Gain: "25x", IntegrationMs: 300, CreatedAt: base},
		{JobID: "job-1", Lux: 12000, FullSpectrum: 30000, Infrared: 6000, Visible: 24000,
			Gain: "1x", IntegrationMs: 100, CreatedAt: base.Add(time.Hour)},
		{JobID: "job-1", Lux: 15000, FullSpectrum: 40000, Infrared: 8000, Visible: 32000,
			Gain: "1x", IntegrationMs: 100, CreatedAt: base.Add(2 * time.Hour)},
		{JobID: "job-2", Lux: 800, FullSpectrum: 1200, Infrared: 300, Visible: 900,
			Gain: "428x", IntegrationMs: 600, CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, record := range records {
		id, err := s.Insert(ctx, record)
		require.NoError(t, err)
		assert.Positive(t, id)
	}
	return base
}

func TestStore_InsertAndLatest(t *testing.T) {
	s := openTestStore(t)
	base := seedReadings(t, s)
	ctx := context.Background()

	latest, err := s.Latest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "job-2", latest.JobID)
	assert.Equal(t, 800.0, latest.Lux)
	assert.Equal(t, uint16(1200), latest.FullSpectrum)
	assert.Equal(t, uint16(300), latest.Infrared)
	assert.Equal(t, uint16(900), latest.Visible)
	assert.Equal(t, "428x", latest.Gain)
	assert.Equal(t, 600, latest.IntegrationMs)
	assert.WithinDuration(t, base.Add(3*time.Hour), latest.CreatedAt, time.Second)

	latest, err = s.Latest(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 15000.0, latest.Lux)

	jobID, err := s.LastJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-2", jobID)
}

func TestStore_Range(t *testing.T) {
	s := openTestStore(t)
	base := seedReadings(t, s)
	ctx := context.Background()

	all, err := s.Range(ctx, "", base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 4)
	// oldest first
	assert.Equal(t, 200.0, all[0].Lux)
	assert.Equal(t, 800.0, all[3].Lux)

	job1, err := s.Range(ctx, "job-1", base, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Len(t, job1, 3)

	clipped, err := s.Range(ctx, "", base.Add(30*time.Minute), base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, clipped, 1)
	assert.Equal(t, 12000.0, clipped[0].Lux)
}

func TestStore_Summary(t *testing.T) {
	s := openTestStore(t)
	base := seedReadings(t, s)
	ctx := context.Background()

	summary, err := s.Summary(ctx, "job-1", 10000)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Samples)
	assert.InDelta(t, (200.0+12000.0+15000.0)/3, summary.AverageLux, 0.01)
	assert.Equal(t, 15000.0, summary.PeakLux)
	assert.InDelta(t, 2.0/3.0, summary.FullSunRatio, 0.001)
	// two thirds of the two recorded hours
	assert.InDelta(t, 4.0/3.0, summary.FullSunHours, 0.001)
	assert.WithinDuration(t, base, summary.First, time.Second)
	assert.WithinDuration(t, base.Add(2*time.Hour), summary.Last, time.Second)

	all, err := s.Summary(ctx, "", 10000)
	require.NoError(t, err)
	assert.Equal(t, 4, all.Samples)
	assert.InDelta(t, 0.5, all.FullSunRatio, 0.001)
}

func TestStore_Purge(t *testing.T) {
	s := openTestStore(t)
	seedReadings(t, s)
	ctx := context.Background()

	removed, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	_, err = s.Latest(ctx, "")
	assert.ErrorIs(t, err, ErrNoReadings)
	_, err = s.Summary(ctx, "", 10000)
	assert.ErrorIs(t, err, ErrNoReadings)
}

func TestStore_EmptyLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Latest(ctx, "")
	assert.ErrorIs(t, err, ErrNoReadings)
	_, err = s.LastJob(ctx)
	assert.ErrorIs(t, err, ErrNoReadings)

	records, err := s.Range(ctx, "", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Empty(t, records)
}
