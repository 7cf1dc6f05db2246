package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parascope/api/internal/sample"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransitionCompareAndSet(t *testing.T) {
	ctx := context.Background()
	samples := NewMemory().Samples()
	now := time.Now()
	require.NoError(t, samples.Create(ctx, sample.NewPending("s-1", "ref", now)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := samples.Transition(ctx, "s-1", sample.StatusPending, sample.Processing(), now)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	for _, err := range errs {
		assert.True(t, errors.Is(err, sample.ErrStaleStatus))
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	samples := NewMemory().Samples()
	now := time.Now()
	require.NoError(t, samples.Create(ctx, sample.NewPending("s-1", "ref", now)))
	_, err := samples.Transition(ctx, "s-1", sample.StatusPending, sample.Processing(), now)
	require.NoError(t, err)
	_, err = samples.Transition(ctx, "s-1", sample.StatusProcessing,
		sample.Completed(sample.Diagnosis{Verdict: sample.Positive, Confidence: 70, ParasiteCount: 2}), now)
	require.NoError(t, err)

	got, err := samples.Get(ctx, "s-1")
	require.NoError(t, err)
	got.Diagnosis.Confidence = 1

	again, _ := samples.Get(ctx, "s-1")
	assert.Equal(t, 70, again.Diagnosis.Confidence)
}

func TestMemoryListAndStuck(t *testing.T) {
	ctx := context.Background()
	samples := NewMemory().Samples()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, samples.Create(ctx, sample.NewPending(id, "ref", base.Add(time.Duration(i)*time.Minute))))
	}
	_, err := samples.Transition(ctx, "a", sample.StatusPending, sample.Processing(), base)
	require.NoError(t, err)

	list, err := samples.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	rest, _ := samples.List(ctx, 2, 2)
	require.Len(t, rest, 1)
	assert.Equal(t, "a", rest[0].ID)

	stuck, err := samples.ListStuck(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "a", stuck[0].ID)
}

func TestMemoryReports(t *testing.T) {
	ctx := context.Background()
	reports := NewMemory().Reports()
	rep := testReport(time.Now())
	require.NoError(t, reports.Insert(ctx, rep))
	assert.True(t, errors.Is(reports.Insert(ctx, rep), sample.ErrReportExists))

	species := "P. falciparum"
	got, err := reports.UpdateAnnotations(ctx, "s-1", sample.Annotations{SpeciesLabel: &species})
	require.NoError(t, err)
	assert.Equal(t, species, got.SpeciesLabel)
	assert.Equal(t, "summary", got.Summary)

	_, err = reports.Get(ctx, "missing")
	assert.True(t, errors.Is(err, sample.ErrNotFound))
}
