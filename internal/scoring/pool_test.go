package scoring

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/interview-engine/internal/ports"
)

const cohort = "a1b2c3d4e5f60718:distributed_systems"

// seedStable fills a pool with a tight, stable score distribution.
func seedStable(t *testing.T, a *Arena, key string) {
	t.Helper()
	scores := []float64{0.48, 0.52, 0.50, 0.47, 0.53, 0.49, 0.51, 0.50, 0.48, 0.52, 0.50, 0.51}
	for _, s := range scores {
		a.Record(context.Background(), key, s)
	}
}

func TestPercentileMonotonicity(t *testing.T) {
	a := NewArena(Config{})
	for i := 0; i < 50; i++ {
		a.Record(context.Background(), cohort, float64(i)/50)
	}

	prev := -1.0
	for _, score := range []float64{0.1, 0.25, 0.25, 0.4, 0.6, 0.8, 0.95} {
		q := a.Percentile(cohort, score)
		assert.GreaterOrEqual(t, q.Percentile, prev,
			"higher raw score %f must not rank below a lower one", score)
		prev = q.Percentile
	}
}

func TestPercentileBounds(t *testing.T) {
	a := NewArena(Config{MinimumPoolSize: 2})
	a.Record(context.Background(), cohort, 0.3)
	a.Record(context.Background(), cohort, 0.7)

	low := a.Percentile(cohort, 0.0)
	high := a.Percentile(cohort, 1.0)
	assert.GreaterOrEqual(t, low.Percentile, 0.0)
	assert.LessOrEqual(t, high.Percentile, 100.0)
	assert.Greater(t, high.Percentile, low.Percentile)
}

func TestProvisionalBelowMinimumPoolSize(t *testing.T) {
	a := NewArena(Config{MinimumPoolSize: 8})

	for i := 0; i < 5; i++ {
		a.Record(context.Background(), cohort, 0.5)
	}

	q := a.Percentile(cohort, 0.5)
	assert.True(t, q.Provisional, "pool below minimum size yields provisional percentiles")
	assert.Equal(t, 5, q.PoolSize)

	for i := 0; i < 5; i++ {
		a.Record(context.Background(), cohort, 0.6)
	}
	q = a.Percentile(cohort, 0.5)
	assert.False(t, q.Provisional)
}

func TestUnknownCohortIsProvisional(t *testing.T) {
	a := NewArena(Config{})
	q := a.Percentile("missing:cohort", 0.5)
	assert.True(t, q.Provisional)
	assert.Zero(t, q.PoolSize)
}

func TestOutlierFlaggedButStillRanked(t *testing.T) {
	a := NewArena(Config{MinimumPoolSize: 8})
	seedStable(t, a, cohort)

	result := a.Record(context.Background(), cohort, 0.99)
	assert.True(t, result.OutlierExcluded,
		"a score far beyond the pool mean must be flagged as an outlier")

	// The outlier still participates in percentile ranking.
	q := a.Percentile(cohort, 1.0)
	assert.Equal(t, result.PoolSize, q.PoolSize)
	assert.Greater(t, q.Percentile, 90.0)
}

func TestOutlierExclusionLimitsRecalibrationDrift(t *testing.T) {
	// Two identical stable pools; one flags outliers at 3 sigma, the
	// other effectively never. Recalibration fires on every insertion
	// so the outlier's effect on the mean is immediate.
	excluding := NewArena(Config{MinimumPoolSize: 8, RecalibrationEvery: 1, OutlierSigma: 3})
	including := NewArena(Config{MinimumPoolSize: 8, RecalibrationEvery: 1, OutlierSigma: 1000})

	seedStable(t, excluding, cohort)
	seedStable(t, including, cohort)

	meanBefore := excluding.Mean(cohort)
	require.InDelta(t, including.Mean(cohort), meanBefore, 0.01)

	outlierScore := 0.99
	excluding.Record(context.Background(), cohort, outlierScore)
	including.Record(context.Background(), cohort, outlierScore)

	driftExcluding := math.Abs(excluding.Mean(cohort) - meanBefore)
	driftIncluding := math.Abs(including.Mean(cohort) - meanBefore)

	assert.Less(t, driftExcluding, driftIncluding,
		"excluding the outlier must move the recalibrated mean less than including it")
}

func TestCohortsAreIsolated(t *testing.T) {
	a := NewArena(Config{MinimumPoolSize: 2})

	other := "ffffffffffffffff:communication"
	a.Record(context.Background(), cohort, 0.2)
	a.Record(context.Background(), cohort, 0.4)
	a.Record(context.Background(), other, 0.9)
	a.Record(context.Background(), other, 0.95)

	assert.Equal(t, 2, a.PoolSize(cohort))
	assert.Equal(t, 2, a.PoolSize(other))

	q := a.Percentile(cohort, 0.5)
	assert.Equal(t, 100.0, q.Percentile, "scores from another cohort must not leak in")
}

func TestSampleCapacityBound(t *testing.T) {
	a := NewArena(Config{SampleCapacity: 10})
	for i := 0; i < 100; i++ {
		a.Record(context.Background(), cohort, float64(i%10)/10)
	}
	assert.Equal(t, 10, a.PoolSize(cohort))
}

func TestConcurrentRecordsAndReads(t *testing.T) {
	a := NewArena(Config{})
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			key := fmt.Sprintf("cohort-%d:comp", w%2)
			for i := 0; i < 100; i++ {
				a.Record(context.Background(), key, float64(i%100)/100)
				a.Percentile(key, 0.5)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 400, a.PoolSize("cohort-0:comp"))
	assert.Equal(t, 400, a.PoolSize("cohort-1:comp"))
}

func TestSnapshotPersistAndRestore(t *testing.T) {
	store := newMemStore()

	first := NewArena(Config{MinimumPoolSize: 2, Snapshots: store})
	seedStable(t, first, cohort)
	sizeBefore := first.PoolSize(cohort)
	require.Positive(t, sizeBefore)

	// A fresh arena backed by the same store picks the pool back up.
	second := NewArena(Config{MinimumPoolSize: 2, Snapshots: store})
	q := second.Percentile(cohort, 0.5)
	assert.True(t, q.Provisional, "pool is unknown before first touch")

	second.Record(context.Background(), cohort, 0.5)
	assert.Equal(t, sizeBefore+1, second.PoolSize(cohort),
		"restored pool should contain the persisted samples")
}

func TestSlowRestoreDoesNotBlockOtherCohorts(t *testing.T) {
	store := &stallingStore{
		memStore: newMemStore(),
		stallKey: snapshotKeyPrefix + "slow:comp",
		stalled:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	a := NewArena(Config{Snapshots: store})

	go func() {
		a.Record(context.Background(), "slow:comp", 0.5)
	}()
	<-store.stalled

	// A different cohort records while the slow restore is in flight.
	done := make(chan struct{})
	go func() {
		a.Record(context.Background(), "fast:comp", 0.5)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cohort creation blocked behind another cohort's snapshot restore")
	}

	close(store.release)
}

// stallingStore blocks Get for one key until released.
type stallingStore struct {
	*memStore
	stallKey string
	stalled  chan struct{}
	release  chan struct{}
}

func (s *stallingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == s.stallKey {
		close(s.stalled)
		<-s.release
	}
	return s.memStore.Get(ctx, key)
}

// memStore is a minimal in-memory ports.CacheStore.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

var _ ports.CacheStore = (*memStore)(nil)
