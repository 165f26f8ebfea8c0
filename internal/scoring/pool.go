// Package scoring maintains per-cohort score distributions and ranks
// new scores against them. Each cohort key owns one pool; writes are
// serialized per pool while percentile reads run against the
// last-committed snapshot. Pools decay rather than reset, so stale
// difficulty calibration drifts out gradually.
package scoring

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hireloop/interview-engine/internal/ports"
)

// Defaults for the tunable pool constants. These are configuration
// knobs, expected to be tuned empirically.
const (
	// DefaultOutlierSigma is the distance from the pool mean, in
	// standard deviations, beyond which a score is flagged an outlier.
	DefaultOutlierSigma = 3.0

	// DefaultMinimumPoolSize is the smallest pool that yields a
	// non-provisional percentile.
	DefaultMinimumPoolSize = 8

	// DefaultRecalibrationEvery triggers recalibration after this many
	// insertions.
	DefaultRecalibrationEvery = 50

	// DefaultRecalibrationPeriod triggers recalibration after this much
	// elapsed time, whichever comes first.
	DefaultRecalibrationPeriod = 10 * time.Minute

	// DefaultDecayFactor down-weights each successively older sample
	// during recalibration.
	DefaultDecayFactor = 0.95

	// DefaultSampleCapacity bounds the per-pool sample buffer. Oldest
	// samples fall off first.
	DefaultSampleCapacity = 512
)

// snapshotKeyPrefix namespaces persisted pool snapshots in the shared
// store.
const snapshotKeyPrefix = "scoring_pool:"

// Config tunes the arena. Zero values take defaults.
type Config struct {
	OutlierSigma        float64
	MinimumPoolSize     int
	RecalibrationEvery  int
	RecalibrationPeriod time.Duration
	DecayFactor         float64
	SampleCapacity      int

	// Snapshots optionally persists pool state across restarts.
	Snapshots ports.CacheStore

	// Metrics receives pool gauges when set.
	Metrics ports.MetricsCollector

	Logger *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.OutlierSigma <= 0 {
		c.OutlierSigma = DefaultOutlierSigma
	}
	if c.MinimumPoolSize <= 0 {
		c.MinimumPoolSize = DefaultMinimumPoolSize
	}
	if c.RecalibrationEvery <= 0 {
		c.RecalibrationEvery = DefaultRecalibrationEvery
	}
	if c.RecalibrationPeriod <= 0 {
		c.RecalibrationPeriod = DefaultRecalibrationPeriod
	}
	if c.DecayFactor <= 0 || c.DecayFactor >= 1 {
		c.DecayFactor = DefaultDecayFactor
	}
	if c.SampleCapacity <= 0 {
		c.SampleCapacity = DefaultSampleCapacity
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// sample is one recorded score. Outlier samples still rank candidates
// but are excluded from recalibration statistics.
type sample struct {
	Score   float64 `json:"score"`
	Outlier bool    `json:"outlier"`
}

// poolSnapshot is the immutable read view of a pool, replaced atomically
// on every committed write.
type poolSnapshot struct {
	sorted  []float64
	size    int
	mean    float64
	stddev  float64
	version int
}

// pool is the serialized-write owner for one cohort key.
type pool struct {
	mu          sync.Mutex
	restoreOnce sync.Once

	samples []sample

	// Calibration statistics over non-outlier samples. Between
	// recalibrations they grow incrementally; recalibration recomputes
	// them from the decayed sample window.
	weightSum float64
	mean      float64
	sumSq     float64

	insertionsSinceRecal int
	lastRecalibration    time.Time
	version              int

	snapshot atomic.Pointer[poolSnapshot]
}

// RecordResult reports how an insertion landed in its pool.
type RecordResult struct {
	// OutlierExcluded is set when the score was flagged an outlier and
	// excluded from recalibration statistics.
	OutlierExcluded bool

	// PoolSize is the pool size after the insertion.
	PoolSize int
}

// PercentileQuery is the answer to ranking one score against a cohort.
type PercentileQuery struct {
	// Percentile is the cohort-relative rank in [0,100].
	Percentile float64

	// PoolSize is the pool size at computation time.
	PoolSize int

	// Provisional is set when the pool is below the minimum size.
	Provisional bool
}

// Arena holds the scoring pools, one per cohort key. Contention is
// scoped per pool; no lock spans cohorts.
type Arena struct {
	cfg Config

	mu    sync.RWMutex
	pools map[string]*pool
}

// NewArena builds a scoring arena.
func NewArena(cfg Config) *Arena {
	return &Arena{
		cfg:   cfg.withDefaults(),
		pools: make(map[string]*pool),
	}
}

// Record inserts a raw score into the cohort's pool. The write is
// serialized with other writes to the same cohort; other cohorts are
// unaffected.
func (a *Arena) Record(ctx context.Context, cohortKey string, rawScore float64) RecordResult {
	p := a.getPool(ctx, cohortKey)

	p.mu.Lock()
	defer p.mu.Unlock()

	outlier := false
	if snap := p.snapshot.Load(); snap != nil &&
		snap.size >= a.cfg.MinimumPoolSize && snap.stddev > 0 {
		outlier = math.Abs(rawScore-snap.mean) > a.cfg.OutlierSigma*snap.stddev
	}

	p.samples = append(p.samples, sample{Score: rawScore, Outlier: outlier})
	if len(p.samples) > a.cfg.SampleCapacity {
		p.samples = p.samples[len(p.samples)-a.cfg.SampleCapacity:]
	}

	if !outlier {
		// Welford update over the non-outlier population.
		p.weightSum++
		delta := rawScore - p.mean
		p.mean += delta / p.weightSum
		p.sumSq += delta * (rawScore - p.mean)
	}

	p.insertionsSinceRecal++
	if p.lastRecalibration.IsZero() {
		p.lastRecalibration = time.Now()
	}
	if p.insertionsSinceRecal >= a.cfg.RecalibrationEvery ||
		time.Since(p.lastRecalibration) >= a.cfg.RecalibrationPeriod {
		a.recalibrate(cohortKey, p)
	}

	a.publish(p)
	a.persist(ctx, cohortKey, p)

	if a.cfg.Metrics != nil {
		a.cfg.Metrics.RecordGauge("scoring_pool_size", float64(len(p.samples)),
			map[string]string{"cohort": cohortKey})
		if outlier {
			a.cfg.Metrics.RecordCounter("scoring_pool_outliers_total", 1,
				map[string]string{"cohort": cohortKey})
		}
	}

	return RecordResult{OutlierExcluded: outlier, PoolSize: len(p.samples)}
}

// Percentile ranks a raw score against the cohort's recorded history
// using the last-committed snapshot. Reads never block on in-progress
// writes.
func (a *Arena) Percentile(cohortKey string, rawScore float64) PercentileQuery {
	a.mu.RLock()
	p, ok := a.pools[cohortKey]
	a.mu.RUnlock()
	if !ok {
		return PercentileQuery{Provisional: true}
	}

	snap := p.snapshot.Load()
	if snap == nil || snap.size == 0 {
		return PercentileQuery{Provisional: true}
	}

	// Midrank percentile over the sorted sample buffer: strictly lower
	// samples count fully, ties count half. Monotone in rawScore.
	below := sort.SearchFloat64s(snap.sorted, rawScore)
	upper := sort.Search(len(snap.sorted), func(i int) bool { return snap.sorted[i] > rawScore })
	equal := upper - below

	percentile := (float64(below) + 0.5*float64(equal)) / float64(snap.size) * 100

	return PercentileQuery{
		Percentile:  percentile,
		PoolSize:    snap.size,
		Provisional: snap.size < a.cfg.MinimumPoolSize,
	}
}

// PoolSize reports the current size of a cohort's pool.
func (a *Arena) PoolSize(cohortKey string) int {
	a.mu.RLock()
	p, ok := a.pools[cohortKey]
	a.mu.RUnlock()
	if !ok {
		return 0
	}
	if snap := p.snapshot.Load(); snap != nil {
		return snap.size
	}
	return 0
}

// Mean reports the cohort's current calibration mean.
func (a *Arena) Mean(cohortKey string) float64 {
	a.mu.RLock()
	p, ok := a.pools[cohortKey]
	a.mu.RUnlock()
	if !ok {
		return 0
	}
	if snap := p.snapshot.Load(); snap != nil {
		return snap.mean
	}
	return 0
}

// getPool returns the cohort's pool, creating and, when a snapshot
// store is configured, restoring it on first use. The arena lock covers
// only the map insert; the snapshot store is consulted under the pool's
// own mutex so a slow restore never blocks other cohorts.
func (a *Arena) getPool(ctx context.Context, cohortKey string) *pool {
	a.mu.RLock()
	p, ok := a.pools[cohortKey]
	a.mu.RUnlock()

	if !ok {
		a.mu.Lock()
		if p, ok = a.pools[cohortKey]; !ok {
			p = &pool{}
			a.pools[cohortKey] = p
		}
		a.mu.Unlock()
	}

	if a.cfg.Snapshots != nil {
		p.restoreOnce.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			a.restore(ctx, cohortKey, p)
		})
	}
	return p
}

// recalibrate recomputes the calibration statistics from the decayed
// sample window, newest samples weighted highest, outliers excluded.
// Recalibrations are versioned and logged; they are the only mutation
// that retroactively alters pool statistics.
func (a *Arena) recalibrate(cohortKey string, p *pool) {
	var weightSum, mean float64
	weight := 1.0
	// Walk newest to oldest, decaying the weight at each step.
	for i := len(p.samples) - 1; i >= 0; i-- {
		if !p.samples[i].Outlier {
			weightSum += weight
			mean += weight * p.samples[i].Score
		}
		weight *= a.cfg.DecayFactor
	}
	if weightSum == 0 {
		return
	}
	mean /= weightSum

	var sumSq float64
	weight = 1.0
	for i := len(p.samples) - 1; i >= 0; i-- {
		if !p.samples[i].Outlier {
			d := p.samples[i].Score - mean
			sumSq += weight * d * d
		}
		weight *= a.cfg.DecayFactor
	}

	previousMean := p.mean
	p.weightSum = weightSum
	p.mean = mean
	p.sumSq = sumSq
	p.insertionsSinceRecal = 0
	p.lastRecalibration = time.Now()
	p.version++

	a.cfg.Logger.Info("scoring pool recalibrated",
		zap.String("cohort", cohortKey),
		zap.Int("version", p.version),
		zap.Int("samples", len(p.samples)),
		zap.Float64("previous_mean", previousMean),
		zap.Float64("mean", mean))
}

// publish commits the pool's current state as the read snapshot.
func (a *Arena) publish(p *pool) {
	sorted := make([]float64, len(p.samples))
	for i, s := range p.samples {
		sorted[i] = s.Score
	}
	sort.Float64s(sorted)

	var stddev float64
	if p.weightSum > 1 {
		stddev = math.Sqrt(p.sumSq / p.weightSum)
	}

	p.snapshot.Store(&poolSnapshot{
		sorted:  sorted,
		size:    len(sorted),
		mean:    p.mean,
		stddev:  stddev,
		version: p.version,
	})
}

// persistedPool is the wire form of a pool snapshot in the shared
// store.
type persistedPool struct {
	Samples           []sample  `json:"samples"`
	Version           int       `json:"version"`
	LastRecalibration time.Time `json:"last_recalibration"`
}

func (a *Arena) persist(ctx context.Context, cohortKey string, p *pool) {
	if a.cfg.Snapshots == nil {
		return
	}
	payload, err := json.Marshal(persistedPool{
		Samples:           p.samples,
		Version:           p.version,
		LastRecalibration: p.lastRecalibration,
	})
	if err != nil {
		return
	}
	if err := a.cfg.Snapshots.Set(ctx, snapshotKeyPrefix+cohortKey, payload, 0); err != nil {
		a.cfg.Logger.Warn("failed to persist pool snapshot",
			zap.String("cohort", cohortKey), zap.Error(err))
	}
}

func (a *Arena) restore(ctx context.Context, cohortKey string, p *pool) {
	payload, ok, err := a.cfg.Snapshots.Get(ctx, snapshotKeyPrefix+cohortKey)
	if err != nil {
		a.cfg.Logger.Warn("failed to restore pool snapshot",
			zap.String("cohort", cohortKey), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	var persisted persistedPool
	if err := json.Unmarshal(payload, &persisted); err != nil {
		a.cfg.Logger.Warn("corrupt pool snapshot ignored",
			zap.String("cohort", cohortKey), zap.Error(err))
		return
	}

	p.samples = persisted.Samples
	p.version = persisted.Version
	p.lastRecalibration = persisted.LastRecalibration

	// Rebuild calibration statistics from the restored window.
	for _, s := range p.samples {
		if s.Outlier {
			continue
		}
		p.weightSum++
		delta := s.Score - p.mean
		p.mean += delta / p.weightSum
		p.sumSq += delta * (s.Score - p.mean)
	}
	a.publish(p)

	a.cfg.Logger.Info("scoring pool restored",
		zap.String("cohort", cohortKey),
		zap.Int("samples", len(p.samples)),
		zap.Int("version", p.version))
}
