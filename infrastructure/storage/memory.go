// Package storage provides in-memory implementations of the engine's
// storage contracts, suitable for tests, examples, and single-process
// deployments.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hireloop/interview-engine/internal/domain"
	"github.com/hireloop/interview-engine/internal/ports"
)

// MemoryStore is a thread-safe in-memory ports.EvaluationStore.
type MemoryStore struct {
	mu         sync.RWMutex
	jobs       map[string]domain.JobContext
	frameworks map[string]domain.CompetencyFramework
	questions  map[string]domain.QuestionSet
	answers    map[string]domain.Answer
	reports    map[string]domain.EvaluationReport
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]domain.JobContext),
		frameworks: make(map[string]domain.CompetencyFramework),
		questions:  make(map[string]domain.QuestionSet),
		answers:    make(map[string]domain.Answer),
		reports:    make(map[string]domain.EvaluationReport),
	}
}

// SaveJobContext implements ports.EvaluationStore.
func (s *MemoryStore) SaveJobContext(_ context.Context, job domain.JobContext) error {
	if job.ID == "" {
		return fmt.Errorf("job context ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// GetJobContext implements ports.EvaluationStore.
func (s *MemoryStore) GetJobContext(_ context.Context, id string) (domain.JobContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.JobContext{}, fmt.Errorf("job context %s: %w", id, domain.ErrNotFound)
	}
	return job, nil
}

// SaveFramework implements ports.EvaluationStore.
func (s *MemoryStore) SaveFramework(_ context.Context, framework domain.CompetencyFramework) error {
	if framework.JobContextID == "" {
		return fmt.Errorf("framework job context ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameworks[framework.JobContextID] = framework
	return nil
}

// GetFramework implements ports.EvaluationStore.
func (s *MemoryStore) GetFramework(_ context.Context, jobContextID string) (domain.CompetencyFramework, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	framework, ok := s.frameworks[jobContextID]
	if !ok {
		return domain.CompetencyFramework{}, fmt.Errorf("framework for job %s: %w", jobContextID, domain.ErrNotFound)
	}
	return framework, nil
}

// SaveQuestionSet implements ports.EvaluationStore.
func (s *MemoryStore) SaveQuestionSet(_ context.Context, set domain.QuestionSet) error {
	if set.JobContextID == "" {
		return fmt.Errorf("question set job context ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[set.JobContextID] = set
	return nil
}

// GetQuestionSet implements ports.EvaluationStore.
func (s *MemoryStore) GetQuestionSet(_ context.Context, jobContextID string) (domain.QuestionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.questions[jobContextID]
	if !ok {
		return domain.QuestionSet{}, fmt.Errorf("question set for job %s: %w", jobContextID, domain.ErrNotFound)
	}
	return set, nil
}

// SaveAnswer implements ports.EvaluationStore.
func (s *MemoryStore) SaveAnswer(_ context.Context, answer domain.Answer) error {
	if answer.ID == "" {
		return fmt.Errorf("answer ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[answer.ID] = answer
	return nil
}

// GetAnswer implements ports.EvaluationStore.
func (s *MemoryStore) GetAnswer(_ context.Context, id string) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answer, ok := s.answers[id]
	if !ok {
		return domain.Answer{}, fmt.Errorf("answer %s: %w", id, domain.ErrNotFound)
	}
	return answer, nil
}

// SaveReport implements ports.EvaluationStore.
func (s *MemoryStore) SaveReport(_ context.Context, report domain.EvaluationReport) error {
	if report.ID == "" {
		return fmt.Errorf("report ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ID] = report
	return nil
}

// GetReport implements ports.EvaluationStore.
func (s *MemoryStore) GetReport(_ context.Context, id string) (domain.EvaluationReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[id]
	if !ok {
		return domain.EvaluationReport{}, fmt.Errorf("report %s: %w", id, domain.ErrNotFound)
	}
	return report, nil
}

var _ ports.EvaluationStore = (*MemoryStore)(nil)

// cacheEntry is one value in the in-memory cache store.
type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e cacheEntry) expired() bool {
	return !e.expiresAt.IsZero() && !time.Now().Before(e.expiresAt)
}

// MemoryCacheStore is a thread-safe in-memory ports.CacheStore with
// per-entry expiration.
type MemoryCacheStore struct {
	mu   sync.RWMutex
	data map[string]cacheEntry
}

// NewMemoryCacheStore builds an empty cache store.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{data: make(map[string]cacheEntry)}
}

// Get implements ports.CacheStore.
func (s *MemoryCacheStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if entry.expired() {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements ports.CacheStore. A zero expiration stores the entry
// without expiry.
func (s *MemoryCacheStore) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	entry := cacheEntry{value: value}
	if expiration > 0 {
		entry.expiresAt = time.Now().Add(expiration)
	}
	s.mu.Lock()
	s.data[key] = entry
	s.mu.Unlock()
	return nil
}

// Delete implements ports.CacheStore.
func (s *MemoryCacheStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

var _ ports.CacheStore = (*MemoryCacheStore)(nil)
