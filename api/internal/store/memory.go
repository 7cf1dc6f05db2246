package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"parascope/api/internal/sample"
)

// Memory keeps samples and reports in process. It backs tests and the
// server when no database is configured; writes follow the same
// compare-and-set rules as the Postgres repos.
type Memory struct {
	mu      sync.Mutex
	samples map[string]sample.Sample
	reports map[string]sample.Report
}

func NewMemory() *Memory {
	return &Memory{
		samples: map[string]sample.Sample{},
		reports: map[string]sample.Report{},
	}
}

func (m *Memory) Samples() *MemorySamples { return &MemorySamples{m: m} }

func (m *Memory) Reports() *MemoryReports { return &MemoryReports{m: m} }

type MemorySamples struct{ m *Memory }

func (s *MemorySamples) Create(_ context.Context, smp *sample.Sample) error {
	if smp.Status != sample.StatusPending || !smp.Consistent() {
		return fmt.Errorf("create sample %s: new samples must be pending", smp.ID)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.samples[smp.ID]; ok {
		return fmt.Errorf("create sample %s: duplicate id", smp.ID)
	}
	s.m.samples[smp.ID] = *smp
	return nil
}

func (s *MemorySamples) Get(_ context.Context, id string) (sample.Sample, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	smp, ok := s.m.samples[id]
	if !ok {
		return sample.Sample{}, &sample.NotFoundError{ID: id}
	}
	return copySample(smp), nil
}

func (s *MemorySamples) Transition(_ context.Context, id string, from sample.Status, u sample.Update, at time.Time) (sample.Sample, error) {
	if err := u.Validate(from); err != nil {
		return sample.Sample{}, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	cur, ok := s.m.samples[id]
	if !ok {
		return sample.Sample{}, &sample.NotFoundError{ID: id}
	}
	if cur.Status != from {
		return sample.Sample{}, fmt.Errorf("sample %s: %w", id, sample.ErrStaleStatus)
	}
	next := cur.Apply(u, at)
	s.m.samples[id] = next
	return copySample(next), nil
}

func (s *MemorySamples) List(_ context.Context, limit, offset int) ([]sample.Sample, error) {
	if limit <= 0 {
		limit = 50
	}
	all := s.sorted(func(sample.Sample) bool { return true })
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemorySamples) ListStuck(_ context.Context, cutoff time.Time) ([]sample.Sample, error) {
	out := s.sorted(func(smp sample.Sample) bool {
		return smp.Status == sample.StatusProcessing && smp.UpdatedAt.Before(cutoff)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// sorted returns matching samples ordered by id, as a stable base for callers.
func (s *MemorySamples) sorted(keep func(sample.Sample) bool) []sample.Sample {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make([]sample.Sample, 0, len(s.m.samples))
	for _, smp := range s.m.samples {
		if keep(smp) {
			out = append(out, copySample(smp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type MemoryReports struct{ m *Memory }

func (r *MemoryReports) Insert(_ context.Context, rep *sample.Report) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.reports[rep.SampleID]; ok {
		return fmt.Errorf("sample %s: %w", rep.SampleID, sample.ErrReportExists)
	}
	r.m.reports[rep.SampleID] = *rep
	return nil
}

func (r *MemoryReports) Get(_ context.Context, sampleID string) (*sample.Report, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rep, ok := r.m.reports[sampleID]
	if !ok {
		return nil, fmt.Errorf("report for sample %s: %w", sampleID, sample.ErrNotFound)
	}
	return &rep, nil
}

func (r *MemoryReports) UpdateAnnotations(_ context.Context, sampleID string, a sample.Annotations) (*sample.Report, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rep, ok := r.m.reports[sampleID]
	if !ok {
		return nil, fmt.Errorf("report for sample %s: %w", sampleID, sample.ErrNotFound)
	}
	rep.Annotate(a)
	r.m.reports[sampleID] = rep
	return &rep, nil
}

func copySample(s sample.Sample) sample.Sample {
	if s.Diagnosis != nil {
		d := *s.Diagnosis
		s.Diagnosis = &d
	}
	return s
}
