// Package generation — memjobs.go реализует JobStore на in-memory map.
// Используется для dev/test окружений, семантика повторяет Repository.
package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stargen.ru/generation-bot/internal/common"
)

// MemJobStore — потокобезопасное in-memory хранилище задач.
type MemJobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemJobStore создаёт пустое хранилище задач.
func NewMemJobStore() *MemJobStore {
	return &MemJobStore{jobs: make(map[string]*Job)}
}

var _ JobStore = (*MemJobStore)(nil)

func (s *MemJobStore) Insert(ctx context.Context, job *Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return false, nil
	}
	cp := *job
	cp.Status = StatusReceived
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.jobs[job.ID] = &cp
	return true, nil
}

func (s *MemJobStore) GetByID(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job=%s: %w", id, common.ErrJobNotFound)
	}
	cp := *job
	return &cp, nil
}

func (s *MemJobStore) GetByCorrelationID(ctx context.Context, correlationID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		if job.CorrelationID == correlationID {
			cp := *job
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("correlation=%s: %w", correlationID, common.ErrJobNotFound)
}

func (s *MemJobStore) SetBalanceChecked(ctx context.Context, id string, debitTxID int64) error {
	return s.update(id, func(j *Job) {
		if j.Status == StatusReceived {
			j.Status = StatusBalanceChecked
			j.DebitTxID = &debitTxID
		}
	})
}

func (s *MemJobStore) SetDispatched(ctx context.Context, id string) error {
	return s.update(id, func(j *Job) {
		if j.Status == StatusBalanceChecked {
			j.Status = StatusDispatched
		}
	})
}

func (s *MemJobStore) SetCorrelationID(ctx context.Context, id, correlationID string) error {
	return s.update(id, func(j *Job) {
		j.CorrelationID = correlationID
	})
}

func (s *MemJobStore) MarkSucceeded(ctx context.Context, id, resultURL string) (bool, error) {
	applied := false
	err := s.update(id, func(j *Job) {
		if j.Status == StatusBalanceChecked || j.Status == StatusDispatched {
			j.Status = StatusSucceeded
			j.ResultURL = resultURL
			applied = true
		}
	})
	return applied, err
}

func (s *MemJobStore) MarkFailedRefunded(ctx context.Context, id, errMsg string) (bool, error) {
	applied := false
	err := s.update(id, func(j *Job) {
		if j.Status == StatusBalanceChecked || j.Status == StatusDispatched {
			j.Status = StatusFailedRefunded
			j.Error = errMsg
			applied = true
		}
	})
	return applied, err
}

func (s *MemJobStore) MarkRejected(ctx context.Context, id, reason string) error {
	return s.update(id, func(j *Job) {
		if j.Status == StatusReceived {
			j.Status = StatusRejected
			j.Error = reason
		}
	})
}

func (s *MemJobStore) ListStale(ctx context.Context, olderThan time.Duration) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []*Job
	for _, job := range s.jobs {
		if (job.Status == StatusBalanceChecked || job.Status == StatusDispatched) && job.UpdatedAt.Before(cutoff) {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemJobStore) update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job=%s: %w", id, common.ErrJobNotFound)
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return nil
}

// Touch сдвигает updated_at в прошлое (только для тестов реапера).
func (s *MemJobStore) Touch(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.UpdatedAt = at
	}
}
