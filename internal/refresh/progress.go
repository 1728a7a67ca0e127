package refresh

import (
	"sync"
	"time"
)

const percentMultiplier = 100

// Progress tracks how many projects a refresh has finished.
type Progress struct {
	// Total is the number of projects to refresh.
	Total int

	// Done counts projects whose instances were loaded.
	Done int

	// Failed counts projects whose instance listing failed.
	Failed int

	// Instances counts instances loaded so far.
	Instances int

	StartTime      time.Time
	LastUpdateTime time.Time

	mu sync.RWMutex
}

// NewProgress creates a tracker for total projects.
func NewProgress(total int) *Progress {
	now := time.Now()
	return &Progress{
		Total:          total,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// AddDone records a finished project with its instance count.
func (p *Progress) AddDone(instances int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Done++
	p.Instances += instances
	p.LastUpdateTime = time.Now()
}

// AddFailed records a failed project.
func (p *Progress) AddFailed() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Failed++
	p.LastUpdateTime = time.Now()
}

// PercentComplete returns the share of finished or failed projects (0-100).
func (p *Progress) PercentComplete() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.percentCompleteUnsafe()
}

// ElapsedTime returns the time since the refresh started.
func (p *Progress) ElapsedTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Since(p.StartTime)
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		Total:           p.Total,
		Done:            p.Done,
		Failed:          p.Failed,
		Instances:       p.Instances,
		PercentComplete: p.percentCompleteUnsafe(),
		ElapsedTime:     time.Since(p.StartTime),
	}
}

// ProgressSnapshot is an immutable copy of Progress.
type ProgressSnapshot struct {
	Total           int
	Done            int
	Failed          int
	Instances       int
	PercentComplete float64
	ElapsedTime     time.Duration
}

// percentCompleteUnsafe must be called with the lock held.
func (p *Progress) percentCompleteUnsafe() float64 {
	if p.Total == 0 {
		return percentMultiplier
	}
	return float64(p.Done+p.Failed) / float64(p.Total) * percentMultiplier
}
