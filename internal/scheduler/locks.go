package scheduler

import "sync"

// JobLocks guards against re-entrant execution of the same job type.
// TryAcquire is non-blocking: an overlapping invocation is dropped, not
// queued. Different job types never contend with each other.
type JobLocks struct {
	mu     sync.Mutex
	locked map[string]bool
}

func NewJobLocks() *JobLocks {
	return &JobLocks{locked: make(map[string]bool)}
}

// TryAcquire takes the lock for a job type, reporting false when an
// invocation of the same job is already running.
func (l *JobLocks) TryAcquire(job string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked[job] {
		return false
	}

	l.locked[job] = true

	return true
}

// Release frees the lock. Safe to call for a job that is not held.
func (l *JobLocks) Release(job string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.locked, job)
}

// Held reports whether the job's lock is currently taken.
func (l *JobLocks) Held(job string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.locked[job]
}
