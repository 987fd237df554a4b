package utils

import (
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrPoolSaturated is returned by Submit under the Reject policy when every
// worker is busy and the wait queue is full.
var ErrPoolSaturated = eris.New("worker pool saturated")

// BackpressurePolicy decides what Submit does when the pool is saturated.
type BackpressurePolicy int

const (
	// PolicyBlock makes the caller wait for a free queue slot.
	PolicyBlock BackpressurePolicy = iota
	// PolicyCallerRuns executes the job synchronously on the caller.
	PolicyCallerRuns
	// PolicyReject returns ErrPoolSaturated.
	PolicyReject
)

// ParseBackpressurePolicy maps "block", "caller-runs" and "reject" to a policy.
// Unknown values fall back to PolicyBlock.
func ParseBackpressurePolicy(s string) BackpressurePolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "caller-runs", "caller_runs", "callerruns":
		return PolicyCallerRuns
	case "reject":
		return PolicyReject
	default:
		return PolicyBlock
	}
}

func (p BackpressurePolicy) String() string {
	switch p {
	case PolicyCallerRuns:
		return "caller-runs"
	case PolicyReject:
		return "reject"
	default:
		return "block"
	}
}

// WorkerPool manages a pool of goroutines with rate limiting and a bounded
// wait queue.
type WorkerPool struct {
	maxWorkers  int
	rateLimitMs int
	policy      BackpressurePolicy
	semaphore   chan struct{}
	queue       chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	lastRequest time.Time
}

// NewBoundedWorkerPool creates a WorkerPool that admits at most maxWorkers
// running jobs plus queueSize waiting jobs; beyond that the policy applies.
func NewBoundedWorkerPool(maxWorkers, queueSize, rateLimitMs int, policy BackpressurePolicy) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		maxWorkers:  maxWorkers,
		rateLimitMs: rateLimitMs,
		policy:      policy,
		semaphore:   make(chan struct{}, maxWorkers),
		queue:       make(chan struct{}, queueSize),
		lastRequest: time.Now().Add(-time.Duration(rateLimitMs) * time.Millisecond),
	}
}

// Submit enqueues a job for execution in the pool.
func (wp *WorkerPool) Submit(job func()) error {
	select {
	case wp.semaphore <- struct{}{}:
		wp.start(job, false)
		return nil
	default:
	}

	select {
	case wp.queue <- struct{}{}:
		wp.start(job, true)
		return nil
	default:
	}

	switch wp.policy {
	case PolicyCallerRuns:
		wp.wg.Add(1)
		defer wp.wg.Done()
		wp.enforceRateLimit()
		job()
		return nil
	case PolicyReject:
		return ErrPoolSaturated
	default:
		wp.semaphore <- struct{}{}
		wp.start(job, false)
		return nil
	}
}

// start runs job on a new goroutine. A queued job holds a queue slot until
// it obtains a worker slot.
func (wp *WorkerPool) start(job func(), queued bool) {
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		if queued {
			wp.semaphore <- struct{}{}
			<-wp.queue
		}
		defer func() { <-wp.semaphore }()

		wp.enforceRateLimit()
		job()
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) enforceRateLimit() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	minInterval := time.Duration(wp.rateLimitMs) * time.Millisecond
	elapsed := time.Since(wp.lastRequest)
	if elapsed < minInterval {
		time.Sleep(minInterval - elapsed)
	}
	wp.lastRequest = time.Now()
}

// URLSet is a thread-safe set for tracking visited URLs.
type URLSet struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewURLSet creates an empty URLSet.
func NewURLSet() *URLSet {
	return &URLSet{seen: make(map[string]struct{})}
}

// Add returns true if the URL was newly added, false if already present.
func (s *URLSet) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[url]; exists {
		return false
	}
	s.seen[url] = struct{}{}
	return true
}

// Contains returns true if the URL has already been visited.
func (s *URLSet) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.seen[url]
	return exists
}

// Size returns the number of unique URLs tracked.
func (s *URLSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}
