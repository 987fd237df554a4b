package pipeline

import (
	"sync"

	"property-scraper/models"
)

// Progress accumulates a run's counters. It is safe for concurrent use and
// may be read while the run is in flight.
type Progress struct {
	mu sync.Mutex
	s  models.RunStatus
}

// Status returns a snapshot of the counters.
func (p *Progress) Status() models.RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.s
}

func (p *Progress) pageProcessed() {
	p.mu.Lock()
	p.s.PagesProcessed++
	p.mu.Unlock()
}

func (p *Progress) extracted(n int) {
	p.mu.Lock()
	p.s.RecordsExtracted += n
	p.mu.Unlock()
}

func (p *Progress) dropped() {
	p.mu.Lock()
	p.s.RecordsDropped++
	p.mu.Unlock()
}

func (p *Progress) skipped() {
	p.mu.Lock()
	p.s.ListingsSkipped++
	p.mu.Unlock()
}
