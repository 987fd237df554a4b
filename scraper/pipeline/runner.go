package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"property-scraper/models"
	"property-scraper/utils"
)

// Runner executes runs on a bounded worker pool. What happens when the pool
// is saturated is the pool's backpressure policy.
type Runner struct {
	orch   *Orchestrator
	pool   *utils.WorkerPool
	logger *utils.Logger
}

// NewRunner creates a Runner.
func NewRunner(orch *Orchestrator, pool *utils.WorkerPool, logger *utils.Logger) *Runner {
	return &Runner{orch: orch, pool: pool, logger: logger}
}

// Handle tracks a submitted run.
type Handle struct {
	id       string
	site     string
	progress *Progress
	cancel   context.CancelFunc
	done     chan struct{}

	records []*models.PropertyRecord
	err     error
}

// ID returns the run identifier.
func (h *Handle) ID() string { return h.id }

// Site returns the name of the site being scraped.
func (h *Handle) Site() string { return h.site }

// Status returns the run's counters so far.
func (h *Handle) Status() models.RunStatus { return h.progress.Status() }

// Done is closed when the run has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes and returns its records and error.
func (h *Handle) Wait() ([]*models.PropertyRecord, error) {
	<-h.done
	return h.records, h.err
}

// Cancel aborts the run between listings.
func (h *Handle) Cancel() { h.cancel() }

// Submit schedules req. Under the reject policy a saturated pool makes
// Submit fail with utils.ErrPoolSaturated; under caller-runs the run has
// already finished when Submit returns.
func (r *Runner) Submit(ctx context.Context, req Request) (*Handle, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:       req.RunID,
		site:     req.Site.Name,
		progress: &Progress{},
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	err := r.pool.Submit(func() {
		defer close(h.done)
		defer cancel()
		h.records, h.err = r.orch.Run(runCtx, req, h.progress)
	})
	if err != nil {
		cancel()
		return nil, eris.Wrapf(err, "pipeline: submit run %s", req.RunID)
	}
	r.logger.Debug("[runner] Submitted run %s for %s", h.id, h.site)
	return h, nil
}

// Wait blocks until every submitted run has finished.
func (r *Runner) Wait() {
	r.pool.Wait()
}
