// Package jobs implements the long-running job engine: the chunked batch
// runner, the admission/failsafe supervisor, and the built-in bulk operation
// processors. All coordination happens through the persisted job record;
// suspension points occur only at batch boundaries.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

// ErrRateLimited marks a transient rate-limit from the entity store. The
// runner reacts by widening the inter-batch delay instead of failing the job.
var ErrRateLimited = errors.New("entity store rate limited")

// IsRateLimited reports whether an error chain contains a rate-limit marker
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// BatchWindow is the bounded slice of work the runner hands a processor.
type BatchWindow struct {
	Cursor int
	Size   int
}

// End returns the exclusive upper bound of the window
func (w BatchWindow) End() int {
	return w.Cursor + w.Size
}

// BatchResult reports one batch's outcome. Item-level failures are carried in
// ItemErrors and never abort the batch; a non-nil error from RunBatch is
// reserved for batch-level failures (setup, store outage, rate limit).
type BatchResult struct {
	Processed  int
	Succeeded  int
	Failed     int
	ItemErrors []models.JobError
	NextCursor int
	Checkpoint json.RawMessage
}

// Processor executes one job type. Implementations must be idempotent at
// batch-item granularity: re-running a batch at the same cursor must not
// double-apply work.
type Processor interface {
	// Prepare resolves the total work item count and any setup state. It runs
	// once, before the first batch.
	Prepare(ctx context.Context, job *models.Job) (total int, err error)
	// RunBatch applies the work items in the window with per-item error isolation.
	RunBatch(ctx context.Context, job *models.Job, window BatchWindow) (BatchResult, error)
	// Cleanup runs after the cursor exhausts the total, before the job is
	// marked completed. Cascading deletes and finalization belong here.
	Cleanup(ctx context.Context, job *models.Job) error
}

// Factory builds a fresh processor per job execution so implementations can
// cache per-run state such as precomputed match indices.
type Factory func() Processor

// Registry maps job types to processor factories.
type Registry struct {
	factories map[models.JobType]Factory
}

// NewRegistry creates an empty processor registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[models.JobType]Factory)}
}

// Register binds a factory to a job type
func (r *Registry) Register(jobType models.JobType, factory Factory) {
	r.factories[jobType] = factory
}

// New instantiates a processor for a job type
func (r *Registry) New(jobType models.JobType) (Processor, error) {
	factory, ok := r.factories[jobType]
	if !ok {
		return nil, fmt.Errorf("no processor registered for job type %q", jobType)
	}
	return factory(), nil
}
