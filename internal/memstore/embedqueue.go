package memstore

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cortexmem/cortex/internal/embedding"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/store"
)

// embedJob is one pending (memoryID, text) embedding computation.
type embedJob struct {
	memoryID int64
	text     string
}

// embedQueueCapacity bounds the pending job channel; once full, the
// oldest queued job is dropped in favor of the new one so a burst of
// writes never blocks Add/Update.
const embedQueueCapacity = 256

// EmbedQueue runs embedding computation off the request path: Add and
// Update enqueue (memoryID, text) pairs, a single background worker
// drains them and writes the result back via SetEmbedding.
type EmbedQueue struct {
	st       *store.Store
	pipeline *embedding.Pipeline
	jobs     chan embedJob
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[int64]bool
}

// NewEmbedQueue builds a queue bound to st, using pipeline to compute
// vectors. Run must be called (typically from the engine's lifecycle)
// to start draining.
func NewEmbedQueue(st *store.Store, pipeline *embedding.Pipeline) *EmbedQueue {
	return &EmbedQueue{
		st:       st,
		pipeline: pipeline,
		jobs:     make(chan embedJob, embedQueueCapacity),
		pending:  make(map[int64]bool),
		log:      logging.Component(logging.New(), "embedqueue"),
	}
}

// Enqueue schedules memoryID's embedding to be (re)computed from text.
// Duplicate pending requests for the same memory are coalesced; if the
// channel is full the oldest pending job is dropped to make room.
func (q *EmbedQueue) Enqueue(memoryID int64, text string) {
	q.mu.Lock()
	if q.pending[memoryID] {
		q.mu.Unlock()
		return
	}
	q.pending[memoryID] = true
	q.mu.Unlock()

	job := embedJob{memoryID: memoryID, text: text}
	select {
	case q.jobs <- job:
	default:
		select {
		case <-q.jobs:
		default:
		}
		select {
		case q.jobs <- job:
		default:
			q.mu.Lock()
			delete(q.pending, memoryID)
			q.mu.Unlock()
		}
	}
}

// Run drains the queue until ctx is canceled, computing and persisting
// one embedding at a time. Intended to run in its own goroutine.
func (q *EmbedQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

func (q *EmbedQueue) process(ctx context.Context, job embedJob) {
	vec, err := q.pipeline.Embed(ctx, job.text)
	q.mu.Lock()
	delete(q.pending, job.memoryID)
	q.mu.Unlock()

	if err != nil {
		q.log.Debug().Int64("memory_id", job.memoryID).Err(err).Msg("embedding unavailable, skipping")
		return
	}

	if err := q.st.WithTx(ctx, func(tx store.DBTX) error {
		return q.st.SetEmbedding(ctx, tx, job.memoryID, vec)
	}); err != nil {
		q.log.Warn().Int64("memory_id", job.memoryID).Err(err).Msg("failed to persist embedding")
	}
}
