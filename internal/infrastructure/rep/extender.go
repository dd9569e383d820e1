package rep

import (
	"fmt"

	"github.com/poppingtonic/eirli/internal/infrastructure/tensor"
)

// BatchExtender optionally widens the decoded batch before the loss.
type BatchExtender interface {
	Extend(g *tensor.Graph, decodedContext, decodedTarget *tensor.Mat) (*tensor.Mat, *tensor.Mat, error)
}

// IdentityBatchExtender returns both batches unchanged.
type IdentityBatchExtender struct{}

// Extend implements BatchExtender.
func (IdentityBatchExtender) Extend(_ *tensor.Graph, decodedContext, decodedTarget *tensor.Mat) (*tensor.Mat, *tensor.Mat, error) {
	return decodedContext, decodedTarget, nil
}

// sampleQueue is a bounded ring buffer of projection vectors: a fixed arena,
// a write cursor and a count. Insertion is FIFO; once full the oldest entry
// is evicted. Not thread safe: exactly one writer, the training loop.
type sampleQueue struct {
	dim   int
	arena [][]float64
	head  int // next write position
	count int
}

func newSampleQueue(capacity, dim int) *sampleQueue {
	return &sampleQueue{dim: dim, arena: make([][]float64, capacity)}
}

func (q *sampleQueue) len() int { return q.count }

// push copies one vector into the queue, evicting the oldest if full.
func (q *sampleQueue) push(v []float64) {
	q.arena[q.head] = append([]float64(nil), v...)
	q.head = (q.head + 1) % len(q.arena)
	if q.count < len(q.arena) {
		q.count++
	}
}

// snapshot returns the queue contents in insertion order, oldest first.
func (q *sampleQueue) snapshot() [][]float64 {
	out := make([][]float64, 0, q.count)
	start := q.head - q.count
	if start < 0 {
		start += len(q.arena)
	}
	for i := 0; i < q.count; i++ {
		out = append(out, q.arena[(start+i)%len(q.arena)])
	}
	return out
}

// QueueBatchExtender caches decoded targets from previous steps and serves
// them as extra negatives: Extend snapshots the queue, enqueues the current
// targets, and returns the context batch unchanged alongside the current
// targets concatenated with the snapshot. Cached entries are detached
// values; no gradient flows into them. The queue lives for the whole run
// and is not checkpointed.
type QueueBatchExtender struct {
	queue *sampleQueue
}

// NewQueueBatchExtender validates the capacity/dimension pair at
// construction; a mismatch later is a fatal configuration error.
func NewQueueBatchExtender(capacity, projectionDim int) (*QueueBatchExtender, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", capacity)
	}
	if projectionDim <= 0 {
		return nil, fmt.Errorf("queue projection dim must be positive, got %d", projectionDim)
	}
	return &QueueBatchExtender{queue: newSampleQueue(capacity, projectionDim)}, nil
}

// Len returns the current number of cached negatives.
func (e *QueueBatchExtender) Len() int { return e.queue.len() }

// Extend implements BatchExtender.
func (e *QueueBatchExtender) Extend(g *tensor.Graph, decodedContext, decodedTarget *tensor.Mat) (*tensor.Mat, *tensor.Mat, error) {
	if decodedTarget.Cols != e.queue.dim {
		return nil, nil, fmt.Errorf("decoded targets have dim %d, queue was built for projection dim %d", decodedTarget.Cols, e.queue.dim)
	}
	cached := e.queue.snapshot()
	for r := 0; r < decodedTarget.Rows; r++ {
		e.queue.push(decodedTarget.Row(r))
	}
	if len(cached) == 0 {
		return decodedContext, decodedTarget, nil
	}
	extended := g.ConcatRows(decodedTarget, tensor.FromRows(cached))
	return decodedContext, extended, nil
}
