package jobstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Bulk job meta statuses mirror the remote PDF service's terminal states.
const (
	BulkStatusRunning        = "RUNNING"
	BulkStatusDone           = "DONE"
	BulkStatusDoneWithErrors = "DONE_WITH_ERRORS"
	BulkStatusFailed         = "FAILED"
)

// BulkTracker records bulk document-generation progress under
// `job:{id}:meta` (hash), `job:{id}:results` and `job:{id}:errors` (lists).
// Counters are monotone non-decreasing; a DONE or DONE_WITH_ERRORS status is
// written in a single HSET together with the final counters, while FAILED is
// written alone and leaves the counters as they were.
type BulkTracker struct {
	rdb *redis.Client
}

// NewBulkTracker returns a tracker over rdb.
func NewBulkTracker(rdb *redis.Client) *BulkTracker {
	return &BulkTracker{rdb: rdb}
}

func metaKey(jobID string) string    { return fmt.Sprintf("job:%s:meta", jobID) }
func resultsKey(jobID string) string { return fmt.Sprintf("job:%s:results", jobID) }
func errorsKey(jobID string) string  { return fmt.Sprintf("job:%s:errors", jobID) }

// SetMetaRunning initializes the meta hash for a job with total items.
func (t *BulkTracker) SetMetaRunning(ctx context.Context, jobID string, total int) error {
	err := t.rdb.HSet(ctx, metaKey(jobID),
		"status", BulkStatusRunning,
		"total", total,
		"processed", 0,
		"failed", 0,
	).Err()
	if err != nil {
		return fmt.Errorf("jobstore: set meta running %s: %w", jobID, err)
	}
	return nil
}

// SetMetaPDFJobID records the upstream job id once the remote service has
// accepted the batch.
func (t *BulkTracker) SetMetaPDFJobID(ctx context.Context, jobID, remoteID string) error {
	if err := t.rdb.HSet(ctx, metaKey(jobID), "pdf_job_id", remoteID).Err(); err != nil {
		return fmt.Errorf("jobstore: set pdf_job_id %s: %w", jobID, err)
	}
	return nil
}

// PushResult appends a JSON result record to the results list.
func (t *BulkTracker) PushResult(ctx context.Context, jobID string, line []byte) error {
	if err := t.rdb.RPush(ctx, resultsKey(jobID), line).Err(); err != nil {
		return fmt.Errorf("jobstore: push result %s: %w", jobID, err)
	}
	return nil
}

// PushError appends a JSON error record to the errors list.
func (t *BulkTracker) PushError(ctx context.Context, jobID string, line []byte) error {
	if err := t.rdb.RPush(ctx, errorsKey(jobID), line).Err(); err != nil {
		return fmt.Errorf("jobstore: push error %s: %w", jobID, err)
	}
	return nil
}

// SetMetaDone writes the terminal status and final counters atomically.
func (t *BulkTracker) SetMetaDone(ctx context.Context, jobID, status string, total, processed, failed string) error {
	err := t.rdb.HSet(ctx, metaKey(jobID),
		"status", status,
		"total", total,
		"processed", processed,
		"failed", failed,
	).Err()
	if err != nil {
		return fmt.Errorf("jobstore: set meta done %s: %w", jobID, err)
	}
	return nil
}

// SetMetaFailed marks the job FAILED without touching the counters.
func (t *BulkTracker) SetMetaFailed(ctx context.Context, jobID string) error {
	if err := t.rdb.HSet(ctx, metaKey(jobID), "status", BulkStatusFailed).Err(); err != nil {
		return fmt.Errorf("jobstore: set meta failed %s: %w", jobID, err)
	}
	return nil
}

// Queue is the Redis list the bulk jobs arrive on.
type Queue struct {
	rdb  *redis.Client
	name string
}

// NewQueue returns a queue over the named list (e.g. "queue:docs:generate").
func NewQueue(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

// Pop blocks until a payload is available (BLPOP with no timeout) and
// returns it verbatim. Decoding is the consumer's concern.
func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	res, err := q.rdb.BLPop(ctx, 0, q.name).Result()
	if err != nil {
		return nil, fmt.Errorf("jobstore: blpop %s: %w", q.name, err)
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("jobstore: blpop %s: unexpected reply of %d elements", q.name, len(res))
	}
	return []byte(res[1]), nil
}

// Len reports the number of queued payloads. Used by the metrics sampler.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("jobstore: llen %s: %w", q.name, err)
	}
	return n, nil
}
