// Package jobstore persists job lifecycle state in Redis. Redis is the
// authoritative store: a transient PENDING sentinel is written with SET NX EX
// so idempotent creation is a single atomic command, while terminal states
// are structured JSON carrying everything a status read needs to reconstruct
// the outcome. TTL is reapplied on every mutation.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job states as stored in Redis.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// pendingSentinel is the raw value written on creation. Everything else in
// the key is JSON.
const pendingSentinel = "PENDING"

// ErrNotFound is returned when no record exists for a job id (never created,
// or expired). Callers check it with errors.Is.
var ErrNotFound = errors.New("jobstore: job not found")

// Result carries the success payload of a terminal record.
type Result struct {
	FileID string `json:"file_id"`
}

// JobError carries the failure payload of a terminal record.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record is the parsed value of a job key.
type Record struct {
	Status Status    `json:"status"`
	Result *Result   `json:"result,omitempty"`
	Error  *JobError `json:"error,omitempty"`
}

// Store reads and writes job records under `{prefix}:jobs:{job_id}`.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New returns a store namespaced with prefix (e.g. "filegw").
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(jobID string) string {
	return fmt.Sprintf("%s:jobs:%s", s.prefix, jobID)
}

// CreatePendingIfAbsent atomically creates the PENDING record with the given
// TTL. Returns true if this call created it. Callers observing false MUST NOT
// trigger side-effecting work for the job: another handler owns it.
func (s *Store) CreatePendingIfAbsent(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	created, err := s.rdb.SetNX(ctx, s.key(jobID), pendingSentinel, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("jobstore: create pending %s: %w", jobID, err)
	}
	return created, nil
}

// SetSuccess overwrites the record with a terminal SUCCESS value and
// reapplies the TTL.
func (s *Store) SetSuccess(ctx context.Context, jobID, fileID string, ttl time.Duration) error {
	value, err := json.Marshal(Record{Status: StatusSuccess, Result: &Result{FileID: fileID}})
	if err != nil {
		return fmt.Errorf("jobstore: marshal success record: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(jobID), value, ttl).Err(); err != nil {
		return fmt.Errorf("jobstore: set success %s: %w", jobID, err)
	}
	return nil
}

// SetFailed overwrites the record with a terminal FAILED value and reapplies
// the TTL.
func (s *Store) SetFailed(ctx context.Context, jobID, code, message string, ttl time.Duration) error {
	value, err := json.Marshal(Record{Status: StatusFailed, Error: &JobError{Code: code, Message: message}})
	if err != nil {
		return fmt.Errorf("jobstore: marshal failed record: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(jobID), value, ttl).Err(); err != nil {
		return fmt.Errorf("jobstore: set failed %s: %w", jobID, err)
	}
	return nil
}

// GetStatus returns the job's current state, or ErrNotFound.
func (s *Store) GetStatus(ctx context.Context, jobID string) (Status, error) {
	rec, err := s.GetRecord(ctx, jobID)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// GetRecord returns the parsed record, or ErrNotFound. For terminal states
// the result/error payload is populated so the caller can reconstruct the
// file id or the failure detail.
func (s *Store) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	value, err := s.rdb.Get(ctx, s.key(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: get %s: %w", jobID, err)
	}
	return parseRecord(value)
}

// parseRecord maps a raw key value to a Record. The PENDING sentinel is not
// JSON; anything else must parse and carry a known status.
func parseRecord(value string) (*Record, error) {
	if value == pendingSentinel {
		return &Record{Status: StatusPending}, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return nil, fmt.Errorf("jobstore: parse record: %w", err)
	}
	switch rec.Status {
	case StatusSuccess, StatusFailed:
		return &rec, nil
	default:
		return nil, fmt.Errorf("jobstore: unknown status %q", rec.Status)
	}
}

// Ping verifies Redis connectivity. Used by health handlers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("jobstore: ping: %w", err)
	}
	return nil
}
