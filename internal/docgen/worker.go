// Package docgen drives bulk document generation: pop a job from the Redis
// list, submit the batch to the remote PDF service, poll until the remote
// job is terminal (bounded by a deadline), and fan the per-item results back
// into Redis plus, best-effort, the documents table.
package docgen

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/jobstore"
	"github.com/t-saturn/certificados-gra/internal/metrics"
	"github.com/t-saturn/certificados-gra/internal/pdfservice"
)

// Queue pops raw job payloads. Satisfied by *jobstore.Queue.
type Queue interface {
	Pop(ctx context.Context) ([]byte, error)
}

// Tracker records bulk progress in Redis. Satisfied by *jobstore.BulkTracker.
type Tracker interface {
	SetMetaRunning(ctx context.Context, jobID string, total int) error
	SetMetaPDFJobID(ctx context.Context, jobID, remoteID string) error
	PushResult(ctx context.Context, jobID string, line []byte) error
	PushError(ctx context.Context, jobID string, line []byte) error
	SetMetaDone(ctx context.Context, jobID, status string, total, processed, failed string) error
	SetMetaFailed(ctx context.Context, jobID string) error
}

// PDFClient submits batches and polls jobs. Satisfied by *pdfservice.Client.
type PDFClient interface {
	GenerateDoc(ctx context.Context, items []pdfservice.Item) (*pdfservice.GenerateDocResponse, error)
	GetJob(ctx context.Context, remoteID string) (*pdfservice.JobStatus, error)
}

// DocumentUpdater applies per-item results to the documents table. Nil
// disables the update step; the Redis meta remains the source of truth.
type DocumentUpdater interface {
	SetFileID(ctx context.Context, documentID, fileID uuid.UUID) (int64, error)
}

// errorRecord is the shape pushed to job:{id}:errors.
type errorRecord struct {
	Error    string `json:"error"`
	PDFJobID string `json:"pdf_job_id,omitempty"`
}

// Worker consumes and processes bulk jobs one at a time.
type Worker struct {
	queue        Queue
	tracker      Tracker
	pdf          PDFClient
	docs         DocumentUpdater
	pollInterval time.Duration
	maxPoll      time.Duration
	logger       *zap.Logger
}

// NewWorker wires a worker. docs may be nil (no database configured).
func NewWorker(queue Queue, tracker Tracker, pdf PDFClient, docs DocumentUpdater, pollInterval, maxPoll time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		queue:        queue,
		tracker:      tracker,
		pdf:          pdf,
		docs:         docs,
		pollInterval: pollInterval,
		maxPoll:      maxPoll,
		logger:       logger,
	}
}

// Run pops and processes jobs until ctx is canceled. A malformed payload is
// dropped; a pop error backs off briefly so a Redis outage does not spin.
func (w *Worker) Run(ctx context.Context) error {
	for {
		payload, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("queue pop failed", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		var job BulkJob
		if err := json.Unmarshal(payload, &job); err != nil {
			w.logger.Warn("invalid job payload, dropping", zap.Error(err))
			continue
		}

		if err := w.Process(ctx, job); err != nil {
			w.logger.Error("job failed",
				zap.String("job_id", job.JobID), zap.Error(err))
		}
	}
}

// Process runs one bulk job to a terminal state. Jobs of another type are
// ignored without touching the meta hash. For an accepted job every exit path
// writes a terminal meta status (DONE, DONE_WITH_ERRORS or FAILED) unless that
// Redis write itself fails, and returns within maxPoll + pollInterval of the
// remote submission.
func (w *Worker) Process(ctx context.Context, job BulkJob) error {
	if job.JobType != JobTypeGenerateDocs {
		w.logger.Warn("ignoring job of unknown type",
			zap.String("job_id", job.JobID),
			zap.String("job_type", job.JobType))
		return nil
	}

	w.logger.Info("job received",
		zap.String("job_id", job.JobID),
		zap.String("event_id", job.EventID),
		zap.Int("docs", len(job.Items)),
	)

	if err := w.tracker.SetMetaRunning(ctx, job.JobID, len(job.Items)); err != nil {
		return err
	}

	// Results come back keyed by user_id only, so a duplicate would make
	// them impossible to attribute. Fail before touching the remote service.
	if dup := duplicateUserID(job.Items); dup != "" {
		w.failJob(ctx, job.JobID, errorRecord{Error: fmt.Sprintf("duplicate user_id %s in job items", dup)})
		return fmt.Errorf("docgen: duplicate user_id %s in job %s", dup, job.JobID)
	}

	remote, err := w.pdf.GenerateDoc(ctx, mapItems(job.Items))
	if err != nil {
		w.failJob(ctx, job.JobID, errorRecord{Error: fmt.Sprintf("pdf-service submit failed: %v", err)})
		return fmt.Errorf("docgen: submit job %s: %w", job.JobID, err)
	}

	if err := w.tracker.SetMetaPDFJobID(ctx, job.JobID, remote.JobID); err != nil {
		w.logger.Warn("failed to record pdf_job_id",
			zap.String("job_id", job.JobID), zap.Error(err))
	}

	return w.poll(ctx, job, remote.JobID)
}

// poll queries the remote job until it is terminal or the deadline passes.
func (w *Worker) poll(ctx context.Context, job BulkJob, remoteID string) error {
	deadline := time.Now().Add(w.maxPoll)

	for {
		status, err := w.pdf.GetJob(ctx, remoteID)
		if err != nil {
			// A flaky poll is not terminal; the deadline below still bounds us.
			w.logger.Warn("poll failed",
				zap.String("job_id", job.JobID),
				zap.String("pdf_job_id", remoteID),
				zap.Error(err))
		} else {
			switch status.Meta.Status {
			case pdfservice.StatusDone, pdfservice.StatusDoneWithErrors:
				return w.finish(ctx, job, remoteID, status)
			case pdfservice.StatusFailed:
				w.failJob(ctx, job.JobID, errorRecord{Error: "pdf-service job FAILED", PDFJobID: remoteID})
				return fmt.Errorf("docgen: remote job %s FAILED", remoteID)
			}
		}

		if time.Now().After(deadline) {
			w.failJob(ctx, job.JobID, errorRecord{Error: "timeout polling pdf-service", PDFJobID: remoteID})
			return fmt.Errorf("docgen: timeout polling remote job %s", remoteID)
		}

		select {
		case <-time.After(w.pollInterval):
		case <-ctx.Done():
			// ctx is already canceled; detach so the FAILED writes still reach Redis.
			w.failJob(context.WithoutCancel(ctx), job.JobID, errorRecord{Error: "worker shutting down", PDFJobID: remoteID})
			return ctx.Err()
		}
	}
}

// finish records results and the terminal meta, then applies the
// best-effort documents update.
func (w *Worker) finish(ctx context.Context, job BulkJob, remoteID string, status *pdfservice.JobStatus) error {
	for _, r := range status.Results {
		line, err := json.Marshal(r)
		if err != nil {
			w.logger.Warn("failed to encode result",
				zap.String("job_id", job.JobID), zap.Error(err))
			continue
		}
		if err := w.tracker.PushResult(ctx, job.JobID, line); err != nil {
			w.logger.Warn("failed to push result",
				zap.String("job_id", job.JobID), zap.Error(err))
		}
	}

	m := status.Meta
	if err := w.tracker.SetMetaDone(ctx, job.JobID, m.Status, m.Total, m.Processed, m.Failed); err != nil {
		return fmt.Errorf("docgen: finalize job %s: %w", job.JobID, err)
	}

	w.updateDocuments(ctx, job, status.Results)

	metrics.BulkJobs.WithLabelValues(m.Status).Inc()
	w.logger.Info("job finished",
		zap.String("job_id", job.JobID),
		zap.String("pdf_job_id", remoteID),
		zap.String("status", m.Status),
		zap.String("processed", m.Processed),
		zap.String("failed", m.Failed),
	)
	return nil
}

// failJob flips the meta to FAILED and appends the error record. Write
// errors are logged and swallowed; the job is already lost.
func (w *Worker) failJob(ctx context.Context, jobID string, rec errorRecord) {
	if err := w.tracker.SetMetaFailed(ctx, jobID); err != nil {
		w.logger.Warn("failed to mark job FAILED",
			zap.String("job_id", jobID), zap.Error(err))
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := w.tracker.PushError(ctx, jobID, line); err != nil {
		w.logger.Warn("failed to push error record",
			zap.String("job_id", jobID), zap.Error(err))
	}
	metrics.BulkJobs.WithLabelValues(jobstore.BulkStatusFailed).Inc()
}

// updateDocuments matches each result's user_id back to the submitted
// item's client_ref and updates that documents row. Failures are logged
// only; the Redis meta already defines the job outcome.
func (w *Worker) updateDocuments(ctx context.Context, job BulkJob, results []pdfservice.ResultItem) {
	if w.docs == nil || len(results) == 0 {
		return
	}

	refByUser := make(map[string]string, len(job.Items))
	for _, it := range job.Items {
		refByUser[it.UserID] = it.ClientRef
	}

	for _, r := range results {
		ref, ok := refByUser[r.UserID]
		if !ok {
			w.logger.Warn("result has no matching item",
				zap.String("job_id", job.JobID),
				zap.String("user_id", r.UserID))
			continue
		}
		docID, err := uuid.Parse(ref)
		if err != nil {
			w.logger.Warn("client_ref is not a UUID",
				zap.String("job_id", job.JobID),
				zap.String("client_ref", ref))
			continue
		}
		fileID, err := uuid.Parse(r.FileID)
		if err != nil {
			w.logger.Warn("result file_id is not a UUID",
				zap.String("job_id", job.JobID),
				zap.String("file_id", r.FileID))
			continue
		}
		rows, err := w.docs.SetFileID(ctx, docID, fileID)
		if err != nil {
			w.logger.Warn("documents update failed",
				zap.String("document_id", docID.String()), zap.Error(err))
			continue
		}
		if rows == 0 {
			w.logger.Warn("documents update matched no row",
				zap.String("document_id", docID.String()))
		}
	}
}
