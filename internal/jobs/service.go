// Package jobs orchestrates file uploads. The synchronous path validates a
// command, signs the outbound request, and returns the stored descriptor to
// the HTTP caller. The asynchronous path is driven by files.upload.requested
// events and records its outcome in the job store before emitting the
// completed/failed event. The store is authoritative, the bus best-effort.
package jobs

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/bus"
	"github.com/t-saturn/certificados-gra/internal/fileserver"
)

// Error codes written to FAILED records and upload.failed events.
const (
	CodeInvalidBase64 = "INVALID_BASE64"
	CodeUploadFailed  = "UPLOAD_FAILED"
)

// uploadSignPath is the canonical path the file server verifies upload
// signatures against, independent of the URL the request is sent to.
const uploadSignPath = "/api/v1/files"

// BadRequestError marks a client-caused input violation. The boundary maps
// it to 400 with the message.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("jobs: bad request: %s", e.Msg)
}

// JobStore is the slice of the job store the service needs.
type JobStore interface {
	CreatePendingIfAbsent(ctx context.Context, jobID string, ttl time.Duration) (bool, error)
	SetSuccess(ctx context.Context, jobID, fileID string, ttl time.Duration) error
	SetFailed(ctx context.Context, jobID, code, message string, ttl time.Duration) error
}

// EventPublisher publishes enveloped events.
type EventPublisher interface {
	Publish(subject string, payload any) error
}

// FileStore uploads files to the storage backend. Satisfied by
// *fileserver.Client in production and by stubs in tests.
type FileStore interface {
	Upload(ctx context.Context, headers map[string]string, projectID string, cmd fileserver.UploadCommand) (*fileserver.FileInfo, error)
}

// Service wires the upload workflows together.
type Service struct {
	jobs      JobStore
	events    EventPublisher
	files     FileStore
	signer    *fileserver.Signer
	projectID string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewService returns a ready service. ttl bounds job record retention and
// must exceed the expected message-redelivery horizon.
func NewService(jobs JobStore, events EventPublisher, files FileStore, signer *fileserver.Signer, projectID string, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{
		jobs:      jobs,
		events:    events,
		files:     files,
		signer:    signer,
		projectID: projectID,
		ttl:       ttl,
		logger:    logger,
	}
}

// UploadFile is the synchronous path: validate, sign, upload. No job record
// is created; the caller gets the descriptor (or the error) directly.
func (s *Service) UploadFile(ctx context.Context, cmd fileserver.UploadCommand) (*fileserver.FileInfo, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}
	headers := s.signer.Headers("POST", uploadSignPath)
	return s.files.Upload(ctx, headers, s.projectID, cmd)
}

// HandleUploadRequested is the async path. The idempotency gate comes
// first: whoever loses the CreatePendingIfAbsent race returns without side
// effects, so concurrent deliveries of the same envelope converge on a
// single upload and a single terminal event.
func (s *Service) HandleUploadRequested(ctx context.Context, evt UploadRequested) {
	created, err := s.jobs.CreatePendingIfAbsent(ctx, evt.JobID, s.ttl)
	if err != nil {
		// Dropping the message is safe: the next delivery re-enters here.
		s.logger.Warn("failed to create job record",
			zap.String("job_id", evt.JobID), zap.Error(err))
		return
	}
	if !created {
		s.logger.Info("job already exists, skipping",
			zap.String("job_id", evt.JobID))
		return
	}
	s.logger.Info("job created", zap.String("job_id", evt.JobID))

	content, err := base64.StdEncoding.DecodeString(evt.ContentBase64)
	if err != nil {
		s.failAndPublish(ctx, evt.JobID, CodeInvalidBase64, err.Error())
		return
	}

	info, err := s.UploadFile(ctx, fileserver.UploadCommand{
		UserID:      evt.UserID,
		Filename:    evt.Filename,
		ContentType: evt.ContentType,
		Content:     content,
		IsPublic:    evt.IsPublic,
	})
	if err != nil {
		s.failAndPublish(ctx, evt.JobID, CodeUploadFailed, err.Error())
		return
	}

	if err := s.jobs.SetSuccess(ctx, evt.JobID, info.ID.String(), s.ttl); err != nil {
		s.logger.Warn("failed to write SUCCESS record",
			zap.String("job_id", evt.JobID), zap.Error(err))
	}

	completed := UploadCompleted{
		JobID:        evt.JobID,
		FileID:       info.ID.String(),
		OriginalName: info.OriginalName,
		Size:         info.Size,
		MimeType:     info.MimeType,
		IsPublic:     info.IsPublic,
		CreatedAt:    info.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := s.events.Publish(bus.SubjectUploadCompleted, completed); err != nil {
		s.logger.Warn("failed to publish upload.completed",
			zap.String("job_id", evt.JobID), zap.Error(err))
	}
}

// failAndPublish writes the terminal FAILED record, then emits
// files.upload.failed. Errors from either step are logged and swallowed;
// retrying here would risk split-brain with later redeliveries.
func (s *Service) failAndPublish(ctx context.Context, jobID, code, message string) {
	if err := s.jobs.SetFailed(ctx, jobID, code, message, s.ttl); err != nil {
		s.logger.Warn("failed to write FAILED record",
			zap.String("job_id", jobID), zap.Error(err))
	}
	failed := UploadFailed{JobID: jobID, Code: code, Message: message}
	if err := s.events.Publish(bus.SubjectUploadFailed, failed); err != nil {
		s.logger.Warn("failed to publish upload.failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

func validate(cmd fileserver.UploadCommand) error {
	if cmd.UserID == "" {
		return &BadRequestError{Msg: "user_id is required"}
	}
	if cmd.Filename == "" {
		return &BadRequestError{Msg: "filename is required"}
	}
	if len(cmd.Content) == 0 {
		return &BadRequestError{Msg: "file content is empty"}
	}
	return nil
}
