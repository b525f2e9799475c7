// Package filesvc is the storage bridge service: it signs and proxies
// uploads and downloads against the external file server and publishes the
// lifecycle events other services subscribe to. Event publication is
// best-effort: a publish failure never fails the file operation.
package filesvc

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/bus"
	"github.com/t-saturn/certificados-gra/internal/fileserver"
)

// Storage is the slice of the file-server client the service needs.
type Storage interface {
	Upload(ctx context.Context, headers map[string]string, projectID string, cmd fileserver.UploadCommand) (*fileserver.FileInfo, error)
	DownloadPublic(ctx context.Context, fileID uuid.UUID) (*fileserver.Download, error)
}

// EventPublisher publishes enveloped events.
type EventPublisher interface {
	Publish(subject string, payload any) error
}

// Service runs the upload and download proxy workflows.
type Service struct {
	storage    Storage
	events     EventPublisher
	signer     *fileserver.Signer
	projectID  string
	publicBase string
	logger     *zap.Logger
}

// NewService wires a service. publicBase is used to build download URLs in
// completed events.
func NewService(storage Storage, events EventPublisher, signer *fileserver.Signer, projectID, publicBase string, logger *zap.Logger) *Service {
	return &Service{
		storage:    storage,
		events:     events,
		signer:     signer,
		projectID:  projectID,
		publicBase: publicBase,
		logger:     logger,
	}
}

// DownloadURL builds the public URL for a stored file.
func (s *Service) DownloadURL(fileID string) string {
	return fmt.Sprintf("%s/files/%s", s.publicBase, fileID)
}

// Upload pushes one file to the file server, bracketing the call with
// requested/completed/failed events.
func (s *Service) Upload(ctx context.Context, cmd fileserver.UploadCommand) (*fileserver.FileInfo, error) {
	jobID := uuid.NewString()

	s.publish(bus.SubjectUploadRequested, UploadRequestedEvent{
		JobID:     jobID,
		ProjectID: s.projectID,
		UserID:    cmd.UserID,
		FileName:  cmd.Filename,
		FileSize:  int64(len(cmd.Content)),
		MimeType:  cmd.ContentType,
		IsPublic:  cmd.IsPublic,
	})

	headers := s.signer.Headers("POST", "/api/v1/files")
	info, err := s.storage.Upload(ctx, headers, s.projectID, cmd)
	if err != nil {
		s.publish(bus.SubjectUploadFailed, UploadFailedEvent{
			JobID:        jobID,
			ProjectID:    s.projectID,
			UserID:       cmd.UserID,
			FileName:     cmd.Filename,
			ErrorCode:    "UPLOAD_FAILED",
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	s.publish(bus.SubjectUploadCompleted, UploadCompletedEvent{
		JobID:       jobID,
		FileID:      info.ID.String(),
		ProjectID:   s.projectID,
		UserID:      cmd.UserID,
		FileName:    info.OriginalName,
		FileSize:    info.Size,
		MimeType:    info.MimeType,
		IsPublic:    info.IsPublic,
		DownloadURL: s.DownloadURL(info.ID.String()),
	})

	s.logger.Info("upload completed",
		zap.String("job_id", jobID),
		zap.String("file_id", info.ID.String()),
	)
	return info, nil
}

// Download proxies one file from the file server, bracketing the call with
// requested/completed/failed events. userID is informational only until an
// auth context exists.
func (s *Service) Download(ctx context.Context, fileID uuid.UUID, userID string) (*fileserver.Download, error) {
	jobID := uuid.NewString()

	s.publish(bus.SubjectDownloadRequested, DownloadRequestedEvent{
		JobID:     jobID,
		FileID:    fileID.String(),
		ProjectID: s.projectID,
		UserID:    userID,
	})

	dl, err := s.storage.DownloadPublic(ctx, fileID)
	if err != nil {
		s.publish(bus.SubjectDownloadFailed, DownloadFailedEvent{
			JobID:        jobID,
			FileID:       fileID.String(),
			ProjectID:    s.projectID,
			UserID:       userID,
			ErrorCode:    "DOWNLOAD_FAILED",
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	s.publish(bus.SubjectDownloadCompleted, DownloadCompletedEvent{
		JobID:       jobID,
		FileID:      fileID.String(),
		ProjectID:   s.projectID,
		UserID:      userID,
		FileSize:    dl.ContentLength,
		DownloadURL: s.DownloadURL(fileID.String()),
	})

	s.logger.Info("download completed",
		zap.String("job_id", jobID),
		zap.String("file_id", fileID.String()),
	)
	return dl, nil
}

func (s *Service) publish(subject string, payload any) {
	if err := s.events.Publish(subject, payload); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("subject", subject), zap.Error(err))
	}
}
