package filesvc

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/bus"
	"github.com/t-saturn/certificados-gra/internal/fileserver"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []struct {
		Subject string
		Payload any
	}
}

func (p *recordingPublisher) Publish(subject string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, struct {
		Subject string
		Payload any
	}{subject, payload})
	return nil
}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Subject
	}
	return out
}

type stubStorage struct {
	uploadErr   error
	downloadErr error
}

func (s *stubStorage) Upload(_ context.Context, headers map[string]string, projectID string, cmd fileserver.UploadCommand) (*fileserver.FileInfo, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	return &fileserver.FileInfo{
		ID:           uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		OriginalName: cmd.Filename,
		Size:         int64(len(cmd.Content)),
		MimeType:     cmd.ContentType,
		IsPublic:     cmd.IsPublic,
		CreatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubStorage) DownloadPublic(_ context.Context, _ uuid.UUID) (*fileserver.Download, error) {
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	return &fileserver.Download{
		ContentType:   "application/pdf",
		ContentLength: 3,
		Body:          io.NopCloser(strings.NewReader("pdf")),
	}, nil
}

func newTestService(storage *stubStorage, events *recordingPublisher) *Service {
	signer := fileserver.NewSigner("ak", "sk")
	return NewService(storage, events, signer, "proj-1", "http://public", zap.NewNop())
}

func equalSubjects(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestUploadPublishesLifecycle(t *testing.T) {
	events := &recordingPublisher{}
	svc := newTestService(&stubStorage{}, events)

	info, err := svc.Upload(context.Background(), fileserver.UploadCommand{
		UserID:      "u1",
		Filename:    "a.txt",
		ContentType: "text/plain",
		Content:     []byte("hello"),
		IsPublic:    true,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if info.OriginalName != "a.txt" {
		t.Errorf("descriptor = %+v", info)
	}

	want := []string{bus.SubjectUploadRequested, bus.SubjectUploadCompleted}
	if got := events.subjects(); !equalSubjects(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	completed, ok := events.events[1].Payload.(UploadCompletedEvent)
	if !ok {
		t.Fatalf("completed payload is %T", events.events[1].Payload)
	}
	if completed.FileID != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("file id = %q", completed.FileID)
	}
	if completed.DownloadURL != "http://public/files/11111111-1111-1111-1111-111111111111" {
		t.Errorf("download url = %q", completed.DownloadURL)
	}
}

func TestUploadFailurePublishesFailed(t *testing.T) {
	events := &recordingPublisher{}
	svc := newTestService(&stubStorage{uploadErr: &fileserver.UpstreamError{Detail: "boom"}}, events)

	_, err := svc.Upload(context.Background(), fileserver.UploadCommand{
		UserID:   "u1",
		Filename: "a.txt",
		Content:  []byte("x"),
	})
	if err == nil {
		t.Fatal("expected upload error")
	}

	want := []string{bus.SubjectUploadRequested, bus.SubjectUploadFailed}
	if got := events.subjects(); !equalSubjects(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	failed, ok := events.events[1].Payload.(UploadFailedEvent)
	if !ok {
		t.Fatalf("failed payload is %T", events.events[1].Payload)
	}
	if failed.ErrorCode != "UPLOAD_FAILED" {
		t.Errorf("error code = %q", failed.ErrorCode)
	}
}

func TestDownloadPublishesLifecycle(t *testing.T) {
	events := &recordingPublisher{}
	svc := newTestService(&stubStorage{}, events)

	fileID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	dl, err := svc.Download(context.Background(), fileID, "anonymous")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()

	want := []string{bus.SubjectDownloadRequested, bus.SubjectDownloadCompleted}
	if got := events.subjects(); !equalSubjects(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestDownloadFailurePublishesFailed(t *testing.T) {
	events := &recordingPublisher{}
	svc := newTestService(&stubStorage{downloadErr: fileserver.ErrNotFound}, events)

	_, err := svc.Download(context.Background(), uuid.New(), "anonymous")
	if !errors.Is(err, fileserver.ErrNotFound) {
		t.Fatalf("expected ErrNotFound passthrough, got %v", err)
	}

	want := []string{bus.SubjectDownloadRequested, bus.SubjectDownloadFailed}
	if got := events.subjects(); !equalSubjects(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	svc := NewService(&stubStorage{}, failingPublisher{}, fileserver.NewSigner("ak", "sk"), "proj-1", "http://public", zap.NewNop())

	_, err := svc.Upload(context.Background(), fileserver.UploadCommand{
		UserID:   "u1",
		Filename: "a.txt",
		Content:  []byte("x"),
	})
	if err != nil {
		t.Fatalf("upload failed because of publish error: %v", err)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, any) error { return errors.New("nats down") }
