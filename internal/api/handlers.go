package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/fileserver"
	"github.com/t-saturn/certificados-gra/internal/jobs"
	"github.com/t-saturn/certificados-gra/internal/jobstore"
)

// FileGateway is the slice of the file-server client the handlers use.
type FileGateway interface {
	DownloadPublic(ctx context.Context, fileID uuid.UUID) (*fileserver.Download, error)
	Health(ctx context.Context, db bool) (json.RawMessage, error)
}

// JobReader reads job records and checks store liveness.
type JobReader interface {
	GetRecord(ctx context.Context, jobID string) (*jobstore.Record, error)
	Ping(ctx context.Context) error
}

// Uploader runs the synchronous upload workflow.
type Uploader interface {
	UploadFile(ctx context.Context, cmd fileserver.UploadCommand) (*fileserver.FileInfo, error)
}

type handlers struct {
	files          FileGateway
	jobs           JobReader
	uploads        Uploader
	logger         *zap.Logger
	maxUploadBytes int64
}

func newHandlers(cfg RouterConfig) *handlers {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 100 << 20
	}
	return &handlers{
		files:          cfg.Files,
		jobs:           cfg.Jobs,
		uploads:        cfg.Uploads,
		logger:         cfg.Logger,
		maxUploadBytes: maxBytes,
	}
}

// health proxies the file server's health endpoint. With ?db=true the Redis
// pool is pinged as well and reported alongside the upstream data.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	checkDB := r.URL.Query().Get("db") == "true"

	upstream, err := h.files.Health(r.Context(), checkDB)
	if err != nil {
		h.failFromError(w, err)
		return
	}

	var data map[string]any
	if err := json.Unmarshal(upstream, &data); err != nil {
		Fail(w, http.StatusBadGateway, CodeUpstreamError, "invalid upstream health payload")
		return
	}

	if checkDB {
		redisStatus := "up"
		if err := h.jobs.Ping(r.Context()); err != nil {
			redisStatus = "down"
		}
		data["redis"] = map[string]string{"status": redisStatus}
	}

	Success(w, "ok", data)
}

// downloadPublic streams a public file through to the client. The body is
// copied chunk by chunk; nothing buffers the full payload.
func (h *handlers) downloadPublic(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "fileID")
	fileID, err := uuid.Parse(raw)
	if err != nil {
		Fail(w, http.StatusBadRequest, CodeInvalidUUID, "invalid file id: "+raw)
		return
	}

	dl, err := h.files.DownloadPublic(r.Context(), fileID)
	if err != nil {
		h.failFromError(w, err)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	if dl.ContentDisposition != "" {
		w.Header().Set("Content-Disposition", dl.ContentDisposition)
	}
	if dl.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, dl.Body); err != nil {
		// Headers are gone; the client already saw a partial body.
		h.logger.Warn("download stream interrupted",
			zap.String("file_id", fileID.String()), zap.Error(err))
	}
}

// uploadFile accepts the multipart form {user_id, is_public, file} and runs
// the synchronous upload. project_id always comes from configuration;
// a request-provided value is ignored.
func (h *handlers) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		Fail(w, http.StatusBadRequest, CodeInvalidMultipart, "invalid multipart form: "+err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	userID := r.FormValue("user_id")
	if userID == "" {
		Fail(w, http.StatusBadRequest, CodeMissingParams, "user_id is required")
		return
	}
	isPublic := r.FormValue("is_public") == "true" || r.FormValue("is_public") == "1"

	file, header, err := r.FormFile("file")
	if err != nil {
		Fail(w, http.StatusBadRequest, CodeMissingFile, "file part is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		Fail(w, http.StatusBadRequest, CodeInvalidMultipart, "failed to read file part: "+err.Error())
		return
	}

	info, err := h.uploads.UploadFile(r.Context(), fileserver.UploadCommand{
		UserID:      userID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
		IsPublic:    isPublic,
	})
	if err != nil {
		h.failFromError(w, err)
		return
	}

	Success(w, "file uploaded", info)
}

// jobStatusDTO is the body of GET /jobs/{id}.
type jobStatusDTO struct {
	JobID  string             `json:"job_id"`
	State  jobstore.Status    `json:"state"`
	Result *jobstore.Result   `json:"result,omitempty"`
	Error  *jobstore.JobError `json:"error,omitempty"`
}

// jobStatus reads the job record from the store and reconstructs the
// terminal payload for the client.
func (h *handlers) jobStatus(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "jobID")
	jobID, err := uuid.Parse(raw)
	if err != nil {
		Fail(w, http.StatusBadRequest, CodeInvalidUUID, "invalid job id: "+raw)
		return
	}

	rec, err := h.jobs.GetRecord(r.Context(), jobID.String())
	if errors.Is(err, jobstore.ErrNotFound) {
		Fail(w, http.StatusNotFound, CodeNotFound, "job not found")
		return
	}
	if err != nil {
		Fail(w, http.StatusBadGateway, CodeUpstreamError, "job store unavailable")
		return
	}

	Success(w, "ok", jobStatusDTO{
		JobID:  jobID.String(),
		State:  rec.Status,
		Result: rec.Result,
		Error:  rec.Error,
	})
}

// failFromError maps domain errors to the HTTP failure envelope.
func (h *handlers) failFromError(w http.ResponseWriter, err error) {
	var badReq *jobs.BadRequestError
	var upstream *fileserver.UpstreamError

	switch {
	case errors.Is(err, fileserver.ErrNotFound):
		Fail(w, http.StatusNotFound, CodeNotFound, "File not found")
	case errors.As(err, &badReq):
		Fail(w, http.StatusBadRequest, CodeBadRequest, badReq.Msg)
	case errors.As(err, &upstream):
		Fail(w, http.StatusBadGateway, CodeUpstreamError, upstream.Detail)
	default:
		h.logger.Error("unexpected handler error", zap.Error(err))
		Fail(w, http.StatusBadGateway, CodeUpstreamError, err.Error())
	}
}
