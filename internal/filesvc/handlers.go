package filesvc

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/api"
	"github.com/t-saturn/certificados-gra/internal/fileserver"
)

type handlers struct {
	svc            *Service
	healthProxy    HealthProxy
	redis          Pinger
	busStatus      BusStatus
	logger         *zap.Logger
	maxUploadBytes int64
}

func newHandlers(cfg RouterConfig) *handlers {
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 100 << 20
	}
	return &handlers{
		svc:            cfg.Service,
		healthProxy:    cfg.Health,
		redis:          cfg.Redis,
		busStatus:      cfg.Bus,
		logger:         cfg.Logger,
		maxUploadBytes: maxBytes,
	}
}

// upload handles POST /upload: multipart form with user_id, is_public and
// file. project_id always comes from configuration; a value sent by the
// client is ignored.
func (h *handlers) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		api.Fail(w, http.StatusBadRequest, api.CodeInvalidMultipart, "invalid multipart form: "+err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	userID := r.FormValue("user_id")
	if userID == "" {
		api.Fail(w, http.StatusBadRequest, api.CodeMissingParams, "user_id is required")
		return
	}
	isPublic := r.FormValue("is_public") == "true" || r.FormValue("is_public") == "1"

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Fail(w, http.StatusBadRequest, api.CodeMissingFile, "file part is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, api.CodeInvalidMultipart, "failed to read file part: "+err.Error())
		return
	}
	if len(content) == 0 {
		api.Fail(w, http.StatusBadRequest, api.CodeMissingFile, "file is empty")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := h.svc.Upload(r.Context(), fileserver.UploadCommand{
		UserID:      userID,
		Filename:    header.Filename,
		ContentType: contentType,
		Content:     content,
		IsPublic:    isPublic,
	})
	if err != nil {
		h.failFromError(w, err)
		return
	}

	api.Success(w, "Archivo subido correctamente", info)
}

// download handles GET /download?file_id=… by streaming the proxied body.
func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("file_id")
	if raw == "" {
		api.Fail(w, http.StatusBadRequest, api.CodeMissingParams, "file_id is required")
		return
	}
	fileID, err := uuid.Parse(raw)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, api.CodeInvalidUUID, "invalid file id: "+raw)
		return
	}

	// No auth context yet; events carry a placeholder identity.
	dl, err := h.svc.Download(r.Context(), fileID, "anonymous")
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
		h.logger.Warn("download stream interrupted",
			zap.String("file_id", fileID.String()), zap.Error(err))
	}
}

// health reports the upstream file server, Redis, and NATS. ?db=true asks
// the upstream to include its database check.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	checkDB := r.URL.Query().Get("db") == "true"

	data := map[string]any{"status": "ok"}

	upstream, err := h.healthProxy.Health(r.Context(), checkDB)
	if err != nil {
		data["status"] = "degraded"
		data["file_server"] = map[string]string{"status": "down"}
	} else {
		data["file_server"] = map[string]any{"status": "up", "detail": upstream}
	}

	redisStatus := "up"
	if err := h.redis.Ping(r.Context()); err != nil {
		data["status"] = "degraded"
		redisStatus = "down"
	}
	data["redis"] = map[string]string{"status": redisStatus}

	natsStatus := "up"
	if !h.busStatus.IsConnected() {
		data["status"] = "degraded"
		natsStatus = "down"
	}
	data["nats"] = map[string]string{"status": natsStatus}

	api.Success(w, "ok", data)
}

func (h *handlers) failFromError(w http.ResponseWriter, err error) {
	var upstream *fileserver.UpstreamError
	switch {
	case errors.Is(err, fileserver.ErrNotFound):
		api.Fail(w, http.StatusNotFound, api.CodeNotFound, "File not found")
	case errors.As(err, &upstream):
		api.Fail(w, http.StatusBadGateway, api.CodeUpstreamError, upstream.Detail)
	default:
		h.logger.Error("unexpected handler error", zap.Error(err))
		api.Fail(w, http.StatusBadGateway, api.CodeUpstreamError, err.Error())
	}
}
