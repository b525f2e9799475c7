package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t-saturn/certificados-gra/internal/fileserver"
	"github.com/t-saturn/certificados-gra/internal/jobs"
	"github.com/t-saturn/certificados-gra/internal/jobstore"
)

type stubFiles struct {
	dl        *fileserver.Download
	dlErr     error
	health    json.RawMessage
	healthErr error
}

func (s *stubFiles) DownloadPublic(_ context.Context, _ uuid.UUID) (*fileserver.Download, error) {
	if s.dlErr != nil {
		return nil, s.dlErr
	}
	return s.dl, nil
}

func (s *stubFiles) Health(_ context.Context, _ bool) (json.RawMessage, error) {
	if s.healthErr != nil {
		return nil, s.healthErr
	}
	return s.health, nil
}

type stubJobs struct {
	rec     *jobstore.Record
	err     error
	pingErr error
}

func (s *stubJobs) GetRecord(_ context.Context, _ string) (*jobstore.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rec, nil
}

func (s *stubJobs) Ping(_ context.Context) error { return s.pingErr }

type stubUploader struct {
	info *fileserver.FileInfo
	err  error
	got  fileserver.UploadCommand
}

func (s *stubUploader) UploadFile(_ context.Context, cmd fileserver.UploadCommand) (*fileserver.FileInfo, error) {
	s.got = cmd
	if s.err != nil {
		return nil, s.err
	}
	return s.info, nil
}

func testRouter(files FileGateway, jobsReader JobReader, uploads Uploader) http.Handler {
	return NewRouter(RouterConfig{
		Files:   files,
		Jobs:    jobsReader,
		Uploads: uploads,
		Logger:  zap.NewNop(),
	})
}

func doRequest(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return body
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestDownloadInvalidUUID(t *testing.T) {
	h := testRouter(&stubFiles{}, &stubJobs{}, &stubUploader{})

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/public/files/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, decodeBody(t, rec)); code != CodeInvalidUUID {
		t.Errorf("error code = %q", code)
	}
}

func TestDownloadNotFound(t *testing.T) {
	h := testRouter(&stubFiles{dlErr: fileserver.ErrNotFound}, &stubJobs{}, &stubUploader{})

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/public/files/22222222-2222-2222-2222-222222222222", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "File not found" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestDownloadStreamsBody(t *testing.T) {
	payload := strings.Repeat("z", 4096)
	h := testRouter(&stubFiles{dl: &fileserver.Download{
		ContentType:   "application/pdf",
		ContentLength: int64(len(payload)),
		Body:          io.NopCloser(strings.NewReader(payload)),
	}}, &stubJobs{}, &stubUploader{})

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/public/files/22222222-2222-2222-2222-222222222222", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if cl := rec.Header().Get("Content-Length"); cl != "4096" {
		t.Errorf("content length = %q", cl)
	}
	if rec.Body.String() != payload {
		t.Errorf("body mismatch: %d bytes", rec.Body.Len())
	}
}

func TestDownloadUpstreamError(t *testing.T) {
	h := testRouter(&stubFiles{dlErr: &fileserver.UpstreamError{Detail: "upstream status 503"}}, &stubJobs{}, &stubUploader{})

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/public/files/22222222-2222-2222-2222-222222222222", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, decodeBody(t, rec)); code != CodeUpstreamError {
		t.Errorf("error code = %q", code)
	}
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileField != "" {
		part, err := form.CreatePart(map[string][]string{
			"Content-Disposition": {`form-data; name="` + fileField + `"; filename="` + filename + `"`},
			"Content-Type":        {contentType},
		})
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &buf, form.FormDataContentType()
}

func TestUploadHappyPath(t *testing.T) {
	uploader := &stubUploader{info: &fileserver.FileInfo{
		ID:           uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		OriginalName: "a.txt",
		Size:         5,
		MimeType:     "text/plain",
		IsPublic:     true,
		CreatedAt:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	h := testRouter(&stubFiles{}, &stubJobs{}, uploader)

	body, contentType := multipartBody(t,
		map[string]string{"user_id": "u1", "is_public": "true"},
		"file", "a.txt", "text/plain", []byte("hello"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	if uploader.got.UserID != "u1" || uploader.got.Filename != "a.txt" || !uploader.got.IsPublic {
		t.Errorf("command = %+v", uploader.got)
	}
	if string(uploader.got.Content) != "hello" {
		t.Errorf("content = %q", uploader.got.Content)
	}

	resp := decodeBody(t, rec)
	if resp["status"] != "success" {
		t.Errorf("status field = %v", resp["status"])
	}
	data, _ := resp["data"].(map[string]any)
	if data["id"] != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("data.id = %v", data["id"])
	}
	if data["original_name"] != "a.txt" || data["size"] != float64(5) || data["mime_type"] != "text/plain" {
		t.Errorf("data = %v", data)
	}
	if data["is_public"] != true || data["created_at"] != "2025-01-01T00:00:00Z" {
		t.Errorf("data = %v", data)
	}
}

func TestUploadMissingUserID(t *testing.T) {
	h := testRouter(&stubFiles{}, &stubJobs{}, &stubUploader{})

	body, contentType := multipartBody(t, nil, "file", "a.txt", "text/plain", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, h, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, decodeBody(t, rec)); code != CodeMissingParams {
		t.Errorf("error code = %q", code)
	}
}

func TestUploadMissingFile(t *testing.T) {
	h := testRouter(&stubFiles{}, &stubJobs{}, &stubUploader{})

	body, contentType := multipartBody(t, map[string]string{"user_id": "u1"}, "", "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, h, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, decodeBody(t, rec)); code != CodeMissingFile {
		t.Errorf("error code = %q", code)
	}
}

func TestUploadEmptyFileRejectedByService(t *testing.T) {
	h := testRouter(&stubFiles{}, &stubJobs{}, &stubUploader{err: &jobs.BadRequestError{Msg: "file content is empty"}})

	body, contentType := multipartBody(t, map[string]string{"user_id": "u1"}, "file", "a.txt", "text/plain", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
	req.Header.Set("Content-Type", contentType)

	rec := doRequest(t, h, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, decodeBody(t, rec)); code != CodeBadRequest {
		t.Errorf("error code = %q", code)
	}
}

func TestUploadNotMultipart(t *testing.T) {
	h := testRouter(&stubFiles{}, &stubJobs{}, &stubUploader{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")

	rec := doRequest(t, h, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, decodeBody(t, rec)); code != CodeInvalidMultipart {
		t.Errorf("error code = %q", code)
	}
}

func TestJobStatusInvalidUUID(t *testing.T) {
	h := testRouter(&stubFiles{}, &stubJobs{}, &stubUploader{})

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, decodeBody(t, rec)); code != CodeInvalidUUID {
		t.Errorf("error code = %q", code)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	h := testRouter(&stubFiles{}, &stubJobs{err: jobstore.ErrNotFound}, &stubUploader{})

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/jobs/33333333-3333-3333-3333-333333333333", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestJobStatusSuccess(t *testing.T) {
	h := testRouter(&stubFiles{}, &stubJobs{rec: &jobstore.Record{
		Status: jobstore.StatusSuccess,
		Result: &jobstore.Result{FileID: "file-9"},
	}}, &stubUploader{})

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/jobs/33333333-3333-3333-3333-333333333333", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if data["job_id"] != "33333333-3333-3333-3333-333333333333" || data["state"] != "SUCCESS" {
		t.Errorf("data = %v", data)
	}
	result, _ := data["result"].(map[string]any)
	if result["file_id"] != "file-9" {
		t.Errorf("result = %v", result)
	}
	if _, present := data["error"]; present {
		t.Errorf("error present on success record: %v", data)
	}
}

func TestJobStatusPending(t *testing.T) {
	h := testRouter(&stubFiles{}, &stubJobs{rec: &jobstore.Record{Status: jobstore.StatusPending}}, &stubUploader{})

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/jobs/33333333-3333-3333-3333-333333333333", nil))
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if data["state"] != "PENDING" {
		t.Errorf("state = %v", data["state"])
	}
}

func TestHealthProxiesAndReportsRedis(t *testing.T) {
	h := testRouter(
		&stubFiles{health: json.RawMessage(`{"status":"ok","version":"1.0"}`)},
		&stubJobs{},
		&stubUploader{},
	)

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/health?db=true", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if data["status"] != "ok" {
		t.Errorf("proxied status = %v", data["status"])
	}
	redisObj, _ := data["redis"].(map[string]any)
	if redisObj["status"] != "up" {
		t.Errorf("redis status = %v", redisObj)
	}
}

func TestHealthUpstreamUnreachable(t *testing.T) {
	h := testRouter(&stubFiles{healthErr: &fileserver.UpstreamError{Detail: "health request failed"}}, &stubJobs{}, &stubUploader{})

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRouteNotFoundEnvelope(t *testing.T) {
	h := testRouter(&stubFiles{}, &stubJobs{}, &stubUploader{})

	rec := doRequest(t, h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Errorf("success = %v", body["success"])
	}
	if code := errorCode(t, body); code != CodeRouteNotFound {
		t.Errorf("error code = %q", code)
	}
}
