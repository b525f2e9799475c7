package fileserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), srv.URL+"/api/v1", srv.URL+"/public", zap.NewNop())
	return c, srv
}

func TestUploadSendsSignedMultipart(t *testing.T) {
	var gotAccessKey, gotSignature, gotTimestamp string
	var gotProject, gotUser, gotPublic, gotFilename, gotContentType string
	var gotContent []byte

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/files" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAccessKey = r.Header.Get(HeaderAccessKey)
		gotSignature = r.Header.Get(HeaderSignature)
		gotTimestamp = r.Header.Get(HeaderTimestamp)

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotProject = r.FormValue("project_id")
		gotUser = r.FormValue("user_id")
		gotPublic = r.FormValue("is_public")

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part: %v", err)
		}
		defer file.Close()
		gotFilename = header.Filename
		gotContentType = header.Header.Get("Content-Type")
		gotContent, _ = io.ReadAll(file)

		fmt.Fprint(w, `{
			"data": {
				"id": "11111111-1111-1111-1111-111111111111",
				"original_name": "a.txt",
				"size": 5,
				"mime_type": "text/plain",
				"is_public": true,
				"created_at": "2025-01-01T00:00:00Z"
			},
			"status": "success",
			"message": "ok"
		}`)
	}))

	headers := NewSigner("ak", "sk").Headers("POST", "/api/v1/files")
	info, err := c.Upload(context.Background(), headers, "proj-1", UploadCommand{
		UserID:      "u1",
		Filename:    "a.txt",
		ContentType: "text/plain",
		Content:     []byte("hello"),
		IsPublic:    true,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if gotAccessKey != "ak" || gotSignature == "" || gotTimestamp == "" {
		t.Errorf("auth headers not forwarded: key=%q sig=%q ts=%q", gotAccessKey, gotSignature, gotTimestamp)
	}
	if gotProject != "proj-1" || gotUser != "u1" || gotPublic != "true" {
		t.Errorf("form fields: project=%q user=%q public=%q", gotProject, gotUser, gotPublic)
	}
	if gotFilename != "a.txt" || gotContentType != "text/plain" || string(gotContent) != "hello" {
		t.Errorf("file part: name=%q type=%q content=%q", gotFilename, gotContentType, gotContent)
	}

	if info.ID != uuid.MustParse("11111111-1111-1111-1111-111111111111") {
		t.Errorf("id = %s", info.ID)
	}
	if info.OriginalName != "a.txt" || info.Size != 5 || info.MimeType != "text/plain" || !info.IsPublic {
		t.Errorf("descriptor mismatch: %+v", info)
	}
}

func TestUploadUpstreamFailure(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.Upload(context.Background(), nil, "p", UploadCommand{
		UserID: "u", Filename: "f", Content: []byte("x"),
	})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if !strings.Contains(upstream.Detail, "500") {
		t.Errorf("detail does not carry the status: %q", upstream.Detail)
	}
}

func TestUploadMissingData(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","message":"ok"}`)
	}))

	_, err := c.Upload(context.Background(), nil, "p", UploadCommand{
		UserID: "u", Filename: "f", Content: []byte("x"),
	})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestDownloadPublicStreams(t *testing.T) {
	payload := strings.Repeat("x", 1<<16)
	fileID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/public/files/" + fileID.String()
		if r.URL.Path != want {
			t.Errorf("path = %q, want %q", r.URL.Path, want)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
		fmt.Fprint(w, payload)
	}))

	dl, err := c.DownloadPublic(context.Background(), fileID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()

	if dl.ContentType != "application/pdf" {
		t.Errorf("content type = %q", dl.ContentType)
	}
	if dl.ContentLength != int64(len(payload)) {
		t.Errorf("content length = %d, want %d", dl.ContentLength, len(payload))
	}

	body, err := io.ReadAll(dl.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != payload {
		t.Errorf("body mismatch: got %d bytes", len(body))
	}
}

func TestDownloadPublicNotFound(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := c.DownloadPublic(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDownloadPublicDefaultsContentType(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Suppress Go's automatic content-type sniffing header.
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data")
	}))

	dl, err := c.DownloadPublic(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer dl.Body.Close()

	if dl.ContentType != "application/octet-stream" {
		t.Errorf("content type = %q", dl.ContentType)
	}
}

func TestHealthProxiesBody(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.RawQuery != "db=true" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"status":"ok","database":{"status":"up"}}`)
	}))

	body, err := c.Health(context.Background(), true)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(string(body), `"database"`) {
		t.Errorf("body not proxied: %s", body)
	}
}

func TestHealthUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused from here on

	c := NewClient(http.DefaultClient, url, url, zap.NewNop())
	_, err := c.Health(context.Background(), false)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}
