package jobs

// UploadRequested is the envelope payload that triggers the async upload
// path. Content travels base64-encoded because the bus carries JSON.
type UploadRequested struct {
	JobID         string `json:"job_id"`
	UserID        string `json:"user_id"`
	IsPublic      bool   `json:"is_public"`
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	ContentBase64 string `json:"content_base64"`
}

// UploadCompleted is published after the file server accepted the upload
// and the job record turned SUCCESS.
type UploadCompleted struct {
	JobID        string `json:"job_id"`
	FileID       string `json:"file_id"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
	IsPublic     bool   `json:"is_public"`
	CreatedAt    string `json:"created_at"`
}

// UploadFailed is published after the job record turned FAILED.
type UploadFailed struct {
	JobID   string `json:"job_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
