package filesvc

// Lifecycle event payloads published around the storage bridge's own
// upload/download operations. These are observational: other services react
// to them, nothing in this service depends on their delivery.

// UploadRequestedEvent is published before the upstream upload starts.
type UploadRequestedEvent struct {
	JobID     string `json:"job_id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	MimeType  string `json:"mime_type"`
	IsPublic  bool   `json:"is_public"`
}

// UploadCompletedEvent is published once the file server stored the file.
type UploadCompletedEvent struct {
	JobID       string `json:"job_id"`
	FileID      string `json:"file_id"`
	ProjectID   string `json:"project_id"`
	UserID      string `json:"user_id"`
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	MimeType    string `json:"mime_type"`
	IsPublic    bool   `json:"is_public"`
	DownloadURL string `json:"download_url"`
}

// UploadFailedEvent is published when the upstream upload fails.
type UploadFailedEvent struct {
	JobID        string `json:"job_id"`
	ProjectID    string `json:"project_id"`
	UserID       string `json:"user_id"`
	FileName     string `json:"file_name"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// DownloadRequestedEvent is published before the proxy download starts.
type DownloadRequestedEvent struct {
	JobID     string `json:"job_id"`
	FileID    string `json:"file_id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
}

// DownloadCompletedEvent is published after the proxy download succeeded.
type DownloadCompletedEvent struct {
	JobID       string `json:"job_id"`
	FileID      string `json:"file_id"`
	ProjectID   string `json:"project_id"`
	UserID      string `json:"user_id"`
	FileSize    int64  `json:"file_size"`
	DownloadURL string `json:"download_url"`
}

// DownloadFailedEvent is published when the proxy download failed.
type DownloadFailedEvent struct {
	JobID        string `json:"job_id"`
	FileID       string `json:"file_id"`
	ProjectID    string `json:"project_id"`
	UserID       string `json:"user_id"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}
