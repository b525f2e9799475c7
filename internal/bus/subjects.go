package bus

// Subjects used by the file pipeline. Three-segment dotted names so that
// consumers can subscribe per action (`files.upload.*`), per state, or to
// everything (`files.>`).
const (
	SubjectUploadRequested = "files.upload.requested"
	SubjectUploadCompleted = "files.upload.completed"
	SubjectUploadFailed    = "files.upload.failed"

	SubjectDownloadRequested = "files.download.requested"
	SubjectDownloadCompleted = "files.download.completed"
	SubjectDownloadFailed    = "files.download.failed"

	// Wildcard subscriptions.
	SubjectUploadAll   = "files.upload.*"
	SubjectDownloadAll = "files.download.*"
	SubjectFilesAll    = "files.>"
)
