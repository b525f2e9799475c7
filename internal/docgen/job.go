package docgen

import (
	"github.com/t-saturn/certificados-gra/internal/pdfservice"
)

// JobTypeGenerateDocs is the only job type this worker processes.
const JobTypeGenerateDocs = "GENERATE_DOCS"

// BulkJob is the payload popped from queue:docs:generate.
type BulkJob struct {
	JobID   string     `json:"job_id"`
	JobType string     `json:"job_type"`
	EventID string     `json:"event_id"`
	Items   []BulkItem `json:"items"`
}

// BulkItem is one document to generate. ClientRef correlates the remote
// result back to the originating documents row; QR and QRPDF are forwarded
// to the PDF service as-is.
type BulkItem struct {
	ClientRef string             `json:"client_ref"`
	Template  string             `json:"template"`
	UserID    string             `json:"user_id"`
	IsPublic  bool               `json:"is_public"`
	QR        []map[string]any   `json:"qr"`
	QRPDF     []map[string]any   `json:"qr_pdf"`
	PDF       []pdfservice.Field `json:"pdf"`
}

// mapItems converts the inbound items to the PDF service request shape.
func mapItems(items []BulkItem) []pdfservice.Item {
	out := make([]pdfservice.Item, 0, len(items))
	for _, it := range items {
		out = append(out, pdfservice.Item{
			Template: it.Template,
			UserID:   it.UserID,
			IsPublic: it.IsPublic,
			QR:       it.QR,
			QRPDF:    it.QRPDF,
			PDF:      it.PDF,
		})
	}
	return out
}

// duplicateUserID returns the first user id that appears twice, or "".
// Results are correlated by user_id, so a duplicate makes the job ambiguous.
func duplicateUserID(items []BulkItem) string {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.UserID]; ok {
			return it.UserID
		}
		seen[it.UserID] = struct{}{}
	}
	return ""
}
