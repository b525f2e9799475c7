// Package repositories holds the GORM-backed data access for the pipeline's
// relational side. Only the documents table is touched here; Redis holds all
// job coordination state.
package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/t-saturn/certificados-gra/internal/db"
)

// DocumentRepository updates documents rows as bulk results arrive.
type DocumentRepository interface {
	// SetFileID links a generated file to its document and marks the row
	// PDF_GENERATED. Returns the number of rows matched.
	SetFileID(ctx context.Context, documentID, fileID uuid.UUID) (int64, error)
	// MarkFailed flags the document PDF_FAILED. Returns rows matched.
	MarkFailed(ctx context.Context, documentID uuid.UUID) (int64, error)
}

type gormDocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository returns a DocumentRepository backed by database.
func NewDocumentRepository(database *gorm.DB) DocumentRepository {
	return &gormDocumentRepository{db: database}
}

func (r *gormDocumentRepository) SetFileID(ctx context.Context, documentID, fileID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Document{}).
		Where("id = ?", documentID).
		Updates(map[string]any{
			"file_id":    fileID,
			"status":     db.DocumentStatusPDFGenerated,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("documents: set file_id: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *gormDocumentRepository) MarkFailed(ctx context.Context, documentID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Document{}).
		Where("id = ?", documentID).
		Updates(map[string]any{
			"status":     db.DocumentStatusPDFFailed,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("documents: mark failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
