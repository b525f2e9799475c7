package db

import (
	"time"

	"github.com/google/uuid"
)

// Document statuses touched by the pdf-worker. The rest of the lifecycle
// belongs to the system that inserts the rows.
const (
	DocumentStatusPDFGenerated = "PDF_GENERATED"
	DocumentStatusPDFFailed    = "PDF_FAILED"
)

// Document is one row of the documents table. The bulk pipeline owns the
// FileID and Status columns; everything else is written by the producer
// that enqueued the job.
type Document struct {
	ID        uuid.UUID  `gorm:"type:text;primaryKey"`
	UserID    uuid.UUID  `gorm:"type:text;not null;index"`
	Template  uuid.UUID  `gorm:"type:text;not null"`
	Status    string     `gorm:"not null;default:'PENDING'"`
	FileID    *uuid.UUID `gorm:"type:text"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time  `gorm:"not null"`
}
