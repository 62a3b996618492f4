package model

import "time"

// Document is metadata for a file attached to an event.  Path is relative
// to the upload root.
type Document struct {
	ID           uint64    `json:"id"`
	EventID      uint64    `json:"eventId"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Path         string    `json:"-"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	Description  *string   `json:"description"`
	UploadedBy   uint64    `json:"uploadedBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Migration log statuses.
const (
	MigrationProcessing = "processing"
	MigrationCompleted  = "completed"
	MigrationFailed     = "failed"
)

// MigrationLog tracks one uploaded migration file through processing.
type MigrationLog struct {
	ID            uint64    `json:"id"`
	Filename      string    `json:"filename"`
	OriginalName  string    `json:"originalName"`
	Path          string    `json:"-"`
	MigrationType string    `json:"migrationType"`
	Status        string    `json:"status"`
	ProcessedRows *int      `json:"processedRows"`
	ResultMessage *string   `json:"resultMessage"`
	RetryCount    int       `json:"retryCount"`
	UploadedBy    uint64    `json:"uploadedBy"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
