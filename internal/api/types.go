package api

import "time"

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// RecordWriteRequest is the JSON form of a record create or update. The file
// travels as base64, optionally as a data: URI.
type RecordWriteRequest struct {
	Name       *string `json:"name,omitempty"`
	FileBase64 string  `json:"fileBase64,omitempty"`
	FileName   string  `json:"fileName,omitempty"`
	FileType   string  `json:"fileType,omitempty"`
}

// AttachmentResponse describes a bound slot.
type AttachmentResponse struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url"`
	BoundAt     time.Time `json:"bound_at"`
}

// RecordResponse is a record as returned by the API.
type RecordResponse struct {
	ID          string                        `json:"id"`
	Kind        string                        `json:"kind"`
	Owner       string                        `json:"owner"`
	DisplayName string                        `json:"display_name"`
	Version     int64                         `json:"version"`
	ImageURL    string                        `json:"image_url,omitempty"`
	Attachments map[string]AttachmentResponse `json:"attachments"`
	CreatedAt   time.Time                     `json:"created_at"`
	UpdatedAt   time.Time                     `json:"updated_at"`
}

// BlobGCRequest asks for an orphan sweep. GracePeriod is a Go duration.
type BlobGCRequest struct {
	DryRun      bool   `json:"dry_run"`
	BatchSize   int    `json:"batch_size,omitempty"`
	GracePeriod string `json:"grace_period,omitempty"`
}

// BlobGCResponse reports an orphan sweep.
type BlobGCResponse struct {
	CandidateCount int   `json:"candidate_count"`
	DeletedCount   int   `json:"deleted_count"`
	FailedCount    int   `json:"failed_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}

// UserCreateRequest creates a user record and its first token.
type UserCreateRequest struct {
	Name string `json:"name"`
}

// UserCreateResponse carries the bearer token. It is only shown once.
type UserCreateResponse struct {
	User    RecordResponse `json:"user"`
	TokenID string         `json:"token_id"`
	Token   string         `json:"token"`
}

// TokenCreateResponse carries a newly issued bearer token.
type TokenCreateResponse struct {
	TokenID string `json:"token_id"`
	UserID  string `json:"user_id"`
	Token   string `json:"token"`
}
