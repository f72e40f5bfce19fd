package models

import "time"

// Attachment binds a blob to one slot of an owning record. Filename and
// content type are copied from the descriptor so record reads need no join.
type Attachment struct {
	BlobID          string    `json:"blob_id"`
	BlobFilename    string    `json:"blob_filename"`
	BlobContentType string    `json:"blob_content_type"`
	BoundAt         time.Time `json:"bound_at"`
}

// AttachmentFromDescriptor builds the slot value for a stored blob.
func AttachmentFromDescriptor(d BlobDescriptor, boundAt time.Time) Attachment {
	return Attachment{
		BlobID:          d.ID,
		BlobFilename:    d.Filename,
		BlobContentType: d.ContentType,
		BoundAt:         boundAt.UTC(),
	}
}
