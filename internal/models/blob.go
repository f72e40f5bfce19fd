package models

import "time"

// BlobDescriptor identifies one stored blob. It is created once the bytes are
// durably stored and never changes afterwards.
type BlobDescriptor struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	ContentType    string    `json:"content_type"`
	Length         int64     `json:"length"`
	SHA256         string    `json:"sha256"`
	StorageBackend string    `json:"-"`
	StorageKey     string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}
