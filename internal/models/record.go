package models

import "time"

// Record is an owning record (contact, child, document or user) with its
// attachment slots.
type Record struct {
	ID          string              `json:"id"`
	Kind        RecordKind          `json:"kind"`
	Owner       string              `json:"owner"`
	DisplayName string              `json:"display_name"`
	Version     int64               `json:"version"`
	Attachments map[Slot]Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Attachment returns the attachment bound to slot, if any.
func (r *Record) Attachment(slot Slot) (Attachment, bool) {
	if r == nil || r.Attachments == nil {
		return Attachment{}, false
	}
	att, ok := r.Attachments[slot]
	if !ok || att.BlobID == "" {
		return Attachment{}, false
	}
	return att, true
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
}
