package server

import (
	"net/url"

	"famvault/internal/api"
	"famvault/internal/attach"
	"famvault/internal/models"
)

func slotURL(record *models.Record, slot models.Slot) string {
	return "/v1/" + record.Kind.Collection() + "/" + url.PathEscape(record.ID) + "/" + string(slot)
}

func toRecordResponse(record *models.Record) api.RecordResponse {
	resp := api.RecordResponse{
		ID:          record.ID,
		Kind:        string(record.Kind),
		Owner:       record.Owner,
		DisplayName: record.DisplayName,
		Version:     record.Version,
		Attachments: map[string]api.AttachmentResponse{},
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	for _, slot := range record.Kind.Slots() {
		att, ok := record.Attachment(slot)
		if !ok {
			continue
		}
		resp.Attachments[string(slot)] = api.AttachmentResponse{
			Filename:    att.BlobFilename,
			ContentType: att.BlobContentType,
			URL:         slotURL(record, slot),
			BoundAt:     att.BoundAt,
		}
	}
	if record.Kind.HasSlot(models.SlotImage) {
		if att, ok := resp.Attachments[string(models.SlotImage)]; ok {
			resp.ImageURL = att.URL
		} else {
			resp.ImageURL = attach.DefaultURL(record, models.SlotImage)
		}
	}
	return resp
}

func toRecordResponses(records []models.Record) []api.RecordResponse {
	out := make([]api.RecordResponse, 0, len(records))
	for i := range records {
		out = append(out, toRecordResponse(&records[i]))
	}
	return out
}
