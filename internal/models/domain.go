package models

import (
	"fmt"
	"net/url"
	"strings"
)

// RecordKind defines the owning record categories that can hold attachments.
type RecordKind string

const (
	KindContact  RecordKind = "contact"
	KindChild    RecordKind = "child"
	KindDocument RecordKind = "document"
	KindUser     RecordKind = "user"
)

// Slot names one attachment position on a record.
type Slot string

const (
	SlotImage Slot = "image"
	SlotFile  Slot = "file"
)

const defaultAvatarBaseURL = "https://api.dicebear.com/7.x/avataaars/svg"

var kindSlots = map[RecordKind][]Slot{
	KindContact:  {SlotImage},
	KindChild:    {SlotImage},
	KindDocument: {SlotFile},
	KindUser:     {SlotImage},
}

// Collection path segments used by the HTTP API.
var kindCollections = map[string]RecordKind{
	"contacts":  KindContact,
	"children":  KindChild,
	"documents": KindDocument,
	"users":     KindUser,
}

var kindIDPrefixes = map[RecordKind]string{
	KindContact:  "ct",
	KindChild:    "ch",
	KindDocument: "dc",
	KindUser:     "us",
}

// ParseRecordKind validates a kind name such as "contact".
func ParseRecordKind(raw string) (RecordKind, error) {
	value := RecordKind(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("record kind is required")
	}
	if _, ok := kindSlots[value]; !ok {
		return "", fmt.Errorf("invalid record kind: %s", value)
	}
	return value, nil
}

// KindFromCollection maps an API collection segment such as "children" to its kind.
func KindFromCollection(raw string) (RecordKind, bool) {
	kind, ok := kindCollections[strings.ToLower(strings.TrimSpace(raw))]
	return kind, ok
}

// Collection returns the API collection segment for the kind.
func (k RecordKind) Collection() string {
	for collection, kind := range kindCollections {
		if kind == k {
			return collection
		}
	}
	return ""
}

// IDPrefix returns the record id prefix for the kind.
func (k RecordKind) IDPrefix() string {
	return kindIDPrefixes[k]
}

// Slots lists the attachment slots a kind supports.
func (k RecordKind) Slots() []Slot {
	return kindSlots[k]
}

// HasSlot reports whether slot is valid for the kind.
func (k RecordKind) HasSlot(slot Slot) bool {
	for _, candidate := range kindSlots[k] {
		if candidate == slot {
			return true
		}
	}
	return false
}

// ParseSlot validates a slot name.
func ParseSlot(raw string) (Slot, error) {
	value := Slot(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case SlotImage, SlotFile:
		return value, nil
	case "":
		return "", fmt.Errorf("slot is required")
	default:
		return "", fmt.Errorf("invalid slot: %s", value)
	}
}

// DefaultAvatarURL synthesizes the avatar shown when an image slot is empty.
func DefaultAvatarURL(seed string) string {
	return defaultAvatarBaseURL + "?seed=" + url.QueryEscape(strings.TrimSpace(seed))
}
