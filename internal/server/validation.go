package server

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"famvault/internal/models"
)

var (
	recordIDRegex = regexp.MustCompile(`^[a-z]{2}-[0-9a-z]{6}$`)
	tokenIDRegex  = regexp.MustCompile(`^tk-[0-9a-z]{6}$`)
)

func validateRecordID(kind models.RecordKind, id string) bool {
	return recordIDRegex.MatchString(id) && strings.HasPrefix(id, kind.IDPrefix()+"-")
}

func validateTokenID(id string) bool {
	return tokenIDRegex.MatchString(id)
}

// requireCollection resolves the {collection} path segment. Unknown
// collections are reported as missing routes.
func requireCollection(r *http.Request) (models.RecordKind, error) {
	kind, ok := models.KindFromCollection(r.PathValue("collection"))
	if !ok {
		return "", notFoundCode(fmt.Errorf("unknown collection"), ErrCodeInvalidKind)
	}
	return kind, nil
}

func requireRecordID(r *http.Request, kind models.RecordKind) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !validateRecordID(kind, id) {
		return "", badRequestCode(fmt.Errorf("invalid %s id", kind), ErrCodeInvalidID)
	}
	return id, nil
}

func requireSlot(r *http.Request, kind models.RecordKind) (models.Slot, error) {
	slot, err := models.ParseSlot(r.PathValue("slot"))
	if err != nil {
		return "", badRequestCode(err, ErrCodeInvalidSlot)
	}
	if !kind.HasSlot(slot) {
		return "", badRequestCode(fmt.Errorf("%s has no %q slot", kind, slot), ErrCodeInvalidSlot)
	}
	return slot, nil
}

// recordTarget resolves collection and id for record routes.
func (s *Server) recordTarget(w http.ResponseWriter, r *http.Request) (models.RecordKind, string, bool) {
	kind, err := requireCollection(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return "", "", false
	}
	id, err := requireRecordID(r, kind)
	if err != nil {
		s.writeServiceError(w, r, err)
		return "", "", false
	}
	return kind, id, true
}
