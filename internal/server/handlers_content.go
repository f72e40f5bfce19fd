package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"famvault/internal/attach"
)

var copyBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, downloadCopyBufferBytes)
		return &buf
	},
}

// handleGetSlotContent streams a slot's blob. Anonymous callers may read
// public slots; everything they may not see is reported as not found.
func (s *Server) handleGetSlotContent(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.recordTarget(w, r)
	if !ok {
		return
	}
	slot, err := requireSlot(r, kind)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	content, err := s.gateway.FetchAttachment(r.Context(), id, slot, principalFromContext(r.Context()))
	if err != nil {
		s.writeAttachError(w, r, err)
		return
	}
	defer content.Reader.Close()

	header := w.Header()
	etag := ""
	if content.SHA256 != "" {
		etag = strconv.Quote(content.SHA256)
		header.Set("ETag", etag)
	}
	if s.gateway.IsPublic(slot) {
		header.Set("Cache-Control", "public, max-age=0, must-revalidate")
	} else {
		header.Set("Cache-Control", "private, max-age=0, must-revalidate")
		header.Add("Vary", "Authorization")
	}
	header.Set("X-Content-Type-Options", "nosniff")
	if etag != "" && etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	header.Set("Content-Type", content.ContentType)
	header.Set("Content-Length", strconv.FormatInt(content.Length, 10))
	if disposition := contentDisposition(content.Filename); disposition != "" {
		header.Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	bufp := copyBufferPool.Get().(*[]byte)
	defer copyBufferPool.Put(bufp)
	// Plain wrappers keep io.CopyBuffer on the pooled buffer.
	n, err := io.CopyBuffer(struct{ io.Writer }{w}, struct{ io.Reader }{content.Reader}, *bufp)
	if err != nil {
		if errors.Is(err, attach.ErrReadFailure) {
			s.log().Error("attachment stream interrupted", "record_id", id, "slot", slot, "bytes", n, "error", err)
			return
		}
		s.log().Debug("client stopped reading attachment", "record_id", id, "slot", slot, "bytes", n, "error", err)
	}
}

func (s *Server) handleDeleteSlot(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.recordTarget(w, r)
	if !ok {
		return
	}
	slot, err := requireSlot(r, kind)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	expected, err := parseIfMatch(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	record, err := s.service.Unbind(r.Context(), principal, kind, id, slot, expected)
	if err != nil {
		s.writeAttachError(w, r, err)
		return
	}
	setRecordETag(w, record)
	s.writeJSON(w, http.StatusOK, toRecordResponse(record))
}

func etagMatches(ifNoneMatch, etag string) bool {
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func contentDisposition(filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "inline"
	}
	if value := mime.FormatMediaType("inline", map[string]string{"filename": filename}); value != "" {
		return value
	}
	return "inline"
}
