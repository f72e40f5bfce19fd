package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"famvault/internal/api"
	"famvault/internal/attach"
	"famvault/internal/models"
)

// Base64 carries 4 bytes per 3 decoded ones; the JSON envelope gets the
// regular body allowance on top.
func base64BodyLimit(maxUpload int64) int64 {
	return (maxUpload+2)/3*4 + 64 + defaultJSONMaxBody
}

// recordWrite is the parsed body of a create or update request.
type recordWrite struct {
	name *string
	blob *models.BlobDescriptor
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	kind, err := requireCollection(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	limit, err := queryIntDefault(r, "limit", defaultListLimit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	records, err := s.service.List(r.Context(), principal, kind, limit)
	if err != nil {
		s.writeAttachError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toRecordResponses(records))
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	kind, err := requireCollection(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		write, err := s.readRecordWrite(w, r)
		if err != nil {
			s.writeAttachError(w, r, err)
			return
		}
		name := ""
		if write.name != nil {
			name = *write.name
		}
		record, err := s.service.Create(r.Context(), principal, kind, name, write.blob)
		if err != nil {
			s.writeAttachError(w, r, err)
			return
		}
		setRecordETag(w, record)
		s.writeJSON(w, http.StatusCreated, toRecordResponse(record))
	})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.recordTarget(w, r)
	if !ok {
		return
	}
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}

	record, err := s.service.Get(r.Context(), principal, kind, id)
	if err != nil {
		s.writeAttachError(w, r, err)
		return
	}
	setRecordETag(w, record)
	s.writeJSON(w, http.StatusOK, toRecordResponse(record))
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.recordTarget(w, r)
	if !ok {
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
	// Ownership and version are settled before the body is read, so a
	// rejected request never stores its upload.
	if _, err := s.service.Authorize(r.Context(), principal, kind, id, expected); err != nil {
		s.writeAttachError(w, r, err)
		return
	}

	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		write, err := s.readRecordWrite(w, r)
		if err != nil {
			s.writeAttachError(w, r, err)
			return
		}
		if write.name == nil && write.blob == nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("nothing to update"), ErrCodeMissingRequired))
			return
		}
		record, err := s.service.Update(r.Context(), principal, kind, id, RecordUpdate{
			Name:            write.name,
			Blob:            write.blob,
			ExpectedVersion: expected,
		})
		if err != nil {
			s.writeAttachError(w, r, err)
			return
		}
		setRecordETag(w, record)
		s.writeJSON(w, http.StatusOK, toRecordResponse(record))
	})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.recordTarget(w, r)
	if !ok {
		return
	}
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	if err := s.service.Delete(r.Context(), principal, kind, id); err != nil {
		s.writeAttachError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readRecordWrite parses a multipart or JSON body. A file in either form is
// stored through the normalizer before this returns.
func (s *Server) readRecordWrite(w http.ResponseWriter, r *http.Request) (recordWrite, error) {
	contentType := strings.TrimSpace(r.Header.Get("Content-Type"))
	mediaType := "application/json"
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return recordWrite{}, badRequestCode(fmt.Errorf("invalid Content-Type"), ErrCodeInvalidArgument)
		}
		mediaType = parsed
	}

	switch mediaType {
	case "multipart/form-data":
		return s.readMultipartWrite(w, r)
	case "application/json":
		return s.readJSONWrite(w, r)
	default:
		return recordWrite{}, badRequestCode(fmt.Errorf("unsupported request Content-Type %q", mediaType), ErrCodeUnsupportedMedia)
	}
}

// readMultipartWrite walks the parts in order without buffering the file
// part. Text fields are bounded by the multipart memory setting.
func (s *Server) readMultipartWrite(w http.ResponseWriter, r *http.Request) (recordWrite, error) {
	var write recordWrite
	r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxUploadBytes()+s.opts.MultipartMaxMemory)
	reader, err := r.MultipartReader()
	if err != nil {
		return write, badRequestCode(err, ErrCodeInvalidMultipart)
	}

	fieldBudget := s.opts.MultipartMaxMemory
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return write, classifyMultipartError(err)
		}

		field := part.FormName()
		switch {
		case part.FileName() != "" || isFilePart(field):
			if write.blob != nil {
				part.Close()
				return write, badRequestCode(fmt.Errorf("only one file part is allowed"), ErrCodeInvalidMultipart)
			}
			desc, err := s.service.StoreUpload(r.Context(), attach.StreamedUpload{
				Reader:       part,
				Filename:     part.FileName(),
				ContentType:  part.Header.Get("Content-Type"),
				DeclaredSize: -1,
			})
			part.Close()
			if err != nil {
				return write, err
			}
			write.blob = &desc
		case field == "name" || field == "displayName":
			value, err := io.ReadAll(io.LimitReader(part, fieldBudget+1))
			part.Close()
			if err != nil {
				return write, classifyMultipartError(err)
			}
			if int64(len(value)) > fieldBudget {
				return write, badRequestCode(fmt.Errorf("form fields too large"), ErrCodeRequestTooLarge)
			}
			fieldBudget -= int64(len(value))
			name := string(value)
			write.name = &name
		default:
			part.Close()
		}
	}
	return write, nil
}

func (s *Server) readJSONWrite(w http.ResponseWriter, r *http.Request) (recordWrite, error) {
	var (
		write recordWrite
		req   api.RecordWriteRequest
	)
	if err := decodeJSON(w, r, &req, base64BodyLimit(s.service.MaxUploadBytes())); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return write, attach.ErrPayloadTooLarge
		}
		return write, classifyDecodeJSONError(err)
	}
	write.name = req.Name
	if strings.TrimSpace(req.FileBase64) == "" {
		return write, nil
	}
	desc, err := s.service.StoreUpload(r.Context(), attach.Base64Upload{
		Data:        req.FileBase64,
		Filename:    req.FileName,
		ContentType: req.FileType,
	})
	if err != nil {
		return write, err
	}
	write.blob = &desc
	return write, nil
}

func isFilePart(field string) bool {
	switch field {
	case string(models.SlotImage), string(models.SlotFile):
		return true
	default:
		return false
	}
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return attach.ErrPayloadTooLarge
	}
	return badRequestCode(err, ErrCodeInvalidMultipart)
}

func setRecordETag(w http.ResponseWriter, record *models.Record) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(record.Version, 10)))
}
