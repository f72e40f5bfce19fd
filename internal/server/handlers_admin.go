package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"famvault/internal/api"
	"famvault/internal/attach"
	internalauth "famvault/internal/auth"
	"famvault/internal/models"
)

func (s *Server) handleAdminBlobGC(w http.ResponseWriter, r *http.Request) {
	if s.reaper == nil {
		s.writeServiceError(w, r, internalError(fmt.Errorf("blob gc is not configured")))
		return
	}

	var req api.BlobGCRequest
	if err := decodeJSON(w, r, &req, defaultJSONMaxBody); err != nil && !errors.Is(err, io.EOF) {
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyDecodeJSONError(err))
		return
	}
	if req.BatchSize < 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("batch_size must be >= 0"), ErrCodeInvalidArgument))
		return
	}
	grace := s.opts.GCGracePeriod
	if value := strings.TrimSpace(req.GracePeriod); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed < 0 {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid grace_period %q", value), ErrCodeInvalidArgument))
			return
		}
		grace = parsed
	}
	if !req.DryRun && r.Header.Get(confirmHeader) != "true" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("non-dry-run requires %s: true header", confirmHeader), ErrCodeMissingRequired))
		return
	}
	batch := req.BatchSize
	if batch == 0 {
		batch = s.opts.GCBatchSize
	}

	s.withLimiter(w, r, s.gcLimiter, "blob gc", func() {
		result, err := s.reaper.Sweep(r.Context(), attach.SweepOptions{
			GracePeriod: grace,
			BatchSize:   batch,
			Apply:       !req.DryRun,
		})
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.BlobGCResponse{
			CandidateCount: result.CandidateCount,
			DeletedCount:   result.DeletedCount,
			FailedCount:    result.FailedCount,
			ReclaimedBytes: result.ReclaimedBytes,
			DryRun:         result.DryRun,
		})
	})
}

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req api.UserCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	user, err := s.service.CreateUser(r.Context(), req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	tokenID, bearer, err := internalauth.IssueForUser(r.Context(), s.tokens, user.ID, time.Now().UTC())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.log().Info("user token issued", "user_id", user.ID, "token_id", tokenID)

	s.writeJSON(w, http.StatusCreated, api.UserCreateResponse{
		User:    toRecordResponse(user),
		TokenID: tokenID,
		Token:   bearer,
	})
}

func (s *Server) handleAdminCreateToken(w http.ResponseWriter, r *http.Request) {
	userID, err := requireRecordID(r, models.KindUser)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if _, err := s.service.lookup(r.Context(), models.KindUser, userID); err != nil {
		s.writeAttachError(w, r, err)
		return
	}

	tokenID, bearer, err := internalauth.IssueForUser(r.Context(), s.tokens, userID, time.Now().UTC())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.log().Info("user token issued", "user_id", userID, "token_id", tokenID)

	s.writeJSON(w, http.StatusCreated, api.TokenCreateResponse{
		TokenID: tokenID,
		UserID:  userID,
		Token:   bearer,
	})
}

func (s *Server) handleAdminRevokeToken(w http.ResponseWriter, r *http.Request) {
	tokenID := strings.TrimSpace(r.PathValue("id"))
	if !validateTokenID(tokenID) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid token id"), ErrCodeInvalidID))
		return
	}

	revoked, err := s.tokens.RevokeAPIToken(r.Context(), tokenID, time.Now().UTC())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !revoked {
		s.writeServiceError(w, r, notFoundCode(fmt.Errorf("token not found"), ErrCodeTokenNotFound))
		return
	}
	s.log().Info("token revoked", "token_id", tokenID)
	w.WriteHeader(http.StatusNoContent)
}
