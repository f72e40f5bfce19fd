package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	internalauth "famvault/internal/auth"
	"famvault/internal/models"
)

const adminPathPrefix = "/v1/admin/"

// withAuth resolves the bearer token into a principal. Requests without a
// token continue anonymously; handlers decide whether that is enough.
// Admin routes need the admin token instead.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/metrics":
			next.ServeHTTP(w, r)
			return
		}

		admin := strings.HasPrefix(r.URL.Path, adminPathPrefix)
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if !admin && header == "" {
			next.ServeHTTP(w, r)
			return
		}

		now := time.Now()
		client := requestClientIP(r)
		if s.authLimiter.Blocked(client, now) {
			s.writeErrorReq(w, r, http.StatusTooManyRequests, apiError{
				status:  http.StatusTooManyRequests,
				code:    "resource_exhausted",
				errCode: ErrCodeResourceExhausted,
				err:     fmt.Errorf("too many failed authentication attempts; retry later"),
			})
			return
		}

		if admin {
			if !s.adminAuthorized(r) {
				s.authLimiter.Fail(client, now)
				s.writeErrorReq(w, r, http.StatusForbidden, forbidden(fmt.Errorf("admin token required")))
				return
			}
			s.authLimiter.Succeed(client)
			next.ServeHTTP(w, r)
			return
		}

		principal, err := s.authenticateBearer(r, header)
		if err != nil {
			if httpStatusFromError(err) == http.StatusUnauthorized {
				s.authLimiter.Fail(client, now)
			}
			s.writeServiceError(w, r, err)
			return
		}
		s.authLimiter.Succeed(client)
		next.ServeHTTP(w, r.WithContext(contextWithAuthPrincipal(r.Context(), principal)))
	})
}

func (s *Server) adminAuthorized(r *http.Request) bool {
	if s.opts.AdminToken == "" {
		return false
	}
	provided := strings.TrimSpace(r.Header.Get(adminTokenHeader))
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.opts.AdminToken)) == 1
}

func (s *Server) authenticateBearer(r *http.Request, header string) (authPrincipal, error) {
	invalid := unauthorizedCode(fmt.Errorf("invalid or revoked token"), ErrCodeUnauthorized)

	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return authPrincipal{}, unauthorizedCode(fmt.Errorf("expected a bearer token"), ErrCodeUnauthorized)
	}
	tokenID, secret, err := internalauth.ParseToken(value)
	if err != nil || s.tokens == nil {
		return authPrincipal{}, invalid
	}
	token, err := s.tokens.GetActiveAPIToken(r.Context(), tokenID)
	if err != nil {
		return authPrincipal{}, storeFailure(err)
	}
	if token == nil || !internalauth.VerifySecret(token.SecretHash, secret) {
		return authPrincipal{}, invalid
	}
	return authPrincipal{TokenID: token.ID, Principal: models.Principal{UserID: token.UserID}}, nil
}

// requirePrincipal writes 401 and returns false for anonymous callers.
func (s *Server) requirePrincipal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	principal := principalFromContext(r.Context())
	if principal == nil || principal.UserID == "" {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorizedCode(fmt.Errorf("authentication required"), ErrCodeUnauthorized))
		return models.Principal{}, false
	}
	return *principal, true
}
