package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Records.
	mux.HandleFunc("POST /v1/{collection}", s.handleCreateRecord)
	mux.HandleFunc("GET /v1/{collection}", s.handleListRecords)
	mux.HandleFunc("GET /v1/{collection}/{id}", s.handleGetRecord)
	mux.HandleFunc("PUT /v1/{collection}/{id}", s.handleUpdateRecord)
	mux.HandleFunc("DELETE /v1/{collection}/{id}", s.handleDeleteRecord)

	// Attachment slots. GET also answers HEAD.
	mux.HandleFunc("GET /v1/{collection}/{id}/{slot}", s.handleGetSlotContent)
	mux.HandleFunc("DELETE /v1/{collection}/{id}/{slot}", s.handleDeleteSlot)

	// Admin.
	mux.HandleFunc("POST /v1/admin/blobs/gc", s.handleAdminBlobGC)
	mux.HandleFunc("POST /v1/admin/users", s.handleAdminCreateUser)
	mux.HandleFunc("POST /v1/admin/users/{id}/tokens", s.handleAdminCreateToken)
	mux.HandleFunc("DELETE /v1/admin/tokens/{id}", s.handleAdminRevokeToken)

	return mux
}
