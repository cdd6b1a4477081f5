package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/app"
	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/util"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	MaxUploadBytes int64
}

// Server exposes the HTTP endpoints of the document-control service.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the shared middleware chain.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestLog("gyd", h)
	h = util.WithSecurityHeaders(h)
	h = util.WithCORS(h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/companies", s.handleCompanies)
	s.mux.HandleFunc("/companies/", s.handleCompanyByID)
	s.mux.HandleFunc("/contracts", s.handleContracts)
	s.mux.HandleFunc("/contracts/", s.handleContractByID)
	s.mux.HandleFunc("/faenas", s.handleFaenas)
	s.mux.HandleFunc("/faenas/", s.handleFaenaByID)
	s.mux.HandleFunc("/workers", s.handleWorkers)
	s.mux.HandleFunc("/workers/", s.handleWorkerByID)
	s.mux.HandleFunc("/assignments", s.handleAssignments)
	s.mux.HandleFunc("/assignments/", s.handleAssignmentByID)
	s.mux.HandleFunc("/documents", s.handleDocuments)
	s.mux.HandleFunc("/documents/", s.handleDocumentByID)

	s.mux.HandleFunc("/compliance/dashboard", s.handleDashboard)
	s.mux.HandleFunc("/compliance/workers", s.handleComplianceWorkers)
	s.mux.HandleFunc("/compliance/faenas", s.handleComplianceFaenas)
	s.mux.HandleFunc("/compliance/companies", s.handleComplianceCompanies)

	s.mux.HandleFunc("/catalog", s.handleCatalog)
	s.mux.HandleFunc("/exports/backup", s.handleBackup)
	s.mux.HandleFunc("/exports/month/", s.handleMonthExport)
	s.mux.HandleFunc("/restore", s.handleRestore)
	s.mux.HandleFunc("/history", s.handleHistory)
	s.mux.HandleFunc("/history/", s.handleHistoryByID)
	s.mux.HandleFunc("/roster/import", s.handleRosterImport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pathTail returns the path after prefix, split into at most two segments.
func pathTail(r *http.Request, prefix string) (string, string) {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCode(status),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeDomainError maps the domain sentinel wrapped in err to an HTTP
// status. Unknown errors are internal.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrIntegrity):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrStorage):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "GYD_INVALID_REQUEST"
	case http.StatusNotFound:
		return "GYD_NOT_FOUND"
	case http.StatusConflict:
		return "GYD_CONFLICT"
	case http.StatusUnprocessableEntity:
		return "GYD_INTEGRITY"
	case http.StatusBadGateway:
		return "GYD_STORAGE"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// parseDate parses an optional YYYY-MM-DD value.
func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func listResponse(w http.ResponseWriter, items any, count int) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": count,
	})
}
