package server

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/app"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/roster"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/snapshot"
)

// ---- compliance ----

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	dash, err := s.app.ComplianceDashboard()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (s *Server) handleComplianceWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	reports, err := s.app.EvaluateWorkers(r.URL.Query().Get("faena"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	listResponse(w, reports, len(reports))
}

func (s *Server) handleComplianceFaenas(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	reports, err := s.app.EvaluateFaenas()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	listResponse(w, reports, len(reports))
}

func (s *Server) handleComplianceCompanies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	reports, err := s.app.EvaluateCompanies()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	listResponse(w, reports, len(reports))
}

// ---- catalog ----

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	cat := s.app.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"worker":  cat.Types(domain.OwnerWorker),
		"faena":   cat.Types(domain.OwnerFaena),
		"company": cat.Types(domain.OwnerCompany),
	})
}

// ---- exports and backups ----

// handleBackup streams a snapshot bundle. A partial failure still ships
// the archive, flagged through a trailer-free header so scripted callers
// can retry the ledger write.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	kind := snapshot.KindFull
	switch r.URL.Query().Get("kind") {
	case "", "full":
	case "db_only":
		kind = snapshot.KindDBOnly
	default:
		writeError(w, http.StatusBadRequest, "kind must be full or db_only")
		return
	}
	payload, rec, err := s.app.Backup(r.Context(), kind)
	if err != nil && !app.IsPartialFailure(err) {
		writeDomainError(w, err)
		return
	}
	if app.IsPartialFailure(err) {
		w.Header().Set("X-Export-Recorded", "false")
	}
	name := "backup_" + string(kind) + "_" + rec.CreatedAt.Format("20060102_150405") + ".zip"
	streamZip(w, bytes.NewReader(payload), name)
}

// /faenas/{id}/export, dispatched from handleFaenaByID.
func (s *Server) handleFaenaExport(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	payload, rec, err := s.app.ExportFaena(r.Context(), id)
	if err != nil && !app.IsPartialFailure(err) {
		writeDomainError(w, err)
		return
	}
	if app.IsPartialFailure(err) {
		w.Header().Set("X-Export-Recorded", "false")
	}
	streamZip(w, bytes.NewReader(payload), "faena_"+rec.Tag+".zip")
}

// /exports/month/{yyyy-mm}
func (s *Server) handleMonthExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	ym, action := pathTail(r, "/exports/month/")
	if ym == "" || action != "" {
		notFound(w, "not found")
		return
	}
	if _, err := time.Parse("2006-01", ym); err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	payload, _, err := s.app.ExportMonth(r.Context(), ym)
	if err != nil && !app.IsPartialFailure(err) {
		writeDomainError(w, err)
		return
	}
	if app.IsPartialFailure(err) {
		w.Header().Set("X-Export-Recorded", "false")
	}
	streamZip(w, bytes.NewReader(payload), "mes_"+ym+".zip")
}

// ---- restore ----

// handleRestore accepts the bundle either as a raw body or as a multipart
// "file" field, so both curl and browser forms work.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}

	var body io.Reader = r.Body
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		file, _, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "file is required (field: file)")
			return
		}
		defer file.Close()
		body = file
	}
	archive, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read archive: request body truncated")
		return
	}
	if len(archive) == 0 {
		writeError(w, http.StatusBadRequest, "archive is empty")
		return
	}

	result, err := s.app.Restore(r.Context(), archive)
	if err != nil && !app.IsPartialFailure(err) {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ---- history ----

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var kinds []domain.ExportKind
	if k := r.URL.Query().Get("kind"); k != "" {
		kinds = append(kinds, domain.ExportKind(k))
	}
	recs, err := s.app.ListHistory(kinds...)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	listResponse(w, recs, len(recs))
}

// /history/{id}/download
func (s *Server) handleHistoryByID(w http.ResponseWriter, r *http.Request) {
	id, action := pathTail(r, "/history/")
	if id == "" {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	switch action {
	case "download":
		rec, payload, err := s.app.OpenHistoryArchive(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		streamZip(w, bytes.NewReader(payload), string(rec.Kind)+"_"+rec.ID+".zip")
	case "":
		recs, err := s.app.ListHistory()
		if err != nil {
			writeDomainError(w, err)
			return
		}
		for _, rec := range recs {
			if rec.ID == id {
				writeJSON(w, http.StatusOK, rec)
				return
			}
		}
		notFound(w, "export record not found")
	default:
		notFound(w, "not found")
	}
}

// ---- roster import ----

func (s *Server) handleRosterImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()

	opts := roster.Options{
		Sheet:     r.FormValue("sheet"),
		Overwrite: r.FormValue("overwrite") == "true",
		FaenaID:   r.FormValue("faena"),
		FaenaRole: r.FormValue("faenaRole"),
	}
	if entry, err := parseDate(r.FormValue("entryDate")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid entryDate")
		return
	} else if entry != nil {
		opts.EntryDate = *entry
	}

	summary, err := s.app.ImportRoster(r.Context(), file, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ---- download helpers ----

func streamZip(w http.ResponseWriter, src io.Reader, name string) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, _ = io.Copy(w, src)
}

func streamAttachment(w http.ResponseWriter, src io.Reader, name string) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	_, _ = io.Copy(w, src)
}
