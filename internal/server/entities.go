package server

import (
	"net/http"
	"strings"

	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/app"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// ---- companies ----

type companyRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		companies, err := s.app.ListCompanies()
		if err != nil {
			writeDomainError(w, err)
			return
		}
		listResponse(w, companies, len(companies))
	case http.MethodPost:
		var req companyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		c, err := s.app.CreateCompany(r.Context(), req.Name)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	default:
		methodNotAllowed(w)
	}
}

// /companies/{id}, /companies/{id}/delete-preview, /companies/{id}/contracts
func (s *Server) handleCompanyByID(w http.ResponseWriter, r *http.Request) {
	id, action := pathTail(r, "/companies/")
	if id == "" {
		notFound(w, "not found")
		return
	}
	switch action {
	case "":
	case "delete-preview":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		preview, err := s.app.PreviewCompanyDelete(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
		return
	case "contracts":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		contracts, err := s.app.ListMasterContracts(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		listResponse(w, contracts, len(contracts))
		return
	default:
		notFound(w, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := s.app.GetCompany(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodPatch:
		var req companyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		c, err := s.app.RenameCompany(r.Context(), id, req.Name)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodDelete:
		cascade := r.URL.Query().Get("cascade") == "true"
		if err := s.app.DeleteCompany(r.Context(), id, cascade); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// ---- master contracts ----

// Contract saves arrive as multipart so the framework agreement file can
// travel with the metadata.
func (s *Server) contractInputFromForm(w http.ResponseWriter, r *http.Request) (app.ContractInput, bool) {
	var in app.ContractInput
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return in, false
	}
	in.CompanyID = r.FormValue("companyId")
	in.Name = r.FormValue("name")
	var err error
	if in.StartDate, err = parseDate(r.FormValue("startDate")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid startDate")
		return in, false
	}
	if in.EndDate, err = parseDate(r.FormValue("endDate")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid endDate")
		return in, false
	}
	if file, header, err := r.FormFile("file"); err == nil {
		in.Body = file
		in.Filename = header.Filename
		in.Size = header.Size
	}
	return in, true
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	in, ok := s.contractInputFromForm(w, r)
	if !ok {
		return
	}
	mc, err := s.app.SaveMasterContract(r.Context(), "", in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mc)
}

// /contracts/{id}, /contracts/{id}/file
func (s *Server) handleContractByID(w http.ResponseWriter, r *http.Request) {
	id, action := pathTail(r, "/contracts/")
	if id == "" {
		notFound(w, "not found")
		return
	}
	switch action {
	case "file":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		mc, rc, err := s.app.OpenMasterContract(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		defer rc.Close()
		streamAttachment(w, rc, mc.Name+".pdf")
		return
	case "":
	default:
		notFound(w, "not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		in, ok := s.contractInputFromForm(w, r)
		if !ok {
			return
		}
		mc, err := s.app.SaveMasterContract(r.Context(), id, in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, mc)
	case http.MethodDelete:
		if err := s.app.DeleteMasterContract(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// ---- faenas ----

type faenaRequest struct {
	CompanyID        string `json:"companyId"`
	MasterContractID string `json:"masterContractId"`
	Name             string `json:"name"`
	Location         string `json:"location"`
	StartDate        string `json:"startDate"`
	EndDate          string `json:"endDate"`
	Status           string `json:"status"`
}

func (s *Server) faenaInput(w http.ResponseWriter, req faenaRequest) (app.FaenaInput, bool) {
	var in app.FaenaInput
	start, err := parseDate(req.StartDate)
	if err != nil || start == nil {
		writeError(w, http.StatusBadRequest, "startDate is required (YYYY-MM-DD)")
		return in, false
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endDate")
		return in, false
	}
	in.CompanyID = req.CompanyID
	in.MasterContractID = req.MasterContractID
	in.Name = req.Name
	in.Location = req.Location
	in.StartDate = *start
	in.EndDate = end
	in.Status = domain.FaenaStatus(req.Status)
	return in, true
}

func (s *Server) handleFaenas(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		faenas, err := s.app.ListFaenas()
		if err != nil {
			writeDomainError(w, err)
			return
		}
		listResponse(w, faenas, len(faenas))
	case http.MethodPost:
		var req faenaRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, ok := s.faenaInput(w, req)
		if !ok {
			return
		}
		f, err := s.app.CreateFaena(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	default:
		methodNotAllowed(w)
	}
}

// /faenas/{id}, plus delete-preview, export, compliance, workers actions.
func (s *Server) handleFaenaByID(w http.ResponseWriter, r *http.Request) {
	id, action := pathTail(r, "/faenas/")
	if id == "" {
		notFound(w, "not found")
		return
	}
	switch action {
	case "":
	case "delete-preview":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		preview, err := s.app.PreviewFaenaDelete(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
		return
	case "export":
		s.handleFaenaExport(w, r, id)
		return
	case "compliance":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		report, err := s.app.EvaluateOwner(domain.OwnerFaena, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	case "workers":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		workers, err := s.app.ListWorkers(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		listResponse(w, workers, len(workers))
		return
	default:
		notFound(w, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		f, err := s.app.GetFaena(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	case http.MethodPut:
		var req faenaRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, ok := s.faenaInput(w, req)
		if !ok {
			return
		}
		f, err := s.app.UpdateFaena(r.Context(), id, in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	case http.MethodDelete:
		cascade := r.URL.Query().Get("cascade") == "true"
		if err := s.app.DeleteFaena(r.Context(), id, cascade); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// ---- workers ----

type workerRequest struct {
	RUT          string `json:"rut"`
	FirstNames   string `json:"firstNames"`
	LastNames    string `json:"lastNames"`
	Role         string `json:"role"`
	CostCenter   string `json:"costCenter"`
	Email        string `json:"email"`
	ContractDate string `json:"contractDate"`
}

func (s *Server) workerInput(w http.ResponseWriter, req workerRequest) (app.WorkerInput, bool) {
	contractDate, err := parseDate(req.ContractDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contractDate")
		return app.WorkerInput{}, false
	}
	return app.WorkerInput{
		RUT:          req.RUT,
		FirstNames:   req.FirstNames,
		LastNames:    req.LastNames,
		Role:         req.Role,
		CostCenter:   req.CostCenter,
		Email:        req.Email,
		ContractDate: contractDate,
	}, true
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		workers, err := s.app.ListWorkers(r.URL.Query().Get("faena"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		listResponse(w, workers, len(workers))
	case http.MethodPost:
		var req workerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, ok := s.workerInput(w, req)
		if !ok {
			return
		}
		worker, err := s.app.CreateWorker(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, worker)
	default:
		methodNotAllowed(w)
	}
}

// /workers/{id}, plus delete-preview and compliance actions.
func (s *Server) handleWorkerByID(w http.ResponseWriter, r *http.Request) {
	id, action := pathTail(r, "/workers/")
	if id == "" {
		notFound(w, "not found")
		return
	}
	switch action {
	case "":
	case "delete-preview":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		preview, err := s.app.PreviewWorkerDelete(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
		return
	case "compliance":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		report, err := s.app.EvaluateOwner(domain.OwnerWorker, id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	default:
		notFound(w, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		worker, err := s.app.GetWorker(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, worker)
	case http.MethodPut:
		var req workerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, ok := s.workerInput(w, req)
		if !ok {
			return
		}
		worker, err := s.app.UpdateWorker(r.Context(), id, in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, worker)
	case http.MethodDelete:
		cascade := r.URL.Query().Get("cascade") == "true"
		if err := s.app.DeleteWorker(r.Context(), id, cascade); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// ---- assignments ----

type assignmentRequest struct {
	FaenaID   string `json:"faenaId"`
	WorkerID  string `json:"workerId"`
	FaenaRole string `json:"faenaRole"`
	EntryDate string `json:"entryDate"`
	ExitDate  string `json:"exitDate"`
	Status    string `json:"status"`
}

func (s *Server) handleAssignments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		assignments, err := s.app.ListAssignments(q.Get("faena"), q.Get("worker"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		listResponse(w, assignments, len(assignments))
	case http.MethodPost:
		var req assignmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		entry, err := parseDate(req.EntryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid entryDate")
			return
		}
		exit, err := parseDate(req.ExitDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid exitDate")
			return
		}
		in := app.AssignmentInput{
			FaenaID:   req.FaenaID,
			WorkerID:  req.WorkerID,
			FaenaRole: req.FaenaRole,
			ExitDate:  exit,
			Status:    domain.AssignmentStatus(req.Status),
		}
		if entry != nil {
			in.EntryDate = *entry
		}
		row, err := s.app.CreateAssignment(r.Context(), in)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, row)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAssignmentByID(w http.ResponseWriter, r *http.Request) {
	id, action := pathTail(r, "/assignments/")
	if id == "" || action != "" {
		notFound(w, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteAssignment(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ---- documents ----

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		kind := domain.OwnerKind(q.Get("ownerKind"))
		ownerID := q.Get("ownerId")
		if kind == "" || ownerID == "" {
			writeError(w, http.StatusBadRequest, "ownerKind and ownerId are required")
			return
		}
		docs, err := s.app.ListDocuments(kind, ownerID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		listResponse(w, docs, len(docs))
	case http.MethodPost:
		s.handleDocumentUpload(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)")
		return
	}
	defer file.Close()

	issue, err := parseDate(r.FormValue("issueDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid issueDate")
		return
	}
	expiry, err := parseDate(r.FormValue("expiryDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expiryDate")
		return
	}
	doc, err := s.app.UploadDocument(r.Context(), app.DocumentUpload{
		OwnerKind:  domain.OwnerKind(r.FormValue("ownerKind")),
		OwnerID:    r.FormValue("ownerId"),
		TypeCode:   r.FormValue("typeCode"),
		Filename:   header.Filename,
		IssueDate:  issue,
		ExpiryDate: expiry,
		Body:       file,
		Size:       header.Size,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// /documents/{id}, /documents/{id}/file
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	id, action := pathTail(r, "/documents/")
	if id == "" {
		notFound(w, "not found")
		return
	}
	switch action {
	case "file":
		s.handleDocumentFile(w, r, id)
		return
	case "":
	default:
		notFound(w, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := s.app.GetDocument(id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		if err := s.app.DeleteDocument(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleDocumentFile(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		doc, rc, err := s.app.OpenDocument(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		defer rc.Close()
		streamAttachment(w, rc, doc.Filename)
	case http.MethodPut:
		if s.maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file is required (field: file)")
			return
		}
		defer file.Close()
		issue, err := parseDate(r.FormValue("issueDate"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid issueDate")
			return
		}
		expiry, err := parseDate(r.FormValue("expiryDate"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid expiryDate")
			return
		}
		doc, err := s.app.ReplaceDocument(r.Context(), id, header.Filename, file, header.Size, issue, expiry)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	default:
		methodNotAllowed(w)
	}
}
