package store

import (
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// Store defines persistence operations for companies, faenas, workers,
// assignments, documents, and the export ledger.
//
// Mutations enforce referential integrity at write time: creating an
// assignment verifies both sides exist, and cascading deletes run inside a
// single transaction and report the blob references they released so the
// caller can clean the file store after commit.
type Store interface {
	// companies (mandantes)
	CreateCompany(c domain.Company) error
	GetCompany(id string) (domain.Company, bool, error)
	ListCompanies() ([]domain.Company, error)
	UpdateCompany(c domain.Company) error
	PreviewCompanyDelete(id string) (domain.CascadePreview, error)
	DeleteCompany(id string, cascade bool) (released []string, err error)

	// master contracts (contratos marco)
	SaveMasterContract(mc domain.MasterContract) (replacedBlob string, err error)
	GetMasterContract(id string) (domain.MasterContract, bool, error)
	ListMasterContractsByCompany(companyID string) ([]domain.MasterContract, error)
	DeleteMasterContract(id string) (released string, err error)

	// faenas
	CreateFaena(f domain.Faena) error
	GetFaena(id string) (domain.Faena, bool, error)
	ListFaenas() ([]domain.Faena, error)
	ListFaenasByMonth(yearMonth string) ([]domain.Faena, error)
	UpdateFaena(f domain.Faena) error
	PreviewFaenaDelete(id string) (domain.CascadePreview, error)
	DeleteFaena(id string, cascade bool) (released []string, err error)

	// workers
	CreateWorker(w domain.Worker) error
	GetWorker(id string) (domain.Worker, bool, error)
	GetWorkerByRUT(rut string) (domain.Worker, bool, error)
	ListWorkers() ([]domain.Worker, error)
	ListWorkersByFaena(faenaID string) ([]domain.Worker, error)
	UpdateWorker(w domain.Worker) error
	PreviewWorkerDelete(id string) (domain.CascadePreview, error)
	DeleteWorker(id string, cascade bool) (released []string, err error)

	// assignments
	CreateAssignment(a domain.Assignment) error
	GetAssignment(id string) (domain.Assignment, bool, error)
	ListAssignmentsByFaena(faenaID string) ([]domain.Assignment, error)
	ListAssignmentsByWorker(workerID string) ([]domain.Assignment, error)
	DeleteAssignment(id string) error

	// documents
	CreateDocument(d domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocumentsByOwner(kind domain.OwnerKind, ownerID string) ([]domain.Document, error)
	ReplaceDocumentFile(d domain.Document) (replacedBlob string, err error)
	DeleteDocument(id string) (released string, err error)

	// export ledger
	AppendExportRecord(rec domain.ExportRecord) error
	ListExportRecords(kinds ...domain.ExportKind) ([]domain.ExportRecord, error)
	DeleteExportRecords(ids []string) error

	// snapshot support
	Snapshot() (domain.Dataset, error)
	ReplaceAll(data domain.Dataset) error
}
