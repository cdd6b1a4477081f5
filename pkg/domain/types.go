package domain

import "time"

// OwnerKind identifies which entity a document is attached to.
type OwnerKind string

const (
	OwnerWorker  OwnerKind = "worker"
	OwnerFaena   OwnerKind = "faena"
	OwnerCompany OwnerKind = "company"
)

type FaenaStatus string

const (
	FaenaActive FaenaStatus = "ACTIVA"
	FaenaClosed FaenaStatus = "TERMINADA"
)

type AssignmentStatus string

const (
	AssignmentActive AssignmentStatus = "ACTIVA"
	AssignmentClosed AssignmentStatus = "CERRADA"
)

// Company is a mandante: the client company faenas are executed for.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// MasterContract is the framework contract signed with a company
// ("contrato marco"). It carries at most one attached file.
type MasterContract struct {
	ID        string     `json:"id"`
	CompanyID string     `json:"companyId"`
	Name      string     `json:"name"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	BlobRef   string     `json:"-"`
	SHA256    string     `json:"sha256,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Faena is a worksite engagement for a company.
type Faena struct {
	ID               string      `json:"id"`
	CompanyID        string      `json:"companyId"`
	MasterContractID string      `json:"masterContractId,omitempty"`
	Name             string      `json:"name"`
	Location         string      `json:"location,omitempty"`
	StartDate        time.Time   `json:"startDate"`
	EndDate          *time.Time  `json:"endDate,omitempty"`
	Status           FaenaStatus `json:"status"`
}

// Worker is identified system-wide by RUT; documents attach to the worker,
// never to a (worker, faena) pair.
type Worker struct {
	ID           string     `json:"id"`
	RUT          string     `json:"rut"`
	FirstNames   string     `json:"firstNames"`
	LastNames    string     `json:"lastNames"`
	Role         string     `json:"role,omitempty"`
	CostCenter   string     `json:"costCenter,omitempty"`
	Email        string     `json:"email,omitempty"`
	ContractDate *time.Time `json:"contractDate,omitempty"`
}

// Assignment places a worker at a faena. Deleting it never touches the
// worker's documents.
type Assignment struct {
	ID        string           `json:"id"`
	FaenaID   string           `json:"faenaId"`
	WorkerID  string           `json:"workerId"`
	FaenaRole string           `json:"faenaRole,omitempty"`
	EntryDate time.Time        `json:"entryDate"`
	ExitDate  *time.Time       `json:"exitDate,omitempty"`
	Status    AssignmentStatus `json:"status"`
}

// Document is a typed file owned by exactly one worker, faena, or company.
// The document exclusively owns its stored blob.
type Document struct {
	ID         string     `json:"id"`
	OwnerKind  OwnerKind  `json:"ownerKind"`
	OwnerID    string     `json:"ownerId"`
	TypeCode   string     `json:"typeCode"`
	Filename   string     `json:"filename"`
	BlobRef    string     `json:"-"`
	SHA256     string     `json:"sha256"`
	SizeBytes  int64      `json:"sizeBytes"`
	IssueDate  *time.Time `json:"issueDate,omitempty"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	UploadedAt time.Time  `json:"uploadedAt"`
}

// ExportKind classifies entries in the export history ledger.
type ExportKind string

const (
	ExportFaenaZip   ExportKind = "faena_zip"
	ExportMonthZip   ExportKind = "month_zip"
	ExportFullBackup ExportKind = "full_backup"
	ExportDBOnly     ExportKind = "db_only"
	ExportAutoBackup ExportKind = "auto_backup"
	ExportRestore    ExportKind = "restore"
)

// ExportRecord is an immutable ledger entry for a produced bundle or a
// restore event. Only its blob may later go missing; the row never changes.
type ExportRecord struct {
	ID        string     `json:"id"`
	Kind      ExportKind `json:"kind"`
	Scope     string     `json:"scope,omitempty"`
	Tag       string     `json:"tag,omitempty"`
	BlobRef   string     `json:"blobRef,omitempty"`
	SHA256    string     `json:"sha256,omitempty"`
	SizeBytes int64      `json:"sizeBytes"`
	CreatedAt time.Time  `json:"createdAt"`
}

// CascadePreview reports what a cascading delete would remove.
type CascadePreview struct {
	Faenas      int `json:"faenas"`
	Contracts   int `json:"contracts"`
	Assignments int `json:"assignments"`
	Documents   int `json:"documents"`
}
