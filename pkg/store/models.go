package store

import (
	"time"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// GORM models used for persistence. Foreign keys are declared for
// documentation, but every cascade is executed explicitly by the store so
// partial deletes can never hide behind driver behavior.
type CompanyModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

type MasterContractModel struct {
	ID        string `gorm:"primaryKey"`
	CompanyID string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	StartDate *time.Time
	EndDate   *time.Time
	BlobRef   string
	SHA256    string
	CreatedAt time.Time
}

type FaenaModel struct {
	ID               string `gorm:"primaryKey"`
	CompanyID        string `gorm:"not null;index"`
	MasterContractID string `gorm:"index"`
	Name             string `gorm:"not null"`
	Location         string
	StartDate        time.Time `gorm:"not null;index"`
	EndDate          *time.Time
	Status           string `gorm:"not null"`
}

type WorkerModel struct {
	ID           string `gorm:"primaryKey"`
	RUT          string `gorm:"column:rut;uniqueIndex;not null"`
	FirstNames   string `gorm:"not null"`
	LastNames    string `gorm:"not null"`
	Role         string
	CostCenter   string
	Email        string
	ContractDate *time.Time
}

type AssignmentModel struct {
	ID        string `gorm:"primaryKey"`
	FaenaID   string `gorm:"not null;uniqueIndex:idx_assignment_pair"`
	WorkerID  string `gorm:"not null;uniqueIndex:idx_assignment_pair;index"`
	FaenaRole string
	EntryDate time.Time `gorm:"not null"`
	ExitDate  *time.Time
	Status    string `gorm:"not null"`
}

type DocumentModel struct {
	ID         string `gorm:"primaryKey"`
	OwnerKind  string `gorm:"not null;index:idx_document_owner"`
	OwnerID    string `gorm:"not null;index:idx_document_owner"`
	TypeCode   string `gorm:"not null"`
	Filename   string `gorm:"not null"`
	BlobRef    string `gorm:"not null"`
	SHA256     string
	SizeBytes  int64
	IssueDate  *time.Time
	ExpiryDate *time.Time
	UploadedAt time.Time `gorm:"not null"`
}

type ExportRecordModel struct {
	ID        string `gorm:"primaryKey"`
	Kind      string `gorm:"not null;index"`
	Scope     string
	Tag       string
	BlobRef   string
	SHA256    string
	SizeBytes int64
	CreatedAt time.Time `gorm:"not null"`
}

func allModels() []any {
	return []any{
		&CompanyModel{},
		&MasterContractModel{},
		&FaenaModel{},
		&WorkerModel{},
		&AssignmentModel{},
		&DocumentModel{},
		&ExportRecordModel{},
	}
}

func companyToDomain(m CompanyModel) domain.Company {
	return domain.Company{ID: m.ID, Name: m.Name, CreatedAt: m.CreatedAt}
}

func companyToModel(c domain.Company) CompanyModel {
	return CompanyModel{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

func contractToDomain(m MasterContractModel) domain.MasterContract {
	return domain.MasterContract{
		ID:        m.ID,
		CompanyID: m.CompanyID,
		Name:      m.Name,
		StartDate: m.StartDate,
		EndDate:   m.EndDate,
		BlobRef:   m.BlobRef,
		SHA256:    m.SHA256,
		CreatedAt: m.CreatedAt,
	}
}

func contractToModel(c domain.MasterContract) MasterContractModel {
	return MasterContractModel{
		ID:        c.ID,
		CompanyID: c.CompanyID,
		Name:      c.Name,
		StartDate: c.StartDate,
		EndDate:   c.EndDate,
		BlobRef:   c.BlobRef,
		SHA256:    c.SHA256,
		CreatedAt: c.CreatedAt,
	}
}

func faenaToDomain(m FaenaModel) domain.Faena {
	return domain.Faena{
		ID:               m.ID,
		CompanyID:        m.CompanyID,
		MasterContractID: m.MasterContractID,
		Name:             m.Name,
		Location:         m.Location,
		StartDate:        m.StartDate,
		EndDate:          m.EndDate,
		Status:           domain.FaenaStatus(m.Status),
	}
}

func faenaToModel(f domain.Faena) FaenaModel {
	return FaenaModel{
		ID:               f.ID,
		CompanyID:        f.CompanyID,
		MasterContractID: f.MasterContractID,
		Name:             f.Name,
		Location:         f.Location,
		StartDate:        f.StartDate,
		EndDate:          f.EndDate,
		Status:           string(f.Status),
	}
}

func workerToDomain(m WorkerModel) domain.Worker {
	return domain.Worker{
		ID:           m.ID,
		RUT:          m.RUT,
		FirstNames:   m.FirstNames,
		LastNames:    m.LastNames,
		Role:         m.Role,
		CostCenter:   m.CostCenter,
		Email:        m.Email,
		ContractDate: m.ContractDate,
	}
}

func workerToModel(w domain.Worker) WorkerModel {
	return WorkerModel{
		ID:           w.ID,
		RUT:          w.RUT,
		FirstNames:   w.FirstNames,
		LastNames:    w.LastNames,
		Role:         w.Role,
		CostCenter:   w.CostCenter,
		Email:        w.Email,
		ContractDate: w.ContractDate,
	}
}

func assignmentToDomain(m AssignmentModel) domain.Assignment {
	return domain.Assignment{
		ID:        m.ID,
		FaenaID:   m.FaenaID,
		WorkerID:  m.WorkerID,
		FaenaRole: m.FaenaRole,
		EntryDate: m.EntryDate,
		ExitDate:  m.ExitDate,
		Status:    domain.AssignmentStatus(m.Status),
	}
}

func assignmentToModel(a domain.Assignment) AssignmentModel {
	return AssignmentModel{
		ID:        a.ID,
		FaenaID:   a.FaenaID,
		WorkerID:  a.WorkerID,
		FaenaRole: a.FaenaRole,
		EntryDate: a.EntryDate,
		ExitDate:  a.ExitDate,
		Status:    string(a.Status),
	}
}

func documentToDomain(m DocumentModel) domain.Document {
	return domain.Document{
		ID:         m.ID,
		OwnerKind:  domain.OwnerKind(m.OwnerKind),
		OwnerID:    m.OwnerID,
		TypeCode:   m.TypeCode,
		Filename:   m.Filename,
		BlobRef:    m.BlobRef,
		SHA256:     m.SHA256,
		SizeBytes:  m.SizeBytes,
		IssueDate:  m.IssueDate,
		ExpiryDate: m.ExpiryDate,
		UploadedAt: m.UploadedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:         d.ID,
		OwnerKind:  string(d.OwnerKind),
		OwnerID:    d.OwnerID,
		TypeCode:   d.TypeCode,
		Filename:   d.Filename,
		BlobRef:    d.BlobRef,
		SHA256:     d.SHA256,
		SizeBytes:  d.SizeBytes,
		IssueDate:  d.IssueDate,
		ExpiryDate: d.ExpiryDate,
		UploadedAt: d.UploadedAt,
	}
}

func exportToDomain(m ExportRecordModel) domain.ExportRecord {
	return domain.ExportRecord{
		ID:        m.ID,
		Kind:      domain.ExportKind(m.Kind),
		Scope:     m.Scope,
		Tag:       m.Tag,
		BlobRef:   m.BlobRef,
		SHA256:    m.SHA256,
		SizeBytes: m.SizeBytes,
		CreatedAt: m.CreatedAt,
	}
}

func exportToModel(r domain.ExportRecord) ExportRecordModel {
	return ExportRecordModel{
		ID:        r.ID,
		Kind:      string(r.Kind),
		Scope:     r.Scope,
		Tag:       r.Tag,
		BlobRef:   r.BlobRef,
		SHA256:    r.SHA256,
		SizeBytes: r.SizeBytes,
		CreatedAt: r.CreatedAt,
	}
}
