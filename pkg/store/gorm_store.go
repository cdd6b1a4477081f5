package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// GormStore implements Store using GORM + SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and runs auto-migrations. Migrations are
// additive only: columns and tables are created with safe defaults, unknown
// extra columns are left alone.
func NewGormStore(path string) (*GormStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path required")
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// NormalizeName collapses internal whitespace and trims the edges; company
// names are stored in this form and compared case-insensitively.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeRUT upper-cases a RUT and strips spaces, matching how workers
// are deduplicated across imports.
func NormalizeRUT(rut string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(rut), " ", ""))
}

func wrapStorage(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStorage, err)
}

// companies

func (s *GormStore) CreateCompany(c domain.Company) error {
	c.Name = NormalizeName(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: company name required", domain.ErrValidation)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&CompanyModel{}).Where("name = ? COLLATE NOCASE", c.Name).Count(&count).Error; err != nil {
			return wrapStorage("check company name", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: company name %q already exists", domain.ErrConflict, c.Name)
		}
		m := companyToModel(c)
		if err := tx.Create(&m).Error; err != nil {
			return wrapStorage("create company", err)
		}
		return nil
	})
}

func (s *GormStore) GetCompany(id string) (domain.Company, bool, error) {
	var m CompanyModel
	err := s.db.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Company{}, false, nil
	}
	if err != nil {
		return domain.Company{}, false, wrapStorage("get company", err)
	}
	return companyToDomain(m), true, nil
}

func (s *GormStore) ListCompanies() ([]domain.Company, error) {
	var models []CompanyModel
	if err := s.db.Order("name").Find(&models).Error; err != nil {
		return nil, wrapStorage("list companies", err)
	}
	out := make([]domain.Company, 0, len(models))
	for _, m := range models {
		out = append(out, companyToDomain(m))
	}
	return out, nil
}

func (s *GormStore) UpdateCompany(c domain.Company) error {
	c.Name = NormalizeName(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: company name required", domain.ErrValidation)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&CompanyModel{}).Where("name = ? COLLATE NOCASE AND id <> ?", c.Name, c.ID).Count(&count).Error; err != nil {
			return wrapStorage("check company name", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: company name %q already exists", domain.ErrConflict, c.Name)
		}
		res := tx.Model(&CompanyModel{}).Where("id = ?", c.ID).Updates(map[string]any{"name": c.Name})
		if res.Error != nil {
			return wrapStorage("update company", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: company %s", domain.ErrNotFound, c.ID)
		}
		return nil
	})
}

func (s *GormStore) PreviewCompanyDelete(id string) (domain.CascadePreview, error) {
	var preview domain.CascadePreview
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&CompanyModel{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return wrapStorage("check company", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: company %s", domain.ErrNotFound, id)
		}
		faenaIDs, err := idsOf(tx, &FaenaModel{}, "company_id = ?", id)
		if err != nil {
			return err
		}
		preview.Faenas = len(faenaIDs)
		contractIDs, err := idsOf(tx, &MasterContractModel{}, "company_id = ?", id)
		if err != nil {
			return err
		}
		preview.Contracts = len(contractIDs)
		for _, fid := range faenaIDs {
			sub, err := previewFaena(tx, fid)
			if err != nil {
				return err
			}
			preview.Assignments += sub.Assignments
			preview.Documents += sub.Documents
		}
		var companyDocs int64
		if err := tx.Model(&DocumentModel{}).Where("owner_kind = ? AND owner_id = ?", domain.OwnerCompany, id).Count(&companyDocs).Error; err != nil {
			return wrapStorage("count company documents", err)
		}
		preview.Documents += int(companyDocs)
		return nil
	})
	return preview, err
}

// DeleteCompany deletes a company. Without cascade it fails fast when
// dependents exist. With cascade it removes, in dependency order,
// assignments, faena documents, faenas, master contracts, and the company's
// own documents, all inside one transaction.
func (s *GormStore) DeleteCompany(id string, cascade bool) ([]string, error) {
	var released []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&CompanyModel{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return wrapStorage("check company", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: company %s", domain.ErrNotFound, id)
		}
		faenaIDs, err := idsOf(tx, &FaenaModel{}, "company_id = ?", id)
		if err != nil {
			return err
		}
		contractIDs, err := idsOf(tx, &MasterContractModel{}, "company_id = ?", id)
		if err != nil {
			return err
		}
		var companyDocs int64
		if err := tx.Model(&DocumentModel{}).Where("owner_kind = ? AND owner_id = ?", domain.OwnerCompany, id).Count(&companyDocs).Error; err != nil {
			return wrapStorage("count company documents", err)
		}
		if !cascade && (len(faenaIDs) > 0 || len(contractIDs) > 0 || companyDocs > 0) {
			return fmt.Errorf("%w: company %s has dependents, cascade required", domain.ErrConflict, id)
		}
		for _, fid := range faenaIDs {
			refs, err := deleteFaenaTx(tx, fid)
			if err != nil {
				return err
			}
			released = append(released, refs...)
		}
		for _, cid := range contractIDs {
			var mc MasterContractModel
			if err := tx.First(&mc, "id = ?", cid).Error; err != nil {
				return wrapStorage("load master contract", err)
			}
			if mc.BlobRef != "" {
				released = append(released, mc.BlobRef)
			}
			if err := tx.Delete(&MasterContractModel{}, "id = ?", cid).Error; err != nil {
				return wrapStorage("delete master contract", err)
			}
		}
		refs, err := deleteDocumentsTx(tx, domain.OwnerCompany, id)
		if err != nil {
			return err
		}
		released = append(released, refs...)
		if err := tx.Delete(&CompanyModel{}, "id = ?", id).Error; err != nil {
			return wrapStorage("delete company", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// master contracts

func (s *GormStore) SaveMasterContract(mc domain.MasterContract) (string, error) {
	var replaced string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&CompanyModel{}).Where("id = ?", mc.CompanyID).Count(&exists).Error; err != nil {
			return wrapStorage("check company", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: company %s", domain.ErrNotFound, mc.CompanyID)
		}
		var prev MasterContractModel
		err := tx.First(&prev, "id = ?", mc.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			m := contractToModel(mc)
			if err := tx.Create(&m).Error; err != nil {
				return wrapStorage("create master contract", err)
			}
		case err != nil:
			return wrapStorage("load master contract", err)
		default:
			if prev.BlobRef != "" && prev.BlobRef != mc.BlobRef {
				replaced = prev.BlobRef
			}
			m := contractToModel(mc)
			if err := tx.Save(&m).Error; err != nil {
				return wrapStorage("update master contract", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return replaced, nil
}

func (s *GormStore) GetMasterContract(id string) (domain.MasterContract, bool, error) {
	var m MasterContractModel
	err := s.db.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.MasterContract{}, false, nil
	}
	if err != nil {
		return domain.MasterContract{}, false, wrapStorage("get master contract", err)
	}
	return contractToDomain(m), true, nil
}

func (s *GormStore) ListMasterContractsByCompany(companyID string) ([]domain.MasterContract, error) {
	var models []MasterContractModel
	if err := s.db.Where("company_id = ?", companyID).Order("created_at").Find(&models).Error; err != nil {
		return nil, wrapStorage("list master contracts", err)
	}
	out := make([]domain.MasterContract, 0, len(models))
	for _, m := range models {
		out = append(out, contractToDomain(m))
	}
	return out, nil
}

func (s *GormStore) DeleteMasterContract(id string) (string, error) {
	var released string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var m MasterContractModel
		err := tx.First(&m, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: master contract %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return wrapStorage("load master contract", err)
		}
		// Faenas keep their reference cleared, mirroring ON DELETE SET NULL.
		if err := tx.Model(&FaenaModel{}).Where("master_contract_id = ?", id).Update("master_contract_id", "").Error; err != nil {
			return wrapStorage("detach faenas", err)
		}
		if err := tx.Delete(&MasterContractModel{}, "id = ?", id).Error; err != nil {
			return wrapStorage("delete master contract", err)
		}
		released = m.BlobRef
		return nil
	})
	if err != nil {
		return "", err
	}
	return released, nil
}

// faenas

func validateFaenaDates(f domain.Faena) error {
	if f.EndDate != nil && f.EndDate.Before(f.StartDate) {
		return fmt.Errorf("%w: faena end date precedes start date", domain.ErrValidation)
	}
	if f.Status == domain.FaenaClosed && f.EndDate == nil {
		return fmt.Errorf("%w: closed faena requires an end date", domain.ErrValidation)
	}
	return nil
}

func (s *GormStore) CreateFaena(f domain.Faena) error {
	if err := validateFaenaDates(f); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&CompanyModel{}).Where("id = ?", f.CompanyID).Count(&exists).Error; err != nil {
			return wrapStorage("check company", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: company %s", domain.ErrNotFound, f.CompanyID)
		}
		if f.MasterContractID != "" {
			if err := tx.Model(&MasterContractModel{}).Where("id = ?", f.MasterContractID).Count(&exists).Error; err != nil {
				return wrapStorage("check master contract", err)
			}
			if exists == 0 {
				return fmt.Errorf("%w: master contract %s", domain.ErrNotFound, f.MasterContractID)
			}
		}
		m := faenaToModel(f)
		if err := tx.Create(&m).Error; err != nil {
			return wrapStorage("create faena", err)
		}
		return nil
	})
}

func (s *GormStore) GetFaena(id string) (domain.Faena, bool, error) {
	var m FaenaModel
	err := s.db.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Faena{}, false, nil
	}
	if err != nil {
		return domain.Faena{}, false, wrapStorage("get faena", err)
	}
	return faenaToDomain(m), true, nil
}

func (s *GormStore) ListFaenas() ([]domain.Faena, error) {
	var models []FaenaModel
	if err := s.db.Order("start_date DESC").Find(&models).Error; err != nil {
		return nil, wrapStorage("list faenas", err)
	}
	out := make([]domain.Faena, 0, len(models))
	for _, m := range models {
		out = append(out, faenaToDomain(m))
	}
	return out, nil
}

// ListFaenasByMonth returns faenas whose start date falls in yearMonth
// ("YYYY-MM"), the scope of monthly exports.
func (s *GormStore) ListFaenasByMonth(yearMonth string) ([]domain.Faena, error) {
	var models []FaenaModel
	if err := s.db.Where("strftime('%Y-%m', start_date) = ?", yearMonth).Order("start_date").Find(&models).Error; err != nil {
		return nil, wrapStorage("list faenas by month", err)
	}
	out := make([]domain.Faena, 0, len(models))
	for _, m := range models {
		out = append(out, faenaToDomain(m))
	}
	return out, nil
}

func (s *GormStore) UpdateFaena(f domain.Faena) error {
	if err := validateFaenaDates(f); err != nil {
		return err
	}
	res := s.db.Model(&FaenaModel{}).Where("id = ?", f.ID).Updates(map[string]any{
		"company_id":         f.CompanyID,
		"master_contract_id": f.MasterContractID,
		"name":               f.Name,
		"location":           f.Location,
		"start_date":         f.StartDate,
		"end_date":           f.EndDate,
		"status":             string(f.Status),
	})
	if res.Error != nil {
		return wrapStorage("update faena", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: faena %s", domain.ErrNotFound, f.ID)
	}
	return nil
}

func previewFaena(tx *gorm.DB, id string) (domain.CascadePreview, error) {
	var preview domain.CascadePreview
	var assignments int64
	if err := tx.Model(&AssignmentModel{}).Where("faena_id = ?", id).Count(&assignments).Error; err != nil {
		return preview, wrapStorage("count assignments", err)
	}
	preview.Assignments = int(assignments)
	var docs int64
	if err := tx.Model(&DocumentModel{}).Where("owner_kind = ? AND owner_id = ?", domain.OwnerFaena, id).Count(&docs).Error; err != nil {
		return preview, wrapStorage("count faena documents", err)
	}
	preview.Documents = int(docs)
	return preview, nil
}

func (s *GormStore) PreviewFaenaDelete(id string) (domain.CascadePreview, error) {
	var preview domain.CascadePreview
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&FaenaModel{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return wrapStorage("check faena", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: faena %s", domain.ErrNotFound, id)
		}
		var err error
		preview, err = previewFaena(tx, id)
		return err
	})
	return preview, err
}

// deleteFaenaTx removes assignments, faena-owned documents, and the faena
// row. Worker documents are untouched: they belong to the worker identity.
func deleteFaenaTx(tx *gorm.DB, id string) ([]string, error) {
	if err := tx.Delete(&AssignmentModel{}, "faena_id = ?", id).Error; err != nil {
		return nil, wrapStorage("delete assignments", err)
	}
	released, err := deleteDocumentsTx(tx, domain.OwnerFaena, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Delete(&FaenaModel{}, "id = ?", id).Error; err != nil {
		return nil, wrapStorage("delete faena", err)
	}
	return released, nil
}

func (s *GormStore) DeleteFaena(id string, cascade bool) ([]string, error) {
	var released []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&FaenaModel{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return wrapStorage("check faena", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: faena %s", domain.ErrNotFound, id)
		}
		preview, err := previewFaena(tx, id)
		if err != nil {
			return err
		}
		if !cascade && (preview.Assignments > 0 || preview.Documents > 0) {
			return fmt.Errorf("%w: faena %s has dependents, cascade required", domain.ErrConflict, id)
		}
		released, err = deleteFaenaTx(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// workers

func (s *GormStore) CreateWorker(w domain.Worker) error {
	w.RUT = NormalizeRUT(w.RUT)
	if w.RUT == "" {
		return fmt.Errorf("%w: worker RUT required", domain.ErrValidation)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&WorkerModel{}).Where("rut = ?", w.RUT).Count(&count).Error; err != nil {
			return wrapStorage("check worker rut", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: worker RUT %s already exists", domain.ErrConflict, w.RUT)
		}
		m := workerToModel(w)
		if err := tx.Create(&m).Error; err != nil {
			return wrapStorage("create worker", err)
		}
		return nil
	})
}

func (s *GormStore) GetWorker(id string) (domain.Worker, bool, error) {
	var m WorkerModel
	err := s.db.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Worker{}, false, nil
	}
	if err != nil {
		return domain.Worker{}, false, wrapStorage("get worker", err)
	}
	return workerToDomain(m), true, nil
}

func (s *GormStore) GetWorkerByRUT(rut string) (domain.Worker, bool, error) {
	var m WorkerModel
	err := s.db.First(&m, "rut = ?", NormalizeRUT(rut)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Worker{}, false, nil
	}
	if err != nil {
		return domain.Worker{}, false, wrapStorage("get worker by rut", err)
	}
	return workerToDomain(m), true, nil
}

func (s *GormStore) ListWorkers() ([]domain.Worker, error) {
	var models []WorkerModel
	if err := s.db.Order("last_names, first_names").Find(&models).Error; err != nil {
		return nil, wrapStorage("list workers", err)
	}
	out := make([]domain.Worker, 0, len(models))
	for _, m := range models {
		out = append(out, workerToDomain(m))
	}
	return out, nil
}

func (s *GormStore) ListWorkersByFaena(faenaID string) ([]domain.Worker, error) {
	var models []WorkerModel
	err := s.db.
		Joins("JOIN assignment_models a ON a.worker_id = worker_models.id").
		Where("a.faena_id = ?", faenaID).
		Order("worker_models.last_names, worker_models.first_names").
		Find(&models).Error
	if err != nil {
		return nil, wrapStorage("list workers by faena", err)
	}
	out := make([]domain.Worker, 0, len(models))
	for _, m := range models {
		out = append(out, workerToDomain(m))
	}
	return out, nil
}

func (s *GormStore) UpdateWorker(w domain.Worker) error {
	w.RUT = NormalizeRUT(w.RUT)
	if w.RUT == "" {
		return fmt.Errorf("%w: worker RUT required", domain.ErrValidation)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&WorkerModel{}).Where("rut = ? AND id <> ?", w.RUT, w.ID).Count(&count).Error; err != nil {
			return wrapStorage("check worker rut", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: worker RUT %s already exists", domain.ErrConflict, w.RUT)
		}
		res := tx.Model(&WorkerModel{}).Where("id = ?", w.ID).Updates(map[string]any{
			"rut":           w.RUT,
			"first_names":   w.FirstNames,
			"last_names":    w.LastNames,
			"role":          w.Role,
			"cost_center":   w.CostCenter,
			"email":         w.Email,
			"contract_date": w.ContractDate,
		})
		if res.Error != nil {
			return wrapStorage("update worker", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: worker %s", domain.ErrNotFound, w.ID)
		}
		return nil
	})
}

func (s *GormStore) PreviewWorkerDelete(id string) (domain.CascadePreview, error) {
	var preview domain.CascadePreview
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&WorkerModel{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return wrapStorage("check worker", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: worker %s", domain.ErrNotFound, id)
		}
		var assignments int64
		if err := tx.Model(&AssignmentModel{}).Where("worker_id = ?", id).Count(&assignments).Error; err != nil {
			return wrapStorage("count assignments", err)
		}
		preview.Assignments = int(assignments)
		var docs int64
		if err := tx.Model(&DocumentModel{}).Where("owner_kind = ? AND owner_id = ?", domain.OwnerWorker, id).Count(&docs).Error; err != nil {
			return wrapStorage("count worker documents", err)
		}
		preview.Documents = int(docs)
		return nil
	})
	return preview, err
}

// DeleteWorker with cascade removes the worker's assignments and all of the
// worker's documents, releasing their blobs. Without cascade it fails fast
// when dependents exist.
func (s *GormStore) DeleteWorker(id string, cascade bool) ([]string, error) {
	var released []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&WorkerModel{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return wrapStorage("check worker", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: worker %s", domain.ErrNotFound, id)
		}
		var assignments int64
		if err := tx.Model(&AssignmentModel{}).Where("worker_id = ?", id).Count(&assignments).Error; err != nil {
			return wrapStorage("count assignments", err)
		}
		var docs int64
		if err := tx.Model(&DocumentModel{}).Where("owner_kind = ? AND owner_id = ?", domain.OwnerWorker, id).Count(&docs).Error; err != nil {
			return wrapStorage("count worker documents", err)
		}
		if !cascade && (assignments > 0 || docs > 0) {
			return fmt.Errorf("%w: worker %s has dependents, cascade required", domain.ErrConflict, id)
		}
		if err := tx.Delete(&AssignmentModel{}, "worker_id = ?", id).Error; err != nil {
			return wrapStorage("delete assignments", err)
		}
		refs, err := deleteDocumentsTx(tx, domain.OwnerWorker, id)
		if err != nil {
			return err
		}
		released = refs
		if err := tx.Delete(&WorkerModel{}, "id = ?", id).Error; err != nil {
			return wrapStorage("delete worker", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// assignments

func (s *GormStore) CreateAssignment(a domain.Assignment) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&WorkerModel{}).Where("id = ?", a.WorkerID).Count(&exists).Error; err != nil {
			return wrapStorage("check worker", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: worker %s", domain.ErrNotFound, a.WorkerID)
		}
		if err := tx.Model(&FaenaModel{}).Where("id = ?", a.FaenaID).Count(&exists).Error; err != nil {
			return wrapStorage("check faena", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: faena %s", domain.ErrNotFound, a.FaenaID)
		}
		if err := tx.Model(&AssignmentModel{}).Where("faena_id = ? AND worker_id = ?", a.FaenaID, a.WorkerID).Count(&exists).Error; err != nil {
			return wrapStorage("check assignment pair", err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: worker %s already assigned to faena %s", domain.ErrConflict, a.WorkerID, a.FaenaID)
		}
		m := assignmentToModel(a)
		if err := tx.Create(&m).Error; err != nil {
			return wrapStorage("create assignment", err)
		}
		return nil
	})
}

func (s *GormStore) GetAssignment(id string) (domain.Assignment, bool, error) {
	var m AssignmentModel
	err := s.db.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Assignment{}, false, nil
	}
	if err != nil {
		return domain.Assignment{}, false, wrapStorage("get assignment", err)
	}
	return assignmentToDomain(m), true, nil
}

func (s *GormStore) ListAssignmentsByFaena(faenaID string) ([]domain.Assignment, error) {
	var models []AssignmentModel
	if err := s.db.Where("faena_id = ?", faenaID).Order("entry_date").Find(&models).Error; err != nil {
		return nil, wrapStorage("list assignments by faena", err)
	}
	out := make([]domain.Assignment, 0, len(models))
	for _, m := range models {
		out = append(out, assignmentToDomain(m))
	}
	return out, nil
}

func (s *GormStore) ListAssignmentsByWorker(workerID string) ([]domain.Assignment, error) {
	var models []AssignmentModel
	if err := s.db.Where("worker_id = ?", workerID).Order("entry_date").Find(&models).Error; err != nil {
		return nil, wrapStorage("list assignments by worker", err)
	}
	out := make([]domain.Assignment, 0, len(models))
	for _, m := range models {
		out = append(out, assignmentToDomain(m))
	}
	return out, nil
}

// DeleteAssignment removes the placement only. The worker's documents are
// shared across faenas and must survive.
func (s *GormStore) DeleteAssignment(id string) error {
	res := s.db.Delete(&AssignmentModel{}, "id = ?", id)
	if res.Error != nil {
		return wrapStorage("delete assignment", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: assignment %s", domain.ErrNotFound, id)
	}
	return nil
}

// documents

func (s *GormStore) CreateDocument(d domain.Document) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := checkOwnerExists(tx, d.OwnerKind, d.OwnerID); err != nil {
			return err
		}
		m := documentToModel(d)
		if err := tx.Create(&m).Error; err != nil {
			return wrapStorage("create document", err)
		}
		return nil
	})
}

func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var m DocumentModel
	err := s.db.First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, wrapStorage("get document", err)
	}
	return documentToDomain(m), true, nil
}

func (s *GormStore) ListDocumentsByOwner(kind domain.OwnerKind, ownerID string) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Where("owner_kind = ? AND owner_id = ?", kind, ownerID).Order("uploaded_at").Find(&models).Error; err != nil {
		return nil, wrapStorage("list documents", err)
	}
	out := make([]domain.Document, 0, len(models))
	for _, m := range models {
		out = append(out, documentToDomain(m))
	}
	return out, nil
}

// ReplaceDocumentFile swaps the stored file of an existing document and
// returns the blob reference it displaced. The caller releases the old blob
// only after this commit succeeds.
func (s *GormStore) ReplaceDocumentFile(d domain.Document) (string, error) {
	var replaced string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var prev DocumentModel
		err := tx.First(&prev, "id = ?", d.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: document %s", domain.ErrNotFound, d.ID)
		}
		if err != nil {
			return wrapStorage("load document", err)
		}
		res := tx.Model(&DocumentModel{}).Where("id = ?", d.ID).Updates(map[string]any{
			"filename":    d.Filename,
			"blob_ref":    d.BlobRef,
			"sha256":      d.SHA256,
			"size_bytes":  d.SizeBytes,
			"issue_date":  d.IssueDate,
			"expiry_date": d.ExpiryDate,
			"uploaded_at": d.UploadedAt,
		})
		if res.Error != nil {
			return wrapStorage("replace document file", res.Error)
		}
		if prev.BlobRef != "" && prev.BlobRef != d.BlobRef {
			replaced = prev.BlobRef
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return replaced, nil
}

func (s *GormStore) DeleteDocument(id string) (string, error) {
	var released string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var m DocumentModel
		err := tx.First(&m, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
		}
		if err != nil {
			return wrapStorage("load document", err)
		}
		if err := tx.Delete(&DocumentModel{}, "id = ?", id).Error; err != nil {
			return wrapStorage("delete document", err)
		}
		released = m.BlobRef
		return nil
	})
	if err != nil {
		return "", err
	}
	return released, nil
}

// export ledger

func (s *GormStore) AppendExportRecord(rec domain.ExportRecord) error {
	m := exportToModel(rec)
	if err := s.db.Create(&m).Error; err != nil {
		return wrapStorage("append export record", err)
	}
	return nil
}

func (s *GormStore) ListExportRecords(kinds ...domain.ExportKind) ([]domain.ExportRecord, error) {
	var models []ExportRecordModel
	q := s.db.Order("created_at DESC")
	if len(kinds) > 0 {
		kindStrs := make([]string, 0, len(kinds))
		for _, k := range kinds {
			kindStrs = append(kindStrs, string(k))
		}
		q = q.Where("kind IN ?", kindStrs)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, wrapStorage("list export records", err)
	}
	out := make([]domain.ExportRecord, 0, len(models))
	for _, m := range models {
		out = append(out, exportToDomain(m))
	}
	return out, nil
}

// DeleteExportRecords exists solely for auto-backup retention trimming;
// regular export records are never deleted.
func (s *GormStore) DeleteExportRecords(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.Delete(&ExportRecordModel{}, "id IN ?", ids).Error; err != nil {
		return wrapStorage("delete export records", err)
	}
	return nil
}

// snapshot support

// Snapshot reads every table inside one transaction, giving the export a
// consistent view even under concurrent writes.
func (s *GormStore) Snapshot() (domain.Dataset, error) {
	var data domain.Dataset
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var companies []CompanyModel
		if err := tx.Order("id").Find(&companies).Error; err != nil {
			return wrapStorage("snapshot companies", err)
		}
		for _, m := range companies {
			data.Companies = append(data.Companies, companyToDomain(m))
		}
		var contracts []MasterContractModel
		if err := tx.Order("id").Find(&contracts).Error; err != nil {
			return wrapStorage("snapshot contracts", err)
		}
		for _, m := range contracts {
			data.Contracts = append(data.Contracts, contractToDomain(m))
		}
		var faenas []FaenaModel
		if err := tx.Order("id").Find(&faenas).Error; err != nil {
			return wrapStorage("snapshot faenas", err)
		}
		for _, m := range faenas {
			data.Faenas = append(data.Faenas, faenaToDomain(m))
		}
		var workers []WorkerModel
		if err := tx.Order("id").Find(&workers).Error; err != nil {
			return wrapStorage("snapshot workers", err)
		}
		for _, m := range workers {
			data.Workers = append(data.Workers, workerToDomain(m))
		}
		var assignments []AssignmentModel
		if err := tx.Order("id").Find(&assignments).Error; err != nil {
			return wrapStorage("snapshot assignments", err)
		}
		for _, m := range assignments {
			data.Assignments = append(data.Assignments, assignmentToDomain(m))
		}
		var documents []DocumentModel
		if err := tx.Order("id").Find(&documents).Error; err != nil {
			return wrapStorage("snapshot documents", err)
		}
		for _, m := range documents {
			data.Documents = append(data.Documents, documentToDomain(m))
		}
		var exports []ExportRecordModel
		if err := tx.Order("id").Find(&exports).Error; err != nil {
			return wrapStorage("snapshot exports", err)
		}
		for _, m := range exports {
			data.Exports = append(data.Exports, exportToDomain(m))
		}
		return nil
	})
	if err != nil {
		return domain.Dataset{}, err
	}
	return data, nil
}

// ReplaceAll swaps the entire store content for the staged dataset in one
// transaction. Used only by restore, under its exclusive lock.
func (s *GormStore) ReplaceAll(data domain.Dataset) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range allModels() {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return wrapStorage("clear table", err)
			}
		}
		for _, c := range data.Companies {
			m := companyToModel(c)
			if err := tx.Create(&m).Error; err != nil {
				return wrapStorage("restore company", err)
			}
		}
		for _, c := range data.Contracts {
			m := contractToModel(c)
			if err := tx.Create(&m).Error; err != nil {
				return wrapStorage("restore contract", err)
			}
		}
		for _, f := range data.Faenas {
			m := faenaToModel(f)
			if err := tx.Create(&m).Error; err != nil {
				return wrapStorage("restore faena", err)
			}
		}
		for _, w := range data.Workers {
			m := workerToModel(w)
			if err := tx.Create(&m).Error; err != nil {
				return wrapStorage("restore worker", err)
			}
		}
		for _, a := range data.Assignments {
			m := assignmentToModel(a)
			if err := tx.Create(&m).Error; err != nil {
				return wrapStorage("restore assignment", err)
			}
		}
		for _, d := range data.Documents {
			m := documentToModel(d)
			if err := tx.Create(&m).Error; err != nil {
				return wrapStorage("restore document", err)
			}
		}
		for _, r := range data.Exports {
			m := exportToModel(r)
			if err := tx.Create(&m).Error; err != nil {
				return wrapStorage("restore export record", err)
			}
		}
		return nil
	})
}

// helpers

func idsOf(tx *gorm.DB, model any, cond string, args ...any) ([]string, error) {
	var ids []string
	if err := tx.Model(model).Where(cond, args...).Pluck("id", &ids).Error; err != nil {
		return nil, wrapStorage("pluck ids", err)
	}
	return ids, nil
}

func checkOwnerExists(tx *gorm.DB, kind domain.OwnerKind, ownerID string) error {
	var model any
	switch kind {
	case domain.OwnerWorker:
		model = &WorkerModel{}
	case domain.OwnerFaena:
		model = &FaenaModel{}
	case domain.OwnerCompany:
		model = &CompanyModel{}
	default:
		return fmt.Errorf("%w: unknown owner kind %q", domain.ErrValidation, kind)
	}
	var exists int64
	if err := tx.Model(model).Where("id = ?", ownerID).Count(&exists).Error; err != nil {
		return wrapStorage("check owner", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, ownerID)
	}
	return nil
}

func deleteDocumentsTx(tx *gorm.DB, kind domain.OwnerKind, ownerID string) ([]string, error) {
	var models []DocumentModel
	if err := tx.Where("owner_kind = ? AND owner_id = ?", kind, ownerID).Find(&models).Error; err != nil {
		return nil, wrapStorage("load documents", err)
	}
	var refs []string
	for _, m := range models {
		if m.BlobRef != "" {
			refs = append(refs, m.BlobRef)
		}
	}
	if err := tx.Delete(&DocumentModel{}, "owner_kind = ? AND owner_id = ?", kind, ownerID).Error; err != nil {
		return nil, wrapStorage("delete documents", err)
	}
	return refs, nil
}
