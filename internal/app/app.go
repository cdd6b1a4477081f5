package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/util"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/catalog"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/compliance"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/history"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/roster"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/snapshot"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/storage"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DBPath     string
	StorageDir string
	// Store and Blobs may be injected for tests; otherwise they are built
	// from DBPath / StorageDir (or MinIO when an endpoint is configured).
	Store store.Store
	Blobs storage.BlobStore

	Catalog        *catalog.Catalog
	CatalogPath    string
	WarnWindowDays int

	StrictRestoreFiles bool
	AutoBackup         bool
	AutoBackupKeep     int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// App wires the entity store, file store, catalog, and the engines built on
// them. A single RWMutex arbitrates restore against everything else:
// reads and exports share the read side, mutations and restore take the
// write side, so a restore never observes or produces a torn state.
type App struct {
	mu sync.RWMutex

	store    store.Store
	blobs    storage.BlobStore
	catalog  *catalog.Catalog
	eval     *compliance.Evaluator
	engine   *snapshot.Engine
	recorder *history.Recorder
	importer *roster.Importer

	autoBackup bool
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("database path required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
	}

	blobs := cfg.Blobs
	if blobs == nil {
		var err error
		if cfg.MinioEndpoint != "" {
			blobs, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		} else {
			if cfg.StorageDir == "" {
				return nil, fmt.Errorf("storage directory required")
			}
			blobs, err = storage.NewFileStore(cfg.StorageDir)
		}
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
	}

	cat := cfg.Catalog
	if cat == nil {
		if cfg.CatalogPath != "" {
			var err error
			cat, err = catalog.Load(cfg.CatalogPath)
			if err != nil {
				return nil, fmt.Errorf("load catalog: %w", err)
			}
		} else {
			cat = catalog.Default()
		}
	}

	evalOpts := []compliance.Option{}
	if cfg.WarnWindowDays > 0 {
		evalOpts = append(evalOpts, compliance.WithWarnWindow(cfg.WarnWindowDays))
	}
	recorderOpts := []history.Option{}
	if cfg.AutoBackupKeep > 0 {
		recorderOpts = append(recorderOpts, history.WithKeep(cfg.AutoBackupKeep))
	}

	return &App{
		store:      dataStore,
		blobs:      blobs,
		catalog:    cat,
		eval:       compliance.New(cat, evalOpts...),
		engine:     snapshot.New(dataStore, blobs, snapshot.WithStrictFiles(cfg.StrictRestoreFiles)),
		recorder:   history.New(dataStore, blobs, recorderOpts...),
		importer:   roster.New(dataStore),
		autoBackup: cfg.AutoBackup,
	}, nil
}

// Catalog exposes the document type catalog.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// afterMutation runs the on-save backup when enabled. It is best-effort:
// a failed backup is logged, never surfaced to the caller whose mutation
// already committed.
func (a *App) afterMutation(ctx context.Context, tag string) {
	if !a.autoBackup {
		return
	}
	payload, err := a.exportBundle(ctx, snapshot.KindDBOnly)
	if err != nil {
		slog.Warn("auto-backup failed", "tag", tag, "error", err)
		return
	}
	if _, err := a.recorder.Record(ctx, domain.ExportAutoBackup, "", tag, payload); err != nil {
		slog.Warn("auto-backup not recorded", "tag", tag, "error", err)
	}
	if _, err := a.recorder.TrimAutoBackups(ctx); err != nil {
		slog.Warn("auto-backup trim failed", "error", err)
	}
}

// releaseBlobs deletes blobs freed by a committed mutation. Failures are
// logged: the rows are already gone, a leftover file is only garbage.
func (a *App) releaseBlobs(ctx context.Context, refs ...string) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := a.blobs.Delete(ctx, ref); err != nil {
			slog.Warn("released blob not deleted", "ref", ref, "error", err)
		}
	}
}

// ---- companies ----

func (a *App) CreateCompany(ctx context.Context, name string) (domain.Company, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := domain.Company{
		ID:        util.NewID(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateCompany(c); err != nil {
		return domain.Company{}, err
	}
	a.afterMutation(ctx, "company_create")
	return a.getCompany(c.ID)
}

func (a *App) getCompany(id string) (domain.Company, error) {
	c, ok, err := a.store.GetCompany(id)
	if err != nil {
		return domain.Company{}, err
	}
	if !ok {
		return domain.Company{}, fmt.Errorf("%w: company %s", domain.ErrNotFound, id)
	}
	return c, nil
}

func (a *App) GetCompany(id string) (domain.Company, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.getCompany(id)
}

func (a *App) ListCompanies() ([]domain.Company, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.ListCompanies()
}

func (a *App) RenameCompany(ctx context.Context, id, name string) (domain.Company, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, err := a.getCompany(id)
	if err != nil {
		return domain.Company{}, err
	}
	c.Name = name
	if err := a.store.UpdateCompany(c); err != nil {
		return domain.Company{}, err
	}
	a.afterMutation(ctx, "company_edit")
	return a.getCompany(id)
}

func (a *App) PreviewCompanyDelete(id string) (domain.CascadePreview, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.PreviewCompanyDelete(id)
}

func (a *App) DeleteCompany(ctx context.Context, id string, cascade bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	released, err := a.store.DeleteCompany(id, cascade)
	if err != nil {
		return err
	}
	a.releaseBlobs(ctx, released...)
	a.afterMutation(ctx, "company_delete")
	return nil
}

// ---- faenas ----

// FaenaInput carries the writable faena fields.
type FaenaInput struct {
	CompanyID        string
	MasterContractID string
	Name             string
	Location         string
	StartDate        time.Time
	EndDate          *time.Time
	Status           domain.FaenaStatus
}

func (a *App) CreateFaena(ctx context.Context, in FaenaInput) (domain.Faena, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f := domain.Faena{
		ID:               util.NewID(),
		CompanyID:        in.CompanyID,
		MasterContractID: in.MasterContractID,
		Name:             in.Name,
		Location:         in.Location,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		Status:           in.Status,
	}
	if f.Status == "" {
		f.Status = domain.FaenaActive
	}
	if err := a.store.CreateFaena(f); err != nil {
		return domain.Faena{}, err
	}
	a.afterMutation(ctx, "faena_create")
	return f, nil
}

func (a *App) GetFaena(id string) (domain.Faena, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	f, ok, err := a.store.GetFaena(id)
	if err != nil {
		return domain.Faena{}, err
	}
	if !ok {
		return domain.Faena{}, fmt.Errorf("%w: faena %s", domain.ErrNotFound, id)
	}
	return f, nil
}

func (a *App) ListFaenas() ([]domain.Faena, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.ListFaenas()
}

func (a *App) UpdateFaena(ctx context.Context, id string, in FaenaInput) (domain.Faena, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok, err := a.store.GetFaena(id)
	if err != nil {
		return domain.Faena{}, err
	}
	if !ok {
		return domain.Faena{}, fmt.Errorf("%w: faena %s", domain.ErrNotFound, id)
	}
	f.CompanyID = in.CompanyID
	f.MasterContractID = in.MasterContractID
	f.Name = in.Name
	f.Location = in.Location
	f.StartDate = in.StartDate
	f.EndDate = in.EndDate
	f.Status = in.Status
	if err := a.store.UpdateFaena(f); err != nil {
		return domain.Faena{}, err
	}
	a.afterMutation(ctx, "faena_edit")
	return f, nil
}

func (a *App) PreviewFaenaDelete(id string) (domain.CascadePreview, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.PreviewFaenaDelete(id)
}

func (a *App) DeleteFaena(ctx context.Context, id string, cascade bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	released, err := a.store.DeleteFaena(id, cascade)
	if err != nil {
		return err
	}
	a.releaseBlobs(ctx, released...)
	a.afterMutation(ctx, "faena_delete")
	return nil
}

// ---- workers ----

// WorkerInput carries the writable worker fields.
type WorkerInput struct {
	RUT          string
	FirstNames   string
	LastNames    string
	Role         string
	CostCenter   string
	Email        string
	ContractDate *time.Time
}

func (a *App) CreateWorker(ctx context.Context, in WorkerInput) (domain.Worker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := domain.Worker{
		ID:           util.NewID(),
		RUT:          in.RUT,
		FirstNames:   in.FirstNames,
		LastNames:    in.LastNames,
		Role:         in.Role,
		CostCenter:   in.CostCenter,
		Email:        in.Email,
		ContractDate: in.ContractDate,
	}
	if strings.TrimSpace(w.RUT) == "" {
		return domain.Worker{}, fmt.Errorf("%w: RUT is required", domain.ErrValidation)
	}
	if err := a.store.CreateWorker(w); err != nil {
		return domain.Worker{}, err
	}
	a.afterMutation(ctx, "worker_create")
	return w, nil
}

func (a *App) GetWorker(id string) (domain.Worker, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	w, ok, err := a.store.GetWorker(id)
	if err != nil {
		return domain.Worker{}, err
	}
	if !ok {
		return domain.Worker{}, fmt.Errorf("%w: worker %s", domain.ErrNotFound, id)
	}
	return w, nil
}

func (a *App) ListWorkers(faenaID string) ([]domain.Worker, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if faenaID != "" {
		return a.store.ListWorkersByFaena(faenaID)
	}
	return a.store.ListWorkers()
}

func (a *App) UpdateWorker(ctx context.Context, id string, in WorkerInput) (domain.Worker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok, err := a.store.GetWorker(id)
	if err != nil {
		return domain.Worker{}, err
	}
	if !ok {
		return domain.Worker{}, fmt.Errorf("%w: worker %s", domain.ErrNotFound, id)
	}
	w.RUT = in.RUT
	w.FirstNames = in.FirstNames
	w.LastNames = in.LastNames
	w.Role = in.Role
	w.CostCenter = in.CostCenter
	w.Email = in.Email
	w.ContractDate = in.ContractDate
	if err := a.store.UpdateWorker(w); err != nil {
		return domain.Worker{}, err
	}
	a.afterMutation(ctx, "worker_edit")
	return w, nil
}

func (a *App) PreviewWorkerDelete(id string) (domain.CascadePreview, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.PreviewWorkerDelete(id)
}

func (a *App) DeleteWorker(ctx context.Context, id string, cascade bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	released, err := a.store.DeleteWorker(id, cascade)
	if err != nil {
		return err
	}
	a.releaseBlobs(ctx, released...)
	a.afterMutation(ctx, "worker_delete")
	return nil
}

// ---- assignments ----

// AssignmentInput carries the writable assignment fields.
type AssignmentInput struct {
	FaenaID   string
	WorkerID  string
	FaenaRole string
	EntryDate time.Time
	ExitDate  *time.Time
	Status    domain.AssignmentStatus
}

func (a *App) CreateAssignment(ctx context.Context, in AssignmentInput) (domain.Assignment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	row := domain.Assignment{
		ID:        util.NewID(),
		FaenaID:   in.FaenaID,
		WorkerID:  in.WorkerID,
		FaenaRole: in.FaenaRole,
		EntryDate: in.EntryDate,
		ExitDate:  in.ExitDate,
		Status:    in.Status,
	}
	if row.Status == "" {
		row.Status = domain.AssignmentActive
	}
	if row.EntryDate.IsZero() {
		row.EntryDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if err := a.store.CreateAssignment(row); err != nil {
		return domain.Assignment{}, err
	}
	a.afterMutation(ctx, "assignment_create")
	return row, nil
}

func (a *App) ListAssignments(faenaID, workerID string) ([]domain.Assignment, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch {
	case faenaID != "":
		return a.store.ListAssignmentsByFaena(faenaID)
	case workerID != "":
		return a.store.ListAssignmentsByWorker(workerID)
	default:
		return nil, fmt.Errorf("%w: faena or worker filter is required", domain.ErrValidation)
	}
}

// DeleteAssignment unlinks a worker from a faena. The worker's documents
// are untouched: they belong to the worker, not to the assignment.
func (a *App) DeleteAssignment(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.store.DeleteAssignment(id); err != nil {
		return err
	}
	a.afterMutation(ctx, "assignment_delete")
	return nil
}
