package app

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/compliance"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/roster"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/snapshot"
)

// ---- compliance ----

func (a *App) EvaluateOwner(kind domain.OwnerKind, ownerID string) (compliance.Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.checkOwner(kind, ownerID); err != nil {
		return compliance.Report{}, err
	}
	return a.eval.Evaluate(a.store, kind, ownerID)
}

// EvaluateWorkers reports every worker, or only those assigned to faenaID
// when set. The faena scope filters which workers appear; it never changes
// any worker's own report.
func (a *App) EvaluateWorkers(faenaID string) ([]compliance.Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.eval.EvaluateWorkers(a.store, faenaID)
}

func (a *App) EvaluateFaenas() ([]compliance.Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.eval.EvaluateFaenas(a.store)
}

func (a *App) EvaluateCompanies() ([]compliance.Report, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.eval.EvaluateCompanies(a.store)
}

// Dashboard is the aggregate compliance view: overall worker KPIs plus one
// progress row per faena.
type Dashboard struct {
	Workers compliance.Summary         `json:"workers"`
	Faenas  []compliance.FaenaProgress `json:"faenas"`
}

func (a *App) ComplianceDashboard() (Dashboard, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var dash Dashboard
	all, err := a.eval.EvaluateWorkers(a.store, "")
	if err != nil {
		return dash, err
	}
	dash.Workers = compliance.Summarize(all)

	faenas, err := a.store.ListFaenas()
	if err != nil {
		return dash, err
	}
	for _, f := range faenas {
		reports, err := a.eval.EvaluateWorkers(a.store, f.ID)
		if err != nil {
			return dash, err
		}
		dash.Faenas = append(dash.Faenas, compliance.Progress(f.ID, reports))
	}
	return dash, nil
}

// ---- exports and backups ----

func (a *App) exportBundle(ctx context.Context, kind snapshot.BundleKind) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := a.engine.Export(ctx, kind, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Backup produces a bundle and records it. The archive bytes are returned
// so the HTTP layer can stream them to the caller; ErrPartialFailure means
// the bundle is good but the ledger row is missing.
func (a *App) Backup(ctx context.Context, kind snapshot.BundleKind) ([]byte, domain.ExportRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	payload, err := a.exportBundle(ctx, kind)
	if err != nil {
		return nil, domain.ExportRecord{}, err
	}
	exportKind := domain.ExportFullBackup
	if kind == snapshot.KindDBOnly {
		exportKind = domain.ExportDBOnly
	}
	rec, err := a.recorder.Record(ctx, exportKind, "", "", payload)
	return payload, rec, err
}

// ExportFaena produces the per-faena document package and records it.
func (a *App) ExportFaena(ctx context.Context, faenaID string) ([]byte, domain.ExportRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var buf bytes.Buffer
	name, err := a.engine.ExportFaena(ctx, a.eval, faenaID, &buf)
	if err != nil {
		return nil, domain.ExportRecord{}, err
	}
	rec, err := a.recorder.Record(ctx, domain.ExportFaenaZip, faenaID, name, buf.Bytes())
	return buf.Bytes(), rec, err
}

// ExportMonth packages every faena starting in yearMonth (YYYY-MM) and
// records the archive.
func (a *App) ExportMonth(ctx context.Context, yearMonth string) ([]byte, domain.ExportRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var buf bytes.Buffer
	if err := a.engine.ExportMonth(ctx, a.eval, yearMonth, &buf); err != nil {
		return nil, domain.ExportRecord{}, err
	}
	rec, err := a.recorder.Record(ctx, domain.ExportMonthZip, yearMonth, "", buf.Bytes())
	return buf.Bytes(), rec, err
}

// ---- restore ----

// Restore applies an uploaded bundle under the exclusive lock: no reader
// or mutation overlaps it. The restore event is recorded afterwards; a
// failed ledger write downgrades to ErrPartialFailure with Recorded=false.
func (a *App) Restore(ctx context.Context, archive []byte) (snapshot.RestoreResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	result, err := a.engine.Restore(ctx, bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return result, err
	}
	if _, recErr := a.recorder.RecordEvent(domain.ExportRestore, string(result.Shape), string(result.Kind)); recErr != nil {
		return result, recErr
	}
	result.Recorded = true
	return result, nil
}

// ---- roster import ----

func (a *App) ImportRoster(ctx context.Context, r io.Reader, opts roster.Options) (roster.Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary, err := a.importer.Import(r, opts)
	if err != nil {
		return summary, err
	}
	a.afterMutation(ctx, "import_excel")
	return summary, nil
}

// ---- history ----

func (a *App) ListHistory(kinds ...domain.ExportKind) ([]domain.ExportRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.recorder.List(kinds...)
}

// OpenHistoryArchive fetches a recorded archive for re-download.
func (a *App) OpenHistoryArchive(ctx context.Context, id string) (domain.ExportRecord, []byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.recorder.Open(ctx, id)
}

// IsPartialFailure reports whether err means the operation itself succeeded
// and only its ledger record is missing.
func IsPartialFailure(err error) bool {
	return errors.Is(err, domain.ErrPartialFailure)
}
