package snapshot

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/util"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/compliance"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// Document packages follow the folder scheme the receiving mandantes are
// used to: numbered top-level sections, one directory per worker, one
// subdirectory per document type, and a plain-text index of pending
// obligations so the package is reviewable without the system.
const pendingIndexName = "99_Index_Pendientes.txt"

// ExportFaena writes the document package of one faena to w and returns the
// faena name for the caller's file naming. Documents whose blob is missing
// are skipped, as they always have been.
func (e *Engine) ExportFaena(ctx context.Context, ev *compliance.Evaluator, faenaID string, w io.Writer) (string, error) {
	faena, ok, err := e.store.GetFaena(faenaID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: faena %s", domain.ErrNotFound, faenaID)
	}
	zw := zip.NewWriter(w)
	if err := e.writeFaenaTree(ctx, zw, ev, faena, "", true); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize faena package: %w", err)
	}
	return faena.Name, nil
}

// ExportMonth packages every faena starting in yearMonth (YYYY-MM) into one
// archive. Company documents are written once at the top instead of being
// repeated inside every faena folder.
func (e *Engine) ExportMonth(ctx context.Context, ev *compliance.Evaluator, yearMonth string, w io.Writer) error {
	faenas, err := e.store.ListFaenasByMonth(yearMonth)
	if err != nil {
		return err
	}
	if len(faenas) == 0 {
		return fmt.Errorf("%w: no faenas start in %s", domain.ErrNotFound, yearMonth)
	}

	zw := zip.NewWriter(w)

	idx := []string{
		"EXPORT MENSUAL: " + yearMonth,
		fmt.Sprintf("FAENAS INCLUIDAS: %d", len(faenas)),
		"",
	}
	companyNames := make(map[string]string)
	for _, f := range faenas {
		name := companyNames[f.CompanyID]
		if name == "" {
			if c, ok, err := e.store.GetCompany(f.CompanyID); err == nil && ok {
				name = c.Name
			}
			companyNames[f.CompanyID] = name
		}
		idx = append(idx, fmt.Sprintf("- %s: %s / %s (%s) inicio %s",
			f.ID, name, f.Name, f.Status, f.StartDate.Format("2006-01-02")))
	}
	if err := writeTextEntry(zw, yearMonth+"/00_Index_Mes.txt", idx); err != nil {
		return err
	}

	for companyID := range companyNames {
		prefix := yearMonth + "/00_Documentos_Empresa_Global/"
		if err := e.writeOwnerDocs(ctx, zw, domain.OwnerCompany, companyID, func(d domain.Document) string {
			return prefix + util.SafeName(d.TypeCode) + "/" + d.Filename
		}); err != nil {
			return err
		}
	}

	for _, f := range faenas {
		prefix := fmt.Sprintf("%s/FAENA_%s_%s/", yearMonth, f.ID, util.SafeName(f.Name))
		if err := e.writeFaenaTree(ctx, zw, ev, f, prefix, false); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize month package: %w", err)
	}
	return nil
}

// writeFaenaTree writes one faena's package under prefix. Company documents
// are included only when companyDocs is set; month packages hoist them to
// the archive top instead.
func (e *Engine) writeFaenaTree(ctx context.Context, zw *zip.Writer, ev *compliance.Evaluator, faena domain.Faena, prefix string, companyDocs bool) error {
	if err := e.writePendingIndex(zw, ev, faena, prefix); err != nil {
		return err
	}

	if faena.MasterContractID != "" {
		mc, ok, err := e.store.GetMasterContract(faena.MasterContractID)
		if err != nil {
			return err
		}
		if ok && mc.BlobRef != "" {
			name := prefix + "00_Contrato_Faena/" + blobBasename(mc.BlobRef)
			if err := e.copyBlobTo(ctx, zw, mc.BlobRef, name); err != nil {
				return err
			}
		}
	}

	if err := e.writeOwnerDocs(ctx, zw, domain.OwnerFaena, faena.ID, func(d domain.Document) string {
		switch d.TypeCode {
		case "CONTRATO_FAENA":
			return prefix + "00_Contrato_Faena/" + d.Filename
		case "ANEXO_FAENA":
			return prefix + "01_Anexos_Faena/" + d.Filename
		default:
			return prefix + "02_Documentos_Empresa_Faena/" + util.SafeName(d.TypeCode) + "/" + d.Filename
		}
	}); err != nil {
		return err
	}

	if companyDocs {
		if err := e.writeOwnerDocs(ctx, zw, domain.OwnerCompany, faena.CompanyID, func(d domain.Document) string {
			return prefix + "02_Documentos_Empresa/" + util.SafeName(d.TypeCode) + "/" + d.Filename
		}); err != nil {
			return err
		}
	}

	workers, err := e.store.ListWorkersByFaena(faena.ID)
	if err != nil {
		return err
	}
	sort.Slice(workers, func(i, j int) bool {
		if workers[i].LastNames != workers[j].LastNames {
			return workers[i].LastNames < workers[j].LastNames
		}
		return workers[i].FirstNames < workers[j].FirstNames
	})
	for _, w := range workers {
		dir := prefix + "03_Trabajadores/" + util.WorkerFolder(w.LastNames, w.FirstNames, w.RUT) + "/"
		if err := e.writeOwnerDocs(ctx, zw, domain.OwnerWorker, w.ID, func(d domain.Document) string {
			return dir + util.SafeName(d.TypeCode) + "/" + d.Filename
		}); err != nil {
			return err
		}
	}
	return nil
}

// writePendingIndex renders the reviewer-facing index: faena header plus
// pending mandatory documents per assigned worker and for the faena itself.
func (e *Engine) writePendingIndex(zw *zip.Writer, ev *compliance.Evaluator, faena domain.Faena, prefix string) error {
	companyName := ""
	if c, ok, err := e.store.GetCompany(faena.CompanyID); err == nil && ok {
		companyName = c.Name
	}
	contractName := "(sin contrato cargado)"
	if faena.MasterContractID != "" {
		if mc, ok, err := e.store.GetMasterContract(faena.MasterContractID); err == nil && ok {
			contractName = mc.Name
		}
	}
	end := "-"
	if faena.EndDate != nil {
		end = faena.EndDate.Format("2006-01-02")
	}
	location := faena.Location
	if location == "" {
		location = "-"
	}

	lines := []string{
		"MANDANTE: " + companyName,
		"FAENA: " + faena.Name,
		"ESTADO: " + string(faena.Status),
		fmt.Sprintf("INICIO: %s | TERMINO: %s", faena.StartDate.Format("2006-01-02"), end),
		"UBICACION: " + location,
		"CONTRATO_FAENA: " + contractName,
		"",
		"PENDIENTES DOCUMENTOS OBLIGATORIOS POR TRABAJADOR:",
	}

	workerReports, err := ev.EvaluateWorkers(e.store, faena.ID)
	if err != nil {
		return err
	}
	if len(workerReports) == 0 {
		lines = append(lines, "- (sin trabajadores asignados)")
	} else {
		workers, err := e.store.ListWorkersByFaena(faena.ID)
		if err != nil {
			return err
		}
		labels := make(map[string]string, len(workers))
		for _, w := range workers {
			labels[w.ID] = fmt.Sprintf("%s %s (%s)", w.LastNames, w.FirstNames, w.RUT)
		}
		for _, r := range workerReports {
			label := labels[r.OwnerID]
			if label == "" {
				label = r.OwnerID
			}
			if missing := r.Missing(); len(missing) > 0 {
				lines = append(lines, fmt.Sprintf("* %s: faltan %s", label, strings.Join(missing, ", ")))
			} else {
				lines = append(lines, "* "+label+": OK")
			}
		}
	}

	lines = append(lines, "", "PENDIENTES DOCUMENTOS EMPRESA (POR FAENA):")
	faenaReport, err := ev.Evaluate(e.store, domain.OwnerFaena, faena.ID)
	if err != nil {
		return err
	}
	if missing := faenaReport.Missing(); len(missing) > 0 {
		lines = append(lines, "* faltan: "+strings.Join(missing, ", "))
	} else {
		lines = append(lines, "* OK")
	}

	return writeTextEntry(zw, prefix+pendingIndexName, lines)
}

func (e *Engine) writeOwnerDocs(ctx context.Context, zw *zip.Writer, kind domain.OwnerKind, ownerID string, entryName func(domain.Document) string) error {
	docs, err := e.store.ListDocumentsByOwner(kind, ownerID)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if d.BlobRef == "" {
			continue
		}
		if err := e.copyBlobTo(ctx, zw, d.BlobRef, entryName(d)); err != nil {
			return err
		}
	}
	return nil
}

// copyBlobTo streams one blob into the archive under name; a missing blob
// is skipped rather than failing the whole package.
func (e *Engine) copyBlobTo(ctx context.Context, zw *zip.Writer, ref, name string) error {
	rc, err := e.blobs.Get(ctx, ref)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("read blob %s: %w: %v", ref, domain.ErrStorage, err)
	}
	defer rc.Close()
	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create package entry %s: %w", name, err)
	}
	if _, err := io.Copy(entry, rc); err != nil {
		return fmt.Errorf("copy blob %s into package: %w", ref, err)
	}
	return nil
}

func writeTextEntry(zw *zip.Writer, name string, lines []string) error {
	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create package entry %s: %w", name, err)
	}
	if _, err := io.WriteString(entry, strings.Join(lines, "\n")); err != nil {
		return fmt.Errorf("write package entry %s: %w", name, err)
	}
	return nil
}

func blobBasename(ref string) string {
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
