package snapshot

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// legacyCompanyName owns the global company documents of legacy databases,
// which carried no owner column. Decode creates this company only when such
// documents exist.
const legacyCompanyName = "EMPRESA CONTRATISTA"

// decodeLegacy reads a historical backup: a raw SQLite database plus an
// optional loose uploads tree. The database is extracted to a scratch file,
// brought up to the last legacy schema with additive column migrations, and
// mapped into the current dataset. Blob references are rewritten from the
// old on-disk paths to canonical keys, and the archive's upload entries are
// indexed under those keys.
func decodeLegacy(zr *zip.Reader) (stagedBundle, error) {
	staged := stagedBundle{shape: ShapeLegacyDB, kind: KindFull, files: map[string]*zip.File{}}

	dbEntry, ok := legacyDBEntry(zr)
	if !ok {
		return staged, fmt.Errorf("%w: legacy bundle has no database entry", domain.ErrFormat)
	}
	dbPath, cleanup, err := extractToTemp(dbEntry)
	if err != nil {
		return staged, err
	}
	defer cleanup()

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return staged, fmt.Errorf("%w: cannot open legacy database: %v", domain.ErrFormat, err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	if err := ensureLegacyColumns(db); err != nil {
		return staged, err
	}
	data, legacyRefs, err := readLegacyTables(db)
	if err != nil {
		return staged, err
	}
	staged.data = data

	uploads := indexUploads(zr)
	for ref, oldPath := range legacyRefs {
		if entry, ok := lookupUpload(uploads, oldPath); ok {
			staged.files[ref] = entry
		}
	}
	return staged, nil
}

func extractToTemp(entry *zip.File) (string, func(), error) {
	rc, err := entry.Open()
	if err != nil {
		return "", nil, fmt.Errorf("%w: cannot open %s: %v", domain.ErrFormat, entry.Name, err)
	}
	defer rc.Close()

	dir, err := os.MkdirTemp("", "legacy-restore-*")
	if err != nil {
		return "", nil, fmt.Errorf("scratch dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	dbPath := filepath.Join(dir, "legacy.db")
	out, err := os.Create(dbPath)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("scratch db: %w", err)
	}
	_, err = io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("extract legacy database: %w", err)
	}
	return dbPath, cleanup, nil
}

// Legacy row shapes, matching the historical SQLite schema.
type legacyCompany struct {
	ID     int64  `gorm:"column:id"`
	Nombre string `gorm:"column:nombre"`
}

type legacyContract struct {
	ID           int64  `gorm:"column:id"`
	MandanteID   int64  `gorm:"column:mandante_id"`
	Nombre       string `gorm:"column:nombre"`
	FechaInicio  string `gorm:"column:fecha_inicio"`
	FechaTermino string `gorm:"column:fecha_termino"`
	FilePath     string `gorm:"column:file_path"`
	SHA256       string `gorm:"column:sha256"`
	CreatedAt    string `gorm:"column:created_at"`
}

type legacyFaena struct {
	ID           int64  `gorm:"column:id"`
	MandanteID   int64  `gorm:"column:mandante_id"`
	ContratoID   *int64 `gorm:"column:contrato_faena_id"`
	Nombre       string `gorm:"column:nombre"`
	Ubicacion    string `gorm:"column:ubicacion"`
	FechaInicio  string `gorm:"column:fecha_inicio"`
	FechaTermino string `gorm:"column:fecha_termino"`
	Estado       string `gorm:"column:estado"`
}

type legacyWorker struct {
	ID             int64  `gorm:"column:id"`
	RUT            string `gorm:"column:rut"`
	Nombres        string `gorm:"column:nombres"`
	Apellidos      string `gorm:"column:apellidos"`
	Cargo          string `gorm:"column:cargo"`
	CentroCosto    string `gorm:"column:centro_costo"`
	Email          string `gorm:"column:email"`
	FechaContrato  string `gorm:"column:fecha_contrato"`
	VigenciaExamen string `gorm:"column:vigencia_examen"`
}

type legacyAssignment struct {
	ID           int64  `gorm:"column:id"`
	FaenaID      int64  `gorm:"column:faena_id"`
	TrabajadorID int64  `gorm:"column:trabajador_id"`
	CargoFaena   string `gorm:"column:cargo_faena"`
	FechaIngreso string `gorm:"column:fecha_ingreso"`
	FechaEgreso  string `gorm:"column:fecha_egreso"`
	Estado       string `gorm:"column:estado"`
}

type legacyDocument struct {
	ID            int64  `gorm:"column:id"`
	TrabajadorID  int64  `gorm:"column:trabajador_id"`
	FaenaID       int64  `gorm:"column:faena_id"`
	DocTipo       string `gorm:"column:doc_tipo"`
	Nombre        string `gorm:"column:nombre"`
	NombreArchivo string `gorm:"column:nombre_archivo"`
	FilePath      string `gorm:"column:file_path"`
	SHA256        string `gorm:"column:sha256"`
	CreatedAt     string `gorm:"column:created_at"`
}

// readLegacyTables maps the legacy schema onto the current dataset. It
// returns the dataset plus, for every rewritten blob reference, the old
// on-disk path so the caller can relink archive entries.
func readLegacyTables(db *gorm.DB) (domain.Dataset, map[string]string, error) {
	var data domain.Dataset
	legacyRefs := make(map[string]string)

	addRef := func(ref, oldPath string) {
		if oldPath != "" {
			legacyRefs[ref] = oldPath
		}
	}

	var companies []legacyCompany
	if err := legacySelect(db, "SELECT id, nombre FROM mandantes", &companies); err != nil {
		return data, nil, err
	}
	for _, c := range companies {
		data.Companies = append(data.Companies, domain.Company{
			ID:   legacyID(c.ID),
			Name: c.Nombre,
		})
	}

	var contracts []legacyContract
	if err := legacySelect(db, "SELECT * FROM contratos_faena", &contracts); err != nil {
		return data, nil, err
	}
	for _, c := range contracts {
		mc := domain.MasterContract{
			ID:        legacyID(c.ID),
			CompanyID: legacyID(c.MandanteID),
			Name:      c.Nombre,
			StartDate: legacyDatePtr(c.FechaInicio),
			EndDate:   legacyDatePtr(c.FechaTermino),
			SHA256:    c.SHA256,
			CreatedAt: legacyTime(c.CreatedAt),
		}
		if c.FilePath != "" {
			mc.BlobRef = path.Join("contract", "CONTRATO_MARCO", mc.ID, path.Base(c.FilePath))
			addRef(mc.BlobRef, c.FilePath)
		}
		data.Contracts = append(data.Contracts, mc)
	}

	var faenas []legacyFaena
	if err := legacySelect(db, "SELECT * FROM faenas", &faenas); err != nil {
		return data, nil, err
	}
	for _, f := range faenas {
		row := domain.Faena{
			ID:        legacyID(f.ID),
			CompanyID: legacyID(f.MandanteID),
			Name:      f.Nombre,
			Location:  f.Ubicacion,
			StartDate: legacyTime(f.FechaInicio),
			EndDate:   legacyDatePtr(f.FechaTermino),
			Status:    domain.FaenaStatus(f.Estado),
		}
		if f.ContratoID != nil {
			row.MasterContractID = legacyID(*f.ContratoID)
		}
		data.Faenas = append(data.Faenas, row)
	}

	var workers []legacyWorker
	if err := legacySelect(db, "SELECT * FROM trabajadores", &workers); err != nil {
		return data, nil, err
	}
	examExpiry := make(map[string]*time.Time)
	for _, w := range workers {
		id := legacyID(w.ID)
		data.Workers = append(data.Workers, domain.Worker{
			ID:           id,
			RUT:          strings.ToUpper(strings.ReplaceAll(w.RUT, " ", "")),
			FirstNames:   w.Nombres,
			LastNames:    w.Apellidos,
			Role:         w.Cargo,
			CostCenter:   w.CentroCosto,
			Email:        w.Email,
			ContractDate: legacyDatePtr(w.FechaContrato),
		})
		if exp := legacyDatePtr(w.VigenciaExamen); exp != nil {
			examExpiry[id] = exp
		}
	}

	var assignments []legacyAssignment
	if err := legacySelect(db, "SELECT * FROM asignaciones", &assignments); err != nil {
		return data, nil, err
	}
	for _, a := range assignments {
		data.Assignments = append(data.Assignments, domain.Assignment{
			ID:        legacyID(a.ID),
			FaenaID:   legacyID(a.FaenaID),
			WorkerID:  legacyID(a.TrabajadorID),
			FaenaRole: a.CargoFaena,
			EntryDate: legacyTime(a.FechaIngreso),
			ExitDate:  legacyDatePtr(a.FechaEgreso),
			Status:    domain.AssignmentStatus(a.Estado),
		})
	}

	var workerDocs []legacyDocument
	if err := legacySelect(db, "SELECT * FROM trabajador_documentos", &workerDocs); err != nil {
		return data, nil, err
	}
	for _, d := range workerDocs {
		doc := legacyToDocument(d, domain.OwnerWorker, legacyID(d.TrabajadorID), "wdoc")
		// Exam validity lived on the worker row in the legacy schema; it
		// now travels on the medical-exam document itself.
		if doc.TypeCode == "EXAMEN_MEDICO" && doc.ExpiryDate == nil {
			doc.ExpiryDate = examExpiry[doc.OwnerID]
		}
		addRef(doc.BlobRef, d.FilePath)
		data.Documents = append(data.Documents, doc)
	}

	var anexos []legacyDocument
	if err := legacySelect(db, "SELECT * FROM faena_anexos", &anexos); err != nil {
		return data, nil, err
	}
	for _, d := range anexos {
		d.DocTipo = "ANEXO_FAENA"
		if d.NombreArchivo == "" {
			d.NombreArchivo = d.Nombre
		}
		doc := legacyToDocument(d, domain.OwnerFaena, legacyID(d.FaenaID), "fanexo")
		addRef(doc.BlobRef, d.FilePath)
		data.Documents = append(data.Documents, doc)
	}

	var faenaCompanyDocs []legacyDocument
	if err := legacySelect(db, "SELECT * FROM faena_empresa_documentos", &faenaCompanyDocs); err != nil {
		return data, nil, err
	}
	for _, d := range faenaCompanyDocs {
		doc := legacyToDocument(d, domain.OwnerFaena, legacyID(d.FaenaID), "fdoc")
		addRef(doc.BlobRef, d.FilePath)
		data.Documents = append(data.Documents, doc)
	}

	var companyDocs []legacyDocument
	if err := legacySelect(db, "SELECT * FROM empresa_documentos", &companyDocs); err != nil {
		return data, nil, err
	}
	if len(companyDocs) > 0 {
		// These rows had no owner in the legacy schema: they were the
		// contractor's own certificates. They land on a dedicated company.
		ownerID := "legacy-empresa"
		data.Companies = append(data.Companies, domain.Company{
			ID:   ownerID,
			Name: legacyCompanyName,
		})
		for _, d := range companyDocs {
			doc := legacyToDocument(d, domain.OwnerCompany, ownerID, "edoc")
			addRef(doc.BlobRef, d.FilePath)
			data.Documents = append(data.Documents, doc)
		}
	}

	exports, err := readLegacyExports(db)
	if err != nil {
		return data, nil, err
	}
	data.Exports = exports
	return data, legacyRefs, nil
}

func readLegacyExports(db *gorm.DB) ([]domain.ExportRecord, error) {
	type legacyExport struct {
		ID        int64  `gorm:"column:id"`
		FaenaID   int64  `gorm:"column:faena_id"`
		YearMonth string `gorm:"column:year_month"`
		Tag       string `gorm:"column:tag"`
		FilePath  string `gorm:"column:file_path"`
		SHA256    string `gorm:"column:sha256"`
		SizeBytes int64  `gorm:"column:size_bytes"`
		CreatedAt string `gorm:"column:created_at"`
	}
	var out []domain.ExportRecord

	var faenaRows []legacyExport
	if err := legacySelect(db, "SELECT id, faena_id, file_path, sha256, size_bytes, created_at FROM export_historial", &faenaRows); err != nil {
		return nil, err
	}
	for _, r := range faenaRows {
		out = append(out, domain.ExportRecord{
			ID:        "faena-" + legacyID(r.ID),
			Kind:      domain.ExportFaenaZip,
			Scope:     legacyID(r.FaenaID),
			SHA256:    r.SHA256,
			SizeBytes: r.SizeBytes,
			CreatedAt: legacyTime(r.CreatedAt),
		})
	}

	var monthRows []legacyExport
	if err := legacySelect(db, "SELECT id, year_month, file_path, sha256, size_bytes, created_at FROM export_historial_mes", &monthRows); err != nil {
		return nil, err
	}
	for _, r := range monthRows {
		out = append(out, domain.ExportRecord{
			ID:        "month-" + legacyID(r.ID),
			Kind:      domain.ExportMonthZip,
			Scope:     r.YearMonth,
			SHA256:    r.SHA256,
			SizeBytes: r.SizeBytes,
			CreatedAt: legacyTime(r.CreatedAt),
		})
	}

	var autoRows []legacyExport
	if err := legacySelect(db, "SELECT id, tag, file_path, sha256, size_bytes, created_at FROM auto_backup_historial", &autoRows); err != nil {
		return nil, err
	}
	for _, r := range autoRows {
		out = append(out, domain.ExportRecord{
			ID:        "auto-" + legacyID(r.ID),
			Kind:      domain.ExportAutoBackup,
			Tag:       r.Tag,
			SHA256:    r.SHA256,
			SizeBytes: r.SizeBytes,
			CreatedAt: legacyTime(r.CreatedAt),
		})
	}
	return out, nil
}

func legacySelect(db *gorm.DB, query string, dest any) error {
	if err := db.Raw(query).Scan(dest).Error; err != nil {
		return fmt.Errorf("%w: legacy query failed (%s): %v", domain.ErrFormat, query, err)
	}
	return nil
}

func legacyToDocument(d legacyDocument, kind domain.OwnerKind, ownerID, idPrefix string) domain.Document {
	doc := domain.Document{
		ID:         idPrefix + "-" + legacyID(d.ID),
		OwnerKind:  kind,
		OwnerID:    ownerID,
		TypeCode:   d.DocTipo,
		Filename:   d.NombreArchivo,
		SHA256:     d.SHA256,
		UploadedAt: legacyTime(d.CreatedAt),
	}
	if doc.Filename == "" && d.FilePath != "" {
		doc.Filename = path.Base(d.FilePath)
	}
	if d.FilePath != "" {
		doc.BlobRef = path.Join(string(kind), doc.TypeCode, ownerID, path.Base(d.FilePath))
	}
	return doc
}

func legacyID(id int64) string {
	return strconv.FormatInt(id, 10)
}

var legacyLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func legacyTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range legacyLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func legacyDatePtr(s string) *time.Time {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	t := legacyTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

// indexUploads maps every archive entry to lookup keys: its cleaned path and
// its path relative to the innermost uploads/ directory. Legacy backups
// stored files under backup/uploads/ mirroring the old data/uploads tree.
func indexUploads(zr *zip.Reader) map[string]*zip.File {
	index := make(map[string]*zip.File)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(f.Name)
		index[name] = f
		if i := strings.LastIndex(name, "uploads/"); i >= 0 {
			index["uploads/"+name[i+len("uploads/"):]] = f
		}
	}
	return index
}

func lookupUpload(index map[string]*zip.File, oldPath string) (*zip.File, bool) {
	name := path.Clean(oldPath)
	candidates := []string{name, "backup/" + name}
	if i := strings.LastIndex(name, "uploads/"); i >= 0 {
		candidates = append(candidates, "uploads/"+name[i+len("uploads/"):])
	}
	for _, c := range candidates {
		if f, ok := index[c]; ok {
			return f, true
		}
	}
	return nil, false
}
