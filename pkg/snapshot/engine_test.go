package snapshot

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/catalog"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/compliance"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/storage"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/store"
)

func newFixture(t *testing.T) (*store.GormStore, *storage.FileStore) {
	t.Helper()
	st, err := store.NewGormStore(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	blobs, err := storage.NewFileStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	return st, blobs
}

func putBlob(t *testing.T, blobs *storage.FileStore, key, content string) {
	t.Helper()
	if err := blobs.Put(context.Background(), key, strings.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("put blob %s: %v", key, err)
	}
}

// seedDocumented creates a company, faena, assigned worker, and one worker
// document with its blob in place.
func seedDocumented(t *testing.T, st *store.GormStore, blobs *storage.FileStore) domain.Document {
	t.Helper()
	if err := st.CreateCompany(domain.Company{ID: "c1", Name: "Minera Norte", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("create company: %v", err)
	}
	faena := domain.Faena{
		ID: "f1", CompanyID: "c1", Name: "Planta Coloso",
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:    domain.FaenaActive,
	}
	if err := st.CreateFaena(faena); err != nil {
		t.Fatalf("create faena: %v", err)
	}
	if err := st.CreateWorker(domain.Worker{ID: "w1", RUT: "12345678-9", FirstNames: "Juan", LastNames: "Pérez"}); err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if err := st.CreateAssignment(domain.Assignment{
		ID: "a1", FaenaID: "f1", WorkerID: "w1",
		EntryDate: faena.StartDate, Status: domain.AssignmentActive,
	}); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	doc := domain.Document{
		ID: "d1", OwnerKind: domain.OwnerWorker, OwnerID: "w1",
		TypeCode: "CONTRATO_TRABAJO", Filename: "contrato.pdf",
		BlobRef: "worker/CONTRATO_TRABAJO/w1/contrato.pdf",
		SHA256:  "abc", SizeBytes: 12, UploadedAt: time.Now().UTC(),
	}
	if err := st.CreateDocument(doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	putBlob(t, blobs, doc.BlobRef, "contrato-pdf")
	return doc
}

func TestExportRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	srcStore, srcBlobs := newFixture(t)
	doc := seedDocumented(t, srcStore, srcBlobs)

	var buf bytes.Buffer
	manifest, err := New(srcStore, srcBlobs).Export(ctx, KindFull, &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if manifest.Version != CurrentVersion || manifest.Kind != KindFull {
		t.Fatalf("manifest = %+v, want version %d kind full", manifest, CurrentVersion)
	}
	if manifest.Counts["documents"] != 1 || manifest.Counts["workers"] != 1 {
		t.Fatalf("manifest counts = %v", manifest.Counts)
	}

	dstStore, dstBlobs := newFixture(t)
	result, err := New(dstStore, dstBlobs).Restore(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if result.Shape != ShapeCurrent || result.Kind != KindFull {
		t.Fatalf("result = %+v, want current/full", result)
	}
	if result.FilesOut != 1 {
		t.Fatalf("files materialized = %d, want 1", result.FilesOut)
	}

	got, ok, err := dstStore.GetDocument(doc.ID)
	if err != nil || !ok {
		t.Fatalf("restored document: ok=%v err=%v", ok, err)
	}
	if got.BlobRef != doc.BlobRef {
		t.Fatalf("blob ref = %q, want %q", got.BlobRef, doc.BlobRef)
	}
	rc, err := dstBlobs.Get(ctx, doc.BlobRef)
	if err != nil {
		t.Fatalf("restored blob: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if string(content) != "contrato-pdf" {
		t.Fatalf("restored blob content = %q", content)
	}
}

func TestRestoreUnknownArchiveFailsWithoutMutation(t *testing.T) {
	st, blobs := newFixture(t)
	seedDocumented(t, st, blobs)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, _ := zw.Create("main.py")
	io.WriteString(entry, "print('hola')")
	zw.Close()

	_, err := New(st, blobs).Restore(context.Background(), bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if !errors.Is(err, domain.ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
	if !strings.Contains(err.Error(), "code") {
		t.Fatalf("error should call out the code-only archive, got %q", err)
	}
	data, snapErr := st.Snapshot()
	if snapErr != nil {
		t.Fatalf("snapshot: %v", snapErr)
	}
	if len(data.Documents) != 1 || len(data.Workers) != 1 {
		t.Fatalf("failed restore mutated the store: %v", data.Counts())
	}
}

// writeBundle builds a current-shape archive directly, so tests can tamper
// with individual sections.
func writeBundle(t *testing.T, kind BundleKind, data domain.Dataset, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	writeJSON := func(name string, v any) {
		entry, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if err := json.NewEncoder(entry).Encode(v); err != nil {
			t.Fatalf("encode %s: %v", name, err)
		}
	}
	writeJSON(manifestPath, Manifest{Version: CurrentVersion, ID: "test", Kind: kind, Counts: data.Counts()})
	writeJSON(dataPath, bundleDataset(data))
	for ref, content := range files {
		entry, err := zw.Create(filesPrefix + ref)
		if err != nil {
			t.Fatalf("create file entry: %v", err)
		}
		io.WriteString(entry, content)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close bundle: %v", err)
	}
	return buf.Bytes()
}

func TestRestoreRejectsDanglingReferences(t *testing.T) {
	st, blobs := newFixture(t)
	data := domain.Dataset{
		Documents: []domain.Document{{
			ID: "d1", OwnerKind: domain.OwnerWorker, OwnerID: "ghost",
			TypeCode: "IRL", Filename: "irl.pdf", UploadedAt: time.Now(),
		}},
	}
	raw := writeBundle(t, KindDBOnly, data, nil)

	_, err := New(st, blobs).Restore(context.Background(), bytes.NewReader(raw), int64(len(raw)))
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
}

func TestRestoreFullBundleMissingFileEntryFailsBeforeMutation(t *testing.T) {
	st, blobs := newFixture(t)
	seedDocumented(t, st, blobs)

	data := domain.Dataset{
		Workers: []domain.Worker{{ID: "w9", RUT: "9-9"}},
		Documents: []domain.Document{{
			ID: "d9", OwnerKind: domain.OwnerWorker, OwnerID: "w9",
			TypeCode: "IRL", Filename: "irl.pdf",
			BlobRef: "worker/IRL/w9/irl.pdf", UploadedAt: time.Now(),
		}},
	}
	raw := writeBundle(t, KindFull, data, nil) // file section deliberately empty

	_, err := New(st, blobs).Restore(context.Background(), bytes.NewReader(raw), int64(len(raw)))
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
	snap, err := st.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Workers) != 1 || snap.Workers[0].ID != "w1" {
		t.Fatalf("preflight failure must leave the pre-image intact, got workers %v", snap.Workers)
	}
}

// failingBlobStore fails every write so restore has to unwind the entity
// swap it already applied.
type failingBlobStore struct {
	storage.BlobStore
}

func (f *failingBlobStore) Put(context.Context, string, io.Reader, int64) error {
	return fmt.Errorf("disk full")
}

func TestRestoreRollsBackEntitiesWhenFilesFail(t *testing.T) {
	st, blobs := newFixture(t)
	seedDocumented(t, st, blobs)

	data := domain.Dataset{
		Workers: []domain.Worker{{ID: "w9", RUT: "9-9"}},
		Documents: []domain.Document{{
			ID: "d9", OwnerKind: domain.OwnerWorker, OwnerID: "w9",
			TypeCode: "IRL", Filename: "irl.pdf",
			BlobRef: "worker/IRL/w9/irl.pdf", UploadedAt: time.Now(),
		}},
	}
	raw := writeBundle(t, KindFull, data, map[string]string{"worker/IRL/w9/irl.pdf": "irl-pdf"})

	_, err := New(st, &failingBlobStore{BlobStore: blobs}).Restore(context.Background(), bytes.NewReader(raw), int64(len(raw)))
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}

	snap, err := st.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Workers) != 1 || snap.Workers[0].ID != "w1" {
		t.Fatalf("failed materialization must restore the pre-image, got workers %v", snap.Workers)
	}
	if len(snap.Documents) != 1 || snap.Documents[0].ID != "d1" {
		t.Fatalf("pre-image documents not restored: %v", snap.Documents)
	}
}

func TestRestoreDBOnlyMissingFilesWarnsUnlessStrict(t *testing.T) {
	ctx := context.Background()
	data := domain.Dataset{
		Workers: []domain.Worker{{ID: "w1", RUT: "1-9"}},
		Documents: []domain.Document{{
			ID: "d1", OwnerKind: domain.OwnerWorker, OwnerID: "w1",
			TypeCode: "IRL", Filename: "irl.pdf",
			BlobRef: "worker/IRL/w1/irl.pdf", UploadedAt: time.Now(),
		}},
	}
	raw := writeBundle(t, KindDBOnly, data, nil)

	st, blobs := newFixture(t)
	result, err := New(st, blobs).Restore(ctx, bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one for the absent file", result.Warnings)
	}
	if result.FilesOut != 0 {
		t.Fatalf("db-only restore wrote %d files", result.FilesOut)
	}

	st2, blobs2 := newFixture(t)
	_, err = New(st2, blobs2, WithStrictFiles(true)).Restore(ctx, bytes.NewReader(raw), int64(len(raw)))
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("strict err = %v, want ErrIntegrity", err)
	}
}

func TestRestoreLegacyDatabaseBundle(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "app.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	stmts := []string{
		`CREATE TABLE mandantes (id INTEGER PRIMARY KEY, nombre TEXT NOT NULL)`,
		`CREATE TABLE faenas (id INTEGER PRIMARY KEY, mandante_id INTEGER, contrato_faena_id INTEGER,
			nombre TEXT, ubicacion TEXT, fecha_inicio TEXT, fecha_termino TEXT, estado TEXT)`,
		`CREATE TABLE trabajadores (id INTEGER PRIMARY KEY, rut TEXT, nombres TEXT, apellidos TEXT, cargo TEXT)`,
		`CREATE TABLE asignaciones (id INTEGER PRIMARY KEY, faena_id INTEGER, trabajador_id INTEGER,
			cargo_faena TEXT, fecha_ingreso TEXT, fecha_egreso TEXT, estado TEXT)`,
		`CREATE TABLE trabajador_documentos (id INTEGER PRIMARY KEY, trabajador_id INTEGER, doc_tipo TEXT,
			nombre_archivo TEXT, file_path TEXT, sha256 TEXT, created_at TEXT)`,
		`INSERT INTO mandantes VALUES (1, 'Minera Norte')`,
		`INSERT INTO faenas VALUES (1, 1, NULL, 'Planta Coloso', '', '2024-03-01', NULL, 'ACTIVA')`,
		`INSERT INTO trabajadores VALUES (1, '12345678-9', 'Juan', 'Pérez', 'Soldador')`,
		`INSERT INTO asignaciones VALUES (1, 1, 1, '', '2024-03-01', NULL, 'ACTIVA')`,
		`INSERT INTO trabajador_documentos VALUES (1, 1, 'CONTRATO_TRABAJO', 'contrato.pdf',
			'data/uploads/trabajadores/1/contrato.pdf', 'abc', '2024-03-02T10:00:00')`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("legacy seed: %v", err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	dbEntry, _ := zw.Create("backup/app.db")
	raw, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatalf("read legacy db: %v", err)
	}
	dbEntry.Write(raw)
	fileEntry, _ := zw.Create("backup/uploads/trabajadores/1/contrato.pdf")
	io.WriteString(fileEntry, "contrato-pdf")
	zw.Close()

	st, blobs := newFixture(t)
	result, err := New(st, blobs).Restore(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("restore legacy: %v", err)
	}
	if result.Shape != ShapeLegacyDB {
		t.Fatalf("shape = %s, want legacy_db", result.Shape)
	}

	w, ok, err := st.GetWorkerByRUT("12345678-9")
	if err != nil || !ok {
		t.Fatalf("restored worker: ok=%v err=%v", ok, err)
	}
	docs, err := st.ListDocumentsByOwner(domain.OwnerWorker, w.ID)
	if err != nil || len(docs) != 1 {
		t.Fatalf("restored docs = %v, err=%v", docs, err)
	}
	if docs[0].BlobRef != "worker/CONTRATO_TRABAJO/1/contrato.pdf" {
		t.Fatalf("rewritten blob ref = %q", docs[0].BlobRef)
	}
	exists, err := blobs.Exists(ctx, docs[0].BlobRef)
	if err != nil || !exists {
		t.Fatalf("legacy upload not materialized: exists=%v err=%v", exists, err)
	}
}

func TestExportFaenaPackageLayout(t *testing.T) {
	ctx := context.Background()
	st, blobs := newFixture(t)
	seedDocumented(t, st, blobs)

	faenaDoc := domain.Document{
		ID: "d2", OwnerKind: domain.OwnerFaena, OwnerID: "f1",
		TypeCode: "CONTRATO_FAENA", Filename: "contrato_faena.pdf",
		BlobRef: "faena/CONTRATO_FAENA/f1/contrato_faena.pdf", UploadedAt: time.Now(),
	}
	if err := st.CreateDocument(faenaDoc); err != nil {
		t.Fatalf("create faena doc: %v", err)
	}
	putBlob(t, blobs, faenaDoc.BlobRef, "faena-contract")

	ev := compliance.New(catalog.Default())
	var buf bytes.Buffer
	name, err := New(st, blobs).ExportFaena(ctx, ev, "f1", &buf)
	if err != nil {
		t.Fatalf("export faena: %v", err)
	}
	if name != "Planta Coloso" {
		t.Fatalf("faena name = %q", name)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read package: %v", err)
	}
	entries := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		content, _ := io.ReadAll(rc)
		rc.Close()
		entries[f.Name] = string(content)
	}

	if _, ok := entries["00_Contrato_Faena/contrato_faena.pdf"]; !ok {
		t.Fatalf("faena contract missing, entries: %v", keys(entries))
	}
	if _, ok := entries["03_Trabajadores/p_rez_juan_12345678_9/contrato_trabajo/contrato.pdf"]; !ok {
		t.Fatalf("worker document missing, entries: %v", keys(entries))
	}
	index, ok := entries[pendingIndexName]
	if !ok {
		t.Fatalf("pending index missing")
	}
	if !strings.Contains(index, "FAENA: Planta Coloso") {
		t.Fatalf("index header wrong:\n%s", index)
	}
	// The seeded worker has only CONTRATO_TRABAJO; everything else is pending.
	if !strings.Contains(index, "faltan") || !strings.Contains(index, "EXAMEN_MEDICO") {
		t.Fatalf("index should list pending worker documents:\n%s", index)
	}
}

func TestExportMonthGroupsFaenas(t *testing.T) {
	ctx := context.Background()
	st, blobs := newFixture(t)
	seedDocumented(t, st, blobs)

	ev := compliance.New(catalog.Default())
	var buf bytes.Buffer
	if err := New(st, blobs).ExportMonth(ctx, ev, "2024-03", &buf); err != nil {
		t.Fatalf("export month: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read package: %v", err)
	}
	var hasIndex, hasFaena bool
	for _, f := range zr.File {
		if f.Name == "2024-03/00_Index_Mes.txt" {
			hasIndex = true
		}
		if strings.HasPrefix(f.Name, "2024-03/FAENA_f1_planta_coloso/") {
			hasFaena = true
		}
	}
	if !hasIndex || !hasFaena {
		t.Fatalf("month package layout wrong: index=%v faena=%v", hasIndex, hasFaena)
	}

	err = New(st, blobs).ExportMonth(ctx, ev, "2030-01", &bytes.Buffer{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty month err = %v, want ErrNotFound", err)
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

