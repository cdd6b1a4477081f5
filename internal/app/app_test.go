package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/snapshot"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/storage"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/store"
)

func newTestApp(t *testing.T, mutate func(*Config)) (*App, string) {
	t.Helper()
	storageDir := filepath.Join(t.TempDir(), "uploads")
	cfg := Config{
		DBPath:     filepath.Join(t.TempDir(), "app.db"),
		StorageDir: storageDir,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, storageDir
}

func seedWorkerWithFaena(t *testing.T, a *App) (domain.Faena, domain.Worker) {
	t.Helper()
	ctx := context.Background()
	c, err := a.CreateCompany(ctx, "Minera Norte")
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	f, err := a.CreateFaena(ctx, FaenaInput{
		CompanyID: c.ID,
		Name:      "Planta Coloso",
		StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create faena: %v", err)
	}
	w, err := a.CreateWorker(ctx, WorkerInput{RUT: "12345678-9", FirstNames: "Juan", LastNames: "Pérez"})
	if err != nil {
		t.Fatalf("create worker: %v", err)
	}
	if _, err := a.CreateAssignment(ctx, AssignmentInput{FaenaID: f.ID, WorkerID: w.ID}); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return f, w
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return n
}

func TestUploadDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, nil)
	_, w := seedWorkerWithFaena(t, a)

	doc, err := a.UploadDocument(ctx, DocumentUpload{
		OwnerKind: domain.OwnerWorker,
		OwnerID:   w.ID,
		TypeCode:  "CONTRATO_TRABAJO",
		Filename:  "contrato final.pdf",
		Body:      strings.NewReader("contrato-pdf"),
		Size:      12,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.SHA256 == "" || doc.SizeBytes != 12 {
		t.Fatalf("doc = %+v, want checksum and size", doc)
	}

	got, rc, err := a.OpenDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if string(content) != "contrato-pdf" {
		t.Fatalf("content = %q", content)
	}
	if got.Filename != "contrato final.pdf" {
		t.Fatalf("filename = %q, original name must survive sanitized keys", got.Filename)
	}
}

func TestUploadRejectsUnknownOwner(t *testing.T) {
	ctx := context.Background()
	a, storageDir := newTestApp(t, nil)

	_, err := a.UploadDocument(ctx, DocumentUpload{
		OwnerKind: domain.OwnerWorker,
		OwnerID:   "ghost",
		TypeCode:  "IRL",
		Filename:  "irl.pdf",
		Body:      strings.NewReader("x"),
		Size:      1,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := countFiles(t, storageDir); n != 0 {
		t.Fatalf("rejected upload left %d files behind", n)
	}
}

// failingDocStore refuses document rows to exercise the compensating blob
// delete.
type failingDocStore struct {
	store.Store
}

func (f *failingDocStore) CreateDocument(domain.Document) error {
	return fmt.Errorf("disk full")
}

func TestUploadRollsBackBlobWhenRowFails(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewGormStore(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	storageDir := filepath.Join(t.TempDir(), "uploads")
	blobs, err := storage.NewFileStore(storageDir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	a, err := New(Config{Store: &failingDocStore{Store: st}, Blobs: blobs})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	_, w := seedWorkerWithFaena(t, a)

	_, err = a.UploadDocument(ctx, DocumentUpload{
		OwnerKind: domain.OwnerWorker,
		OwnerID:   w.ID,
		TypeCode:  "IRL",
		Filename:  "irl.pdf",
		Body:      strings.NewReader("x"),
		Size:      1,
	})
	if err == nil {
		t.Fatalf("expected row failure")
	}
	if n := countFiles(t, storageDir); n != 0 {
		t.Fatalf("failed upload left %d blobs behind", n)
	}
}

func TestReplaceDocumentSwapsFileAndReleasesOld(t *testing.T) {
	ctx := context.Background()
	a, storageDir := newTestApp(t, nil)
	_, w := seedWorkerWithFaena(t, a)

	doc, err := a.UploadDocument(ctx, DocumentUpload{
		OwnerKind: domain.OwnerWorker, OwnerID: w.ID, TypeCode: "CONTRATO_TRABAJO",
		Filename: "contrato.pdf", Body: strings.NewReader("version-1"), Size: 9,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	updated, err := a.ReplaceDocument(ctx, doc.ID, "contrato.pdf", strings.NewReader("version-2"), 9, nil, nil)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if updated.BlobRef == doc.BlobRef {
		t.Fatalf("replacement reused key %q", doc.BlobRef)
	}

	_, rc, err := a.OpenDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if string(content) != "version-2" {
		t.Fatalf("content = %q", content)
	}
	if n := countFiles(t, storageDir); n != 1 {
		t.Fatalf("files after replace = %d, want old blob released", n)
	}
}

// failingReplaceStore refuses the row update so the replace has to leave
// the old file untouched.
type failingReplaceStore struct {
	store.Store
}

func (f *failingReplaceStore) ReplaceDocumentFile(domain.Document) (string, error) {
	return "", fmt.Errorf("%w: disk full", domain.ErrStorage)
}

func TestReplaceKeepsOldFileWhenRowFails(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewGormStore(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	blobs, err := storage.NewFileStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	a, err := New(Config{Store: &failingReplaceStore{Store: st}, Blobs: blobs})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	_, w := seedWorkerWithFaena(t, a)

	doc, err := a.UploadDocument(ctx, DocumentUpload{
		OwnerKind: domain.OwnerWorker, OwnerID: w.ID, TypeCode: "CONTRATO_TRABAJO",
		Filename: "contrato.pdf", Body: strings.NewReader("version-1"), Size: 9,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	// Re-upload under the same filename, the common replacement case.
	if _, err := a.ReplaceDocument(ctx, doc.ID, "contrato.pdf", strings.NewReader("version-2"), 9, nil, nil); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("replace err = %v, want ErrStorage", err)
	}

	got, rc, err := a.OpenDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("row must still point at a readable file: %v", err)
	}
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	if string(content) != "version-1" {
		t.Fatalf("content = %q, want the original file", content)
	}
	if got.BlobRef != doc.BlobRef || got.SHA256 != doc.SHA256 {
		t.Fatalf("row changed after failed replace: %+v", got)
	}
}

func TestDeleteWorkerCascadeRemovesFiles(t *testing.T) {
	ctx := context.Background()
	a, storageDir := newTestApp(t, nil)
	_, w := seedWorkerWithFaena(t, a)

	for _, typeCode := range []string{"CONTRATO_TRABAJO", "IRL"} {
		if _, err := a.UploadDocument(ctx, DocumentUpload{
			OwnerKind: domain.OwnerWorker, OwnerID: w.ID, TypeCode: typeCode,
			Filename: typeCode + ".pdf", Body: strings.NewReader("pdf"), Size: 3,
		}); err != nil {
			t.Fatalf("upload %s: %v", typeCode, err)
		}
	}
	if n := countFiles(t, storageDir); n != 2 {
		t.Fatalf("files before delete = %d, want 2", n)
	}

	if err := a.DeleteWorker(ctx, w.ID, false); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("non-cascade delete err = %v, want ErrConflict", err)
	}
	if err := a.DeleteWorker(ctx, w.ID, true); err != nil {
		t.Fatalf("cascade delete: %v", err)
	}
	if n := countFiles(t, storageDir); n != 0 {
		t.Fatalf("files after cascade = %d, want 0", n)
	}
}

func TestAutoBackupRecordsAndTrims(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, func(cfg *Config) {
		cfg.AutoBackup = true
		cfg.AutoBackupKeep = 2
	})

	if _, err := a.CreateCompany(ctx, "Minera Norte"); err != nil {
		t.Fatalf("create company: %v", err)
	}
	if _, err := a.CreateCompany(ctx, "Minera Sur"); err != nil {
		t.Fatalf("create company: %v", err)
	}
	if _, err := a.CreateCompany(ctx, "Minera Este"); err != nil {
		t.Fatalf("create company: %v", err)
	}

	recs, err := a.ListHistory(domain.ExportAutoBackup)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("auto-backups = %d, want retention limit 2", len(recs))
	}
	for _, rec := range recs {
		if rec.Tag != "company_create" {
			t.Fatalf("tag = %q, want company_create", rec.Tag)
		}
	}
}

func TestBackupRestoreThroughApp(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, nil)
	_, w := seedWorkerWithFaena(t, a)
	if _, err := a.UploadDocument(ctx, DocumentUpload{
		OwnerKind: domain.OwnerWorker, OwnerID: w.ID, TypeCode: "IRL",
		Filename: "irl.pdf", Body: strings.NewReader("irl-pdf"), Size: 7,
	}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	archive, rec, err := a.Backup(ctx, snapshot.KindFull)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if rec.Kind != domain.ExportFullBackup || rec.SizeBytes != int64(len(archive)) {
		t.Fatalf("record = %+v", rec)
	}

	// Restore into a fresh app instance.
	b, _ := newTestApp(t, nil)
	result, err := b.Restore(ctx, archive)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !result.Recorded {
		t.Fatalf("restore not recorded: %+v", result)
	}
	workers, err := b.ListWorkers("")
	if err != nil || len(workers) != 1 {
		t.Fatalf("restored workers = %v, err=%v", workers, err)
	}
	docs, err := b.ListDocuments(domain.OwnerWorker, workers[0].ID)
	if err != nil || len(docs) != 1 {
		t.Fatalf("restored docs = %v, err=%v", docs, err)
	}
	if _, rc, err := b.OpenDocument(ctx, docs[0].ID); err != nil {
		t.Fatalf("restored file: %v", err)
	} else {
		rc.Close()
	}

	events, err := b.ListHistory(domain.ExportRestore)
	if err != nil || len(events) != 1 {
		t.Fatalf("restore events = %v, err=%v", events, err)
	}
}

func TestComplianceDashboard(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, nil)
	f, w := seedWorkerWithFaena(t, a)

	if _, err := a.UploadDocument(ctx, DocumentUpload{
		OwnerKind: domain.OwnerWorker, OwnerID: w.ID, TypeCode: "CONTRATO_TRABAJO",
		Filename: "c.pdf", Body: strings.NewReader("pdf"), Size: 3,
	}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	dash, err := a.ComplianceDashboard()
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if dash.Workers.Owners != 1 || dash.Workers.Compliant != 0 {
		t.Fatalf("worker summary = %+v", dash.Workers)
	}
	if len(dash.Faenas) != 1 || dash.Faenas[0].FaenaID != f.ID {
		t.Fatalf("faena rows = %+v", dash.Faenas)
	}
	if dash.Faenas[0].TotalMissing == 0 {
		t.Fatalf("expected pending documents for the seeded worker")
	}
}
