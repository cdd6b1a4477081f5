package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

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

func TestRecordStoresArchiveAndLedgerRow(t *testing.T) {
	ctx := context.Background()
	st, blobs := newFixture(t)
	r := New(st, blobs)

	rec, err := r.Record(ctx, domain.ExportFaenaZip, "f1", "", []byte("zip-bytes"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.SizeBytes != 9 || rec.SHA256 == "" {
		t.Fatalf("record = %+v, want size and checksum", rec)
	}
	exists, err := blobs.Exists(ctx, rec.BlobRef)
	if err != nil || !exists {
		t.Fatalf("archive not stored: exists=%v err=%v", exists, err)
	}
	recs, err := r.List(domain.ExportFaenaZip)
	if err != nil || len(recs) != 1 {
		t.Fatalf("list = %v, err=%v", recs, err)
	}
	if recs[0].Scope != "f1" {
		t.Fatalf("scope = %q, want f1", recs[0].Scope)
	}
}

// failingLedger wraps a real store but refuses ledger appends.
type failingLedger struct {
	store.Store
}

func (f *failingLedger) AppendExportRecord(domain.ExportRecord) error {
	return fmt.Errorf("disk full")
}

func TestRecordLedgerFailureIsPartial(t *testing.T) {
	ctx := context.Background()
	st, blobs := newFixture(t)
	r := New(&failingLedger{Store: st}, blobs)

	rec, err := r.Record(ctx, domain.ExportDBOnly, "", "manual", []byte("zip-bytes"))
	if !errors.Is(err, domain.ErrPartialFailure) {
		t.Fatalf("err = %v, want ErrPartialFailure", err)
	}
	// The archive must survive: the operation itself succeeded.
	exists, eerr := blobs.Exists(ctx, rec.BlobRef)
	if eerr != nil || !exists {
		t.Fatalf("archive missing after partial failure: exists=%v err=%v", exists, eerr)
	}
}

func TestOpenMissingArchiveIsNotFound(t *testing.T) {
	ctx := context.Background()
	st, blobs := newFixture(t)
	r := New(st, blobs)

	rec, err := r.Record(ctx, domain.ExportMonthZip, "2024-03", "", []byte("zip-bytes"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := blobs.Delete(ctx, rec.BlobRef); err != nil {
		t.Fatalf("delete archive: %v", err)
	}
	// Ledger row survives the archive.
	got, _, err := r.Open(ctx, rec.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got.ID != rec.ID {
		t.Fatalf("record still expected in the ledger, got %+v", got)
	}
}

func TestTrimAutoBackupsKeepsNewest(t *testing.T) {
	ctx := context.Background()
	st, blobs := newFixture(t)

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	r := New(st, blobs, WithKeep(3), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))

	var refs []string
	for i := 0; i < 5; i++ {
		rec, err := r.Record(ctx, domain.ExportAutoBackup, "", "on-save", []byte(fmt.Sprintf("backup-%d", i)))
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		refs = append(refs, rec.BlobRef)
	}
	// A manual export must never be trimmed.
	manual, err := r.Record(ctx, domain.ExportFullBackup, "", "", []byte("manual"))
	if err != nil {
		t.Fatalf("record manual: %v", err)
	}

	trimmed, err := r.TrimAutoBackups(ctx)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if trimmed != 2 {
		t.Fatalf("trimmed = %d, want 2", trimmed)
	}

	remaining, err := r.List(domain.ExportAutoBackup)
	if err != nil || len(remaining) != 3 {
		t.Fatalf("remaining = %d, err=%v, want 3", len(remaining), err)
	}
	for i, ref := range refs {
		exists, err := blobs.Exists(ctx, ref)
		if err != nil {
			t.Fatalf("exists %s: %v", ref, err)
		}
		wantKept := i >= 2
		if exists != wantKept {
			t.Fatalf("backup %d: exists=%v, want %v", i, exists, wantKept)
		}
	}
	if exists, _ := blobs.Exists(ctx, manual.BlobRef); !exists {
		t.Fatalf("manual export was trimmed")
	}
}
