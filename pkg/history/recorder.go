package history

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/util"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/storage"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/store"
)

// DefaultKeepAutoBackups is how many automatic backups the retention pass
// keeps when no limit is configured.
const DefaultKeepAutoBackups = 20

// Recorder appends entries to the append-only export ledger and stores the
// produced archives. A ledger entry is written only after its archive is
// durably stored; when the ledger write itself fails the operation has
// still succeeded, and the caller gets ErrPartialFailure to say so.
type Recorder struct {
	store store.Store
	blobs storage.BlobStore
	keep  int
	now   func() time.Time
	newID func() string
}

// Option tweaks recorder construction.
type Option func(*Recorder)

// WithKeep overrides the auto-backup retention limit.
func WithKeep(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.keep = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// New constructs a recorder.
func New(st store.Store, blobs storage.BlobStore, opts ...Option) *Recorder {
	r := &Recorder{
		store: st,
		blobs: blobs,
		keep:  DefaultKeepAutoBackups,
		now:   time.Now,
		newID: util.NewID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores an archive and appends its ledger entry. Scope carries the
// faena id or year-month the archive covers; tag is free-form (auto-backup
// reason). The returned record is valid even when err is ErrPartialFailure:
// the archive was stored, only the ledger row is missing.
func (r *Recorder) Record(ctx context.Context, kind domain.ExportKind, scope, tag string, payload []byte) (domain.ExportRecord, error) {
	sum := sha256.Sum256(payload)
	now := r.now().UTC()
	rec := domain.ExportRecord{
		ID:        r.newID(),
		Kind:      kind,
		Scope:     scope,
		Tag:       tag,
		SHA256:    hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(payload)),
		CreatedAt: now,
	}
	rec.BlobRef = fmt.Sprintf("exports/%s/%s_%s_%s.zip",
		kind, util.SafeName(scope+"_"+tag), now.Format("20060102_150405"), rec.ID)

	if err := r.blobs.Put(ctx, rec.BlobRef, bytes.NewReader(payload), rec.SizeBytes); err != nil {
		return domain.ExportRecord{}, fmt.Errorf("store export archive: %w: %v", domain.ErrStorage, err)
	}
	if err := r.store.AppendExportRecord(rec); err != nil {
		return rec, fmt.Errorf("%w: export %s stored as %s but not recorded: %v",
			domain.ErrPartialFailure, kind, rec.BlobRef, err)
	}
	return rec, nil
}

// RecordEvent appends a ledger entry with no archive, for operations that
// leave no file of their own (restores).
func (r *Recorder) RecordEvent(kind domain.ExportKind, scope, tag string) (domain.ExportRecord, error) {
	rec := domain.ExportRecord{
		ID:        r.newID(),
		Kind:      kind,
		Scope:     scope,
		Tag:       tag,
		CreatedAt: r.now().UTC(),
	}
	if err := r.store.AppendExportRecord(rec); err != nil {
		return rec, fmt.Errorf("%w: %s applied but not recorded: %v", domain.ErrPartialFailure, kind, err)
	}
	return rec, nil
}

// List returns ledger entries, newest first, optionally filtered by kind.
func (r *Recorder) List(kinds ...domain.ExportKind) ([]domain.ExportRecord, error) {
	recs, err := r.store.ListExportRecords(kinds...)
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	return recs, nil
}

// Open returns the stored archive of a ledger entry. Entries survive their
// archives; a missing blob reports ErrNotFound rather than ErrStorage.
func (r *Recorder) Open(ctx context.Context, id string) (domain.ExportRecord, []byte, error) {
	recs, err := r.store.ListExportRecords()
	if err != nil {
		return domain.ExportRecord{}, nil, err
	}
	for _, rec := range recs {
		if rec.ID != id {
			continue
		}
		if rec.BlobRef == "" {
			return rec, nil, fmt.Errorf("%w: record %s has no archive", domain.ErrNotFound, id)
		}
		rc, err := r.blobs.Get(ctx, rec.BlobRef)
		if err != nil {
			return rec, nil, fmt.Errorf("%w: archive %s is no longer available", domain.ErrNotFound, rec.BlobRef)
		}
		defer rc.Close()
		payload, err := io.ReadAll(rc)
		if err != nil {
			return rec, nil, fmt.Errorf("read archive %s: %w: %v", rec.BlobRef, domain.ErrStorage, err)
		}
		return rec, payload, nil
	}
	return domain.ExportRecord{}, nil, fmt.Errorf("%w: export record %s", domain.ErrNotFound, id)
}

// TrimAutoBackups deletes the oldest automatic backups beyond the retention
// limit, rows and archives both. Manual exports are never trimmed.
func (r *Recorder) TrimAutoBackups(ctx context.Context) (int, error) {
	recs, err := r.store.ListExportRecords(domain.ExportAutoBackup)
	if err != nil {
		return 0, err
	}
	if len(recs) <= r.keep {
		return 0, nil
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	doomed := recs[r.keep:]

	ids := make([]string, 0, len(doomed))
	for _, rec := range doomed {
		ids = append(ids, rec.ID)
	}
	if err := r.store.DeleteExportRecords(ids); err != nil {
		return 0, fmt.Errorf("trim auto-backup rows: %w", err)
	}
	for _, rec := range doomed {
		if rec.BlobRef == "" {
			continue
		}
		if err := r.blobs.Delete(ctx, rec.BlobRef); err != nil {
			return len(doomed), fmt.Errorf("%w: trimmed %d auto-backups but %s was not deleted: %v",
				domain.ErrPartialFailure, len(doomed), rec.BlobRef, err)
		}
	}
	return len(doomed), nil
}
