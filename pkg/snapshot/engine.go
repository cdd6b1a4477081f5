package snapshot

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/storage"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/store"
)

// Engine builds portable bundles from the entity store plus blob store and
// restores them. Restore is all-or-nothing from the caller's point of view:
// validation and file preflight run against staged data before any live
// mutation, and a failure while materializing files rolls the entity store
// back to its pre-restore image.
type Engine struct {
	store       store.Store
	blobs       storage.BlobStore
	strictFiles bool
	now         func() time.Time
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithStrictFiles makes restore treat files referenced by a db-only bundle
// (or missing from a legacy bundle) as hard failures instead of warnings.
func WithStrictFiles(strict bool) Option {
	return func(e *Engine) { e.strictFiles = strict }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New constructs a snapshot engine.
func New(st store.Store, blobs storage.BlobStore, opts ...Option) *Engine {
	e := &Engine{store: st, blobs: blobs, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export writes a bundle of the requested kind to w and returns its
// manifest. The dataset is read under one consistent store snapshot; for
// full bundles every referenced blob that exists is copied into the file
// section under its blob key.
func (e *Engine) Export(ctx context.Context, kind BundleKind, w io.Writer) (Manifest, error) {
	if kind != KindFull && kind != KindDBOnly {
		return Manifest{}, fmt.Errorf("%w: unknown bundle kind %q", domain.ErrValidation, kind)
	}
	data, err := e.store.Snapshot()
	if err != nil {
		return Manifest{}, fmt.Errorf("snapshot store: %w", err)
	}

	manifest := Manifest{
		Version:   CurrentVersion,
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: e.now().UTC(),
		Counts:    data.Counts(),
	}

	zw := zip.NewWriter(w)
	if err := writeJSONEntry(zw, manifestPath, manifest); err != nil {
		return Manifest{}, err
	}
	if err := writeJSONEntry(zw, dataPath, bundleDataset(data)); err != nil {
		return Manifest{}, err
	}
	if kind == KindFull {
		for _, ref := range referencedBlobs(data) {
			if err := e.copyBlobEntry(ctx, zw, ref); err != nil {
				return Manifest{}, err
			}
		}
	}
	if err := zw.Close(); err != nil {
		return Manifest{}, fmt.Errorf("finalize bundle: %w", err)
	}
	return manifest, nil
}

// copyBlobEntry streams one blob into the bundle's file section. Blobs that
// no longer exist are skipped: the row still travels in the dataset and the
// gap surfaces on restore, matching how exports have always behaved.
func (e *Engine) copyBlobEntry(ctx context.Context, zw *zip.Writer, ref string) error {
	rc, err := e.blobs.Get(ctx, ref)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return fmt.Errorf("read blob %s: %w: %v", ref, domain.ErrStorage, err)
	}
	defer rc.Close()
	entry, err := zw.Create(filesPrefix + ref)
	if err != nil {
		return fmt.Errorf("create bundle entry for %s: %w", ref, err)
	}
	if _, err := io.Copy(entry, rc); err != nil {
		return fmt.Errorf("copy blob %s into bundle: %w", ref, err)
	}
	return nil
}

// Restore applies a bundle. Steps, in order: detect shape, decode to a
// staged dataset, validate referential integrity, preflight the file
// section, replace live entity state, materialize files. A materialization
// failure restores the pre-image dataset before returning.
func (e *Engine) Restore(ctx context.Context, r io.ReaderAt, size int64) (RestoreResult, error) {
	result := RestoreResult{StartedAt: e.now().UTC()}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return result, fmt.Errorf("%w: not a readable ZIP archive: %v", domain.ErrFormat, err)
	}

	shape := Detect(zr)
	result.Shape = shape

	var staged stagedBundle
	switch shape {
	case ShapeCurrent:
		staged, err = decodeCurrent(zr)
	case ShapeLegacyDB:
		staged, err = decodeLegacy(zr)
	default:
		return result, describeUnknown(zr)
	}
	if err != nil {
		return result, err
	}
	result.Kind = staged.kind
	result.Counts = staged.data.Counts()

	if err := validateIntegrity(staged.data); err != nil {
		return result, err
	}

	warnings, err := e.preflightFiles(staged)
	if err != nil {
		return result, err
	}
	result.Warnings = warnings

	preImage, err := e.store.Snapshot()
	if err != nil {
		return result, fmt.Errorf("read pre-restore image: %w", err)
	}
	if err := e.store.ReplaceAll(staged.data); err != nil {
		return result, fmt.Errorf("replace entity state: %w", err)
	}

	if staged.kind == KindFull {
		materialized, err := e.materializeFiles(ctx, staged)
		if err != nil {
			if rbErr := e.store.ReplaceAll(preImage); rbErr != nil {
				return result, fmt.Errorf("materialize files: %w (rollback also failed: %v)", err, rbErr)
			}
			return result, fmt.Errorf("materialize files: %w", err)
		}
		result.FilesOut = materialized
	}
	return result, nil
}

// preflightFiles verifies, before any live mutation, that every blob the
// staged dataset references can be produced. Full bundles must carry the
// file inside the archive; db-only bundles defer to the existing file store,
// where gaps are warnings unless strict mode is on.
func (e *Engine) preflightFiles(staged stagedBundle) ([]string, error) {
	var warnings []string
	for _, ref := range referencedBlobs(staged.data) {
		if staged.kind == KindFull {
			if _, ok := staged.files[ref]; !ok {
				if staged.shape == ShapeLegacyDB && !e.strictFiles {
					warnings = append(warnings, fmt.Sprintf("bundle has no file for %s", ref))
					continue
				}
				return nil, fmt.Errorf("%w: dataset references %s but the bundle file section has no such entry", domain.ErrIntegrity, ref)
			}
			continue
		}
		ok, err := e.blobs.Exists(context.Background(), ref)
		if err != nil {
			return nil, fmt.Errorf("check blob %s: %w: %v", ref, domain.ErrStorage, err)
		}
		if !ok {
			if e.strictFiles {
				return nil, fmt.Errorf("%w: db-only bundle references missing file %s", domain.ErrIntegrity, ref)
			}
			warnings = append(warnings, fmt.Sprintf("file %s is not present in the file store", ref))
		}
	}
	return warnings, nil
}

func (e *Engine) materializeFiles(ctx context.Context, staged stagedBundle) (int, error) {
	materialized := 0
	for ref, entry := range staged.files {
		rc, err := entry.Open()
		if err != nil {
			return materialized, fmt.Errorf("open bundle entry %s: %w: %v", entry.Name, domain.ErrFormat, err)
		}
		err = e.blobs.Put(ctx, ref, rc, -1)
		if cerr := rc.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return materialized, fmt.Errorf("write blob %s: %w: %v", ref, domain.ErrStorage, err)
		}
		materialized++
	}
	return materialized, nil
}

// stagedBundle is decoded bundle content held before any live mutation.
type stagedBundle struct {
	shape Shape
	kind  BundleKind
	data  domain.Dataset
	files map[string]*zip.File // blob ref -> archive entry
}

func decodeCurrent(zr *zip.Reader) (stagedBundle, error) {
	staged := stagedBundle{shape: ShapeCurrent, files: map[string]*zip.File{}}

	var manifest Manifest
	if err := readJSONEntry(zr, manifestPath, &manifest); err != nil {
		return staged, err
	}
	if manifest.Version > CurrentVersion {
		return staged, fmt.Errorf("%w: bundle version %d is newer than supported version %d", domain.ErrFormat, manifest.Version, CurrentVersion)
	}
	staged.kind = manifest.Kind
	if staged.kind == "" {
		staged.kind = KindFull
	}

	var data bundleData
	if err := readJSONEntry(zr, dataPath, &data); err != nil {
		return staged, err
	}
	staged.data = data.toDataset()

	for _, f := range zr.File {
		if rest, ok := strings.CutPrefix(f.Name, filesPrefix); ok && rest != "" && !f.FileInfo().IsDir() {
			staged.files[rest] = f
		}
	}
	return staged, nil
}

func validateIntegrity(data domain.Dataset) error {
	companies := make(map[string]bool, len(data.Companies))
	for _, c := range data.Companies {
		companies[c.ID] = true
	}
	contracts := make(map[string]bool, len(data.Contracts))
	for _, c := range data.Contracts {
		if !companies[c.CompanyID] {
			return fmt.Errorf("%w: master contract %s references missing company %s", domain.ErrIntegrity, c.ID, c.CompanyID)
		}
		contracts[c.ID] = true
	}
	faenas := make(map[string]bool, len(data.Faenas))
	for _, f := range data.Faenas {
		if !companies[f.CompanyID] {
			return fmt.Errorf("%w: faena %s references missing company %s", domain.ErrIntegrity, f.ID, f.CompanyID)
		}
		if f.MasterContractID != "" && !contracts[f.MasterContractID] {
			return fmt.Errorf("%w: faena %s references missing master contract %s", domain.ErrIntegrity, f.ID, f.MasterContractID)
		}
		faenas[f.ID] = true
	}
	workers := make(map[string]bool, len(data.Workers))
	for _, w := range data.Workers {
		workers[w.ID] = true
	}
	for _, a := range data.Assignments {
		if !workers[a.WorkerID] {
			return fmt.Errorf("%w: assignment %s references missing worker %s", domain.ErrIntegrity, a.ID, a.WorkerID)
		}
		if !faenas[a.FaenaID] {
			return fmt.Errorf("%w: assignment %s references missing faena %s", domain.ErrIntegrity, a.ID, a.FaenaID)
		}
	}
	for _, d := range data.Documents {
		var ok bool
		switch d.OwnerKind {
		case domain.OwnerWorker:
			ok = workers[d.OwnerID]
		case domain.OwnerFaena:
			ok = faenas[d.OwnerID]
		case domain.OwnerCompany:
			ok = companies[d.OwnerID]
		}
		if !ok {
			return fmt.Errorf("%w: document %s references missing %s %s", domain.ErrIntegrity, d.ID, d.OwnerKind, d.OwnerID)
		}
	}
	return nil
}

// referencedBlobs lists every blob the dataset points at: document files and
// master-contract attachments. Export-history blobs are deliberately left
// out so bundles do not nest earlier bundles.
func referencedBlobs(data domain.Dataset) []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(ref string) {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	for _, d := range data.Documents {
		add(d.BlobRef)
	}
	for _, c := range data.Contracts {
		add(c.BlobRef)
	}
	return refs
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	entry, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	enc := json.NewEncoder(entry)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}

func readJSONEntry(zr *zip.Reader, name string, v any) error {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: cannot open %s: %v", domain.ErrFormat, name, err)
		}
		defer rc.Close()
		if err := json.NewDecoder(rc).Decode(v); err != nil {
			return fmt.Errorf("%w: cannot parse %s: %v", domain.ErrFormat, name, err)
		}
		return nil
	}
	return fmt.Errorf("%w: expected %s, not found in archive", domain.ErrFormat, name)
}

func isNotExist(err error) bool {
	return errors.Is(err, storage.ErrNotExist)
}
