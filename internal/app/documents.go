package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/util"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// DocumentUpload carries one incoming document file.
type DocumentUpload struct {
	OwnerKind  domain.OwnerKind
	OwnerID    string
	TypeCode   string
	Filename   string
	IssueDate  *time.Time
	ExpiryDate *time.Time
	Body       io.Reader
	Size       int64
}

// UploadDocument stores the file and its row. The blob is written first;
// if the row cannot be written afterwards the blob is deleted again, so a
// failed upload leaves nothing behind. Type codes outside the catalog are
// accepted and will surface in compliance reports as unmatched.
func (a *App) UploadDocument(ctx context.Context, up DocumentUpload) (domain.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := validateUpload(up); err != nil {
		return domain.Document{}, err
	}
	if err := a.checkOwner(up.OwnerKind, up.OwnerID); err != nil {
		return domain.Document{}, err
	}

	doc := domain.Document{
		ID:         util.NewID(),
		OwnerKind:  up.OwnerKind,
		OwnerID:    up.OwnerID,
		TypeCode:   strings.TrimSpace(up.TypeCode),
		Filename:   filepath.Base(up.Filename),
		IssueDate:  up.IssueDate,
		ExpiryDate: up.ExpiryDate,
		UploadedAt: time.Now().UTC(),
	}
	doc.BlobRef = blobKey(doc)

	sha, size, err := a.putHashed(ctx, doc.BlobRef, up.Body, up.Size)
	if err != nil {
		return domain.Document{}, err
	}
	doc.SHA256 = sha
	doc.SizeBytes = size

	if err := a.store.CreateDocument(doc); err != nil {
		a.releaseBlobs(ctx, doc.BlobRef)
		return domain.Document{}, err
	}
	a.afterMutation(ctx, "document_upload")
	return doc, nil
}

// ReplaceDocument swaps the stored file of an existing document. The new
// blob is written under a fresh key before the row moves to it, and the old
// blob is deleted only after the row durably points at the new one.
func (a *App) ReplaceDocument(ctx context.Context, id, filename string, body io.Reader, size int64, issueDate, expiryDate *time.Time) (domain.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	if filename != "" {
		doc.Filename = filepath.Base(filename)
	}
	doc.IssueDate = issueDate
	doc.ExpiryDate = expiryDate
	doc.UploadedAt = time.Now().UTC()
	doc.BlobRef = replacementKey(doc)

	sha, written, err := a.putHashed(ctx, doc.BlobRef, body, size)
	if err != nil {
		return domain.Document{}, err
	}
	doc.SHA256 = sha
	doc.SizeBytes = written

	replaced, err := a.store.ReplaceDocumentFile(doc)
	if err != nil {
		a.releaseBlobs(ctx, doc.BlobRef)
		return domain.Document{}, err
	}
	if replaced != doc.BlobRef {
		a.releaseBlobs(ctx, replaced)
	}
	a.afterMutation(ctx, "document_replace")
	return doc, nil
}

func (a *App) GetDocument(id string) (domain.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	return doc, nil
}

func (a *App) ListDocuments(kind domain.OwnerKind, ownerID string) ([]domain.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.ListDocumentsByOwner(kind, ownerID)
}

// OpenDocument returns the stored file of a document for download.
func (a *App) OpenDocument(ctx context.Context, id string) (domain.Document, io.ReadCloser, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, nil, err
	}
	if !ok {
		return domain.Document{}, nil, fmt.Errorf("%w: document %s", domain.ErrNotFound, id)
	}
	rc, err := a.blobs.Get(ctx, doc.BlobRef)
	if err != nil {
		return doc, nil, fmt.Errorf("%w: file for document %s is not available", domain.ErrNotFound, id)
	}
	return doc, rc, nil
}

func (a *App) DeleteDocument(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	released, err := a.store.DeleteDocument(id)
	if err != nil {
		return err
	}
	a.releaseBlobs(ctx, released)
	a.afterMutation(ctx, "document_delete")
	return nil
}

// ---- master contracts ----

// ContractInput carries the writable master contract fields; Body is the
// optional attached file.
type ContractInput struct {
	CompanyID string
	Name      string
	StartDate *time.Time
	EndDate   *time.Time
	Body      io.Reader
	Filename  string
	Size      int64
}

func (a *App) SaveMasterContract(ctx context.Context, id string, in ContractInput) (domain.MasterContract, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	mc := domain.MasterContract{
		ID:        id,
		CompanyID: in.CompanyID,
		Name:      in.Name,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		CreatedAt: time.Now().UTC(),
	}
	if mc.ID == "" {
		mc.ID = util.NewID()
	} else {
		prev, ok, err := a.store.GetMasterContract(mc.ID)
		if err != nil {
			return domain.MasterContract{}, err
		}
		if !ok {
			return domain.MasterContract{}, fmt.Errorf("%w: master contract %s", domain.ErrNotFound, mc.ID)
		}
		mc.BlobRef = prev.BlobRef
		mc.SHA256 = prev.SHA256
		mc.CreatedAt = prev.CreatedAt
	}

	if in.Body != nil {
		name := sanitizeFilename(filepath.Base(in.Filename))
		if name == "" {
			name = "contrato"
		}
		mc.BlobRef = path.Join("contract", "CONTRATO_MARCO", mc.ID, name)
		sha, _, err := a.putHashed(ctx, mc.BlobRef, in.Body, in.Size)
		if err != nil {
			return domain.MasterContract{}, err
		}
		mc.SHA256 = sha
	}

	replaced, err := a.store.SaveMasterContract(mc)
	if err != nil {
		if in.Body != nil {
			a.releaseBlobs(ctx, mc.BlobRef)
		}
		return domain.MasterContract{}, err
	}
	if replaced != "" && replaced != mc.BlobRef {
		a.releaseBlobs(ctx, replaced)
	}
	a.afterMutation(ctx, "contract_save")
	return mc, nil
}

func (a *App) ListMasterContracts(companyID string) ([]domain.MasterContract, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.ListMasterContractsByCompany(companyID)
}

func (a *App) OpenMasterContract(ctx context.Context, id string) (domain.MasterContract, io.ReadCloser, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	mc, ok, err := a.store.GetMasterContract(id)
	if err != nil {
		return domain.MasterContract{}, nil, err
	}
	if !ok || mc.BlobRef == "" {
		return domain.MasterContract{}, nil, fmt.Errorf("%w: master contract file %s", domain.ErrNotFound, id)
	}
	rc, err := a.blobs.Get(ctx, mc.BlobRef)
	if err != nil {
		return mc, nil, fmt.Errorf("%w: file for master contract %s is not available", domain.ErrNotFound, id)
	}
	return mc, rc, nil
}

func (a *App) DeleteMasterContract(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	released, err := a.store.DeleteMasterContract(id)
	if err != nil {
		return err
	}
	a.releaseBlobs(ctx, released)
	a.afterMutation(ctx, "contract_delete")
	return nil
}

// ---- helpers ----

func validateUpload(up DocumentUpload) error {
	switch up.OwnerKind {
	case domain.OwnerWorker, domain.OwnerFaena, domain.OwnerCompany:
	default:
		return fmt.Errorf("%w: unknown owner kind %q", domain.ErrValidation, up.OwnerKind)
	}
	if strings.TrimSpace(up.TypeCode) == "" {
		return fmt.Errorf("%w: document type is required", domain.ErrValidation)
	}
	if strings.TrimSpace(up.Filename) == "" {
		return fmt.Errorf("%w: filename is required", domain.ErrValidation)
	}
	return nil
}

func (a *App) checkOwner(kind domain.OwnerKind, ownerID string) error {
	var ok bool
	var err error
	switch kind {
	case domain.OwnerWorker:
		_, ok, err = a.store.GetWorker(ownerID)
	case domain.OwnerFaena:
		_, ok, err = a.store.GetFaena(ownerID)
	case domain.OwnerCompany:
		_, ok, err = a.store.GetCompany(ownerID)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, kind, ownerID)
	}
	return nil
}

// putHashed streams the body into the blob store while hashing it, and
// returns the checksum and byte count.
func (a *App) putHashed(ctx context.Context, key string, body io.Reader, size int64) (string, int64, error) {
	h := sha256.New()
	counted := &countingReader{r: io.TeeReader(body, h)}
	if err := a.blobs.Put(ctx, key, counted, size); err != nil {
		return "", 0, fmt.Errorf("save file: %w: %v", domain.ErrStorage, err)
	}
	return hex.EncodeToString(h.Sum(nil)), counted.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// blobKey builds the canonical storage key of a document file. The same
// layout is used inside bundle file sections, so restore can relink files
// by convention.
func blobKey(doc domain.Document) string {
	name := sanitizeFilename(doc.Filename)
	if name == "" {
		name = "document"
	}
	return path.Join(string(doc.OwnerKind), doc.TypeCode, doc.OwnerID, doc.ID+"_"+name)
}

// replacementKey is blobKey plus a per-upload marker. A re-upload under the
// same filename would otherwise resolve to the key the live row still points
// at, and a failed replace would then delete the only copy of the old file.
func replacementKey(doc domain.Document) string {
	name := sanitizeFilename(doc.Filename)
	if name == "" {
		name = "document"
	}
	return path.Join(string(doc.OwnerKind), doc.TypeCode, doc.OwnerID, doc.ID+"_"+util.NewID()+"_"+name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
