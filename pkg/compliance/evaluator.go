package compliance

import (
	"fmt"
	"time"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/catalog"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// Status classifies one document obligation for one owner.
type Status string

const (
	StatusSatisfied Status = "satisfied"
	StatusMissing   Status = "missing"
	StatusExpiring  Status = "expiring"
	StatusExpired   Status = "expired"
)

// Obligation is the evaluated state of one required document type.
type Obligation struct {
	TypeCode    string  `json:"typeCode"`
	DisplayName string  `json:"displayName"`
	Status      Status  `json:"status"`
	DaysLeft    int     `json:"daysLeft,omitempty"`
	DaysOverdue int     `json:"daysOverdue,omitempty"`
	DocumentID  string  `json:"documentId,omitempty"`
	ExpiryDate  *string `json:"expiryDate,omitempty"`
}

// Report is the per-owner compliance breakdown. Unmatched lists documents
// whose type is absent from the catalog for this owner kind: visible for
// audit, never counted against compliance.
type Report struct {
	OwnerKind   domain.OwnerKind  `json:"ownerKind"`
	OwnerID     string            `json:"ownerId"`
	Obligations []Obligation      `json:"obligations"`
	Unmatched   []domain.Document `json:"unmatched,omitempty"`
}

// Missing returns the codes of required types with no document at all.
func (r Report) Missing() []string {
	var out []string
	for _, o := range r.Obligations {
		if o.Status == StatusMissing {
			out = append(out, o.TypeCode)
		}
	}
	return out
}

// Compliant reports whether every obligation is satisfied and none expired.
func (r Report) Compliant() bool {
	for _, o := range r.Obligations {
		if o.Status == StatusMissing || o.Status == StatusExpired {
			return false
		}
	}
	return true
}

// Source is the read-side slice of the entity store the evaluator needs.
type Source interface {
	ListDocumentsByOwner(kind domain.OwnerKind, ownerID string) ([]domain.Document, error)
	ListWorkers() ([]domain.Worker, error)
	ListWorkersByFaena(faenaID string) ([]domain.Worker, error)
	ListFaenas() ([]domain.Faena, error)
	ListCompanies() ([]domain.Company, error)
}

// Evaluator computes compliance reports by joining store state against the
// catalog. It holds no cache: every call reflects current store state.
type Evaluator struct {
	catalog  *catalog.Catalog
	warnDays int
	now      func() time.Time
}

// Option tweaks evaluator construction.
type Option func(*Evaluator)

// WithWarnWindow sets how many days before expiry a document is flagged as
// expiring-soon. Default 30.
func WithWarnWindow(days int) Option {
	return func(e *Evaluator) { e.warnDays = days }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New constructs an evaluator over an immutable catalog.
func New(cat *catalog.Catalog, opts ...Option) *Evaluator {
	e := &Evaluator{catalog: cat, warnDays: 30, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate computes the compliance report for one owner. Duplicate documents
// of the same type must not break evaluation: the most recent upload wins.
func (e *Evaluator) Evaluate(src Source, kind domain.OwnerKind, ownerID string) (Report, error) {
	docs, err := src.ListDocumentsByOwner(kind, ownerID)
	if err != nil {
		return Report{}, fmt.Errorf("evaluate %s %s: %w", kind, ownerID, err)
	}

	latest := make(map[string]domain.Document)
	for _, d := range docs {
		if prev, ok := latest[d.TypeCode]; !ok || d.UploadedAt.After(prev.UploadedAt) {
			latest[d.TypeCode] = d
		}
	}

	report := Report{OwnerKind: kind, OwnerID: ownerID}
	required := e.catalog.Required(kind)
	today := dateOf(e.now().UTC())
	for _, def := range required {
		doc, ok := latest[def.Code]
		if !ok {
			report.Obligations = append(report.Obligations, Obligation{
				TypeCode:    def.Code,
				DisplayName: def.DisplayName,
				Status:      StatusMissing,
			})
			continue
		}
		report.Obligations = append(report.Obligations, e.obligationFor(def, doc, today))
	}

	for _, d := range docs {
		if _, known := e.catalog.Lookup(kind, d.TypeCode); !known {
			report.Unmatched = append(report.Unmatched, d)
		}
	}
	return report, nil
}

func (e *Evaluator) obligationFor(def catalog.TypeDefinition, doc domain.Document, today time.Time) Obligation {
	ob := Obligation{
		TypeCode:    def.Code,
		DisplayName: def.DisplayName,
		Status:      StatusSatisfied,
		DocumentID:  doc.ID,
	}
	if !def.HasExpiry || doc.ExpiryDate == nil {
		return ob
	}
	expiry := dateOf(doc.ExpiryDate.UTC())
	formatted := expiry.Format("2006-01-02")
	ob.ExpiryDate = &formatted
	days := int(expiry.Sub(today).Hours() / 24)
	switch {
	case days < 0:
		ob.Status = StatusExpired
		ob.DaysOverdue = -days
	case days < e.warnDays:
		ob.Status = StatusExpiring
		ob.DaysLeft = days
	}
	return ob
}

// EvaluateWorkers evaluates every worker in scope. faenaID narrows the
// worker set to one faena; an empty faenaID means all workers. The
// per-worker report is always computed against the worker's own documents:
// the scope only changes which workers are included.
func (e *Evaluator) EvaluateWorkers(src Source, faenaID string) ([]Report, error) {
	var (
		workers []domain.Worker
		err     error
	)
	if faenaID == "" {
		workers, err = src.ListWorkers()
	} else {
		workers, err = src.ListWorkersByFaena(faenaID)
	}
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	reports := make([]Report, 0, len(workers))
	for _, w := range workers {
		report, err := e.Evaluate(src, domain.OwnerWorker, w.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// EvaluateFaenas evaluates every faena's own documents.
func (e *Evaluator) EvaluateFaenas(src Source) ([]Report, error) {
	faenas, err := src.ListFaenas()
	if err != nil {
		return nil, fmt.Errorf("list faenas: %w", err)
	}
	reports := make([]Report, 0, len(faenas))
	for _, f := range faenas {
		report, err := e.Evaluate(src, domain.OwnerFaena, f.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// EvaluateCompanies evaluates every company's documents.
func (e *Evaluator) EvaluateCompanies(src Source) ([]Report, error) {
	companies, err := src.ListCompanies()
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	reports := make([]Report, 0, len(companies))
	for _, c := range companies {
		report, err := e.Evaluate(src, domain.OwnerCompany, c.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
