package compliance

import (
	"testing"
	"time"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/catalog"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// fakeSource is an in-memory Source for evaluator tests.
type fakeSource struct {
	docs      map[string][]domain.Document // ownerKind/ownerID
	workers   []domain.Worker
	byFaena   map[string][]domain.Worker
	faenas    []domain.Faena
	companies []domain.Company
}

func (f *fakeSource) ListDocumentsByOwner(kind domain.OwnerKind, ownerID string) ([]domain.Document, error) {
	return f.docs[string(kind)+"/"+ownerID], nil
}
func (f *fakeSource) ListWorkers() ([]domain.Worker, error) { return f.workers, nil }
func (f *fakeSource) ListWorkersByFaena(faenaID string) ([]domain.Worker, error) {
	return f.byFaena[faenaID], nil
}
func (f *fakeSource) ListFaenas() ([]domain.Faena, error)      { return f.faenas, nil }
func (f *fakeSource) ListCompanies() ([]domain.Company, error) { return f.companies, nil }

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.TypeDefinition{
		{OwnerKind: domain.OwnerWorker, Code: "CONTRATO_TRABAJO", Mandatory: true},
		{OwnerKind: domain.OwnerWorker, Code: "IRL", Mandatory: true},
		{OwnerKind: domain.OwnerWorker, Code: "EXAMEN_MEDICO", Mandatory: true, HasExpiry: true},
		{OwnerKind: domain.OwnerFaena, Code: "CONTRATO_FAENA", Mandatory: true},
		{OwnerKind: domain.OwnerFaena, Code: "CERT_SEGURIDAD", Mandatory: true},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func fixedClock(t *testing.T, day string) func() time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", day)
	if err != nil {
		t.Fatalf("parse clock: %v", err)
	}
	return func() time.Time { return ts }
}

func datePtr(t *testing.T, day string) *time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", day)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	return &ts
}

func TestEvaluateMissingIsRequiredMinusPresent(t *testing.T) {
	src := &fakeSource{docs: map[string][]domain.Document{
		"worker/w1": {
			{ID: "d1", OwnerKind: domain.OwnerWorker, OwnerID: "w1", TypeCode: "CONTRATO_TRABAJO", UploadedAt: time.Now()},
		},
	}}
	e := New(testCatalog(t))

	report, err := e.Evaluate(src, domain.OwnerWorker, "w1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	missing := report.Missing()
	if len(missing) != 2 || missing[0] != "IRL" || missing[1] != "EXAMEN_MEDICO" {
		t.Fatalf("missing = %v, want [IRL EXAMEN_MEDICO]", missing)
	}
	if report.Compliant() {
		t.Fatalf("report with missing docs must not be compliant")
	}
}

func TestEvaluateExpiredOneDayOverdue(t *testing.T) {
	src := &fakeSource{docs: map[string][]domain.Document{
		"worker/w1": {
			{ID: "d1", OwnerKind: domain.OwnerWorker, OwnerID: "w1", TypeCode: "CONTRATO_TRABAJO", UploadedAt: time.Now()},
			{ID: "d2", OwnerKind: domain.OwnerWorker, OwnerID: "w1", TypeCode: "IRL", UploadedAt: time.Now()},
			{ID: "d3", OwnerKind: domain.OwnerWorker, OwnerID: "w1", TypeCode: "EXAMEN_MEDICO",
				ExpiryDate: datePtr(t, "2024-05-14"), UploadedAt: time.Now()},
		},
	}}
	e := New(testCatalog(t), WithClock(fixedClock(t, "2024-05-15")))

	report, err := e.Evaluate(src, domain.OwnerWorker, "w1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var exam *Obligation
	for i := range report.Obligations {
		if report.Obligations[i].TypeCode == "EXAMEN_MEDICO" {
			exam = &report.Obligations[i]
		}
	}
	if exam == nil {
		t.Fatalf("EXAMEN_MEDICO obligation not reported")
	}
	if exam.Status != StatusExpired {
		t.Fatalf("status = %s, want expired (not missing, not satisfied)", exam.Status)
	}
	if exam.DaysOverdue != 1 {
		t.Fatalf("daysOverdue = %d, want 1", exam.DaysOverdue)
	}
}

func TestEvaluateExpiringWithinWindow(t *testing.T) {
	src := &fakeSource{docs: map[string][]domain.Document{
		"worker/w1": {
			{ID: "d1", TypeCode: "EXAMEN_MEDICO", ExpiryDate: datePtr(t, "2024-05-25"), UploadedAt: time.Now()},
		},
	}}
	e := New(testCatalog(t), WithClock(fixedClock(t, "2024-05-15")), WithWarnWindow(14))

	report, err := e.Evaluate(src, domain.OwnerWorker, "w1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, o := range report.Obligations {
		if o.TypeCode != "EXAMEN_MEDICO" {
			continue
		}
		if o.Status != StatusExpiring {
			t.Fatalf("status = %s, want expiring", o.Status)
		}
		if o.DaysLeft != 10 {
			t.Fatalf("daysLeft = %d, want 10", o.DaysLeft)
		}
	}
}

func TestEvaluateUnmatchedNeverCountsAgainstCompliance(t *testing.T) {
	src := &fakeSource{docs: map[string][]domain.Document{
		"faena/f1": {
			{ID: "d1", TypeCode: "CONTRATO_FAENA", UploadedAt: time.Now()},
			{ID: "d2", TypeCode: "MISC", UploadedAt: time.Now()},
		},
	}}
	e := New(testCatalog(t))

	report, err := e.Evaluate(src, domain.OwnerFaena, "f1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	missing := report.Missing()
	if len(missing) != 1 || missing[0] != "CERT_SEGURIDAD" {
		t.Fatalf("missing = %v, want [CERT_SEGURIDAD]", missing)
	}
	if len(report.Unmatched) != 1 || report.Unmatched[0].TypeCode != "MISC" {
		t.Fatalf("unmatched = %v, want the MISC document", report.Unmatched)
	}
}

func TestEvaluateDuplicateTypesMostRecentWins(t *testing.T) {
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{docs: map[string][]domain.Document{
		"worker/w1": {
			{ID: "old", TypeCode: "EXAMEN_MEDICO", ExpiryDate: datePtr(t, "2023-01-01"), UploadedAt: old},
			{ID: "new", TypeCode: "EXAMEN_MEDICO", ExpiryDate: datePtr(t, "2025-01-01"), UploadedAt: recent},
		},
	}}
	e := New(testCatalog(t), WithClock(fixedClock(t, "2024-05-15")))

	report, err := e.Evaluate(src, domain.OwnerWorker, "w1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, o := range report.Obligations {
		if o.TypeCode == "EXAMEN_MEDICO" {
			if o.Status != StatusSatisfied {
				t.Fatalf("status = %s, want satisfied from the most recent upload", o.Status)
			}
			if o.DocumentID != "new" {
				t.Fatalf("documentID = %s, want the newer upload", o.DocumentID)
			}
		}
	}
}

func TestWorkerReportIndependentOfFaenaScope(t *testing.T) {
	w := domain.Worker{ID: "w1", RUT: "12345678-9"}
	docs := map[string][]domain.Document{
		"worker/w1": {
			{ID: "d1", TypeCode: "CONTRATO_TRABAJO", UploadedAt: time.Now()},
		},
	}
	src := &fakeSource{
		docs:    docs,
		workers: []domain.Worker{w},
		byFaena: map[string][]domain.Worker{"f1": {w}, "f2": {w}},
	}
	e := New(testCatalog(t))

	all, err := e.EvaluateWorkers(src, "")
	if err != nil {
		t.Fatalf("evaluate all: %v", err)
	}
	scoped, err := e.EvaluateWorkers(src, "f1")
	if err != nil {
		t.Fatalf("evaluate scoped: %v", err)
	}
	if len(all) != 1 || len(scoped) != 1 {
		t.Fatalf("report counts = %d/%d, want 1/1", len(all), len(scoped))
	}
	if got, want := len(scoped[0].Missing()), len(all[0].Missing()); got != want {
		t.Fatalf("scoped missing = %d, all missing = %d; scope must not change the worker's report", got, want)
	}
}

func TestSummarizeAndProgress(t *testing.T) {
	w1 := domain.Worker{ID: "w1", RUT: "1-9"}
	w2 := domain.Worker{ID: "w2", RUT: "2-7"}
	src := &fakeSource{
		docs: map[string][]domain.Document{
			"worker/w1": {
				{ID: "d1", TypeCode: "CONTRATO_TRABAJO", UploadedAt: time.Now()},
				{ID: "d2", TypeCode: "IRL", UploadedAt: time.Now()},
				{ID: "d3", TypeCode: "EXAMEN_MEDICO", UploadedAt: time.Now()},
			},
			"worker/w2": {},
		},
		byFaena: map[string][]domain.Worker{"f1": {w1, w2}},
	}
	e := New(testCatalog(t))

	reports, err := e.EvaluateWorkers(src, "f1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	row := Progress("f1", reports)
	if row.Workers != 2 || row.WorkersOK != 1 {
		t.Fatalf("progress = %+v, want 2 workers, 1 ok", row)
	}
	if row.TotalMissing != 3 {
		t.Fatalf("totalMissing = %d, want 3 (all of w2's requirements)", row.TotalMissing)
	}
	if row.CoveragePct != 50 {
		t.Fatalf("coverage = %.1f, want 50.0", row.CoveragePct)
	}

	s := Summarize(reports)
	if s.Owners != 2 || s.Compliant != 1 || s.Missing != 3 {
		t.Fatalf("summary = %+v, want 2 owners, 1 compliant, 3 missing", s)
	}
}
