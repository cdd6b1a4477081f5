package roster

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/alangarciaapr-svg/CONTROL-GYD/internal/util"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/store"
)

// Rosters arrive as the spreadsheets contractors already keep: RUT and
// NOMBRE columns are mandatory, CARGO / CENTRO_COSTO / EMAIL /
// FECHA_DE_CONTRATO / VIGENCIA_EXAMEN are optional. Header matching is
// forgiving about accents, case, and separators.

// Outcome classifies what the importer did with one spreadsheet row.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeReused   Outcome = "reused"
	OutcomeRejected Outcome = "rejected"
)

// RowResult reports one data row of the import.
type RowResult struct {
	Row      int     `json:"row"`
	RUT      string  `json:"rut,omitempty"`
	WorkerID string  `json:"workerId,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Reason   string  `json:"reason,omitempty"`
	Assigned bool    `json:"assigned,omitempty"`
}

// Summary aggregates an import run.
type Summary struct {
	Rows     int         `json:"rows"`
	Created  int         `json:"created"`
	Updated  int         `json:"updated"`
	Reused   int         `json:"reused"`
	Rejected int         `json:"rejected"`
	Assigned int         `json:"assigned"`
	Results  []RowResult `json:"results"`
}

// Options controls an import run.
type Options struct {
	// Sheet selects the worksheet; empty means the first one.
	Sheet string
	// Overwrite updates existing workers matched by RUT; otherwise their
	// stored data is kept and the row counts as reused.
	Overwrite bool
	// FaenaID, when set, assigns every imported worker to that faena.
	FaenaID   string
	EntryDate time.Time
	FaenaRole string
}

// Importer loads workers from .xlsx rosters and upserts them by RUT.
type Importer struct {
	store store.Store
	newID func() string
}

// New constructs an importer.
func New(st store.Store) *Importer {
	return &Importer{store: st, newID: util.NewID}
}

// Import reads an .xlsx roster and upserts one worker per data row. Rows
// without a usable RUT or name are rejected individually; the rest of the
// file still imports. A malformed file fails as a whole with ErrFormat.
func (im *Importer) Import(r io.Reader, opts Options) (Summary, error) {
	var summary Summary

	f, err := excelize.OpenReader(r)
	if err != nil {
		return summary, fmt.Errorf("%w: cannot read spreadsheet: %v", domain.ErrFormat, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return summary, fmt.Errorf("%w: spreadsheet has no sheets", domain.ErrFormat)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return summary, fmt.Errorf("%w: cannot read sheet %q: %v", domain.ErrFormat, sheet, err)
	}
	if len(rows) == 0 {
		return summary, fmt.Errorf("%w: sheet %q is empty", domain.ErrFormat, sheet)
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		if key := NormCol(h); key != "" {
			if _, taken := cols[key]; !taken {
				cols[key] = i
			}
		}
	}
	if _, ok := cols["rut"]; !ok {
		return summary, fmt.Errorf("%w: missing RUT column", domain.ErrFormat)
	}
	if _, ok := cols["nombre"]; !ok {
		return summary, fmt.Errorf("%w: missing NOMBRE column", domain.ErrFormat)
	}
	contractCol := "fecha_de_contrato"
	if _, ok := cols[contractCol]; !ok {
		contractCol = "fecha_contrato"
	}

	if opts.FaenaID != "" {
		if _, ok, err := im.store.GetFaena(opts.FaenaID); err != nil {
			return summary, err
		} else if !ok {
			return summary, fmt.Errorf("%w: faena %s", domain.ErrNotFound, opts.FaenaID)
		}
	}

	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for n, row := range rows[1:] {
		summary.Rows++
		result := RowResult{Row: n + 2} // 1-based, after the header

		rut := CleanRUT(cell(row, "rut"))
		fullName := cell(row, "nombre")
		switch {
		case rut == "":
			result.Outcome = OutcomeRejected
			result.Reason = "empty RUT"
		case fullName == "":
			result.Outcome = OutcomeRejected
			result.Reason = "empty name"
			result.RUT = rut
		}
		if result.Outcome == OutcomeRejected {
			summary.Rejected++
			summary.Results = append(summary.Results, result)
			continue
		}
		result.RUT = rut

		firstNames, lastNames := SplitFullName(fullName)
		incoming := domain.Worker{
			RUT:          rut,
			FirstNames:   firstNames,
			LastNames:    lastNames,
			Role:         cell(row, "cargo"),
			CostCenter:   cell(row, "centro_costo"),
			Email:        cell(row, "email"),
			ContractDate: parseCellDate(cell(row, contractCol)),
		}

		existing, found, err := im.store.GetWorkerByRUT(rut)
		if err != nil {
			return summary, err
		}
		switch {
		case !found:
			incoming.ID = im.newID()
			if err := im.store.CreateWorker(incoming); err != nil {
				result.Outcome = OutcomeRejected
				result.Reason = err.Error()
				summary.Rejected++
				summary.Results = append(summary.Results, result)
				continue
			}
			result.Outcome = OutcomeCreated
			result.WorkerID = incoming.ID
			summary.Created++
		case opts.Overwrite:
			incoming.ID = existing.ID
			if err := im.store.UpdateWorker(incoming); err != nil {
				return summary, err
			}
			result.Outcome = OutcomeUpdated
			result.WorkerID = existing.ID
			summary.Updated++
		default:
			result.Outcome = OutcomeReused
			result.WorkerID = existing.ID
			summary.Reused++
		}

		if expiry := parseCellDate(cell(row, "vigencia_examen")); expiry != nil {
			if err := im.applyExamExpiry(result.WorkerID, expiry); err != nil {
				return summary, err
			}
		}

		if opts.FaenaID != "" {
			assigned, err := im.assign(result.WorkerID, opts)
			if err != nil {
				return summary, err
			}
			result.Assigned = assigned
			if assigned {
				summary.Assigned++
			}
		}
		summary.Results = append(summary.Results, result)
	}
	return summary, nil
}

const examTypeCode = "EXAMEN_MEDICO"

// applyExamExpiry stamps the roster's exam validity date onto the worker's
// most recent medical exam document. A worker without one has no document
// to annotate, so the date is skipped for that row.
func (im *Importer) applyExamExpiry(workerID string, expiry *time.Time) error {
	docs, err := im.store.ListDocumentsByOwner(domain.OwnerWorker, workerID)
	if err != nil {
		return err
	}
	var exam *domain.Document
	for i, d := range docs {
		if d.TypeCode != examTypeCode {
			continue
		}
		if exam == nil || d.UploadedAt.After(exam.UploadedAt) {
			exam = &docs[i]
		}
	}
	if exam == nil {
		return nil
	}
	exam.ExpiryDate = expiry
	_, err = im.store.ReplaceDocumentFile(*exam)
	return err
}

// assign places the worker at the faena; an existing assignment for the
// pair is kept as-is.
func (im *Importer) assign(workerID string, opts Options) (bool, error) {
	entry := opts.EntryDate
	if entry.IsZero() {
		entry = time.Now().UTC().Truncate(24 * time.Hour)
	}
	err := im.store.CreateAssignment(domain.Assignment{
		ID:        im.newID(),
		FaenaID:   opts.FaenaID,
		WorkerID:  workerID,
		FaenaRole: opts.FaenaRole,
		EntryDate: entry,
		Status:    domain.AssignmentActive,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var accentFold = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ñ", "n",
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormCol normalizes a spreadsheet header: lowercased, accents folded,
// separators collapsed to single underscores.
func NormCol(s string) string {
	s = accentFold.Replace(strings.TrimSpace(s))
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// CleanRUT uppercases a RUT and strips internal spaces; dots and the dash
// are kept as entered.
func CleanRUT(rut string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(rut)), " ", "")
}

// SplitFullName splits a single full-name cell into first and last names
// following local convention: with four or more tokens the last two are the
// surnames, with three or two the last one is.
func SplitFullName(name string) (firstNames, lastNames string) {
	tokens := strings.Fields(name)
	switch {
	case len(tokens) == 0:
		return "", ""
	case len(tokens) >= 4:
		return strings.Join(tokens[:len(tokens)-2], " "), strings.Join(tokens[len(tokens)-2:], " ")
	case len(tokens) >= 2:
		return strings.Join(tokens[:len(tokens)-1], " "), tokens[len(tokens)-1]
	default:
		return tokens[0], ""
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"1/2/06",
	"01-02-06",
	time.RFC3339,
}

func parseCellDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
