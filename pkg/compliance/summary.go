package compliance

// Summary aggregates a set of reports into dashboard KPIs. It is a pure
// fold over the per-owner reports.
type Summary struct {
	Owners      int     `json:"owners"`
	Compliant   int     `json:"compliant"`
	Missing     int     `json:"missing"`
	Expiring    int     `json:"expiring"`
	Expired     int     `json:"expired"`
	CoveragePct float64 `json:"coveragePct"`
}

// Summarize folds per-owner reports into aggregate counts. Coverage is the
// share of obligations that are not missing, across all owners in scope.
func Summarize(reports []Report) Summary {
	var s Summary
	s.Owners = len(reports)
	var total, covered int
	for _, r := range reports {
		if r.Compliant() {
			s.Compliant++
		}
		for _, o := range r.Obligations {
			total++
			switch o.Status {
			case StatusMissing:
				s.Missing++
			case StatusExpiring:
				s.Expiring++
				covered++
			case StatusExpired:
				s.Expired++
				covered++
			default:
				covered++
			}
		}
	}
	if total > 0 {
		s.CoveragePct = float64(covered) / float64(total) * 100
	}
	return s
}

// FaenaProgress is one dashboard row: how complete a faena's assigned
// workforce is on required documents.
type FaenaProgress struct {
	FaenaID      string  `json:"faenaId"`
	Workers      int     `json:"workers"`
	WorkersOK    int     `json:"workersOk"`
	TotalMissing int     `json:"totalMissing"`
	CoveragePct  float64 `json:"coveragePct"`
}

// Progress folds the worker reports of one faena into a progress row.
func Progress(faenaID string, workerReports []Report) FaenaProgress {
	row := FaenaProgress{FaenaID: faenaID, Workers: len(workerReports)}
	var total, covered int
	for _, r := range workerReports {
		if r.Compliant() {
			row.WorkersOK++
		}
		for _, o := range r.Obligations {
			total++
			if o.Status == StatusMissing {
				row.TotalMissing++
			} else {
				covered++
			}
		}
	}
	if total > 0 {
		row.CoveragePct = float64(covered) / float64(total) * 100
	}
	return row
}
