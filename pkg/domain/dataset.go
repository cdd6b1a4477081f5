package domain

// Dataset is a complete copy of the entity rows, as read under one
// consistent snapshot. It is the structured-data section of a bundle and
// the staging payload of a restore.
type Dataset struct {
	Companies   []Company        `json:"companies"`
	Contracts   []MasterContract `json:"contracts"`
	Faenas      []Faena          `json:"faenas"`
	Workers     []Worker         `json:"workers"`
	Assignments []Assignment     `json:"assignments"`
	Documents   []Document       `json:"documents"`
	Exports     []ExportRecord   `json:"exports"`
}

// Counts summarizes a dataset for manifests and previews.
func (d Dataset) Counts() map[string]int {
	return map[string]int{
		"companies":   len(d.Companies),
		"contracts":   len(d.Contracts),
		"faenas":      len(d.Faenas),
		"workers":     len(d.Workers),
		"assignments": len(d.Assignments),
		"documents":   len(d.Documents),
		"exports":     len(d.Exports),
	}
}
