package snapshot

import (
	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// bundleData is the wire form of a dataset inside a bundle. API responses
// never expose blob references, but bundles must carry them so restore can
// relink rows to the file section, so the rows here re-add that field.
type bundleData struct {
	Companies   []domain.Company      `json:"companies"`
	Contracts   []bundleContract      `json:"contracts"`
	Faenas      []domain.Faena        `json:"faenas"`
	Workers     []domain.Worker       `json:"workers"`
	Assignments []domain.Assignment   `json:"assignments"`
	Documents   []bundleDocument      `json:"documents"`
	Exports     []domain.ExportRecord `json:"exports"`
}

type bundleContract struct {
	domain.MasterContract
	BlobRef string `json:"blobRef,omitempty"`
}

type bundleDocument struct {
	domain.Document
	BlobRef string `json:"blobRef"`
}

func bundleDataset(d domain.Dataset) bundleData {
	out := bundleData{
		Companies:   d.Companies,
		Faenas:      d.Faenas,
		Workers:     d.Workers,
		Assignments: d.Assignments,
		Exports:     d.Exports,
		Contracts:   make([]bundleContract, len(d.Contracts)),
		Documents:   make([]bundleDocument, len(d.Documents)),
	}
	for i, c := range d.Contracts {
		out.Contracts[i] = bundleContract{MasterContract: c, BlobRef: c.BlobRef}
	}
	for i, doc := range d.Documents {
		out.Documents[i] = bundleDocument{Document: doc, BlobRef: doc.BlobRef}
	}
	return out
}

func (b bundleData) toDataset() domain.Dataset {
	out := domain.Dataset{
		Companies:   b.Companies,
		Faenas:      b.Faenas,
		Workers:     b.Workers,
		Assignments: b.Assignments,
		Exports:     b.Exports,
		Contracts:   make([]domain.MasterContract, len(b.Contracts)),
		Documents:   make([]domain.Document, len(b.Documents)),
	}
	for i, c := range b.Contracts {
		mc := c.MasterContract
		mc.BlobRef = c.BlobRef
		out.Contracts[i] = mc
	}
	for i, doc := range b.Documents {
		d := doc.Document
		d.BlobRef = doc.BlobRef
		out.Documents[i] = d
	}
	return out
}
