package snapshot

import (
	"time"
)

// Bundle layout. The structured format keeps everything under backup/:
// a manifest with the version marker, the entity dataset, and the file
// section organized by owner kind / document type / owner id. The folder
// scheme is stable across versions so restore locates files by convention.
const (
	// CurrentVersion identifies the structured bundle schema.
	CurrentVersion = 2

	manifestPath = "backup/manifest.json"
	dataPath     = "backup/data.json"
	filesPrefix  = "backup/files/"
)

// BundleKind selects how much a bundle carries.
type BundleKind string

const (
	// KindFull bundles the dataset plus every referenced file.
	KindFull BundleKind = "full"
	// KindDBOnly bundles the dataset alone; restore leaves files untouched.
	KindDBOnly BundleKind = "db_only"
)

// Manifest is the version marker and summary written into every bundle.
type Manifest struct {
	Version   int            `json:"version"`
	ID        string         `json:"id"`
	Kind      BundleKind     `json:"kind"`
	CreatedAt time.Time      `json:"createdAt"`
	Counts    map[string]int `json:"counts"`
}

// Shape is the detected layout of an incoming bundle. Detection dispatches
// to a closed set of decoders; anything else fails with a FormatError.
type Shape string

const (
	// ShapeCurrent is the structured manifest+data layout.
	ShapeCurrent Shape = "current"
	// ShapeLegacyDB is the historical layout: a raw SQLite database file,
	// optionally with a loose uploads/ tree beside it.
	ShapeLegacyDB Shape = "legacy_db"
	// ShapeUnknown is anything detection cannot claim.
	ShapeUnknown Shape = "unknown"
)

// RestoreResult reports what a restore applied.
type RestoreResult struct {
	Shape     Shape          `json:"shape"`
	Kind      BundleKind     `json:"kind"`
	Counts    map[string]int `json:"counts"`
	FilesOut  int            `json:"filesMaterialized"`
	Warnings  []string       `json:"warnings,omitempty"`
	Recorded  bool           `json:"recorded"`
	StartedAt time.Time      `json:"startedAt"`
}
