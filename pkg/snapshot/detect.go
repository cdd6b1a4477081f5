package snapshot

import (
	"archive/zip"
	"fmt"
	"path"
	"strings"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// Detect probes a bundle for known markers and returns its shape. It never
// guesses from the archive filename: only the content decides.
func Detect(zr *zip.Reader) Shape {
	var hasManifest, hasData, hasDB bool
	for _, f := range zr.File {
		name := path.Clean(f.Name)
		switch name {
		case manifestPath:
			hasManifest = true
		case dataPath:
			hasData = true
		}
		ext := strings.ToLower(path.Ext(name))
		if ext == ".db" || ext == ".sqlite" || ext == ".sqlite3" {
			hasDB = true
		}
	}
	switch {
	case hasManifest && hasData:
		return ShapeCurrent
	case hasDB:
		return ShapeLegacyDB
	default:
		return ShapeUnknown
	}
}

// describeUnknown builds an actionable FormatError for a bundle that matched
// no decoder, naming what was expected against what was found.
func describeUnknown(zr *zip.Reader) error {
	names := make([]string, 0, len(zr.File))
	hasCode := false
	for _, f := range zr.File {
		base := path.Base(f.Name)
		if strings.HasSuffix(base, ".go") || strings.HasSuffix(base, ".py") || base == "go.mod" {
			hasCode = true
		}
		if len(names) < 5 {
			names = append(names, f.Name)
		}
	}
	if hasCode {
		return fmt.Errorf("%w: archive contains application code but no database; expected %s or a .db/.sqlite file", domain.ErrFormat, manifestPath)
	}
	return fmt.Errorf("%w: expected %s + %s or a .db/.sqlite file, found entries like %v", domain.ErrFormat, manifestPath, dataPath, names)
}

// legacyDBEntry returns the database entry of a legacy bundle, preferring
// the paths historical backups used before falling back to any database
// file in the archive.
func legacyDBEntry(zr *zip.Reader) (*zip.File, bool) {
	candidates := []string{
		"backup/app.db",
		"app.db",
		"backup/DB/app.db",
		"data/app.db",
	}
	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[path.Clean(f.Name)] = f
	}
	for _, c := range candidates {
		if f, ok := byName[c]; ok {
			return f, true
		}
	}
	for _, f := range zr.File {
		ext := strings.ToLower(path.Ext(f.Name))
		if ext == ".db" || ext == ".sqlite" || ext == ".sqlite3" {
			return f, true
		}
	}
	return nil, false
}
