package snapshot

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/alangarciaapr-svg/CONTROL-GYD/pkg/domain"
)

// ensureLegacyColumns brings an extracted legacy database up to the last
// schema that family of backups ever had, so one set of SELECTs serves every
// vintage. Tables are created empty when absent and late-addition columns
// are added when missing; nothing is ever dropped or rewritten.
func ensureLegacyColumns(db *gorm.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS mandantes (
			id INTEGER PRIMARY KEY, nombre TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS contratos_faena (
			id INTEGER PRIMARY KEY, mandante_id INTEGER NOT NULL,
			nombre TEXT NOT NULL, fecha_inicio TEXT, fecha_termino TEXT,
			file_path TEXT, sha256 TEXT, created_at TEXT)`,
		`CREATE TABLE IF NOT EXISTS faenas (
			id INTEGER PRIMARY KEY, mandante_id INTEGER NOT NULL,
			contrato_faena_id INTEGER, nombre TEXT NOT NULL,
			ubicacion TEXT DEFAULT '', fecha_inicio TEXT NOT NULL,
			fecha_termino TEXT, estado TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS faena_anexos (
			id INTEGER PRIMARY KEY, faena_id INTEGER NOT NULL,
			nombre TEXT NOT NULL, file_path TEXT NOT NULL,
			sha256 TEXT NOT NULL, created_at TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS trabajadores (
			id INTEGER PRIMARY KEY, rut TEXT NOT NULL,
			nombres TEXT NOT NULL, apellidos TEXT NOT NULL,
			cargo TEXT DEFAULT '')`,
		`CREATE TABLE IF NOT EXISTS asignaciones (
			id INTEGER PRIMARY KEY, faena_id INTEGER NOT NULL,
			trabajador_id INTEGER NOT NULL, cargo_faena TEXT DEFAULT '',
			fecha_ingreso TEXT NOT NULL, fecha_egreso TEXT,
			estado TEXT NOT NULL DEFAULT 'ACTIVA')`,
		`CREATE TABLE IF NOT EXISTS trabajador_documentos (
			id INTEGER PRIMARY KEY, trabajador_id INTEGER NOT NULL,
			doc_tipo TEXT NOT NULL, nombre_archivo TEXT NOT NULL,
			file_path TEXT NOT NULL, sha256 TEXT NOT NULL,
			created_at TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS empresa_documentos (
			id INTEGER PRIMARY KEY, doc_tipo TEXT NOT NULL,
			nombre_archivo TEXT NOT NULL, file_path TEXT NOT NULL,
			sha256 TEXT NOT NULL, created_at TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS faena_empresa_documentos (
			id INTEGER PRIMARY KEY, faena_id INTEGER NOT NULL,
			doc_tipo TEXT NOT NULL, nombre_archivo TEXT NOT NULL,
			file_path TEXT NOT NULL, sha256 TEXT NOT NULL,
			created_at TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS export_historial (
			id INTEGER PRIMARY KEY, faena_id INTEGER NOT NULL,
			file_path TEXT NOT NULL, sha256 TEXT NOT NULL,
			size_bytes INTEGER NOT NULL, created_at TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS export_historial_mes (
			id INTEGER PRIMARY KEY, year_month TEXT NOT NULL,
			file_path TEXT NOT NULL, sha256 TEXT, size_bytes INTEGER,
			created_at TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS auto_backup_historial (
			id INTEGER PRIMARY KEY, tag TEXT, file_path TEXT NOT NULL,
			sha256 TEXT NOT NULL, size_bytes INTEGER NOT NULL,
			created_at TEXT NOT NULL)`,
	}
	for _, stmt := range tables {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%w: legacy schema setup: %v", domain.ErrFormat, err)
		}
	}

	lateColumns := map[string][]string{
		"trabajadores": {"centro_costo", "email", "fecha_contrato", "vigencia_examen"},
	}
	for table, cols := range lateColumns {
		existing, err := tableColumns(db, table)
		if err != nil {
			return err
		}
		for _, col := range cols {
			if existing[col] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", table, col)
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("%w: add legacy column %s.%s: %v", domain.ErrFormat, table, col, err)
			}
		}
	}
	return nil
}

func tableColumns(db *gorm.DB, table string) (map[string]bool, error) {
	type columnInfo struct {
		Name string `gorm:"column:name"`
	}
	var rows []columnInfo
	if err := db.Raw(fmt.Sprintf("PRAGMA table_info(%s)", table)).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: inspect legacy table %s: %v", domain.ErrFormat, table, err)
	}
	cols := make(map[string]bool, len(rows))
	for _, r := range rows {
		cols[r.Name] = true
	}
	return cols, nil
}
