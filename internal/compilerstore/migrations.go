package compilerstore

import (
	"database/sql"
	"fmt"

	"covenant/internal/logging"
)

// migration describes one ALTER TABLE ADD COLUMN to apply if absent,
// mirroring the teacher's additive, idempotent column-migration style:
// existing databases gain new columns rather than being recreated.
type migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists every schema migration beyond the CREATE TABLE
// baseline in initialize(). Empty today (schema version 1 is the baseline);
// future columns get appended here rather than rewriting the CREATE TABLE,
// so upgrading an existing compile cache never loses prior entries.
var pendingMigrations = []migration{}

func runMigrations(db *sql.DB) error {
	for _, m := range pendingMigrations {
		if hasColumn(db, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		logging.Store("applied compile cache migration: %s.%s", m.Table, m.Column)
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}
