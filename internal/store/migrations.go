package store

import (
	"database/sql"
	"fmt"

	"ansari/internal/logging"
)

// pendingMigrations lists column additions applied to databases created by
// earlier schema versions. CREATE TABLE IF NOT EXISTS never alters an
// existing table, so new columns arrive here.
var pendingMigrations = []struct {
	table  string
	column string
	def    string
}{
	{"messages", "tool_details", "TEXT NOT NULL DEFAULT ''"},
	{"messages", "ref_list", "TEXT NOT NULL DEFAULT ''"},
}

func runMigrations(db *sql.DB) error {
	log := logging.Get(logging.CategoryStore)
	for _, m := range pendingMigrations {
		if columnExists(db, m.table, m.column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.def)
		if _, err := db.Exec(query); err != nil {
			// The column may already exist in a different form.
			log.Warnf("migration %s.%s failed: %v", m.table, m.column, err)
			continue
		}
		log.Infof("migration applied: added %s.%s", m.table, m.column)
	}
	return nil
}

// columnExists checks a table's columns via PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
