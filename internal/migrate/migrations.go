// Package migrate applies the embedded schema revisions in order.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// step is one numbered schema revision: NNN_name.sql applied when the stored
// revision is below NNN.
type step struct {
	revision int
	name     string
	stmts    string
}

func readSteps() ([]step, error) {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, err
	}
	steps := make([]step, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("schema file %s: want NNN_name.sql", name)
		}
		rev, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: %w", name, err)
		}
		data, err := schemaFS.ReadFile("sql/" + name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{revision: rev, name: name, stmts: string(data)})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].revision < steps[j].revision })
	return steps, nil
}

// currentRevision reads the stored schema revision, seeding the bookkeeping
// row on a fresh database.
func currentRevision(tx *sql.Tx) (int, error) {
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("schema_version table: %w", err)
	}
	var rev int
	err := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&rev)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("seed schema_version: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return rev, nil
}

// Migrate brings the database up to the latest embedded schema revision. All
// pending steps run inside one transaction: the schema moves forward as a
// whole or not at all.
func Migrate(db *sql.DB) error {
	steps, err := readSteps()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rev, err := currentRevision(tx)
	if err != nil {
		return err
	}
	for _, s := range steps {
		if s.revision <= rev {
			continue
		}
		log.Printf("schema: applying %s", s.name)
		if _, err := tx.Exec(s.stmts); err != nil {
			return fmt.Errorf("apply %s: %w", s.name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, s.revision); err != nil {
			return fmt.Errorf("record revision %d: %w", s.revision, err)
		}
		rev = s.revision
	}
	return tx.Commit()
}
