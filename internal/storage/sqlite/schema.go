package sqlite

import "github.com/mcdev/deduper/internal/storage/migrations"

// event_time is stored as unix milliseconds so comparisons stay numeric.
const schemaV1 = `
-- Fingerprints: normalized trace lines, JSON-encoded
CREATE TABLE IF NOT EXISTS fingerprints (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lines TEXT NOT NULL UNIQUE
);

-- Tracked issues mirrored from the remote tracker
CREATE TABLE IF NOT EXISTS issues (
    id INTEGER PRIMARY KEY CHECK(id > 0),
    title TEXT NOT NULL,
    fingerprint_id INTEGER NOT NULL,
    state TEXT NOT NULL CHECK(state IN ('open', 'closed')),
    duplicate_of INTEGER,
    FOREIGN KEY (fingerprint_id) REFERENCES fingerprints(id),
    FOREIGN KEY (duplicate_of) REFERENCES issues(id)
);

CREATE INDEX IF NOT EXISTS idx_issues_fingerprint ON issues(fingerprint_id);
CREATE INDEX IF NOT EXISTS idx_issues_duplicate_of ON issues(duplicate_of);

-- Canonical issue per fingerprint
CREATE TABLE IF NOT EXISTS target_assignments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    fingerprint_id INTEGER NOT NULL UNIQUE,
    issue_id INTEGER NOT NULL,
    event_time INTEGER,
    FOREIGN KEY (fingerprint_id) REFERENCES fingerprints(id),
    FOREIGN KEY (issue_id) REFERENCES issues(id)
);
`

const schemaV1Down = `
DROP TABLE IF EXISTS target_assignments;
DROP TABLE IF EXISTS issues;
DROP TABLE IF EXISTS fingerprints;
`

const schemaV2 = `
-- Speeds up FindCloseable's open-issue scan
CREATE INDEX IF NOT EXISTS idx_issues_state ON issues(state);
`

const schemaV2Down = `
DROP INDEX IF EXISTS idx_issues_state;
`

// Migrations returns the versioned schema for the SQLite backend
func Migrations() *migrations.Manager {
	return migrations.NewManager(
		migrations.Migration{
			Version:     1,
			Description: "Create fingerprints, issues and target_assignments",
			Up:          schemaV1,
			Down:        schemaV1Down,
		},
		migrations.Migration{
			Version:     2,
			Description: "Index issues by state",
			Up:          schemaV2,
			Down:        schemaV2Down,
		},
	)
}
