package postgres

// The unique key on fingerprints is a SHA-256 digest of the lines; long traces
// would exceed the btree entry limit if the array itself were indexed.
const schema = `
-- Fingerprints: normalized trace lines
CREATE TABLE IF NOT EXISTS fingerprints (
    id BIGSERIAL PRIMARY KEY,
    digest BYTEA NOT NULL UNIQUE,
    lines TEXT[] NOT NULL
);

-- Tracked issues mirrored from the remote tracker
CREATE TABLE IF NOT EXISTS issues (
    id INTEGER PRIMARY KEY CHECK(id > 0),
    title TEXT NOT NULL,
    fingerprint_id BIGINT NOT NULL REFERENCES fingerprints(id),
    state TEXT NOT NULL CHECK(state IN ('open', 'closed')),
    duplicate_of INTEGER REFERENCES issues(id)
);

CREATE INDEX IF NOT EXISTS idx_issues_fingerprint ON issues(fingerprint_id);
CREATE INDEX IF NOT EXISTS idx_issues_duplicate_of ON issues(duplicate_of);
CREATE INDEX IF NOT EXISTS idx_issues_state ON issues(state);

-- Canonical issue per fingerprint
CREATE TABLE IF NOT EXISTS target_assignments (
    id BIGSERIAL PRIMARY KEY,
    fingerprint_id BIGINT NOT NULL UNIQUE REFERENCES fingerprints(id),
    issue_id INTEGER NOT NULL REFERENCES issues(id),
    event_time TIMESTAMPTZ
);
`
