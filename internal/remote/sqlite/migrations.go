package sqlite

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL DEFAULT '',
	phone              TEXT NOT NULL DEFAULT '',
	email              TEXT NOT NULL DEFAULT '',
	destination        TEXT NOT NULL DEFAULT '',
	budget             REAL NOT NULL DEFAULT 0,
	travel_date        TEXT,
	pax                INTEGER NOT NULL DEFAULT 2,
	children           INTEGER NOT NULL DEFAULT 0,
	child_ages         JSON NOT NULL DEFAULT '[]',
	preferences        TEXT NOT NULL DEFAULT '',
	commercials        JSON,
	vendors            JSON NOT NULL DEFAULT '[]',
	status             TEXT NOT NULL DEFAULT 'New',
	temperature        TEXT NOT NULL DEFAULT 'Warm',
	source             TEXT NOT NULL DEFAULT 'Other',
	services           JSON NOT NULL DEFAULT '[]',
	tags               JSON NOT NULL DEFAULT '[]',
	assigned_to        TEXT NOT NULL DEFAULT 'Unassigned',
	reference_name     TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	last_status_update TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_assigned_to ON leads(assigned_to);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone);

CREATE INDEX IF NOT EXISTS idx_leads_status_created
	ON leads(status, created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
