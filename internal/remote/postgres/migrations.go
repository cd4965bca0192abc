package postgres

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations. Version 2 installs
// the trigger that publishes every committed change on the
// "<table>_changes" notification channel.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name               TEXT NOT NULL DEFAULT '',
	phone              TEXT NOT NULL DEFAULT '',
	email              TEXT NOT NULL DEFAULT '',
	destination        TEXT NOT NULL DEFAULT '',
	budget             DOUBLE PRECISION NOT NULL DEFAULT 0,
	travel_date        DATE,
	pax                INTEGER NOT NULL DEFAULT 2,
	children           INTEGER NOT NULL DEFAULT 0,
	child_ages         JSONB NOT NULL DEFAULT '[]',
	preferences        TEXT NOT NULL DEFAULT '',
	commercials        JSONB,
	vendors            JSONB NOT NULL DEFAULT '[]',
	status             TEXT NOT NULL DEFAULT 'New',
	temperature        TEXT NOT NULL DEFAULT 'Warm',
	source             TEXT NOT NULL DEFAULT 'Other',
	services           JSONB NOT NULL DEFAULT '[]',
	tags               JSONB NOT NULL DEFAULT '[]',
	assigned_to        TEXT NOT NULL DEFAULT 'Unassigned',
	reference_name     TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_status_update TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_created_at ON leads(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_assigned_to ON leads(assigned_to);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE OR REPLACE FUNCTION crm_notify_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(
		TG_TABLE_NAME || '_changes',
		json_build_object(
			'table', TG_TABLE_NAME,
			'eventType', TG_OP,
			'new', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE row_to_json(NEW) END,
			'old', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE row_to_json(OLD) END
		)::text
	);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS leads_notify_change ON leads;
CREATE TRIGGER leads_notify_change
	AFTER INSERT OR UPDATE OR DELETE ON leads
	FOR EACH ROW EXECUTE FUNCTION crm_notify_change();

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
