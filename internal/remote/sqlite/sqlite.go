// Package sqlite is an embedded remote.Table backed by a local SQLite file.
// Committed writes are published to an in-process change feed.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nhle/travel-crm/internal/remote"
)

// declared type of columns holding JSON documents.
const jsonType = "JSON"

// Table implements remote.Table on top of SQLite.
type Table struct {
	db  *sqlx.DB
	hub *remote.Hub
	log zerolog.Logger

	mu      sync.Mutex
	columns map[string]map[string]string // table -> column -> declared type
}

// Open opens (or creates) a SQLite database at dbPath, enables WAL mode,
// and runs any pending schema migrations. Use ":memory:" for a throwaway
// table.
func Open(dbPath string, log zerolog.Logger) (*Table, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	t := &Table{
		db:      db,
		hub:     remote.NewHub(log),
		log:     log,
		columns: make(map[string]map[string]string),
	}
	if err := t.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return t, nil
}

// Close stops the change feed and closes the database.
func (t *Table) Close() error {
	t.hub.Close()
	return t.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (t *Table) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := t.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = t.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := t.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// columnInfo is one row of PRAGMA table_info.
type columnInfo struct {
	CID       int     `db:"cid"`
	Name      string  `db:"name"`
	Type      string  `db:"type"`
	NotNull   int     `db:"notnull"`
	DfltValue *string `db:"dflt_value"`
	PK        int     `db:"pk"`
}

// tableColumns returns the declared columns of table, cached after the
// first lookup.
func (t *Table) tableColumns(ctx context.Context, table string) (map[string]string, error) {
	if err := remote.ValidIdentifier(table); err != nil {
		return nil, err
	}

	t.mu.Lock()
	cols, ok := t.columns[table]
	t.mu.Unlock()
	if ok {
		return cols, nil
	}

	var infos []columnInfo
	if err := t.db.SelectContext(ctx, &infos, fmt.Sprintf("PRAGMA table_info(%s)", table)); err != nil {
		return nil, fmt.Errorf("describing table %s: %w", table, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}

	cols = make(map[string]string, len(infos))
	for _, c := range infos {
		cols[c.Name] = strings.ToUpper(c.Type)
	}

	t.mu.Lock()
	t.columns[table] = cols
	t.mu.Unlock()

	return cols, nil
}

// Select returns every row of table in the given order.
func (t *Table) Select(
	ctx context.Context,
	table string,
	order remote.Order,
) ([]remote.Row, error) {
	cols, err := t.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + table
	if order.Column != "" {
		if _, ok := cols[order.Column]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", remote.ErrUnknownColumn, table, order.Column)
		}
		direction := "ASC"
		if order.Desc {
			direction = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", order.Column, direction)
	}

	rows, err := t.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	return scanRows(rows, cols)
}

// Insert writes rows in one transaction and returns them as stored.
// Rows without an id get a UUID.
func (t *Table) Insert(
	ctx context.Context,
	table string,
	rows []remote.Row,
) ([]remote.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	cols, err := t.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := make([]remote.Row, 0, len(rows))
	for _, r := range rows {
		r = r.Clone()
		if r.ID() == "" {
			r[remote.ColumnID] = uuid.New().String()
		}

		names := sortedKeys(r)
		args := make([]any, 0, len(names))
		for _, name := range names {
			typ, ok := cols[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s", remote.ErrUnknownColumn, table, name)
			}
			v, err := encodeValue(r[name], typ)
			if err != nil {
				return nil, fmt.Errorf("encoding %s.%s: %w", table, name, err)
			}
			args = append(args, v)
		}

		query := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			table, strings.Join(names, ", "), placeholders(len(names)),
		)

		m := make(map[string]any)
		if err := tx.QueryRowxContext(ctx, query, args...).MapScan(m); err != nil {
			return nil, fmt.Errorf("inserting into %s: %w", table, err)
		}
		inserted = append(inserted, decodeRow(m, cols))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing insert into %s: %w", table, err)
	}

	for _, r := range inserted {
		t.hub.Publish(remote.ChangeEvent{Table: table, Type: remote.EventInsert, New: r.Clone()})
	}

	return inserted, nil
}

// Update applies patch to the rows matching filter and returns them as
// stored after the write.
func (t *Table) Update(
	ctx context.Context,
	table string,
	filter remote.Filter,
	patch remote.Row,
) ([]remote.Row, error) {
	cols, err := t.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if _, ok := cols[filter.Column]; !ok {
		return nil, fmt.Errorf("%w: %s.%s", remote.ErrUnknownColumn, table, filter.Column)
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	oldRows, err := tx.QueryxContext(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", table, filter.Column),
		filter.Value,
	)
	if err != nil {
		return nil, fmt.Errorf("reading %s before update: %w", table, err)
	}
	before, err := scanRows(oldRows, cols)
	oldRows.Close()
	if err != nil {
		return nil, err
	}

	if len(patch) == 0 || len(before) == 0 {
		return before, tx.Commit()
	}

	names := sortedKeys(patch)
	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		typ, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", remote.ErrUnknownColumn, table, name)
		}
		v, err := encodeValue(patch[name], typ)
		if err != nil {
			return nil, fmt.Errorf("encoding %s.%s: %w", table, name, err)
		}
		sets = append(sets, name+" = ?")
		args = append(args, v)
	}
	args = append(args, filter.Value)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = ? RETURNING *",
		table, strings.Join(sets, ", "), filter.Column,
	)
	rows, err := tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating %s: %w", table, err)
	}
	after, err := scanRows(rows, cols)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update of %s: %w", table, err)
	}

	oldByID := make(map[string]remote.Row, len(before))
	for _, r := range before {
		oldByID[r.ID()] = r
	}
	for _, r := range after {
		t.hub.Publish(remote.ChangeEvent{
			Table: table,
			Type:  remote.EventUpdate,
			New:   r.Clone(),
			Old:   oldByID[r.ID()],
		})
	}

	return after, nil
}

// Delete removes the rows matching filter.
func (t *Table) Delete(
	ctx context.Context,
	table string,
	filter remote.Filter,
) error {
	cols, err := t.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	if _, ok := cols[filter.Column]; !ok {
		return fmt.Errorf("%w: %s.%s", remote.ErrUnknownColumn, table, filter.Column)
	}

	rows, err := t.db.QueryxContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ? RETURNING *", table, filter.Column),
		filter.Value,
	)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	deleted, err := scanRows(rows, cols)
	rows.Close()
	if err != nil {
		return err
	}

	for _, r := range deleted {
		t.hub.Publish(remote.ChangeEvent{Table: table, Type: remote.EventDelete, Old: r})
	}

	return nil
}

// Subscribe registers h for committed changes on table.
func (t *Table) Subscribe(
	_ context.Context,
	table string,
	h remote.Handler,
) (remote.Subscription, error) {
	if err := remote.ValidIdentifier(table); err != nil {
		return nil, err
	}
	return t.hub.Subscribe(table, h), nil
}

// scanRows drains a result set into decoded rows.
func scanRows(rows *sqlx.Rows, cols map[string]string) ([]remote.Row, error) {
	var out []remote.Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, decodeRow(m, cols))
	}
	return out, rows.Err()
}

// decodeRow turns raw driver values into wire values: JSON columns are
// parsed and byte slices become strings.
func decodeRow(m map[string]any, cols map[string]string) remote.Row {
	r := make(remote.Row, len(m))
	for name, v := range m {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if cols[name] == jsonType {
			if s, ok := v.(string); ok {
				var doc any
				if err := json.Unmarshal([]byte(s), &doc); err == nil {
					v = doc
				}
			}
		}
		r[name] = v
	}
	return r
}

// encodeValue converts a wire value into something the driver stores.
func encodeValue(v any, declType string) (any, error) {
	if v == nil {
		return nil, nil
	}
	if declType == jsonType {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case bool:
		return boolToInt(val), nil
	case []any, []string, map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

func sortedKeys(r remote.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
