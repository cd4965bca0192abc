// Package postgres is a remote.Table backed by PostgreSQL. Rows are read
// and written through sqlx on the pgx driver; the change feed is a trigger
// that calls pg_notify and a dedicated LISTEN connection per subscription.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/nhle/travel-crm/internal/remote"
)

const (
	driverName = "pgx"

	// reconnectDelay is the pause before a dropped LISTEN connection is
	// re-established.
	reconnectDelay = 2 * time.Second
)

// Table implements remote.Table on PostgreSQL.
type Table struct {
	db  *sqlx.DB
	dsn string
	log zerolog.Logger

	mu      sync.Mutex
	columns map[string]map[string]string // table -> column -> data_type
}

// Open connects to dsn, verifies connectivity and applies migrations.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Table, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	t := &Table{
		db:      db,
		dsn:     dsn,
		log:     log,
		columns: make(map[string]map[string]string),
	}
	if err := t.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return t, nil
}

// Close closes the connection pool. Live subscriptions keep their own
// connections until unsubscribed.
func (t *Table) Close() error {
	return t.db.Close()
}

// DB exposes the pool for test setup.
func (t *Table) DB() *sqlx.DB { return t.db }

func (t *Table) runMigrations(ctx context.Context) error {
	currentVersion := 0

	var tableCount int
	err := t.db.GetContext(ctx, &tableCount, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = 'schema_version'`)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = t.db.GetContext(ctx, &currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := t.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

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

	var infos []struct {
		Name     string `db:"column_name"`
		DataType string `db:"data_type"`
	}
	err := t.db.SelectContext(ctx, &infos, `
		SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("describing table %s: %w", table, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}

	cols = make(map[string]string, len(infos))
	for _, c := range infos {
		cols[c.Name] = c.DataType
	}

	t.mu.Lock()
	t.columns[table] = cols
	t.mu.Unlock()

	return cols, nil
}

// Select returns every row of table in the given order.
func (t *Table) Select(ctx context.Context, table string, order remote.Order) ([]remote.Row, error) {
	cols, err := t.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT row_to_json(t) FROM %s t", table)
	if order.Column != "" {
		if _, ok := cols[order.Column]; !ok {
			return nil, fmt.Errorf("%w: %s.%s", remote.ErrUnknownColumn, table, order.Column)
		}
		direction := "ASC"
		if order.Desc {
			direction = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY t.%s %s", order.Column, direction)
	}

	var docs [][]byte
	if err := t.db.SelectContext(ctx, &docs, query); err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	return decodeDocs(docs)
}

// Insert writes rows in one transaction and returns them as stored.
func (t *Table) Insert(ctx context.Context, table string, rows []remote.Row) ([]remote.Row, error) {
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
	defer func() { _ = tx.Rollback() }()

	docs := make([][]byte, 0, len(rows))
	for _, r := range rows {
		names, args, err := encodeRow(table, r, cols)
		if err != nil {
			return nil, err
		}

		var query string
		if len(names) == 0 {
			query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING row_to_json(%s.*)", table, table)
		} else {
			query = fmt.Sprintf(
				"INSERT INTO %s (%s) VALUES (%s) RETURNING row_to_json(%s.*)",
				table, strings.Join(names, ", "), placeholders(1, len(names)), table,
			)
		}

		var doc []byte
		if err := tx.GetContext(ctx, &doc, query, args...); err != nil {
			return nil, fmt.Errorf("inserting into %s: %w", table, err)
		}
		docs = append(docs, doc)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing insert into %s: %w", table, err)
	}
	return decodeDocs(docs)
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

	names, args, err := encodeRow(table, patch, cols)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		var docs [][]byte
		err := t.db.SelectContext(ctx, &docs,
			fmt.Sprintf("SELECT row_to_json(t) FROM %s t WHERE t.%s = $1", table, filter.Column),
			filter.Value)
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", table, err)
		}
		return decodeDocs(docs)
	}

	sets := make([]string, len(names))
	for i, name := range names {
		sets[i] = fmt.Sprintf("%s = $%d", name, i+1)
	}
	args = append(args, filter.Value)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $%d RETURNING row_to_json(%s.*)",
		table, strings.Join(sets, ", "), filter.Column, len(args), table,
	)

	var docs [][]byte
	if err := t.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("updating %s: %w", table, err)
	}
	return decodeDocs(docs)
}

// Delete removes the rows matching filter.
func (t *Table) Delete(ctx context.Context, table string, filter remote.Filter) error {
	cols, err := t.tableColumns(ctx, table)
	if err != nil {
		return err
	}
	if _, ok := cols[filter.Column]; !ok {
		return fmt.Errorf("%w: %s.%s", remote.ErrUnknownColumn, table, filter.Column)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, filter.Column)
	if _, err := t.db.ExecContext(ctx, query, filter.Value); err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	return nil
}

// Subscribe opens a dedicated connection that LISTENs on the table's
// change channel and calls h for every notification. The connection is
// re-established after errors until Unsubscribe is called.
func (t *Table) Subscribe(ctx context.Context, table string, h remote.Handler) (remote.Subscription, error) {
	if err := remote.ValidIdentifier(table); err != nil {
		return nil, err
	}
	channel := table + "_changes"

	conn, err := t.listen(ctx, channel)
	if err != nil {
		return nil, err
	}

	lctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.listenLoop(lctx, conn, channel, table, h)
	}()

	return remote.SubscriptionFunc(func() error {
		cancel()
		<-done
		return nil
	}), nil
}

func (t *Table) listen(ctx context.Context, channel string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listening on %s: %w", channel, err)
	}
	return conn, nil
}

func (t *Table) listenLoop(ctx context.Context, conn *pgx.Conn, channel, table string, h remote.Handler) {
	defer func() {
		if conn != nil {
			_ = conn.Close(context.Background())
		}
	}()

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			c, err := t.listen(ctx, channel)
			if err != nil {
				t.log.Warn().Err(err).Str("channel", channel).Msg("re-listening failed")
				continue
			}
			conn = c
		}

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn().Err(err).Str("channel", channel).Msg("listener connection lost")
			_ = conn.Close(context.Background())
			conn = nil
			continue
		}

		var ev remote.ChangeEvent
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			t.log.Error().Err(err).Str("channel", channel).Msg("decoding notification")
			continue
		}
		ev.Table = table
		t.deliver(h, ev)
	}
}

func (t *Table) deliver(h remote.Handler, ev remote.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Str("table", ev.Table).
				Msg("change feed handler panicked")
		}
	}()
	h(ev)
}

// encodeRow validates column names and converts values for the driver.
// Names are sorted so statements are stable.
func encodeRow(table string, r remote.Row, cols map[string]string) ([]string, []any, error) {
	names := make([]string, 0, len(r))
	for name := range r {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("%w: %s.%s", remote.ErrUnknownColumn, table, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, 0, len(names))
	for _, name := range names {
		v := r[name]
		switch cols[name] {
		case "json", "jsonb":
			if v != nil {
				b, err := json.Marshal(v)
				if err != nil {
					return nil, nil, fmt.Errorf("encoding %s.%s: %w", table, name, err)
				}
				v = string(b)
			}
		}
		if tv, ok := v.(time.Time); ok {
			v = tv.UTC()
		}
		args = append(args, v)
	}
	return names, args, nil
}

func decodeDocs(docs [][]byte) ([]remote.Row, error) {
	out := make([]remote.Row, 0, len(docs))
	for _, d := range docs {
		var r remote.Row
		if err := json.Unmarshal(d, &r); err != nil {
			return nil, fmt.Errorf("decoding row: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func placeholders(start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ps, ", ")
}
