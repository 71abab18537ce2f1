package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	sqlEntriesTableName     = "homepage_entries"
	backendOperationTimeout = 5 * time.Second

	entryKindSection     = "section"
	entryKindTestimonial = "testimonial"
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// sqlDialect carries the per-driver differences of the entry table.
type sqlDialect struct {
	driver string
	// numbered switches ? placeholders to $1, $2, ...
	numbered     bool
	maxOpenConns int
	prepare      func(dsn string) error
}

var (
	postgresDialect = sqlDialect{driver: "postgres", numbered: true}
	sqliteDialect   = sqlDialect{driver: "sqlite", maxOpenConns: 1, prepare: ensureSQLiteDir}
)

// SQLStateBackend stores every section and every testimonial as its own row
// of one entry table, keyed by (kind, entry_key). Save only writes rows whose
// body changed since the last Load or Save and deletes rows that are gone.
type SQLStateBackend struct {
	dialect   sqlDialect
	dsn       string
	tableName string
	openDB    sqlOpenFunc
	now       func() time.Time

	initOnce sync.Once
	initErr  error
	db       *sql.DB

	mu    sync.Mutex
	saved map[entryKey]string
}

type entryKey struct {
	kind string
	key  string
}

type entryRow struct {
	body      string
	updatedAt time.Time
}

func NewPostgresStateBackend(dsn string) (StateBackend, error) {
	backend, err := newSQLStateBackend(postgresDialect, dsn)
	if err != nil {
		return nil, err
	}
	return backend, nil
}

func NewSQLiteStateBackend(path string) (StateBackend, error) {
	backend, err := newSQLStateBackend(sqliteDialect, path)
	if err != nil {
		return nil, err
	}
	return backend, nil
}

func newSQLStateBackend(dialect sqlDialect, dsn string) (*SQLStateBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &SQLStateBackend{
		dialect:   dialect,
		dsn:       dsn,
		tableName: sqlEntriesTableName,
		openDB:    sql.Open,
		now:       time.Now,
	}, nil
}

func (b *SQLStateBackend) Load() (*Snapshot, error) {
	if b == nil {
		return nil, nil
	}
	if err := b.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	query := b.bind(fmt.Sprintf("SELECT kind, entry_key, body, updated_at FROM %s", b.table()))
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshot := &Snapshot{
		Sections:     map[string]SectionRecord{},
		Testimonials: map[string]map[string]any{},
	}
	saved := map[entryKey]string{}
	for rows.Next() {
		var kind, key, body, updatedAt string
		if err := rows.Scan(&kind, &key, &body, &updatedAt); err != nil {
			return nil, err
		}
		switch kind {
		case entryKindSection:
			at, err := time.Parse(time.RFC3339Nano, updatedAt)
			if err != nil {
				return nil, fmt.Errorf("section %s updated_at: %w", key, err)
			}
			snapshot.Sections[key] = SectionRecord{Content: json.RawMessage(body), UpdatedAt: at}
		case entryKindTestimonial:
			var item map[string]any
			if err := json.Unmarshal([]byte(body), &item); err != nil {
				return nil, fmt.Errorf("testimonial %s: %w", key, err)
			}
			snapshot.Testimonials[key] = item
		default:
			continue
		}
		saved[entryKey{kind: kind, key: key}] = body
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	b.saved = saved
	if len(saved) == 0 {
		return nil, nil
	}
	return snapshot, nil
}

func (b *SQLStateBackend) Save(state *Snapshot) error {
	if b == nil || state == nil {
		return nil
	}
	if err := b.ensureReady(); err != nil {
		return err
	}
	desired, err := snapshotEntries(state, b.now().UTC())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	saved := b.saved
	if saved == nil {
		if saved, err = b.storedBodies(ctx, tx); err != nil {
			return err
		}
	}

	upsert := b.bind(fmt.Sprintf(`
		INSERT INTO %s (kind, entry_key, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, entry_key)
		DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`, b.table()))
	for _, key := range sortedEntryKeys(desired) {
		row := desired[key]
		if body, ok := saved[key]; ok && body == row.body {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert, key.kind, key.key, row.body, row.updatedAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("upsert %s %s: %w", key.kind, key.key, err)
		}
	}

	remove := b.bind(fmt.Sprintf("DELETE FROM %s WHERE kind = ? AND entry_key = ?", b.table()))
	for key := range saved {
		if _, ok := desired[key]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, remove, key.kind, key.key); err != nil {
			return fmt.Errorf("delete %s %s: %w", key.kind, key.key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	next := make(map[entryKey]string, len(desired))
	for key, row := range desired {
		next[key] = row.body
	}
	b.saved = next
	return nil
}

func (b *SQLStateBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLStateBackend) storedBodies(ctx context.Context, tx *sql.Tx) (map[entryKey]string, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT kind, entry_key, body FROM %s", b.table()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[entryKey]string{}
	for rows.Next() {
		var key entryKey
		var body string
		if err := rows.Scan(&key.kind, &key.key, &body); err != nil {
			return nil, err
		}
		out[key] = body
	}
	return out, rows.Err()
}

func (b *SQLStateBackend) ensureReady() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		if b.dialect.prepare != nil {
			if err := b.dialect.prepare(b.dsn); err != nil {
				b.initErr = err
				return
			}
		}
		db, err := b.openDB(b.dialect.driver, b.dsn)
		if err != nil {
			b.initErr = fmt.Errorf("open %s database: %w", b.dialect.driver, err)
			return
		}
		if b.dialect.maxOpenConns > 0 {
			db.SetMaxOpenConns(b.dialect.maxOpenConns)
		}
		ctx, cancel := context.WithTimeout(context.Background(), backendOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				kind TEXT NOT NULL,
				entry_key TEXT NOT NULL,
				body TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (kind, entry_key)
			)`, b.table())
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			b.initErr = err
			return
		}
		b.db = db
	})
	return b.initErr
}

func (b *SQLStateBackend) table() string {
	return quoteIdentifier(b.tableName)
}

// bind rewrites ? placeholders for drivers that number them.
func (b *SQLStateBackend) bind(query string) string {
	if !b.dialect.numbered {
		return query
	}
	var out strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			out.WriteString("$" + strconv.Itoa(n))
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// snapshotEntries flattens a snapshot into one row per section and per
// testimonial. Sections keep their own UpdatedAt; testimonial rows are
// stamped with now when written.
func snapshotEntries(state *Snapshot, now time.Time) (map[entryKey]entryRow, error) {
	out := make(map[entryKey]entryRow, len(state.Sections)+len(state.Testimonials))
	for name, record := range state.Sections {
		body := string(record.Content)
		if body == "" {
			body = "null"
		}
		out[entryKey{kind: entryKindSection, key: name}] = entryRow{body: body, updatedAt: record.UpdatedAt.UTC()}
	}
	for id, item := range state.Testimonials {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode testimonial %s: %w", id, err)
		}
		out[entryKey{kind: entryKindTestimonial, key: id}] = entryRow{body: string(data), updatedAt: now}
	}
	return out, nil
}

func sortedEntryKeys(entries map[entryKey]entryRow) []entryKey {
	keys := make([]entryKey, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		return keys[i].key < keys[j].key
	})
	return keys
}

func ensureSQLiteDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
