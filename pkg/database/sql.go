package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"socialhub/internal/common"
)

// dialect holds the statements that differ between SQLite and PostgreSQL.
type dialect struct {
	name      string
	get       string
	lock      string
	put       string
	insert    string
	update    string
	delete    string
	list      string
	migrateFS string
}

var sqliteDialect = dialect{
	name:   "sqlite3",
	get:    `SELECT body FROM documents WHERE collection = ? AND id = ?`,
	lock:   `SELECT body FROM documents WHERE collection = ? AND id = ?`,
	put: `INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
	insert: `INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO NOTHING`,
	update:    `UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`,
	delete:    `DELETE FROM documents WHERE collection = ? AND id = ?`,
	list:      `SELECT id, body FROM documents WHERE collection = ? ORDER BY id`,
	migrateFS: "migrations/sqlite",
}

var postgresDialect = dialect{
	name: "postgres",
	get:  `SELECT body FROM documents WHERE collection = $1 AND id = $2`,
	lock: `SELECT body FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
	put: `INSERT INTO documents (collection, id, body, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
	insert: `INSERT INTO documents (collection, id, body, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO NOTHING`,
	update:    `UPDATE documents SET body = $1, updated_at = $2 WHERE collection = $3 AND id = $4`,
	delete:    `DELETE FROM documents WHERE collection = $1 AND id = $2`,
	list:      `SELECT id, body FROM documents WHERE collection = $1 ORDER BY id`,
	migrateFS: "migrations/postgres",
}

// SQLStore keeps every collection in one `documents` table with a JSON body.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *SQLStore) Collection(name string) Collection {
	return &sqlCollection{db: s.db, d: s.dialect, name: name}
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db, s.dialect)
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlCollection struct {
	db   *sql.DB
	d    dialect
	name string
}

func (c *sqlCollection) Get(ctx context.Context, id string, dst any) error {
	var body []byte
	err := c.db.QueryRowContext(ctx, c.d.get, c.name, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return json.Unmarshal(body, dst)
}

func (c *sqlCollection) Put(ctx context.Context, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, c.d.put, c.name, id, string(body), time.Now().UTC()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (c *sqlCollection) Delete(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, c.d.delete, c.name, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

type sqlRow struct {
	id   string
	body []byte
}

// ForEach buffers the rows first so fn may touch the database; the SQLite
// store runs on a single connection.
func (c *sqlCollection) ForEach(ctx context.Context, fn func(id string, decode Decoder) error) error {
	rows, err := c.db.QueryContext(ctx, c.d.list, c.name)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	var buf []sqlRow
	for rows.Next() {
		var r sqlRow
		if err := rows.Scan(&r.id, &r.body); err != nil {
			rows.Close()
			return fmt.Errorf("db error: %w", err)
		}
		buf = append(buf, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("db error: %w", err)
	}
	rows.Close()

	for _, r := range buf {
		body := r.body
		if err := fn(r.id, func(dst any) error { return json.Unmarshal(body, dst) }); err != nil {
			return err
		}
	}
	return nil
}

func (c *sqlCollection) Update(ctx context.Context, id string, fn UpdateFunc) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	var body []byte
	found := true
	if err = tx.QueryRowContext(ctx, c.d.lock, c.name, id).Scan(&body); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("db error: %w", err)
		}
		found = false
	}

	next, err := fn(func(dst any) error { return json.Unmarshal(body, dst) }, found)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	switch {
	case next == nil && found:
		_, err = tx.ExecContext(ctx, c.d.delete, c.name, id)
	case next == nil:
		return nil
	case found:
		var raw []byte
		if raw, err = json.Marshal(next); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, c.d.update, string(raw), now, c.name, id)
	default:
		var raw []byte
		if raw, err = json.Marshal(next); err != nil {
			return err
		}
		var res sql.Result
		if res, err = tx.ExecContext(ctx, c.d.insert, c.name, id, string(raw), now); err != nil {
			break
		}
		var n int64
		if n, err = res.RowsAffected(); err == nil && n == 0 {
			err = common.ErrorConflict
		}
	}
	if err != nil && !errors.Is(err, common.ErrorConflict) {
		err = fmt.Errorf("db error: %w", err)
	}
	return err
}
