package schema

import (
	"database/sql"
	"fmt"

	"github.com/gotitinc/mongo-bigquery/typemode"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore is a persistent Store backed by database/sql over
// github.com/mattn/go-sqlite3, in the style of go-anansi's
// sqlite.SQLiteInteractor: a *sql.DB, an optional *zap.Logger defaulting to
// zap.NewNop(), and every field and set write wrapped in a transaction so
// UpsertField is linearizable per path even when called from many
// shredder/observer workers. Reset clears the tables with plain statements,
// outside a transaction. The CLI uses this store when a schema-store file is
// given, on either orchestrator path.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if necessary) the field/fragment/shard
// tables on db and returns a ready-to-use Store.
func NewSQLiteStore(db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema: sqlite store migration: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fields (
			path TEXT PRIMARY KEY,
			base_type INTEGER NOT NULL,
			mode INTEGER NOT NULL,
			forced INTEGER NOT NULL DEFAULT 0,
			seq INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS fragments (id TEXT PRIMARY KEY, seq INTEGER)`,
		`CREATE TABLE IF NOT EXISTS shards (value TEXT PRIMARY KEY, seq INTEGER)`,
		`CREATE TABLE IF NOT EXISTS seq_counter (name TEXT PRIMARY KEY, n INTEGER NOT NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) nextSeq(tx *sql.Tx, name string) (int64, error) {
	var n int64
	err := tx.QueryRow(`SELECT n FROM seq_counter WHERE name = ?`, name).Scan(&n)
	switch err {
	case nil:
		n++
	case sql.ErrNoRows:
		n = 1
	default:
		return 0, err
	}
	if _, err := tx.Exec(`INSERT INTO seq_counter(name, n) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET n = excluded.n`, name, n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) GetField(path string) (FieldEntry, bool, error) {
	var bt, md, forced int
	err := s.db.QueryRow(`SELECT base_type, mode, forced FROM fields WHERE path = ?`, path).
		Scan(&bt, &md, &forced)
	if err == sql.ErrNoRows {
		return FieldEntry{}, false, nil
	}
	if err != nil {
		return FieldEntry{}, false, fmt.Errorf("schema: get field %q: %w", path, err)
	}
	return FieldEntry{
		Path:   path,
		Type:   typemode.TypeMode{Base: typemode.BaseType(bt), Mode: typemode.Mode(md)},
		Forced: forced != 0,
	}, true, nil
}

func (s *SQLiteStore) UpsertField(path string, t typemode.TypeMode) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("schema: upsert field %q: begin: %w", path, err)
	}
	defer tx.Rollback()

	var bt, md, forced int
	err = tx.QueryRow(`SELECT base_type, mode, forced FROM fields WHERE path = ?`, path).Scan(&bt, &md, &forced)
	switch err {
	case sql.ErrNoRows:
		seq, seqErr := s.nextSeq(tx, "fields")
		if seqErr != nil {
			return seqErr
		}
		if _, err := tx.Exec(`INSERT INTO fields(path, base_type, mode, forced, seq) VALUES (?, ?, ?, 0, ?)`,
			path, int(t.Base), int(t.Mode), seq); err != nil {
			return fmt.Errorf("schema: insert field %q: %w", path, err)
		}
	case nil:
		if forced != 0 {
			s.logger.Debug("upsert skipped: field is forced", zap.String("path", path))
			return tx.Commit()
		}
		cur := typemode.TypeMode{Base: typemode.BaseType(bt), Mode: typemode.Mode(md)}
		widened := typemode.Widen(cur, t)
		if widened != cur {
			if _, err := tx.Exec(`UPDATE fields SET base_type = ?, mode = ? WHERE path = ?`,
				int(widened.Base), int(widened.Mode), path); err != nil {
				return fmt.Errorf("schema: widen field %q: %w", path, err)
			}
			s.logger.Debug("field widened", zap.String("path", path),
				zap.String("from", cur.String()), zap.String("to", widened.String()))
		}
	default:
		return fmt.Errorf("schema: upsert field %q: %w", path, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ForceField(path string, t typemode.TypeMode) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("schema: force field %q: begin: %w", path, err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRow(`SELECT 1 FROM fields WHERE path = ?`, path).Scan(&one)
	switch err {
	case nil:
	case sql.ErrNoRows:
	default:
		return fmt.Errorf("schema: force field %q: %w", path, err)
	}
	if err == nil {
		if _, err := tx.Exec(`UPDATE fields SET base_type = ?, mode = ?, forced = 1 WHERE path = ?`,
			int(t.Base), int(t.Mode), path); err != nil {
			return fmt.Errorf("schema: force field %q: %w", path, err)
		}
	} else {
		seq, err := s.nextSeq(tx, "fields")
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO fields(path, base_type, mode, forced, seq) VALUES (?, ?, ?, 1, ?)`,
			path, int(t.Base), int(t.Mode), seq); err != nil {
			return fmt.Errorf("schema: force field %q: %w", path, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Fields() ([]FieldEntry, error) {
	rows, err := s.db.Query(`SELECT path, base_type, mode, forced FROM fields ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("schema: list fields: %w", err)
	}
	defer rows.Close()
	var out []FieldEntry
	for rows.Next() {
		var path string
		var bt, md, forced int
		if err := rows.Scan(&path, &bt, &md, &forced); err != nil {
			return nil, fmt.Errorf("schema: scan field: %w", err)
		}
		out = append(out, FieldEntry{
			Path:   path,
			Type:   typemode.TypeMode{Base: typemode.BaseType(bt), Mode: typemode.Mode(md)},
			Forced: forced != 0,
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddFragment(id string) error { return s.addSetMember("fragments", "id", id) }
func (s *SQLiteStore) AddShard(value string) error { return s.addSetMember("shards", "value", value) }

func (s *SQLiteStore) addSetMember(table, column, value string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("schema: add %s: begin: %w", table, err)
	}
	defer tx.Rollback()
	seq, err := s.nextSeq(tx, table)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s(%s, seq) VALUES (?, ?) ON CONFLICT(%s) DO NOTHING`, table, column, column)
	if _, err := tx.Exec(q, value, seq); err != nil {
		return fmt.Errorf("schema: add %s %q: %w", table, value, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListFragments() ([]string, error) { return s.listSetMembers("fragments", "id") }
func (s *SQLiteStore) ListShards() ([]string, error)    { return s.listSetMembers("shards", "value") }

func (s *SQLiteStore) listSetMembers(table, column string) ([]string, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s ORDER BY seq ASC`, column, table)
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("schema: list %s: %w", table, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("schema: scan %s: %w", table, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Reset() error {
	for _, table := range []string{"fields", "fragments", "shards", "seq_counter"} {
		if _, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
			return fmt.Errorf("schema: reset %s: %w", table, err)
		}
	}
	s.logger.Info("schema store reset")
	return nil
}
