// Package store is the central engine of qualia: the object table keyed
// by monotonic object id, property rows, tokenized search index, and the
// transactional mutation API described in spec §4.3. It is grounded in
// the teacher's own SQL-backed implementation (nanostore/store.go):
// modernc.org/sqlite opened in WAL mode, squirrel for every statement,
// and a single *sql.DB guarded by one process-exclusive file lock.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/pianohacker/qualia/internal/executor"
	"github.com/pianohacker/qualia/internal/journal"
	"github.com/pianohacker/qualia/internal/queryast"
	"github.com/pianohacker/qualia/internal/value"
	"github.com/pianohacker/qualia/qerr"
)

//go:embed schema/schema.sql
var schemaSQL string

// schemaVersion is the current on-disk schema stamp. Opening a store
// whose meta.schema_version differs fails with qerr.SchemaMismatch —
// qualia never attempts an automatic upgrade.
const schemaVersion = 1

// Config carries the store's few knobs. There are no environment
// variables and no config files — see SPEC_FULL.md's ambient
// configuration note — matching the teacher's own plain Config struct
// (nanostore/config.go) rather than its CLI-facing viper layer.
type Config struct {
	// Separator decides where a Phrase value is split into tokens. nil
	// selects the default policy: any run of ASCII whitespace (space, tab,
	// newline, carriage return, vertical tab, form feed).
	Separator func(rune) bool
	// BusyTimeout bounds how long SQLite itself will wait for a locked
	// page before surfacing SQLITE_BUSY. Zero selects a 5 second default.
	BusyTimeout time.Duration
	// LockRetryInterval is unused by TryLock (which never blocks) but is
	// kept for symmetry with the teacher's FileLock interface and for
	// callers that want to poll Open in a retry loop of their own.
	LockRetryInterval time.Duration
	// Logger receives store lifecycle and checkpoint events. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BusyTimeout == 0 {
		out.BusyTimeout = 5 * time.Second
	}
	if out.LockRetryInterval == 0 {
		out.LockRetryInterval = 50 * time.Millisecond
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Store is the opened, operable handle on a qualia store file.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	cfg  Config
	sb   *sqlBuilder

	tx      *sql.Tx
	pending journal.Pending

	path string
	log  *slog.Logger
}

// execer is satisfied by both *sql.DB and *sql.Tx; the store routes every
// statement through whichever is currently the active handle so that a
// caller's own uncommitted mutations are visible to its own reads.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Open opens (creating if necessary) the qualia store file at path. The
// file is locked exclusively for the lifetime of the returned Store; a
// concurrent Open from another process or instance returns qerr.Busy.
func Open(path string, cfg Config) (*Store, error) {
	const op = "store.Open"
	cfg = cfg.withDefaults()

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, qerr.New(qerr.Io, op, err)
	}
	if !locked {
		return nil, qerr.New(qerr.Busy, op, fmt.Errorf("store %q is held by another process", path))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, qerr.New(qerr.Io, op, err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, qerr.New(qerr.Io, op, fmt.Errorf("%s: %w", pragma, err))
		}
	}

	s := &Store{
		db:   db,
		lock: lock,
		cfg:  cfg,
		sb:   newSQLBuilder(),
		path: path,
		log:  cfg.Logger,
	}

	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	s.log.Debug("store opened", "path", path)
	return s, nil
}

func (s *Store) ensureSchema() error {
	const op = "store.Open"
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return qerr.New(qerr.Io, op, err)
	}

	row := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`)
	var stamp string
	switch err := row.Scan(&stamp); err {
	case sql.ErrNoRows:
		if _, err := s.db.Exec(`INSERT INTO meta(key, value) VALUES ('schema_version', ?)`, strconv.Itoa(schemaVersion)); err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		return nil
	case nil:
		n, convErr := strconv.Atoi(stamp)
		if convErr != nil || n != schemaVersion {
			return qerr.New(qerr.SchemaMismatch, op, fmt.Errorf("store has schema stamp %q, code supports %d", stamp, schemaVersion))
		}
		return nil
	default:
		return qerr.New(qerr.Io, op, err)
	}
}

// Close flushes any sealed checkpoints (already durable) and releases the
// backing file. A dirty store — one with uncommitted mutations — discards
// its pending checkpoint, per spec §4.3's state machine.
func (s *Store) Close() error {
	const op = "store.Close"
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		s.pending.Reset()
	}
	if err := s.db.Close(); err != nil {
		_ = s.lock.Unlock()
		return qerr.New(qerr.Io, op, err)
	}
	if err := s.lock.Unlock(); err != nil {
		return qerr.New(qerr.Io, op, err)
	}
	s.log.Debug("store closed", "path", s.path)
	return nil
}

func (s *Store) conn() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, qerr.New(qerr.Io, "store", err)
		}
		s.tx = tx
	}
	return s.tx, nil
}

// withSavepoint runs fn as a nested atomic unit inside the store's
// currently open checkpoint transaction: a failure partway through fn
// rolls back only fn's own writes, leaving any earlier mutations already
// accumulated in this checkpoint batch untouched. This is what makes each
// individual mutation atomic without forcing every mutation in a batch to
// share one all-or-nothing outcome.
func (s *Store) withSavepoint(ctx context.Context, op string, fn func() error) error {
	if _, err := s.begin(ctx); err != nil {
		return err
	}
	if _, err := s.conn().ExecContext(ctx, `SAVEPOINT mutation`); err != nil {
		return qerr.New(qerr.Io, op, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := s.conn().ExecContext(ctx, `ROLLBACK TO SAVEPOINT mutation`); rbErr != nil {
			return qerr.New(qerr.Io, op, rbErr)
		}
		if _, relErr := s.conn().ExecContext(ctx, `RELEASE SAVEPOINT mutation`); relErr != nil {
			return qerr.New(qerr.Io, op, relErr)
		}
		return err
	}

	if _, err := s.conn().ExecContext(ctx, `RELEASE SAVEPOINT mutation`); err != nil {
		return qerr.New(qerr.Io, op, err)
	}
	return nil
}

// Add inserts a new object with the given properties and returns its
// newly assigned object id, which is guaranteed greater than every
// previously assigned id.
func (s *Store) Add(properties map[string][]value.Value) (int64, error) {
	const op = "store.Add"
	ctx := context.Background()

	var id int64
	err := s.withSavepoint(ctx, op, func() error {
		res, err := s.conn().ExecContext(ctx, `INSERT INTO objects DEFAULT VALUES`)
		if err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return qerr.New(qerr.Io, op, err)
		}

		for name, values := range properties {
			if err := s.insertPropertyRows(ctx, id, name, values); err != nil {
				return err
			}
		}

		s.pending.Record(journal.InverseOp{Kind: journal.InsertInverse, ObjectID: id})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) insertPropertyRows(ctx context.Context, id int64, name string, values []value.Value) error {
	const op = "store.Add"
	for seq, v := range values {
		sc := value.Encode(v)
		sqlStr, args, err := s.sb.buildInsert(
			"properties",
			[]string{"object_id", "name", "seq", "value_tag", "value_payload", "numeric_key", "date_key"},
			[]interface{}{id, name, seq, int(sc.Tag), sc.Payload, sc.NumericKey, sc.DateKey},
		)
		if err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		if _, err := s.conn().ExecContext(ctx, sqlStr, args...); err != nil {
			return qerr.New(qerr.Io, op, err)
		}

		if v.Tag == value.Phrase {
			for _, tok := range value.Tokenize(v.Phrase, s.cfg.Separator) {
				sqlStr, args, err := s.sb.buildInsert("tokens", []string{"object_id", "name", "token"}, []interface{}{id, name, tok})
				if err != nil {
					return qerr.New(qerr.Io, op, err)
				}
				if _, err := s.conn().ExecContext(ctx, sqlStr, args...); err != nil {
					return qerr.New(qerr.Io, op, err)
				}
			}
		}
	}
	return nil
}

func (s *Store) clearPropertyRows(ctx context.Context, id int64, name string) error {
	const op = "store.clearPropertyRows"
	sqlStr, args, err := s.sb.buildDeleteWhere("properties", sq.Eq{"object_id": id, "name": name})
	if err != nil {
		return qerr.New(qerr.Io, op, err)
	}
	if _, err := s.conn().ExecContext(ctx, sqlStr, args...); err != nil {
		return qerr.New(qerr.Io, op, err)
	}

	sqlStr, args, err = s.sb.buildDeleteWhere("tokens", sq.Eq{"object_id": id, "name": name})
	if err != nil {
		return qerr.New(qerr.Io, op, err)
	}
	if _, err := s.conn().ExecContext(ctx, sqlStr, args...); err != nil {
		return qerr.New(qerr.Io, op, err)
	}
	return nil
}

// objectExists reports whether id currently has a row in objects.
func (s *Store) objectExists(ctx context.Context, id int64) (bool, error) {
	row := s.conn().QueryRowContext(ctx, `SELECT 1 FROM objects WHERE object_id = ?`, id)
	var one int
	switch err := row.Scan(&one); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, qerr.New(qerr.Io, "store", err)
	}
}

// Get returns the current property bag for id.
func (s *Store) Get(id int64) (map[string][]value.Value, error) {
	const op = "store.Get"
	ctx := context.Background()

	exists, err := s.objectExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, qerr.New(qerr.NotFound, op, fmt.Errorf("no object with id %d", id))
	}

	return s.readProperties(ctx, id)
}

func (s *Store) readProperties(ctx context.Context, id int64) (map[string][]value.Value, error) {
	const op = "store.Get"
	rows, err := s.conn().QueryContext(ctx,
		`SELECT name, value_tag, value_payload FROM properties WHERE object_id = ? ORDER BY name, seq`, id)
	if err != nil {
		return nil, qerr.New(qerr.Io, op, err)
	}
	defer func() { _ = rows.Close() }()

	bag := map[string][]value.Value{}
	for rows.Next() {
		var name string
		var tag int
		var payload string
		if err := rows.Scan(&name, &tag, &payload); err != nil {
			return nil, qerr.New(qerr.Io, op, err)
		}
		v, err := value.Decode(value.Scalar{Tag: value.Tag(tag), Payload: payload})
		if err != nil {
			return nil, err
		}
		bag[name] = append(bag[name], v)
	}
	if err := rows.Err(); err != nil {
		return nil, qerr.New(qerr.Io, op, err)
	}
	return bag, nil
}

func snapshotProperties(bag map[string][]value.Value) []journal.PropertySnapshot {
	names := make([]string, 0, len(bag))
	for name := range bag {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := make([]journal.PropertySnapshot, 0, len(names))
	for _, name := range names {
		enc, err := encodeValuesJSON(bag[name])
		if err != nil {
			// Encoding a []value.Value we just decoded cannot fail.
			panic(err)
		}
		snap = append(snap, journal.PropertySnapshot{Name: name, Values: enc})
	}
	return snap
}

// Delete removes all property rows and index entries for id.
func (s *Store) Delete(id int64) error {
	const op = "store.Delete"
	ctx := context.Background()

	return s.withSavepoint(ctx, op, func() error {
		exists, err := s.objectExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return qerr.New(qerr.NotFound, op, fmt.Errorf("no object with id %d", id))
		}

		bag, err := s.readProperties(ctx, id)
		if err != nil {
			return err
		}

		for name := range bag {
			if err := s.clearPropertyRows(ctx, id, name); err != nil {
				return err
			}
		}

		sqlStr, args, err := s.sb.buildDeleteWhere("objects", sq.Eq{"object_id": id})
		if err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		if _, err := s.conn().ExecContext(ctx, sqlStr, args...); err != nil {
			return qerr.New(qerr.Io, op, err)
		}

		s.pending.Record(journal.InverseOp{
			Kind:     journal.DeleteInverse,
			ObjectID: id,
			Snapshot: snapshotProperties(bag),
		})
		return nil
	})
}

// Set replaces all values for name on id. An empty values slice removes
// the property entirely.
func (s *Store) Set(id int64, name string, values []value.Value) error {
	const op = "store.Set"
	ctx := context.Background()

	return s.withSavepoint(ctx, op, func() error {
		exists, err := s.objectExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return qerr.New(qerr.NotFound, op, fmt.Errorf("no object with id %d", id))
		}

		return s.setLocked(ctx, id, name, values)
	})
}

// setLocked performs the set mutation assuming the object's existence has
// already been verified by the caller within the same transaction.
func (s *Store) setLocked(ctx context.Context, id int64, name string, values []value.Value) error {
	bag, err := s.readProperties(ctx, id)
	if err != nil {
		return err
	}
	oldValues := bag[name]

	if err := s.clearPropertyRows(ctx, id, name); err != nil {
		return err
	}
	if len(values) > 0 {
		if err := s.insertPropertyRows(ctx, id, name, values); err != nil {
			return err
		}
	}

	enc, err := encodeValuesJSON(oldValues)
	if err != nil {
		return qerr.New(qerr.Io, "store.Set", err)
	}
	s.pending.Record(journal.InverseOp{
		Kind:     journal.SetInverse,
		ObjectID: id,
		Snapshot: []journal.PropertySnapshot{{Name: name, Values: enc}},
	})
	return nil
}

// Rename moves values from oldName to newName, recorded as a set pair:
// oldName is cleared, then newName receives the values oldName held.
func (s *Store) Rename(id int64, oldName, newName string) error {
	const op = "store.Rename"
	ctx := context.Background()

	return s.withSavepoint(ctx, op, func() error {
		exists, err := s.objectExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return qerr.New(qerr.NotFound, op, fmt.Errorf("no object with id %d", id))
		}

		bag, err := s.readProperties(ctx, id)
		if err != nil {
			return err
		}
		moving := bag[oldName]

		if err := s.setLocked(ctx, id, oldName, nil); err != nil {
			return err
		}
		return s.setLocked(ctx, id, newName, moving)
	})
}

// Commit seals the pending checkpoint onto the journal stack. It is a
// no-op if no mutation has been recorded since the last commit or undo.
func (s *Store) Commit(desc ...string) error {
	const op = "store.Commit"
	if s.tx == nil || s.pending.Empty() {
		return nil
	}

	description := ""
	if len(desc) > 0 {
		description = desc[0]
	}

	body, err := journal.EncodeBody(s.pending.Ops())
	if err != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		s.pending.Reset()
		return err
	}

	sqlStr, args, err := s.sb.buildInsert(
		"checkpoints",
		[]string{"created_at", "description", "body"},
		[]interface{}{nowUTC(), description, body},
	)
	if err != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		s.pending.Reset()
		return qerr.New(qerr.Io, op, err)
	}
	if _, err := s.conn().ExecContext(context.Background(), sqlStr, args...); err != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		s.pending.Reset()
		return qerr.New(qerr.Io, op, err)
	}

	if err := s.tx.Commit(); err != nil {
		s.tx = nil
		s.pending.Reset()
		return qerr.New(qerr.Io, op, err)
	}

	s.log.Info("checkpoint committed", "ops", len(s.pending.Ops()), "description", description)
	s.tx = nil
	s.pending.Reset()
	return nil
}

// Undo pops the top sealed checkpoint and applies its inverse as a single
// atomic batch. Undo itself records no new checkpoint. If the journal is
// empty, Undo succeeds silently.
func (s *Store) Undo() error {
	const op = "store.Undo"
	ctx := context.Background()

	if s.tx != nil && !s.pending.Empty() {
		return qerr.New(qerr.Busy, op, fmt.Errorf("cannot undo with uncommitted mutations pending; commit or discard them first"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return qerr.New(qerr.Io, op, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `SELECT seq, body FROM checkpoints ORDER BY seq DESC LIMIT 1`)
	var seq int64
	var body []byte
	switch err := row.Scan(&seq, &body); err {
	case sql.ErrNoRows:
		return nil
	case nil:
		// fall through
	default:
		return qerr.New(qerr.Io, op, err)
	}

	ops, err := journal.DecodeBody(body)
	if err != nil {
		return err
	}

	for _, inv := range journal.Reversed(ops) {
		if err := applyInverse(ctx, tx, inv, s.cfg.Separator); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE seq = ?`, seq); err != nil {
		return qerr.New(qerr.Io, op, err)
	}

	if err := tx.Commit(); err != nil {
		return qerr.New(qerr.Io, op, err)
	}
	committed = true
	s.log.Info("checkpoint undone", "seq", seq)
	return nil
}

func applyInverse(ctx context.Context, tx *sql.Tx, inv journal.InverseOp, sep func(rune) bool) error {
	const op = "store.Undo"
	switch inv.Kind {
	case journal.InsertInverse:
		if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE object_id = ?`, inv.ObjectID); err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE object_id = ?`, inv.ObjectID); err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE object_id = ?`, inv.ObjectID); err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		return nil

	case journal.DeleteInverse:
		if _, err := tx.ExecContext(ctx, `INSERT INTO objects(object_id) VALUES (?)`, inv.ObjectID); err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		for _, prop := range inv.Snapshot {
			values, err := decodeValuesJSON(prop.Values)
			if err != nil {
				return err
			}
			if err := insertPropertyRowsTx(ctx, tx, inv.ObjectID, prop.Name, values, sep); err != nil {
				return err
			}
		}
		return nil

	case journal.SetInverse:
		if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE object_id = ? AND name = ?`, inv.ObjectID, inv.Snapshot[0].Name); err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE object_id = ? AND name = ?`, inv.ObjectID, inv.Snapshot[0].Name); err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		values, err := decodeValuesJSON(inv.Snapshot[0].Values)
		if err != nil {
			return err
		}
		return insertPropertyRowsTx(ctx, tx, inv.ObjectID, inv.Snapshot[0].Name, values, sep)

	default:
		return qerr.New(qerr.CorruptData, op, fmt.Errorf("unrecognized inverse op kind %d", inv.Kind))
	}
}

// insertPropertyRowsTx duplicates Store.insertPropertyRows' statement
// shapes against a raw *sql.Tx, since Undo runs outside the store's own
// pending transaction.
func insertPropertyRowsTx(ctx context.Context, tx *sql.Tx, id int64, name string, values []value.Value, sep func(rune) bool) error {
	const op = "store.Undo"
	sb := newSQLBuilder()
	for seq, v := range values {
		sc := value.Encode(v)
		sqlStr, args, err := sb.buildInsert(
			"properties",
			[]string{"object_id", "name", "seq", "value_tag", "value_payload", "numeric_key", "date_key"},
			[]interface{}{id, name, seq, int(sc.Tag), sc.Payload, sc.NumericKey, sc.DateKey},
		)
		if err != nil {
			return qerr.New(qerr.Io, op, err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return qerr.New(qerr.Io, op, err)
		}

		if v.Tag == value.Phrase {
			for _, tok := range value.Tokenize(v.Phrase, sep) {
				sqlStr, args, err := sb.buildInsert("tokens", []string{"object_id", "name", "token"}, []interface{}{id, name, tok})
				if err != nil {
					return qerr.New(qerr.Io, op, err)
				}
				if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
					return qerr.New(qerr.Io, op, err)
				}
			}
		}
	}
	return nil
}

// Query compiles and runs a query, returning a lazy Collection over the
// matching object ids.
func (s *Store) Query(src string) (*Collection, error) {
	q, err := ParseQuery(src)
	if err != nil {
		return nil, err
	}
	return s.QueryAST(q)
}

// QueryAST runs an already-parsed query.
func (s *Store) QueryAST(q *queryast.Query) (*Collection, error) {
	ctx := context.Background()
	ids, err := executor.Execute(ctx, s.conn(), q)
	if err != nil {
		return nil, err
	}
	return &Collection{store: s, ids: ids}, nil
}

func nowUTC() time.Time { return time.Now().UTC() }
