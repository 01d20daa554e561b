// Package sqlitestore is a single-user stand-in for the hosted data service,
// backed by a local SQLite file. It speaks the same collections and row
// shapes and applies the same ownership rules.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/harrisonrobin/taskdeck/pkg/apperr"
	"github.com/harrisonrobin/taskdeck/pkg/gateway"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	is_completed INTEGER NOT NULL DEFAULT 0,
	due_date     TEXT,
	category     TEXT NOT NULL DEFAULT 'home',
	user_id      TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS tasks_user ON tasks(user_id);
CREATE TABLE IF NOT EXISTS profiles (
	id   TEXT PRIMARY KEY,
	role TEXT NOT NULL DEFAULT 'user'
);
`

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type kind int

const (
	kindText kind = iota
	kindBool
	kindNullText
)

type column struct {
	name string
	kind kind
}

type collection struct {
	table   string
	columns []column
	// owner is the column holding the owning user ID.
	owner string
}

func (c collection) column(name string) (column, bool) {
	for _, col := range c.columns {
		if col.name == name {
			return col, true
		}
	}
	return column{}, false
}

var collections = map[string]collection{
	"tasks": {
		table: "tasks",
		columns: []column{
			{"id", kindText}, {"title", kindText}, {"is_completed", kindBool},
			{"due_date", kindNullText}, {"category", kindText}, {"user_id", kindText},
			{"created_at", kindText},
		},
		owner: "user_id",
	},
	"profiles": {
		table:   "profiles",
		columns: []column{{"id", kindText}, {"role", kindText}},
		owner:   "id",
	},
}

// Store is a gateway.Gateway bound to one local user.
type Store struct {
	db   *sql.DB
	user model.User
	now  func() time.Time
}

var _ gateway.Gateway = (*Store)(nil)

// Open opens (or creates) the database at path and makes sure user has a
// profile with role. The caller is responsible for calling Close.
func Open(path string, user model.User, role model.Role) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if user.ID != "" {
		if _, err := db.Exec(`INSERT OR IGNORE INTO profiles (id, role) VALUES (?, ?)`, user.ID, string(role)); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed profile: %w", err)
		}
	}
	return &Store{db: db, user: user, now: time.Now}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) CurrentUser(ctx context.Context) (*model.User, error) {
	if s.user.ID == "" {
		return nil, nil
	}
	u := s.user
	return &u, nil
}

func (s *Store) isAdmin(ctx context.Context) (bool, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id = ?`, s.user.ID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role == string(model.RoleAdmin), nil
}

// scope resolves a collection and appends the ownership condition unless
// the user is an admin.
func (s *Store) scope(ctx context.Context, op, name string, filter gateway.Filter) (collection, gateway.Filter, error) {
	if s.user.ID == "" {
		return collection{}, nil, fmt.Errorf("%s: %w", op, apperr.ErrAuthRequired)
	}
	c, ok := collections[name]
	if !ok {
		return collection{}, nil, &apperr.GatewayError{Op: op, Status: 404, Err: fmt.Errorf("unknown collection %q", name)}
	}
	admin, err := s.isAdmin(ctx)
	if err != nil {
		return collection{}, nil, &apperr.GatewayError{Op: op, Err: err}
	}
	out := append(gateway.Filter{}, filter...)
	if !admin {
		out = out.And(c.owner, s.user.ID)
	}
	return c, out, nil
}

func (s *Store) Select(ctx context.Context, name string, filter gateway.Filter, order ...gateway.Order) ([]json.RawMessage, error) {
	op := "select " + name
	c, filter, err := s.scope(ctx, op, name, filter)
	if err != nil {
		return nil, err
	}
	where, args, err := buildWhere(c, filter)
	if err != nil {
		return nil, &apperr.GatewayError{Op: op, Status: 400, Err: err}
	}
	names := make([]string, len(c.columns))
	for i, col := range c.columns {
		names[i] = col.name
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(names, ", "), c.table, where)
	if len(order) > 0 {
		parts := make([]string, 0, len(order))
		for _, o := range order {
			if _, ok := c.column(o.Column); !ok {
				return nil, &apperr.GatewayError{Op: op, Status: 400, Err: fmt.Errorf("unknown column %q", o.Column)}
			}
			p := o.Column + " ASC"
			if o.Descending {
				p = o.Column + " DESC"
			}
			if o.NullsLast {
				p += " NULLS LAST"
			}
			parts = append(parts, p)
		}
		q += " ORDER BY " + strings.Join(parts, ", ")
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &apperr.GatewayError{Op: op, Err: err}
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		raw, err := scanRow(c, rows)
		if err != nil {
			return nil, &apperr.GatewayError{Op: op, Err: err}
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperr.GatewayError{Op: op, Err: err}
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, name string, row any) (json.RawMessage, error) {
	op := "insert " + name
	c, _, err := s.scope(ctx, op, name, nil)
	if err != nil {
		return nil, err
	}
	values, err := toMap(row)
	if err != nil {
		return nil, &apperr.GatewayError{Op: op, Status: 400, Err: err}
	}
	if name == "tasks" {
		values["id"] = uuid.NewString()
		values["created_at"] = s.now().UTC().Format(timeLayout)
		values["user_id"] = s.user.ID
	}

	cols := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for k, v := range values {
		col, ok := c.column(k)
		if !ok {
			return nil, &apperr.GatewayError{Op: op, Status: 400, Err: fmt.Errorf("unknown column %q", k)}
		}
		cols = append(cols, k)
		args = append(args, sqlValue(col, v))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", c.table, strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, &apperr.GatewayError{Op: op, Status: 409, Err: err}
	}

	id, _ := values["id"].(string)
	rows, err := s.Select(ctx, name, gateway.Where("id", id))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &apperr.GatewayError{Op: op, Err: errors.New("inserted row not readable")}
	}
	return rows[0], nil
}

func (s *Store) Update(ctx context.Context, name string, patch map[string]any, filter gateway.Filter) error {
	op := "update " + name
	c, filter, err := s.scope(ctx, op, name, filter)
	if err != nil {
		return err
	}
	if name == "profiles" {
		if admin, _ := s.isAdmin(ctx); !admin {
			return &apperr.GatewayError{Op: op, Status: 403, Err: errors.New("profiles are read-only")}
		}
	}
	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch))
	for k, v := range patch {
		col, ok := c.column(k)
		if !ok || k == "id" || k == "user_id" || k == "created_at" {
			return &apperr.GatewayError{Op: op, Status: 400, Err: fmt.Errorf("column %q cannot be updated", k)}
		}
		sets = append(sets, k+" = ?")
		args = append(args, sqlValue(col, v))
	}
	if len(sets) == 0 {
		return nil
	}
	where, wargs, err := buildWhere(c, filter)
	if err != nil {
		return &apperr.GatewayError{Op: op, Status: 400, Err: err}
	}
	q := fmt.Sprintf("UPDATE %s SET %s%s", c.table, strings.Join(sets, ", "), where)
	if _, err := s.db.ExecContext(ctx, q, append(args, wargs...)...); err != nil {
		return &apperr.GatewayError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string, filter gateway.Filter) error {
	op := "delete " + name
	c, filter, err := s.scope(ctx, op, name, filter)
	if err != nil {
		return err
	}
	where, args, err := buildWhere(c, filter)
	if err != nil {
		return &apperr.GatewayError{Op: op, Status: 400, Err: err}
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+c.table+where, args...); err != nil {
		return &apperr.GatewayError{Op: op, Err: err}
	}
	return nil
}

func buildWhere(c collection, f gateway.Filter) (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(f))
	args := make([]any, 0, len(f))
	for _, cond := range f {
		col, ok := c.column(cond.Column)
		if !ok {
			return "", nil, fmt.Errorf("unknown column %q", cond.Column)
		}
		switch cond.Op {
		case gateway.Eq, "":
			if cond.Value == nil {
				parts = append(parts, col.name+" IS NULL")
				continue
			}
			parts = append(parts, col.name+" = ?")
		case gateway.Neq:
			parts = append(parts, col.name+" <> ?")
		case gateway.ILike:
			parts = append(parts, col.name+" LIKE ?")
			args = append(args, "%"+fmt.Sprint(cond.Value)+"%")
			continue
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", cond.Op)
		}
		args = append(args, sqlValue(col, cond.Value))
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func sqlValue(col column, v any) any {
	if col.kind == kindBool {
		switch x := v.(type) {
		case bool:
			if x {
				return 1
			}
			return 0
		case string:
			if x == "true" {
				return 1
			}
			return 0
		}
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(timeLayout)
	}
	return v
}

func toMap(row any) (map[string]any, error) {
	if m, ok := row.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, nil
	}
	b, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("row must be an object: %w", err)
	}
	return m, nil
}

// scanRow renders one row as the JSON object the hosted service would return.
func scanRow(c collection, rows *sql.Rows) (json.RawMessage, error) {
	dest := make([]any, len(c.columns))
	for i, col := range c.columns {
		switch col.kind {
		case kindBool:
			dest[i] = new(bool)
		case kindNullText:
			dest[i] = new(sql.NullString)
		default:
			dest[i] = new(string)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	obj := make(map[string]any, len(c.columns))
	for i, col := range c.columns {
		switch v := dest[i].(type) {
		case *bool:
			obj[col.name] = *v
		case *sql.NullString:
			if v.Valid {
				obj[col.name] = v.String
			} else {
				obj[col.name] = nil
			}
		case *string:
			obj[col.name] = *v
		}
	}
	return json.Marshal(obj)
}
