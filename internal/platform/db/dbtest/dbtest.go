// Package dbtest provides a scripted stand-in for the pgx query surface the
// repositories accept. Rows are matched by an SQL fragment and scanned into
// destinations by position.
package dbtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call records one statement sent to the DB.
type Call struct {
	SQL  string
	Args []interface{}
}

// DB answers Query and QueryRow from canned rows and records every call.
type DB struct {
	mu sync.Mutex

	// Rows maps an SQL fragment to the rows returned for queries containing it.
	Rows map[string][][]interface{}

	// Affected is the row count reported by Exec. Zero means none matched.
	Affected int64

	// Err, when set, fails every statement.
	Err error

	Execs   []Call
	Queries []Call
}

// New returns a DB whose Exec calls report one affected row.
func New() *DB {
	return &DB{Rows: map[string][][]interface{}{}, Affected: 1}
}

// Exec implements the repositories' dbtx.
func (d *DB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Execs = append(d.Execs, Call{SQL: sql, Args: args})
	if d.Err != nil {
		return pgconn.CommandTag{}, d.Err
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", d.Affected)), nil
}

// Query implements the repositories' dbtx.
func (d *DB) Query(_ context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Queries = append(d.Queries, Call{SQL: sql, Args: args})
	if d.Err != nil {
		return nil, d.Err
	}
	return &Rows{values: d.match(sql), index: -1}, nil
}

// QueryRow implements the repositories' dbtx. No matching row yields
// pgx.ErrNoRows on Scan.
func (d *DB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	rows, err := d.Query(ctx, sql, args...)
	if err != nil {
		return row{err: err}
	}
	r := rows.(*Rows)
	if !r.Next() {
		return row{err: pgx.ErrNoRows}
	}
	return row{values: r.values[r.index]}
}

// LastExec returns the most recent Exec call.
func (d *DB) LastExec() Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Execs) == 0 {
		return Call{}
	}
	return d.Execs[len(d.Execs)-1]
}

func (d *DB) match(sql string) [][]interface{} {
	for fragment, rows := range d.Rows {
		if strings.Contains(sql, fragment) {
			return rows
		}
	}
	return nil
}

// Rows iterates canned values.
type Rows struct {
	values [][]interface{}
	index  int
}

func (r *Rows) Close() { r.index = len(r.values) }

func (r *Rows) Err() error { return nil }

func (r *Rows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *Rows) Next() bool {
	if r.index+1 >= len(r.values) {
		r.index = len(r.values)
		return false
	}
	r.index++
	return true
}

func (r *Rows) Scan(dest ...interface{}) error {
	if r.index < 0 || r.index >= len(r.values) {
		return fmt.Errorf("dbtest: no row available")
	}
	return scan(r.values[r.index], dest)
}

func (r *Rows) Values() ([]interface{}, error) {
	if r.index < 0 || r.index >= len(r.values) {
		return nil, fmt.Errorf("dbtest: no row available")
	}
	return r.values[r.index], nil
}

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }

type row struct {
	values []interface{}
	err    error
}

func (r row) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return scan(r.values, dest)
}

type scanner interface {
	Scan(src any) error
}

func scan(values, dest []interface{}) error {
	if len(values) != len(dest) {
		return fmt.Errorf("dbtest: row has %d columns, scan wants %d", len(values), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], values[i]); err != nil {
			return fmt.Errorf("dbtest: column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, src interface{}) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	target := dv.Elem()
	if src == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	if target.Kind() == reflect.Pointer && sv.Kind() != reflect.Pointer {
		elem := reflect.New(target.Type().Elem())
		if err := set(elem.Elem(), sv); err != nil {
			return err
		}
		target.Set(elem)
		return nil
	}
	if err := set(target, sv); err != nil {
		if s, ok := dest.(scanner); ok {
			return s.Scan(src)
		}
		return err
	}
	return nil
}

func set(target, sv reflect.Value) error {
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case sv.Kind() == target.Kind() && sv.Type().ConvertibleTo(target.Type()):
		target.Set(sv.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot scan %s into %s", sv.Type(), target.Type())
	}
	return nil
}
