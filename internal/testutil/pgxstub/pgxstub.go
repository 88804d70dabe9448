// Package pgxstub provides scripted infra.SQLExecutor doubles for repository
// and ledger tests.
package pgxstub

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call captures one statement issued against the Executor.
type Call struct {
	Query string
	Args  []any
}

// Marker returns the `--sql <uuid>` marker of the call's query.
func (c Call) Marker() string {
	first, _, _ := strings.Cut(strings.TrimSpace(c.Query), "\n")
	return strings.TrimPrefix(strings.TrimSpace(first), "--sql ")
}

// Executor answers statements through the configured functions. Unset
// functions answer with pgx.ErrNoRows for rows and an empty tag for Exec.
type Executor struct {
	ExecFn     func(query string, args []any) (pgconn.CommandTag, error)
	QueryRowFn func(query string, args []any) pgx.Row
	QueryFn    func(query string, args []any) (pgx.Rows, error)

	mu    sync.Mutex
	calls []Call
}

func (e *Executor) record(query string, args []any) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Query: query, Args: args})
	e.mu.Unlock()
}

// Calls returns a copy of the recorded statements.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}

// LastCall returns the most recent statement or a zero Call.
func (e *Executor) LastCall() Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		return Call{}
	}
	return e.calls[len(e.calls)-1]
}

func (e *Executor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	e.record(query, args)
	if e.ExecFn == nil {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return e.ExecFn(query, args)
}

func (e *Executor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	e.record(query, args)
	if e.QueryRowFn == nil {
		return Row{Err: pgx.ErrNoRows}
	}
	return e.QueryRowFn(query, args)
}

func (e *Executor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	e.record(query, args)
	if e.QueryFn == nil {
		return &Rows{}, nil
	}
	return e.QueryFn(query, args)
}

// Row is a single scripted result row.
type Row struct {
	Values []any
	Err    error
}

// NewRow returns a row that scans values positionally.
func NewRow(values ...any) Row {
	return Row{Values: values}
}

func (r Row) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	return assign(r.Values, dest)
}

// Rows iterates over scripted result rows.
type Rows struct {
	Data    [][]any
	ScanErr error
	idx     int
	closed  bool
}

func (r *Rows) Close()                                       { r.closed = true }
func (r *Rows) Err() error                                   { return nil }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Values() ([]any, error) {
	return nil, errors.New("values not supported in test rows")
}

func (r *Rows) Next() bool {
	if r.closed || r.idx >= len(r.Data) {
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.ScanErr != nil {
		return r.ScanErr
	}
	if r.idx == 0 || r.idx > len(r.Data) {
		return errors.New("scan called without a current row")
	}
	return assign(r.Data[r.idx-1], dest)
}

func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values for %d destinations", len(values), len(dest))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if values[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		switch {
		case v.Type().AssignableTo(elem.Type()):
			elem.Set(v)
		case v.Type().ConvertibleTo(elem.Type()):
			elem.Set(v.Convert(elem.Type()))
		default:
			return fmt.Errorf("scan: cannot assign %T to destination %d (%s)", values[i], i, elem.Type())
		}
	}
	return nil
}
