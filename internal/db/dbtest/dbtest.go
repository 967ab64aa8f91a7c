// Package dbtest provides a scripted db.DataAccess for tests.
package dbtest

import (
	"context"
	"strings"
	"sync"

	"facility-alerting/internal/db"
)

type Call struct {
	Kind string
	SQL  string
	Args []any
}

type QueryFunc func(args []any) ([]db.Row, error)
type ExecFunc func(args []any) (int64, error)

type handler struct {
	kind  string
	match string
	query QueryFunc
	exec  ExecFunc
}

// DataAccess matches statements by substring against registered handlers,
// most recent registration first. Unmatched queries return no rows,
// unmatched executes report one affected row and unmatched inserts return
// sequential ids.
type DataAccess struct {
	mu       sync.Mutex
	calls    []Call
	handlers []handler
	tables   map[string]bool
	nextID   int64
}

var _ db.DataAccess = (*DataAccess)(nil)

func New() *DataAccess {
	return &DataAccess{tables: make(map[string]bool)}
}

func (f *DataAccess) OnQuery(match string, fn QueryFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler{kind: "query", match: match, query: fn})
}

func (f *DataAccess) OnExecute(match string, fn ExecFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler{kind: "execute", match: match, exec: fn})
}

func (f *DataAccess) OnInsert(match string, fn ExecFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler{kind: "insert", match: match, exec: fn})
}

func (f *DataAccess) SetTable(name string, exists bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = exists
}

func (f *DataAccess) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsMatching returns the recorded calls whose SQL contains substr.
func (f *DataAccess) CallsMatching(substr string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if strings.Contains(c.SQL, substr) {
			out = append(out, c)
		}
	}
	return out
}

func (f *DataAccess) record(kind, sql string, args []any) *handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Kind: kind, SQL: sql, Args: args})
	for i := len(f.handlers) - 1; i >= 0; i-- {
		h := f.handlers[i]
		if h.kind == kind && strings.Contains(sql, h.match) {
			return &h
		}
	}
	return nil
}

func (f *DataAccess) QueryOne(ctx context.Context, sql string, args ...any) (db.Row, error) {
	rows, err := f.Query(ctx, sql, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (f *DataAccess) Query(_ context.Context, sql string, args ...any) ([]db.Row, error) {
	h := f.record("query", sql, args)
	if h == nil {
		return nil, nil
	}
	return h.query(args)
}

func (f *DataAccess) Insert(_ context.Context, sql string, args ...any) (int64, error) {
	h := f.record("insert", sql, args)
	if h != nil {
		return h.exec(args)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID, nil
}

func (f *DataAccess) Execute(_ context.Context, sql string, args ...any) (int64, error) {
	h := f.record("execute", sql, args)
	if h != nil {
		return h.exec(args)
	}
	if name, ok := createdTable(sql); ok {
		f.SetTable(name, true)
	}
	return 1, nil
}

func (f *DataAccess) TableExists(_ context.Context, name string) (bool, error) {
	f.record("table_exists", name, nil)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[name], nil
}

func createdTable(sql string) (string, bool) {
	const marker = "CREATE TABLE IF NOT EXISTS "
	i := strings.Index(sql, marker)
	if i < 0 {
		return "", false
	}
	fields := strings.Fields(sql[i+len(marker):])
	if len(fields) == 0 {
		return "", false
	}
	return strings.TrimSuffix(fields[0], "("), true
}
