// Package dbtest provides a scripted Executor for tests that exercise SQL
// synthesis and orchestration without a live server.
package dbtest

import (
	"context"
	"strings"
	"sync"

	"github.com/stagemerge/stagemerge/internal/model"
)

// Call records one statement the fake received.
type Call struct {
	Query string
	Args  []any
}

// Result is what a matched rule returns. A Once result is consumed by its
// first match, letting tests script successive answers to the same
// statement text.
type Result struct {
	Rowset   *model.Rowset
	Scalar   any
	Affected int64
	Err      error
	Once     bool
}

type rule struct {
	substr string
	res    Result
	used   bool
}

// Fake is a scripted db.Executor. Rules are matched by substring against the
// statement text, first match wins; unmatched statements succeed with an
// empty result.
type Fake struct {
	mu    sync.Mutex
	rules []rule

	Calls []Call
}

// On registers a result for statements containing substr.
func (f *Fake) On(substr string, res Result) *Fake {
	f.rules = append(f.rules, rule{substr: substr, res: res})
	return f
}

func (f *Fake) match(query string) Result {
	for i := range f.rules {
		r := &f.rules[i]
		if r.used || !strings.Contains(query, r.substr) {
			continue
		}
		if r.res.Once {
			r.used = true
		}
		return r.res
	}
	return Result{}
}

func (f *Fake) record(query string, args []any) Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Query: query, Args: args})
	return f.match(query)
}

// Exec implements db.Executor.
func (f *Fake) Exec(_ context.Context, query string, args ...any) (int64, error) {
	res := f.record(query, args)
	return res.Affected, res.Err
}

// Query implements db.Executor.
func (f *Fake) Query(_ context.Context, query string, args ...any) (*model.Rowset, error) {
	res := f.record(query, args)
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Rowset == nil {
		return &model.Rowset{}, nil
	}
	return res.Rowset, nil
}

// QueryScalar implements db.Executor.
func (f *Fake) QueryScalar(_ context.Context, query string, args ...any) (any, error) {
	res := f.record(query, args)
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Scalar != nil {
		return res.Scalar, nil
	}
	if res.Rowset != nil && len(res.Rowset.Rows) > 0 && len(res.Rowset.Rows[0]) > 0 {
		return res.Rowset.Rows[0][0], nil
	}
	return nil, nil
}

// Queries returns the statement text of every call, in order.
func (f *Fake) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.Query
	}
	return out
}

// Rows builds a rowset from column headers and row values.
func Rows(cols []string, rows ...[]any) *model.Rowset {
	return &model.Rowset{Columns: cols, Rows: rows}
}
