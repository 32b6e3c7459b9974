package catalog

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/stagemerge/stagemerge/internal/db/dbtest"
)

func TestTableExists(t *testing.T) {
	fake := &dbtest.Fake{}
	fake.On("information_schema.tables", dbtest.Result{Scalar: int64(1)})

	insp := New(fake, "staging", "public")
	ok, err := insp.TableExists(context.Background(), "public", "genres")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected table to exist")
	}
	if len(fake.Calls) != 1 {
		t.Fatalf("expected 1 query, got %d", len(fake.Calls))
	}
	if !reflect.DeepEqual(fake.Calls[0].Args, []any{"public", "genres"}) {
		t.Errorf("unexpected args: %v", fake.Calls[0].Args)
	}
}

func TestPrimaryKeyOrder(t *testing.T) {
	fake := &dbtest.Fake{}
	fake.On("PRIMARY KEY", dbtest.Result{
		Rowset: dbtest.Rows([]string{"column_name"}, []any{"book_id"}, []any{"author_id"}),
	})

	insp := New(fake, "staging", "public")
	pk, err := insp.PrimaryKey(context.Background(), "public", "book_authors")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(pk, []string{"book_id", "author_id"}) {
		t.Errorf("PrimaryKey = %v", pk)
	}
	if !strings.Contains(fake.Calls[0].Query, "ORDER BY kcu.ordinal_position") {
		t.Error("primary key query must preserve ordinal order")
	}
}

func TestForeignKeysGrouping(t *testing.T) {
	fake := &dbtest.Fake{}
	cols := []string{"constraint_name", "column_name", "referenced_schema", "referenced_table", "referenced_column"}
	fake.On("referential_constraints", dbtest.Result{
		Rowset: dbtest.Rows(cols,
			[]any{"book_authors_book_id_fkey", "book_id", "public", "books", "book_id"},
			[]any{"book_authors_pair_fkey", "book_id", "public", "pairs", "b_id"},
			[]any{"book_authors_pair_fkey", "author_id", "public", "pairs", "a_id"},
		),
	})

	insp := New(fake, "staging", "public")
	fks, err := insp.ForeignKeys(context.Background(), "public", "book_authors")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fks) != 2 {
		t.Fatalf("expected 2 foreign keys, got %d", len(fks))
	}
	if fks[0].Name != "book_authors_book_id_fkey" || len(fks[0].Columns) != 1 {
		t.Errorf("unexpected first fk: %+v", fks[0])
	}
	second := fks[1]
	if !reflect.DeepEqual(second.Columns, []string{"book_id", "author_id"}) {
		t.Errorf("composite fk local columns = %v", second.Columns)
	}
	if !reflect.DeepEqual(second.ReferencedColumns, []string{"b_id", "a_id"}) {
		t.Errorf("composite fk referenced columns = %v", second.ReferencedColumns)
	}
	if second.ReferencedSchema != "public" || second.ReferencedTable != "pairs" {
		t.Errorf("unexpected referenced table: %+v", second)
	}
}

func TestCheckConstraintsFilterNotNull(t *testing.T) {
	fake := &dbtest.Fake{}
	fake.On("check_constraints", dbtest.Result{
		Rowset: dbtest.Rows([]string{"constraint_name", "check_clause"},
			[]any{"authors_first_name_check", "((first_name)::text ~ '^[a-zA-Z]+$'::text)"},
		),
	})

	insp := New(fake, "staging", "public")
	cks, err := insp.CheckConstraints(context.Background(), "public", "authors")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cks) != 1 {
		t.Fatalf("expected 1 constraint, got %d", len(cks))
	}
	if cks[0].Name != "authors_first_name_check" {
		t.Errorf("unexpected constraint name: %s", cks[0].Name)
	}
	if !strings.Contains(fake.Calls[0].Query, "NOT LIKE '%IS NOT NULL'") {
		t.Error("query must filter auto-generated NOT NULL constraints")
	}
}

func describeFake(baseCols, stgCols [][]any) *dbtest.Fake {
	fake := &dbtest.Fake{}
	fake.On("information_schema.tables", dbtest.Result{Scalar: int64(1)})
	// The NOT NULL variant must be registered before the generic columns
	// rule; both statements read information_schema.columns.
	fake.On("is_nullable", dbtest.Result{
		Rowset: dbtest.Rows([]string{"column_name"}, []any{"genre"}),
	})
	fake.On("information_schema.columns", dbtest.Result{
		Rowset: dbtest.Rows([]string{"column_name"}, baseCols...), Once: true,
	})
	fake.On("information_schema.columns", dbtest.Result{
		Rowset: dbtest.Rows([]string{"column_name"}, stgCols...), Once: true,
	})
	fake.On("PRIMARY KEY", dbtest.Result{
		Rowset: dbtest.Rows([]string{"column_name"}, []any{"genre"}),
	})
	return fake
}

func TestDescribe(t *testing.T) {
	fake := describeFake(
		[][]any{{"genre"}, {"description"}},
		[][]any{{"genre"}, {"description"}},
	)

	insp := New(fake, "staging", "public")
	d, err := insp.Describe(context.Background(), "genres", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.BaseName != `"public"."genres"` || d.StgName != `"staging"."genres"` {
		t.Errorf("unexpected qualified names: %s / %s", d.BaseName, d.StgName)
	}
	if !reflect.DeepEqual(d.Columns, []string{"genre", "description"}) {
		t.Errorf("Columns = %v", d.Columns)
	}
	if !reflect.DeepEqual(d.DMLColumns, []string{"genre", "description"}) {
		t.Errorf("DMLColumns = %v", d.DMLColumns)
	}
	if !reflect.DeepEqual(d.PrimaryKey, []string{"genre"}) {
		t.Errorf("PrimaryKey = %v", d.PrimaryKey)
	}
	if !reflect.DeepEqual(d.NotNullColumns, []string{"genre"}) {
		t.Errorf("NotNullColumns = %v", d.NotNullColumns)
	}
}

func TestDescribeExcludeCols(t *testing.T) {
	fake := describeFake(
		[][]any{{"genre"}, {"description"}, {"audit_user"}},
		[][]any{{"genre"}, {"description"}},
	)

	insp := New(fake, "staging", "public")
	d, err := insp.Describe(context.Background(), "genres", []string{"audit_user"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(d.DMLColumns, []string{"genre", "description"}) {
		t.Errorf("DMLColumns = %v", d.DMLColumns)
	}
}

func TestDescribeMissingStagingColumn(t *testing.T) {
	fake := describeFake(
		[][]any{{"genre"}, {"description"}},
		[][]any{{"genre"}},
	)

	insp := New(fake, "staging", "public")
	_, err := insp.Describe(context.Background(), "genres", nil, nil)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if !strings.Contains(err.Error(), "description") {
		t.Errorf("error should name the missing column: %v", err)
	}
}

func TestDescribeMissingStagingTable(t *testing.T) {
	fake := &dbtest.Fake{}
	fake.On("information_schema.tables", dbtest.Result{Scalar: int64(1), Once: true})
	fake.On("information_schema.tables", dbtest.Result{Scalar: int64(0), Once: true})

	insp := New(fake, "staging", "public")
	_, err := insp.Describe(context.Background(), "genres", nil, nil)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if !strings.Contains(err.Error(), "staging.genres") {
		t.Errorf("error should name the staging table: %v", err)
	}
}
