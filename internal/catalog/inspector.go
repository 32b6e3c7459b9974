// Package catalog reads the PostgreSQL system catalogs to discover table
// shapes and the constraints declared on base-schema tables, and assembles
// the per-table descriptors the QA and upsert engines run from.
package catalog

import (
	"context"

	"github.com/stagemerge/stagemerge/internal/db"
	"github.com/stagemerge/stagemerge/internal/model"
	"github.com/stagemerge/stagemerge/internal/query"
)

const tableExistsQuery = `SELECT count(*) FROM information_schema.tables
	WHERE table_schema = $1 AND table_name = $2`

const schemaExistsQuery = `SELECT count(*) FROM information_schema.schemata
	WHERE schema_name = $1`

const columnsQuery = `SELECT column_name FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

const notNullQuery = `SELECT column_name FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2 AND is_nullable = 'NO'
	ORDER BY ordinal_position`

const primaryKeyQuery = `SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
		AND tc.table_schema = kcu.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY'
		AND tc.table_schema = $1
		AND tc.table_name = $2
	ORDER BY kcu.ordinal_position`

// Local and referenced columns are paired through position_in_unique_constraint;
// constraint_column_usage does not preserve ordering for composite keys.
const foreignKeysQuery = `SELECT
		rc.constraint_name,
		kcu.column_name,
		kcu2.table_schema AS referenced_schema,
		kcu2.table_name AS referenced_table,
		kcu2.column_name AS referenced_column
	FROM information_schema.referential_constraints rc
	JOIN information_schema.key_column_usage kcu
		ON kcu.constraint_schema = rc.constraint_schema
		AND kcu.constraint_name = rc.constraint_name
	JOIN information_schema.key_column_usage kcu2
		ON kcu2.constraint_schema = rc.unique_constraint_schema
		AND kcu2.constraint_name = rc.unique_constraint_name
		AND kcu2.ordinal_position = kcu.position_in_unique_constraint
	WHERE kcu.table_schema = $1 AND kcu.table_name = $2
	ORDER BY rc.constraint_name, kcu.ordinal_position`

// NOT NULL columns surface in check_constraints as auto-generated
// "col IS NOT NULL" clauses; those are the NOT-NULL check's business.
const checkConstraintsQuery = `SELECT tc.constraint_name, cc.check_clause
	FROM information_schema.table_constraints tc
	JOIN information_schema.check_constraints cc
		ON cc.constraint_schema = tc.constraint_schema
		AND cc.constraint_name = tc.constraint_name
	WHERE tc.constraint_type = 'CHECK'
		AND tc.table_schema = $1
		AND tc.table_name = $2
		AND cc.check_clause NOT LIKE '%IS NOT NULL'
	ORDER BY tc.constraint_name`

// Inspector discovers table shapes and base-table constraints from the
// system catalogs.
type Inspector struct {
	exec       db.Executor
	stgSchema  string
	baseSchema string
}

// New creates an Inspector reading from the given session.
func New(exec db.Executor, stgSchema, baseSchema string) *Inspector {
	return &Inspector{exec: exec, stgSchema: stgSchema, baseSchema: baseSchema}
}

// SchemaExists reports whether the named schema exists.
func (i *Inspector) SchemaExists(ctx context.Context, schema string) (bool, error) {
	n, err := i.exec.QueryScalar(ctx, schemaExistsQuery, schema)
	if err != nil {
		return false, err
	}
	return model.AsInt64(n) > 0, nil
}

// TableExists reports whether the named table exists in the schema.
func (i *Inspector) TableExists(ctx context.Context, schema, name string) (bool, error) {
	n, err := i.exec.QueryScalar(ctx, tableExistsQuery, schema, name)
	if err != nil {
		return false, err
	}
	return model.AsInt64(n) > 0, nil
}

// Columns returns the table's column names in ordinal order.
func (i *Inspector) Columns(ctx context.Context, schema, name string) ([]string, error) {
	return i.stringColumn(ctx, columnsQuery, schema, name)
}

// PrimaryKey returns the ordered primary key column tuple, empty when the
// table declares no primary key.
func (i *Inspector) PrimaryKey(ctx context.Context, schema, name string) ([]string, error) {
	return i.stringColumn(ctx, primaryKeyQuery, schema, name)
}

// NotNullColumns returns the columns declared NOT NULL, in ordinal order.
func (i *Inspector) NotNullColumns(ctx context.Context, schema, name string) ([]string, error) {
	return i.stringColumn(ctx, notNullQuery, schema, name)
}

// ForeignKeys returns the foreign keys declared on the table, with local and
// referenced columns paired by ordinal position.
func (i *Inspector) ForeignKeys(ctx context.Context, schema, name string) ([]model.ForeignKey, error) {
	rs, err := i.exec.Query(ctx, foreignKeysQuery, schema, name)
	if err != nil {
		return nil, err
	}
	var fks []model.ForeignKey
	for r := range rs.Rows {
		cname := model.AsString(rs.Rows[r][0])
		col := model.AsString(rs.Rows[r][1])
		refSchema := model.AsString(rs.Rows[r][2])
		refTable := model.AsString(rs.Rows[r][3])
		refCol := model.AsString(rs.Rows[r][4])

		if len(fks) == 0 || fks[len(fks)-1].Name != cname {
			fks = append(fks, model.ForeignKey{
				Name:             cname,
				ReferencedSchema: refSchema,
				ReferencedTable:  refTable,
			})
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, col)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refCol)
	}
	return fks, nil
}

// CheckConstraints returns the user-declared check constraints on the table.
func (i *Inspector) CheckConstraints(ctx context.Context, schema, name string) ([]model.CheckConstraint, error) {
	rs, err := i.exec.Query(ctx, checkConstraintsQuery, schema, name)
	if err != nil {
		return nil, err
	}
	var cks []model.CheckConstraint
	for r := range rs.Rows {
		cks = append(cks, model.CheckConstraint{
			Name:       model.AsString(rs.Rows[r][0]),
			Expression: model.AsString(rs.Rows[r][1]),
		})
	}
	return cks, nil
}

// Describe assembles the descriptor for one configured table. The staging
// table must exist and contain every base column outside excludeCols.
func (i *Inspector) Describe(ctx context.Context, table string, excludeCols, excludeNullCheckCols []string) (*model.TableDescriptor, error) {
	ok, err := i.TableExists(ctx, i.baseSchema, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, schemaErrorf("table %s.%s does not exist", i.baseSchema, table)
	}
	ok, err = i.TableExists(ctx, i.stgSchema, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, schemaErrorf("staging table %s.%s does not exist", i.stgSchema, table)
	}

	baseCols, err := i.Columns(ctx, i.baseSchema, table)
	if err != nil {
		return nil, err
	}
	stgCols, err := i.Columns(ctx, i.stgSchema, table)
	if err != nil {
		return nil, err
	}

	stgSet := toSet(stgCols)
	exclude := toSet(excludeCols)
	excludeNull := toSet(excludeNullCheckCols)

	d := &model.TableDescriptor{
		Name:     table,
		BaseName: query.Qualify(i.baseSchema, table),
		StgName:  query.Qualify(i.stgSchema, table),
	}
	for _, c := range baseCols {
		if stgSet[c] {
			d.Columns = append(d.Columns, c)
		}
		if exclude[c] {
			continue
		}
		if !stgSet[c] {
			return nil, schemaErrorf("staging table %s.%s is missing column %s required for DML", i.stgSchema, table, c)
		}
		d.DMLColumns = append(d.DMLColumns, c)
	}

	d.PrimaryKey, err = i.PrimaryKey(ctx, i.baseSchema, table)
	if err != nil {
		return nil, err
	}

	notNull, err := i.NotNullColumns(ctx, i.baseSchema, table)
	if err != nil {
		return nil, err
	}
	for _, c := range notNull {
		if !excludeNull[c] && stgSet[c] {
			d.NotNullColumns = append(d.NotNullColumns, c)
		}
	}

	d.ForeignKeys, err = i.ForeignKeys(ctx, i.baseSchema, table)
	if err != nil {
		return nil, err
	}
	d.CheckConstraints, err = i.CheckConstraints(ctx, i.baseSchema, table)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (i *Inspector) stringColumn(ctx context.Context, q, schema, name string) ([]string, error) {
	rs, err := i.exec.Query(ctx, q, schema, name)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, rs.Len())
	for r := range rs.Rows {
		out = append(out, model.AsString(rs.Rows[r][0]))
	}
	return out, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
