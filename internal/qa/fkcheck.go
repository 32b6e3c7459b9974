package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/stagemerge/stagemerge/internal/control"
	"github.com/stagemerge/stagemerge/internal/model"
	"github.com/stagemerge/stagemerge/internal/query"
)

// CheckForeignKeys verifies each foreign key on the base table against the
// staging rows. Rows with a NULL in any local column are excluded; the
// NOT-NULL check owns those. When the referenced table is itself part of the
// load set, its staging rows count as valid targets too — the whole dataset
// lands in one transaction, so parent rows may arrive in the same run.
func (e *Engine) CheckForeignKeys(ctx context.Context, table string) error {
	d := e.descriptor(table)
	for _, fk := range d.ForeignKeys {
		includeStaging := e.loadSet[fk.ReferencedTable] && fk.ReferencedSchema != e.stgSchema
		violations, err := e.exec.Query(ctx, fkViolationSQL(d, fk, e.stgSchema, includeStaging))
		if err != nil {
			return err
		}
		if violations.Empty() {
			continue
		}

		var totalRows int64
		countCol := len(violations.Columns) - 1
		for i := range violations.Rows {
			totalRows += model.AsInt64(violations.Rows[i][countCol])
		}
		finding := fmt.Sprintf("%s (%d)", fk.Name, totalRows)
		e.logger.Warn("foreign key violations", "table", e.stgDisplay(table),
			"constraint", fk.Name, "rows", totalRows,
			"references", fk.ReferencedSchema+"."+fk.ReferencedTable)
		if err := e.ctrl.AppendError(ctx, table, control.FieldFKErrors, finding); err != nil {
			return err
		}

		rec, err := e.ctrl.Get(ctx, table)
		if err != nil {
			return err
		}
		if !rec.Interactive {
			continue
		}
		if err := e.confirm("Foreign key violations in "+e.stgDisplay(table), finding, violations); err != nil {
			return err
		}
	}
	return nil
}

// fkViolationSQL groups the staging rows whose local column tuple has no
// match in the referenced table. The lookup is the base referenced table,
// optionally unioned with its staging counterpart.
func fkViolationSQL(d *model.TableDescriptor, fk model.ForeignKey, stgSchema string, includeStaging bool) string {
	localCols := query.PrefixedList("s", fk.Columns)

	join := make([]string, len(fk.Columns))
	notNull := make([]string, len(fk.Columns))
	for i := range fk.Columns {
		join[i] = fmt.Sprintf("s.%s = r.%s",
			query.QuoteIdentifier(fk.Columns[i]), query.QuoteIdentifier(fk.ReferencedColumns[i]))
		notNull[i] = fmt.Sprintf("s.%s IS NOT NULL", query.QuoteIdentifier(fk.Columns[i]))
	}

	refCols := query.QuoteList(fk.ReferencedColumns)
	base := query.Qualify(fk.ReferencedSchema, fk.ReferencedTable)
	lookup := base
	if includeStaging {
		lookup = fmt.Sprintf("(SELECT %s FROM %s UNION SELECT %s FROM %s)",
			refCols, base, refCols, query.Qualify(stgSchema, fk.ReferencedTable))
	}

	firstRef := query.QuoteIdentifier(fk.ReferencedColumns[0])
	return fmt.Sprintf(
		"SELECT %s, count(*) AS row_count FROM %s AS s LEFT JOIN %s AS r ON %s WHERE r.%s IS NULL AND %s GROUP BY %s",
		localCols, d.StgName, lookup, strings.Join(join, " AND "),
		firstRef, strings.Join(notNull, " AND "), localCols)
}
