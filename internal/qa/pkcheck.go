package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/stagemerge/stagemerge/internal/control"
	"github.com/stagemerge/stagemerge/internal/model"
	"github.com/stagemerge/stagemerge/internal/query"
)

// CheckPrimaryKey looks for duplicate primary key tuples in the staging
// table. Skipped when the base table declares no primary key. A NULL key
// column forms its own group here; the NOT-NULL check reports it separately.
func (e *Engine) CheckPrimaryKey(ctx context.Context, table string) error {
	d := e.descriptor(table)
	if !d.HasPrimaryKey() {
		e.logger.Debug("no primary key, skipping duplicate check", "table", table)
		return nil
	}

	dupes, err := e.exec.Query(ctx, duplicateKeySQL(d))
	if err != nil {
		return err
	}
	if dupes.Empty() {
		return nil
	}

	var totalRows int64
	countCol := len(dupes.Columns) - 1
	for i := range dupes.Rows {
		totalRows += model.AsInt64(dupes.Rows[i][countCol])
	}
	finding := fmt.Sprintf("%d duplicate keys (%d rows) in table %s", dupes.Len(), totalRows, e.stgDisplay(table))
	e.logger.Warn("duplicate primary key values", "table", e.stgDisplay(table), "keys", dupes.Len(), "rows", totalRows)
	if err := e.ctrl.AppendError(ctx, table, control.FieldPKErrors, finding); err != nil {
		return err
	}

	rec, err := e.ctrl.Get(ctx, table)
	if err != nil {
		return err
	}
	if !rec.Interactive {
		return nil
	}
	sample, err := e.exec.Query(ctx, duplicateSampleSQL(d, e.sampleLimit))
	if err != nil {
		return err
	}
	return e.confirm("Duplicate keys in "+e.stgDisplay(table), finding, sample)
}

func duplicateKeySQL(d *model.TableDescriptor) string {
	pk := query.QuoteList(d.PrimaryKey)
	return fmt.Sprintf(
		"SELECT %s, count(*) AS row_count FROM %s GROUP BY %s HAVING count(*) > 1",
		pk, d.StgName, pk)
}

// duplicateSampleSQL returns the full staging rows belonging to duplicated
// key groups, bounded by limit.
func duplicateSampleSQL(d *model.TableDescriptor, limit int) string {
	pk := query.QuoteList(d.PrimaryKey)
	join := make([]string, len(d.PrimaryKey))
	for i, c := range d.PrimaryKey {
		join[i] = fmt.Sprintf("s.%s = d.%s", query.QuoteIdentifier(c), query.QuoteIdentifier(c))
	}
	return fmt.Sprintf(
		"SELECT s.* FROM %s AS s JOIN (SELECT %s FROM %s GROUP BY %s HAVING count(*) > 1) AS d ON %s ORDER BY %s LIMIT %d",
		d.StgName, pk, d.StgName, pk, strings.Join(join, " AND "), query.PrefixedList("s", d.PrimaryKey), limit)
}
