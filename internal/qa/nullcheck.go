package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/stagemerge/stagemerge/internal/control"
	"github.com/stagemerge/stagemerge/internal/model"
	"github.com/stagemerge/stagemerge/internal/query"
)

// CheckNulls counts staging rows with NULL in each column the base table
// declares NOT NULL, minus the configured exemptions. Findings accumulate in
// null_errors as "column (count)" entries.
func (e *Engine) CheckNulls(ctx context.Context, table string) error {
	d := e.descriptor(table)
	rec, err := e.ctrl.Get(ctx, table)
	if err != nil {
		return err
	}
	exempt := make(map[string]bool)
	for _, c := range rec.ExcludeNullChecksList() {
		exempt[c] = true
	}

	var findings []string
	for _, col := range d.NotNullColumns {
		if exempt[col] {
			continue
		}
		n, err := e.exec.QueryScalar(ctx, nullCheckSQL(d.StgName, col))
		if err != nil {
			return err
		}
		if count := model.AsInt64(n); count > 0 {
			findings = append(findings, fmt.Sprintf("%s (%d)", col, count))
		}
	}
	if len(findings) == 0 {
		return nil
	}

	summary := strings.Join(findings, ", ")
	e.logger.Warn("null values in non-null columns", "table", e.stgDisplay(table), "columns", summary)
	return e.ctrl.AppendError(ctx, table, control.FieldNullErrors, summary)
}

func nullCheckSQL(stg, col string) string {
	return fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NULL", stg, query.QuoteIdentifier(col))
}
