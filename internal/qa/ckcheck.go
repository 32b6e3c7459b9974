package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/stagemerge/stagemerge/internal/control"
	"github.com/stagemerge/stagemerge/internal/model"
)

// CheckConstraints counts staging rows that make each base check constraint
// evaluate to FALSE. The constraint expression is substituted verbatim from
// the catalog; a NULL result is not a violation, matching what the database
// itself enforces. No prompt here: there is no concise sample to display.
func (e *Engine) CheckConstraints(ctx context.Context, table string) error {
	d := e.descriptor(table)
	var findings []string
	for _, ck := range d.CheckConstraints {
		n, err := e.exec.QueryScalar(ctx, checkViolationSQL(d.StgName, ck.Expression))
		if err != nil {
			return err
		}
		if count := model.AsInt64(n); count > 0 {
			findings = append(findings, fmt.Sprintf("%s (%d)", ck.Name, count))
		}
	}
	if len(findings) == 0 {
		return nil
	}

	summary := strings.Join(findings, ", ")
	e.logger.Warn("check constraint violations", "table", e.stgDisplay(table), "constraints", summary)
	return e.ctrl.AppendError(ctx, table, control.FieldCKErrors, summary)
}

func checkViolationSQL(stg, expr string) string {
	return fmt.Sprintf("SELECT count(*) FROM %s WHERE NOT (%s)", stg, expr)
}
