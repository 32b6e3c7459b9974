package stagemerge

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/stagemerge/stagemerge/internal/control"
)

// outWriter renders the human-facing summary table and the final
// committed/rolled-back notice.
type outWriter struct {
	w io.Writer
}

func (o outWriter) notice(committed bool) {
	if committed {
		fmt.Fprintln(o.w, color.GreenString("Changes committed"))
	} else {
		fmt.Fprintln(o.w, color.YellowString("Changes rolled back"))
	}
}

func (o outWriter) summary(records []control.Record) {
	fmt.Fprintln(o.w)
	w := tabwriter.NewWriter(o.w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join([]string{
		"table", "null_errors", "pk_errors", "fk_errors", "ck_errors", "updated", "inserted",
	}, "\t"))
	for i := range records {
		r := &records[i]
		fmt.Fprintln(w, strings.Join([]string{
			r.TableName,
			orDash(r.NullErrors),
			orDash(r.PKErrors),
			orDash(r.FKErrors),
			orDash(r.CKErrors),
			fmt.Sprint(r.RowsUpdated),
			fmt.Sprint(r.RowsInserted),
		}, "\t"))
	}
	w.Flush()
	fmt.Fprintln(o.w)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
