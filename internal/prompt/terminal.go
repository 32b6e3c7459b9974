package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/stagemerge/stagemerge/internal/model"
)

// Terminal prompts on the console with a y/s/c answer. The sample rowset is
// rendered as an aligned text table before the question.
type Terminal struct {
	In  io.Reader
	Out io.Writer
}

// NewTerminal creates a console prompter reading answers from in and writing
// to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{In: in, Out: out}
}

// Confirm implements Prompter.
func (t *Terminal) Confirm(title, message string, sample *model.Rowset) (Decision, error) {
	fmt.Fprintf(t.Out, "\n%s\n%s\n", color.New(color.Bold).Sprint(title), message)
	if !sample.Empty() {
		writeRowset(t.Out, sample)
	}

	choices := fmt.Sprintf("%s/%s/%s",
		color.GreenString("p[roceed]"),
		color.YellowString("s[kip]"),
		color.RedString("c[ancel]"))

	scanner := bufio.NewScanner(t.In)
	for {
		fmt.Fprintf(t.Out, "%s? ", choices)
		if !scanner.Scan() {
			// EOF on stdin is treated as a cancel
			return Cancel, scanner.Err()
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "p", "proceed", "y", "yes":
			return Proceed, nil
		case "s", "skip", "n", "no":
			return Skip, nil
		case "c", "cancel", "q", "quit":
			return Cancel, nil
		}
	}
}

func writeRowset(out io.Writer, rs *model.Rowset) {
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(rs.Columns, "\t"))
	for i := range rs.Rows {
		fmt.Fprintln(w, strings.Join(rs.Strings(i), "\t"))
	}
	w.Flush()
}
