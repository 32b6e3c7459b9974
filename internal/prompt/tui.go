package prompt

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/stagemerge/stagemerge/internal/model"
)

// TUI displays a full-screen modal with the sample rows in a scrollable
// table and Proceed/Skip/Cancel buttons.
type TUI struct{}

// Confirm implements Prompter. It blocks until the operator picks a button
// or presses Escape (treated as cancel).
func (TUI) Confirm(title, message string, sample *model.Rowset) (Decision, error) {
	app := tview.NewApplication()
	decision := Cancel

	table := tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	if !sample.Empty() {
		for c, name := range sample.Columns {
			table.SetCell(0, c, tview.NewTableCell(name).
				SetTextColor(tcell.ColorYellow).
				SetAttributes(tcell.AttrBold).
				SetSelectable(false))
		}
		for r := range sample.Rows {
			for c, text := range sample.Strings(r) {
				table.SetCell(r+1, c, tview.NewTableCell(text))
			}
		}
	}

	form := tview.NewForm().
		AddButton("Proceed", func() { decision = Proceed; app.Stop() }).
		AddButton("Skip", func() { decision = Skip; app.Stop() }).
		AddButton("Cancel", func() { decision = Cancel; app.Stop() })
	form.SetButtonsAlign(tview.AlignCenter)

	msg := tview.NewTextView().SetText(message).SetWrap(true)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(msg, 2, 0, false).
		AddItem(table, 0, 1, false).
		AddItem(form, 3, 0, true)
	flex.SetBorder(true).SetTitle(" " + title + " ")

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			decision = Cancel
			app.Stop()
			return nil
		}
		return event
	})

	if err := app.SetRoot(flex, true).Run(); err != nil {
		return Cancel, err
	}
	return decision, nil
}
