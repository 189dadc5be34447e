package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"itp/internal/domain"
)

// ErrorViewer displays failing tests in an interactive TUI
type ErrorViewer struct{}

// NewErrorViewer creates a new ErrorViewer
func NewErrorViewer() *ErrorViewer {
	return &ErrorViewer{}
}

// View opens the viewer. Tests marked with R are only hidden from the
// unresolved count of this session; the next run decides whether they pass.
func (ev *ErrorViewer) View(failures []domain.TestFailure) error {
	if len(failures) == 0 {
		color.Green("✓ No test failures found!")
		return nil
	}

	resolved := make(map[int]bool)
	app := tview.NewApplication()

	list := tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)

	itemText := func(index int) string {
		failure := failures[index]
		if resolved[index] {
			return fmt.Sprintf("[gray]✓ [yellow]%d.[gray] %s[white]", index+1, tview.Escape(failure.TestName))
		}
		return fmt.Sprintf("[yellow]%d.[white] %s", index+1, tview.Escape(failure.TestName))
	}

	for i := range failures {
		list.AddItem(itemText(i), "", 0, nil)
	}

	list.SetMainTextColor(tview.Styles.PrimaryTextColor).
		SetSelectedTextColor(tcell.ColorWhite).
		SetSelectedBackgroundColor(tcell.ColorDarkCyan).
		SetSecondaryTextColor(tview.Styles.SecondaryTextColor)

	statsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetWordWrap(false)

	detailsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)

	detailsContainer := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(detailsView, 0, 1, false).
		AddItem(tview.NewBox(), 2, 0, false)

	rightSide := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(statsView, 3, 0, false).
		AddItem(detailsContainer, 0, 1, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(list, 0, 1, true).
		AddItem(rightSide, 0, 2, false)

	headerView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)

	updateHeader := func() {
		unresolved := len(failures) - len(resolved)
		headerView.SetText(fmt.Sprintf(" Test Failures (%d total, %d unresolved) | ↑↓ navigate, [yellow]R[white] mark resolved, → details, ← back, Ctrl+C exit ", len(failures), unresolved))
	}
	updateHeader()

	updateDetails := func() {
		index := list.GetCurrentItem()
		if index >= 0 && index < len(failures) {
			statsView.SetText(formatFailureStats(failures[index]))
			detailsView.SetText(formatFailureDetails(failures[index]))
			detailsView.ScrollToBeginning()
		}
	}

	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter, tcell.KeyRight:
			app.SetFocus(detailsView)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'r' || event.Rune() == 'R' {
				index := list.GetCurrentItem()
				if index >= 0 && index < len(failures) {
					if resolved[index] {
						delete(resolved, index)
					} else {
						resolved[index] = true
					}
					list.SetItemText(index, itemText(index), "")
					updateHeader()
				}
				return nil
			}
			if event.Rune() == 'q' {
				app.Stop()
				return nil
			}
		}
		return event
	})

	detailsView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft, tcell.KeyEsc:
			app.SetFocus(list)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		return event
	})

	list.SetChangedFunc(func(int, string, string, rune) {
		updateDetails()
	})
	updateDetails()

	mainLayout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(headerView, 1, 0, false).
		AddItem(tview.NewBox(), 1, 0, false).
		AddItem(flex, 0, 1, true)

	if err := app.SetRoot(mainLayout, true).SetFocus(list).Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

// formatFailureDetails renders a failure with tview color tags
func formatFailureDetails(failure domain.TestFailure) string {
	var b strings.Builder

	fmt.Fprintf(&b, "[red]✗ Test: %s[white]\n\n", tview.Escape(failure.TestName))
	fmt.Fprintf(&b, "[cyan]File: %s[white]\n", tview.Escape(failure.FilePath))
	if failure.Location != "" {
		fmt.Fprintf(&b, "[yellow]Location: %s[white]\n", tview.Escape(failure.Location))
	}
	if !math.IsNaN(failure.Time) {
		fmt.Fprintf(&b, "[cyan]Duration: %.3fs[white]\n", failure.Time)
	}
	b.WriteString("\n")

	if failure.Message != "" {
		fmt.Fprintf(&b, "[yellow]Message:[white]\n%s\n\n", tview.Escape(failure.Message))
	}

	if failure.TotalMemory != nil || failure.TotalAllocations != nil {
		b.WriteString("[yellow]Memory:[white]\n")
		if failure.TotalMemory != nil {
			fmt.Fprintf(&b, "  total: %s\n", humanize.IBytes(uint64(*failure.TotalMemory)))
		}
		if failure.TotalAllocations != nil {
			fmt.Fprintf(&b, "  allocations: %s\n", humanize.Comma(*failure.TotalAllocations))
		}
		if failure.Histogram != "" {
			fmt.Fprintf(&b, "  histogram: %s\n", tview.Escape(failure.Histogram))
		}
		const maxAllocations = 10
		for i, a := range failure.Allocations {
			if i == maxAllocations {
				fmt.Fprintf(&b, "  [gray]... and %d more[white]\n", len(failure.Allocations)-maxAllocations)
				break
			}
			fmt.Fprintf(&b, "  %8s  %s\n", humanize.IBytes(uint64(a.Size)), tview.Escape(a.Location))
		}
	}

	return b.String()
}

// formatFailureStats renders the node id header of a failure
func formatFailureStats(failure domain.TestFailure) string {
	path := failure.FilePath
	if path == "" {
		path = "Unknown path"
	}
	return fmt.Sprintf("[cyan]path:[white] [yellow]%s[white]::[yellow]%s[white]\n", tview.Escape(path), tview.Escape(failure.TestName))
}
