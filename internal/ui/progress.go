package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"itp/internal/logger"
)

// Reporter receives run progress as a completion percentage
type Reporter interface {
	Progress(percent int)
	Finish()
}

// NewReporter returns a progress bar when w is a terminal and a line based
// reporter otherwise.
func NewReporter(w io.Writer, log logger.Logger) Reporter {
	if isTerminal(w) {
		return NewProgressBar(w)
	}
	return &lineReporter{log: log, step: 25}
}

func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

// ProgressBar renders run progress in the terminal
type ProgressBar struct {
	bar  *progressbar.ProgressBar
	last int
}

// NewProgressBar creates a new progress bar over 0-100%
func NewProgressBar(w io.Writer) *ProgressBar {
	p := &ProgressBar{}
	p.bar = progressbar.NewOptions(100,
		progressbar.OptionSetDescription(color.CyanString("Running tests: ")),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.CyanString("█"),
			SaucerHead:    color.CyanString("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(w),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return p
}

// Progress moves the bar to percent. Percentages never go backwards.
func (p *ProgressBar) Progress(percent int) {
	if percent < p.last || percent > 100 {
		return
	}
	p.last = percent
	_ = p.bar.Set(percent)
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}

// lineReporter logs every step percent, for pipes and CI logs
type lineReporter struct {
	log  logger.Logger
	step int
	last int
}

func (r *lineReporter) Progress(percent int) {
	if percent <= r.last || (percent < r.last+r.step && percent != 100) {
		return
	}
	r.last = percent
	r.log.Info("running tests", "progress", fmt.Sprintf("%d%%", percent))
}

func (r *lineReporter) Finish() {}
