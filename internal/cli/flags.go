package cli

import "itp/internal/config"

// Flags holds command-line flags
type Flags struct {
	Path         string
	Processors   int
	Full         bool
	OnlyFailed   bool
	NameFilter   string
	NoMemory     bool
	OpenFailures bool
	Changed      bool
	Last         int
	Since        string
	Until        string
	Verbose      bool
}

// ToConfigFlags converts CLI flags to config flags
func (f *Flags) ToConfigFlags() config.Flags {
	return config.Flags{
		Processors:   f.Processors,
		Full:         f.Full,
		OnlyFailed:   f.OnlyFailed,
		NameFilter:   f.NameFilter,
		NoMemory:     f.NoMemory,
		OpenFailures: f.OpenFailures,
		Changed:      f.Changed,
		Last:         f.Last,
		Since:        f.Since,
		Until:        f.Until,
		Verbose:      f.Verbose,
	}
}
