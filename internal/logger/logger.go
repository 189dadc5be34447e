// Package logger provides the leveled key/value logger used by the pipeline.
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Logger writes leveled messages with alternating key/value arguments.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// DefaultLogger writes one line per message to an io.Writer.
type DefaultLogger struct {
	wr    io.Writer
	debug bool
	mu    sync.Mutex
}

// New returns a logger writing to wr. Debug messages are dropped unless
// verbose is set.
func New(wr io.Writer, verbose bool) *DefaultLogger {
	return &DefaultLogger{wr: wr, debug: verbose}
}

// SetVerbose enables or disables debug messages
func (l *DefaultLogger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = verbose
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) {
	l.mu.Lock()
	enabled := l.debug
	l.mu.Unlock()
	if !enabled {
		return
	}
	l.log(color.New(color.FgHiBlack).Sprint("DEBUG"), msg, args)
}

func (l *DefaultLogger) Info(msg string, args ...interface{}) {
	l.log(color.CyanString("INFO "), msg, args)
}

func (l *DefaultLogger) Warn(msg string, args ...interface{}) {
	l.log(color.YellowString("WARN "), msg, args)
}

func (l *DefaultLogger) Error(msg string, args ...interface{}) {
	l.log(color.RedString("ERROR"), msg, args)
}

func (l *DefaultLogger) log(level string, msg string, args []interface{}) {
	line := level + " " + msg
	if kvs := formatArgs(args); kvs != "" {
		line += " " + kvs
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.wr, line)
}

// formatArgs renders key/value pairs as k=v. An odd trailing value is printed
// under the key "extra".
func formatArgs(args []interface{}) string {
	if len(args) == 0 {
		return ""
	}
	var parts []string
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			parts = append(parts, fmt.Sprintf("extra=%v", args[i]))
			break
		}
		v := fmt.Sprint(args[i+1])
		if strings.ContainsAny(v, " \t\n") {
			v = fmt.Sprintf("%q", v)
		}
		parts = append(parts, fmt.Sprintf("%v=%s", args[i], v))
	}
	return strings.Join(parts, " ")
}

type discard struct{}

func (discard) Debug(string, ...interface{}) {}
func (discard) Info(string, ...interface{})  {}
func (discard) Warn(string, ...interface{})  {}
func (discard) Error(string, ...interface{}) {}

// Discard drops every message.
var Discard Logger = discard{}
