package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger(t *testing.T) {
	color.NoColor = true

	t.Run("formats key value pairs", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, false).Info("hashed workspace", "files", 3, "root", "/tmp/my project")
		assert.Equal(t, "INFO  hashed workspace files=3 root=\"/tmp/my project\"\n", buf.String())
	})

	t.Run("drops debug unless verbose", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, false).Debug("cache hit", "path", "a.py")
		assert.Empty(t, buf.String())

		New(&buf, true).Debug("cache hit", "path", "a.py")
		assert.True(t, strings.HasPrefix(buf.String(), "DEBUG cache hit"))
	})

	t.Run("verbose toggled after construction", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(&buf, false)
		log.SetVerbose(true)
		log.Debug("planned", "tests", 2)
		assert.Equal(t, "DEBUG planned tests=2\n", buf.String())
	})

	t.Run("odd argument count", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, false).Warn("skipped", "record")
		assert.Contains(t, buf.String(), "extra=record")
	})
}
