package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_VerbosityGating(t *testing.T) {
	var buf bytes.Buffer
	quiet := NewLoggerWithWriter(VerbosityDefault, &buf)
	quiet.Verbosef("progress %d", 1)
	quiet.Debugf("debug %d", 2)
	assert.Empty(t, buf.String())

	quiet.Warnf("w")
	quiet.Errorf("e")
	assert.Contains(t, buf.String(), "warning: w")
	assert.Contains(t, buf.String(), "error: e")

	buf.Reset()
	verbose := NewLoggerWithWriter(VerbosityVerbose, &buf)
	verbose.Verbosef("progress %d", 1)
	verbose.Debugf("debug %d", 2)
	assert.Contains(t, buf.String(), "progress 1")
	assert.NotContains(t, buf.String(), "debug 2")
}

func TestLogger_DebugElapsedPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(VerbosityDebug, &buf)
	logger.Debugf("resolving %s", "os.path")

	line := strings.TrimRight(buf.String(), "\n")
	assert.True(t, strings.HasPrefix(line, "+"), "debug lines carry an elapsed prefix: %q", line)
	assert.Contains(t, line, "s resolving os.path")
}

func TestLogger_PhaseSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(VerbosityVerbose, &buf)

	parseDone := logger.Phase("parse", "files")
	parseDone(42)
	reportDone := logger.Phase("report", "")
	reportDone(-1)

	logger.Summary()
	text := buf.String()

	assert.Contains(t, text, "parse: 42 files in ")
	assert.Contains(t, text, "report: ")
	assert.NotContains(t, text, "-1")
	assert.Less(t, strings.Index(text, "parse:"), strings.Index(text, "report:"),
		"phases replay in completion order")
}

func TestLogger_SummaryQuietByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(VerbosityDefault, &buf)
	done := logger.Phase("parse", "files")
	done(3)
	logger.Summary()
	assert.Empty(t, buf.String())
}

func TestLogger_ConcurrentWriters(t *testing.T) {
	// The batch worker pool and the LSP goroutine share one logger; a
	// burst of writers must interleave whole lines, not bytes.
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(VerbosityDebug, &buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Debugf("worker %d", n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 8)
	for _, line := range lines {
		assert.Contains(t, line, "worker ")
	}
}
