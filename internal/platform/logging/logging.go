package logging

import (
	"strings"

	"github.com/mborders/logmatic"
)

// New builds the process-wide leveled logger. Unknown levels fall back to
// INFO rather than failing startup.
func New(level string) *logmatic.Logger {
	l := logmatic.NewLogger()
	l.ExitOnFatal = true
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		l.SetLevel(logmatic.TRACE)
	case "debug":
		l.SetLevel(logmatic.DEBUG)
	case "warn", "warning":
		l.SetLevel(logmatic.WARN)
	case "error":
		l.SetLevel(logmatic.ERROR)
	default:
		l.SetLevel(logmatic.INFO)
	}
	return l
}
