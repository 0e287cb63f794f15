package posthog

import (
	"fmt"
	"os"
	"time"
)

// Logger receives diagnostic output from the client. The default writes
// timestamped lines to stdout and errors to stderr; hosts can plug in their
// own implementation via Config.Logger.
type Logger interface {
	Logf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type defaultLogger struct{}

func newDefaultLogger() Logger {
	return defaultLogger{}
}

func (defaultLogger) Logf(format string, args ...interface{}) {
	fmt.Fprintln(os.Stdout, formatLogLine("INFO", format, args...))
}

func (defaultLogger) Warnf(format string, args ...interface{}) {
	fmt.Fprintln(os.Stdout, formatLogLine("WARN", format, args...))
}

func (defaultLogger) Errorf(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, formatLogLine("ERROR", format, args...))
}

func formatLogLine(level, format string, args ...interface{}) string {
	timestamp := time.Now().Format(time.RFC3339)
	return fmt.Sprintf("[%s][PostHog][%s] %s", timestamp, level, fmt.Sprintf(format, args...))
}
