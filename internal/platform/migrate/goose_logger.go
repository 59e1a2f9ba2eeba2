package migrate

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// gooseSlogLogger adapts goose's printf-style logger to slog. Goose terminates
// its messages with newlines; slog frames records itself, so they are trimmed.
type gooseSlogLogger struct {
	logger *slog.Logger
}

func (l gooseSlogLogger) Printf(format string, v ...any) {
	if l.logger == nil {
		return
	}
	msg := strings.TrimSuffix(fmt.Sprintf(format, v...), "\n")
	l.logger.Info(msg)
}

func (l gooseSlogLogger) Fatalf(format string, v ...any) {
	msg := strings.TrimSuffix(fmt.Sprintf(format, v...), "\n")
	if l.logger != nil {
		l.logger.Error(msg)
	}
	os.Exit(1)
}
