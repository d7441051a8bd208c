package provider

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redbco/redb-broker/pkg/logger"
)

// EventContext provides structured context for broker log lines.
type EventContext struct {
	Kind      string
	Name      string
	Host      string
	Port      int
	Database  string
	Operation string
}

// EventLogger provides unified logging for connection and dispatch events.
type EventLogger struct {
	logger *logger.Logger
}

// NewEventLogger creates a new event logger.
func NewEventLogger(logger *logger.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// LogConfigurationError logs an endpoint that cannot be dialed as configured.
func (el *EventLogger) LogConfigurationError(ctx EventContext, err error) {
	if el.logger == nil {
		return
	}
	el.logger.Error("%s: %v", el.formatConnectionMessage("Invalid configuration", ctx), err)
}

// LogConnectionSuccess logs an established or reused physical connection.
func (el *EventLogger) LogConnectionSuccess(ctx EventContext, reused bool) {
	if el.logger == nil {
		return
	}
	event := "Connection established"
	if reused {
		event = "Connection reused"
	}
	el.logger.Info("%s", el.formatConnectionMessage(event, ctx))
}

// LogConnectionFailure logs a failed connect with the time it took.
func (el *EventLogger) LogConnectionFailure(ctx EventContext, elapsed time.Duration, err error) {
	if el.logger == nil {
		return
	}
	el.logger.Error("%s after %s: %v", el.formatConnectionMessage("Connection failed", ctx), elapsed.Round(time.Millisecond), err)
}

// LogConnectionClosed logs the close of a physical connection and its lifetime.
func (el *EventLogger) LogConnectionClosed(ctx EventContext, lifetime time.Duration, err error) {
	if el.logger == nil {
		return
	}
	message := fmt.Sprintf("%s lifetime=%s", el.formatConnectionMessage("Connection closed", ctx), lifetime.Round(time.Millisecond))
	if err != nil {
		el.logger.Warn("%s: %v", message, err)
		return
	}
	el.logger.Info("%s", message)
}

// LogSelectFailure logs a failed database alignment. The call still proceeds.
func (el *EventLogger) LogSelectFailure(ctx EventContext, err error) {
	if el.logger == nil {
		return
	}
	el.logger.Warn("%s: %v", el.formatOperationMessage("Select failed", ctx), err)
}

// LogOperationFailure logs a suppressed dispatch failure.
func (el *EventLogger) LogOperationFailure(ctx EventContext, err error) {
	if el.logger == nil {
		return
	}
	el.logger.Error("%s: %v", el.formatOperationMessage("Operation failed", ctx), err)
}

// LogCall logs the debug trace of one call.
func (el *EventLogger) LogCall(ctx EventContext, elapsed time.Duration, args []interface{}) {
	if el.logger == nil {
		return
	}
	el.logger.Debug("call %s %s %s(%s)", formatElapsed(elapsed), ctx.Name, ctx.Operation, formatArgs(args))
}

// LogQuery logs the debug trace of one relational statement.
func (el *EventLogger) LogQuery(ctx EventContext, elapsed time.Duration, diagnostic string) {
	if el.logger == nil {
		return
	}
	el.logger.Debug("query %s %s %s", formatElapsed(elapsed), ctx.Name, diagnostic)
}

// LogShutdown logs provider shutdown.
func (el *EventLogger) LogShutdown(wrappers, connections int) {
	if el.logger == nil {
		return
	}
	el.logger.Info("Shutting down broker wrappers=%d connections=%d", wrappers, connections)
}

func (el *EventLogger) formatConnectionMessage(event string, ctx EventContext) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", ctx.Kind))
	parts = append(parts, event)
	if ctx.Name != "" {
		parts = append(parts, "name="+ctx.Name)
	}
	if ctx.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s:%d", ctx.Host, ctx.Port))
	}
	if ctx.Database != "" {
		parts = append(parts, "db="+ctx.Database)
	}
	return strings.Join(parts, " ")
}

func (el *EventLogger) formatOperationMessage(event string, ctx EventContext) string {
	message := el.formatConnectionMessage(event, ctx)
	if ctx.Operation != "" {
		message += " op=" + ctx.Operation
	}
	return message
}

// maxArgLength bounds each argument in call traces.
const maxArgLength = 50

func formatArgs(args []interface{}) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		s := fmt.Sprint(arg)
		if utf8.RuneCountInString(s) > maxArgLength {
			s = string([]rune(s)[:maxArgLength]) + "..."
		}
		parts[i] = s
	}
	return strings.Join(parts, ", ")
}

func formatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.8f", d.Seconds())
}
