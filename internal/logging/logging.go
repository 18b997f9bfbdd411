// Package logging provides structured, standards-compliant logging for the
// subagent orchestration daemon.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	traceID   string
}

var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		traceID:   l.traceID,
	}
}

// WithTraceID returns a new logger with the given trace/run ID attached.
func (l *Logger) WithTraceID(traceID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		traceID:   traceID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	merged := map[string]interface{}{}
	if l.traceID != "" {
		merged["run_id"] = l.traceID
	}
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			merged[k] = v
		}
	}
	fieldStr := formatFields(merged)

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Forensic logging for the orchestration lifecycle ---

// RunRegistered logs a new run entering the registry.
func (l *Logger) RunRegistered(runID, childKey, requesterKey string) {
	l.Info("run_registered", map[string]interface{}{
		"run_id":    runID,
		"child":     childKey,
		"requester": requesterKey,
	})
}

// LifecycleEvent logs an incoming lifecycle event before it is applied.
func (l *Logger) LifecycleEvent(runID, source, phase string) {
	l.Debug("lifecycle_event", map[string]interface{}{
		"run_id": runID,
		"source": source,
		"phase":  phase,
	})
}

// RetryScheduled logs that a retry was scheduled, before the delay elapses.
func (l *Logger) RetryScheduled(runID string, attempt int, delay time.Duration) {
	l.Info("retry_scheduled", map[string]interface{}{
		"run_id":  runID,
		"attempt": attempt,
		"delay":   delay.String(),
	})
}

// RetryDispatched logs that a retry's agent.start call was issued.
func (l *Logger) RetryDispatched(runID, retryRunID string, err error) {
	fields := map[string]interface{}{
		"run_id":       runID,
		"retry_run_id": retryRunID,
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Warn("retry_dispatch_failed", fields)
		return
	}
	l.Info("retry_dispatched", fields)
}

// VerificationVerdict logs the outcome of the verification pipeline.
func (l *Logger) VerificationVerdict(runID, verdict, reason string) {
	l.Info("verification_verdict", map[string]interface{}{
		"run_id":  runID,
		"verdict": verdict,
		"reason":  reason,
	})
}

// CleanupBegun logs that beginCleanup succeeded and announce is about to fire.
func (l *Logger) CleanupBegun(runID string) {
	l.Debug("cleanup_begun", map[string]interface{}{"run_id": runID})
}

// CleanupFinalized logs the terminal cleanup outcome.
func (l *Logger) CleanupFinalized(runID string, deleted bool, announceOK bool) {
	l.Info("cleanup_finalized", map[string]interface{}{
		"run_id":      runID,
		"deleted":     deleted,
		"announce_ok": announceOK,
	})
}

// RunArchived logs sweeper archival of a run past its TTL.
func (l *Logger) RunArchived(runID string) {
	l.Info("run_archived", map[string]interface{}{"run_id": runID})
}

// PersistError logs a swallowed persistence failure (spec: operational warning only).
func (l *Logger) PersistError(op string, err error) {
	l.Warn("persist_error", map[string]interface{}{
		"op":    op,
		"error": err.Error(),
	})
}
