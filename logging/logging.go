// Package logging provides leveled key=value console logging for the agent.
// Logs are the operator surface for this engine: policy rejections, pipeline
// failures, and poll progress are all reported here rather than through any
// user-facing retry UI.
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
}

// levelPriority maps levels to numeric priority for filtering.
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

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
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

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

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

// --- Lifecycle helpers ---
// Shorthand for the events the reconciler and pipeline emit most often.

// TaskDiscovered logs first observation of a marketplace task.
func (l *Logger) TaskDiscovered(taskID uint64, source, category, bounty string) {
	l.Info("task_discovered", map[string]interface{}{
		"task":     taskID,
		"source":   source,
		"category": category,
		"bounty":   bounty,
	})
}

// PolicyRejected logs a bid-policy rejection. Not an error.
func (l *Logger) PolicyRejected(taskID uint64, reason string) {
	l.Info("policy_rejected", map[string]interface{}{
		"task":   taskID,
		"reason": reason,
	})
}

// BidPlaced logs a successful bid submission.
func (l *Logger) BidPlaced(taskID uint64, price string, confidence int) {
	l.Info("bid_placed", map[string]interface{}{
		"task":       taskID,
		"price":      price,
		"confidence": confidence,
	})
}

// Assigned logs an assignment won by this agent.
func (l *Logger) Assigned(taskID uint64) {
	l.Info("task_assigned", map[string]interface{}{
		"task": taskID,
	})
}

// PipelinePhase logs a pipeline phase transition for a task.
func (l *Logger) PipelinePhase(taskID uint64, phase string) {
	l.Debug("pipeline_phase", map[string]interface{}{
		"task":  taskID,
		"phase": phase,
	})
}

// Delivered logs a successful delivery submission.
func (l *Logger) Delivered(taskID uint64, contentRef string) {
	l.Info("delivery_submitted", map[string]interface{}{
		"task":        taskID,
		"content_ref": contentRef,
	})
}

// PipelineFailed logs a terminal pipeline failure for a task.
func (l *Logger) PipelineFailed(taskID uint64, phase string, err error) {
	l.Error("pipeline_failed", map[string]interface{}{
		"task":  taskID,
		"phase": phase,
		"error": err.Error(),
	})
}

// PollTick logs the outcome of one polling cycle.
func (l *Logger) PollTick(counter, lastChecked uint64, discovered int) {
	l.Debug("poll_tick", map[string]interface{}{
		"counter":      counter,
		"last_checked": lastChecked,
		"discovered":   discovered,
	})
}

// Terminal logs a task leaving active tracking.
func (l *Logger) Terminal(taskID uint64, reason string) {
	l.Info("task_terminal", map[string]interface{}{
		"task":   taskID,
		"reason": reason,
	})
}
