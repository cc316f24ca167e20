// Package logging provides audit logging that outputs Mangle-queryable facts.
// Audit logs are structured events that can be parsed into Mangle predicates
// for declarative querying and analysis of a compilation run.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// AUDIT EVENT TYPES - Maps to Mangle predicates
// =============================================================================

// AuditEventType defines the type of audit event (maps to a Mangle predicate).
type AuditEventType string

const (
	// Pipeline phase events -> phase_run/5
	AuditPhaseStart    AuditEventType = "phase_start"
	AuditPhaseComplete AuditEventType = "phase_complete"
	AuditPhaseAbort    AuditEventType = "phase_abort"

	// Diagnostic events -> diagnostic_event/4
	AuditDiagnosticError AuditEventType = "diagnostic_error"
	AuditDiagnosticWarn  AuditEventType = "diagnostic_warn"
	AuditDiagnosticInfo  AuditEventType = "diagnostic_info"

	// Compile-cache events -> cache_event/4
	AuditCacheHit   AuditEventType = "cache_hit"
	AuditCacheMiss  AuditEventType = "cache_miss"
	AuditCacheStore AuditEventType = "cache_store"
	AuditCacheEvict AuditEventType = "cache_evict"

	// WASM export events -> export_event/4
	AuditExportEmitted AuditEventType = "export_emitted"

	// Effect-closure events -> effect_event/4
	AuditEffectRequired AuditEventType = "effect_required"
	AuditEffectViolated AuditEventType = "effect_violated"

	// Generic error events -> error_event/4
	AuditErrorGeneric  AuditEventType = "error_generic"
	AuditErrorCritical AuditEventType = "error_critical"
)

// =============================================================================
// AUDIT EVENT STRUCTURE
// =============================================================================

// AuditEvent is a structured audit log entry that can be parsed to Mangle.
// Format: predicate(timestamp, category, ...args)
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	Category   string                 `json:"cat"`
	RequestID  string                 `json:"req"` // compile-cache content hash correlating one run
	Target     string                 `json:"target"`
	Action     string                 `json:"action"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields"`
	MangleFact string                 `json:"mangle"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging with Mangle fact generation.
type AuditLogger struct {
	requestID string
	category  Category
}

// InitAudit initializes the audit logging system.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n# Format: Mangle-queryable structured events\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRequest creates an audit logger scoped to one compile invocation.
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// AuditWithContext creates a fully-scoped audit logger.
func AuditWithContext(requestID string, category Category) *AuditLogger {
	return &AuditLogger{requestID: requestID, category: category}
}

// =============================================================================
// AUDIT LOGGING METHODS
// =============================================================================

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RequestID == "" && a.requestID != "" {
		event.RequestID = a.requestID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	event.MangleFact = generateMangleFact(event)

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// generateMangleFact creates a Mangle-compatible fact string from an event.
func generateMangleFact(e AuditEvent) string {
	switch e.EventType {
	case AuditPhaseStart, AuditPhaseComplete, AuditPhaseAbort:
		return fmt.Sprintf("phase_run(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, e.Success, e.DurationMs)

	case AuditDiagnosticError, AuditDiagnosticWarn, AuditDiagnosticInfo:
		return fmt.Sprintf("diagnostic_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.Target, escapeString(e.Message))

	case AuditCacheHit, AuditCacheMiss, AuditCacheStore, AuditCacheEvict:
		return fmt.Sprintf("cache_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, e.Target, e.Success)

	case AuditExportEmitted:
		return fmt.Sprintf("export_event(%d, \"%s\", \"%s\", %v).",
			e.Timestamp, e.Target, e.Action, e.Success)

	case AuditEffectRequired, AuditEffectViolated:
		return fmt.Sprintf("effect_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, e.Target, e.Success)

	case AuditErrorGeneric, AuditErrorCritical:
		return fmt.Sprintf("error_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.Category, escapeString(e.Error))

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.Category, escapeString(e.Message), e.Success)
	}
}

func escapeString(s string) string {
	// strings.Builder avoids the O(N^2) blowup of repeated string
	// concatenation on large diagnostic messages.
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS FOR COMMON EVENTS
// =============================================================================

// PhaseStart logs the beginning of a pipeline phase.
func (a *AuditLogger) PhaseStart(phase string) {
	a.Log(AuditEvent{
		EventType: AuditPhaseStart,
		Target:    phase,
		Success:   true,
		Message:   fmt.Sprintf("phase started: %s", phase),
	})
}

// PhaseComplete logs a pipeline phase finishing, successfully or not.
func (a *AuditLogger) PhaseComplete(phase string, durationMs int64, success bool) {
	et := AuditPhaseComplete
	if !success {
		et = AuditPhaseAbort
	}
	a.Log(AuditEvent{
		EventType:  et,
		Target:     phase,
		Success:    success,
		DurationMs: durationMs,
		Message:    fmt.Sprintf("phase %s: %s (%dms, success=%v)", et, phase, durationMs, success),
	})
}

// Diagnostic logs a single diagnostic emitted by a phase.
func (a *AuditLogger) Diagnostic(severity, code, message string) {
	et := AuditDiagnosticInfo
	switch severity {
	case "error":
		et = AuditDiagnosticError
	case "warning", "warn":
		et = AuditDiagnosticWarn
	}
	a.Log(AuditEvent{
		EventType: et,
		Target:    code,
		Success:   severity != "error",
		Message:   message,
	})
}

// CacheEvent logs a compile-cache lookup or write.
func (a *AuditLogger) CacheEvent(eventType AuditEventType, key string, hit bool) {
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    key,
		Success:   hit,
		Message:   fmt.Sprintf("%s: %s (hit=%v)", eventType, key, hit),
	})
}

// ExportEmitted logs one WASM export name being written into a module.
func (a *AuditLogger) ExportEmitted(name, snippetID string) {
	a.Log(AuditEvent{
		EventType: AuditExportEmitted,
		Target:    name,
		Action:    snippetID,
		Success:   true,
		Message:   fmt.Sprintf("export emitted: %s <- %s", name, snippetID),
	})
}

// EffectEvent logs a required or violated effect.
func (a *AuditLogger) EffectEvent(eventType AuditEventType, effect string, ok bool) {
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    effect,
		Success:   ok,
		Message:   fmt.Sprintf("%s: %s", eventType, effect),
	})
}

// Error logs an error event.
func (a *AuditLogger) Error(category string, err error, critical bool) {
	eventType := AuditErrorGeneric
	if critical {
		eventType = AuditErrorCritical
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	a.Log(AuditEvent{
		EventType: eventType,
		Category:  category,
		Success:   false,
		Error:     errMsg,
		Message:   fmt.Sprintf("error in %s: %s (critical=%v)", category, errMsg, critical),
	})
}
