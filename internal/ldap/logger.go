package ldap

import (
	"errors"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

// Logger interface for LDAP operations.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Trace(msg string, fields map[string]any)
}

// HCLogger adapts an hclog.Logger to the Logger interface.
type HCLogger struct {
	logger hclog.Logger
}

// NewHCLogger creates a new logger for LDAP operations.
func NewHCLogger(logger hclog.Logger) *HCLogger {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &HCLogger{logger: logger}
}

// Named returns a logger for a sub-component, e.g. "connector".
func (l *HCLogger) Named(name string) *HCLogger {
	return &HCLogger{logger: l.logger.Named(name)}
}

func (l *HCLogger) Debug(msg string, fields map[string]any) {
	l.logger.Debug(msg, fieldArgs(fields)...)
}

func (l *HCLogger) Info(msg string, fields map[string]any) {
	l.logger.Info(msg, fieldArgs(fields)...)
}

func (l *HCLogger) Warn(msg string, fields map[string]any) {
	l.logger.Warn(msg, fieldArgs(fields)...)
}

func (l *HCLogger) Error(msg string, fields map[string]any) {
	l.logger.Error(msg, fieldArgs(fields)...)
}

func (l *HCLogger) Trace(msg string, fields map[string]any) {
	l.logger.Trace(msg, fieldArgs(fields)...)
}

// fieldArgs flattens sanitized fields into hclog key/value pairs in key order.
func fieldArgs(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}

	sanitized := SanitizeFields(fields)
	keys := make([]string, 0, len(sanitized))
	for k := range sanitized {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, sanitized[k])
	}
	return args
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]any) {}
func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Warn(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}
func (NopLogger) Trace(string, map[string]any) {}

// LogOperation is a helper function to log an operation with timing.
func LogOperation(logger Logger, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	entry := make(map[string]any, len(fields)+1)
	maps.Copy(entry, fields)
	entry["operation"] = operation

	logger.Debug("Starting operation", entry)

	err := fn()

	entry["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		entry["error"] = err.Error()
		logger.Debug("Operation failed", entry)
	} else {
		logger.Debug("Operation completed successfully", entry)
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(logger Logger, operation string, err error, fields map[string]any) {
	entry := make(map[string]any, len(fields)+4)
	maps.Copy(entry, fields)

	entry["operation"] = operation
	entry["error"] = err.Error()

	// Add LDAP-specific error information if available
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		entry["ldap_result_code"] = ldapErr.ResultCode
		if ldapErr.MatchedDN != "" {
			entry["ldap_matched_dn"] = ldapErr.MatchedDN
		}
		if ldapErr.Err != nil {
			entry["ldap_diagnostic_message"] = ldapErr.Err.Error()
		}
	}

	logger.Debug("LDAP operation failed", entry)
}

// LogConnectionEvent logs connection-related events.
func LogConnectionEvent(logger Logger, event string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+1)
	maps.Copy(entry, fields)
	entry["event"] = event

	switch event {
	case "connection_established", "authentication_success":
		logger.Info("Connection event", entry)
	case "connection_failed", "authentication_failed":
		logger.Warn("Connection event", entry)
	case "connection_attempt", "authentication_attempt":
		logger.Debug("Connection event", entry)
	default:
		logger.Trace("Connection event", entry)
	}
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	sensitiveKeys := map[string]bool{
		"password":    true,
		"passwd":      true,
		"secret":      true,
		"token":       true,
		"key":         true,
		"private_key": true,
		"credential":  true,
		"credentials": true,
		"new_value":   true,
	}

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"passwd=",
		"secret=",
		"token=",
		"key=",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
