package ldap

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
)

// slowOperationThreshold marks operations worth a warning in the log file.
const slowOperationThreshold = 5 * time.Second

// loggerOrNull returns logger, or a discarding logger when it is nil.
func loggerOrNull(logger hclog.Logger) hclog.Logger {
	if logger == nil {
		return hclog.NewNullLogger()
	}
	return logger
}

// fieldArgs flattens a field map into hclog key/value pairs, sorted by key so
// log lines are stable.
func fieldArgs(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}

// LogOperation runs fn and logs its start, outcome and duration.
func LogOperation(logger hclog.Logger, operation string, fields map[string]any, fn func() error) error {
	logger = loggerOrNull(logger)
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	logger.Debug("Starting operation", fieldArgs(SanitizeFields(fields))...)

	err := fn()

	duration := time.Since(start)
	fields["duration_ms"] = duration.Milliseconds()

	switch {
	case err != nil:
		fields["error"] = err.Error()
		logger.Error("Operation failed", fieldArgs(SanitizeFields(fields))...)
	case duration > slowOperationThreshold:
		logger.Warn("Slow operation detected", fieldArgs(SanitizeFields(fields))...)
	default:
		logger.Debug("Operation completed successfully", fieldArgs(SanitizeFields(fields))...)
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(logger hclog.Logger, operation string, err error, fields map[string]any) {
	if err == nil {
		return
	}
	logger = loggerOrNull(logger)

	if fields == nil {
		fields = make(map[string]any)
	}

	fields["operation"] = operation
	fields["error"] = err.Error()

	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		fields["ldap_result_code"] = resultErr.ResultCode
		if resultErr.MatchedDN != "" {
			fields["ldap_matched_dn"] = resultErr.MatchedDN
		}
		if resultErr.Err != nil {
			fields["ldap_diagnostic_message"] = resultErr.Err.Error()
		}
	}

	var wrapped *LDAPError
	if errors.As(err, &wrapped) {
		fields["error_category"] = string(wrapped.Category)
	}

	logger.Error("LDAP operation failed", fieldArgs(SanitizeFields(fields))...)
}

// LogConnectionEvent logs connection-related events.
func LogConnectionEvent(logger hclog.Logger, event string, fields map[string]any) {
	logger = loggerOrNull(logger)

	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event
	args := fieldArgs(SanitizeFields(fields))

	switch event {
	case "connection_established", "authentication_success":
		logger.Info("Connection event", args...)
	case "connection_failed", "authentication_failed", "connection_lost":
		logger.Error("Connection event", args...)
	default:
		logger.Debug("Connection event", args...)
	}
}

// LogKerberosEvent logs Kerberos-specific events.
func LogKerberosEvent(logger hclog.Logger, event string, fields map[string]any) {
	logger = loggerOrNull(logger).Named("kerberos")

	if fields == nil {
		fields = make(map[string]any)
	}

	fields["event"] = event
	args := fieldArgs(SanitizeFields(fields))

	switch event {
	case "ticket_acquired", "keytab_loaded", "credentials_cached":
		logger.Info("Kerberos event", args...)
	case "ticket_acquisition_failed", "keytab_load_failed", "authentication_failed":
		logger.Error("Kerberos event", args...)
	default:
		logger.Trace("Kerberos event", args...)
	}
}

var sensitiveKeys = map[string]bool{
	"password":    true,
	"passwd":      true,
	"secret":      true,
	"token":       true,
	"key":         true,
	"private_key": true,
	"credential":  true,
	"credentials": true,
	"unicodepwd":  true,
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

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
	lower := strings.ToLower(s)
	for _, pattern := range []string{
		"password=",
		"passwd=",
		"secret=",
		"token=",
		"key=",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
