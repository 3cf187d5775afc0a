// Package errors provides structured error handling for eventindexer.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (blob retrieval, object decoding)
//   - 3XX: Network errors (search backend)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (index provisioning, bulk writes, retention)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates blob and object I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates search backend connectivity errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates pipeline stage failures.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeObjectNotFound    = "ERR_201_OBJECT_NOT_FOUND"
	ErrCodeObjectFetchFailed = "ERR_202_OBJECT_FETCH_FAILED"
	ErrCodeObjectCorrupt     = "ERR_206_OBJECT_CORRUPT"

	// Network errors (300-399)
	ErrCodeBackendUnavailable = "ERR_301_BACKEND_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput        = "ERR_401_INVALID_INPUT"
	ErrCodeMalformedKey        = "ERR_402_MALFORMED_KEY"
	ErrCodeInvalidNotification = "ERR_403_INVALID_NOTIFICATION"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeIndexCreateFailed = "ERR_502_INDEX_CREATE_FAILED"
	ErrCodeBulkFailed        = "ERR_503_BULK_FAILED"
	ErrCodeSweepFailed       = "ERR_504_SWEEP_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
// Every failure that reaches the invocation boundary aborts the run, so only
// retryable backend outages are softened to warnings.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeBulkFailed, ErrCodeSweepFailed, ErrCodeIndexCreateFailed, ErrCodeObjectCorrupt:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode reports whether redelivering the triggering event could succeed.
// Nothing in this module retries; the flag is informational for the invoker.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendUnavailable, ErrCodeObjectFetchFailed:
		return true
	default:
		return false
	}
}
