// Package errors provides structured error handling for loreleaf.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index and storage errors
//   - 3XX: Collaborator service errors (embedder, reranker)
//   - 4XX: Request validation errors
//   - 5XX: Search pipeline errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index and passage store errors.
	CategoryStorage Category = "STORAGE"
	// CategoryService indicates external collaborator errors.
	CategoryService Category = "SERVICE"
	// CategoryValidation indicates request validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategorySearch indicates search pipeline errors.
	CategorySearch Category = "SEARCH"
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
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission = "ERR_103_CONFIG_PERMISSION"

	// Index and storage errors (200-299)
	ErrCodeIndexNotFound    = "ERR_201_INDEX_NOT_FOUND"
	ErrCodeIndexCorrupt     = "ERR_202_INDEX_CORRUPT"
	ErrCodeDiskFull         = "ERR_203_DISK_FULL"
	ErrCodeIndexLocked      = "ERR_204_INDEX_LOCKED"
	ErrCodeStoreUnavailable = "ERR_205_STORE_UNAVAILABLE"

	// Collaborator service errors (300-399)
	ErrCodeEmbedderUnavailable = "ERR_301_EMBEDDER_UNAVAILABLE"
	ErrCodeEmbedderTimeout     = "ERR_302_EMBEDDER_TIMEOUT"
	ErrCodeRerankerUnavailable = "ERR_303_RERANKER_UNAVAILABLE"
	ErrCodeRerankerTimeout     = "ERR_304_RERANKER_TIMEOUT"
	ErrCodeServiceProtocol     = "ERR_305_SERVICE_PROTOCOL"

	// Request validation errors (400-499)
	ErrCodeInvalidRequest    = "ERR_401_INVALID_REQUEST"
	ErrCodeQueryEmpty        = "ERR_402_QUERY_EMPTY"
	ErrCodeQueryTooLong      = "ERR_403_QUERY_TOO_LONG"
	ErrCodeTopKOutOfRange    = "ERR_404_TOPK_OUT_OF_RANGE"
	ErrCodeDimensionMismatch = "ERR_405_DIMENSION_MISMATCH"
	ErrCodeInvalidScope      = "ERR_406_INVALID_SCOPE"

	// Search pipeline errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeScorerUnavailable = "ERR_502_SCORER_UNAVAILABLE"
	ErrCodeScorerTimeout     = "ERR_503_SCORER_TIMEOUT"
	ErrCodeAllPathsFailed    = "ERR_504_ALL_PATHS_FAILED"
	ErrCodeEmbeddingFailed   = "ERR_505_EMBEDDING_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategorySearch
	}

	// Numeric portion, e.g. "301" from "ERR_301_EMBEDDER_UNAVAILABLE".
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryService
	case '4':
		return CategoryValidation
	default:
		return CategorySearch
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexCorrupt, ErrCodeDiskFull, ErrCodeAllPathsFailed:
		return SeverityFatal
	}

	// Absorbed degradations: one path down, search continues.
	switch code {
	case ErrCodeScorerUnavailable, ErrCodeScorerTimeout,
		ErrCodeRerankerUnavailable, ErrCodeRerankerTimeout,
		ErrCodeEmbedderUnavailable, ErrCodeEmbedderTimeout:
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Scorer and reranker calls are never retried within a request; only the
// embedding call qualifies for its single fast retry.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedderUnavailable, ErrCodeEmbedderTimeout:
		return true
	default:
		return false
	}
}
