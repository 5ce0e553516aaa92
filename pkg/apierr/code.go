package apierr

// Code is a machine-readable error code returned in API responses.
type Code string

// Common errors.
const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeInvalidID          Code = "INVALID_ID"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// Analysis input errors.
const (
	CodeInvalidSubjectID     Code = "INVALID_SUBJECT_ID"
	CodeUnsupportedDocument  Code = "UNSUPPORTED_DOCUMENT"
	CodeDocumentLoadFailed   Code = "DOCUMENT_LOAD_FAILED"
	CodeInvalidRequestAmount Code = "INVALID_REQUESTED_AMOUNT"
)

// Analysis errors.
const (
	CodeAnalysisFailed   Code = "ANALYSIS_FAILED"
	CodeAnalysisNotFound Code = "ANALYSIS_NOT_FOUND"
	CodeEnqueueFailed    Code = "ENQUEUE_FAILED"
	CodeQueueUnavailable Code = "QUEUE_UNAVAILABLE"
	CodeResultsDisabled  Code = "RESULTS_DISABLED"
)

// Health errors.
const (
	CodeDependencyNotReady Code = "DEPENDENCY_NOT_READY"
)
