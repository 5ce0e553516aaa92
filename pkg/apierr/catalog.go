package apierr

import "net/http"

// --- Common ---

func InvalidRequestBody() *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body")
}

func InvalidID(entity string) *Error {
	return New(CodeInvalidID, http.StatusBadRequest, "Invalid "+entity+" ID")
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

// --- Analysis input ---

func InvalidSubjectID(cause error) *Error {
	return Wrap(CodeInvalidSubjectID, http.StatusBadRequest, "cnpj must be a valid 14-digit CNPJ", cause)
}

func UnsupportedDocument(cause error) *Error {
	return Wrap(CodeUnsupportedDocument, http.StatusBadRequest, "Unsupported document: supply inline text or an object key ending in .txt, .md or .csv", cause)
}

func DocumentLoadFailed(cause error) *Error {
	return Wrap(CodeDocumentLoadFailed, http.StatusBadGateway, "Failed to load document from object storage", cause)
}

func InvalidRequestedAmount() *Error {
	return New(CodeInvalidRequestAmount, http.StatusBadRequest, "requested_credit_amount must be positive")
}

// --- Analysis ---

func AnalysisFailed(cause error) *Error {
	return Wrap(CodeAnalysisFailed, http.StatusInternalServerError, "Failed to run analysis", cause)
}

func AnalysisNotFound() *Error {
	return New(CodeAnalysisNotFound, http.StatusNotFound, "Analysis not found or no longer retained")
}

func EnqueueFailed(cause error) *Error {
	return Wrap(CodeEnqueueFailed, http.StatusInternalServerError, "Failed to enqueue analysis", cause)
}

func QueueUnavailable() *Error {
	return New(CodeQueueUnavailable, http.StatusServiceUnavailable, "Asynchronous analysis requires Valkey")
}

func ResultsDisabled() *Error {
	return New(CodeResultsDisabled, http.StatusServiceUnavailable, "Result retrieval requires Valkey")
}

// --- Health ---

func DependencyNotReady(name string, cause error) *Error {
	return Wrap(CodeDependencyNotReady, http.StatusServiceUnavailable, name+" is not ready", cause)
}
