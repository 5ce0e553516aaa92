package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the controller position of a run.
type RunStatus string

const (
	StatusGathering     RunStatus = "GATHERING"
	StatusAnalyzingDocs RunStatus = "ANALYZING_DOCS"
	StatusScoring       RunStatus = "SCORING"
	StatusValidating    RunStatus = "VALIDATING"
	StatusApproved      RunStatus = "APPROVED"
	StatusExhausted     RunStatus = "EXHAUSTED"
	StatusFailed        RunStatus = "FAILED"
)

// Terminal reports whether no further transition is possible from s.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusExhausted, StatusFailed:
		return true
	}
	return false
}

// DefaultMaxRetries bounds the VALIDATING -> SCORING edge.
const DefaultMaxRetries = 2

// RunState is the record threaded through every stage of one analysis. Once the
// controller returns it is the final report.
type RunState struct {
	RequestID uuid.UUID `json:"request_id"`
	SubjectID string    `json:"subject_id"`

	RequestedAmount *float64 `json:"requested_amount,omitempty"`
	Purpose         string   `json:"purpose,omitempty"`

	Documents []Document `json:"raw_documents"`

	// Written once by the gather stage.
	Registry *RegistryRecord  `json:"registry_record,omitempty"`
	Signals  []ExternalSignal `json:"external_signals"`

	// Written by the extraction stage.
	Indicators map[DocumentRole]*DocumentIndicators `json:"indicators"`
	Financials *FinancialProfile                    `json:"financials,omitempty"`

	// Overwritten on every scoring / validation attempt.
	Risk       *RiskResult       `json:"risk_result,omitempty"`
	Validation *ValidationResult `json:"validation_result,omitempty"`

	// Pending feedback for the next scoring attempt.
	Feedback *Feedback `json:"feedback,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	Status RunStatus    `json:"processing_status"`
	Error  string       `json:"error_message,omitempty"`
	Trace  []TraceEntry `json:"trace"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewRunState returns a state positioned at GATHERING.
func NewRunState(subjectID string, docs []Document) *RunState {
	return &RunState{
		RequestID:  uuid.New(),
		SubjectID:  subjectID,
		Documents:  docs,
		Signals:    []ExternalSignal{},
		Indicators: map[DocumentRole]*DocumentIndicators{},
		MaxRetries: DefaultMaxRetries,
		Status:     StatusGathering,
		Trace:      []TraceEntry{},
		CreatedAt:  time.Now().UTC(),
	}
}

// TraceEntry is one append-only audit record.
type TraceEntry struct {
	Time    time.Time `json:"time"`
	Stage   string    `json:"stage"`
	Attempt int       `json:"attempt"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

// Tracef appends a trace entry for stage.
func (s *RunState) Tracef(stage, message string, detail string) {
	s.Trace = append(s.Trace, TraceEntry{
		Time:    time.Now().UTC(),
		Stage:   stage,
		Attempt: s.RetryCount,
		Message: message,
		Detail:  detail,
	})
}

// HasIndicators reports whether extraction produced at least one figure.
func (s *RunState) HasIndicators() bool {
	for _, ind := range s.Indicators {
		if ind != nil && len(ind.Figures) > 0 {
			return true
		}
	}
	return false
}
