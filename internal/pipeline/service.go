package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/creditlens/internal/documents"
	"github.com/maraichr/creditlens/internal/registry"
	"github.com/maraichr/creditlens/pkg/models"
)

var (
	// ErrInvalidSubject means the subject identifier is not a valid CNPJ.
	ErrInvalidSubject = errors.New("invalid subject identifier")
	// ErrUnsupportedDocument wraps documents.ErrUnsupported for callers.
	ErrUnsupportedDocument = documents.ErrUnsupported
	// ErrInvalidAmount means the requested amount is not positive.
	ErrInvalidAmount = errors.New("requested amount must be positive")
	// ErrDocumentLoad means an object reference could not be read.
	ErrDocumentLoad = errors.New("load documents")
)

// AnalyzeRequest is the input of one analysis.
type AnalyzeRequest struct {
	RequestID       uuid.UUID          `json:"request_id"`
	SubjectID       string             `json:"cnpj"`
	Documents       []documents.Source `json:"documents"`
	RequestedAmount *float64           `json:"requested_credit_amount,omitempty"`
	Purpose         string             `json:"purpose,omitempty"`
}

// ResultSink receives every finished run.
type ResultSink interface {
	Save(ctx context.Context, state *models.RunState) error
}

// Service is the entry point shared by the API, worker, MCP server and CLI.
type Service struct {
	loader     *documents.Loader
	controller *Controller
	sink       ResultSink
	maxRetries int
	logger     *slog.Logger
}

// NewService wires a service; sink may be nil.
func NewService(loader *documents.Loader, controller *Controller, sink ResultSink, maxRetries int, logger *slog.Logger) *Service {
	if maxRetries < 0 {
		maxRetries = models.DefaultMaxRetries
	}
	return &Service{
		loader:     loader,
		controller: controller,
		sink:       sink,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// CheckRequest validates a request without running it.
func CheckRequest(req AnalyzeRequest) (string, error) {
	cnpj := registry.Normalize(req.SubjectID)
	if err := registry.Validate(cnpj); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSubject, err)
	}
	if req.RequestedAmount != nil && *req.RequestedAmount <= 0 {
		return "", ErrInvalidAmount
	}
	if err := documents.Validate(req.Documents); err != nil {
		return "", err
	}
	return cnpj, nil
}

// IsInputError reports whether err rejects the request itself, so retrying it
// cannot succeed.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidSubject) ||
		errors.Is(err, ErrUnsupportedDocument) ||
		errors.Is(err, ErrInvalidAmount)
}

// Analyze runs a full analysis. Input errors are returned before any stage
// runs; every other problem is reported inside the returned state. A request
// whose documents cannot be loaded is stored as FAILED under its request ID
// before the error is returned.
func (svc *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*models.RunState, error) {
	cnpj, err := CheckRequest(req)
	if err != nil {
		return nil, err
	}

	docs, err := svc.loader.Load(ctx, req.Documents)
	if err != nil {
		if !errors.Is(err, documents.ErrUnsupported) {
			err = fmt.Errorf("%w: %w", ErrDocumentLoad, err)
		}
		svc.recordLoadFailure(ctx, req, cnpj, err)
		return nil, err
	}

	state := models.NewRunState(cnpj, docs)
	if req.RequestID != uuid.Nil {
		state.RequestID = req.RequestID
	}
	state.RequestedAmount = req.RequestedAmount
	state.Purpose = req.Purpose
	state.MaxRetries = svc.maxRetries

	final := svc.controller.Run(ctx, state)

	if svc.sink != nil {
		// The caller's ctx may already be done; the result must still land.
		saveCtx := context.WithoutCancel(ctx)
		if err := svc.sink.Save(saveCtx, final); err != nil {
			svc.logger.Warn("save result failed",
				slog.String("request_id", final.RequestID.String()),
				slog.String("error", err.Error()))
		}
	}
	return final, nil
}

// recordLoadFailure stores a FAILED state for a request that never reached
// the controller, so a caller polling its request ID sees the outcome. Nothing
// is stored when ctx is done; the request will be redelivered.
func (svc *Service) recordLoadFailure(ctx context.Context, req AnalyzeRequest, cnpj string, err error) {
	if svc.sink == nil || req.RequestID == uuid.Nil || ctx.Err() != nil {
		return
	}
	state := models.NewRunState(cnpj, nil)
	state.RequestID = req.RequestID
	state.RequestedAmount = req.RequestedAmount
	state.Purpose = req.Purpose
	state.MaxRetries = svc.maxRetries
	state.Status = models.StatusFailed
	state.Error = fmt.Sprintf("stage load failed: %v", err)
	state.Tracef("load", "stage failed", fmt.Sprintf("stage=load status=%s documents=%d error=%v",
		models.StatusGathering, len(req.Documents), err))
	now := time.Now().UTC()
	state.CompletedAt = &now

	if err := svc.sink.Save(context.WithoutCancel(ctx), state); err != nil {
		svc.logger.Warn("save failed result",
			slog.String("request_id", state.RequestID.String()),
			slog.String("error", err.Error()))
	}
}
