package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/enrich-engine/internal/domain"
	"github.com/kursadbilgin/enrich-engine/internal/observability"
	"github.com/kursadbilgin/enrich-engine/internal/provider"
	"github.com/kursadbilgin/enrich-engine/internal/ratelimit"
	"github.com/kursadbilgin/enrich-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minSubmitConcurrency = 1
	maxBatchSize         = 1000

	// submitScope keys the provider rate limit window.
	submitScope = "person"
)

// BatchService accepts identifier batches and drives their submission to
// the enrichment provider. Each successful submission registers its request
// id individually, so a callback racing the rest of the submission loop
// always finds its own registration in place.
type BatchService struct {
	batches      repository.BatchRepository
	correlations repository.CorrelationRepository
	submitter    provider.Submitter
	limiter      ratelimit.RateLimiter
	logger       *zap.Logger
	metrics      *observability.Metrics
	callbackURL  string
	concurrency  int
	now          func() time.Time
}

func NewBatchService(
	batches repository.BatchRepository,
	correlations repository.CorrelationRepository,
	submitter provider.Submitter,
	limiter ratelimit.RateLimiter,
	callbackURL string,
	concurrency int,
	logger *zap.Logger,
) (*BatchService, error) {
	if strings.TrimSpace(callbackURL) == "" {
		return nil, fmt.Errorf("callback url is required")
	}
	if concurrency < minSubmitConcurrency {
		concurrency = minSubmitConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchService{
		batches:      batches,
		correlations: correlations,
		submitter:    submitter,
		limiter:      limiter,
		logger:       logger,
		callbackURL:  strings.TrimSpace(callbackURL),
		concurrency:  concurrency,
		now:          time.Now,
	}, nil
}

func (s *BatchService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// CreateBatch creates the batch record and submits every identifier. A
// failed submission is recorded on the batch and never aborts its siblings;
// the returned batch reflects the post-submission state.
func (s *BatchService) CreateBatch(ctx context.Context, email string, identifiers []string, originalCSV []byte) (*domain.Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	if len(identifiers) == 0 {
		return nil, fmt.Errorf("%w: batch must include at least one identifier", domain.ErrValidation)
	}
	if len(identifiers) > maxBatchSize {
		return nil, fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, maxBatchSize)
	}

	batch := &domain.Batch{
		ID:          uuid.NewString(),
		Email:       email,
		TotalItems:  len(identifiers),
		Status:      domain.BatchStatusProcessing,
		Errors:      domain.BatchErrorList{},
		Submissions: domain.SubmissionList{},
		OriginalCSV: originalCSV,
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, err
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, identifier := range identifiers {
		identifier := identifier
		g.Go(func() error {
			s.submitItem(groupCtx, batch.ID, identifier)
			return nil
		})
	}
	// Workers never return errors; per-item failures land on the batch.
	_ = g.Wait()

	return s.batches.GetByID(ctx, batch.ID)
}

func (s *BatchService) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	return s.batches.GetByID(ctx, strings.TrimSpace(id))
}

func (s *BatchService) submitItem(ctx context.Context, batchID, identifier string) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, submitScope); err != nil {
			s.recordSubmissionFailure(ctx, batchID, identifier, fmt.Sprintf("rate limiter wait failed: %v", err), nil)
			return
		}
	}

	submitStart := s.now()
	result, err := s.submitter.Submit(ctx, identifier, s.callbackURL)
	if s.metrics != nil {
		s.metrics.ObserveSubmissionDuration(s.now().Sub(submitStart))
	}

	if err != nil {
		s.recordSubmissionFailure(ctx, batchID, identifier, submissionReason(err), provider.DiagnosticsOf(err))
		return
	}

	sub := domain.SubmissionRecord{
		Item:        identifier,
		Success:     true,
		RequestID:   result.RequestID,
		Diagnostics: &result.Diagnostics,
	}

	// The pending entry goes in before the correlation entry: once a
	// callback can resolve the request id, the id it must remove already
	// exists.
	if err := s.batches.RegisterPending(ctx, batchID, result.RequestID, sub); err != nil {
		s.recordSubmissionFailure(ctx, batchID, identifier, fmt.Sprintf("failed to register pending id: %v", err), &result.Diagnostics)
		return
	}

	if err := s.correlations.Register(ctx, result.RequestID, batchID); err != nil {
		// The id never became resolvable, so no callback will ever clear
		// it; withdraw it from the pending set.
		if removeErr := s.batches.RemovePending(ctx, batchID, result.RequestID); removeErr != nil {
			s.logger.Error("failed to withdraw pending id",
				zap.String("batchId", batchID),
				zap.String("requestId", result.RequestID),
				zap.Error(removeErr),
			)
		}

		reason := fmt.Sprintf("failed to register correlation: %v", err)
		if errors.Is(err, domain.ErrConflict) {
			// The provider handed out a request id that is already owned by
			// another batch; its callback would be misrouted.
			reason = fmt.Sprintf("request id %s already registered", result.RequestID)
		}
		s.recordSubmissionFailure(ctx, batchID, identifier, reason, &result.Diagnostics)
		return
	}

	if s.metrics != nil {
		s.metrics.IncSubmission("success")
	}
	s.logger.Info("identifier submitted",
		zap.String("batchId", batchID),
		zap.String("requestId", result.RequestID),
	)
}

func (s *BatchService) recordSubmissionFailure(ctx context.Context, batchID, identifier, reason string, diagnostics *domain.SubmissionDiagnostics) {
	if s.metrics != nil {
		s.metrics.IncSubmission("failure")
	}
	s.logger.Warn("identifier submission failed",
		zap.String("batchId", batchID),
		zap.String("item", identifier),
		zap.String("reason", reason),
	)

	sub := domain.SubmissionRecord{
		Item:        identifier,
		Success:     false,
		Error:       reason,
		Diagnostics: diagnostics,
	}
	batchErr := domain.BatchError{
		Stage:   domain.ErrorStageSubmission,
		Item:    identifier,
		Message: reason,
		At:      s.now().UTC(),
	}

	if err := s.batches.MarkSubmissionError(ctx, batchID, sub, batchErr); err != nil {
		s.logger.Error("failed to record submission error",
			zap.String("batchId", batchID),
			zap.String("item", identifier),
			zap.Error(err),
		)
	}
}

func submissionReason(err error) string {
	var providerErr *provider.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Reason()
	}
	return err.Error()
}
