package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/enrich-engine/internal/csvenc"
	"github.com/kursadbilgin/enrich-engine/internal/domain"
	"github.com/kursadbilgin/enrich-engine/internal/notifier"
	"github.com/kursadbilgin/enrich-engine/internal/observability"
	"github.com/kursadbilgin/enrich-engine/internal/repository"
	"go.uber.org/zap"
)

// IngestOutcome classifies how a callback delivery was absorbed.
type IngestOutcome string

const (
	// IngestApplied means the delivery mutated batch state.
	IngestApplied IngestOutcome = "applied"
	// IngestDuplicate means the delivery was seen before and acknowledged
	// without re-applying it.
	IngestDuplicate IngestOutcome = "duplicate"
	// IngestUnknown means the request id resolves to no batch; the delivery
	// is acknowledged and discarded.
	IngestUnknown IngestOutcome = "unknown"
)

// IngestResult reports the outcome of one callback delivery.
type IngestResult struct {
	Outcome   IngestOutcome
	BatchID   string
	Completed bool
}

// CallbackService absorbs provider callbacks: it resolves the request id to
// its batch, records the delivery once, appends the flattened result rows,
// and fires the completion email for the delivery that empties the pending
// set.
type CallbackService struct {
	batches      repository.BatchRepository
	correlations repository.CorrelationRepository
	results      repository.ResultRepository
	notifier     notifier.Notifier
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

func NewCallbackService(
	batches repository.BatchRepository,
	correlations repository.CorrelationRepository,
	results repository.ResultRepository,
	n notifier.Notifier,
	logger *zap.Logger,
) *CallbackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallbackService{
		batches:      batches,
		correlations: correlations,
		results:      results,
		notifier:     n,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *CallbackService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Ingest applies one callback delivery. An unparsable body is rejected
// before any state changes; an unknown request id and a redelivered payload
// are both acknowledged without mutating batch counters. Errors after the
// payload ledger write are surfaced so the provider retries the delivery.
func (s *CallbackService) Ingest(ctx context.Context, requestID string, body []byte) (*IngestResult, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required", domain.ErrValidation)
	}

	log := observability.WithContextLogger(s.logger, ctx)

	batchID, err := s.correlations.Resolve(ctx, requestID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("callback for unknown request id", zap.String("requestId", requestID))
		s.countCallback(IngestUnknown)
		return &IngestResult{Outcome: IngestUnknown}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve request id: %w", err)
	}

	// Parse before writing anything: a malformed body must be rejected
	// without leaving a ledger entry that would mask a later valid retry.
	items, err := domain.DecodeCallbackPayload(body)
	if err != nil {
		return nil, err
	}

	if err := s.results.RecordRawPayload(ctx, batchID, requestID, body); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			log.Info("callback redelivery acknowledged",
				zap.String("batchId", batchID),
				zap.String("requestId", requestID),
			)
			s.countCallback(IngestDuplicate)
			return &IngestResult{Outcome: IngestDuplicate, BatchID: batchID}, nil
		}
		return nil, s.failIngest(ctx, batchID, requestID, fmt.Errorf("failed to record callback payload: %w", err))
	}

	now := s.now().UTC()
	rows := flattenCallbackItems(batchID, items, now)
	if err := s.results.AppendRows(ctx, rows); err != nil {
		return nil, s.failIngest(ctx, batchID, requestID, fmt.Errorf("failed to append result rows: %w", err))
	}

	application, err := s.batches.ApplyCallback(ctx, batchID, requestID, itemErrors(items, now))
	if err != nil {
		return nil, s.failIngest(ctx, batchID, requestID, fmt.Errorf("failed to apply callback: %w", err))
	}

	s.countCallback(IngestApplied)
	log.Info("callback applied",
		zap.String("batchId", batchID),
		zap.String("requestId", requestID),
		zap.Int("items", len(items)),
		zap.Bool("completed", application.CompletedNow),
	)

	if application.CompletedNow {
		s.notifyCompletion(ctx, application.Batch)
	}

	return &IngestResult{
		Outcome:   IngestApplied,
		BatchID:   batchID,
		Completed: application.CompletedNow,
	}, nil
}

// notifyCompletion sends the results email for a batch whose pending set
// just emptied. Delivery problems are recorded on the batch but never fail
// the callback that triggered them; the batch is already complete.
func (s *CallbackService) notifyCompletion(ctx context.Context, batch *domain.Batch) {
	if s.metrics != nil {
		s.metrics.IncBatchCompleted()
	}
	if s.notifier == nil || batch == nil {
		return
	}

	resultsCSV, err := s.resultsCSV(ctx, batch.ID)
	if err == nil {
		err = s.notifier.SendResult(ctx, batch.Email, batch.ID, resultsCSV)
	}
	if err == nil {
		s.logger.Info("completion email sent",
			zap.String("batchId", batch.ID),
			zap.String("email", batch.Email),
		)
		return
	}

	s.logger.Error("failed to send completion email",
		zap.String("batchId", batch.ID),
		zap.Error(err),
	)
	batchErr := domain.BatchError{
		Stage:   domain.ErrorStageNotification,
		Message: err.Error(),
		At:      s.now().UTC(),
	}
	if appendErr := s.batches.AppendError(ctx, batch.ID, batchErr); appendErr != nil {
		s.logger.Error("failed to record notification error",
			zap.String("batchId", batch.ID),
			zap.Error(appendErr),
		)
	}
}

// ResultsCSV renders the cumulative result table for a batch as CSV.
func (s *CallbackService) ResultsCSV(ctx context.Context, batchID string) ([]byte, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}
	return s.resultsCSV(ctx, strings.TrimSpace(batchID))
}

func (s *CallbackService) resultsCSV(ctx context.Context, batchID string) ([]byte, error) {
	rows, err := s.results.ListRows(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return csvenc.EncodeResultRows(rows)
}

// failIngest records an internal ingest failure on the batch and alerts the
// submitter by email, then hands the original error back so the delivery is
// answered with a retryable status. Both side effects are best effort.
func (s *CallbackService) failIngest(ctx context.Context, batchID, requestID string, cause error) error {
	s.logger.Error("callback ingest failed",
		zap.String("batchId", batchID),
		zap.String("requestId", requestID),
		zap.Error(cause),
	)

	batchErr := domain.BatchError{
		Stage:   domain.ErrorStageCallback,
		Message: cause.Error(),
		At:      s.now().UTC(),
	}
	if err := s.batches.AppendError(ctx, batchID, batchErr); err != nil {
		s.logger.Error("failed to record callback error",
			zap.String("batchId", batchID),
			zap.Error(err),
		)
	}

	if s.notifier != nil {
		if batch, err := s.batches.GetByID(ctx, batchID); err == nil {
			if sendErr := s.notifier.SendFailure(ctx, batch.Email, batchID, cause.Error()); sendErr != nil {
				s.logger.Error("failed to send failure email",
					zap.String("batchId", batchID),
					zap.Error(sendErr),
				)
			}
		}
	}

	return cause
}

func (s *CallbackService) countCallback(outcome IngestOutcome) {
	if s.metrics != nil {
		s.metrics.IncCallback(string(outcome))
	}
}

// itemErrors collects batch errors for payload items the provider reported
// as anything other than success. The rows for those items are still kept.
func itemErrors(items []domain.CallbackItem, at time.Time) []domain.BatchError {
	var errs []domain.BatchError
	for _, item := range items {
		status := strings.ToLower(strings.TrimSpace(item.Status))
		if status == "" || status == "success" {
			continue
		}
		errs = append(errs, domain.BatchError{
			Stage:   domain.ErrorStageCallback,
			Item:    item.Item,
			Message: fmt.Sprintf("provider reported status %q", item.Status),
			At:      at,
		})
	}
	return errs
}
