package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/enrich-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CallbackApplication is the outcome of applying one callback to a batch.
// CompletedNow is true only for the single call that emptied the pending
// set; callers use it to fire the completion notifier exactly once.
type CallbackApplication struct {
	Batch        *domain.Batch
	CompletedNow bool
}

type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	// RegisterPending records a successful submission: the request id joins
	// the pending set and the submission diagnostics join the batch record.
	RegisterPending(ctx context.Context, batchID, requestID string, sub domain.SubmissionRecord) error
	// MarkSubmissionError records a failed submission without touching the
	// pending set.
	MarkSubmissionError(ctx context.Context, batchID string, sub domain.SubmissionRecord, batchErr domain.BatchError) error
	// RemovePending withdraws a pending id whose registration could not be
	// finished. It does not count toward received.
	RemovePending(ctx context.Context, batchID, requestID string) error
	// ApplyCallback removes a pending request id, increments received, and
	// merges errors, atomically per batch. Completion is detected inside
	// the same atomic step.
	ApplyCallback(ctx context.Context, batchID, requestID string, errs []domain.BatchError) (*CallbackApplication, error)
	AppendError(ctx context.Context, batchID string, batchErr domain.BatchError) error
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	model := batchModelFromDomain(b)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model, b.Pending)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var model BatchModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	pending, err := r.pendingIDs(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}

	return batchModelToDomain(&model, pending), nil
}

func (r *GormBatchRepo) RegisterPending(ctx context.Context, batchID, requestID string, sub domain.SubmissionRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := lockBatch(tx, batchID)
		if err != nil {
			return err
		}

		pending := &PendingModel{
			BatchID:   batchID,
			RequestID: requestID,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(pending).Error; err != nil {
			return err
		}

		model.Submissions = append(model.Submissions, sub)
		return tx.Model(model).
			Update("submissions", model.Submissions).Error
	})
}

func (r *GormBatchRepo) MarkSubmissionError(ctx context.Context, batchID string, sub domain.SubmissionRecord, batchErr domain.BatchError) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := lockBatch(tx, batchID)
		if err != nil {
			return err
		}

		model.Submissions = append(model.Submissions, sub)
		model.Errors = append(model.Errors, batchErr)
		return tx.Model(model).Updates(map[string]any{
			"submissions": model.Submissions,
			"errors":      model.Errors,
		}).Error
	})
}

func (r *GormBatchRepo) RemovePending(ctx context.Context, batchID, requestID string) error {
	return r.db.WithContext(ctx).
		Where("batch_id = ? AND request_id = ?", batchID, requestID).
		Delete(&PendingModel{}).Error
}

func (r *GormBatchRepo) ApplyCallback(ctx context.Context, batchID, requestID string, errs []domain.BatchError) (*CallbackApplication, error) {
	var result CallbackApplication

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := lockBatch(tx, batchID)
		if err != nil {
			return err
		}

		removal := tx.Where("batch_id = ? AND request_id = ?", batchID, requestID).
			Delete(&PendingModel{})
		if removal.Error != nil {
			return removal.Error
		}

		updates := map[string]any{}
		// Only a removal counts toward received; a callback whose id was
		// never pending (or already consumed) must not push received past
		// the item count.
		if removal.RowsAffected > 0 {
			model.Received++
			updates["received"] = model.Received
		}
		if len(errs) > 0 {
			model.Errors = append(model.Errors, errs...)
			updates["errors"] = model.Errors
		}

		var remaining int64
		if err := tx.Model(&PendingModel{}).
			Where("batch_id = ?", batchID).
			Count(&remaining).Error; err != nil {
			return err
		}

		if remaining == 0 && model.Status == domain.BatchStatusProcessing {
			model.Status = domain.BatchStatusComplete
			updates["status"] = model.Status
			result.CompletedNow = true
		}

		if len(updates) > 0 {
			if err := tx.Model(model).Updates(updates).Error; err != nil {
				return err
			}
		}

		pending, err := r.pendingIDs(tx, batchID)
		if err != nil {
			return err
		}
		result.Batch = batchModelToDomain(model, pending)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (r *GormBatchRepo) AppendError(ctx context.Context, batchID string, batchErr domain.BatchError) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := lockBatch(tx, batchID)
		if err != nil {
			return err
		}

		model.Errors = append(model.Errors, batchErr)
		return tx.Model(model).Update("errors", model.Errors).Error
	})
}

// lockBatch takes the per-batch row lock that serializes every mutation of
// one batch while leaving unrelated batches untouched.
func lockBatch(tx *gorm.DB, batchID string) (*BatchModel, error) {
	var model BatchModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", batchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &model, nil
}

func (r *GormBatchRepo) pendingIDs(tx *gorm.DB, batchID string) ([]string, error) {
	var ids []string
	err := tx.Model(&PendingModel{}).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Pluck("request_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
