package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/enrich-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResultRepository interface {
	// RecordRawPayload writes the provider's raw callback body, first-write-
	// wins per (batch, request id). A redelivery returns ErrDuplicate and
	// leaves the original payload untouched.
	RecordRawPayload(ctx context.Context, batchID, requestID string, payload []byte) error
	GetRawPayload(ctx context.Context, batchID, requestID string) ([]byte, error)
	// AppendRows appends flattened result rows preserving their order.
	AppendRows(ctx context.Context, rows []domain.ResultRow) error
	// ListRows returns the cumulative result table for a batch in insertion
	// order, or ErrNotFound when no callback has produced a row yet.
	ListRows(ctx context.Context, batchID string) ([]domain.ResultRow, error)
}

type GormResultRepo struct {
	db *gorm.DB
}

func NewGormResultRepo(db *gorm.DB) *GormResultRepo {
	return &GormResultRepo{db: db}
}

func (r *GormResultRepo) RecordRawPayload(ctx context.Context, batchID, requestID string, payload []byte) error {
	model := &RawPayloadModel{
		BatchID:   batchID,
		RequestID: requestID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrDuplicate
	}
	return nil
}

func (r *GormResultRepo) GetRawPayload(ctx context.Context, batchID, requestID string) ([]byte, error) {
	var model RawPayloadModel
	err := r.db.WithContext(ctx).
		First(&model, "batch_id = ? AND request_id = ?", batchID, requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.Payload, nil
}

func (r *GormResultRepo) AppendRows(ctx context.Context, rows []domain.ResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	models := make([]ResultRowModel, 0, len(rows))
	for i := range rows {
		models = append(models, *resultRowModelFromDomain(&rows[i]))
	}

	return r.db.WithContext(ctx).Create(&models).Error
}

func (r *GormResultRepo) ListRows(ctx context.Context, batchID string) ([]domain.ResultRow, error) {
	var models []ResultRowModel
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, domain.ErrNotFound
	}

	rows := make([]domain.ResultRow, 0, len(models))
	for i := range models {
		rows = append(rows, *resultRowModelToDomain(&models[i]))
	}
	return rows, nil
}
