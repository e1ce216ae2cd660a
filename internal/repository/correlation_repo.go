package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/enrich-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CorrelationRepository interface {
	// Register writes a new request id -> batch id mapping. The mapping is
	// write-once; registering an already-known request id is a conflict.
	Register(ctx context.Context, requestID, batchID string) error
	// Resolve returns the owning batch id, or ErrNotFound for unknown ids.
	Resolve(ctx context.Context, requestID string) (string, error)
}

type GormCorrelationRepo struct {
	db *gorm.DB
}

func NewGormCorrelationRepo(db *gorm.DB) *GormCorrelationRepo {
	return &GormCorrelationRepo{db: db}
}

func (r *GormCorrelationRepo) Register(ctx context.Context, requestID, batchID string) error {
	model := &CorrelationModel{
		RequestID: requestID,
		BatchID:   batchID,
		CreatedAt: time.Now().UTC(),
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormCorrelationRepo) Resolve(ctx context.Context, requestID string) (string, error) {
	var model CorrelationModel
	err := r.db.WithContext(ctx).First(&model, "request_id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return model.BatchID, nil
}
