package repository

import (
	"time"

	"github.com/kursadbilgin/enrich-engine/internal/domain"
)

// BatchModel is the persistence model for the batches table. The pending
// set lives in its own table so callback application can remove a single id
// without rewriting the whole record.
type BatchModel struct {
	ID          string                `gorm:"type:uuid;primaryKey"`
	Email       string                `gorm:"type:varchar(255);not null"`
	TotalItems  int                   `gorm:"not null"`
	Received    int                   `gorm:"not null;default:0"`
	Errors      domain.BatchErrorList `gorm:"type:jsonb;not null;default:'[]'"`
	Submissions domain.SubmissionList `gorm:"type:jsonb;not null;default:'[]'"`
	Status      domain.BatchStatus    `gorm:"type:varchar(20);not null"`
	OriginalCSV []byte                `gorm:"type:bytea"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (BatchModel) TableName() string {
	return "batches"
}

// PendingModel is one outstanding request id for a batch.
type PendingModel struct {
	BatchID   string `gorm:"type:uuid;primaryKey"`
	RequestID string `gorm:"type:varchar(255);primaryKey"`
	CreatedAt time.Time
}

func (PendingModel) TableName() string {
	return "batch_pending"
}

// CorrelationModel is the persistence model for correlation_entries.
type CorrelationModel struct {
	RequestID string `gorm:"type:varchar(255);primaryKey"`
	BatchID   string `gorm:"type:uuid;not null;index"`
	CreatedAt time.Time
}

func (CorrelationModel) TableName() string {
	return "correlation_entries"
}

// ResultRowModel is the persistence model for result_rows. The serial id
// preserves append order within a callback.
type ResultRowModel struct {
	ID             int64   `gorm:"primaryKey;autoIncrement"`
	BatchID        string  `gorm:"type:uuid;not null;index"`
	UID            string  `gorm:"type:varchar(255)"`
	FullName       string  `gorm:"type:varchar(255)"`
	Status         string  `gorm:"type:varchar(64)"`
	LinkedInURL    string  `gorm:"type:text"`
	ContactType    *string `gorm:"type:varchar(64)"`
	ContactValue   *string `gorm:"type:text"`
	ContactSubType *string `gorm:"type:varchar(64)"`
	CreatedAt      time.Time
}

func (ResultRowModel) TableName() string {
	return "result_rows"
}

// RawPayloadModel is the persistence model for the raw payload ledger.
// The composite key makes duplicate delivery of a request id a no-op.
type RawPayloadModel struct {
	BatchID   string `gorm:"type:uuid;primaryKey"`
	RequestID string `gorm:"type:varchar(255);primaryKey"`
	Payload   []byte `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
}

func (RawPayloadModel) TableName() string {
	return "raw_payloads"
}

func batchModelFromDomain(b *domain.Batch) *BatchModel {
	if b == nil {
		return nil
	}

	return &BatchModel{
		ID:          b.ID,
		Email:       b.Email,
		TotalItems:  b.TotalItems,
		Received:    b.Received,
		Errors:      b.Errors,
		Submissions: b.Submissions,
		Status:      b.Status,
		OriginalCSV: b.OriginalCSV,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func batchModelToDomain(m *BatchModel, pending []string) *domain.Batch {
	if m == nil {
		return nil
	}

	return &domain.Batch{
		ID:          m.ID,
		Email:       m.Email,
		TotalItems:  m.TotalItems,
		Pending:     pending,
		Received:    m.Received,
		Errors:      m.Errors,
		Submissions: m.Submissions,
		Status:      m.Status,
		OriginalCSV: m.OriginalCSV,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func resultRowModelFromDomain(r *domain.ResultRow) *ResultRowModel {
	if r == nil {
		return nil
	}

	return &ResultRowModel{
		BatchID:        r.BatchID,
		UID:            r.UID,
		FullName:       r.FullName,
		Status:         r.Status,
		LinkedInURL:    r.LinkedInURL,
		ContactType:    r.ContactType,
		ContactValue:   r.ContactValue,
		ContactSubType: r.ContactSubType,
		CreatedAt:      r.CreatedAt,
	}
}

func resultRowModelToDomain(m *ResultRowModel) *domain.ResultRow {
	if m == nil {
		return nil
	}

	return &domain.ResultRow{
		BatchID:        m.BatchID,
		UID:            m.UID,
		FullName:       m.FullName,
		Status:         m.Status,
		LinkedInURL:    m.LinkedInURL,
		ContactType:    m.ContactType,
		ContactValue:   m.ContactValue,
		ContactSubType: m.ContactSubType,
		CreatedAt:      m.CreatedAt,
	}
}
