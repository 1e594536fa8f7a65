package dal

import (
	"context"

	"agentic_rag/backend/go/internal/rag_service/models"
	ragerr "agentic_rag/backend/go/pkg/errors"

	"gorm.io/gorm"
)

// IngestionDAL provides data access methods for the ingestion ledger.
type IngestionDAL struct {
	db *gorm.DB
}

// NewIngestionDAL creates a new IngestionDAL.
func NewIngestionDAL(db *gorm.DB) *IngestionDAL {
	return &IngestionDAL{db: db}
}

// Migrate creates or updates the ledger table.
func (dal *IngestionDAL) Migrate(ctx context.Context) error {
	if err := dal.db.WithContext(ctx).AutoMigrate(&models.IngestionRecord{}); err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "migrating ingestion ledger")
	}
	return nil
}

// RecordIngestion appends one ingestion attempt.
func (dal *IngestionDAL) RecordIngestion(ctx context.Context, rec *models.IngestionRecord) error {
	if err := dal.db.WithContext(ctx).Create(rec).Error; err != nil {
		return ragerr.Wrap(err, ragerr.CodePersistence, "recording ingestion", ragerr.FieldTraceID(rec.TraceID))
	}
	return nil
}

// ListByTrace retrieves the attempts made under one trace id, oldest first.
func (dal *IngestionDAL) ListByTrace(ctx context.Context, traceID string) ([]*models.IngestionRecord, error) {
	var records []*models.IngestionRecord
	result := dal.db.WithContext(ctx).Where("trace_id = ?", traceID).Order("id").Find(&records)
	if result.Error != nil {
		return nil, ragerr.Wrap(result.Error, ragerr.CodePersistence, "listing ingestions", ragerr.FieldTraceID(traceID))
	}
	return records, nil
}

// ListBySource retrieves the most recent attempts for one source, newest first.
func (dal *IngestionDAL) ListBySource(ctx context.Context, source string, limit int) ([]*models.IngestionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []*models.IngestionRecord
	result := dal.db.WithContext(ctx).Where("source = ?", source).Order("id DESC").Limit(limit).Find(&records)
	if result.Error != nil {
		return nil, ragerr.Wrap(result.Error, ragerr.CodePersistence, "listing ingestions", ragerr.FieldPath(source))
	}
	return records, nil
}
