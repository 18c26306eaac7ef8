package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"audiovault/core/errs"
	"audiovault/model"
)

// AudioRecordRepository defines the interface for audio record operations.
// Records are append-only.
type AudioRecordRepository interface {
	CreateRecord(ctx context.Context, record *model.AudioRecord) error
	GetRecordByIDAndOwner(ctx context.Context, id, userID string) (*model.AudioRecord, error)
}

type gormAudioRecordRepository struct {
	db *gorm.DB
}

// NewGormAudioRecordRepository creates a new gormAudioRecordRepository.
func NewGormAudioRecordRepository(db *gorm.DB) AudioRecordRepository {
	return &gormAudioRecordRepository{db: db}
}

// CreateRecord inserts record; an id collision yields errs.ErrConflict.
func (r *gormAudioRecordRepository) CreateRecord(ctx context.Context, record *model.AudioRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: audio record %s already exists", errs.ErrConflict, record.ID)
		}
		return fmt.Errorf("failed to create audio record: %w", err)
	}
	return nil
}

// GetRecordByIDAndOwner only finds the record when userID owns it.
func (r *gormAudioRecordRepository) GetRecordByIDAndOwner(ctx context.Context, id, userID string) (*model.AudioRecord, error) {
	var record model.AudioRecord
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: audio record %s", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get audio record %s: %w", id, err)
	}
	return &record, nil
}
