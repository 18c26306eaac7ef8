// Package library serves stored recordings back to their owners.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"

	"audiovault/core/errs"
	"audiovault/logger"
	"audiovault/model"
	"audiovault/repository"
	"audiovault/storage"
)

// RecordCache is an optional read-through cache of audio records.
type RecordCache interface {
	Get(ctx context.Context, id, userID string) (*model.AudioRecord, bool)
	Set(ctx context.Context, record *model.AudioRecord)
}

// Recording is an open stored file. The caller closes Body.
type Recording struct {
	Record      *model.AudioRecord
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

type Service struct {
	records repository.AudioRecordRepository
	store   storage.Store
	cache   RecordCache
}

// NewService builds a Service. cache may be nil.
func NewService(records repository.AudioRecordRepository, store storage.Store, cache RecordCache) *Service {
	return &Service{records: records, store: store, cache: cache}
}

// Fetch opens record id if userID owns it. A record that does not exist, is
// owned by someone else, or whose file is gone all yield errs.ErrNotFound.
func (s *Service) Fetch(ctx context.Context, id, userID string) (*Recording, error) {
	if id == "" || userID == "" {
		return nil, fmt.Errorf("%w: id and user are required", errs.ErrInvalidInput)
	}

	record, err := s.lookup(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	obj, err := s.store.Open(ctx, record.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			logger.Warn("[Fetch] record has no stored file",
				logger.String("record_id", record.ID), logger.String("location", record.FilePath))
			return nil, fmt.Errorf("%w: file for audio record %s", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: open %s: %v", errs.ErrStorage, record.FilePath, err)
	}

	return &Recording{
		Record:      record,
		Body:        obj.Body,
		Size:        obj.Size,
		ContentType: record.ContentType(),
	}, nil
}

func (s *Service) lookup(ctx context.Context, id, userID string) (*model.AudioRecord, error) {
	if s.cache != nil {
		if record, ok := s.cache.Get(ctx, id, userID); ok {
			return record, nil
		}
	}

	record, err := s.records.GetRecordByIDAndOwner(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, record)
	}
	return record, nil
}
