package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"audiovault/logger"
	"audiovault/model"
)

const recordKey = "audiovault:record:%s:%s" // id, user_id

// RecordCache caches audio record rows by (id, user_id). Rows never change,
// so entries only expire.
type RecordCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRecordCache wraps client. A non-positive ttl means entries never expire.
func NewRecordCache(client *redis.Client, ttl time.Duration) *RecordCache {
	if ttl < 0 {
		ttl = 0
	}
	return &RecordCache{client: client, ttl: ttl}
}

func recordCacheKey(id, userID string) string {
	return fmt.Sprintf(recordKey, id, userID)
}

// Get returns the cached record. Redis failures count as a miss.
func (c *RecordCache) Get(ctx context.Context, id, userID string) (*model.AudioRecord, bool) {
	data, err := c.client.Get(ctx, recordCacheKey(id, userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("[RecordCache] get failed", logger.String("id", id), logger.ErrorField(err))
		}
		return nil, false
	}

	var entry recordEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		logger.Warn("[RecordCache] corrupt entry", logger.String("id", id), logger.ErrorField(err))
		return nil, false
	}
	record := model.AudioRecord(entry)
	return &record, true
}

// Set stores record. Failures are logged and otherwise ignored.
func (c *RecordCache) Set(ctx context.Context, record *model.AudioRecord) {
	data, err := json.Marshal(recordEntry(*record))
	if err != nil {
		logger.Warn("[RecordCache] marshal failed", logger.String("id", record.ID), logger.ErrorField(err))
		return
	}
	if err := c.client.Set(ctx, recordCacheKey(record.ID, record.UserID), data, c.ttl).Err(); err != nil {
		logger.Warn("[RecordCache] set failed", logger.String("id", record.ID), logger.ErrorField(err))
	}
}

// recordEntry is the cached form of an audio record. Unlike the API
// encoding it includes the file location.
type recordEntry struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	FilePath string `json:"filePath"`
	Format   string `json:"format"`
}
