package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// BucketStats summarises the objects under a prefix.
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	// ByExtension counts objects per lowercase file extension ("mp3", "wav", ...).
	ByExtension map[string]int64
}

// List returns every object under prefix, recursively.
func (s *MinioStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  object.ContentType,
		})
	}
	return objects, nil
}

// Stats aggregates List output.
func (s *MinioStore) Stats(ctx context.Context, prefix string) (*BucketStats, error) {
	objects, err := s.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return summarise(objects), nil
}

// DeletePrefix removes every object under prefix and returns how many were
// removed. An empty prefix is refused.
func (s *MinioStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if strings.TrimSpace(prefix) == "" {
		return 0, fmt.Errorf("refusing to delete the whole bucket; pass a prefix")
	}
	objects, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(objects))
	for _, obj := range objects {
		objectsCh <- minio.ObjectInfo{Key: obj.Key}
	}
	close(objectsCh)

	failed, firstErr := drainRemoveErrors(s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}))
	if firstErr != nil {
		return len(objects) - failed, fmt.Errorf("failed to delete %d of %d objects: %w", failed, len(objects), firstErr)
	}
	return len(objects), nil
}

// drainRemoveErrors reads errCh until minio-go closes it and returns how
// many removals failed along with the first failure.
func drainRemoveErrors(errCh <-chan minio.RemoveObjectError) (int, error) {
	var (
		failed   int
		firstErr error
	)
	for rerr := range errCh {
		if rerr.Err == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("object %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return failed, firstErr
}

func summarise(objects []ObjectInfo) *BucketStats {
	stats := &BucketStats{ByExtension: make(map[string]int64)}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(obj.Key)), ".")
		if ext == "" {
			ext = "unknown"
		}
		stats.ByExtension[ext]++
	}
	return stats
}

// FormatSize renders a byte count with a binary unit, e.g. "1.5 MB".
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
