// Package ingest turns an uploaded WAV file into a stored MP3 and an audio
// record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"audiovault/core/audio"
	"audiovault/core/errs"
	"audiovault/logger"
	"audiovault/model"
	"audiovault/repository"
	"audiovault/storage"
)

// Verifier checks upload credentials.
type Verifier interface {
	Verify(ctx context.Context, userID, token string) (*model.User, error)
}

// Upload is one upload request.
type Upload struct {
	UserID   string
	Token    string
	Filename string
	Body     io.Reader
}

// Result is returned for a stored upload.
type Result struct {
	Record *model.AudioRecord
	URL    string
}

// Options configures a Pipeline.
type Options struct {
	TempDir       string // raw WAV and fresh MP3 files live here until stored
	PublicBaseURL string // prefix of Result.URL, without trailing slash
}

// Pipeline runs validate, persist-raw, transcode, store and record for each
// upload. Uploads share no state beyond the injected dependencies.
type Pipeline struct {
	verifier   Verifier
	transcoder audio.Transcoder
	store      storage.Store
	records    repository.AudioRecordRepository
	opts       Options
	newID      func() string
}

func NewPipeline(verifier Verifier, transcoder audio.Transcoder, store storage.Store,
	records repository.AudioRecordRepository, opts Options) *Pipeline {
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Pipeline{
		verifier:   verifier,
		transcoder: transcoder,
		store:      store,
		records:    records,
		opts:       opts,
		newID:      uuid.NewString,
	}
}

// Ingest stores up.Body as an MP3 owned by up.UserID.
//
// The filename is checked before the credentials, so a non-WAV upload fails
// with errs.ErrInvalidFormat whatever the credentials. Temporary files are
// always removed; the stored object is removed again when the record insert
// fails.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (res *Result, err error) {
	if !IsWAVFilename(up.Filename) {
		return nil, fmt.Errorf("%w: %q is not a .wav file", errs.ErrInvalidFormat, up.Filename)
	}
	if _, err := p.verifier.Verify(ctx, up.UserID, up.Token); err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: verify credentials: %v", errs.ErrStorage, err)
	}

	start := time.Now()
	wavPath := filepath.Join(p.opts.TempDir, p.newID()+".wav")
	mp3Path := filepath.Join(p.opts.TempDir, p.newID()+".mp3")
	var location string

	defer func() {
		removeTemp(wavPath)
		if err != nil {
			removeTemp(mp3Path)
			if location != "" {
				// Use a fresh context: ctx may be the reason we failed.
				if derr := p.store.Delete(context.Background(), location); derr != nil {
					logger.Warn("[Ingest] failed to remove stored object",
						logger.String("location", location), logger.ErrorField(derr))
				}
			}
			logger.Error("[Ingest] upload failed",
				logger.String("user_id", up.UserID),
				logger.String("filename", up.Filename),
				logger.ErrorField(err))
		}
	}()

	if err := p.persistRaw(wavPath, up.Body); err != nil {
		return nil, err
	}

	if err := p.transcoder.TranscodeToMP3(ctx, wavPath, mp3Path); err != nil {
		if errors.Is(err, errs.ErrTranscode) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrTranscode, err)
	}
	removeTemp(wavPath)

	location, err = p.store.Put(ctx, p.newID()+".mp3", mp3Path)
	if err != nil {
		location = ""
		return nil, fmt.Errorf("%w: store mp3: %v", errs.ErrStorage, err)
	}

	record := &model.AudioRecord{
		ID:       p.newID(),
		UserID:   up.UserID,
		FilePath: location,
		Format:   model.FormatMP3,
	}
	if err := p.records.CreateRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: insert record: %v", errs.ErrStorage, err)
	}

	logger.Info("[Ingest] upload stored",
		logger.String("record_id", record.ID),
		logger.String("user_id", record.UserID),
		logger.String("location", location),
		logger.Duration("elapsed", time.Since(start)))

	return &Result{Record: record, URL: p.RecordURL(record)}, nil
}

// RecordURL is where record can be downloaded by its owner.
func (p *Pipeline) RecordURL(record *model.AudioRecord) string {
	q := url.Values{}
	q.Set("id", record.ID)
	q.Set("user", record.UserID)
	return p.opts.PublicBaseURL + "/record?" + q.Encode()
}

func (p *Pipeline) persistRaw(wavPath string, body io.Reader) error {
	if err := os.MkdirAll(p.opts.TempDir, 0755); err != nil {
		return fmt.Errorf("%w: create temp dir: %v", errs.ErrStorage, err)
	}
	f, err := os.Create(wavPath)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", errs.ErrStorage, wavPath, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("%w: write upload: %v", errs.ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: write upload: %v", errs.ErrStorage, err)
	}
	return nil
}

// IsWAVFilename reports whether name ends in ".wav", in any case.
func IsWAVFilename(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".wav")
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("[Ingest] failed to remove temp file", logger.String("path", path), logger.ErrorField(err))
	}
}
