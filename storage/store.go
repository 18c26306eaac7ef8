package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Open when nothing is stored at a location.
var ErrObjectNotFound = errors.New("object not found")

// Object is an open stored file. The caller closes Body.
type Object struct {
	Body io.ReadCloser
	Size int64
}

// Store holds converted audio files.
//
// Put moves the local file srcPath into the store under key and returns the
// location to persist in the audio record. Open and Delete take that
// location. Deleting a missing object is not an error.
type Store interface {
	Put(ctx context.Context, key, srcPath string) (string, error)
	Open(ctx context.Context, location string) (*Object, error)
	Delete(ctx context.Context, location string) error
}
