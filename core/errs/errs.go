// Package errs contains the sentinel errors shared by the repository,
// service and HTTP layers.
package errs

import "errors"

var (
	// ErrConflict indicates a unique field (username, token, id) is already taken.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized indicates the supplied credentials do not match a user.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates a missing user, record or stored file.
	ErrNotFound = errors.New("not found")

	// ErrInvalidFormat indicates an upload that is not a WAV file.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidInput indicates a missing or malformed request field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTranscode indicates malformed audio or a codec failure.
	ErrTranscode = errors.New("transcode error")

	// ErrStorage indicates a failure writing to the file store or database.
	ErrStorage = errors.New("storage error")
)
