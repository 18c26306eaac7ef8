package audio

import "context"

// Transcoder converts a WAV file on disk into an MP3 file on disk.
type Transcoder interface {
	TranscodeToMP3(ctx context.Context, inputWAV, outputMP3 string) error
}
