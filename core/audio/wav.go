package audio

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"

	"audiovault/core/errs"
)

// WAVInfo is what the header says about a WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// ValidateWAV checks that path holds a RIFF/WAVE file with a usable format
// chunk and a data chunk. Any problem wraps errs.ErrTranscode.
func ValidateWAV(path string) (*WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", errs.ErrTranscode, path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("%w: not a wav file: %v", errs.ErrTranscode, err)
	}
	if d.NumChans == 0 || d.SampleRate == 0 || d.BitDepth == 0 {
		return nil, fmt.Errorf("%w: wav header has no usable format (channels=%d rate=%d depth=%d)",
			errs.ErrTranscode, d.NumChans, d.SampleRate, d.BitDepth)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: wav has no data chunk: %v", errs.ErrTranscode, err)
	}

	info := &WAVInfo{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	bytesPerSecond := int64(info.SampleRate) * int64(info.Channels) * int64(info.BitDepth) / 8
	if bytesPerSecond > 0 {
		info.Duration = time.Duration(d.PCMLen() * int64(time.Second) / bytesPerSecond)
	}
	return info, nil
}
