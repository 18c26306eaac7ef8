package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"audiovault/core/errs"
	"audiovault/logger"
)

// FFmpegProcessor implements Transcoder by running ffmpeg.
type FFmpegProcessor struct {
	ffmpegPath string
	bitrate    string
}

// NewFFmpegProcessor creates a new FFmpegProcessor. bitrate is passed to
// ffmpeg's -b:a, e.g. "192k".
func NewFFmpegProcessor(ffmpegPath, bitrate string) *FFmpegProcessor {
	if bitrate == "" {
		bitrate = "192k"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, bitrate: bitrate}
}

// TranscodeToMP3 validates inputWAV and encodes it to outputMP3 with
// libmp3lame. Malformed input and encoder failures both wrap
// errs.ErrTranscode. Cancelling ctx kills ffmpeg.
func (p *FFmpegProcessor) TranscodeToMP3(ctx context.Context, inputWAV, outputMP3 string) error {
	info, err := ValidateWAV(inputWAV)
	if err != nil {
		return err
	}

	args := buildTranscodeArgs(inputWAV, outputMP3, p.bitrate)
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("[Transcode] executing ffmpeg",
		logger.String("cmd", p.ffmpegPath+" "+strings.Join(args, " ")))

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: ffmpeg cancelled: %v", errs.ErrTranscode, ctxErr)
		}
		return fmt.Errorf("%w: ffmpeg failed for %s: %v: %s",
			errs.ErrTranscode, inputWAV, err, strings.TrimSpace(stderr.String()))
	}

	if err := p.checkEncodedDuration(ctx, outputMP3, info.Duration); err != nil {
		return err
	}

	logger.Info("[Transcode] wav converted to mp3",
		logger.String("output", outputMP3),
		logger.Duration("audio_duration", info.Duration),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// checkEncodedDuration compares the encoded file's duration with the source.
// A missing or failing ffprobe is logged and tolerated; a large mismatch is
// a transcode failure.
func (p *FFmpegProcessor) checkEncodedDuration(ctx context.Context, outputMP3 string, want time.Duration) error {
	got, err := p.GetAudioDuration(ctx, outputMP3)
	if err != nil {
		logger.Warn("[Transcode] could not read encoded duration",
			logger.String("output", outputMP3), logger.ErrorField(err))
		return nil
	}
	if durationMismatch(want, got) {
		return fmt.Errorf("%w: encoded duration %s differs from source %s",
			errs.ErrTranscode, got, want)
	}
	return nil
}

// durationMismatch reports whether got is further from want than encoder
// padding explains: one second or 5% of want, whichever is larger.
func durationMismatch(want, got time.Duration) bool {
	tolerance := want / 20
	if tolerance < time.Second {
		tolerance = time.Second
	}
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff > tolerance
}

func buildTranscodeArgs(inputWAV, outputMP3, bitrate string) []string {
	return []string{
		"-y",
		"-v", "error",
		"-i", inputWAV,
		"-vn",
		"-codec:a", "libmp3lame",
		"-b:a", bitrate,
		"-f", "mp3",
		outputMP3,
	}
}

// ffprobePath expects ffprobe next to ffmpeg. Only the binary name is
// rewritten so directories like /opt/ffmpeg-7/bin stay intact.
func (p *FFmpegProcessor) ffprobePath() string {
	dir, name := filepath.Split(p.ffmpegPath)
	return dir + strings.Replace(name, "ffmpeg", "ffprobe", 1)
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// GetAudioDuration uses ffprobe to get the duration of an audio file.
func (p *FFmpegProcessor) GetAudioDuration(ctx context.Context, inputFile string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath(), args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe execution failed for %s: %w: %s", inputFile, err, stderr.String())
	}
	return parseProbeDuration(out.Bytes())
}

func parseProbeDuration(data []byte) (time.Duration, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(data, &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}
	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output")
	}
	seconds, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", probeData.Format.Duration, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
