package audio

import (
	"fmt"
	"os/exec"
)

// DecodeFile decodes an audio file into the pipeline PCM format. Files
// already in that exact WAV format are read directly; anything else goes
// through FFmpeg.
func DecodeFile(path string) ([]int16, error) {
	if samples, err := ReadWAV(path); err == nil {
		return samples, nil
	}
	return decodeWithFFmpeg(path)
}

// decodeWithFFmpeg runs FFmpeg to decode an audio file to raw PCM int16
// samples, resampled to the pipeline rate and channel count.
func decodeWithFFmpeg(path string) ([]int16, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}
	return BytesToSamples(out), nil
}
