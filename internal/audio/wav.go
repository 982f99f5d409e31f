package audio

import (
	"encoding/binary"
	"fmt"
	"os"
)

// PCM format used throughout the composition pipeline: 16-bit little-endian
// interleaved stereo at 44.1 kHz.
const (
	SampleRate     = 44100
	Channels       = 2
	bytesPerSample = 2
)

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*bytesPerSample:], uint16(s))
	}
	return buf
}

// BytesToSamples converts little-endian bytes to int16 samples. A trailing
// odd byte is dropped.
func BytesToSamples(raw []byte) []int16 {
	if len(raw)%bytesPerSample != 0 {
		raw = raw[:len(raw)-1]
	}
	samples := make([]int16, len(raw)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*bytesPerSample : i*bytesPerSample+bytesPerSample]))
	}
	return samples
}

// WriteWAV writes interleaved PCM samples as a canonical 44-byte-header
// RIFF/WAVE file at the pipeline's fixed rate and channel count.
func WriteWAV(path string, samples []int16) error {
	data := SamplesToBytes(samples)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(data)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(header[22:24], Channels)
	binary.LittleEndian.PutUint32(header[24:28], SampleRate)
	binary.LittleEndian.PutUint32(header[28:32], SampleRate*Channels*bytesPerSample) // byte rate
	binary.LittleEndian.PutUint16(header[32:34], Channels*bytesPerSample)            // block align
	binary.LittleEndian.PutUint16(header[34:36], 8*bytesPerSample)                   // bits per sample
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(data)))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// ReadWAV reads a PCM WAV file written in the pipeline format. It returns an
// error when the file uses a different encoding, rate, or channel count; the
// caller falls back to an ffmpeg decode in that case.
func ReadWAV(path string) ([]int16, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wav %s: %w", path, err)
	}
	if len(raw) < 44 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%s: not a RIFF/WAVE file", path)
	}

	format := binary.LittleEndian.Uint16(raw[20:22])
	channels := binary.LittleEndian.Uint16(raw[22:24])
	rate := binary.LittleEndian.Uint32(raw[24:28])
	bits := binary.LittleEndian.Uint16(raw[34:36])
	if format != 1 || channels != Channels || rate != SampleRate || bits != 8*bytesPerSample {
		return nil, fmt.Errorf("%s: unsupported wav format (fmt=%d ch=%d rate=%d bits=%d)",
			path, format, channels, rate, bits)
	}

	// Walk chunks from offset 12 to find "data"; some encoders insert
	// LIST/fact chunks between fmt and data.
	off := 12
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if body+size > len(raw) {
			size = len(raw) - body
		}
		if id == "data" {
			return BytesToSamples(raw[body : body+size]), nil
		}
		off = body + size
		if size%2 != 0 {
			off++ // chunks are word-aligned
		}
	}
	return nil, fmt.Errorf("%s: no data chunk", path)
}
