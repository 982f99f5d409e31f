// Package audio composes the timed intro of a challenge clip: a countdown of
// audible ticks, the beep marker the player must react to, and trailing
// silence, followed by the rendered sound itself.
package audio

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	tickFrequencyHz = 660
	beepFrequencyHz = 1000

	tickAmplitude = 0.25
	beepAmplitude = 0.6

	// Each countdown second ends with a 50 ms tick.
	tickSamples = SampleRate / 20
)

// Composer inserts a randomized beep marker ahead of a raw audio track.
// Only the marker offset selection is random; everything downstream of the
// chosen offset is deterministic.
type Composer struct {
	silenceSeconds int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewComposer creates a Composer with the given silence budget in seconds.
// Pass nil rng to seed from the clock; tests inject a seeded source.
func NewComposer(silenceSeconds int, rng *rand.Rand) (*Composer, error) {
	if silenceSeconds < 2 {
		return nil, fmt.Errorf("silence budget must be at least 2 seconds, got %d", silenceSeconds)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Composer{silenceSeconds: silenceSeconds, rng: rng}, nil
}

// SilenceSeconds returns the configured silence budget.
func (c *Composer) SilenceSeconds() int {
	return c.silenceSeconds
}

// Compose picks a beep offset uniformly in [1, silenceSeconds], writes the
// augmented clip to outputPath, and returns the chosen offset.
func (c *Composer) Compose(inputPath, outputPath string) (int, error) {
	c.mu.Lock()
	beepOffset := c.rng.Intn(c.silenceSeconds) + 1
	c.mu.Unlock()

	if err := c.ComposeAt(inputPath, outputPath, beepOffset); err != nil {
		return 0, err
	}
	return beepOffset, nil
}

// ComposeAt writes the augmented clip for a fixed beep offset. The output is
// fully determined by the offset and the input file: composing twice with
// the same arguments yields identical bytes.
func (c *Composer) ComposeAt(inputPath, outputPath string, beepOffset int) error {
	if beepOffset < 1 || beepOffset > c.silenceSeconds {
		return fmt.Errorf("beep offset %d outside [1, %d]", beepOffset, c.silenceSeconds)
	}

	content, err := DecodeFile(inputPath)
	if err != nil {
		return fmt.Errorf("decode source audio: %w", err)
	}

	lead := LeadSamples(beepOffset, c.silenceSeconds)
	out := make([]int16, 0, len(lead)+len(content))
	out = append(out, lead...)
	out = append(out, content...)

	if err := WriteWAV(outputPath, out); err != nil {
		return fmt.Errorf("write composed audio: %w", err)
	}
	return nil
}

// LeadSamples builds the intro that precedes the original content:
//
//	seconds [0, B)        — countdown: near-silence with a short tick at the
//	                        end of each second
//	second  [B, B+1)      — the beep marker; its onset is exactly B seconds
//	                        from stream start
//	seconds [B+1, S+1)    — the remaining S−B seconds of silence
//
// where B is beepOffset and S is silenceSeconds. The total amount of
// non-marker silence is therefore exactly S seconds and the marker onset is
// exactly B. Pure function of its arguments.
func LeadSamples(beepOffset, silenceSeconds int) []int16 {
	buf := make([]int16, (silenceSeconds+1)*SampleRate*Channels)

	for s := 0; s < beepOffset; s++ {
		tickStart := (s+1)*SampleRate - tickSamples
		writeTone(buf, tickStart, tickFrequencyHz, tickAmplitude, tickSamples)
	}
	writeTone(buf, beepOffset*SampleRate, beepFrequencyHz, beepAmplitude, SampleRate)

	return buf
}

// writeTone renders n samples of a sine tone into all channels starting at
// the given per-channel sample position.
func writeTone(buf []int16, startSample int, freqHz float64, amplitude float64, n int) {
	for i := 0; i < n; i++ {
		v := int16(amplitude * math.MaxInt16 * math.Sin(2*math.Pi*freqHz*float64(i)/SampleRate))
		base := (startSample + i) * Channels
		for ch := 0; ch < Channels; ch++ {
			buf[base+ch] = v
		}
	}
}
