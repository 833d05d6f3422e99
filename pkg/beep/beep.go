// Package beep records the sound timer as a WAV file. Audio data is
// buffered in memory in its entirety and written to disk on Close, so
// it is suitable for captures rather than live playback.
package beep

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	DefaultSampleRate = 44100
	DefaultToneHz     = 440

	amplitude = 12000
)

// Recorder turns per-frame sound timer states into a mono square wave.
// Call Tick once per 60Hz frame and Close when the run ends.
type Recorder struct {
	path       string
	sampleRate int
	toneHz     int

	buffer []int
	phase  int
	level  bool
}

func NewRecorder(path string, sampleRate, toneHz int) *Recorder {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if toneHz <= 0 {
		toneHz = DefaultToneHz
	}
	return &Recorder{
		path:       path,
		sampleRate: sampleRate,
		toneHz:     toneHz,
		buffer:     make([]int, 0),
	}
}

// Tick appends one frame of audio: a square wave while the sound timer
// is active, silence otherwise. Phase carries across frames so held
// beeps stay continuous, and resets on silence so each new beep starts
// at a rising edge.
func (r *Recorder) Tick(on bool) {
	samples := r.sampleRate / 60
	halfPeriod := r.sampleRate / (2 * r.toneHz)
	if halfPeriod < 1 {
		halfPeriod = 1
	}

	if !on {
		r.phase = 0
		r.level = false
		r.buffer = append(r.buffer, make([]int, samples)...)
		return
	}

	for i := 0; i < samples; i++ {
		if r.phase >= halfPeriod {
			r.level = !r.level
			r.phase = 0
		}
		r.phase++
		if r.level {
			r.buffer = append(r.buffer, amplitude)
		} else {
			r.buffer = append(r.buffer, -amplitude)
		}
	}
}

// Frames reports how many frames have been recorded so far.
func (r *Recorder) Frames() int {
	if r.sampleRate < 60 {
		return 0
	}
	return len(r.buffer) / (r.sampleRate / 60)
}

// Close writes the buffered samples to the recorder's path as a
// 16-bit mono WAV file.
func (r *Recorder) Close() (rerr error) {
	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("beep: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("beep: %w", err)
		}
	}()

	enc := wav.NewEncoder(f, r.sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  r.sampleRate,
		},
		Data:           r.buffer,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("beep: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("beep: %w", err)
	}

	return nil
}
