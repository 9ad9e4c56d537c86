// Package audio owns microphone capture. A Capture accumulates PCM samples in
// memory for one recording span; sessions are seconds long, so no disk
// spooling is needed.
package audio

import (
	"fmt"
	"time"
)

// Buffer is the sealed result of one recording span: an ordered sequence of
// PCM samples plus their format. It is owned exclusively by the active
// session until handed to the transcription pipeline.
type Buffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Empty reports whether any samples were captured.
func (b Buffer) Empty() bool {
	return len(b.Samples) == 0
}

// Duration returns the recorded length.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// DeviceUnavailableError indicates the requested capture device does not
// exist or could not be opened.
type DeviceUnavailableError struct {
	Index int // -1 when the default device failed
	Err   error
}

func (e *DeviceUnavailableError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("default input device unavailable: %v", e.Err)
	}
	return fmt.Sprintf("input device %d unavailable: %v", e.Index, e.Err)
}

func (e *DeviceUnavailableError) Unwrap() error {
	return e.Err
}
