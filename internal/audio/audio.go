package audio

import "context"

// Player defines the interface for audio playback
type Player interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// AudioDevice represents an audio output device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}
