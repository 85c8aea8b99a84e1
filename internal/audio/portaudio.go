package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 512

type portAudioPlayer struct {
	// one tone at a time on the default device
	mu sync.Mutex
}

// New creates a new PortAudio-based player
func New() (Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioPlayer{}, nil
}

func (p *portAudioPlayer) Play(ctx context.Context, samples []float32, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	device, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return fmt.Errorf("failed to get default output device: %w", err)
	}

	// Open stream: mono, float32
	buffer := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: len(buffer),
	}, buffer)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	defer stream.Stop()

	for _, chunk := range frames(samples, len(buffer)) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		copy(buffer, chunk)
		clear(buffer[len(chunk):])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write audio: %w", err)
		}
	}
	return nil
}

func (p *portAudioPlayer) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultOutputDevice()

	for _, d := range devices {
		if d.MaxOutputChannels > 0 {
			result = append(result, AudioDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}

func (p *portAudioPlayer) Close() error {
	return portaudio.Terminate()
}

// frames splits samples into chunks of at most size samples.
func frames(samples []float32, size int) [][]float32 {
	var out [][]float32
	for len(samples) > 0 {
		n := min(size, len(samples))
		out = append(out, samples[:n])
		samples = samples[n:]
	}
	return out
}
