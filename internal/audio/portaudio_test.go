package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

func TestToneSamplesLength(t *testing.T) {
	got := toneSamples(440, 8000, 100*time.Millisecond)
	if len(got) != 800 {
		t.Fatalf("expected 800 samples, got %d", len(got))
	}
	if got[0] != 0 || got[len(got)-1] != 0 {
		t.Fatalf("expected silent edges, got %f and %f", got[0], got[len(got)-1])
	}
	for i, s := range got {
		if math.Abs(float64(s)) > 0.5 {
			t.Fatalf("sample %d out of range: %f", i, s)
		}
	}
}

func TestToneSamplesPeak(t *testing.T) {
	// a 1kHz period at 8kHz is 8 samples, so sample 4002 is a crest
	got := toneSamples(1000, 8000, time.Second)
	mid := 4002
	if math.Abs(float64(got[mid])-0.5) > 1e-4 {
		t.Fatalf("expected peak 0.5 at %d, got %f", mid, got[mid])
	}
}

func TestFrames(t *testing.T) {
	samples := make([]float32, 1100)
	chunks := frames(samples, 512)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[2]) != 76 {
		t.Fatalf("expected tail of 76, got %d", len(chunks[2]))
	}
	if frames(nil, 512) != nil {
		t.Fatal("expected no chunks for no samples")
	}
}

type fakePlayer struct {
	mu      sync.Mutex
	plays   int
	rate    int
	err     error
	release chan struct{}
}

func (f *fakePlayer) Play(ctx context.Context, samples []float32, sampleRate int) error {
	f.mu.Lock()
	f.plays++
	f.rate = sampleRate
	err, release := f.err, f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return err
}

func (f *fakePlayer) count() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plays, f.rate
}

func (f *fakePlayer) ListDevices() ([]AudioDevice, error) { return nil, nil }

func (f *fakePlayer) Close() error { return nil }

func TestChime(t *testing.T) {
	p := &fakePlayer{}
	c := NewChime(p, 0, 0, zerolog.Nop())
	if len(c.samples) != int(sampleRate*defaultDuration.Seconds()) {
		t.Fatalf("unexpected default tone length %d", len(c.samples))
	}
	if err := c.Send(context.Background(), watchdog.Alert{}); err != nil {
		t.Fatal(err)
	}
	c.Wait()
	if plays, rate := p.count(); plays != 1 || rate != sampleRate {
		t.Fatalf("expected one play at %d Hz, got %d at %d", sampleRate, plays, rate)
	}

	p.mu.Lock()
	p.err = errors.New("no output device")
	p.mu.Unlock()
	if err := c.Send(context.Background(), watchdog.Alert{}); err != nil {
		t.Fatalf("playback failure should be logged, not returned: %v", err)
	}
	c.Wait()
}

func TestChimeSendDoesNotBlock(t *testing.T) {
	p := &fakePlayer{release: make(chan struct{})}
	c := NewChime(p, 0, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Send(ctx, watchdog.Alert{})
		// the first tone is still playing
		c.Send(ctx, watchdog.Alert{})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send waited for playback")
	}
	cancel()

	close(p.release)
	c.Wait()
	if plays, _ := p.count(); plays != 1 {
		t.Fatalf("overlapping alert should not queue a second tone, got %d plays", plays)
	}

	p.mu.Lock()
	p.release = nil
	p.mu.Unlock()
	c.Send(context.Background(), watchdog.Alert{})
	c.Wait()
	if plays, _ := p.count(); plays != 2 {
		t.Fatalf("expected a new tone after the first finished, got %d plays", plays)
	}
}
