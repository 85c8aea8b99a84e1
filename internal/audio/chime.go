package audio

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

const (
	sampleRate       = 44100
	defaultFrequency = 880
	defaultDuration  = 200 * time.Millisecond
	// fade keeps the tone edges from clicking
	fade = 5 * time.Millisecond
)

// Chime implements alert.Channel by playing a short sine tone. Playback runs
// in the background; an alert that arrives while the tone is still playing
// does not queue another one.
type Chime struct {
	player  Player
	samples []float32
	log     zerolog.Logger

	playing atomic.Bool
	wg      sync.WaitGroup
}

func NewChime(player Player, frequency float64, duration time.Duration, log zerolog.Logger) *Chime {
	if frequency <= 0 {
		frequency = defaultFrequency
	}
	if duration <= 0 {
		duration = defaultDuration
	}
	return &Chime{
		player:  player,
		samples: toneSamples(frequency, sampleRate, duration),
		log:     log,
	}
}

func (c *Chime) Name() string { return "sound" }

// Send starts the tone and returns without waiting for it. Playback outlives
// ctx so disarming right after a match does not cut the tone short.
func (c *Chime) Send(ctx context.Context, a watchdog.Alert) error {
	if !c.playing.CompareAndSwap(false, true) {
		c.log.Debug().Str("rule", a.RuleID).Msg("Chime already playing, skipped")
		return nil
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.playing.Store(false)
		if err := c.player.Play(context.WithoutCancel(ctx), c.samples, sampleRate); err != nil {
			c.log.Error().Err(err).Str("rule", a.RuleID).Msg("Failed to play chime")
		}
	}()
	return nil
}

// Wait blocks until any tone in progress has finished.
func (c *Chime) Wait() {
	c.wg.Wait()
}

// toneSamples renders a mono sine wave with a linear fade in and out.
func toneSamples(freq float64, rate int, dur time.Duration) []float32 {
	n := int(float64(rate) * dur.Seconds())
	ramp := min(int(float64(rate)*fade.Seconds()), n/2)
	out := make([]float32, n)
	for i := range out {
		gain := 0.5
		switch {
		case ramp > 0 && i < ramp:
			gain *= float64(i) / float64(ramp)
		case ramp > 0 && i >= n-ramp:
			gain *= float64(n-1-i) / float64(ramp)
		}
		out[i] = float32(gain * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}
