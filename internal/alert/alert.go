package alert

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

// Channel is one alert output: the tray label, speech, the log, a chime.
type Channel interface {
	Name() string
	Send(ctx context.Context, a watchdog.Alert) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc struct {
	ChannelName string
	Fn          func(ctx context.Context, a watchdog.Alert) error
}

func (c ChannelFunc) Name() string { return c.ChannelName }

func (c ChannelFunc) Send(ctx context.Context, a watchdog.Alert) error { return c.Fn(ctx, a) }

// ErrChannelDispatch is matched by every ChannelDispatchError.
var ErrChannelDispatch = errors.New("alert channel failed")

// ChannelDispatchError reports one channel that failed or panicked.
type ChannelDispatchError struct {
	Channel string
	Err     error
}

func (e *ChannelDispatchError) Error() string {
	return fmt.Sprintf("alert channel %s: %v", e.Channel, e.Err)
}

func (e *ChannelDispatchError) Unwrap() error { return e.Err }

func (e *ChannelDispatchError) Is(target error) bool { return target == ErrChannelDispatch }

type route struct {
	method  watchdog.OutputMethod
	channel Channel
}

// Dispatcher fans an alert out to the channels selected by its output bits.
// It implements watchdog.Dispatcher.
type Dispatcher struct {
	log zerolog.Logger

	mu     sync.RWMutex
	routes []route
	taps   []Channel
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

// Route sends alerts whose output includes any bit of method to ch.
func (d *Dispatcher) Route(method watchdog.OutputMethod, ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes = append(d.routes, route{method: method, channel: ch})
}

// Tap sends every alert to ch regardless of its output bits.
func (d *Dispatcher) Tap(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.taps = append(d.taps, ch)
}

// Dispatch invokes every selected channel in registration order. A failing or
// panicking channel does not stop the others; all failures are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, a watchdog.Alert) error {
	d.mu.RLock()
	targets := make([]Channel, 0, len(d.routes)+len(d.taps))
	for _, r := range d.routes {
		if a.Output&r.method != 0 {
			targets = append(targets, r.channel)
		}
	}
	targets = append(targets, d.taps...)
	d.mu.RUnlock()

	var errs []error
	for _, ch := range targets {
		if err := d.send(ctx, ch, a); err != nil {
			d.log.Warn().Err(err).Str("channel", ch.Name()).Str("rule", a.RuleID).Msg("Alert channel failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, a watchdog.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("channel", ch.Name()).Str("stack", string(debug.Stack())).Msg("Alert channel panicked")
			err = &ChannelDispatchError{Channel: ch.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := ch.Send(ctx, a); err != nil {
		return &ChannelDispatchError{Channel: ch.Name(), Err: err}
	}
	return nil
}
