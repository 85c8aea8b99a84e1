package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the arming state of the watchdog
type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

// Policy decides what happens after an alert is dispatched.
type Policy int

const (
	KeepWatching Policy = iota
	StopAfterMatch
)

// Source delivers packets until ctx is cancelled or the source fails.
// Sends on out must select on ctx.Done so a stopped session never blocks it.
// Returning nil means the source ran out of packets.
type Source interface {
	Capture(ctx context.Context, out chan<- Packet) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, out chan<- Packet) error

func (f SourceFunc) Capture(ctx context.Context, out chan<- Packet) error { return f(ctx, out) }

const packetBuffer = 256

type Config struct {
	Rules         *RuleSet
	Dispatcher    Dispatcher
	Cooldown      time.Duration
	CooldownScope CooldownScope
	Policy        Policy
	// OnStateChange is called after every transition, outside any lock. err
	// is non-nil when a capture source failure ended the session.
	OnStateChange func(State, error)
	Log           zerolog.Logger
}

type Watchdog struct {
	rules   *RuleSet
	matcher *Matcher
	log     zerolog.Logger
	notify  func(State, error)

	mu      sync.Mutex
	state   State
	policy  Policy
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	matches int
}

func New(cfg Config) *Watchdog {
	rules := cfg.Rules
	if rules == nil {
		rules = NewRuleSet()
	}
	notify := cfg.OnStateChange
	if notify == nil {
		notify = func(State, error) {}
	}
	return &Watchdog{
		rules:   rules,
		matcher: NewMatcher(rules, cfg.Dispatcher, cfg.Cooldown, cfg.CooldownScope, cfg.Log),
		log:     cfg.Log,
		notify:  notify,
		policy:  cfg.Policy,
	}
}

func (w *Watchdog) Rules() *RuleSet { return w.rules }

func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Watchdog) Policy() Policy {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.policy
}

func (w *Watchdog) SetPolicy(p Policy) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.policy = p
}

func (w *Watchdog) SetCooldown(d time.Duration, scope CooldownScope) {
	w.matcher.SetCooldown(d, scope)
}

func (w *Watchdog) Cooldown() (time.Duration, CooldownScope) {
	return w.matcher.Cooldown()
}

// Matches returns the number of alerts dispatched in the current or most
// recent session.
func (w *Watchdog) Matches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.matches
}

// Start arms the watchdog and consumes src until Stop, a StopAfterMatch
// dispatch, or the source ends.
func (w *Watchdog) Start(ctx context.Context, src Source) error {
	w.mu.Lock()
	if w.state == Armed {
		w.mu.Unlock()
		return ErrAlreadyArmed
	}
	if w.rules.Len() == 0 {
		w.mu.Unlock()
		return ErrNoRules
	}
	w.gen++
	gen := w.gen
	sessCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.state = Armed
	w.matches = 0
	done := w.done
	w.mu.Unlock()

	w.matcher.Reset()
	w.log.Info().Int("rules", w.rules.Len()).Msg("Watchdog armed")
	w.notify(Armed, nil)

	go w.run(sessCtx, gen, src, done)
	return nil
}

// Stop disarms the watchdog. It does not wait for the source to return.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if w.state != Armed {
		w.mu.Unlock()
		return
	}
	w.disarmLocked()
	w.mu.Unlock()

	w.log.Info().Msg("Watchdog disarmed")
	w.notify(Idle, nil)
}

// Toggle arms an idle watchdog or disarms an armed one and returns the new
// state.
func (w *Watchdog) Toggle(ctx context.Context, src Source) (State, error) {
	if w.State() == Armed {
		w.Stop()
		return Idle, nil
	}
	if err := w.Start(ctx, src); err != nil {
		return Idle, err
	}
	return Armed, nil
}

// Wait blocks until the current session's goroutine has exited.
func (w *Watchdog) Wait() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (w *Watchdog) run(ctx context.Context, gen uint64, src Source, done chan struct{}) {
	defer close(done)

	packets := make(chan Packet, packetBuffer)
	errc := make(chan error, 1)
	go func() { errc <- src.Capture(ctx, packets) }()

	for {
		select {
		case p := <-packets:
			w.handle(ctx, gen, p)
		case err := <-errc:
			if err == nil {
				w.drain(ctx, gen, packets)
			}
			w.finish(gen, err)
			return
		case <-ctx.Done():
			<-errc
			return
		}
	}
}

func (w *Watchdog) drain(ctx context.Context, gen uint64, packets <-chan Packet) {
	for {
		select {
		case p := <-packets:
			w.handle(ctx, gen, p)
		default:
			return
		}
	}
}

func (w *Watchdog) handle(ctx context.Context, gen uint64, p Packet) {
	if ctx.Err() != nil {
		return
	}
	if _, ok := w.matcher.Process(ctx, p); !ok {
		return
	}

	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return
	}
	w.matches++
	if w.policy != StopAfterMatch {
		w.mu.Unlock()
		return
	}
	w.disarmLocked()
	w.mu.Unlock()

	w.log.Info().Msg("Watchdog disarmed after match")
	w.notify(Idle, nil)
}

// finish ends the session gen after its source returned.
func (w *Watchdog) finish(gen uint64, err error) {
	w.mu.Lock()
	if w.gen != gen || w.state != Armed {
		w.mu.Unlock()
		return
	}
	w.disarmLocked()
	w.mu.Unlock()

	if err != nil {
		err = &CaptureSourceError{Err: err}
		w.log.Error().Err(err).Msg("Watchdog disarmed")
	} else {
		w.log.Info().Msg("Capture source ended, watchdog disarmed")
	}
	w.notify(Idle, err)
}

func (w *Watchdog) disarmLocked() {
	w.gen++
	w.state = Idle
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}
