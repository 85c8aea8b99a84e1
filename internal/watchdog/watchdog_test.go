package watchdog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type transition struct {
	state State
	err   error
}

type stateRecorder struct {
	mu     sync.Mutex
	events []transition
}

func (r *stateRecorder) record(s State, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, transition{s, err})
}

func (r *stateRecorder) all() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition(nil), r.events...)
}

// feed sends packets and then either blocks until cancelled or returns end.
func feed(packets []Packet, block bool, end error) Source {
	return SourceFunc(func(ctx context.Context, out chan<- Packet) error {
		for _, p := range packets {
			select {
			case out <- p:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if block {
			<-ctx.Done()
			return ctx.Err()
		}
		return end
	})
}

func newTestWatchdog(policy Policy, d Dispatcher, rec *stateRecorder) *Watchdog {
	return New(Config{
		Rules:         NewRuleSet(httpsRule()),
		Dispatcher:    d,
		Cooldown:      5 * time.Second,
		Policy:        policy,
		OnStateChange: rec.record,
		Log:           zerolog.Nop(),
	})
}

func waitState(t *testing.T, w *Watchdog, want State) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if w.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", w.State(), want)
}

func TestWatchdogStopAfterMatch(t *testing.T) {
	d := &recordingDispatcher{}
	rec := &stateRecorder{}
	w := newTestWatchdog(StopAfterMatch, d, rec)

	packets := []Packet{at(httpsOut(), 0), at(httpsOut(), 10*time.Second), at(httpsOut(), 20*time.Second)}
	if err := w.Start(context.Background(), feed(packets, true, nil)); err != nil {
		t.Fatal(err)
	}
	waitState(t, w, Idle)
	w.Wait()

	if d.count() != 1 {
		t.Errorf("dispatch count = %d, want 1", d.count())
	}
	events := rec.all()
	if len(events) != 2 || events[0].state != Armed || events[1].state != Idle || events[1].err != nil {
		t.Errorf("transitions = %+v", events)
	}
}

func TestWatchdogKeepWatching(t *testing.T) {
	d := &recordingDispatcher{}
	rec := &stateRecorder{}
	w := newTestWatchdog(KeepWatching, d, rec)

	packets := []Packet{at(httpsOut(), 0), at(httpsOut(), 2*time.Second), at(httpsOut(), 6*time.Second)}
	if err := w.Start(context.Background(), feed(packets, true, nil)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 200 && w.Matches() < 2; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	if w.State() != Armed {
		t.Error("watchdog should stay armed")
	}
	w.Stop()
	w.Wait()

	if d.count() != 2 || w.Matches() != 2 {
		t.Errorf("dispatch count = %d, matches = %d, want 2", d.count(), w.Matches())
	}
}

func TestWatchdogSourceFailure(t *testing.T) {
	rec := &stateRecorder{}
	w := newTestWatchdog(KeepWatching, &recordingDispatcher{}, rec)
	boom := errors.New("device went away")

	if err := w.Start(context.Background(), feed(nil, false, boom)); err != nil {
		t.Fatal(err)
	}
	w.Wait()

	if w.State() != Idle {
		t.Fatalf("state = %v, want idle", w.State())
	}
	events := rec.all()
	last := events[len(events)-1]
	var srcErr *CaptureSourceError
	if !errors.As(last.err, &srcErr) || !errors.Is(last.err, ErrCaptureSource) || !errors.Is(last.err, boom) {
		t.Errorf("last transition error = %v, want CaptureSourceError wrapping %v", last.err, boom)
	}
}

func TestWatchdogSourceEndDrains(t *testing.T) {
	d := &recordingDispatcher{}
	rec := &stateRecorder{}
	w := newTestWatchdog(KeepWatching, d, rec)

	packets := []Packet{at(httpsOut(), 0), at(httpsOut(), 10*time.Second)}
	if err := w.Start(context.Background(), feed(packets, false, nil)); err != nil {
		t.Fatal(err)
	}
	w.Wait()

	if d.count() != 2 {
		t.Errorf("dispatch count = %d, want 2", d.count())
	}
	events := rec.all()
	if last := events[len(events)-1]; last.state != Idle || last.err != nil {
		t.Errorf("last transition = %+v, want clean idle", last)
	}
}

func TestWatchdogStartErrors(t *testing.T) {
	w := newTestWatchdog(KeepWatching, &recordingDispatcher{}, &stateRecorder{})
	src := feed(nil, true, nil)

	if err := w.Start(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background(), src); !errors.Is(err, ErrAlreadyArmed) {
		t.Errorf("second Start = %v, want ErrAlreadyArmed", err)
	}
	w.Stop()
	w.Stop()
	w.Wait()

	empty := New(Config{Dispatcher: &recordingDispatcher{}, Log: zerolog.Nop()})
	if err := empty.Start(context.Background(), src); !errors.Is(err, ErrNoRules) {
		t.Errorf("Start without rules = %v, want ErrNoRules", err)
	}
}

func TestWatchdogToggle(t *testing.T) {
	rec := &stateRecorder{}
	w := newTestWatchdog(KeepWatching, &recordingDispatcher{}, rec)
	src := feed(nil, true, nil)

	if s, err := w.Toggle(context.Background(), src); err != nil || s != Armed {
		t.Fatalf("Toggle = %v, %v, want armed", s, err)
	}
	if s, _ := w.Toggle(context.Background(), src); s != Idle {
		t.Fatalf("Toggle = %v, want idle", s)
	}
	w.Wait()
	if s, _ := w.Toggle(context.Background(), src); s != Armed {
		t.Fatalf("rearm Toggle = %v, want armed", s)
	}
	w.Stop()
	w.Wait()

	if n := len(rec.all()); n != 4 {
		t.Errorf("transitions = %d, want 4", n)
	}
}

func TestWatchdogRearmResetsCooldown(t *testing.T) {
	d := &recordingDispatcher{}
	w := newTestWatchdog(StopAfterMatch, d, &stateRecorder{})

	for i := 0; i < 2; i++ {
		if err := w.Start(context.Background(), feed([]Packet{at(httpsOut(), 0)}, true, nil)); err != nil {
			t.Fatal(err)
		}
		waitState(t, w, Idle)
		w.Wait()
	}
	if d.count() != 2 {
		t.Errorf("dispatch count = %d, want 2", d.count())
	}
}
