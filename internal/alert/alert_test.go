package alert

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

type recordingChannel struct {
	name  string
	got   []string
	err   error
	panic bool
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(ctx context.Context, a watchdog.Alert) error {
	if c.panic {
		panic("speech engine exploded")
	}
	c.got = append(c.got, a.Message)
	return c.err
}

func testAlert(output watchdog.OutputMethod) watchdog.Alert {
	return watchdog.Alert{RuleID: "r1", Message: "HTTPS traffic", Output: output, Summary: "outbound TCP"}
}

func TestDispatchRoutesByOutputBits(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	visual := &recordingChannel{name: "visual"}
	speech := &recordingChannel{name: "speech"}
	logc := &recordingChannel{name: "log"}
	tap := &recordingChannel{name: "feed"}
	d.Route(watchdog.OutputVisual, visual)
	d.Route(watchdog.OutputSpeech, speech)
	d.Route(watchdog.OutputLog, logc)
	d.Tap(tap)

	if err := d.Dispatch(context.Background(), testAlert(watchdog.OutputVisual|watchdog.OutputLog)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(visual.got) != 1 || len(logc.got) != 1 {
		t.Error("visual and log should each receive the alert")
	}
	if len(speech.got) != 0 {
		t.Error("speech was not selected")
	}
	if len(tap.got) != 1 {
		t.Error("tap should receive every alert")
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	d := NewDispatcher(zerolog.Nop())
	boom := errors.New("no speech engine")
	failing := &recordingChannel{name: "speech", err: boom}
	panicking := &recordingChannel{name: "sound", panic: true}
	visual := &recordingChannel{name: "visual"}
	d.Route(watchdog.OutputSpeech, failing)
	d.Route(watchdog.OutputSound, panicking)
	d.Route(watchdog.OutputVisual, visual)

	err := d.Dispatch(context.Background(), testAlert(watchdog.OutputSpeech|watchdog.OutputSound|watchdog.OutputVisual))
	if len(visual.got) != 1 {
		t.Fatal("visual channel should still fire")
	}
	if !errors.Is(err, ErrChannelDispatch) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want joined channel errors", err)
	}

	var chErr *ChannelDispatchError
	if !errors.As(err, &chErr) || chErr.Channel != "speech" {
		t.Errorf("first channel error = %+v", chErr)
	}
	if !strings.Contains(err.Error(), "sound") || !strings.Contains(err.Error(), "panic") {
		t.Errorf("panic should be reported, got %v", err)
	}
}

type fakeRecorder struct {
	alerts []watchdog.Alert
	err    error
}

func (r *fakeRecorder) Record(ctx context.Context, a watchdog.Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestLogChannel(t *testing.T) {
	var buf bytes.Buffer
	rec := &fakeRecorder{}
	c := NewLogChannel(zerolog.New(&buf), rec)

	if err := c.Send(context.Background(), testAlert(watchdog.OutputLog)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "HTTPS traffic") || !strings.Contains(buf.String(), `"rule":"r1"`) {
		t.Errorf("log line = %s", buf.String())
	}
	if len(rec.alerts) != 1 {
		t.Error("alert should be recorded")
	}

	rec.err = errors.New("disk full")
	if err := c.Send(context.Background(), testAlert(watchdog.OutputLog)); err == nil {
		t.Error("recorder failure should surface")
	}
}

func TestClipboardChannel(t *testing.T) {
	var copied string
	c := &ClipboardChannel{write: func(s string) error { copied = s; return nil }}
	if err := c.Send(context.Background(), testAlert(watchdog.OutputClipboard)); err != nil {
		t.Fatal(err)
	}
	if copied != "HTTPS traffic: outbound TCP" {
		t.Errorf("copied %q", copied)
	}

	c.write = func(string) error { return errors.New("no display") }
	if err := c.Send(context.Background(), testAlert(watchdog.OutputClipboard)); err == nil {
		t.Error("write failure should surface")
	}
}
