package alert

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

// Recorder persists alerts, e.g. the history store.
type Recorder interface {
	Record(ctx context.Context, a watchdog.Alert) error
}

// LogChannel writes one log line per alert and optionally records it.
type LogChannel struct {
	log      zerolog.Logger
	recorder Recorder
}

func NewLogChannel(log zerolog.Logger, recorder Recorder) *LogChannel {
	return &LogChannel{log: log, recorder: recorder}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, a watchdog.Alert) error {
	c.log.Info().
		Str("rule", a.RuleID).
		Int("index", a.RuleIndex).
		Str("packet", a.Summary).
		Msg(a.Message)

	if c.recorder == nil {
		return nil
	}
	if err := c.recorder.Record(ctx, a); err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}

// ClipboardChannel copies the alert message and packet summary to the
// system clipboard.
type ClipboardChannel struct {
	write func(string) error
}

func NewClipboardChannel() *ClipboardChannel {
	return &ClipboardChannel{write: writeClipboard}
}

func writeClipboard(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard unavailable on this system")
	}
	return clipboard.WriteAll(text)
}

func (c *ClipboardChannel) Name() string { return "clipboard" }

func (c *ClipboardChannel) Send(ctx context.Context, a watchdog.Alert) error {
	if err := c.write(Text(a)); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

// Text is the plain text form of an alert used for copying.
func Text(a watchdog.Alert) string {
	return fmt.Sprintf("%s: %s", a.Message, a.Summary)
}
