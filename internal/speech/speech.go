// Package speech speaks alert messages through the platform's
// text-to-speech command.
package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/petems/whowhatwhere/internal/watchdog"
	"github.com/rs/zerolog"
)

// Speaker implements alert.Channel. A new message interrupts the one being
// spoken.
type Speaker struct {
	override string
	log      zerolog.Logger
	muted    atomic.Bool

	mu      sync.Mutex
	current *exec.Cmd

	start func(inv Invocation) (*exec.Cmd, error)
}

// msgEnv carries the message to commands that cannot take it as a plain
// argument.
const msgEnv = "WHOWHATWHERE_SPEECH"

// Invocation is a speech command line plus extra environment.
type Invocation struct {
	Argv []string
	Env  []string
}

// New returns a Speaker. command overrides the platform default; the message
// is appended as the last argument.
func New(command string, muted bool, log zerolog.Logger) *Speaker {
	s := &Speaker{override: command, log: log, start: startCommand}
	s.muted.Store(muted)
	return s
}

func (s *Speaker) Name() string { return "speech" }

func (s *Speaker) Muted() bool { return s.muted.Load() }

func (s *Speaker) SetMuted(m bool) {
	s.muted.Store(m)
	if m {
		s.interrupt()
	}
}

// ToggleMute flips the mute flag and returns the new value.
func (s *Speaker) ToggleMute() bool {
	for {
		old := s.muted.Load()
		if s.muted.CompareAndSwap(old, !old) {
			if !old {
				s.interrupt()
			}
			return !old
		}
	}
}

// Send starts speaking and returns without waiting for it to finish.
func (s *Speaker) Send(ctx context.Context, a watchdog.Alert) error {
	if s.muted.Load() || strings.TrimSpace(a.Message) == "" {
		return nil
	}
	inv, err := Command(runtime.GOOS, s.override, a.Message)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.interruptLocked()

	cmd, err := s.start(inv)
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", inv.Argv[0], err)
	}
	s.current = cmd
	if cmd != nil {
		go s.wait(cmd)
	}
	return nil
}

func (s *Speaker) wait(cmd *exec.Cmd) {
	err := cmd.Wait()
	s.mu.Lock()
	if s.current == cmd {
		s.current = nil
	}
	s.mu.Unlock()
	if err != nil {
		s.log.Debug().Err(err).Msg("Speech command exited")
	}
}

func (s *Speaker) interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interruptLocked()
}

func (s *Speaker) interruptLocked() {
	if s.current != nil && s.current.Process != nil {
		s.current.Process.Kill()
	}
	s.current = nil
}

// Command builds the invocation that speaks msg on goos. PowerShell joins
// everything after -Command into the script, so there the message travels in
// the environment and never in the script text.
func Command(goos, override, msg string) (Invocation, error) {
	if override != "" {
		argv := strings.Fields(override)
		return Invocation{Argv: append(argv, msg)}, nil
	}
	switch goos {
	case "darwin":
		return Invocation{Argv: []string{"say", msg}}, nil
	case "windows":
		script := "Add-Type -AssemblyName System.Speech; " +
			"(New-Object System.Speech.Synthesis.SpeechSynthesizer).Speak($env:" + msgEnv + ")"
		return Invocation{
			Argv: []string{"powershell", "-NoProfile", "-NonInteractive", "-Command", script},
			Env:  []string{msgEnv + "=" + msg},
		}, nil
	default:
		for _, name := range []string{"spd-say", "espeak-ng", "espeak"} {
			if _, err := exec.LookPath(name); err == nil {
				// "--" keeps a message starting with "-" from being read as a flag
				return Invocation{Argv: []string{name, "--", msg}}, nil
			}
		}
		return Invocation{}, fmt.Errorf("no text-to-speech command found (install speech-dispatcher or espeak)")
	}
}

func startCommand(inv Invocation) (*exec.Cmd, error) {
	cmd := exec.Command(inv.Argv[0], inv.Argv[1:]...)
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
