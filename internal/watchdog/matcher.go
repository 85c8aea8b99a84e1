package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Alert is what a dispatched match hands to the output channels.
type Alert struct {
	RuleID    string
	RuleIndex int
	Message   string
	Output    OutputMethod
	Notes     string
	Packet    Packet
	Summary   string
	Time      time.Time
}

// Dispatcher delivers an alert to its output channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, a Alert) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, a Alert) error

func (f DispatcherFunc) Dispatch(ctx context.Context, a Alert) error { return f(ctx, a) }

// Matcher evaluates packets against a RuleSet and dispatches the first match
// that is outside its cooldown window.
type Matcher struct {
	rules      *RuleSet
	dispatcher Dispatcher
	log        zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	cooldown *Cooldown
}

func NewMatcher(rules *RuleSet, d Dispatcher, cooldown time.Duration, scope CooldownScope, log zerolog.Logger) *Matcher {
	return &Matcher{
		rules:      rules,
		dispatcher: d,
		log:        log,
		now:        time.Now,
		cooldown:   NewCooldown(cooldown, scope),
	}
}

// SetCooldown replaces the cooldown window and scope. Recorded dispatch
// times are dropped.
func (m *Matcher) SetCooldown(window time.Duration, scope CooldownScope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldown = NewCooldown(window, scope)
}

func (m *Matcher) Cooldown() (time.Duration, CooldownScope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldown.Window(), m.cooldown.Scope()
}

// Reset forgets recorded dispatch times, e.g. when a new session is armed.
func (m *Matcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldown.Reset()
}

// Process matches p and, unless suppressed, dispatches the alert. It reports
// whether an alert was dispatched. Dispatch errors are logged and do not
// count against the match.
func (m *Matcher) Process(ctx context.Context, p Packet) (Alert, bool) {
	rule, idx, ok := Match(m.rules.Snapshot(), p)
	if !ok {
		return Alert{}, false
	}

	at := p.Time
	if at.IsZero() {
		at = m.now()
	}

	m.mu.Lock()
	allowed := m.cooldown.Allow(rule.ID, at)
	m.mu.Unlock()
	if !allowed {
		m.log.Debug().Str("rule", rule.ID).Msg("Match suppressed by cooldown")
		return Alert{}, false
	}

	a := Alert{
		RuleID:    rule.ID,
		RuleIndex: idx,
		Message:   rule.Message,
		Output:    rule.Output,
		Notes:     rule.Notes,
		Packet:    p,
		Summary:   p.Summary(),
		Time:      at,
	}
	if err := m.dispatcher.Dispatch(ctx, a); err != nil {
		m.log.Warn().Err(err).Str("rule", rule.ID).Msg("Alert dispatched with channel failures")
	}
	return a, true
}
