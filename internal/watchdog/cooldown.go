package watchdog

import (
	"fmt"
	"strings"
	"time"
)

// MinCooldown is the shortest suppression window the tracker accepts.
const MinCooldown = 3 * time.Second

// CooldownScope selects whether one timer covers the whole watchdog or each
// rule keeps its own.
type CooldownScope int

const (
	CooldownGlobal CooldownScope = iota
	CooldownPerRule
)

const globalCooldownKey = "\x00global"

func (s CooldownScope) String() string {
	if s == CooldownPerRule {
		return "per_rule"
	}
	return "global"
}

func ParseCooldownScope(s string) (CooldownScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "global":
		return CooldownGlobal, nil
	case "per_rule", "per-rule", "rule":
		return CooldownPerRule, nil
	}
	return CooldownGlobal, fmt.Errorf("unknown cooldown scope %q", s)
}

// Cooldown remembers when each scope key last dispatched. It is not safe for
// concurrent use; the Matcher serializes access.
type Cooldown struct {
	window time.Duration
	scope  CooldownScope
	last   map[string]time.Time
}

func NewCooldown(window time.Duration, scope CooldownScope) *Cooldown {
	return &Cooldown{
		window: max(window, MinCooldown),
		scope:  scope,
		last:   make(map[string]time.Time),
	}
}

func (c *Cooldown) Window() time.Duration { return c.window }

func (c *Cooldown) Scope() CooldownScope { return c.scope }

// Allow reports whether a match of ruleID at the given time may dispatch and
// records the time when it may. A suppressed match leaves the timer alone.
func (c *Cooldown) Allow(ruleID string, at time.Time) bool {
	key := c.key(ruleID)
	if last, ok := c.last[key]; ok && at.Sub(last) < c.window {
		return false
	}
	c.last[key] = at
	return true
}

// Reset forgets every recorded dispatch.
func (c *Cooldown) Reset() {
	clear(c.last)
}

func (c *Cooldown) key(ruleID string) string {
	if c.scope == CooldownPerRule {
		return ruleID
	}
	return globalCooldownKey
}
