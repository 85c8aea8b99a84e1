package watchdog

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// MoveDirection is the direction of a MoveRows call
type MoveDirection int

const (
	MoveUp MoveDirection = iota
	MoveDown
)

// RuleSet is the ordered rule list. Every mutation publishes a fresh slice,
// so a snapshot taken by the matcher never changes underneath it.
type RuleSet struct {
	mu    sync.Mutex
	rules atomic.Pointer[[]Rule]
}

func NewRuleSet(rules ...Rule) *RuleSet {
	rs := &RuleSet{}
	rs.Set(rules)
	return rs
}

// Snapshot returns the current rules. The slice is shared and must not be
// modified.
func (rs *RuleSet) Snapshot() []Rule {
	if p := rs.rules.Load(); p != nil {
		return *p
	}
	return nil
}

// Rules returns a copy of the current rules.
func (rs *RuleSet) Rules() []Rule {
	return slices.Clone(rs.Snapshot())
}

func (rs *RuleSet) Len() int {
	return len(rs.Snapshot())
}

// Set replaces every rule. Rules without an ID get one.
func (rs *RuleSet) Set(rules []Rule) {
	next := make([]Rule, len(rules))
	for i, r := range rules {
		next[i] = withID(r)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules.Store(&next)
}

// Add appends r and returns its index.
func (rs *RuleSet) Add(r Rule) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	next := append(slices.Clone(rs.Snapshot()), withID(r))
	rs.rules.Store(&next)
	return len(next) - 1
}

// Insert places r at index i, shifting later rules down.
func (rs *RuleSet) Insert(i int, r Rule) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	cur := rs.Snapshot()
	if i < 0 || i > len(cur) {
		return fmt.Errorf("rule index %d out of range [0,%d]", i, len(cur))
	}
	next := slices.Insert(slices.Clone(cur), i, withID(r))
	rs.rules.Store(&next)
	return nil
}

// Update replaces the rule at index i, keeping its ID when r has none.
func (rs *RuleSet) Update(i int, r Rule) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	cur := rs.Snapshot()
	if i < 0 || i >= len(cur) {
		return fmt.Errorf("rule index %d out of range", i)
	}
	if r.ID == "" {
		r.ID = cur[i].ID
	}
	next := slices.Clone(cur)
	next[i] = r
	rs.rules.Store(&next)
	return nil
}

// Remove deletes the rules at the given indices. Invalid indices are ignored.
func (rs *RuleSet) Remove(indices ...int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	cur := rs.Snapshot()
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		drop[i] = true
	}
	next := make([]Rule, 0, len(cur))
	for i, r := range cur {
		if !drop[i] {
			next = append(next, r)
		}
	}
	rs.rules.Store(&next)
}

// MoveRows moves every selected rule one position in dir by swapping it with
// its neighbour and returns the new positions of the selection, ascending.
//
// UP processes indices ascending and DOWN descending. A rule at the boundary
// stays where it is, and so does a selected rule whose neighbour in dir
// stayed, which keeps a selected block that touches the boundary intact.
// Out-of-range indices are ignored.
func (rs *RuleSet) MoveRows(selected []int, dir MoveDirection) []int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	next := slices.Clone(rs.Snapshot())
	order := make([]int, 0, len(selected))
	for _, i := range selected {
		if i >= 0 && i < len(next) {
			order = append(order, i)
		}
	}
	slices.Sort(order)
	order = slices.Compact(order)

	step := -1
	if dir == MoveDown {
		step = 1
		slices.Reverse(order)
	}

	stayed := make(map[int]bool)
	reselect := make([]int, 0, len(order))
	for _, i := range order {
		target := i + step
		if target < 0 || target >= len(next) || stayed[target] {
			stayed[i] = true
			reselect = append(reselect, i)
			continue
		}
		next[i], next[target] = next[target], next[i]
		reselect = append(reselect, target)
	}

	rs.rules.Store(&next)
	slices.Sort(reselect)
	return reselect
}

func withID(r Rule) Rule {
	if r.ID == "" {
		r.ID = NewRuleID()
	}
	return r
}
