// Package tickfeed estimates a MUD's round/tick countdown from a last
// observed "T:NN" value and returns configured commands at specific
// countdown values for the caller to send; it does not enqueue them in
// the context queue (see SPEC_FULL.md §12).
package tickfeed

import (
	"fmt"
	"time"
)

// Rule fires Commands once the estimated countdown reaches TickTime.
type Rule struct {
	TickTime int
	Commands []string
}

// Feed tracks tick phase for one connection.
type Feed struct {
	TickInterval      int
	lastSeenValue     int
	lastUpdateTime    time.Time
	lastFiredTickTime int
	rules             []Rule
}

// NewFeed returns a Feed estimating ticks of the given interval in
// seconds (e.g. 75 for a 75-second round).
func NewFeed(tickInterval int) *Feed {
	return &Feed{TickInterval: tickInterval, lastFiredTickTime: -1}
}

// AddRule registers commands that DueCommands returns when the
// countdown reaches tickTime.
func (f *Feed) AddRule(tickTime int, commands []string) error {
	if tickTime < 0 || (f.TickInterval > 0 && tickTime > f.TickInterval) {
		return fmt.Errorf("tickfeed: tick time %d out of range [0,%d]", tickTime, f.TickInterval)
	}
	f.rules = append(f.rules, Rule{TickTime: tickTime, Commands: commands})
	return nil
}

// Observe records a freshly seen "T:NN" countdown value, re-anchoring
// the feed's phase estimate.
func (f *Feed) Observe(tickValue int, now time.Time) {
	f.lastSeenValue = tickValue
	f.lastUpdateTime = now
}

// CurrentTickTime estimates the countdown value at now, extrapolating
// from the last observed value and wrapping around the tick interval.
func (f *Feed) CurrentTickTime(now time.Time) int {
	if f.TickInterval <= 0 || f.lastUpdateTime.IsZero() {
		return 0
	}

	elapsed := int(now.Sub(f.lastUpdateTime).Seconds())
	current := f.lastSeenValue - elapsed
	for current <= 0 {
		current += f.TickInterval
	}
	return current
}

// DueCommands returns every configured rule's commands whose TickTime
// equals the current estimated countdown, skipping a countdown value
// already fired for (so a rule fires once per tick, not once per sweep
// call at that value).
func (f *Feed) DueCommands(now time.Time) []string {
	current := f.CurrentTickTime(now)
	if current == 0 || current == f.lastFiredTickTime {
		return nil
	}
	f.lastFiredTickTime = current

	var commands []string
	for _, r := range f.rules {
		if r.TickTime == current {
			commands = append(commands, r.Commands...)
		}
	}
	return commands
}
