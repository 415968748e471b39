// Package trigger turns movement decisions into at most one event per cooldown window.
package trigger

import "time"

type State int

const (
	Idle State = iota
	Cooling
)

func (s State) String() string {
	if s == Cooling {
		return "cooling"
	}
	return "idle"
}

// Gate is the cooldown state machine. Times are offsets on the session clock
// (stream position for file sources, wall time since start for live ones).
// Not safe for concurrent use.
type Gate struct {
	cooldown time.Duration
	state    State
	until    time.Duration
}

func NewGate(cooldown time.Duration) *Gate {
	return &Gate{cooldown: cooldown}
}

// Allow is called for every movement decision at time now. It returns true when
// the decision fires an event; decisions inside an active cooldown are dropped.
func (g *Gate) Allow(now time.Duration) bool {
	if g.state == Cooling {
		if now < g.until {
			return false
		}
		g.state = Idle
	}

	g.state = Cooling
	g.until = now + g.cooldown
	return true
}

// State reports the gate state as of time now.
func (g *Gate) State(now time.Duration) State {
	if g.state == Cooling && now >= g.until {
		return Idle
	}
	return g.state
}

// Until is the end of the current cooldown window; meaningful only while cooling.
func (g *Gate) Until() time.Duration {
	return g.until
}
