package nav

import "time"

// GateState is the state of the recalculation gate.
type GateState int

const (
	GateIdle GateState = iota
	GateCoolingDown
)

func (s GateState) String() string {
	switch s {
	case GateIdle:
		return "idle"
	case GateCoolingDown:
		return "cooling_down"
	default:
		return "unknown"
	}
}

// Gate debounces route recalculation requests. It is CoolingDown for the
// cooldown window after the last accepted trigger and Idle otherwise; the
// return to Idle is purely time based.
type Gate struct {
	cooldown time.Duration
	last     time.Time
}

// NewGate returns an Idle gate with the given cooldown.
func NewGate(cooldown time.Duration) *Gate {
	return &Gate{cooldown: cooldown}
}

// State reports the gate state at time now.
func (g *Gate) State(now time.Time) GateState {
	if g.last.IsZero() || now.Sub(g.last) >= g.cooldown {
		return GateIdle
	}
	return GateCoolingDown
}

// Trigger attempts the Idle -> CoolingDown transition. It returns false,
// dropping the signal, while cooling down.
func (g *Gate) Trigger(now time.Time) bool {
	if g.State(now) == GateCoolingDown {
		return false
	}
	g.last = now
	return true
}

// Arm starts a cooldown window without a trigger, e.g. when a session starts
// with a freshly computed route.
func (g *Gate) Arm(now time.Time) {
	g.last = now
}

// LastRecalculation returns the time of the last trigger, or the zero time.
func (g *Gate) LastRecalculation() time.Time {
	return g.last
}
