// Package stateengine classifies the stabilized tag set into the five-way
// port safety state, with optional strict run-length debounce.
package stateengine

// State is one of the five port safety classes, plus the explicit unknown
// class for detector dropout.
type State string

const (
	StateClose              State = "CLOSE"
	StateOpenDanger         State = "OPEN_DANGER"
	StateOpenViolation      State = "OPEN_VIOLATION"
	StateOpenNormalSampling State = "OPEN_NORMAL_SAMPLING"
	StateOpenNormalIdle     State = "OPEN_NORMAL_IDLE"
	StateOpenUnknown        State = "OPEN_UNKNOWN"
)

// Result carries the raw per-frame classification, the debounced stable
// classification, and a human-readable reason code.
type Result struct {
	Raw    State
	Stable State
	Reason string
}

// Config configures the classifier.
type Config struct {
	// DebounceK is the number of consecutive identical raw states required
	// before the stable state follows. Values <= 1 disable debouncing.
	DebounceK int
}

// Classifier is stateful only for the debounce run-length counters. Not safe
// for concurrent use.
type Classifier struct {
	cfg Config

	stable       State
	hasStable    bool
	pending      State
	pendingCount int
}

// New returns a Classifier for cfg.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Compute classifies the union of the stabilized tag channels.
func (c *Classifier) Compute(tags map[string]bool) Result {
	raw, reason := classify(tags)
	stable := c.debounce(raw)
	return Result{Raw: raw, Stable: stable, Reason: reason}
}

// classify applies the precedence rules. OPEN_UNKNOWN means neither blocking
// tag is asserted (detector dropout); downstream consumers must treat it as
// unsafe, never coerce it to a normal state.
func classify(tags map[string]bool) (State, string) {
	blocking := tags["blocking"]
	noBlocking := tags["no_blocking"]
	sampling := tags["sampling"]

	// no_blocking is authoritative when both blocking tags assert.
	if blocking && noBlocking {
		blocking = false
	}

	if tags["close"] {
		return StateClose, "close"
	}
	if noBlocking {
		if sampling {
			return StateOpenDanger, "no_blocking+sampling"
		}
		return StateOpenViolation, "no_blocking+no_sampling"
	}
	if blocking {
		if sampling {
			return StateOpenNormalSampling, "blocking+sampling"
		}
		return StateOpenNormalIdle, "blocking+no_sampling"
	}
	return StateOpenUnknown, "open_missing_blocking"
}

// debounce exposes a new stable state only after the same raw state has
// recurred for DebounceK consecutive calls. Any interruption by a different
// state restarts the pending run at 1 for the interrupting state.
func (c *Classifier) debounce(raw State) State {
	if c.cfg.DebounceK <= 1 {
		c.stable = raw
		c.hasStable = true
		return raw
	}

	if !c.hasStable {
		c.stable = raw
		c.hasStable = true
		return raw
	}

	if raw == c.stable {
		c.pending = ""
		c.pendingCount = 0
		return c.stable
	}

	if raw != c.pending {
		c.pending = raw
		c.pendingCount = 1
		return c.stable
	}

	c.pendingCount++
	if c.pendingCount >= c.cfg.DebounceK {
		c.stable = raw
		c.pending = ""
		c.pendingCount = 0
	}
	return c.stable
}
