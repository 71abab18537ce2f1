// Package countdown derives the remaining time until a deadline and drives the
// once-per-second refresh shown next to registration deadlines.
package countdown

import (
	"fmt"
	"time"

	"github.com/agentworkforce/homepage/internal/temporal"
)

const (
	msPerSecond = int64(1000)
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

// State is the remaining time split into calendar-free units. All fields are
// non-negative.
type State struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// IsZero reports whether the deadline has been reached.
func (s State) IsZero() bool {
	return s == State{}
}

func (s State) String() string {
	return fmt.Sprintf("%02dd %02dh %02dm %02ds", s.Days, s.Hours, s.Minutes, s.Seconds)
}

// Derive returns the time left from now until deadline, clamped at zero.
func Derive(deadline, now time.Time) State {
	distance := deadline.Sub(now).Milliseconds()
	if distance <= 0 {
		return State{}
	}
	return State{
		Days:    int(distance / msPerDay),
		Hours:   int((distance % msPerDay) / msPerHour),
		Minutes: int((distance % msPerHour) / msPerMinute),
		Seconds: int((distance % msPerMinute) / msPerSecond),
	}
}

// DeriveValues parses both values through n before deriving. An unreadable
// deadline or now yields the zero state.
func DeriveValues(deadline, now string, n temporal.Normalizer) State {
	d, _, ok := n.Parse(deadline)
	if !ok {
		return State{}
	}
	current, _, ok := n.Parse(now)
	if !ok {
		return State{}
	}
	return Derive(d, current)
}

// View is what a page shows for a countdown slot.
type View struct {
	Active  bool   `json:"active"`
	Expired bool   `json:"expired"`
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

// Render decides between a running countdown and the closed message. An
// inactive countdown never renders zeros, so switching counting off does not
// read as a passed deadline.
func Render(active bool, s State, closedMessage string) View {
	if !active {
		return View{Message: closedMessage}
	}
	return View{Active: true, Expired: s.IsZero(), State: s}
}

func (v View) String() string {
	if !v.Active {
		return v.Message
	}
	if v.Expired {
		return "deadline passed"
	}
	return v.State.String()
}
