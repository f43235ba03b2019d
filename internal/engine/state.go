package engine

import "fmt"

// State is the position of an Engine in the survey-taking lifecycle.
type State int

const (
	Browsing State = iota
	Answering
	Reviewing
	Submitting
	Completed
	// NotFound is entered when the selected survey id is unknown. Only
	// Reset leaves it.
	NotFound
)

var stateNames = [...]string{
	Browsing:   "browsing",
	Answering:  "answering",
	Reviewing:  "reviewing",
	Submitting: "submitting",
	Completed:  "completed",
	NotFound:   "not_found",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}
