package request

import (
	"github.com/pkg/errors"
)

// State is the lifecycle state of a Request.
type State int

const (
	Created State = iota
	Running
	Paused
	Stopped
	Finished
)

var stateNames = map[State]string{
	Created:  "Created",
	Running:  "Running",
	Paused:   "Paused",
	Stopped:  "Stopped",
	Finished: "Finished",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsTerminal is true for Stopped and Finished. No transition leaves a terminal state.
func (s State) IsTerminal() bool {
	return s == Stopped || s == Finished
}

func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, errors.Errorf("unknown request state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return errors.Errorf("unknown request state %q", string(text))
}
