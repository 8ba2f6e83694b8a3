package sx

import "fmt"

// State is the lifecycle state of an instance.
type State int

const (
	Postponed State = iota
	ToCreate
	Reminder
	Created
	Ignored
)

var stateNames = [...]string{
	Postponed: "postponed",
	ToCreate:  "to-create",
	Reminder:  "reminder",
	Created:   "created",
	Ignored:   "ignored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown instance state %q", name)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
