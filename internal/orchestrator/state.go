package orchestrator

import "fmt"

// State is a step of the extraction state machine.
type State int

const (
	TryPrimary State = iota
	ValidatePrimary
	RetryPrimary
	TryBackup
	ValidateBackup
	Accepted
	Rejected
)

func (s State) String() string {
	switch s {
	case TryPrimary:
		return "try_primary"
	case ValidatePrimary:
		return "validate_primary"
	case RetryPrimary:
		return "retry_primary"
	case TryBackup:
		return "try_backup"
	case ValidateBackup:
		return "validate_backup"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether the machine stops in s.
func (s State) Terminal() bool {
	return s == Accepted || s == Rejected
}
