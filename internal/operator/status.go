package operator

// State is the coarse operator condition surfaced to humans.
type State string

// Operator states. Blocked means operator intervention is needed (missing
// relation fields); Active covers everything else, including "idle, nothing
// configured yet".
const (
	StateActive  State = "active"
	StateBlocked State = "blocked"
)

// Status is the single human-readable status record the operator reports.
type Status struct {
	State   State
	Message string
}

// Active returns an active status with the given message (may be empty).
func Active(message string) Status {
	return Status{State: StateActive, Message: message}
}

// Blocked returns a blocked status with the given message.
func Blocked(message string) Status {
	return Status{State: StateBlocked, Message: message}
}
