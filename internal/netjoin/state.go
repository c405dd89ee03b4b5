package netjoin

// State is the device lifecycle state owned by the join manager.
type State int

const (
	StateUnprovisioned State = iota
	StateProvisioning
	StateConnecting
	StateOperational
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateProvisioning:
		return "provisioning"
	case StateConnecting:
		return "connecting"
	case StateOperational:
		return "operational"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unprovisioned"
	}
}

// FatalReset signals that the controller must discard all in-memory state
// and re-enter boot. It is the device's universal recovery mechanism: the
// outer run loop catches it, optionally wipes stored credentials, and
// restarts the session instead of terminating the process.
type FatalReset struct {
	Reason           string
	ClearCredentials bool
}

func (e *FatalReset) Error() string {
	return "netjoin: fatal reset: " + e.Reason
}
