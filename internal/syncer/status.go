package syncer

// Status reports remote-store connectivity. It is informational: local
// operation continues in every state.
type Status string

const (
	// StatusConnecting is the state before the first round-trip finishes.
	StatusConnecting Status = "connecting"
	// StatusConnected means the last remote operation succeeded.
	StatusConnected Status = "connected"
	// StatusError means the last remote operation failed.
	StatusError Status = "error"
	// StatusLocal means no remote client could be created.
	StatusLocal Status = "local"
)

var allStatuses = []Status{StatusConnecting, StatusConnected, StatusError, StatusLocal}
