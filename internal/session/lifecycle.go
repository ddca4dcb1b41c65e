package session

// State is the session lifecycle layered above the transport-level
// connstate.State. The two state machines are independent: the session
// manager's reaper moves sessions through Active, Idle and termination by
// idle time alone, without consulting connection state.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateIdle
	StateDisconnecting
	StateDisconnected
	StateTimeout
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateAuthenticating:
		return "Authenticating"
	case StateActive:
		return "Active"
	case StateIdle:
		return "Idle"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	case StateTimeout:
		return "Timeout"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

func (s State) Terminal() bool {
	switch s {
	case StateDisconnected, StateTimeout, StateError:
		return true
	default:
		return false
	}
}

// TerminationReason records why a session was terminated, for audit
// logging and metrics breakdown. Variants mirror the original_source
// SessionTerminationReason enum.
type TerminationReason int

const (
	ReasonClientRequest TerminationReason = iota
	ReasonServerShutdown
	ReasonTimeout
	ReasonNetworkError
	ReasonAuthenticationFailed
	ReasonDuplicateLogin
	ReasonServerOverload
	ReasonAdminKick
	ReasonOther
)

func (r TerminationReason) String() string {
	switch r {
	case ReasonClientRequest:
		return "client_request"
	case ReasonServerShutdown:
		return "server_shutdown"
	case ReasonTimeout:
		return "timeout"
	case ReasonNetworkError:
		return "network_error"
	case ReasonAuthenticationFailed:
		return "authentication_failed"
	case ReasonDuplicateLogin:
		return "duplicate_login"
	case ReasonServerOverload:
		return "server_overload"
	case ReasonAdminKick:
		return "admin_kick"
	default:
		return "other"
	}
}
