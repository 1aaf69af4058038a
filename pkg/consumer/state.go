package consumer

// State is the lifecycle position of an Adapter.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// SubscribeFailurePolicy decides what Start does when the subscription fails.
type SubscribeFailurePolicy int

const (
	// SubscribeFailAbort makes Start return a *SubscriptionError.
	SubscribeFailAbort SubscribeFailurePolicy = iota
	// SubscribeFailIdle logs the failure and leaves the adapter connected
	// without consuming.
	SubscribeFailIdle
)

// ParseSubscribeFailurePolicy maps "abort" and "idle" to a policy. Empty
// selects SubscribeFailAbort.
func ParseSubscribeFailurePolicy(s string) (SubscribeFailurePolicy, bool) {
	switch s {
	case "", "abort":
		return SubscribeFailAbort, true
	case "idle":
		return SubscribeFailIdle, true
	default:
		return SubscribeFailAbort, false
	}
}
