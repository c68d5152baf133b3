package payment

// State is the payment attempt's position in the orchestration machine.
type State int32

const (
	StateInit State = iota
	StateOrderCreating
	StateGatewayOpen
	StateVerifying
	StateCompletedCOD
	StateCompletedOnline
	StateVerifyFailed
	StateCancelled
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateOrderCreating:
		return "order_creating"
	case StateGatewayOpen:
		return "gateway_open"
	case StateVerifying:
		return "verifying"
	case StateCompletedCOD:
		return "completed_cod"
	case StateCompletedOnline:
		return "completed_online"
	case StateVerifyFailed:
		return "verify_failed"
	case StateCancelled:
		return "cancelled"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Terminal states end the attempt; Cancelled and Error are recoverable via
// Reset, VerifyFailed leaves the order unpaid for manual follow-up.
func (s State) Terminal() bool {
	switch s {
	case StateCompletedCOD, StateCompletedOnline, StateVerifyFailed:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateInit:          {StateOrderCreating},
	StateOrderCreating: {StateCompletedCOD, StateGatewayOpen, StateInit, StateError},
	StateGatewayOpen:   {StateVerifying, StateCancelled, StateError},
	StateVerifying:     {StateCompletedOnline, StateVerifyFailed, StateError},
	StateCancelled:     {StateInit},
	StateError:         {StateInit},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
