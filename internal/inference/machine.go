package inference

import "github.com/tjfontaine/promptpub/internal/domain"

// attemptState is a state of the retry machine.
type attemptState int

const (
	// stateAttempting: attempt n is about to be (or being) made.
	stateAttempting attemptState = iota
	stateSucceeded
	stateExhaustedFailed
)

func (s attemptState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateSucceeded:
		return "succeeded"
	case stateExhaustedFailed:
		return "exhausted_failed"
	}
	return "unknown"
}

// retryMachine tracks Attempting(n) -> Succeeded | ExhaustedFailed.
// It decides transitions only; waiting and calling belong to the invoker.
type retryMachine struct {
	maxAttempts int
	state       attemptState
	attempt     int
	last        error
	permanent   bool
}

func newRetryMachine(maxAttempts int) *retryMachine {
	return &retryMachine{maxAttempts: maxAttempts, state: stateAttempting, attempt: 1}
}

// observe applies the outcome of the current attempt. It returns true when
// the invoker should back off and call again; the machine has then already
// moved to Attempting(n+1).
func (m *retryMachine) observe(err error) (retry bool) {
	if m.state != stateAttempting {
		return false
	}
	switch {
	case err == nil:
		m.state = stateSucceeded
		return false
	case !domain.IsRetryable(err):
		m.last = err
		m.permanent = true
		m.state = stateExhaustedFailed
		return false
	case m.attempt >= m.maxAttempts:
		m.last = err
		m.state = stateExhaustedFailed
		return false
	default:
		m.last = err
		m.attempt++
		return true
	}
}
