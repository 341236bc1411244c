package runner

import (
	"context"
	"fmt"
	"log/slog"
)

// State is the lifecycle state of a single account's connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateInboxOpen
	StateFetching
	StateClosed
	StateErrored
)

var stateNames = [...]string{
	StateDisconnected: "Disconnected",
	StateConnecting:   "Connecting",
	StateReady:        "Ready",
	StateInboxOpen:    "InboxOpen",
	StateFetching:     "Fetching",
	StateClosed:       "Closed",
	StateErrored:      "Errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// forward lists the single successor of every state on the happy path.
// Closed and Errored are additionally reachable from any non-terminal state.
var forward = map[State]State{
	StateDisconnected: StateConnecting,
	StateConnecting:   StateReady,
	StateReady:        StateInboxOpen,
	StateInboxOpen:    StateFetching,
	StateFetching:     StateClosed,
}

// CanTransition reports whether from -> to is a valid transition.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateClosed || to == StateErrored {
		return true
	}
	next, ok := forward[from]
	return ok && next == to
}

type session struct {
	user   string
	state  State
	logger *slog.Logger
}

func newSession(user string, logger *slog.Logger) *session {
	return &session{
		user:   user,
		state:  StateDisconnected,
		logger: logger,
	}
}

func (s *session) transition(ctx context.Context, to State) error {
	if !CanTransition(s.state, to) {
		return fmt.Errorf("invalid transition %s -> %s", s.state, to)
	}

	s.logger.DebugContext(ctx, "connection state changed",
		slog.String("from", s.state.String()),
		slog.String("to", to.String()),
	)
	s.state = to
	return nil
}

// fail moves the session to Errored and returns err as a ConnectionError
// carrying the state the failure happened in.
func (s *session) fail(ctx context.Context, err error) error {
	connErr := &ConnectionError{User: s.user, State: s.state, Err: err}
	if !s.state.Terminal() {
		_ = s.transition(ctx, StateErrored)
	}

	s.logger.ErrorContext(ctx, "account run failed",
		slog.String("state", connErr.State.String()),
		slog.Any("error", err),
	)
	return connErr
}

// ConnectionError is a failure that ended one account's run.
type ConnectionError struct {
	User  string
	State State // state the run was in when it failed
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("account %s failed while %s: %s", e.User, e.State, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
