package component

import (
	"context"
	"time"
)

// State is where a service is in its lifecycle.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateStarted
	StateStopped
	// StateFailed is set when Initialize, Start or Stop returned an error.
	StateFailed
)

func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LifecycleComponent is a service the Manager can initialize, start and stop.
type LifecycleComponent interface {
	Discoverable
	Initialize() error
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// ManagedComponent tracks one service inside a Manager.
type ManagedComponent struct {
	Component LifecycleComponent
	State     State

	// Context is the child context handed to Start; Cancel ends it on Stop.
	Context context.Context
	Cancel  context.CancelFunc

	StartOrder int
	LastError  error
}
