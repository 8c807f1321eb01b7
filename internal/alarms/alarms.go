// Package alarms is the scheduling-service collaborator: a registry of
// point-in-time events addressed by stable integer IDs. The reminder engine
// reconciles against it with full cancel + reschedule passes, so the only
// contract that matters is that Schedule/Cancel/ListPending agree on IDs.
package alarms

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNoPermission = errors.New("notification permission not granted")
	ErrStopped      = errors.New("alarm scheduler stopped")
)

// Kind distinguishes the two events a prayer can own per day.
type Kind int

const (
	KindReminder Kind = iota // fires minutes before the prayer
	KindAtTime               // fires at the prayer instant
)

func (k Kind) String() string {
	if k == KindAtTime {
		return "at_time"
	}
	return "reminder"
}

// Event is one scheduled delivery.
type Event struct {
	ID        int
	FiresAt   time.Time
	Title     string
	Body      string
	Sound     string
	ChannelID string
}

// Pending is the scheduler's view of an outstanding event.
type Pending struct {
	ID      int
	FiresAt time.Time
}

// Scheduler is the external scheduling service port.
type Scheduler interface {
	// Schedule registers the batch, replacing any events with the same IDs.
	Schedule(ctx context.Context, events []Event) error
	// Cancel removes the given IDs; unknown IDs are ignored.
	Cancel(ctx context.Context, ids []int) error
	// ListPending returns a snapshot of outstanding events.
	ListPending(ctx context.Context) ([]Pending, error)
}

// PermissionGate guards scheduling. Reconcile passes no-op (and report)
// without permission instead of failing.
type PermissionGate interface {
	HasPermission() bool
	RequestPermission(ctx context.Context) (bool, error)
}

// StaticGate is a config-driven gate.
type StaticGate bool

func (g StaticGate) HasPermission() bool { return bool(g) }
func (g StaticGate) RequestPermission(context.Context) (bool, error) {
	return bool(g), nil
}
