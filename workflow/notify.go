/*
notify.go - Notification dispatch contract

PURPOSE:
  Every stage transition notifies someone: the stage approver on
  submit/advance, the administrator queue for unrouted applications,
  the officer on terminal decisions. Delivery is best-effort and
  at-least-once; the real transport lives outside this engine.

FAILURE SEMANTICS:
  A dispatch failure is logged and swallowed. It must never fail or
  block the transition that triggered it.
*/
package workflow

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/warp/leave-engine/engine"
)

// EventKind identifies what happened to the application.
type EventKind string

const (
	EventSubmitted EventKind = "submitted"
	EventAdvanced  EventKind = "stage_advanced"
	EventApproved  EventKind = "approved"
	EventRejected  EventKind = "rejected"
	EventCancelled EventKind = "cancelled"
)

// Recipient addresses either a position, an officer, or the
// administrator queue (for unrouted applications).
type Recipient struct {
	PositionID *engine.PositionID
	OfficerID  *engine.OfficerID
	AdminQueue bool
}

func ToPosition(pos engine.PositionID) Recipient { return Recipient{PositionID: &pos} }
func ToOfficer(off engine.OfficerID) Recipient   { return Recipient{OfficerID: &off} }
func ToAdminQueue() Recipient                    { return Recipient{AdminQueue: true} }

// Dispatcher delivers notifications. Implementations may be slow or
// flaky; the workflow never lets that affect a transition.
type Dispatcher interface {
	Notify(ctx context.Context, to Recipient, applicationID engine.ApplicationID, kind EventKind) error
}

// LogDispatcher is the default Dispatcher: it records the event and
// delivers nothing. Useful in dev and as the fallback when no real
// transport is wired.
type LogDispatcher struct {
	Log zerolog.Logger
}

func (d *LogDispatcher) Notify(_ context.Context, to Recipient, id engine.ApplicationID, kind EventKind) error {
	ev := d.Log.Info().Str("application_id", string(id)).Str("event", string(kind))
	switch {
	case to.AdminQueue:
		ev = ev.Str("recipient", "admin-queue")
	case to.PositionID != nil:
		ev = ev.Str("recipient_position", string(*to.PositionID))
	case to.OfficerID != nil:
		ev = ev.Str("recipient_officer", string(*to.OfficerID))
	}
	ev.Msg("notification dispatched")
	return nil
}
