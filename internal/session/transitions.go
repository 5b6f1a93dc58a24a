package session

import "github.com/new-era-ai/facekiosk/pkg/types"

// View is one screen of the session flow. Exactly one is active.
type View int

const (
	ViewCamera View = iota
	ViewGesture
	ViewRegister
	ViewMain
	ViewGuest
	ViewHeadPose
)

var viewNames = [...]string{"camera", "gesture", "register", "main", "guest", "headPoseTest"}

// String returns the view name.
func (v View) String() string {
	if v >= ViewCamera && v <= ViewHeadPose {
		return viewNames[v]
	}
	return "unknown"
}

// EventKind tags a state machine event.
type EventKind int

const (
	EventAuthenticated EventKind = iota
	EventNeedsRegistration
	EventAffirm
	EventDecline
	EventRegistrationComplete
	EventGuestAccess
	EventBack
	EventRestart
	EventOpenHeadPose
)

var eventNames = [...]string{
	"authenticated", "needs-registration", "affirm", "decline",
	"registration-complete", "guestAccess", "back", "restart", "openHeadPoseTest",
}

// String returns the event name.
func (k EventKind) String() string {
	if k >= EventAuthenticated && k <= EventOpenHeadPose {
		return eventNames[k]
	}
	return "unknown"
}

// Event drives one transition. User is set for events that establish a
// user record.
type Event struct {
	Kind EventKind
	User *types.User
}

type action int

const (
	actionNone      action = iota
	actionStoreUser        // store the event's user record
	actionClear            // discard the user record
)

type transition struct {
	next   View
	effect action
}

type transitionKey struct {
	view View
	kind EventKind
}

// transitions is the complete table. A (view, event) pair absent from
// the table is ignored with a warning, never a transition.
var transitions = buildTransitions()

func buildTransitions() map[transitionKey]transition {
	t := map[transitionKey]transition{
		{ViewCamera, EventAuthenticated}:          {ViewMain, actionStoreUser},
		{ViewCamera, EventNeedsRegistration}:      {ViewGesture, actionNone},
		{ViewGesture, EventAffirm}:                {ViewRegister, actionNone},
		{ViewGesture, EventDecline}:               {ViewGuest, actionStoreUser},
		{ViewRegister, EventRegistrationComplete}: {ViewMain, actionStoreUser},
		{ViewRegister, EventGuestAccess}:          {ViewGuest, actionStoreUser},
		{ViewRegister, EventBack}:                 {ViewCamera, actionNone},
		{ViewHeadPose, EventBack}:                 {ViewCamera, actionNone},
	}

	// Restart and the head-pose test are reachable from every view.
	for v := ViewCamera; v <= ViewHeadPose; v++ {
		t[transitionKey{v, EventRestart}] = transition{ViewCamera, actionClear}
		if v != ViewHeadPose {
			t[transitionKey{v, EventOpenHeadPose}] = transition{ViewHeadPose, actionNone}
		}
	}
	return t
}
