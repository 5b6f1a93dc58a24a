package types

import "time"

// Frame is an encoded still image captured from the camera.
// Frames are ephemeral: they are handed to one classification call and
// must not be retained after that call settles.
type Frame struct {
	JPEG      []byte    // Encoded JPEG data
	Timestamp time.Time // Capture timestamp
	Width     int       // Source frame width
	Height    int       // Source frame height
}

// AuthMethod records how a user record was established.
type AuthMethod string

const (
	AuthFace         AuthMethod = "face"
	AuthRegistration AuthMethod = "registration"
	AuthGuest        AuthMethod = "guest"
)

// User is the session's user record. It lives from a successful
// classification, registration, or guest selection until logout/restart.
type User struct {
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	AuthMethod AuthMethod `json:"auth_method"`
}

// GuestUser returns the fixed guest record used by guest access paths.
func GuestUser() *User {
	return &User{
		Name:       "Guest User",
		Email:      "guest@example.com",
		AuthMethod: AuthGuest,
	}
}

// OutcomeKind tags a classification outcome.
type OutcomeKind int

const (
	// OutcomeAuthenticated carries a recognized user record.
	OutcomeAuthenticated OutcomeKind = iota
	// OutcomeRegisterPrompt means a face was seen but not recognized.
	OutcomeRegisterPrompt
	// OutcomeRetry is a recoverable rejection (e.g. no face in frame).
	OutcomeRetry
	// OutcomeServiceError is a transport or server failure; by policy
	// these are transient and never fatal to the polling loop.
	OutcomeServiceError
)

// Outcome is the settled result of one face classification call.
type Outcome struct {
	Kind    OutcomeKind
	User    *User
	Message string
}

// Gesture is the settled result of one head-gesture classification call.
type Gesture int

const (
	GestureUndetected Gesture = iota
	GestureAffirm             // head tilted left
	GestureDecline            // head tilted right
	GestureCenter             // observation only, never a branch trigger
	GestureError              // decode/transport failure, degrade to manual controls
)

// String returns the wire name of the gesture.
func (g Gesture) String() string {
	switch g {
	case GestureAffirm:
		return "left"
	case GestureDecline:
		return "right"
	case GestureCenter:
		return "center"
	case GestureError:
		return "error"
	default:
		return "undetected"
	}
}
