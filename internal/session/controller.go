// Package session implements the view state machine that ties camera
// acquisition, face polling and gesture decisions together. The
// controller exclusively owns the active camera session and the user
// record; collaborators receive them for one operation at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/new-era-ai/facekiosk/internal/camera"
	"github.com/new-era-ai/facekiosk/internal/classify"
	"github.com/new-era-ai/facekiosk/internal/frame"
	"github.com/new-era-ai/facekiosk/internal/gesture"
	"github.com/new-era-ai/facekiosk/internal/logger"
	"github.com/new-era-ai/facekiosk/internal/metrics"
	"github.com/new-era-ai/facekiosk/internal/poll"
	"github.com/new-era-ai/facekiosk/pkg/types"
)

// User-visible status lines.
const (
	StatusStartingCamera    = "Starting camera..."
	StatusCameraUnavailable = "Camera unavailable. Check permissions and restart."
	StatusLookingForFace    = "Looking for your face..."
	StatusAuthenticated     = "Login successful! Face recognized."
	StatusRegisterReady     = "Fill in your details to register"
	StatusWelcomeGuest      = "Logged in as Guest"
	StatusHeadPoseReady     = "Head pose test: tilt your head"
)

// Snapshot is the externally visible controller state.
type Snapshot struct {
	View      string      `json:"view"`
	Status    string      `json:"status"`
	PollState string      `json:"poll_state"`
	Tier      string      `json:"tier,omitempty"`
	User      *types.User `json:"user,omitempty"`
}

// Controller is the session flow controller.
type Controller struct {
	cfg     types.Config
	dev     camera.Device
	sampler *frame.Sampler
	client  *classify.Client
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	view        View
	user        *types.User
	cam         *camera.Session
	faceEngine  *poll.Engine
	headEngine  *poll.Engine
	gestureUnit *gesture.Unit
	engineID    uuid.UUID // active engine instance, zero when none
	gen         uint64    // bumped on every view entry; stale work is discarded
	status      string
	preview     []byte // latest sampled JPEG, the agent's live video surface
	started     bool
}

// New creates a controller. Call Start to enter the camera view.
func New(cfg types.Config, dev camera.Device, client *classify.Client, m *metrics.Metrics) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:     cfg,
		dev:     dev,
		sampler: frame.NewSampler(cfg.EnhanceFrames, cfg.JPEGQuality),
		client:  client,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		view:    ViewCamera,
	}
}

// Start enters the initial camera view. Subsequent calls are no-ops.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.enterLocked(ViewCamera)
}

// Stop tears the controller down, releasing any camera session.
func (c *Controller) Stop() {
	c.cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.stopEnginesLocked()
	c.releaseCameraLocked()
}

// Snapshot returns the current state for the control API.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		View:      c.view.String(),
		Status:    c.status,
		PollState: poll.StateStopped.String(),
	}
	if c.user != nil {
		// Callers get a copy; the controller's record stays its own.
		u := *c.user
		s.User = &u
	}
	switch {
	case c.faceEngine != nil:
		s.PollState = c.faceEngine.State().String()
	case c.gestureUnit != nil:
		s.PollState = c.gestureUnit.State().String()
	case c.headEngine != nil:
		s.PollState = c.headEngine.State().String()
	}
	if c.cam != nil {
		s.Tier = c.cam.Tier().String()
	}
	return s
}

// Preview returns the latest sampled JPEG, nil when none exists yet.
func (c *Controller) Preview() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

// View returns the active view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Restart discards the user record and re-enters the camera view.
// Valid from every view.
func (c *Controller) Restart() {
	c.metrics.Restarts.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(Event{Kind: EventRestart})
}

// Back leaves the register or head-pose view for the camera view.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view != ViewRegister && c.view != ViewHeadPose {
		return fmt.Errorf("back is not available from the %s view", c.view)
	}
	c.applyLocked(Event{Kind: EventBack})
	return nil
}

// OpenHeadPose switches to the head pose test view.
func (c *Controller) OpenHeadPose() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view == ViewHeadPose {
		return fmt.Errorf("already in the head pose test view")
	}
	c.applyLocked(Event{Kind: EventOpenHeadPose})
	return nil
}

// ManualAffirm invokes the gesture fallback control.
func (c *Controller) ManualAffirm() error {
	return c.manualOverride(func(u *gesture.Unit) bool { return u.AffirmManually() })
}

// ManualDecline invokes the gesture fallback control.
func (c *Controller) ManualDecline() error {
	return c.manualOverride(func(u *gesture.Unit) bool { return u.DeclineManually() })
}

func (c *Controller) manualOverride(invoke func(*gesture.Unit) bool) error {
	c.mu.Lock()
	unit := c.gestureUnit
	view := c.view
	c.mu.Unlock()

	if view != ViewGesture || unit == nil {
		return fmt.Errorf("no gesture decision is active")
	}
	if !invoke(unit) {
		return fmt.Errorf("a decision was already made")
	}
	c.metrics.ManualOverrides.Add(1)
	return nil
}

// GuestAccess grants guest access from the register view.
func (c *Controller) GuestAccess() error {
	c.mu.Lock()
	if c.view != ViewRegister {
		c.mu.Unlock()
		return fmt.Errorf("guest access is only available while registering")
	}
	gen := c.gen
	c.mu.Unlock()

	user := c.client.GuestLogin(c.ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return fmt.Errorf("the register view was already left")
	}
	c.metrics.GuestLogins.Add(1)
	c.applyLocked(Event{Kind: EventGuestAccess, User: user})
	return nil
}

// CompleteRegistration validates the profile locally, captures a still
// image and submits the registration. A rejection surfaces the server's
// message without a view transition.
func (c *Controller) CompleteRegistration(name, email, password string) (*types.User, error) {
	if err := validateProfile(name, email, password); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.view != ViewRegister {
		c.mu.Unlock()
		return nil, fmt.Errorf("registration is only available from the register view")
	}
	gen := c.gen
	cam := c.cam
	c.mu.Unlock()

	var still *types.Frame
	if cam != nil {
		f, err := c.sampler.Sample(cam)
		if err != nil {
			logger.Warn("Session", "Registration still capture failed: %v", err)
		}
		still = f
	}

	user, err := c.client.Register(c.ctx, classify.Registration{
		Name:     name,
		Email:    email,
		Password: password,
		Face:     still,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil, fmt.Errorf("the register view was already left")
	}
	if err != nil {
		var rejected *classify.RejectedError
		if errors.As(err, &rejected) {
			c.status = rejected.Message
			return nil, rejected
		}
		c.status = classify.ServiceUnavailableMessage
		return nil, err
	}

	c.metrics.Registrations.Add(1)
	c.applyLocked(Event{Kind: EventRegistrationComplete, User: user})
	return user, nil
}

// dispatchFrom delivers an engine outcome. Outcomes from an engine that
// is no longer the active one are discarded.
func (c *Controller) dispatchFrom(id uuid.UUID, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.engineID {
		logger.Debug("Session", "Discarding stale %s from engine %s", ev.Kind, id)
		return
	}
	c.applyLocked(ev)
}

// applyLocked performs one transition from the table.
func (c *Controller) applyLocked(ev Event) {
	tr, ok := transitions[transitionKey{c.view, ev.Kind}]
	if !ok {
		logger.Warn("Session", "Ignoring %s in view %s", ev.Kind, c.view)
		return
	}

	switch tr.effect {
	case actionStoreUser:
		c.user = ev.User
	case actionClear:
		c.user = nil
	}

	logger.Info("Session", "%s --%s--> %s", c.view, ev.Kind, tr.next)
	c.metrics.ViewTransitions.Add(1)
	c.enterLocked(tr.next)
}

// enterLocked leaves the current view and enters the next one. The old
// camera session is released before the new view acquires its own.
func (c *Controller) enterLocked(v View) {
	c.gen++
	c.stopEnginesLocked()
	c.releaseCameraLocked()
	c.view = v

	switch v {
	case ViewCamera, ViewGesture, ViewRegister, ViewHeadPose:
		c.status = StatusStartingCamera
		c.acquireLocked(v)
	case ViewMain:
		if c.user != nil {
			c.status = fmt.Sprintf("Welcome, %s!", c.user.Name)
		} else {
			c.status = StatusAuthenticated
		}
	case ViewGuest:
		c.status = StatusWelcomeGuest
	}
}

// acquireLocked starts camera acquisition for a view. Acquisition runs
// off the lock; a view change while it is pending wins and the late
// session is released.
func (c *Controller) acquireLocked(v View) {
	gen := c.gen
	go func() {
		sess, err := camera.Acquire(c.ctx, c.dev, camera.DefaultTierOrder())

		c.mu.Lock()
		defer c.mu.Unlock()

		if gen != c.gen {
			if err == nil {
				sess.Release()
			}
			return
		}
		if err != nil {
			c.metrics.CameraFailures.Add(1)
			c.status = StatusCameraUnavailable
			logger.Error("Session", "Camera acquisition failed: %v", err)
			return
		}

		c.metrics.CameraAcquisitions.Add(1)
		c.cam = sess

		switch v {
		case ViewCamera:
			c.status = StatusLookingForFace
			c.startFaceLocked(sess)
		case ViewGesture:
			c.status = gesture.HintLooking
			c.startGestureLocked(sess)
		case ViewRegister:
			c.status = StatusRegisterReady
		case ViewHeadPose:
			c.status = StatusHeadPoseReady
			c.startHeadPoseLocked(sess)
		}
	}()
}

func (c *Controller) startFaceLocked(sess *camera.Session) {
	tier := sess.Tier().String()

	var eng *poll.Engine
	process := func(ctx context.Context, f *types.Frame) poll.Verdict {
		c.metrics.FaceRequests.Add(1)
		out := c.client.ValidateFace(ctx, f, tier)
		switch out.Kind {
		case types.OutcomeAuthenticated:
			c.metrics.Authentications.Add(1)
			return poll.Verdict{
				Stop:   true,
				Status: StatusAuthenticated,
				Emit: func() {
					c.dispatchFrom(eng.ID(), Event{Kind: EventAuthenticated, User: out.User})
				},
			}
		case types.OutcomeRegisterPrompt:
			c.metrics.RegisterPrompts.Add(1)
			return poll.Verdict{
				Stop:   true,
				Status: out.Message,
				Emit: func() {
					c.dispatchFrom(eng.ID(), Event{Kind: EventNeedsRegistration})
				},
			}
		case types.OutcomeRetry:
			c.metrics.FaceRetries.Add(1)
			return poll.Verdict{Status: out.Message}
		default:
			c.metrics.FaceServiceErrors.Add(1)
			return poll.Verdict{Status: classify.ServiceUnavailableMessage}
		}
	}

	eng = poll.New("face", c.cfg.FaceInterval, c.cfg.RequestTimeout,
		c.sampleFunc(sess), process,
		func(st string) { c.statusFrom(eng.ID(), st) })
	c.faceEngine = eng
	c.engineID = eng.ID()
	eng.Start()
}

func (c *Controller) startGestureLocked(sess *camera.Session) {
	var unit *gesture.Unit
	emit := func(d gesture.Decision) {
		c.metrics.GestureDecisions.Add(1)
		if d == gesture.DecisionAffirm {
			c.dispatchFrom(unit.ID(), Event{Kind: EventAffirm})
			return
		}
		// Declining routes to guest access; the record comes from the
		// backend with a local fallback, so this never blocks the branch.
		user := c.client.GuestLogin(c.ctx)
		c.metrics.GuestLogins.Add(1)
		c.dispatchFrom(unit.ID(), Event{Kind: EventDecline, User: user})
	}

	classifier := func(ctx context.Context, f *types.Frame) types.Gesture {
		c.metrics.GestureRequests.Add(1)
		g := c.client.DetectGesture(ctx, f)
		if g == types.GestureError {
			c.metrics.GestureErrors.Add(1)
		}
		return g
	}

	unit = gesture.NewUnit(gesture.Config{
		Interval:     c.cfg.GestureInterval,
		Timeout:      c.cfg.RequestTimeout,
		ConfirmDelay: c.cfg.ConfirmDelay,
	}, c.sampleFunc(sess), classifier, emit,
		func(st string) { c.statusFrom(unit.ID(), st) })
	c.gestureUnit = unit
	c.engineID = unit.ID()
	unit.Start()
}

// startHeadPoseLocked runs the observation-only head pose loop. It
// reports every pose, including center, and never branches.
func (c *Controller) startHeadPoseLocked(sess *camera.Session) {
	process := func(ctx context.Context, f *types.Frame) poll.Verdict {
		c.metrics.GestureRequests.Add(1)
		g := c.client.DetectGesture(ctx, f)
		if g == types.GestureError {
			c.metrics.GestureErrors.Add(1)
			return poll.Verdict{Status: "Head pose: detection unavailable"}
		}
		return poll.Verdict{Status: "Head pose: " + g.String()}
	}

	var eng *poll.Engine
	eng = poll.New("headpose", c.cfg.GestureInterval, c.cfg.RequestTimeout,
		c.sampleFunc(sess), process,
		func(st string) { c.statusFrom(eng.ID(), st) })
	c.headEngine = eng
	c.engineID = eng.ID()
	eng.Start()
}

// sampleFunc wraps the sampler with metrics and the preview buffer.
func (c *Controller) sampleFunc(sess *camera.Session) poll.SampleFunc {
	return func() (*types.Frame, error) {
		f, err := c.sampler.Sample(sess)
		if err != nil {
			return nil, err
		}
		if f == nil {
			c.metrics.SampleSkips.Add(1)
			return nil, nil
		}
		c.metrics.FramesSampled.Add(1)

		c.mu.Lock()
		c.preview = f.JPEG
		c.mu.Unlock()
		return f, nil
	}
}

// statusFrom applies an engine's status update. Like event dispatch,
// updates from an engine that is no longer the active one are
// discarded, so a flight settling after an override or view change
// cannot overwrite the new view's status line.
func (c *Controller) statusFrom(id uuid.UUID, s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id != c.engineID {
		logger.Debug("Session", "Discarding stale status from engine %s", id)
		return
	}
	c.status = s
}

func (c *Controller) stopEnginesLocked() {
	if c.faceEngine != nil {
		c.faceEngine.Stop()
		c.faceEngine = nil
	}
	if c.gestureUnit != nil {
		c.gestureUnit.Stop()
		c.gestureUnit = nil
	}
	if c.headEngine != nil {
		c.headEngine.Stop()
		c.headEngine = nil
	}
	c.engineID = uuid.UUID{}
}

func (c *Controller) releaseCameraLocked() {
	if c.cam == nil {
		return
	}
	c.cam.Release()
	c.cam = nil
	c.metrics.CameraReleases.Add(1)
}

func validateProfile(name, email, password string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || !strings.Contains(email[at:], ".") {
		return fmt.Errorf("a valid email is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	return nil
}
