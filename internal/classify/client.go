// Package classify talks to the remote face and gesture classification
// services. All remote failures are absorbed into outcomes here; nothing
// in this package escalates a transport error to the caller's state.
package classify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/new-era-ai/facekiosk/internal/logger"
	"github.com/new-era-ai/facekiosk/pkg/types"
)

const (
	// ServiceUnavailableMessage is the generic status shown for any
	// transport-level failure. Remote failures are transient by policy.
	ServiceUnavailableMessage = "Recognition service unavailable, retrying..."

	actionRegisterPrompt = "register_prompt"
)

// Client calls the classification backend. One configurable base URL
// covers every endpoint, and every request carries the same timeout.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the given base URL. The timeout bounds
// each request; expiry is treated as a service failure.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = types.DefaultConfig().RequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type apiUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type apiResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
	User     *apiUser `json:"user"`
	Gesture  string   `json:"gesture"`
	Detected bool     `json:"detected"`
}

// RejectedError is a business-level rejection carrying the server's
// message, distinct from a transport failure.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return e.Message
}

// ValidateFace submits a frame to the face classifier and maps the
// response onto a classification outcome.
func (c *Client) ValidateFace(ctx context.Context, frame *types.Frame, tier string) types.Outcome {
	payload := map[string]any{
		"image":        dataURL(frame),
		"quality_tier": tier,
		"timestamp":    frame.Timestamp.UTC().Format(time.RFC3339),
	}

	var resp apiResponse
	if err := c.post(ctx, "/api/validate-face", payload, &resp); err != nil {
		logger.Warn("Classify", "validate-face failed: %v", err)
		return types.Outcome{Kind: types.OutcomeServiceError, Message: ServiceUnavailableMessage}
	}

	switch {
	case resp.Success && resp.User != nil:
		return types.Outcome{
			Kind: types.OutcomeAuthenticated,
			User: &types.User{
				Name:       resp.User.Name,
				Email:      resp.User.Email,
				AuthMethod: types.AuthFace,
			},
			Message: resp.Message,
		}
	case resp.Action == actionRegisterPrompt:
		return types.Outcome{Kind: types.OutcomeRegisterPrompt, Message: resp.Message}
	default:
		msg := resp.Message
		if msg == "" {
			msg = "Face not recognized yet, keep looking at the camera"
		}
		return types.Outcome{Kind: types.OutcomeRetry, Message: msg}
	}
}

// DetectGesture submits a frame to the gesture classifier. Only "left"
// and "right" with detected=true are decisive; "center" is reported as
// an observation and anything else as undetected.
func (c *Client) DetectGesture(ctx context.Context, frame *types.Frame) types.Gesture {
	payload := map[string]any{"image": dataURL(frame)}

	var resp apiResponse
	if err := c.post(ctx, "/api/detect-gesture", payload, &resp); err != nil {
		logger.Warn("Classify", "detect-gesture failed: %v", err)
		return types.GestureError
	}

	if !resp.Success {
		return types.GestureError
	}
	switch {
	case resp.Detected && resp.Gesture == "left":
		return types.GestureAffirm
	case resp.Detected && resp.Gesture == "right":
		return types.GestureDecline
	case resp.Gesture == "center":
		return types.GestureCenter
	default:
		return types.GestureUndetected
	}
}

// Registration is the profile submitted on registration completion,
// together with a previously captured still image.
type Registration struct {
	Name     string
	Email    string
	Password string
	Face     *types.Frame
}

// Register completes a registration. A transport failure returns the
// raw error; a server-side rejection returns a RejectedError carrying
// the server's message.
func (c *Client) Register(ctx context.Context, reg Registration) (*types.User, error) {
	payload := map[string]any{
		"name":     reg.Name,
		"email":    reg.Email,
		"password": reg.Password,
	}
	if reg.Face != nil {
		payload["face_image"] = dataURL(reg.Face)
	}

	var resp apiResponse
	if err := c.post(ctx, "/api/register", payload, &resp); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "Registration failed"
		}
		return nil, &RejectedError{Message: msg}
	}

	user := &types.User{AuthMethod: types.AuthRegistration, Name: reg.Name, Email: reg.Email}
	if resp.User != nil {
		user.Name = resp.User.Name
		user.Email = resp.User.Email
	}
	return user, nil
}

// GuestLogin obtains the guest record from the backend, falling back to
// the local guest record on any failure. Guest access never depends on
// the network.
func (c *Client) GuestLogin(ctx context.Context) *types.User {
	var resp apiResponse
	if err := c.post(ctx, "/api/guest-login", map[string]any{}, &resp); err != nil || !resp.Success || resp.User == nil {
		if err != nil {
			logger.Warn("Classify", "guest-login failed, using local guest record: %v", err)
		}
		return types.GuestUser()
	}
	return &types.User{
		Name:       resp.User.Name,
		Email:      resp.User.Email,
		AuthMethod: types.AuthGuest,
	}
}

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out *apiResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func dataURL(frame *types.Frame) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame.JPEG)
}
