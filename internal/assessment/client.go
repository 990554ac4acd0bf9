package assessment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/metrics"
)

const maxResponseBytes = 4 << 20

// Client talks to the remote assessment service over HTTP. Every call is a
// POST of a JSON object carrying an "action" discriminator.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	log        zerolog.Logger
}

// Ensure Client implements the interface
var _ Service = (*Client)(nil)

// NewClient creates a Client. timeout bounds each call; a timed-out call is
// reported as ErrTimeout and is safe to retry.
func NewClient(endpoint string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		timeout:    timeout,
		log:        log.With().Str("component", "assessment_client").Logger(),
	}
}

func (c *Client) GetQuestions(ctx context.Context, assessmentID, userID string) (*QuestionSet, error) {
	var out QuestionSet
	err := c.call(ctx, ActionGetQuestions, map[string]any{
		"assessment_id": assessmentID,
		"user_id":       userID,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.SessionID == "" || len(out.Questions) == 0 {
		return nil, fmt.Errorf("%w: get_questions returned no session or questions", ErrInvalidResponse)
	}
	return &out, nil
}

func (c *Client) ValidateSession(ctx context.Context, sessionID string) (*Validation, error) {
	var out Validation
	if err := c.call(ctx, ActionValidateSession, map[string]any{
		"session_id": sessionID,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitAnswers(ctx context.Context, sessionID string, answers map[int]string) (*SubmitReceipt, error) {
	if answers == nil {
		answers = map[int]string{}
	}
	var out SubmitReceipt
	if err := c.call(ctx, ActionSubmitAnswers, map[string]any{
		"session_id": sessionID,
		"answers":    answers,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, action Action, fields map[string]any, out any) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveRemote(string(action), err, time.Since(start)) }()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	fields["action"] = action
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", action, ErrTimeout)
		}
		return fmt.Errorf("%s request: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", action, ErrTimeout)
		}
		return fmt.Errorf("read %s response: %w", action, err)
	}

	c.log.Debug().
		Str("action", string(action)).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Remote call finished")

	inner, unwrapErr := unwrapBody(raw)
	if unwrapErr == nil {
		if err := remoteFailure(action, inner); err != nil {
			return err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := raw
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return fmt.Errorf("%s status %d: %s", action, resp.StatusCode, string(snippet))
	}
	if unwrapErr != nil {
		return fmt.Errorf("%s: %w", action, unwrapErr)
	}

	if err := json.Unmarshal(inner, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidResponse, action, err)
	}
	return nil
}

// remoteFailure maps an {error} payload to ErrAlreadySubmitted or a
// RemoteError. It returns nil when inner carries no error.
func remoteFailure(action Action, inner []byte) error {
	var failure struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(inner, &failure); err != nil || failure.Error == "" {
		return nil
	}
	if strings.Contains(strings.ToLower(failure.Error), "already submitted") {
		return fmt.Errorf("%w: %s", ErrAlreadySubmitted, failure.Error)
	}
	return &RemoteError{Action: action, Message: failure.Error}
}

// unwrapBody returns the payload of a response that may be nested one level
// under "body", either as an object or as a JSON-encoded string.
func unwrapBody(raw []byte) ([]byte, error) {
	var env struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	body := bytes.TrimSpace(env.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return raw, nil
	}

	if body[0] == '"' {
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("%w: body string: %v", ErrInvalidResponse, err)
		}
		return []byte(s), nil
	}
	return body, nil
}
