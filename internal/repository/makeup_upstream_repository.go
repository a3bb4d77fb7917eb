package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
	"github.com/noah-isme/edu-makeup-api/pkg/middleware/requestid"
)

const maxUpstreamBody = 8 << 20

// UpstreamError describes a non-2xx answer from the core API.
type UpstreamError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream %s returned %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("upstream %s returned %d: %s", e.Endpoint, e.Status, e.Body)
}

// UpstreamObserver receives timing for every core API call.
type UpstreamObserver interface {
	ObserveUpstream(endpoint, outcome string, duration time.Duration)
}

// MakeupUpstreamRepository talks to the core education-center API over HTTP.
// Read methods return raw JSON bodies; shape normalization happens in the service layer.
type MakeupUpstreamRepository struct {
	baseURL  string
	token    string
	client   *http.Client
	observer UpstreamObserver
	logger   *zap.Logger
}

// NewMakeupUpstreamRepository constructs the core API client.
func NewMakeupUpstreamRepository(baseURL, token string, timeout time.Duration, observer UpstreamObserver, logger *zap.Logger) *MakeupUpstreamRepository {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MakeupUpstreamRepository{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		client:   &http.Client{Timeout: timeout},
		observer: observer,
		logger:   logger,
	}
}

// StudentsWithCredits lists students holding make-up credits.
func (r *MakeupUpstreamRepository) StudentsWithCredits(ctx context.Context) ([]byte, error) {
	return r.get(ctx, "students_with_credits", "/makeup-credits/students", nil)
}

// CreditsByStudent lists the credits of one student profile.
func (r *MakeupUpstreamRepository) CreditsByStudent(ctx context.Context, studentProfileID string) ([]byte, error) {
	return r.get(ctx, "credits_by_student", "/makeup-credits", url.Values{"studentProfileId": {studentProfileID}})
}

// SessionByID fetches one session.
func (r *MakeupUpstreamRepository) SessionByID(ctx context.Context, sessionID string) ([]byte, error) {
	return r.get(ctx, "session_by_id", "/sessions/"+url.PathEscape(sessionID), nil)
}

// SuggestionsByCredit asks the core API for replacement sessions. An empty bucket is omitted.
func (r *MakeupUpstreamRepository) SuggestionsByCredit(ctx context.Context, query models.SuggestionQuery) ([]byte, error) {
	params := url.Values{"makeupDate": {query.MakeupDate}}
	if query.TimeOfDay != "" {
		params.Set("timeOfDay", string(query.TimeOfDay))
	}
	return r.get(ctx, "suggestions", "/makeup-credits/"+url.PathEscape(query.CreditID)+"/suggestions", params)
}

// Classes lists every class without constraint.
func (r *MakeupUpstreamRepository) Classes(ctx context.Context) ([]byte, error) {
	return r.get(ctx, "classes", "/classes", nil)
}

// SessionsByClass lists a class's sessions inside [from, to].
func (r *MakeupUpstreamRepository) SessionsByClass(ctx context.Context, classID string, from, to time.Time) ([]byte, error) {
	params := url.Values{
		"classId": {classID},
		"from":    {from.Format(time.RFC3339)},
		"to":      {to.Format(time.RFC3339)},
	}
	return r.get(ctx, "sessions_by_class", "/sessions", params)
}

// CreateMakeupBooking performs the single write of the workflow.
func (r *MakeupUpstreamRepository) CreateMakeupBooking(ctx context.Context, booking models.MakeupBookingRequest) error {
	body, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("marshal makeup booking: %w", err)
	}
	_, err = r.do(ctx, "create_booking", http.MethodPost, "/makeup-bookings", nil, body)
	return err
}

// Ping checks that the core API answers at all. Any HTTP answer below 500 counts as reachable.
func (r *MakeupUpstreamRepository) Ping(ctx context.Context) error {
	_, err := r.get(ctx, "ping", "/classes", url.Values{"limit": {"1"}})
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) && upstreamErr.Status < http.StatusInternalServerError {
		return nil
	}
	if errors.Is(err, appErrors.ErrNotFound) {
		return nil
	}
	return err
}

func (r *MakeupUpstreamRepository) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	return r.do(ctx, endpoint, http.MethodGet, path, params, nil)
}

func (r *MakeupUpstreamRepository) do(ctx context.Context, endpoint, method, path string, params url.Values, body []byte) ([]byte, error) {
	target := r.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header(), id)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		outcome := "error"
		if isTimeout(ctx, err) {
			outcome = "timeout"
			err = appErrors.Wrap(err, appErrors.ErrUpstreamTimeout.Code, appErrors.ErrUpstreamTimeout.Status, appErrors.ErrUpstreamTimeout.Message)
		} else {
			err = appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
		}
		r.observe(endpoint, outcome, time.Since(start))
		r.logger.Warn("upstream request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	r.observe(endpoint, outcomeForStatus(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, appErrors.Wrap(&UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: snippet(payload)},
			appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, appErrors.ErrNotFound.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstreamErr := &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode, Body: snippet(payload)}
		status := appErrors.ErrUpstream.Status
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity {
			// Rejections of the booking itself are surfaced with their own status.
			status = resp.StatusCode
		}
		return nil, appErrors.Wrap(upstreamErr, appErrors.ErrUpstream.Code, status, upstreamMessage(payload))
	}
	return payload, nil
}

func (r *MakeupUpstreamRepository) observe(endpoint, outcome string, d time.Duration) {
	if r.observer != nil {
		r.observer.ObserveUpstream(endpoint, outcome, d)
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcomeForStatus(status int) string {
	if status >= 200 && status < 300 {
		return "ok"
	}
	return strconv.Itoa(status/100) + "xx"
}

func snippet(body []byte) string {
	const limit = 512
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit]
	}
	return text
}

// upstreamMessage prefers the core API's own message field when present.
func upstreamMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
	}
	return appErrors.ErrUpstream.Message
}
