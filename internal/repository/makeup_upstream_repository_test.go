package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-makeup-api/internal/models"
	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
	"github.com/noah-isme/edu-makeup-api/pkg/middleware/requestid"
)

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (o *recordingObserver) ObserveUpstream(endpoint, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = map[string]string{}
	}
	o.outcomes[endpoint] = outcome
}

func (o *recordingObserver) outcome(endpoint string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outcomes[endpoint]
}

func newUpstreamServer(t *testing.T, handler http.HandlerFunc) (*MakeupUpstreamRepository, *recordingObserver) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	observer := &recordingObserver{}
	return NewMakeupUpstreamRepository(server.URL+"/api/", "secret", time.Second, observer, zap.NewNop()), observer
}

func TestMakeupUpstreamSendsAuthAndRequestID(t *testing.T) {
	var mu sync.Mutex
	var header http.Header
	var path string
	repo, observer := newUpstreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		header, path = r.Header.Clone(), r.URL.Path
		mu.Unlock()
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	ctx := requestid.WithValue(context.Background(), "req-42")
	body, err := repo.StudentsWithCredits(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/api/makeup-credits/students", path)
	assert.Equal(t, "Bearer secret", header.Get("Authorization"))
	assert.Equal(t, "req-42", header.Get("X-Request-ID"))
	assert.Equal(t, "ok", observer.outcome("students_with_credits"))
}

func TestMakeupUpstreamQueryParameters(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var queries []map[string][]string
	repo, _ := newUpstreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path)
		queries = append(queries, r.URL.Query())
		_, _ = w.Write([]byte(`[]`))
	})
	ctx := context.Background()
	zone := time.FixedZone("+07:00", 7*3600)

	_, err := repo.CreditsByStudent(ctx, "stu 1")
	require.NoError(t, err)
	_, err = repo.SuggestionsByCredit(ctx, models.SuggestionQuery{CreditID: "cr-1", MakeupDate: "2025-01-10", TimeOfDay: models.TimeOfDayMorning})
	require.NoError(t, err)
	_, err = repo.SuggestionsByCredit(ctx, models.SuggestionQuery{CreditID: "cr-1", MakeupDate: "2025-01-10"})
	require.NoError(t, err)
	_, err = repo.SessionsByClass(ctx, "cls-m",
		time.Date(2025, 1, 10, 0, 0, 0, 0, zone),
		time.Date(2025, 1, 10, 23, 59, 59, 0, zone))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/api/makeup-credits", "/api/makeup-credits/cr-1/suggestions", "/api/makeup-credits/cr-1/suggestions", "/api/sessions"}, paths)
	assert.Equal(t, []string{"stu 1"}, queries[0]["studentProfileId"])
	assert.Equal(t, []string{"Morning"}, queries[1]["timeOfDay"])
	assert.Equal(t, []string{"2025-01-10"}, queries[1]["makeupDate"])
	_, hasBucket := queries[2]["timeOfDay"]
	assert.False(t, hasBucket)
	assert.Equal(t, []string{"2025-01-10T00:00:00+07:00"}, queries[3]["from"])
	assert.Equal(t, []string{"2025-01-10T23:59:59+07:00"}, queries[3]["to"])
}

func TestMakeupUpstreamCreateBooking(t *testing.T) {
	var mu sync.Mutex
	var received models.MakeupBookingRequest
	var method, contentType string
	repo, _ := newUpstreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
	})

	booking := models.MakeupBookingRequest{StudentProfileID: "stu-1", MakeupCreditID: "cr-1", TargetSessionID: "ses-1", Date: "2025-01-11", Time: "14:00"}
	require.NoError(t, repo.CreateMakeupBooking(context.Background(), booking))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, booking, received)
}

func TestMakeupUpstreamErrorMapping(t *testing.T) {
	var mu sync.Mutex
	status := http.StatusNotFound
	body := `{"message":"missing"}`
	respond := func(code int, payload string) {
		mu.Lock()
		status, body = code, payload
		mu.Unlock()
	}
	repo, observer := newUpstreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		code, payload := status, body
		mu.Unlock()
		w.WriteHeader(code)
		_, _ = w.Write([]byte(payload))
	})
	ctx := context.Background()

	_, err := repo.SessionByID(ctx, "ses-x")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, "4xx", observer.outcome("session_by_id"))

	respond(http.StatusConflict, `{"error":{"message":"session is full"}}`)
	err = repo.CreateMakeupBooking(ctx, models.MakeupBookingRequest{})
	appErr := appErrors.FromError(err)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Equal(t, "session is full", appErr.Message)
	var upstreamErr *UpstreamError
	require.True(t, errors.As(err, &upstreamErr))
	assert.Equal(t, http.StatusConflict, upstreamErr.Status)

	respond(http.StatusInternalServerError, `oops`)
	_, err = repo.Classes(ctx)
	appErr = appErrors.FromError(err)
	assert.ErrorIs(t, err, appErrors.ErrUpstream)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
	assert.Equal(t, appErrors.ErrUpstream.Message, appErr.Message)
	assert.Error(t, repo.Ping(ctx))

	respond(http.StatusUnauthorized, ``)
	assert.NoError(t, repo.Ping(ctx))
}

func TestMakeupUpstreamTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()
	observer := &recordingObserver{}
	repo := NewMakeupUpstreamRepository(server.URL, "", 50*time.Millisecond, observer, zap.NewNop())

	_, err := repo.Classes(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrUpstreamTimeout)
	assert.Equal(t, "timeout", observer.outcome("classes"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	repo = NewMakeupUpstreamRepository(server.URL, "", time.Second, observer, zap.NewNop())
	_, err = repo.Classes(ctx)
	assert.ErrorIs(t, err, appErrors.ErrUpstreamTimeout)
}
