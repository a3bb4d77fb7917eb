package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/edu-makeup-api/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest("GET", "/health", 200, 10*time.Millisecond)
	m.ObserveHTTPRequest("GET", "/health", 200, 30*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.ObserveUpstream("suggestions", "ok", 40*time.Millisecond)
	m.RecordStaleResult(models.StageCredits)
	m.RecordModeTransition(models.MakeupModeNone, models.MakeupModeGuided)
	m.RecordSubmission(models.SubmissionSucceeded)
	m.SetOpenWorkflows(3)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 20, snap.AverageRequestDurationMs, 0.001)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(1), snap.UpstreamCalls)
	assert.InDelta(t, 40, snap.AverageUpstreamMs, 0.001)
	assert.Equal(t, uint64(1), snap.StaleResultsDropped)
	assert.Equal(t, 3, snap.OpenWorkflows)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "makeup_stale_results_total")
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveUpstream("students", "timeout", time.Second)
		m.RecordStaleResult(models.StageSuggestions)
		m.SetOpenWorkflows(1)
	})
	assert.Zero(t, m.Snapshot().RequestsTotal)
}
