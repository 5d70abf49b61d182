package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSpawn(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{name: "successful spawn", status: "ok"},
		{name: "failed spawn", status: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initialCount := testutil.ToFloat64(workerSpawns.With(prometheus.Labels{
				"status": tt.status,
			}))

			RecordSpawn(tt.status)

			newCount := testutil.ToFloat64(workerSpawns.With(prometheus.Labels{
				"status": tt.status,
			}))

			if newCount != initialCount+1 {
				t.Errorf("expected count to increment by 1, got initial=%f, new=%f", initialCount, newCount)
			}
		})
	}
}

func TestSessionCountsTrackTable(t *testing.T) {
	initialActive := testutil.ToFloat64(activeSessions)
	initialCreated := testutil.ToFloat64(sessionsCreated)

	RecordSessionCreated()
	RecordSessionCreated()

	if got := testutil.ToFloat64(activeSessions); got != initialActive+2 {
		t.Errorf("expected active gauge %f, got %f", initialActive+2, got)
	}
	if got := testutil.ToFloat64(sessionsCreated); got != initialCreated+2 {
		t.Errorf("expected created counter %f, got %f", initialCreated+2, got)
	}

	RecordSessionRemoved(12.5)

	if got := testutil.ToFloat64(activeSessions); got != initialActive+1 {
		t.Errorf("expected active gauge %f after removal, got %f", initialActive+1, got)
	}
	// Creations are never decremented.
	if got := testutil.ToFloat64(sessionsCreated); got != initialCreated+2 {
		t.Errorf("expected created counter %f after removal, got %f", initialCreated+2, got)
	}
}

func TestRecordControlError(t *testing.T) {
	operations := []string{"configure", "start", "pause", "resume", "stop"}

	for _, op := range operations {
		t.Run(op, func(t *testing.T) {
			initialCount := testutil.ToFloat64(controlErrors.With(prometheus.Labels{
				"operation": op,
			}))

			RecordControlError(op)

			newCount := testutil.ToFloat64(controlErrors.With(prometheus.Labels{
				"operation": op,
			}))

			if newCount != initialCount+1 {
				t.Errorf("expected count to increment by 1, got initial=%f, new=%f", initialCount, newCount)
			}
		})
	}
}

func TestRecordStateTransition(t *testing.T) {
	initialCount := testutil.ToFloat64(stateTransitions.With(prometheus.Labels{
		"state": "STARTED",
	}))

	RecordStateTransition("STARTED")

	newCount := testutil.ToFloat64(stateTransitions.With(prometheus.Labels{
		"state": "STARTED",
	}))

	if newCount != initialCount+1 {
		t.Errorf("expected count to increment by 1, got initial=%f, new=%f", initialCount, newCount)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "castd_sessions_active") {
		t.Errorf("expected exposition to contain castd_sessions_active, got:\n%s", body)
	}
}
