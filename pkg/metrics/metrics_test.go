package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	before := testutil.ToFloat64(UploadsTotal.WithLabelValues("primary", "pdf", "ok"))
	UploadsTotal.WithLabelValues("primary", "pdf", "ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(UploadsTotal.WithLabelValues("primary", "pdf", "ok")))

	RunsTotal.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "creditsync_runs_total")
	assert.Contains(t, rec.Body.String(), `creditsync_uploads_total{endpoint="primary",kind="pdf",status="ok"}`)
}
