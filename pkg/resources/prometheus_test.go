package resources

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()

	require.NoError(t, RegisterGaugeFunc(registry, "eventstore", "events_stored", "Events held in memory", func() float64 { return 3 }))
	require.Error(t, RegisterGaugeFunc(registry, "eventstore", "events_stored", "Events held in memory", func() float64 { return 3 }))

	w := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(w.Result().Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(body), "eventstore_events_stored 3")
	assert.Contains(t, string(body), "go_goroutines")
}
