package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppMetrics_ExposedByHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)
	m.ExchangeTotal.WithLabelValues("ok").Inc()
	m.SessionState.Set(2)
	m.FramesTotal.WithLabelValues("ping").Add(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["v5_exchange_total"])
	assert.True(t, names["v5_session_state"])

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `v5_frames_total{kind="ping"} 3`)
}
