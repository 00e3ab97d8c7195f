package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chime/internal/sound"
)

func TestObserveUpload(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveUpload(sound.ReasonNone, 1024)
	m.ObserveUpload(sound.ReasonSize, 5<<20)
	m.ObserveUpload(sound.ReasonSize, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("size")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.UploadedBytes), "failed uploads add no bytes")
}

func TestObserveServe(t *testing.T) {
	m := New(nil)

	m.ObserveServe(http.StatusOK, 300)
	m.ObserveServe(http.StatusNotModified, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServesTotal.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ServesTotal.WithLabelValues("304")))
	assert.Equal(t, 300.0, testutil.ToFloat64(m.ServedBytes))
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestInstrument(t *testing.T) {
	m := New(nil)
	h := m.Instrument("upload", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.WriteHeader(http.StatusOK) // superfluous, must not change the label
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/settings/chime/upload", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("upload", "413")))
}

func TestInstrument_ImplicitOK(t *testing.T) {
	m := New(nil)
	h := m.Instrument("health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("health", "200")))
}

func TestHandler(t *testing.T) {
	m := New(nil)
	m.ObserveUpload(sound.ReasonExt, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `coven_chime_uploads_total{reason="ext"} 1`))
}
