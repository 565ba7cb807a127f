package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupRecorder(t *testing.T) (*Provider, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	p, err := Setup(context.Background(), Config{}, sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, rec
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{SampleRate: 7}
	cfg.applyDefaults()
	assert.Equal(t, "carematch-server", cfg.ServiceName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestTracingMiddlewareNamesSpanAfterRoute(t *testing.T) {
	p, rec := setupRecorder(t)

	e := echo.New()
	e.Use(p.TracingMiddleware())
	e.GET("/api/v1/providers/:id/slots", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers/abc/slots", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET /api/v1/providers/:id/slots", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.status_code", http.StatusOK))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestTracingMiddlewareMarksServerErrors(t *testing.T) {
	p, rec := setupRecorder(t)

	e := echo.New()
	e.Use(p.TracingMiddleware())
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestEndSpanRecordsError(t *testing.T) {
	_, rec := setupRecorder(t)

	_, span := StartSpan(context.Background(), "booking.Create")
	EndSpan(span, errors.New("db down"))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "db down", spans[0].Status().Description)
}
