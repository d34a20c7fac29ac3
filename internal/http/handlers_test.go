package http_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glimpse/internal/engine"
	glimpsehttp "glimpse/internal/http"
	"glimpse/internal/identity"
	"glimpse/internal/location"
	"glimpse/internal/storage"
)

func newTestApp(t *testing.T) (*fiber.App, *engine.Engine) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(engine.Options{
		Store:    storage.NewMemoryStore(),
		Sessions: storage.NewMemoryStore(),
		Identity: identity.ContextResolver{},
		Location: location.NewTimezoneResolver("Europe/London"),
		Logger:   logger,
	})
	h := glimpsehttp.NewHandler(eng, logger)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		ctx := identity.WithIDs(c.UserContext(), identity.IDs{Visitor: "v1", Session: "s1"})
		c.SetUserContext(ctx)
		return c.Next()
	})
	app.Get("/_health", h.HealthIndexAction)
	app.Post("/x/api/v1/pageviews", h.CreatePageViewAction)
	app.Post("/x/api/v1/sales", h.CreateSaleAction)
	app.Get("/x/api/v1/stats", h.GetStatsAction)
	app.Get("/x/api/v1/stats/monthly", h.GetMonthlyDataAction)
	app.Get("/x/api/v1/stats/countries", h.GetCountryDataAction)
	app.Post("/x/api/v1/reset", h.ResetAction)

	return app, eng
}

func TestCreatePageViewAction(t *testing.T) {
	app, eng := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/x/api/v1/pageviews",
		strings.NewReader(`{"path":"/pricing","title":"Pricing","referrer":"https://google.com"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	stats := eng.GetStats()
	assert.Equal(t, 1, stats.TotalPageViews)
	assert.Equal(t, 1, stats.TotalVisits)
	assert.Equal(t, 1, stats.UniqueVisitors)
}

func TestCreatePageViewActionRejectsMalformedBody(t *testing.T) {
	app, eng := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/x/api/v1/pageviews", strings.NewReader("{not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, eng.GetStats().TotalPageViews)
}

func TestCreateSaleAction(t *testing.T) {
	app, eng := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/x/api/v1/sales", strings.NewReader(`{"amount":49.99}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.InDelta(t, 49.99, eng.GetStats().Sales.Total, 0.001)
}

func TestCreateSaleActionRejectsNegativeAmount(t *testing.T) {
	app, eng := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/x/api/v1/sales", strings.NewReader(`{"amount":-1}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, eng.GetStats().Sales.Total)
}

func TestGetStatsAction(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/x/api/v1/pageviews", strings.NewReader(`{"path":"/"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	_, err := app.Test(req, -1)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/x/api/v1/stats", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var snap engine.StatsSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 1, snap.TotalVisits)
	assert.Equal(t, 1, snap.TotalPageViews)
	assert.NotNil(t, snap.Countries)
	assert.Contains(t, snap.Continents, location.ContinentEurope)
}

func TestGetMonthlyDataAction(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/x/api/v1/pageviews", strings.NewReader(`{"path":"/"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	_, err := app.Test(req, -1)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/x/api/v1/stats/monthly", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var data engine.MonthlyData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	require.Len(t, data.Labels, 1)
	assert.Equal(t, []int{1}, data.Visits)
	assert.Equal(t, []int{1}, data.PageViews)
}

func TestGetCountryDataAction(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/x/api/v1/pageviews", strings.NewReader(`{"path":"/"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	_, err := app.Test(req, -1)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/x/api/v1/stats/countries", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var countries map[string]engine.CountrySummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&countries))
	require.Contains(t, countries, "GB")
	assert.Equal(t, "United Kingdom", countries["GB"].Name)
	assert.Equal(t, 1, countries["GB"].Count)
}

func TestResetAction(t *testing.T) {
	app, eng := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/x/api/v1/pageviews", strings.NewReader(`{"path":"/"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	_, err := app.Test(req, -1)
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/x/api/v1/reset", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Zero(t, eng.GetStats().TotalVisits)
}

func TestHealthIndexAction(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/_health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
