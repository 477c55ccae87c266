package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fenilmodi00/lottery-backend/database"
	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/services"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type stubCatalog struct {
	mutex  sync.Mutex
	shows  []models.Show
	err    error
	forced []bool
}

func (c *stubCatalog) Get(_ context.Context, force bool) (models.CatalogSnapshot, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.forced = append(c.forced, force)
	if c.err != nil {
		return models.CatalogSnapshot{}, c.err
	}
	return models.CatalogSnapshot{Shows: c.shows, Timestamp: time.Now()}, nil
}

type stubApplier struct {
	err   error
	users []string
}

func (a *stubApplier) ApplyForUser(_ context.Context, userID string) ([]models.LotteryResult, error) {
	a.users = append(a.users, userID)
	if a.err != nil {
		return nil, a.err
	}
	return []models.LotteryResult{{Success: true, ShowName: "Cats", UserID: userID}}, nil
}

func (a *stubApplier) ApplyForAllUsers(context.Context) (map[string][]models.LotteryResult, models.BatchSummary, error) {
	if a.err != nil {
		return nil, models.BatchSummary{}, a.err
	}
	return map[string][]models.LotteryResult{"u1": {}}, models.BatchSummary{BatchID: "b1", Users: 1}, nil
}

type metricsSource struct{ metrics *shared.ServiceMetrics }

func (m metricsSource) Metrics() *shared.ServiceMetrics { return m.metrics }

func genre(g string) *string { return &g }

type testApp struct {
	app     *fiber.App
	catalog *stubCatalog
	applier *stubApplier
}

func newTestApp(t *testing.T, secret string) *testApp {
	t.Helper()
	store := database.NewMemoryStore()
	platforms := services.DefaultPlatformTable()
	catalog := &stubCatalog{shows: []models.Show{
		{Name: "Hamilton", Platform: models.PlatformBroadwayDirect, URL: "https://lottery.broadwaydirect.com/show/hamilton/", Genre: genre("musical"), Active: true},
		{Name: "Cats", Platform: models.PlatformBroadwayDirect, URL: "https://lottery.broadwaydirect.com/show/cats/", Genre: genre("musical"), Active: true},
	}}
	applier := &stubApplier{}

	users := services.NewUserService(store, nil)
	overrides := services.NewOverrideService(store)
	history := services.NewResultHistory(store, 10)
	decisions := services.NewDecisionService(catalog, users, overrides)

	metrics := shared.NewServiceMetrics("ScraperRegistry")
	metrics.IncrementCounter("scrape_failed:lucky_seat")

	app := fiber.New()
	RegisterRoutes(app.Group("/api/v1"), Routes{
		Catalog:     NewCatalogHandler(catalog, platforms),
		Users:       NewUserHandler(users, history),
		Decisions:   NewDecisionHandler(decisions, overrides, platforms),
		Admin:       NewAdminHandler(applier, catalog),
		Performance: NewPerformanceHandler(func() int64 { return 4 }, metricsSource{metrics}),
		AdminSecret: secret,
	})
	return &testApp{app: app, catalog: catalog, applier: applier}
}

func (a *testApp) do(t *testing.T, method, path, body string, headers ...string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload), string(raw))
	}
	return resp.StatusCode, payload
}

func bearer(t *testing.T, token string) []string {
	t.Helper()
	return []string{"Authorization", "Bearer " + token}
}

func adminToken(t *testing.T) []string {
	t.Helper()
	token, err := NewAdminToken(testSecret, "ops", time.Hour)
	require.NoError(t, err)
	return bearer(t, token)
}

func TestCatalogEndpoints(t *testing.T) {
	app := newTestApp(t, testSecret)

	status, body := app.do(t, http.MethodGet, "/api/v1/shows?refresh=true", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])
	assert.Equal(t, []bool{false}, app.catalog.forced, "public reads never force a scrape")

	status, body = app.do(t, http.MethodGet, "/api/v1/platforms", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 3)
}

func TestCatalogUnavailable(t *testing.T) {
	app := newTestApp(t, testSecret)
	app.catalog.err = shared.ErrNoCatalogAvailable

	status, body := app.do(t, http.MethodGet, "/api/v1/shows", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, false, body["success"])
}

func TestServerSideServiceErrorsAreLogged(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	app := newTestApp(t, testSecret)
	app.catalog.err = shared.NewServiceError(shared.ErrorCategoryUpstream, "CATALOG_EMPTY",
		"no catalog yet", "CatalogCache", "Get", true, shared.ErrNoCatalogAvailable)

	status, body := app.do(t, http.MethodGet, "/api/v1/shows", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "no catalog yet", body["error"])
	assert.Equal(t, true, body["retryable"])

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "CATALOG_EMPTY", entry.Data["error_code"])

	hook.Reset()
	status, _ = app.do(t, http.MethodPut, "/api/v1/users/alice:evil", `{"first_name":"A"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, "Service error occurred", e.Message, "client errors are not logged as service errors")
	}
}

func TestUserLifecycle(t *testing.T) {
	app := newTestApp(t, testSecret)

	status, body := app.do(t, http.MethodPost, "/api/v1/users",
		`{"id":"ignored","first_name":"Ada","last_name":"Lovelace","email":"ada@example.com","date_of_birth":"1990-12-10"}`)
	require.Equal(t, http.StatusCreated, status)
	data := body["data"].(map[string]interface{})
	id := data["id"].(string)
	assert.NotEqual(t, "ignored", id)
	assert.Equal(t, "1990-12-10", data["date_of_birth"])

	status, _ = app.do(t, http.MethodGet, "/api/v1/users/"+id, "")
	assert.Equal(t, http.StatusOK, status)

	status, body = app.do(t, http.MethodPost, "/api/v1/users/"+id+"/preferences", `{"text":"musicals on weekends"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["parsed"])

	status, body = app.do(t, http.MethodGet, "/api/v1/users/"+id+"/results", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])

	status, _ = app.do(t, http.MethodDelete, "/api/v1/users/"+id, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, body = app.do(t, http.MethodGet, "/api/v1/users/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestUserEndpointsRejectBadInput(t *testing.T) {
	app := newTestApp(t, testSecret)

	status, _ := app.do(t, http.MethodPost, "/api/v1/users", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = app.do(t, http.MethodGet, "/api/v1/users/ghost/results", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body := app.do(t, http.MethodPut, "/api/v1/users/alice:evil", `{"email":"e@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])

	status, _ = app.do(t, http.MethodPut, "/api/v1/users/alice:evil/overrides", `{"platform":"broadway_direct","show_name":"Cats","should_apply":true}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOverridesDriveDecisions(t *testing.T) {
	app := newTestApp(t, testSecret)
	status, _ := app.do(t, http.MethodPut, "/api/v1/users/u1", `{"first_name":"Ada","email":"ada@example.com"}`)
	require.Equal(t, http.StatusOK, status)

	status, body := app.do(t, http.MethodGet, "/api/v1/users/u1/decisions", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["selected"], "no parser and no overrides selects nothing")

	status, _ = app.do(t, http.MethodPut, "/api/v1/users/u1/overrides", `{"platform":"ticketmaster","show_name":"Cats","should_apply":true}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = app.do(t, http.MethodPut, "/api/v1/users/u1/overrides", `{"platform":"broadway_direct","show_name":"Cats"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = app.do(t, http.MethodPut, "/api/v1/users/u1/overrides", `{"platform":"broadway_direct","show_name":"Cats","should_apply":true}`)
	require.Equal(t, http.StatusOK, status)

	_, body = app.do(t, http.MethodGet, "/api/v1/users/u1/decisions", "")
	assert.EqualValues(t, 1, body["selected"])

	status, _ = app.do(t, http.MethodDelete, "/api/v1/users/u1/overrides?platform=broadway_direct&show_name=Cats", "")
	assert.Equal(t, http.StatusNoContent, status)

	_, body = app.do(t, http.MethodGet, "/api/v1/users/u1/decisions", "")
	assert.EqualValues(t, 0, body["selected"])

	status, _ = app.do(t, http.MethodGet, "/api/v1/users/ghost/decisions", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	t.Run("disabled without secret", func(t *testing.T) {
		app := newTestApp(t, "")
		status, _ := app.do(t, http.MethodPost, "/api/v1/admin/apply", "")
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})

	app := newTestApp(t, testSecret)

	status, _ := app.do(t, http.MethodPost, "/api/v1/admin/apply", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = app.do(t, http.MethodPost, "/api/v1/admin/apply", "", bearer(t, "not-a-jwt")...)
	assert.Equal(t, http.StatusUnauthorized, status)

	forged, err := NewAdminToken("other-secret", "ops", time.Hour)
	require.NoError(t, err)
	status, _ = app.do(t, http.MethodPost, "/api/v1/admin/apply", "", bearer(t, forged)...)
	assert.Equal(t, http.StatusUnauthorized, status)

	expired, err := NewAdminToken(testSecret, "ops", -time.Minute)
	require.NoError(t, err)
	status, _ = app.do(t, http.MethodPost, "/api/v1/admin/apply", "", bearer(t, expired)...)
	assert.Equal(t, http.StatusUnauthorized, status)

	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "viewer", "role": "viewer", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	status, _ = app.do(t, http.MethodPost, "/api/v1/admin/apply", "", bearer(t, viewer)...)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := app.do(t, http.MethodPost, "/api/v1/admin/apply", "", adminToken(t)...)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "b1", body["summary"].(map[string]interface{})["batch_id"])
}

func TestAdminApplyEndpoints(t *testing.T) {
	app := newTestApp(t, testSecret)

	status, body := app.do(t, http.MethodPost, "/api/v1/admin/apply/u7", "", adminToken(t)...)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
	assert.Equal(t, []string{"u7"}, app.applier.users)

	app.applier.err = services.ErrBatchInProgress
	status, body = app.do(t, http.MethodPost, "/api/v1/admin/apply", "", adminToken(t)...)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, services.ErrBatchInProgress.Error(), body["error"])

	app.applier.err = shared.ErrUserNotFound
	status, _ = app.do(t, http.MethodPost, "/api/v1/admin/apply/ghost", "", adminToken(t)...)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdminCatalogRefreshAndMetrics(t *testing.T) {
	app := newTestApp(t, testSecret)

	status, body := app.do(t, http.MethodPost, "/api/v1/admin/catalog/refresh", "", adminToken(t)...)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])
	assert.Equal(t, []bool{true}, app.catalog.forced)

	status, body = app.do(t, http.MethodGet, "/api/v1/admin/metrics", "", adminToken(t)...)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 4, data["catalog_refreshes"])
	registry := data["services"].(map[string]interface{})["ScraperRegistry"].(map[string]interface{})
	assert.EqualValues(t, 1, registry["counters"].(map[string]interface{})["scrape_failed:lucky_seat"])
}
