package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/journey-search/internal/api"
	"github.com/neexbeast/journey-search/internal/catalog"
	"github.com/neexbeast/journey-search/internal/journey"
	"github.com/neexbeast/journey-search/internal/storage"
)

// ---- mock implementations ----

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Legs(ctx context.Context, date journey.Date) ([]journey.FlightLeg, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]journey.FlightLeg), args.Error(1)
}

func (m *mockLoader) Refresh(ctx context.Context) (*storage.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Snapshot), args.Error(1)
}

func (m *mockLoader) Latest(ctx context.Context) (*storage.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Snapshot), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, q journey.Query) ([]journey.Journey, bool, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]journey.Journey), args.Bool(1), args.Error(2)
}

func (m *mockCache) Set(ctx context.Context, q journey.Query, journeys []journey.Journey) error {
	args := m.Called(ctx, q, journeys)
	return args.Error(0)
}

func (m *mockCache) Purge(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// ---- helpers ----

const testToken = "secret-token"

// today is the fixed clock of every test router.
var today = time.Date(2024, 9, 10, 15, 0, 0, 0, time.UTC)

var travelDate = journey.Date{Year: 2024, Month: time.September, Day: 12}

func catalogLegs(t *testing.T) []journey.FlightLeg {
	t.Helper()
	dep := travelDate.Time().Add(12 * time.Hour)
	mk := func(number, from, to string, departure, arrival time.Time) journey.FlightLeg {
		l, err := journey.NewFlightLeg(number, from, to, departure, arrival)
		require.NoError(t, err)
		return l
	}
	return []journey.FlightLeg{
		mk("XX1", "BUE", "MAD", dep, dep.Add(12*time.Hour)),
		mk("XX2", "MAD", "PMI", dep.Add(14*time.Hour), dep.Add(15*time.Hour)),
		mk("XX3", "MAD", "PMI", dep.Add(19*time.Hour), dep.Add(20*time.Hour)),
	}
}

func searchQuery() journey.Query {
	return journey.Query{Date: travelDate, Origin: "BUE", Destination: "PMI"}
}

type routerDeps struct {
	loader *mockLoader
	cache  *mockCache
	db     *mockPinger
	redis  *mockPinger
}

func newDeps() *routerDeps {
	return &routerDeps{
		loader: &mockLoader{},
		cache:  &mockCache{},
		db:     &mockPinger{},
		redis:  &mockPinger{},
	}
}

func (d *routerDeps) router(searchLimit int) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := api.NewHandlers(d.loader, d.cache, log, api.WithClock(func() time.Time { return today }))
	cfg := api.RouterConfig{Token: testToken, SearchLimit: searchLimit}
	return api.NewRouter(handlers, cfg, d.db, d.redis, log)
}

func serve(h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

const searchURL = "/api/v1/journeys/search?date=2024-09-12&from=BUE&to=PMI"

// ---- GET /api/v1/journeys/search ----

func TestSearch_CacheMiss(t *testing.T) {
	d := newDeps()
	d.cache.On("Get", mock.Anything, searchQuery()).Return(nil, false, nil)
	d.loader.On("Legs", mock.Anything, travelDate).Return(catalogLegs(t), nil)
	d.cache.On("Set", mock.Anything, searchQuery(), mock.AnythingOfType("[]journey.Journey")).Return(nil)

	w := serve(d.router(0), http.MethodGet, searchURL, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	got := decodeBody[[]journey.Journey](t, w)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Connections)
	assert.Equal(t, "XX1", got[0].Path[0].FlightNumber)
	assert.Equal(t, "XX2", got[0].Path[1].FlightNumber)

	d.loader.AssertExpectations(t)
	d.cache.AssertExpectations(t)
}

func TestSearch_ResponseShape(t *testing.T) {
	d := newDeps()
	d.cache.On("Get", mock.Anything, mock.Anything).Return(nil, false, nil)
	d.loader.On("Legs", mock.Anything, travelDate).Return(catalogLegs(t), nil)
	d.cache.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	w := serve(d.router(0), http.MethodGet, searchURL, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody[[]map[string]any](t, w)
	require.Len(t, body, 1)
	assert.EqualValues(t, 1, body[0]["connections"])
	path := body[0]["path"].([]any)
	first := path[0].(map[string]any)
	assert.Equal(t, "XX1", first["flight_number"])
	assert.Equal(t, "BUE", first["departure_city"])
	assert.Equal(t, "MAD", first["arrival_city"])
	assert.Equal(t, "2024-09-12T12:00:00Z", first["departure_datetime"])
	assert.Equal(t, "2024-09-13T00:00:00Z", first["arrival_datetime"])
}

func TestSearch_CacheHit(t *testing.T) {
	d := newDeps()
	cached := journey.Search(catalogLegs(t), searchQuery())
	d.cache.On("Get", mock.Anything, searchQuery()).Return(cached, true, nil)

	w := serve(d.router(0), http.MethodGet, searchURL, "")

	assert.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[[]journey.Journey](t, w)
	assert.Len(t, got, 1)
	d.loader.AssertNotCalled(t, "Legs", mock.Anything, mock.Anything)
	d.cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearch_CachedEmptyResult(t *testing.T) {
	d := newDeps()
	d.cache.On("Get", mock.Anything, searchQuery()).Return([]journey.Journey{}, true, nil)

	w := serve(d.router(0), http.MethodGet, searchURL, "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[map[string]string](t, w)
	assert.Equal(t, "No journeys available for route BUE → PMI on 2024-09-12", body["message"])
	d.loader.AssertNotCalled(t, "Legs", mock.Anything, mock.Anything)
}

func TestSearch_NoJourneys(t *testing.T) {
	d := newDeps()
	q := journey.Query{Date: travelDate, Origin: "PMI", Destination: "BUE"}
	d.cache.On("Get", mock.Anything, q).Return(nil, false, nil)
	d.loader.On("Legs", mock.Anything, travelDate).Return(catalogLegs(t), nil)
	d.cache.On("Set", mock.Anything, q, mock.Anything).Return(nil)

	w := serve(d.router(0), http.MethodGet, "/api/v1/journeys/search?date=2024-09-12&from=PMI&to=BUE", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[map[string]string](t, w)
	assert.Equal(t, "No journeys available for route PMI → BUE on 2024-09-12", body["message"])
	d.cache.AssertCalled(t, "Set", mock.Anything, q, mock.Anything)
}

func TestSearch_ParameterAliases(t *testing.T) {
	d := newDeps()
	d.cache.On("Get", mock.Anything, searchQuery()).Return(nil, false, nil)
	d.loader.On("Legs", mock.Anything, travelDate).Return(catalogLegs(t), nil)
	d.cache.On("Set", mock.Anything, searchQuery(), mock.Anything).Return(nil)

	w := serve(d.router(0), http.MethodGet, "/api/v1/journeys/search?date=2024-09-12&origin=BUE&destination=PMI", "")

	assert.Equal(t, http.StatusOK, w.Code)
	d.loader.AssertExpectations(t)
}

func TestSearch_TodayIsAccepted(t *testing.T) {
	d := newDeps()
	q := journey.Query{Date: journey.DateOf(today), Origin: "BUE", Destination: "PMI"}
	d.cache.On("Get", mock.Anything, q).Return(nil, false, nil)
	d.loader.On("Legs", mock.Anything, q.Date).Return(nil, nil)
	d.cache.On("Set", mock.Anything, q, mock.Anything).Return(nil)

	w := serve(d.router(0), http.MethodGet, "/api/v1/journeys/search?date=2024-09-10&from=BUE&to=PMI", "")

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSearch_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing date", "from=BUE&to=PMI", http.StatusUnprocessableEntity},
		{"missing origin", "date=2024-09-12&to=PMI", http.StatusUnprocessableEntity},
		{"missing destination", "date=2024-09-12&from=BUE", http.StatusUnprocessableEntity},
		{"malformed date", "date=12-09-2024&from=BUE&to=PMI", http.StatusUnprocessableEntity},
		{"impossible date", "date=2024-02-30&from=BUE&to=PMI", http.StatusUnprocessableEntity},
		{"lowercase origin", "date=2024-09-12&from=bue&to=PMI", http.StatusUnprocessableEntity},
		{"long destination", "date=2024-09-12&from=BUE&to=PMIX", http.StatusUnprocessableEntity},
		{"digits in code", "date=2024-09-12&from=B1E&to=PMI", http.StatusUnprocessableEntity},
		{"same city", "date=2024-09-12&from=BUE&to=BUE", http.StatusBadRequest},
		{"past date", "date=2024-09-09&from=BUE&to=PMI", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps()
			w := serve(d.router(0), http.MethodGet, "/api/v1/journeys/search?"+tt.query, "")

			assert.Equal(t, tt.status, w.Code)
			body := decodeBody[map[string]string](t, w)
			assert.NotEmpty(t, body["error"])
			d.cache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
			d.loader.AssertNotCalled(t, "Legs", mock.Anything, mock.Anything)
		})
	}
}

func TestSearch_CatalogUnavailable(t *testing.T) {
	d := newDeps()
	d.cache.On("Get", mock.Anything, searchQuery()).Return(nil, false, nil)
	d.loader.On("Legs", mock.Anything, travelDate).
		Return(nil, fmt.Errorf("%w: feed after 3 attempts", catalog.ErrUnavailable))

	w := serve(d.router(0), http.MethodGet, searchURL, "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeBody[map[string]string](t, w)
	assert.Equal(t, "flight data unavailable", body["error"])
	d.cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestSearch_LoaderError(t *testing.T) {
	d := newDeps()
	d.cache.On("Get", mock.Anything, searchQuery()).Return(nil, false, nil)
	d.loader.On("Legs", mock.Anything, travelDate).Return(nil, fmt.Errorf("unexpected"))

	w := serve(d.router(0), http.MethodGet, searchURL, "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSearch_CacheErrorsAreNotFatal(t *testing.T) {
	d := newDeps()
	d.cache.On("Get", mock.Anything, searchQuery()).Return(nil, false, fmt.Errorf("redis down"))
	d.loader.On("Legs", mock.Anything, travelDate).Return(catalogLegs(t), nil)
	d.cache.On("Set", mock.Anything, searchQuery(), mock.Anything).Return(fmt.Errorf("redis down"))

	w := serve(d.router(0), http.MethodGet, searchURL, "")

	assert.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[[]journey.Journey](t, w)
	assert.Len(t, got, 1)
}

func TestSearch_RateLimited(t *testing.T) {
	d := newDeps()
	d.cache.On("Get", mock.Anything, mock.Anything).Return([]journey.Journey{}, true, nil)

	router := d.router(2)
	first := serve(router, http.MethodGet, searchURL, "")
	assert.Equal(t, http.StatusOK, first.Code)

	var last *httptest.ResponseRecorder
	for n := 0; n < 5; n++ {
		last = serve(router, http.MethodGet, searchURL, "")
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
}

func TestSearch_NoAuthRequired(t *testing.T) {
	d := newDeps()
	d.cache.On("Get", mock.Anything, mock.Anything).Return([]journey.Journey{}, true, nil)

	w := serve(d.router(0), http.MethodGet, searchURL, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// ---- POST /api/v1/catalog/refresh ----

func TestRefreshCatalog_Success(t *testing.T) {
	d := newDeps()
	snap := &storage.Snapshot{ID: uuid.New(), LegCount: 3, CreatedAt: today}
	d.loader.On("Refresh", mock.Anything).Return(snap, nil)
	d.cache.On("Purge", mock.Anything).Return(4, nil)

	w := serve(d.router(0), http.MethodPost, "/api/v1/catalog/refresh", testToken)

	assert.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[storage.Snapshot](t, w)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, 3, got.LegCount)
	d.loader.AssertExpectations(t)
	d.cache.AssertExpectations(t)
}

func TestRefreshCatalog_InvalidatesCachedResults(t *testing.T) {
	d := newDeps()
	stale := journey.Search(catalogLegs(t), searchQuery())
	hit := d.cache.On("Get", mock.Anything, searchQuery()).Return(stale, true, nil)
	d.cache.On("Purge", mock.Anything).
		Run(func(mock.Arguments) { hit.ReturnArguments = mock.Arguments{nil, false, nil} }).
		Return(1, nil)
	d.cache.On("Set", mock.Anything, searchQuery(), mock.Anything).Return(nil)
	d.loader.On("Refresh", mock.Anything).Return(&storage.Snapshot{ID: uuid.New(), LegCount: 0}, nil)
	d.loader.On("Legs", mock.Anything, travelDate).Return([]journey.FlightLeg{}, nil)

	router := d.router(10)

	before := serve(router, http.MethodGet, searchURL, "")
	require.Equal(t, http.StatusOK, before.Code)
	assert.Len(t, decodeBody[[]journey.Journey](t, before), 1)
	d.loader.AssertNotCalled(t, "Legs", mock.Anything, mock.Anything)

	refresh := serve(router, http.MethodPost, "/api/v1/catalog/refresh", testToken)
	require.Equal(t, http.StatusOK, refresh.Code)
	d.cache.AssertCalled(t, "Purge", mock.Anything)

	after := serve(router, http.MethodGet, searchURL, "")
	require.Equal(t, http.StatusOK, after.Code)
	body := decodeBody[map[string]string](t, after)
	assert.Equal(t, "No journeys available for route BUE → PMI on 2024-09-12", body["message"])
	d.loader.AssertCalled(t, "Legs", mock.Anything, travelDate)
}

func TestRefreshCatalog_PurgeErrorIsNotFatal(t *testing.T) {
	d := newDeps()
	d.loader.On("Refresh", mock.Anything).Return(&storage.Snapshot{ID: uuid.New(), LegCount: 3}, nil)
	d.cache.On("Purge", mock.Anything).Return(0, fmt.Errorf("redis down"))

	w := serve(d.router(0), http.MethodPost, "/api/v1/catalog/refresh", testToken)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefreshCatalog_FeedUnavailable(t *testing.T) {
	d := newDeps()
	d.loader.On("Refresh", mock.Anything).Return(nil, fmt.Errorf("%w: all feeds down", catalog.ErrUnavailable))

	w := serve(d.router(0), http.MethodPost, "/api/v1/catalog/refresh", testToken)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	d.cache.AssertNotCalled(t, "Purge", mock.Anything)
}

func TestRefreshCatalog_StoreError(t *testing.T) {
	d := newDeps()
	d.loader.On("Refresh", mock.Anything).Return(nil, fmt.Errorf("storing catalog snapshot: copy failed"))

	w := serve(d.router(0), http.MethodPost, "/api/v1/catalog/refresh", testToken)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ---- GET /api/v1/catalog ----

func TestCatalogStatus_Found(t *testing.T) {
	d := newDeps()
	snap := &storage.Snapshot{ID: uuid.New(), LegCount: 12, CreatedAt: today}
	d.loader.On("Latest", mock.Anything).Return(snap, nil)

	w := serve(d.router(0), http.MethodGet, "/api/v1/catalog", testToken)

	assert.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[storage.Snapshot](t, w)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, 12, got.LegCount)
	assert.True(t, today.Equal(got.CreatedAt))
}

func TestCatalogStatus_NotFound(t *testing.T) {
	d := newDeps()
	d.loader.On("Latest", mock.Anything).Return(nil, nil)

	w := serve(d.router(0), http.MethodGet, "/api/v1/catalog", testToken)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogStatus_Error(t *testing.T) {
	d := newDeps()
	d.loader.On("Latest", mock.Anything).Return(nil, fmt.Errorf("db down"))

	w := serve(d.router(0), http.MethodGet, "/api/v1/catalog", testToken)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ---- GET /api/v1/health ----

func TestHealth_OK(t *testing.T) {
	w := serve(newDeps().router(0), http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[map[string]string](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
	assert.Equal(t, "ok", body["redis"])
}

func TestHealth_DBDown(t *testing.T) {
	d := newDeps()
	d.db.err = fmt.Errorf("db unreachable")

	w := serve(d.router(0), http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeBody[map[string]string](t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "error", body["db"])
	assert.Equal(t, "ok", body["redis"])
}

func TestHealth_RedisDown(t *testing.T) {
	d := newDeps()
	d.redis.err = fmt.Errorf("redis unreachable")

	w := serve(d.router(0), http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decodeBody[map[string]string](t, w)
	assert.Equal(t, "error", body["redis"])
}

// ---- Auth middleware ----

func TestBearerAuth_NoHeader(t *testing.T) {
	w := serve(newDeps().router(0), http.MethodGet, "/api/v1/catalog", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuth_WrongToken(t *testing.T) {
	w := serve(newDeps().router(0), http.MethodPost, "/api/v1/catalog/refresh", "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuth_MissingBearerPrefix(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	req.Header.Set("Authorization", testToken)
	w := httptest.NewRecorder()
	newDeps().router(0).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuth_EmptyConfiguredToken(t *testing.T) {
	d := newDeps()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := api.NewRouter(api.NewHandlers(d.loader, d.cache, log), api.RouterConfig{}, d.db, d.redis, log)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
