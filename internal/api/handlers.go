package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/neexbeast/journey-search/internal/catalog"
	"github.com/neexbeast/journey-search/internal/journey"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	catalog CatalogLoader
	cache   JourneyCache
	log     *slog.Logger
	now     func() time.Time
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithClock replaces the clock used to reject past travel dates.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handlers) { h.now = now }
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(loader CatalogLoader, cache JourneyCache, log *slog.Logger, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		catalog: loader,
		cache:   cache,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// firstParam returns the first non-empty query parameter among names.
func firstParam(r *http.Request, names ...string) string {
	values := r.URL.Query()
	for _, n := range names {
		if v := values.Get(n); v != "" {
			return v
		}
	}
	return ""
}

// parseQuery reads and validates the search parameters. Returned errors are
// client errors of the 422 kind.
func parseQuery(r *http.Request) (journey.Query, error) {
	rawDate := firstParam(r, "date")
	origin := firstParam(r, "from", "origin")
	destination := firstParam(r, "to", "destination")

	switch {
	case rawDate == "":
		return journey.Query{}, errors.New("missing query parameter: date")
	case origin == "":
		return journey.Query{}, errors.New("missing query parameter: from")
	case destination == "":
		return journey.Query{}, errors.New("missing query parameter: to")
	}

	date, err := journey.ParseDate(rawDate)
	if err != nil {
		return journey.Query{}, fmt.Errorf("date %q is not in YYYY-MM-DD format", rawDate)
	}

	q := journey.Query{Date: date, Origin: origin, Destination: destination}
	if err := q.Validate(); err != nil {
		return journey.Query{}, err
	}
	return q, nil
}

// SearchJourneys handles GET /api/v1/journeys/search.
// Cache hit → return. Miss → load catalog, search, cache, return.
func (h *Handlers) SearchJourneys(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if q.Origin == q.Destination {
		writeError(w, http.StatusBadRequest, "origin and destination must be different")
		return
	}
	if q.Date.Compare(journey.DateOf(h.now())) < 0 {
		writeError(w, http.StatusBadRequest, "date cannot be in the past")
		return
	}

	ctx := r.Context()

	cached, ok, err := h.cache.Get(ctx, q)
	if err != nil {
		h.log.Warn("cache get failed", "date", q.Date, "origin", q.Origin, "destination", q.Destination, "err", err)
	}
	if ok {
		writeJourneys(w, q, cached)
		return
	}

	legs, err := h.catalog.Legs(ctx, q.Date)
	if err != nil {
		if errors.Is(err, catalog.ErrUnavailable) {
			h.log.Error("catalog unavailable", "date", q.Date, "err", err)
			writeError(w, http.StatusServiceUnavailable, catalog.ErrUnavailable.Error())
			return
		}
		h.log.Error("loading catalog failed", "date", q.Date, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	journeys := journey.Search(legs, q)
	h.log.Debug("journey search",
		"date", q.Date, "origin", q.Origin, "destination", q.Destination,
		"legs", len(legs), "journeys", len(journeys))

	if err := h.cache.Set(ctx, q, journeys); err != nil {
		h.log.Warn("cache set failed", "date", q.Date, "origin", q.Origin, "destination", q.Destination, "err", err)
	}

	writeJourneys(w, q, journeys)
}

func writeJourneys(w http.ResponseWriter, q journey.Query, journeys []journey.Journey) {
	if len(journeys) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("No journeys available for route %s → %s on %s", q.Origin, q.Destination, q.Date),
		})
		return
	}
	writeJSON(w, http.StatusOK, journeys)
}

// RefreshCatalog handles POST /api/v1/catalog/refresh.
// Downloads the catalog, replaces the stored snapshot and drops every cached
// search result so the next searches see the new catalog.
func (h *Handlers) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Refresh(r.Context())
	if err != nil {
		if errors.Is(err, catalog.ErrUnavailable) {
			h.log.Error("catalog refresh: feed unavailable", "err", err)
			writeError(w, http.StatusServiceUnavailable, catalog.ErrUnavailable.Error())
			return
		}
		h.log.Error("catalog refresh failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store catalog snapshot")
		return
	}

	removed, err := h.cache.Purge(r.Context())
	if err != nil {
		h.log.Warn("cache purge failed after refresh", "snapshot", snap.ID, "err", err)
	} else {
		h.log.Info("cached results invalidated", "snapshot", snap.ID, "removed", removed)
	}

	writeJSON(w, http.StatusOK, snap)
}

// CatalogStatus handles GET /api/v1/catalog.
func (h *Handlers) CatalogStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Latest(r.Context())
	if err != nil {
		h.log.Error("loading latest snapshot failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no catalog snapshot stored, POST /api/v1/catalog/refresh first")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
