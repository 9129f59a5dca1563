// Package api serves the published dataset over HTTP and MCP. Both
// transports dispatch to the same kit.Endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/swiss-bandmap/pkg/dataset"
	"github.com/hazyhaar/swiss-bandmap/pkg/gazetteer"
	"github.com/hazyhaar/swiss-bandmap/pkg/kit"
)

// DefaultStaleAfter is the age past which a dataset is reported stale.
const DefaultStaleAfter = 24 * time.Hour

// Options configures the router. Store is required.
type Options struct {
	Store *dataset.Store
	// Index enables /v1/match; nil answers 503.
	Index      *gazetteer.Index
	StaleAfter time.Duration
	// AdminTokenHash is an argon2id hash from HashToken. Empty disables
	// the admin routes.
	AdminTokenHash string
	// Registry, when set, receives the HTTP metrics and is exposed on /metrics.
	Registry *prometheus.Registry
	// MCP, when set, is mounted on /mcp.
	MCP     *server.MCPServer
	Logger  *slog.Logger
	Now     func() time.Time
	Version string
}

func (o *Options) withDefaults() {
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultStaleAfter
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// NewRouter returns an http.Handler with all bandmap API routes.
func NewRouter(opts Options) http.Handler {
	opts.withDefaults()
	logger := opts.Logger

	mux := http.NewServeMux()
	h := &handler{
		searchGigs:         kit.Logging(logger, "search_gigs")(searchGigsEndpoint(opts.Store)),
		listMunicipalities: kit.Logging(logger, "list_municipalities")(listMunicipalitiesEndpoint(opts.Store)),
		getMunicipality:    kit.Logging(logger, "get_municipality")(getMunicipalityEndpoint(opts.Store)),
		matchLocation:      kit.Logging(logger, "match_location")(matchLocationEndpoint(opts.Store, opts.Index)),
		summary:            kit.Logging(logger, "dataset_summary")(datasetSummaryEndpoint(opts.Store, opts.StaleAfter, opts.Now)),
		store:              opts.Store,
		staleAfter:         opts.StaleAfter,
		now:                opts.Now,
		logger:             logger,
		version:            opts.Version,
	}

	mux.HandleFunc("GET /v1/gigs", h.handleSearchGigs)
	mux.HandleFunc("GET /v1/municipalities", h.handleListMunicipalities)
	mux.HandleFunc("GET /v1/municipalities/{name}", h.handleGetMunicipality)
	mux.HandleFunc("GET /v1/geo", h.handleGeo)
	mux.HandleFunc("GET /v1/metadata", h.handleMetadata)
	mux.HandleFunc("GET /v1/match", h.handleMatch)
	mux.HandleFunc("GET /v1/health", h.handleHealth)

	if opts.AdminTokenHash != "" {
		mux.HandleFunc("POST /v1/admin/reload", requireToken(opts.AdminTokenHash, logger, h.handleReload))
	} else {
		logger.Info("admin routes disabled, no admin token hash configured")
	}

	if opts.MCP != nil {
		mux.Handle("/mcp", server.NewStreamableHTTPServer(opts.MCP))
	}

	var root http.Handler = mux
	if opts.Registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
		root = newHTTPMetrics(opts.Registry).instrument(mux)
	}
	return cors(kit.RequestID(root))
}

type handler struct {
	searchGigs         kit.Endpoint
	listMunicipalities kit.Endpoint
	getMunicipality    kit.Endpoint
	matchLocation      kit.Endpoint
	summary            kit.Endpoint
	store              *dataset.Store
	staleAfter         time.Duration
	now                func() time.Time
	logger             *slog.Logger
	version            string
}

// --- gigs ---

func (h *handler) handleSearchGigs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &searchGigsReq{Query: q.Get("q"), Municipality: q.Get("municipality")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		req.Limit = n
	}
	h.serve(w, r, h.searchGigs, req)
}

// --- municipalities ---

func (h *handler) handleListMunicipalities(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.listMunicipalities, nil)
}

func (h *handler) handleGetMunicipality(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.getMunicipality, &municipalityReq{Name: r.PathValue("name")})
}

// --- geometry and metadata ---

func (h *handler) handleGeo(w http.ResponseWriter, _ *http.Request) {
	ds := h.store.Current()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, ErrNoDataset.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ds.Geo)
}

func (h *handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.summary, nil)
}

// --- match ---

func (h *handler) handleMatch(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.matchLocation, &matchReq{Location: r.URL.Query().Get("location")})
}

// --- health ---

type healthResponse struct {
	Status         string     `json:"status"`
	Version        string     `json:"version,omitempty"`
	Events         int        `json:"events"`
	Municipalities int        `json:"municipalities"`
	GeneratedAt    *time.Time `json:"generated_at,omitempty"`
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "empty", Version: h.version}
	if md, ok := h.store.Metadata(); ok {
		resp.Status = "ok"
		if md.Stale(h.now(), h.staleAfter) {
			resp.Status = "stale"
		}
		resp.Events = md.TotalEvents
		resp.Municipalities = md.MunicipalitiesWithEvents
		resp.GeneratedAt = &md.GeneratedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- admin ---

func (h *handler) handleReload(w http.ResponseWriter, _ *http.Request) {
	if err := h.store.Reload(); err != nil {
		h.logger.Error("reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	md, _ := h.store.Metadata()
	h.logger.Info("dataset reloaded", "run_id", md.RunID, "events", md.TotalEvents)
	writeJSON(w, http.StatusOK, md)
}

// --- helpers ---

func (h *handler) serve(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	resp, err := ep(r.Context(), req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNoDataset), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+kit.RequestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", kit.RequestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
