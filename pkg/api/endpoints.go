package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/swiss-bandmap/pkg/dataset"
	"github.com/hazyhaar/swiss-bandmap/pkg/gazetteer"
	"github.com/hazyhaar/swiss-bandmap/pkg/gig"
	"github.com/hazyhaar/swiss-bandmap/pkg/kit"
)

var (
	ErrBadRequest  = errors.New("bad request")
	ErrNotFound    = errors.New("not found")
	ErrNoDataset   = errors.New("no dataset published yet")
	ErrUnavailable = errors.New("municipality index not loaded")
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Shared request/response types used by both HTTP and MCP transports.

type searchGigsReq struct {
	Query        string
	Municipality string
	Limit        int
}

type gigsResponse struct {
	Count int         `json:"count"`
	Gigs  []gig.Event `json:"gigs"`
}

type municipalitiesResponse struct {
	Count          int               `json:"count"`
	Municipalities []dataset.Summary `json:"municipalities"`
}

type municipalityReq struct {
	Name string
}

type matchReq struct {
	Location string
}

type matchResponse struct {
	Location     string `json:"location"`
	Normalized   string `json:"normalized"`
	Matched      bool   `json:"matched"`
	Municipality string `json:"municipality,omitempty"`
	CantonCode   string `json:"canton_code,omitempty"`
	CantonName   string `json:"canton_name,omitempty"`
	BFSNumber    string `json:"bfs_number,omitempty"`
	Events       int    `json:"events"`
}

type summaryResponse struct {
	Loaded    bool              `json:"loaded"`
	Stale     bool              `json:"stale"`
	Metadata  *dataset.Metadata `json:"metadata,omitempty"`
	Unmatched []string          `json:"unmatched_locations,omitempty"`
}

// Endpoints backed by the dataset store and the municipality index.

func searchGigsEndpoint(store *dataset.Store) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*searchGigsReq)
		if !store.Loaded() {
			return nil, ErrNoDataset
		}
		limit := req.Limit
		switch {
		case limit <= 0:
			limit = defaultLimit
		case limit > maxLimit:
			limit = maxLimit
		}
		gigs := store.Search(strings.TrimSpace(req.Query), req.Municipality, limit)
		return gigsResponse{Count: len(gigs), Gigs: gigs}, nil
	}
}

func listMunicipalitiesEndpoint(store *dataset.Store) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		if !store.Loaded() {
			return nil, ErrNoDataset
		}
		sums := store.Summaries()
		return municipalitiesResponse{Count: len(sums), Municipalities: sums}, nil
	}
}

func getMunicipalityEndpoint(store *dataset.Store) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*municipalityReq)
		if req.Name == "" {
			return nil, fmt.Errorf("%w: missing municipality name", ErrBadRequest)
		}
		if !store.Loaded() {
			return nil, ErrNoDataset
		}
		d, ok := store.Municipality(req.Name)
		if !ok {
			return nil, fmt.Errorf("%w: no events for municipality %q", ErrNotFound, req.Name)
		}
		return d, nil
	}
}

func matchLocationEndpoint(store *dataset.Store, idx *gazetteer.Index) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*matchReq)
		if req.Location == "" {
			return nil, fmt.Errorf("%w: missing location", ErrBadRequest)
		}
		if idx == nil {
			return nil, ErrUnavailable
		}

		resp := matchResponse{Location: req.Location, Normalized: idx.Normalize(req.Location)}
		name, ok := idx.Match(req.Location)
		if !ok {
			return resp, nil
		}
		resp.Matched = true
		resp.Municipality = name
		if rec, ok := idx.Record(name); ok {
			resp.CantonCode = rec.CantonCode
			resp.CantonName = rec.CantonName
			resp.BFSNumber = rec.BFSNumber
		}
		if d, ok := store.Municipality(name); ok {
			resp.Events = len(d.Events)
		}
		return resp, nil
	}
}

func datasetSummaryEndpoint(store *dataset.Store, staleAfter time.Duration, now func() time.Time) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		ds := store.Current()
		if ds == nil {
			return summaryResponse{Stale: true}, nil
		}
		md := ds.Metadata
		return summaryResponse{
			Loaded:    true,
			Stale:     md.Stale(now(), staleAfter),
			Metadata:  &md,
			Unmatched: ds.Unmatched,
		}, nil
	}
}
