package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/acessivel/mobility/internal/dataaccess"
	"github.com/acessivel/mobility/internal/docstore"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
	"github.com/acessivel/mobility/internal/geocoding"
)

const maxBodyBytes = 1 << 20

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Postal codes

func (s *Server) getCep(w http.ResponseWriter, r *http.Request) {
	addr, err := s.c.Postal.GetAddressByCep(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if addr == nil {
		s.respondMessage(w, http.StatusNotFound, "CEP not found")
		return
	}
	s.respondJSON(w, http.StatusOK, addr)
}

func (s *Server) searchCeps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addrs, err := s.c.Postal.SearchCepsByAddress(r.Context(), q.Get("uf"), q.Get("city"), q.Get("street"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, addrs)
}

// Geocoding

func (s *Server) searchLocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(r, mobilityerrors.ServiceNominatim, "limit")
	if err != nil {
		s.respondError(w, err)
		return
	}

	bounded, _ := strconv.ParseBool(q.Get("bounded"))
	locs, err := s.c.Geocoding.SearchLocations(r.Context(), geocoding.SearchOptions{
		Query:       q.Get("q"),
		Limit:       limit,
		CountryCode: q.Get("country"),
		Bounded:     bounded,
		Language:    q.Get("lang"),
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, locs)
}

func (s *Server) reverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, err := floatParam(r, mobilityerrors.ServiceNominatim, "lat", true)
	if err != nil {
		s.respondError(w, err)
		return
	}
	lon, err := floatParam(r, mobilityerrors.ServiceNominatim, "lon", true)
	if err != nil {
		s.respondError(w, err)
		return
	}
	zoom, err := intParam(r, mobilityerrors.ServiceNominatim, "zoom")
	if err != nil {
		s.respondError(w, err)
		return
	}

	loc, err := s.c.Geocoding.ReverseGeocode(r.Context(), geocoding.ReverseOptions{
		Latitude:  lat,
		Longitude: lon,
		Zoom:      zoom,
		Language:  r.URL.Query().Get("lang"),
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	if loc == nil {
		s.respondMessage(w, http.StatusNotFound, "no address at this location")
		return
	}
	s.respondJSON(w, http.StatusOK, loc)
}

func (s *Server) searchAddress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locs, err := s.c.Geocoding.SearchBrazilianAddress(r.Context(), q.Get("address"), q.Get("city"), q.Get("state"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, locs)
}

func (s *Server) searchPOI(w http.ResponseWriter, r *http.Request) {
	lat, err := floatParam(r, mobilityerrors.ServiceNominatim, "lat", true)
	if err != nil {
		s.respondError(w, err)
		return
	}
	lon, err := floatParam(r, mobilityerrors.ServiceNominatim, "lon", true)
	if err != nil {
		s.respondError(w, err)
		return
	}
	radius, err := floatParam(r, mobilityerrors.ServiceNominatim, "radius", false)
	if err != nil {
		s.respondError(w, err)
		return
	}

	locs, err := s.c.Geocoding.SearchNearbyPOI(r.Context(), lat, lon, r.URL.Query().Get("type"), radius)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, locs)
}

// Data access

func (s *Server) availableDrivers(w http.ResponseWriter, r *http.Request) {
	maxDistance, err := floatParam(r, mobilityerrors.ServiceBackend, "maxDistance", false)
	if err != nil {
		s.respondError(w, err)
		return
	}
	drivers, err := s.c.Data.AvailableDrivers(r.Context(), maxDistance)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, drivers)
}

func (s *Server) nearbyUsers(w http.ResponseWriter, r *http.Request) {
	lat, err := floatParam(r, mobilityerrors.ServiceBackend, "lat", true)
	if err != nil {
		s.respondError(w, err)
		return
	}
	lng, err := floatParam(r, mobilityerrors.ServiceBackend, "lng", true)
	if err != nil {
		s.respondError(w, err)
		return
	}
	radius, err := floatParam(r, mobilityerrors.ServiceBackend, "radius", false)
	if err != nil {
		s.respondError(w, err)
		return
	}

	users, err := s.c.Data.NearbyUsers(r.Context(), lat, lng, radius)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, users)
}

func (s *Server) userProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.c.Data.CompleteUserProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if profile.User == nil {
		s.respondMessage(w, http.StatusNotFound, "user not found")
		return
	}
	s.respondJSON(w, http.StatusOK, profile)
}

func (s *Server) rideHistory(w http.ResponseWriter, r *http.Request) {
	pageSize, err := intParam(r, mobilityerrors.ServiceBackend, "pageSize")
	if err != nil {
		s.respondError(w, err)
		return
	}
	page, err := s.c.Data.RideHistory(r.Context(), chi.URLParam(r, "id"), pageSize, nil)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

func (s *Server) rideStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.c.Data.RideStatistics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) collectionPage(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 0 {
		s.respondError(w, invalidParam(mobilityerrors.ServiceBackend, "page"))
		return
	}
	pageSize, err := intParam(r, mobilityerrors.ServiceBackend, "pageSize")
	if err != nil {
		s.respondError(w, err)
		return
	}

	q := r.URL.Query()
	result, err := s.c.Data.Pagination().Page(r.Context(), chi.URLParam(r, "collection"), dataaccess.Constraints{
		OrderBy:    q.Get("orderBy"),
		Descending: q.Get("order") == "desc",
	}, pageSize, page)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

type updateResponse struct {
	Updated bool `json:"updated"`
}

// updateUser writes only the fields of the body that differ from the
// stored user.
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var proposed map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&proposed); err != nil {
		s.respondError(w, mobilityerrors.InvalidInput(mobilityerrors.ServiceBackend, "request body must be a JSON object"))
		return
	}

	ref := docstore.Ref{Collection: dataaccess.CollectionUsers, ID: chi.URLParam(r, "id")}
	current, err := s.c.Store.Get(r.Context(), ref)
	if err != nil {
		s.respondError(w, mobilityerrors.Backend("failed to read user", err))
		return
	}
	s.c.Quota.TrackRead(1)
	if current == nil {
		s.respondMessage(w, http.StatusNotFound, "user not found")
		return
	}

	updated, err := s.c.Data.ConditionalUpdate(r.Context(), ref, proposed, current.Data)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, updateResponse{Updated: updated})
}

type batchOperation struct {
	Type string         `json:"type" validate:"required,oneof=set update delete"`
	Path string         `json:"path" validate:"required"`
	Data map[string]any `json:"data"`
}

type batchRequest struct {
	Operations []batchOperation `json:"operations" validate:"required,min=1,max=500,dive"`
}

type batchResponse struct {
	Applied int `json:"applied"`
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, mobilityerrors.InvalidInput(mobilityerrors.ServiceBackend, "request body must be a JSON batch"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, mobilityerrors.InvalidInput(mobilityerrors.ServiceBackend, "invalid batch: "+err.Error()))
		return
	}

	ops := make([]docstore.Op, 0, len(req.Operations))
	for _, o := range req.Operations {
		opType, _ := docstore.ParseOpType(o.Type)
		ops = append(ops, docstore.Op{Type: opType, Ref: docstore.ParseRef(o.Path), Data: o.Data})
	}

	if err := s.c.Data.BatchWrite(r.Context(), ops); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, batchResponse{Applied: len(ops)})
}

// Operations

func (s *Server) quotaUsage(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.c.Quota.Usage())
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.c.CacheStats())
}

type cleanResponse struct {
	Removed map[string]int `json:"removed"`
}

func (s *Server) cleanCache(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, cleanResponse{Removed: s.c.CleanCaches()})
}
