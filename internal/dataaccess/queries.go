package dataaccess

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/acessivel/mobility/internal/cache"
	"github.com/acessivel/mobility/internal/docstore"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
)

// RidePage is one page of a user's ride history.
type RidePage struct {
	Data    []Record         `json:"data"`
	Cursor  *docstore.Cursor `json:"-"`
	HasMore bool             `json:"hasMore"`
}

func (p *RidePage) clone() *RidePage {
	out := *p
	out.Data = cloneRecords(p.Data)
	return &out
}

// RideStats summarizes a user's completed rides.
type RideStats struct {
	TotalRides int   `json:"totalRides"`
	LastUpdate int64 `json:"lastUpdate"`
}

// NearbyUsers lists active users, newest first. The coordinates only key
// the cache; the backend has no geo index.
func (h *Helpers) NearbyUsers(ctx context.Context, lat, lng, radiusKm float64) ([]Record, error) {
	if radiusKm <= 0 {
		radiusKm = 10
	}
	key := fmt.Sprintf("nearby_users_%s_%s_%s", formatFloat(lat), formatFloat(lng), formatFloat(radiusKm))

	return h.cachedList(ctx, key, DefaultTTL, docstore.Query{
		Collection: CollectionUsers,
		Filters:    []docstore.Filter{docstore.Where("ativo", true)},
		OrderBy:    "criadoEm",
		Descending: true,
		Limit:      nearbyUsersLimit,
	})
}

// AvailableDrivers lists verified available drivers, best rated first.
func (h *Helpers) AvailableDrivers(ctx context.Context, maxDistance float64) ([]Record, error) {
	if maxDistance <= 0 {
		maxDistance = 5
	}
	key := fmt.Sprintf("available_drivers_%s", formatFloat(maxDistance))

	return h.cachedList(ctx, key, DriverListTTL, docstore.Query{
		Collection: CollectionDrivers,
		Filters: []docstore.Filter{
			docstore.Where("disponivel", true),
			docstore.Where("verificado", true),
		},
		OrderBy:    "avaliacaoMedia",
		Descending: true,
		Limit:      availableDriversLimit,
	})
}

func (h *Helpers) cachedList(ctx context.Context, key string, ttl time.Duration, q docstore.Query) ([]Record, error) {
	if records, ok := cache.GetAs[[]Record](h.cache(), key); ok {
		return cloneRecords(records), nil
	}

	page, err := h.store.Query(ctx, q)
	if err != nil {
		return nil, mobilityerrors.Backend(fmt.Sprintf("failed to query %s", q.Collection), err)
	}
	h.chargeReads(len(page.Docs))

	records := flatten(page.Docs)
	h.remember(key, records, ttl)
	return cloneRecords(records), nil
}

// EmergencyContacts lists the user's emergency contacts. The cache key
// names the collection so writes to it invalidate the list.
func (h *Helpers) EmergencyContacts(ctx context.Context, userID string) ([]Record, error) {
	if userID == "" {
		return nil, mobilityerrors.InvalidInput(mobilityerrors.ServiceBackend, "user id is required")
	}
	key := fmt.Sprintf("%s_%s", CollectionEmergencyContacts, userID)

	return h.cachedList(ctx, key, EmergencyContactsTTL, docstore.Query{
		Collection: CollectionEmergencyContacts,
		Filters:    []docstore.Filter{docstore.Where("usuarioId", userID)},
		Limit:      emergencyContactsLimit,
	})
}

// RideHistory returns a page of the user's rides, newest first. Only the
// first page (after == nil) is served from and stored in the cache.
func (h *Helpers) RideHistory(ctx context.Context, userID string, pageSize int, after *docstore.Cursor) (*RidePage, error) {
	if userID == "" {
		return nil, mobilityerrors.InvalidInput(mobilityerrors.ServiceBackend, "user id is required")
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	key := fmt.Sprintf("ride_history_%s_%d", userID, pageSize)

	if after == nil {
		if page, ok := cache.GetAs[*RidePage](h.cache(), key); ok {
			return page.clone(), nil
		}
	}

	result, err := h.store.Query(ctx, docstore.Query{
		Collection: CollectionRides,
		Filters:    []docstore.Filter{docstore.Where("usuarioId", userID)},
		OrderBy:    "criadaEm",
		Descending: true,
		Limit:      pageSize,
		StartAfter: after,
	})
	if err != nil {
		return nil, mobilityerrors.Backend("failed to load ride history", err)
	}
	h.chargeReads(len(result.Docs))

	page := &RidePage{
		Data:    flatten(result.Docs),
		Cursor:  result.Last,
		HasMore: len(result.Docs) == pageSize,
	}
	if after == nil {
		h.remember(key, page, RideHistoryTTL)
	}
	return page.clone(), nil
}

// RideStatistics counts the user's completed rides.
func (h *Helpers) RideStatistics(ctx context.Context, userID string) (*RideStats, error) {
	if userID == "" {
		return nil, mobilityerrors.InvalidInput(mobilityerrors.ServiceBackend, "user id is required")
	}
	key := "ride_stats_" + userID
	if stats, ok := cache.GetAs[*RideStats](h.cache(), key); ok {
		out := *stats
		return &out, nil
	}

	result, err := h.store.Query(ctx, docstore.Query{
		Collection: CollectionRides,
		Filters: []docstore.Filter{
			docstore.Where("usuarioId", userID),
			docstore.Where("status", "concluida"),
		},
		Limit: rideStatsLimit,
	})
	if err != nil {
		return nil, mobilityerrors.Backend("failed to load ride statistics", err)
	}

	stats := &RideStats{
		TotalRides: len(result.Docs),
		LastUpdate: h.clock.Now().UnixMilli(),
	}
	h.remember(key, stats, RideHistoryTTL)
	h.monitor.TrackRead(1)
	out := *stats
	return &out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
