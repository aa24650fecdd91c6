package dataaccess

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/acessivel/mobility/internal/cache"
	"github.com/acessivel/mobility/internal/docstore"
	mobilityerrors "github.com/acessivel/mobility/internal/errors"
)

// Profile is a user with the data shown alongside it.
type Profile struct {
	// User is nil when the user document does not exist.
	User              Record   `json:"user"`
	EmergencyContacts []Record `json:"emergencyContacts"`
	RecentRides       []Record `json:"recentRides"`
}

func (p *Profile) clone() *Profile {
	out := &Profile{
		EmergencyContacts: cloneRecords(p.EmergencyContacts),
		RecentRides:       cloneRecords(p.RecentRides),
	}
	if p.User != nil {
		out.User = cloneValue(p.User).(map[string]any)
	}
	return out
}

// CompleteUserProfile loads the user, up to five emergency contacts and the
// three latest rides in parallel and caches the composite.
func (h *Helpers) CompleteUserProfile(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, mobilityerrors.InvalidInput(mobilityerrors.ServiceBackend, "user id is required")
	}
	key := "complete_profile_" + userID
	if profile, ok := cache.GetAs[*Profile](h.cache(), key); ok {
		return profile.clone(), nil
	}

	var (
		user     *docstore.Document
		contacts *docstore.Page
		rides    *docstore.Page
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := h.store.Get(gctx, docstore.Ref{Collection: CollectionUsers, ID: userID})
		user = doc
		return err
	})
	g.Go(func() error {
		page, err := h.store.Query(gctx, docstore.Query{
			Collection: CollectionEmergencyContacts,
			Filters:    []docstore.Filter{docstore.Where("usuarioId", userID)},
			Limit:      profileContactsLimit,
		})
		contacts = page
		return err
	})
	g.Go(func() error {
		page, err := h.store.Query(gctx, docstore.Query{
			Collection: CollectionRides,
			Filters:    []docstore.Filter{docstore.Where("usuarioId", userID)},
			OrderBy:    "criadaEm",
			Descending: true,
			Limit:      profileRecentRideLimit,
		})
		rides = page
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, mobilityerrors.Backend("failed to load user profile", err)
	}

	profile := &Profile{
		EmergencyContacts: flatten(contacts.Docs),
		RecentRides:       flatten(rides.Docs),
	}
	if user != nil {
		profile.User = user.Flatten()
	}

	h.remember(key, profile, UserProfileTTL)
	h.monitor.TrackRead(3)
	return profile.clone(), nil
}
