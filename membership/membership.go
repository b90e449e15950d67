// Package membership decides which platform membership the tracker loads.
package membership

import (
	"context"
	"errors"

	"github.com/kpango/glg"

	"github.com/rking788/objective-tracker/models"
	"github.com/rking788/objective-tracker/status"
)

// Fetcher lists the memberships bound to the current access token.
type Fetcher interface {
	GetMemberships(ctx context.Context) ([]*models.Membership, error)
}

// Preferences persists the chosen membership.
type Preferences interface {
	Membership(ctx context.Context) (*models.Membership, error)
	SetMembership(ctx context.Context, m *models.Membership) error
}

// Chooser asks the user to pick one of several memberships. Choose blocks until a choice
// is made or ctx is done.
type Chooser interface {
	Choose(ctx context.Context, candidates []*models.Membership) (*models.Membership, error)
}

// Resolver applies the selection policy: a persisted choice wins, a single candidate is
// picked automatically, anything else goes to the Chooser.
type Resolver struct {
	fetcher Fetcher
	prefs   Preferences
	chooser Chooser
}

// NewResolver creates a Resolver.
func NewResolver(fetcher Fetcher, prefs Preferences, chooser Chooser) *Resolver {
	return &Resolver{fetcher: fetcher, prefs: prefs, chooser: chooser}
}

// Resolve returns the membership to operate on.
func (r *Resolver) Resolve(ctx context.Context) (*models.Membership, error) {
	memberships, err := r.fetcher.GetMemberships(ctx)
	if err != nil {
		glg.Errorf("Failed to load memberships: %s", err.Error())
		return nil, status.Errorf(status.KindFetchFailed, err)
	}
	if len(memberships) == 0 {
		return nil, status.Errorf(status.KindNoMemberships, errors.New("no Destiny memberships found for this account"))
	}

	persisted, err := r.prefs.Membership(ctx)
	if err != nil {
		return nil, err
	}
	if persisted != nil {
		glg.Debugf("Using persisted membership %s", persisted)
		return withDisplayName(persisted, memberships), nil
	}

	var chosen *models.Membership
	if len(memberships) == 1 {
		chosen = memberships[0]
		glg.Infof("Found a single membership, selecting %s", chosen)
	} else {
		glg.Infof("Found %d memberships, asking for a choice", len(memberships))
		chosen, err = r.chooser.Choose(ctx, memberships)
		if err != nil {
			return nil, err
		}
		if !contains(memberships, chosen) {
			return nil, errors.New("chosen membership is not one of the candidates")
		}
	}

	if err := r.prefs.SetMembership(ctx, chosen); err != nil {
		return nil, err
	}

	return chosen, nil
}

// withDisplayName fills in the display name of a persisted membership from the fetched set
// when it is still there. The persisted value is used as-is otherwise.
func withDisplayName(persisted *models.Membership, memberships []*models.Membership) *models.Membership {
	for _, m := range memberships {
		if m.MembershipType == persisted.MembershipType && m.MembershipID == persisted.MembershipID {
			return m
		}
	}

	return persisted
}

func contains(memberships []*models.Membership, m *models.Membership) bool {
	if m == nil {
		return false
	}
	for _, candidate := range memberships {
		if candidate.MembershipType == m.MembershipType && candidate.MembershipID == m.MembershipID {
			return true
		}
	}

	return false
}
