package services

import (
	"context"
	"time"

	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/sirupsen/logrus"
)

// CatalogProvider is the read side of the catalog cache
type CatalogProvider interface {
	Get(ctx context.Context, forceRefresh bool) (models.CatalogSnapshot, error)
}

// DecisionService resolves, per user, whether to enter each catalog show
type DecisionService struct {
	catalog   CatalogProvider
	users     *UserService
	overrides *OverrideService
	now       func() time.Time
	location  *time.Location
}

// NewDecisionService creates a decision service evaluated in the market timezone
func NewDecisionService(catalog CatalogProvider, users *UserService, overrides *OverrideService) *DecisionService {
	location, err := time.LoadLocation(MarketTimezone)
	if err != nil {
		location = time.UTC
	}
	return &DecisionService{
		catalog:   catalog,
		users:     users,
		overrides: overrides,
		now:       time.Now,
		location:  location,
	}
}

// WithClock replaces the clock used to pick the candidate lottery date
func (s *DecisionService) WithClock(now func() time.Time) *DecisionService {
	s.now = now
	return s
}

// ResolveShows applies ResolveDecision across a catalog
func ResolveShows(shows []models.Show, pref *models.ParsedPreference, overrides map[string]models.Override, candidate models.Date) []models.ShowDecision {
	decisions := make([]models.ShowDecision, 0, len(shows))
	for _, show := range shows {
		var override *models.Override
		if o, ok := overrides[show.Key()]; ok {
			override = &o
		}
		decisions = append(decisions, ResolveDecision(show, pref, override, candidate))
	}
	return decisions
}

// DecisionsForUser resolves every catalog show for one user. Without a
// configured parser the stored preference is ignored and only overrides
// can opt a show in.
func (s *DecisionService) DecisionsForUser(ctx context.Context, userID string) ([]models.ShowDecision, models.CatalogSnapshot, error) {
	profile, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, models.CatalogSnapshot{}, err
	}
	catalog, err := s.catalog.Get(ctx, false)
	if err != nil {
		return nil, models.CatalogSnapshot{}, err
	}
	overrides, err := s.overrides.ForUser(ctx, userID)
	if err != nil {
		return nil, catalog, err
	}

	var pref *models.ParsedPreference
	if s.users.ParsingEnabled() {
		pref = profile.ParsedPreference
	}
	candidate := CandidateLotteryDate(s.now(), s.location)
	decisions := ResolveShows(catalog.Shows, pref, overrides, candidate)

	selected := 0
	for _, d := range decisions {
		if d.FinalDecision {
			selected++
		}
	}
	logrus.WithFields(logrus.Fields{
		"component":      "DecisionService",
		"method":         "DecisionsForUser",
		"user_id":        userID,
		"shows":          len(decisions),
		"selected":       selected,
		"candidate_date": candidate.String(),
		"stale_catalog":  catalog.Stale,
	}).Debug("Resolved show decisions")
	return decisions, catalog, nil
}
