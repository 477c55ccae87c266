package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fenilmodi00/lottery-backend/database"
	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubParser struct {
	pref  *models.ParsedPreference
	err   error
	texts []string
}

func (p *stubParser) Parse(_ context.Context, text string) (*models.ParsedPreference, error) {
	p.texts = append(p.texts, text)
	return p.pref, p.err
}

func TestUserServiceSaveAndGet(t *testing.T) {
	users := NewUserService(database.NewMemoryStore(), nil)
	ctx := context.Background()

	saved, err := users.Save(ctx, models.UserProfile{FirstName: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 2, saved.TicketQuantity)
	assert.False(t, saved.CreatedAt.IsZero())

	loaded, err := users.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", loaded.Email)

	_, err = users.Get(ctx, "missing")
	assert.True(t, errors.Is(err, shared.ErrUserNotFound))
}

func TestValidateUserID(t *testing.T) {
	for _, id := range []string{"u1", "alice", "3f0c2a9e-8d1b-4c55-9d7e-0a1b2c3d4e5f", "ada.lovelace@example.com"} {
		assert.NoError(t, ValidateUserID(id), id)
	}
	for _, id := range []string{"", "  ", "alice:evil", "al*", "a?", "a[1]", `a\b`, "a b", "a\tb"} {
		assert.Error(t, ValidateUserID(id), id)
	}
}

func TestUserServiceRejectsKeyBreakingIDs(t *testing.T) {
	store := database.NewMemoryStore()
	users := NewUserService(store, nil)
	overrides := NewOverrideService(store)
	ctx := context.Background()

	_, err := users.Save(ctx, models.UserProfile{ID: "alice"})
	require.NoError(t, err)
	_, err = users.Save(ctx, models.UserProfile{ID: "alice:evil"})
	require.Error(t, err)

	// a record planted under a colliding key is still not attributed to alice
	planted := []byte(`{"user_id":"alice:evil","platform":"broadway_direct","show_name":"Cats","should_apply":true}`)
	require.NoError(t, store.Set(ctx, "override:alice:evil:broadway_direct:cats", planted))

	catalog := staticCatalog{snapshot: models.CatalogSnapshot{Shows: endToEndCatalog()}}
	decisions := NewDecisionService(catalog, users, overrides).WithClock(decisionClock)
	got, _, err := decisions.DecisionsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Hamilton": false, "Cats": false}, decisionsByName(got))
}

func TestUserServiceSaveKeepsStoredPreference(t *testing.T) {
	parser := &stubParser{pref: &models.ParsedPreference{Genres: []string{"musical"}}}
	users := NewUserService(database.NewMemoryStore(), parser)
	ctx := context.Background()

	saved, err := users.Save(ctx, models.UserProfile{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = users.SubmitPreferenceText(ctx, "u1", "  musicals please ")
	require.NoError(t, err)
	assert.Equal(t, []string{"musicals please"}, parser.texts)

	updated, err := users.Save(ctx, models.UserProfile{ID: "u1", Email: "b@example.com", TicketQuantity: 1})
	require.NoError(t, err)
	assert.Equal(t, saved.CreatedAt, updated.CreatedAt)
	assert.Equal(t, 1, updated.TicketQuantity)
	assert.Equal(t, "musicals please", updated.PreferenceText)
	require.NotNil(t, updated.ParsedPreference)
	assert.Equal(t, []string{"musical"}, updated.ParsedPreference.Genres)
}

func TestSubmitPreferenceTextFailureLeavesUserUnparsed(t *testing.T) {
	ctx := context.Background()

	t.Run("parser error", func(t *testing.T) {
		users := NewUserService(database.NewMemoryStore(), &stubParser{err: shared.ErrPreferenceServiceUnavailable})
		_, err := users.Save(ctx, models.UserProfile{ID: "u1"})
		require.NoError(t, err)

		profile, err := users.SubmitPreferenceText(ctx, "u1", "comedies")
		require.NoError(t, err)
		assert.Equal(t, "comedies", profile.PreferenceText)
		assert.Nil(t, profile.ParsedPreference)
	})

	t.Run("no parser", func(t *testing.T) {
		users := NewUserService(database.NewMemoryStore(), nil)
		assert.False(t, users.ParsingEnabled())
		_, err := users.Save(ctx, models.UserProfile{ID: "u1"})
		require.NoError(t, err)

		profile, err := users.SubmitPreferenceText(ctx, "u1", "comedies")
		require.NoError(t, err)
		assert.Nil(t, profile.ParsedPreference)
	})

	t.Run("unknown user", func(t *testing.T) {
		users := NewUserService(database.NewMemoryStore(), nil)
		_, err := users.SubmitPreferenceText(ctx, "ghost", "comedies")
		assert.True(t, errors.Is(err, shared.ErrUserNotFound))
	})
}

func TestUserServiceListIsSorted(t *testing.T) {
	users := NewUserService(database.NewMemoryStore(), nil)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		_, err := users.Save(ctx, models.UserProfile{ID: id})
		require.NoError(t, err)
	}
	require.NoError(t, users.Delete(ctx, "b"))

	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[1].ID)
}

func TestOverrideServiceLastWriteWins(t *testing.T) {
	overrides := NewOverrideService(database.NewMemoryStore())
	ctx := context.Background()

	first, err := overrides.Set(ctx, "u1", models.PlatformBroadwayDirect, "Cats", true)
	require.NoError(t, err)
	second, err := overrides.Set(ctx, "u1", models.PlatformBroadwayDirect, " cats ", false)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := overrides.Get(ctx, "u1", models.PlatformBroadwayDirect, "CATS")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.ShouldApply)

	_, err = overrides.Set(ctx, "u10", models.PlatformBroadwayDirect, "Six", true)
	require.NoError(t, err)

	all, err := overrides.ForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 1, "prefix listing does not leak other users")

	_, err = overrides.Set(ctx, "alice:evil", models.PlatformBroadwayDirect, "Cats", true)
	var serviceErr *shared.ServiceError
	require.True(t, errors.As(err, &serviceErr))
	assert.Equal(t, "INVALID_USER_ID", serviceErr.Code)
	_, err = overrides.Set(ctx, "alice*", models.PlatformBroadwayDirect, "Cats", true)
	assert.Error(t, err)
	alice, err := overrides.ForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, alice)

	require.NoError(t, overrides.Delete(ctx, "u1", models.PlatformBroadwayDirect, "Cats"))
	got, err = overrides.Get(ctx, "u1", models.PlatformBroadwayDirect, "Cats")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = overrides.Set(ctx, "u1", models.PlatformBroadwayDirect, "  ", true)
	assert.Error(t, err)
}

func TestResultHistoryEvictsOldest(t *testing.T) {
	history := NewResultHistory(database.NewMemoryStore(), 3)
	ctx := context.Background()

	empty, err := history.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 0; i < 5; i++ {
		require.NoError(t, history.Append(ctx, "u1", models.LotteryResult{ShowName: fmt.Sprintf("show-%d", i)}))
	}
	list, err := history.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "show-2", list[0].ShowName)
	assert.Equal(t, "show-4", list[2].ShowName)
}

type staticCatalog struct {
	snapshot models.CatalogSnapshot
	err      error
}

func (c staticCatalog) Get(context.Context, bool) (models.CatalogSnapshot, error) {
	return c.snapshot, c.err
}

// 15:00 New York on Wednesday 5 March; candidate date is Thursday the 6th
func decisionClock() time.Time {
	return time.Date(2025, time.March, 5, 20, 0, 0, 0, time.UTC)
}

func newDecisionFixture(t *testing.T, parser PreferenceParser, pref *models.ParsedPreference) (*DecisionService, *OverrideService) {
	t.Helper()
	store := database.NewMemoryStore()
	users := NewUserService(store, parser)
	overrides := NewOverrideService(store)
	_, err := users.Save(context.Background(), models.UserProfile{ID: "u1", Email: "a@example.com", ParsedPreference: pref})
	require.NoError(t, err)

	catalog := staticCatalog{snapshot: models.CatalogSnapshot{Shows: endToEndCatalog()}}
	return NewDecisionService(catalog, users, overrides).WithClock(decisionClock), overrides
}

func TestDecisionsForUserScenarios(t *testing.T) {
	ctx := context.Background()
	parser := &stubParser{}

	t.Run("exclusion", func(t *testing.T) {
		decisions, _ := newDecisionFixture(t, parser, &models.ParsedPreference{ExcludeShows: []string{"Cats"}})
		got, _, err := decisions.DecisionsForUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"Hamilton": true, "Cats": false}, decisionsByName(got))
	})

	t.Run("parsing not configured", func(t *testing.T) {
		decisions, _ := newDecisionFixture(t, nil, &models.ParsedPreference{})
		got, _, err := decisions.DecisionsForUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"Hamilton": false, "Cats": false}, decisionsByName(got))
	})

	t.Run("override without preference", func(t *testing.T) {
		decisions, overrides := newDecisionFixture(t, nil, nil)
		_, err := overrides.Set(ctx, "u1", models.PlatformBroadwayDirect, "Cats", true)
		require.NoError(t, err)

		got, _, err := decisions.DecisionsForUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"Hamilton": false, "Cats": true}, decisionsByName(got))
	})

	t.Run("availability uses tomorrow in New York", func(t *testing.T) {
		pref := &models.ParsedPreference{Availability: &models.Availability{DaysOfWeek: []string{"thursday"}}}
		decisions, _ := newDecisionFixture(t, parser, pref)
		got, _, err := decisions.DecisionsForUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"Hamilton": true, "Cats": true}, decisionsByName(got))
	})
}

func TestDecisionsForUserPropagatesCatalogFailure(t *testing.T) {
	store := database.NewMemoryStore()
	users := NewUserService(store, nil)
	_, err := users.Save(context.Background(), models.UserProfile{ID: "u1"})
	require.NoError(t, err)

	decisions := NewDecisionService(staticCatalog{err: shared.ErrNoCatalogAvailable}, users, NewOverrideService(store))
	_, _, err = decisions.DecisionsForUser(context.Background(), "u1")
	assert.True(t, errors.Is(err, shared.ErrNoCatalogAvailable))
}
