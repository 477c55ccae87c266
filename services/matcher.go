package services

import (
	"strings"
	"time"

	"github.com/fenilmodi00/lottery-backend/models"
)

// MarketTimezone is the home market of every supported lottery platform
const MarketTimezone = "America/New_York"

// MatchesPreference evaluates show against pref. Present constraints are
// conjunctive and an empty preference matches every show. Availability is
// checked against the candidate lottery date rather than the show.
//
// Keywords, price range and time preference are carried on the preference
// but never reject: listings expose no price or performance time to test.
func MatchesPreference(show models.Show, pref models.ParsedPreference, candidate models.Date) bool {
	name := strings.ToLower(show.Name)

	if len(pref.ShowNames) > 0 && !matchesAnyTerm(name, pref.ShowNames) {
		return false
	}
	if len(pref.ExcludeShows) > 0 && matchesAnyTerm(name, pref.ExcludeShows) {
		return false
	}
	if len(pref.Genres) > 0 && show.Genre != nil && *show.Genre != "" {
		if !matchesAnyTerm(strings.ToLower(*show.Genre), pref.Genres) {
			return false
		}
	}
	if pref.DateRange != nil && !withinRange(candidate, *pref.DateRange) {
		return false
	}
	if pref.Availability != nil && !availableOn(candidate, *pref.Availability) {
		return false
	}
	return true
}

// matchesAnyTerm reports whether haystack (already lowercased) contains any
// non-blank needle case-insensitively
func matchesAnyTerm(haystack string, needles []string) bool {
	for _, needle := range needles {
		needle = strings.ToLower(strings.TrimSpace(needle))
		if needle != "" && strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func withinRange(candidate models.Date, r models.DateRange) bool {
	if r.Start != nil && candidate.Before(models.DateOf(r.Start.Time).Time) {
		return false
	}
	if r.End != nil && candidate.After(models.DateOf(r.End.Time).Time) {
		return false
	}
	return true
}

func availableOn(candidate models.Date, a models.Availability) bool {
	if len(a.DaysOfWeek) > 0 {
		day := strings.ToLower(candidate.Weekday().String()[:3])
		allowed := false
		for _, d := range a.DaysOfWeek {
			d = strings.ToLower(strings.TrimSpace(d))
			if len(d) >= 3 && d[:3] == day {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	if len(a.SpecificDates) > 0 && !containsDate(a.SpecificDates, candidate) {
		return false
	}
	if containsDate(a.ExcludeDates, candidate) {
		return false
	}
	return true
}

func containsDate(dates []models.Date, candidate models.Date) bool {
	for _, d := range dates {
		if d.SameDay(candidate) {
			return true
		}
	}
	return false
}

// ResolveDecision combines preference matching with an optional override.
// A nil preference means nothing matches; only an override can opt in.
func ResolveDecision(show models.Show, pref *models.ParsedPreference, override *models.Override, candidate models.Date) models.ShowDecision {
	decision := models.ShowDecision{Show: show}
	if pref != nil {
		decision.MatchesPreference = MatchesPreference(show, *pref, candidate)
	}
	decision.FinalDecision = decision.MatchesPreference
	if override != nil {
		shouldApply := override.ShouldApply
		decision.HasOverride = true
		decision.OverrideShouldApply = &shouldApply
		decision.FinalDecision = shouldApply
	}
	return decision
}

// CandidateLotteryDate is tomorrow in loc; most lotteries draw for next-day
// performances. A nil loc uses the market timezone, falling back to UTC.
func CandidateLotteryDate(now time.Time, loc *time.Location) models.Date {
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation(MarketTimezone); err != nil {
			loc = time.UTC
		}
	}
	return models.DateOf(now.In(loc).AddDate(0, 0, 1))
}
