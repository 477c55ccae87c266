package models

import "time"

// TimePreference expresses matinee/evening preference from the parsing service
type TimePreference string

const (
	TimePreferenceAny     TimePreference = "any"
	TimePreferenceMatinee TimePreference = "matinee"
	TimePreferenceEvening TimePreference = "evening"
)

// PriceRange is an inclusive price constraint in dollars
type PriceRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// DateRange is an inclusive calendar range
type DateRange struct {
	Start *Date `json:"start,omitempty"`
	End   *Date `json:"end,omitempty"`
}

// Availability constrains which lottery dates a user can attend
type Availability struct {
	DaysOfWeek     []string       `json:"daysOfWeek,omitempty"`
	SpecificDates  []Date         `json:"specificDates,omitempty"`
	ExcludeDates   []Date         `json:"excludeDates,omitempty"`
	TimePreference TimePreference `json:"timePreference,omitempty"`
}

// ParsedPreference is the structured filter derived from a user's free text.
// Every field is optional and an absent field never rejects a show.
type ParsedPreference struct {
	Genres       []string      `json:"genres,omitempty"`
	ShowNames    []string      `json:"showNames,omitempty"`
	ExcludeShows []string      `json:"excludeShows,omitempty"`
	PriceRange   *PriceRange   `json:"priceRange,omitempty"`
	DateRange    *DateRange    `json:"dateRange,omitempty"`
	Keywords     []string      `json:"keywords,omitempty"`
	Availability *Availability `json:"availability,omitempty"`
}

// Date is a calendar day serialized as YYYY-MM-DD
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its calendar day in t's location
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as seen in t's own location
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// SameDay reports whether both values name the same calendar day
func (d Date) SameDay(other Date) bool {
	return d.Year() == other.Year() && d.Month() == other.Month() && d.Day() == other.Day()
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if raw == "null" || raw == `""` {
		return nil
	}
	if len(raw) >= 2 && raw[0] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	// The parsing service sometimes returns full timestamps
	if len(raw) > len(dateLayout) {
		raw = raw[:len(dateLayout)]
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return err
	}
	d.Time = parsed
	return nil
}
