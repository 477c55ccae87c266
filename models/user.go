package models

import "time"

// UserProfile holds the personal data typed into entry forms plus the
// user's stored preference.
type UserProfile struct {
	ID               string            `json:"id"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	Email            string            `json:"email"`
	DateOfBirth      *Date             `json:"date_of_birth,omitempty"`
	ZipCode          string            `json:"zip_code,omitempty"`
	Country          string            `json:"country,omitempty"`
	TicketQuantity   int               `json:"ticket_quantity"`
	PreferenceText   string            `json:"preference_text,omitempty"`
	ParsedPreference *ParsedPreference `json:"parsed_preference,omitempty"`
	AutoSubmit       bool              `json:"auto_submit"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// EntryData converts the profile into the values the form filler types
func (u UserProfile) EntryData() EntryData {
	data := EntryData{
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Email:          u.Email,
		TicketQuantity: u.TicketQuantity,
		ZipCode:        u.ZipCode,
		Country:        u.Country,
	}
	if u.DateOfBirth != nil {
		dob := *u.DateOfBirth
		data.DateOfBirth = &dob
	}
	return data
}

// EntryData is the caller-supplied personal data for a lottery form.
// Empty values are skipped by the filler.
type EntryData struct {
	FirstName      string
	LastName       string
	Email          string
	TicketQuantity int
	DateOfBirth    *Date
	ZipCode        string
	Country        string
}
