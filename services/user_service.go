package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/fenilmodi00/lottery-backend/database"
	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const userKeyPrefix = "user:"

// userIDReserved holds the key separator and the glob characters a store may
// interpret inside a prefix scan
const userIDReserved = ":*?[]\\"

// ValidateUserID rejects IDs that could make one user's keys a prefix of
// another's
func ValidateUserID(userID string) error {
	invalid := strings.TrimSpace(userID) == "" || strings.ContainsAny(userID, userIDReserved) ||
		strings.IndexFunc(userID, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0
	if invalid {
		return shared.NewServiceError(shared.ErrorCategoryValidation, "INVALID_USER_ID",
			"user id must be non-empty and free of whitespace and the characters "+userIDReserved,
			"UserService", "ValidateUserID", false, nil)
	}
	return nil
}

// UserService stores profiles in the key-value store and parses preference
// text on submission
type UserService struct {
	store  database.Store
	parser PreferenceParser
	now    func() time.Time
}

// NewUserService creates a user service; parser may be nil
func NewUserService(store database.Store, parser PreferenceParser) *UserService {
	return &UserService{store: store, parser: parser, now: time.Now}
}

// ParsingEnabled reports whether a preference parser is configured
func (s *UserService) ParsingEnabled() bool {
	return s.parser != nil
}

// Get loads one profile
func (s *UserService) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	raw, found, err := s.store.Get(ctx, userKeyPrefix+userID)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "USER_LOAD_FAILED", "UserService", "Get", true)
	}
	if !found {
		return nil, shared.NewServiceError(shared.ErrorCategoryValidation, "USER_NOT_FOUND",
			"user not found", "UserService", "Get", false, shared.ErrUserNotFound)
	}
	var profile models.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "USER_DECODE_FAILED", "UserService", "Get", false)
	}
	return &profile, nil
}

// Save creates or replaces a profile. A missing ID is generated and the
// stored preference is kept when the incoming profile carries none.
func (s *UserService) Save(ctx context.Context, profile models.UserProfile) (*models.UserProfile, error) {
	now := s.now().UTC()
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if err := ValidateUserID(profile.ID); err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, profile.ID)
	switch {
	case err == nil:
		profile.CreatedAt = existing.CreatedAt
		if profile.PreferenceText == "" && profile.ParsedPreference == nil {
			profile.PreferenceText = existing.PreferenceText
			profile.ParsedPreference = existing.ParsedPreference
		}
	case errors.Is(err, shared.ErrUserNotFound):
		profile.CreatedAt = now
	default:
		return nil, err
	}
	profile.UpdatedAt = now
	if profile.TicketQuantity <= 0 {
		profile.TicketQuantity = 2
	}

	if err := s.put(ctx, &profile); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"component": "UserService",
		"method":    "Save",
		"user_id":   profile.ID,
	}).Info("Saved user profile")
	return &profile, nil
}

func (s *UserService) put(ctx context.Context, profile *models.UserProfile) error {
	payload, err := json.Marshal(profile)
	if err == nil {
		err = s.store.Set(ctx, userKeyPrefix+profile.ID, payload)
	}
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryStorage, "USER_SAVE_FAILED", "UserService", "Save", true)
	}
	return nil
}

// Delete removes a profile
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userKeyPrefix+userID); err != nil {
		return shared.WrapError(err, shared.ErrorCategoryStorage, "USER_DELETE_FAILED", "UserService", "Delete", true)
	}
	return nil
}

// List returns every profile ordered by ID. Undecodable records are skipped.
func (s *UserService) List(ctx context.Context) ([]models.UserProfile, error) {
	records, err := s.store.ListByPrefix(ctx, userKeyPrefix)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "USER_LIST_FAILED", "UserService", "List", true)
	}
	users := make([]models.UserProfile, 0, len(records))
	for key, raw := range records {
		var profile models.UserProfile
		if err := json.Unmarshal(raw, &profile); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "UserService",
				"key":       key,
			}).WithError(err).Warn("Skipping undecodable user record")
			continue
		}
		users = append(users, profile)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// SubmitPreferenceText stores text and its parsed form. A missing parser or
// a parser failure stores no parsed preference, so nothing matches until
// the text is resubmitted.
func (s *UserService) SubmitPreferenceText(ctx context.Context, userID, text string) (*models.UserProfile, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "UserService",
		"method":    "SubmitPreferenceText",
		"user_id":   userID,
	})

	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile.PreferenceText = strings.TrimSpace(text)
	profile.ParsedPreference = nil

	switch {
	case profile.PreferenceText == "":
	case s.parser == nil:
		logger.Warn("Preference parsing not configured, storing text only")
	default:
		parsed, err := s.parser.Parse(ctx, profile.PreferenceText)
		if err != nil {
			logger.WithError(err).Warn("Preference parsing failed, user has no parsed preference")
		} else {
			profile.ParsedPreference = parsed
		}
	}

	profile.UpdatedAt = s.now().UTC()
	if err := s.put(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}
