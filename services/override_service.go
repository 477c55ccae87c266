package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fenilmodi00/lottery-backend/database"
	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/sirupsen/logrus"
)

// OverrideService keeps at most one override per (user, platform, show)
type OverrideService struct {
	store database.Store
	now   func() time.Time
}

// NewOverrideService creates an override service
func NewOverrideService(store database.Store) *OverrideService {
	return &OverrideService{store: store, now: time.Now}
}

func overridePrefix(userID string) string {
	return "override:" + userID + ":"
}

func overrideKey(userID string, platform models.Platform, showName string) string {
	return overridePrefix(userID) + models.ShowKey(platform, showName)
}

// Get returns the override for one show, or nil
func (s *OverrideService) Get(ctx context.Context, userID string, platform models.Platform, showName string) (*models.Override, error) {
	raw, found, err := s.store.Get(ctx, overrideKey(userID, platform, showName))
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "OVERRIDE_LOAD_FAILED", "OverrideService", "Get", true)
	}
	if !found {
		return nil, nil
	}
	var override models.Override
	if err := json.Unmarshal(raw, &override); err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "OVERRIDE_DECODE_FAILED", "OverrideService", "Get", false)
	}
	return &override, nil
}

// Set writes an override; last write wins and CreatedAt survives updates
func (s *OverrideService) Set(ctx context.Context, userID string, platform models.Platform, showName string, shouldApply bool) (*models.Override, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(showName) == "" {
		return nil, shared.NewServiceError(shared.ErrorCategoryValidation, "OVERRIDE_INVALID",
			"show name is required", "OverrideService", "Set", false, nil)
	}
	now := s.now().UTC()
	override := models.Override{
		UserID:      userID,
		ShowName:    strings.TrimSpace(showName),
		Platform:    platform,
		ShouldApply: shouldApply,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, err := s.Get(ctx, userID, platform, showName); err != nil {
		return nil, err
	} else if existing != nil {
		override.CreatedAt = existing.CreatedAt
	}

	payload, err := json.Marshal(override)
	if err == nil {
		err = s.store.Set(ctx, overrideKey(userID, platform, showName), payload)
	}
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "OVERRIDE_SAVE_FAILED", "OverrideService", "Set", true)
	}

	logrus.WithFields(logrus.Fields{
		"component":    "OverrideService",
		"method":       "Set",
		"user_id":      userID,
		"platform":     platform,
		"show":         override.ShowName,
		"should_apply": shouldApply,
	}).Info("Saved override")
	return &override, nil
}

// Delete removes an override; deleting a missing one is not an error
func (s *OverrideService) Delete(ctx context.Context, userID string, platform models.Platform, showName string) error {
	if err := s.store.Delete(ctx, overrideKey(userID, platform, showName)); err != nil {
		return shared.WrapError(err, shared.ErrorCategoryStorage, "OVERRIDE_DELETE_FAILED", "OverrideService", "Delete", true)
	}
	return nil
}

// ForUser returns a user's overrides keyed by models.ShowKey
func (s *OverrideService) ForUser(ctx context.Context, userID string) (map[string]models.Override, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	records, err := s.store.ListByPrefix(ctx, overridePrefix(userID))
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "OVERRIDE_LIST_FAILED", "OverrideService", "ForUser", true)
	}
	overrides := make(map[string]models.Override, len(records))
	for _, raw := range records {
		var override models.Override
		if err := json.Unmarshal(raw, &override); err != nil || override.UserID != userID {
			continue
		}
		overrides[models.ShowKey(override.Platform, override.ShowName)] = override
	}
	return overrides, nil
}
