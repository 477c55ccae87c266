package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fenilmodi00/lottery-backend/database"
	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
)

const resultKeyPrefix = "results:"

// ResultHistory is a bounded per-user list of lottery results. Once the cap
// is reached the oldest entries are evicted first.
type ResultHistory struct {
	store    database.Store
	capacity int
	mutex    sync.Mutex
}

// NewResultHistory creates a history bounded to capacity entries per user
func NewResultHistory(store database.Store, capacity int) *ResultHistory {
	if capacity <= 0 {
		capacity = 100
	}
	return &ResultHistory{store: store, capacity: capacity}
}

// Append adds results to the end of a user's history
func (h *ResultHistory) Append(ctx context.Context, userID string, results ...models.LotteryResult) error {
	if len(results) == 0 {
		return nil
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()

	history, err := h.load(ctx, userID)
	if err != nil {
		return err
	}
	history = append(history, results...)
	if overflow := len(history) - h.capacity; overflow > 0 {
		history = append([]models.LotteryResult(nil), history[overflow:]...)
	}

	payload, err := json.Marshal(history)
	if err == nil {
		err = h.store.Set(ctx, resultKeyPrefix+userID, payload)
	}
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryStorage, "HISTORY_SAVE_FAILED", "ResultHistory", "Append", true)
	}
	return nil
}

// List returns a user's history, oldest first
func (h *ResultHistory) List(ctx context.Context, userID string) ([]models.LotteryResult, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.load(ctx, userID)
}

func (h *ResultHistory) load(ctx context.Context, userID string) ([]models.LotteryResult, error) {
	raw, found, err := h.store.Get(ctx, resultKeyPrefix+userID)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "HISTORY_LOAD_FAILED", "ResultHistory", "List", true)
	}
	if !found {
		return []models.LotteryResult{}, nil
	}
	var history []models.LotteryResult
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryStorage, "HISTORY_DECODE_FAILED", "ResultHistory", "List", false)
	}
	return history, nil
}
