package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrBatchInProgress is returned when an apply run is requested while another is running
var ErrBatchInProgress = errors.New("an apply run is already in progress")

// DecisionSource resolves a user's show decisions
type DecisionSource interface {
	DecisionsForUser(ctx context.Context, userID string) ([]models.ShowDecision, models.CatalogSnapshot, error)
}

// ApplyOrchestrator enters every selected lottery for one or all users.
// Runs never overlap: shows and users are processed one at a time.
type ApplyOrchestrator struct {
	decisions  DecisionSource
	users      *UserService
	history    *ResultHistory
	factory    SessionFactory
	automation *FormAutomation
	pacing     shared.PacingProfile
	pacer      *shared.Pacer
	publisher  ResultPublisher
	autoSubmit bool
	metrics    *shared.ServiceMetrics
	runMutex   sync.Mutex
	now        func() time.Time
}

// NewApplyOrchestrator wires the apply pipeline. autoSubmit is the global
// switch; a user's own AutoSubmit flag must also be set for forms to submit.
func NewApplyOrchestrator(decisions DecisionSource, users *UserService, history *ResultHistory, factory SessionFactory,
	automation *FormAutomation, pacing shared.PacingProfile, pacer *shared.Pacer, autoSubmit bool) *ApplyOrchestrator {
	return &ApplyOrchestrator{
		decisions:  decisions,
		users:      users,
		history:    history,
		factory:    factory,
		automation: automation,
		pacing:     pacing,
		pacer:      pacer,
		autoSubmit: autoSubmit,
		metrics:    shared.NewServiceMetrics("ApplyOrchestrator"),
		now:        time.Now,
	}
}

// WithPublisher sets the optional batch summary publisher
func (o *ApplyOrchestrator) WithPublisher(publisher ResultPublisher) *ApplyOrchestrator {
	o.publisher = publisher
	return o
}

// Metrics exposes apply counters
func (o *ApplyOrchestrator) Metrics() *shared.ServiceMetrics { return o.metrics }

// ApplyForUser enters every show the user's decisions select
func (o *ApplyOrchestrator) ApplyForUser(ctx context.Context, userID string) ([]models.LotteryResult, error) {
	if !o.runMutex.TryLock() {
		return nil, ErrBatchInProgress
	}
	defer o.runMutex.Unlock()

	startedAt := o.now()
	results, err := o.applyForUser(ctx, userID)
	summary := o.summarize(startedAt, map[string][]models.LotteryResult{userID: results}, userFailures(userID, err))
	o.finishBatch(ctx, summary)
	return results, err
}

// ApplyForAllUsers runs ApplyForUser for each user in turn. A user whose run
// fails is recorded with an empty result set and the batch continues.
func (o *ApplyOrchestrator) ApplyForAllUsers(ctx context.Context) (map[string][]models.LotteryResult, models.BatchSummary, error) {
	if !o.runMutex.TryLock() {
		return nil, models.BatchSummary{}, ErrBatchInProgress
	}
	defer o.runMutex.Unlock()

	logger := logrus.WithFields(logrus.Fields{
		"component": "ApplyOrchestrator",
		"method":    "ApplyForAllUsers",
	})

	startedAt := o.now()
	users, err := o.users.List(ctx)
	if err != nil {
		return nil, models.BatchSummary{}, err
	}

	all := make(map[string][]models.LotteryResult, len(users))
	var failures []models.FailureDiagnostic
	for _, user := range users {
		results, err := o.applyForUser(ctx, user.ID)
		if err != nil {
			logger.WithError(err).WithField("user_id", user.ID).Error("Apply run failed for user")
			failures = append(failures, userFailures(user.ID, err)...)
			results = []models.LotteryResult{}
		}
		all[user.ID] = results
	}

	summary := o.summarize(startedAt, all, failures)
	o.finishBatch(ctx, summary)
	return all, summary, nil
}

func (o *ApplyOrchestrator) applyForUser(ctx context.Context, userID string) ([]models.LotteryResult, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "ApplyOrchestrator",
		"method":    "ApplyForUser",
		"user_id":   userID,
	})

	profile, err := o.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	decisions, _, err := o.decisions.DecisionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	batches, order := partitionByPlatform(decisions)
	selected := 0
	for _, shows := range batches {
		selected += len(shows)
	}
	logger.WithFields(logrus.Fields{
		"selected":  selected,
		"platforms": len(order),
	}).Info("Starting apply run")

	opts := EntryOptions{
		AutoSubmit:     o.autoSubmit && profile.AutoSubmit,
		RequiredFields: []string{FieldEmail},
	}
	data := profile.EntryData()

	results := make([]models.LotteryResult, 0, len(decisions))
	for _, platform := range order {
		batch, err := o.applyPlatformBatch(ctx, userID, batches[platform], data, opts)
		results = append(results, batch...)
		if err != nil {
			o.record(ctx, userID, results)
			return results, err
		}
	}
	o.record(ctx, userID, results)
	return results, nil
}

// applyPlatformBatch drives one session through a platform's shows in order.
// The session is closed on every path.
func (o *ApplyOrchestrator) applyPlatformBatch(ctx context.Context, userID string, shows []models.Show, data models.EntryData, opts EntryOptions) ([]models.LotteryResult, error) {
	session, err := o.factory.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			logrus.WithField("component", "ApplyOrchestrator").WithError(closeErr).Warn("Session close failed")
		}
	}()

	results := make([]models.LotteryResult, 0, len(shows))
	for i, show := range shows {
		if i > 0 {
			if err := o.pacer.Wait(ctx, o.pacing.BetweenShows); err != nil {
				return results, err
			}
		}
		elapsed := stopwatch()
		outcome, err := o.automation.Enter(ctx, session.Page(), show.URL, data, opts)
		result := models.LotteryResult{
			Success:      err == nil,
			ShowName:     show.Name,
			Platform:     show.Platform,
			UserID:       userID,
			FieldsFilled: outcome.FieldsFilled,
			AttemptedAt:  o.now().UTC(),
		}
		if err != nil {
			message := shared.Diagnostic(err)
			result.Error = &message
		}
		o.metrics.RecordRequest(result.Success, elapsed())
		o.metrics.IncrementCounter(resultCounter(show.Platform, result.Success))
		results = append(results, result)
	}
	return results, nil
}

func resultCounter(platform models.Platform, success bool) string {
	if success {
		return "entered:" + string(platform)
	}
	return "failed:" + string(platform)
}

// partitionByPlatform keeps selected shows grouped by platform in first-seen order
func partitionByPlatform(decisions []models.ShowDecision) (map[models.Platform][]models.Show, []models.Platform) {
	batches := make(map[models.Platform][]models.Show)
	var order []models.Platform
	for _, d := range decisions {
		if !d.FinalDecision {
			continue
		}
		if _, seen := batches[d.Show.Platform]; !seen {
			order = append(order, d.Show.Platform)
		}
		batches[d.Show.Platform] = append(batches[d.Show.Platform], d.Show)
	}
	return batches, order
}

func (o *ApplyOrchestrator) record(ctx context.Context, userID string, results []models.LotteryResult) {
	if o.history == nil || len(results) == 0 {
		return
	}
	if err := o.history.Append(ctx, userID, results...); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "ApplyOrchestrator",
			"user_id":   userID,
		}).WithError(err).Warn("Failed to record results")
	}
}

func userFailures(userID string, err error) []models.FailureDiagnostic {
	if err == nil {
		return nil
	}
	return []models.FailureDiagnostic{{UserID: userID, Message: shared.Diagnostic(err)}}
}

// summarize counts successes and failures and collects per-failure diagnostics
func (o *ApplyOrchestrator) summarize(startedAt time.Time, all map[string][]models.LotteryResult, runFailures []models.FailureDiagnostic) models.BatchSummary {
	summary := models.BatchSummary{
		BatchID:     uuid.NewString(),
		StartedAt:   startedAt.UTC(),
		FinishedAt:  o.now().UTC(),
		Users:       len(all),
		Diagnostics: runFailures,
	}
	for _, results := range all {
		for _, r := range results {
			if r.Success {
				summary.Successful++
				continue
			}
			summary.Failed++
			message := ""
			if r.Error != nil {
				message = *r.Error
			}
			summary.Diagnostics = append(summary.Diagnostics, models.FailureDiagnostic{
				UserID:   r.UserID,
				ShowName: r.ShowName,
				Platform: r.Platform,
				Message:  message,
			})
		}
	}
	return summary
}

func (o *ApplyOrchestrator) finishBatch(ctx context.Context, summary models.BatchSummary) {
	samples := make([]string, 0, len(summary.Diagnostics))
	for _, d := range summary.Diagnostics {
		samples = append(samples, d.Message)
	}
	logrus.WithFields(logrus.Fields{
		"component":  "ApplyOrchestrator",
		"batch_id":   summary.BatchID,
		"users":      summary.Users,
		"successful": summary.Successful,
		"failed":     summary.Failed,
		"duration":   summary.FinishedAt.Sub(summary.StartedAt),
	}).Info(shared.BuildBatchErrorSummary(summary.Successful, len(summary.Diagnostics), samples))
	o.metrics.LogSummary()

	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishSummary(ctx, summary); err != nil {
		logrus.WithField("component", "ApplyOrchestrator").WithError(err).Warn("Failed to publish batch summary")
	}
}
