package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/lottery-backend/models"
	"github.com/fenilmodi00/lottery-backend/shared"
	"github.com/sirupsen/logrus"
)

// AutomationState is one step of an entry attempt
type AutomationState string

const (
	StateStart                  AutomationState = "Start"
	StatePlatformDetected       AutomationState = "PlatformDetected"
	StateEntryAffordanceClicked AutomationState = "EntryAffordanceClicked"
	StateModalOrFrameResolved   AutomationState = "ModalOrFrameResolved"
	StateFieldsDiscovered       AutomationState = "FieldsDiscovered"
	StateFieldsFilled           AutomationState = "FieldsFilled"
	StateSubmitted              AutomationState = "Submitted"
	StateDone                   AutomationState = "Done"
	StateAborted                AutomationState = "Aborted"
)

// Identity fields a caller may demand through EntryOptions.RequiredFields
const (
	FieldEmail     = "email"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
)

// DefaultModalTimeout bounds the wait for a modal after the entry click
const DefaultModalTimeout = 5 * time.Second

// EntryOptions controls one entry attempt
type EntryOptions struct {
	AutoSubmit     bool
	RequiredFields []string
}

// EntryOutcome describes what an entry attempt did, including on failure
type EntryOutcome struct {
	Platform     models.Platform
	ShowName     string
	States       []AutomationState
	FieldsFound  int
	FieldsFilled int
	Submitted    bool
	AbortReason  string
}

func (o *EntryOutcome) enter(state AutomationState) {
	o.States = append(o.States, state)
}

// Last returns the most recent state
func (o EntryOutcome) Last() AutomationState {
	if len(o.States) == 0 {
		return StateStart
	}
	return o.States[len(o.States)-1]
}

// FormAutomation drives a lottery entry form on a live page
type FormAutomation struct {
	table        *PlatformTable
	config       shared.ScraperConfig
	pacing       shared.PacingProfile
	pacer        *shared.Pacer
	modalTimeout time.Duration
}

// NewFormAutomation creates the entry state machine
func NewFormAutomation(table *PlatformTable, cfg shared.ScraperConfig, pacing shared.PacingProfile, pacer *shared.Pacer) *FormAutomation {
	return &FormAutomation{
		table:        table,
		config:       cfg,
		pacing:       pacing,
		pacer:        pacer,
		modalTimeout: DefaultModalTimeout,
	}
}

// Enter runs the entry flow for showURL on page. Any failure moves the
// outcome to Aborted and returns a ServiceError whose message is safe to
// show users.
func (f *FormAutomation) Enter(ctx context.Context, page AutomationPage, showURL string, data models.EntryData, opts EntryOptions) (EntryOutcome, error) {
	outcome := EntryOutcome{ShowName: ShowNameFromURL(showURL)}
	outcome.enter(StateStart)

	logger := logrus.WithFields(logrus.Fields{
		"component": "FormAutomation",
		"method":    "Enter",
		"url":       showURL,
	})

	def, ok := f.table.DetectPlatform(showURL)
	if !ok {
		return f.abort(&outcome, notALotteryPage(showURL))
	}
	outcome.Platform = def.Platform

	navCtx, cancel := context.WithTimeout(ctx, f.config.NavigationTimeout)
	err := page.Navigate(navCtx, showURL)
	cancel()
	if err != nil {
		return f.abort(&outcome, stepError("NAVIGATION_FAILED", "could not load lottery page", err))
	}
	currentURL, err := page.CurrentURL(ctx)
	if err != nil {
		return f.abort(&outcome, stepError("NAVIGATION_FAILED", "could not read page location", err))
	}
	if landed, ok := f.table.DetectPlatform(currentURL); !ok || landed.Platform != def.Platform {
		return f.abort(&outcome, notALotteryPage(currentURL))
	}
	outcome.enter(StatePlatformDetected)

	if err := f.pacer.Wait(ctx, f.pacing.ContentSettle); err != nil {
		return f.abort(&outcome, err)
	}
	root, err := snapshotDocument(ctx, page, FrameScope{})
	if err != nil {
		return f.abort(&outcome, stepError("SNAPSHOT_FAILED", "could not read lottery page", err))
	}
	if name := ExtractShowName(root, currentURL); name != "" {
		outcome.ShowName = name
	}

	if affordance, found := FindEntryAffordance(root, def); found {
		if err := f.click(ctx, page, FrameScope{}, affordance); err != nil {
			return f.abort(&outcome, stepError("ENTRY_CLICK_FAILED", "could not open entry form", err))
		}
		outcome.enter(StateEntryAffordanceClicked)

		matched, appeared, err := page.WaitForModal(ctx, ModalSelectors, f.modalTimeout)
		if err != nil && ctx.Err() != nil {
			return f.abort(&outcome, err)
		}
		logger.WithFields(logrus.Fields{"modal": matched, "appeared": appeared}).Debug("Waited for entry modal")

		if landed, err := page.CurrentURL(ctx); err == nil {
			currentURL = landed
		}
		if root, err = snapshotDocument(ctx, page, FrameScope{}); err != nil {
			return f.abort(&outcome, stepError("SNAPSHOT_FAILED", "could not read entry form", err))
		}
	}

	frame, discoveryRoot, container := f.resolveScope(ctx, page, root, currentURL, &outcome)
	fields := DiscoverFields(discoveryRoot, container)
	outcome.FieldsFound = fields.Count()
	outcome.enter(StateFieldsDiscovered)

	if err := checkRequired(fields, data, opts.RequiredFields); err != nil {
		return f.abort(&outcome, err)
	}

	filled, err := f.FillFields(ctx, page, frame, fields, data)
	outcome.FieldsFilled = filled
	if err != nil {
		return f.abort(&outcome, err)
	}
	outcome.enter(StateFieldsFilled)

	if opts.AutoSubmit {
		if fields.Submit == nil {
			return f.abort(&outcome, shared.NewServiceError(shared.ErrorCategoryStructural, "SUBMIT_CONTROL_NOT_FOUND",
				shared.ErrSubmitControlNotFound.Error(), "FormAutomation", "Enter", false, shared.ErrSubmitControlNotFound))
		}
		if err := f.click(ctx, page, frame, *fields.Submit); err != nil {
			return f.abort(&outcome, stepError("SUBMIT_FAILED", "could not submit entry form", err))
		}
		if err := f.pacer.Wait(ctx, f.pacing.SubmitSettle); err != nil {
			return f.abort(&outcome, err)
		}
		outcome.Submitted = true
		outcome.enter(StateSubmitted)
	}

	outcome.enter(StateDone)
	logger.WithFields(logrus.Fields{
		"platform":      outcome.Platform,
		"show":          outcome.ShowName,
		"fields_found":  outcome.FieldsFound,
		"fields_filled": outcome.FieldsFilled,
		"submitted":     outcome.Submitted,
	}).Info("Lottery entry completed")
	return outcome, nil
}

// resolveScope picks the document and container field discovery runs in.
// A same-origin frame that cannot be read falls back to the top document.
func (f *FormAutomation) resolveScope(ctx context.Context, page AutomationPage, root *goquery.Selection, pageURL string, outcome *EntryOutcome) (FrameScope, *goquery.Selection, *goquery.Selection) {
	scope := ResolveSearchScope(root, pageURL)
	logger := logrus.WithFields(logrus.Fields{
		"component": "FormAutomation",
		"method":    "resolveScope",
	})

	switch {
	case scope.FrameSelector != "":
		frame := FrameScope{FrameSelector: scope.FrameSelector}
		frameRoot, err := snapshotDocument(ctx, page, frame)
		if err != nil {
			logger.WithError(err).Debug("Frame unreadable, searching top document")
			return FrameScope{}, root, root
		}
		outcome.enter(StateModalOrFrameResolved)
		return frame, frameRoot, frameRoot
	case scope.Container != "":
		outcome.enter(StateModalOrFrameResolved)
		return FrameScope{}, root, root.Find(scope.Container)
	case scope.CrossOriginFrame:
		logger.Debug("Form is in a cross-origin frame, searching top document")
	}
	return FrameScope{}, root, root
}

func checkRequired(fields FieldSet, data models.EntryData, required []string) error {
	for _, name := range required {
		var present bool
		switch name {
		case FieldEmail:
			present = fields.Email != nil && data.Email != ""
		case FieldFirstName:
			present = fields.FirstName != nil && data.FirstName != ""
		case FieldLastName:
			present = fields.LastName != nil && data.LastName != ""
		default:
			continue
		}
		if !present {
			return shared.NewServiceError(shared.ErrorCategoryStructural, "REQUIRED_FIELD_MISSING",
				fmt.Sprintf("required field missing: %s", name), "FormAutomation", "Enter", false, shared.ErrRequiredFieldMissing)
		}
	}
	return nil
}

// FillFields fills every discovered field that has a value in data and
// returns how many were filled. A field that rejects its value is skipped;
// only cancellation or a deadline stops the fill.
func (f *FormAutomation) FillFields(ctx context.Context, page AutomationPage, frame FrameScope, fields FieldSet, data models.EntryData) (int, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "FormAutomation",
		"method":    "FillFields",
	})

	type step struct {
		name   string
		ref    *ElementRef
		values []string
	}
	var steps []step
	add := func(name string, ref *ElementRef, values ...string) {
		if ref != nil && len(values) > 0 && values[0] != "" {
			steps = append(steps, step{name: name, ref: ref, values: values})
		}
	}

	add(FieldFirstName, fields.FirstName, data.FirstName)
	add(FieldLastName, fields.LastName, data.LastName)
	add(FieldEmail, fields.Email, data.Email)
	if data.TicketQuantity > 0 {
		add("quantity", fields.Quantity, strconv.Itoa(data.TicketQuantity))
	}
	if dob := data.DateOfBirth; dob != nil {
		if fields.DOBCombined != nil {
			layout := "01/02/2006"
			if fields.DOBCombined.Type == "date" {
				layout = "2006-01-02"
			}
			add("dob", fields.DOBCombined, dob.Format(layout))
		}
		add("dob_month", fields.DOBMonth, monthCandidates(dob.Month())...)
		add("dob_day", fields.DOBDay, strconv.Itoa(dob.Day()), fmt.Sprintf("%02d", dob.Day()))
		add("dob_year", fields.DOBYear, strconv.Itoa(dob.Year()), fmt.Sprintf("%02d", dob.Year()%100))
	}
	add("zip_code", fields.ZipCode, data.ZipCode)
	add("country", fields.Country, countryCandidates(data.Country)...)

	filled := 0
	for _, s := range steps {
		err := f.fillOne(ctx, page, frame, *s.ref, s.values)
		if err != nil {
			if ctx.Err() != nil {
				return filled, err
			}
			logger.WithError(err).WithField("field", s.name).Debug("Field fill failed, skipping")
			continue
		}
		filled++
		if err := f.pacer.Wait(ctx, f.pacing.BetweenFields); err != nil {
			return filled, err
		}
	}

	if fields.Terms != nil {
		if err := f.check(ctx, page, frame, *fields.Terms); err == nil {
			filled++
		} else if ctx.Err() != nil {
			return filled, err
		} else {
			logger.WithError(err).Debug("Terms checkbox could not be checked")
		}
	}

	if fields.Captcha != nil && fields.Captcha.IsCheckbox() {
		if err := page.SetChecked(ctx, frame, fields.Captcha.Selector, true); err != nil {
			logger.WithError(err).Debug("CAPTCHA checkbox unreachable")
		}
	}
	return filled, nil
}

func (f *FormAutomation) fillOne(ctx context.Context, page AutomationPage, frame FrameScope, ref ElementRef, values []string) error {
	if ref.IsSelect() {
		value, ok := MatchOption(ref.Options, values...)
		if !ok {
			return fmt.Errorf("no option matches %v", values)
		}
		if err := f.maybeScroll(ctx, page, frame, ref); err != nil {
			return err
		}
		return page.SetValue(ctx, frame, ref.Selector, value)
	}
	if ref.Type == "date" {
		if err := f.maybeScroll(ctx, page, frame, ref); err != nil {
			return err
		}
		return page.SetValue(ctx, frame, ref.Selector, values[0])
	}
	return f.typeText(ctx, page, frame, ref, values[0])
}

// typeText focuses, clears and types value one character at a time
func (f *FormAutomation) typeText(ctx context.Context, page AutomationPage, frame FrameScope, ref ElementRef, value string) error {
	if err := f.maybeScroll(ctx, page, frame, ref); err != nil {
		return err
	}
	if err := page.Focus(ctx, frame, ref.Selector); err != nil {
		return err
	}
	if err := page.Clear(ctx, frame, ref.Selector); err != nil {
		return err
	}
	for _, r := range value {
		if err := page.TypeRune(ctx, r); err != nil {
			return err
		}
		if err := f.pacer.Wait(ctx, f.pacing.Keystroke); err != nil {
			return err
		}
	}
	return nil
}

func (f *FormAutomation) check(ctx context.Context, page AutomationPage, frame FrameScope, ref ElementRef) error {
	if err := f.maybeScroll(ctx, page, frame, ref); err != nil {
		return err
	}
	return page.SetChecked(ctx, frame, ref.Selector, true)
}

func (f *FormAutomation) click(ctx context.Context, page AutomationPage, frame FrameScope, ref ElementRef) error {
	if err := f.maybeScroll(ctx, page, frame, ref); err != nil {
		return err
	}
	return page.Click(ctx, frame, ref.Selector)
}

func (f *FormAutomation) maybeScroll(ctx context.Context, page AutomationPage, frame FrameScope, ref ElementRef) error {
	if !f.pacer.Chance(f.pacing.ScrollChance) {
		return nil
	}
	if err := page.ScrollIntoView(ctx, frame, ref.Selector); err != nil && ctx.Err() != nil {
		return err
	}
	return nil
}

// abort records the terminal state and normalizes err for reporting
func (f *FormAutomation) abort(outcome *EntryOutcome, err error) (EntryOutcome, error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = shared.NewServiceError(shared.ErrorCategoryTimeout, "ABORTED",
			fmt.Sprintf("aborted after %s: timed out waiting for page", outcome.Last()), "FormAutomation", "Enter", true,
			fmt.Errorf("%w: %w", shared.ErrAborted, err))
	}
	outcome.AbortReason = shared.Diagnostic(err)
	outcome.enter(StateAborted)

	logrus.WithFields(logrus.Fields{
		"component": "FormAutomation",
		"platform":  outcome.Platform,
		"show":      outcome.ShowName,
		"reason":    outcome.AbortReason,
	}).WithError(err).Warn("Lottery entry aborted")
	return *outcome, err
}

func notALotteryPage(rawURL string) error {
	return shared.NewServiceError(shared.ErrorCategoryStructural, "NOT_A_LOTTERY_PAGE",
		shared.ErrNotALotteryPage.Error(), "FormAutomation", "Enter", false, shared.ErrNotALotteryPage).
		WithDetails(map[string]string{"url": rawURL})
}

// stepError keeps timeouts recognizable for abort and gives everything else
// a short message
func stepError(code, message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return shared.NewServiceError(shared.ErrorCategoryUpstream, code, message, "FormAutomation", "Enter", true, err)
}

func monthCandidates(month time.Month) []string {
	name := month.String()
	return []string{strconv.Itoa(int(month)), fmt.Sprintf("%02d", int(month)), name, name[:3]}
}

var unitedStatesAliases = []string{"US", "USA", "United States", "United States of America", "U.S.", "U.S.A."}

func countryCandidates(country string) []string {
	country = strings.TrimSpace(country)
	if country == "" {
		return nil
	}
	for _, alias := range unitedStatesAliases {
		if strings.EqualFold(alias, country) {
			return append([]string{country}, unitedStatesAliases...)
		}
	}
	return []string{country}
}
