package shared

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DelayRange is a uniform delay distribution. A zero range disables waiting.
type DelayRange struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// IsZero reports whether the range never waits
func (r DelayRange) IsZero() bool {
	return r.Min <= 0 && r.Max <= 0
}

// Sample draws a duration from the range using rng
func (r DelayRange) Sample(rng *rand.Rand) time.Duration {
	if r.IsZero() {
		return 0
	}
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rng.Int63n(int64(r.Max-r.Min)+1))
}

// PacingProfile groups every randomized wait used while scraping and filling forms
type PacingProfile struct {
	BetweenPlatforms DelayRange `json:"between_platforms"`
	ContentSettle    DelayRange `json:"content_settle"`
	Keystroke        DelayRange `json:"keystroke"`
	BetweenFields    DelayRange `json:"between_fields"`
	SubmitSettle     DelayRange `json:"submit_settle"`
	BetweenShows     DelayRange `json:"between_shows"`
	ScrollChance     float64    `json:"scroll_chance"`
}

// DefaultPacingProfile returns the production timing distribution
func DefaultPacingProfile() PacingProfile {
	return PacingProfile{
		BetweenPlatforms: DelayRange{Min: 3 * time.Second, Max: 6 * time.Second},
		ContentSettle:    DelayRange{Min: 2 * time.Second, Max: 4 * time.Second},
		Keystroke:        DelayRange{Min: 40 * time.Millisecond, Max: 140 * time.Millisecond},
		BetweenFields:    DelayRange{Min: 80 * time.Millisecond, Max: 450 * time.Millisecond},
		SubmitSettle:     DelayRange{Min: 2 * time.Second, Max: 3 * time.Second},
		BetweenShows:     DelayRange{Min: 4 * time.Second, Max: 9 * time.Second},
		ScrollChance:     0.35,
	}
}

// ZeroPacingProfile never waits; used by tests
func ZeroPacingProfile() PacingProfile {
	return PacingProfile{}
}

// Pacer performs randomized waits. It is safe for concurrent use.
type Pacer struct {
	mutex     sync.Mutex
	rng       *rand.Rand
	waitCount int64
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer seeded from the clock
func NewPacer() *Pacer {
	return NewPacerWithSeed(time.Now().UnixNano())
}

// NewPacerWithSeed creates a deterministic pacer
func NewPacerWithSeed(seed int64) *Pacer {
	return &Pacer{
		rng:   rand.New(rand.NewSource(seed)),
		sleep: sleepContext,
	}
}

// WithSleeper replaces the sleep function; tests use it to record waits
func (p *Pacer) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) *Pacer {
	p.sleep = sleep
	return p
}

// Wait sleeps for a duration drawn from r, returning early if ctx ends
func (p *Pacer) Wait(ctx context.Context, r DelayRange) error {
	if r.IsZero() {
		return ctx.Err()
	}
	p.mutex.Lock()
	delay := r.Sample(p.rng)
	p.waitCount++
	p.mutex.Unlock()

	logrus.WithFields(logrus.Fields{
		"component": "Pacer",
		"delay":     delay,
	}).Debug("Pacing wait")

	return p.sleep(ctx, delay)
}

// Chance returns true with probability prob
func (p *Pacer) Chance(prob float64) bool {
	if prob <= 0 {
		return false
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.rng.Float64() < prob
}

// WaitCount returns the number of non-zero waits performed
func (p *Pacer) WaitCount() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.waitCount
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
