package shared

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func TestDelayRangeSampleStaysInBounds(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("sample lies within [min, max]", prop.ForAll(
		func(minNs, spanNs, seed int64) bool {
			r := DelayRange{Min: time.Duration(minNs), Max: time.Duration(minNs + spanNs)}
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 20; i++ {
				d := r.Sample(rng)
				if d < r.Min || d > r.Max {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, int64(5*time.Second)),
		gen.Int64Range(0, int64(5*time.Second)),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestDelayRangeEdgeCases(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	assert.True(t, DelayRange{}.IsZero())
	assert.Zero(t, DelayRange{}.Sample(rng))

	fixed := DelayRange{Min: 2 * time.Second, Max: 2 * time.Second}
	assert.Equal(t, 2*time.Second, fixed.Sample(rng))

	inverted := DelayRange{Min: 3 * time.Second, Max: time.Second}
	assert.Equal(t, 3*time.Second, inverted.Sample(rng), "max below min collapses to min")
}

func TestPacerRecordsWaits(t *testing.T) {
	recorder := &sleepRecorder{}
	pacer := NewPacerWithSeed(7).WithSleeper(recorder.sleep)
	ctx := context.Background()
	settle := DelayRange{Min: 2 * time.Second, Max: 3 * time.Second}

	require.NoError(t, pacer.Wait(ctx, DelayRange{}))
	assert.Zero(t, pacer.WaitCount(), "zero ranges never wait")
	assert.Empty(t, recorder.recorded())

	for i := 0; i < 5; i++ {
		require.NoError(t, pacer.Wait(ctx, settle))
	}
	assert.EqualValues(t, 5, pacer.WaitCount())
	delays := recorder.recorded()
	require.Len(t, delays, 5)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, settle.Min)
		assert.LessOrEqual(t, d, settle.Max)
	}
}

func TestPacerWaitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pacer := NewPacerWithSeed(1)
	assert.ErrorIs(t, pacer.Wait(ctx, DelayRange{Min: time.Hour, Max: time.Hour}), context.Canceled)
	assert.ErrorIs(t, pacer.Wait(ctx, DelayRange{}), context.Canceled)
}

func TestPacerChance(t *testing.T) {
	pacer := NewPacerWithSeed(3)
	for i := 0; i < 50; i++ {
		assert.False(t, pacer.Chance(0))
		assert.True(t, pacer.Chance(1))
	}
}
