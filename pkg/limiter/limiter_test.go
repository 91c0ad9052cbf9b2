package limiter_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/aerc-harvest/harvester/pkg/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_FirstCallDoesNotBlock(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter(10, 1)

	start := time.Now()
	err := rl.Acquire(context.Background(), "aerc.org")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 50*time.Millisecond)
}

func TestAcquire_ExhaustedBurstBlocksUntilRefill(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter(10, 1)
	host := "aerc.org"

	require.NoError(t, rl.Acquire(context.Background(), host))

	start := time.Now()
	require.NoError(t, rl.Acquire(context.Background(), host))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestAcquire_RespectsContextDeadline(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter(1, 1)
	host := "aerc.org"

	require.NoError(t, rl.Acquire(context.Background(), host))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rl.Acquire(ctx, host)
	assert.Error(t, err)
}

func TestAcquire_HostsAreIndependent(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter(1, 1)

	require.NoError(t, rl.Acquire(context.Background(), "a.example"))

	start := time.Now()
	require.NoError(t, rl.Acquire(context.Background(), "b.example"))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 50*time.Millisecond)
}

func TestConfigure_OverridesDefaultForHost(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter(1, 1)
	rl.Configure("fast.example", 1000, 10)

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Acquire(context.Background(), "fast.example"))
	}
}

func TestStats_CountsWaits(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter(10, 1)
	host := "aerc.org"

	require.NoError(t, rl.Acquire(context.Background(), host))
	require.NoError(t, rl.Acquire(context.Background(), host))

	stats := rl.Stats()
	assert.GreaterOrEqual(t, stats.Waits, int64(1))
	assert.GreaterOrEqual(t, stats.WaitTimeMs, int64(1))
}

func TestConcurrentAccessRateLimiter(t *testing.T) {
	rl := limiter.NewConcurrentRateLimiter(50, 5)
	hosts := []string{"a.example", "b.example", "c.example", "d.example", "e.example"}

	var wg sync.WaitGroup
	workers := 30
	opsPerWorker := 50

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(id)))
			for j := 0; j < opsPerWorker; j++ {
				host := hosts[r.Intn(len(hosts))]
				switch r.Intn(3) {
				case 0:
					rl.Configure(host, float64(10+r.Intn(40)), 1+r.Intn(5))
				default:
					ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
					_ = rl.Acquire(ctx, host)
					cancel()
				}
			}
		}(i)
	}

	wg.Wait()

	stats := rl.Stats()
	assert.GreaterOrEqual(t, stats.Waits, int64(0))
}
