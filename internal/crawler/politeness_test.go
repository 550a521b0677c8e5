package crawler

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVisitTrackerMarkIfNew(t *testing.T) {
	var tracker visitTracker
	require.True(t, tracker.MarkIfNew("https://example.com/a"))
	require.False(t, tracker.MarkIfNew("https://example.com/a"))
	require.True(t, tracker.MarkIfNew("https://example.com/b"))
	require.False(t, tracker.MarkIfNew(""))
}

func TestVisitTrackerConcurrentMarks(t *testing.T) {
	var tracker visitTracker
	var wg sync.WaitGroup
	wins := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.MarkIfNew("https://example.com/contested") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	require.Len(t, wins, 1)
}

func TestHostLimiterSpacesRequests(t *testing.T) {
	limiter := newHostLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "example.com"))
	require.NoError(t, limiter.Wait(ctx, "example.com"))
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestHostLimiterIsPerHost(t *testing.T) {
	limiter := newHostLimiter(time.Second)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "a.example.com"))
	require.NoError(t, limiter.Wait(ctx, "b.example.com"))
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestHostLimiterRespectsContext(t *testing.T) {
	limiter := newHostLimiter(time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, limiter.Wait(ctx, "example.com"))
	require.Error(t, limiter.Wait(ctx, "example.com"))
}

func TestRetryPolicyDecisions(t *testing.T) {
	policy := newRetryPolicy()

	require.False(t, policy.shouldRetry(nil, 1))
	require.False(t, policy.shouldRetry(errors.New("boom"), 3))
	require.False(t, policy.shouldRetry(context.Canceled, 1))
	require.False(t, policy.shouldRetry(context.DeadlineExceeded, 1))
	require.True(t, policy.shouldRetry(errors.New("boom"), 1))

	timeoutErr := &net.DNSError{IsTimeout: true}
	require.True(t, policy.shouldRetry(timeoutErr, 1))
	permanentErr := &net.DNSError{IsNotFound: true}
	require.False(t, policy.shouldRetry(permanentErr, 1))
}

func TestRetryPolicyBackoffIsBounded(t *testing.T) {
	policy := newRetryPolicy()
	for attempt := 0; attempt < 10; attempt++ {
		delay := policy.backoff(attempt)
		require.Greater(t, delay, time.Duration(0))
		require.LessOrEqual(t, delay, policy.maxDelay)
	}
}
