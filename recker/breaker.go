package recker

import (
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore wraps an existing Redis client as a gobreaker.SharedDataStore
// so multiple recker clients can share one breaker's state.
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	store := recker.NewRedisStore(rdb)
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// CircuitBreaker matches gobreaker.CircuitBreaker's Execute signature, kept
// as its own interface so tests can substitute a fake without depending on
// gobreaker directly.
type CircuitBreaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
}

// BreakerClassifier reports whether a RoundTrip outcome should count as a
// breaker failure (a 500 and a dial timeout both qualify; a 429 does not).
type BreakerClassifier func(resp *http.Response, err error) bool

// BreakerConfig configures the breaker plugin (spec §4 circuit breaking).
// Closed allows traffic, Open rejects immediately, Half-Open probes with a
// limited number of requests to test recovery.
type BreakerConfig struct {
	// MaxRequests caps concurrent probes while half-open. 0 means 1.
	MaxRequests uint32

	// Interval periodically resets failure counts while closed. 0 disables
	// the reset (counts accumulate for the life of the breaker).
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration

	// FailureThreshold is the minimum request count before FailureRatio can
	// trip the breaker.
	FailureThreshold uint32

	// FailureRatio trips the breaker once failures/requests reaches it.
	FailureRatio float64

	// ConsecutiveFailures trips the breaker immediately once reached. 0
	// disables this rule.
	ConsecutiveFailures uint32

	// Store, when set, makes the breaker's state shared across processes
	// via Redis instead of held in local memory.
	Store gobreaker.SharedDataStore

	// Classifier decides which outcomes count as failures.
	Classifier BreakerClassifier

	// OnStateChange is notified on every Closed/Open/Half-Open transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DistributedBreakerConfig returns DefaultBreakerConfig with store attached,
// so every client instance pointed at the same store trips and recovers
// together.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// DefaultBreakerConfig returns a fail-fast, recover-fast local breaker:
// trips after 5 consecutive failures or a 50% failure ratio once at least
// 20 requests have been observed.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DisabledBreakerConfig returns a configuration whose thresholds can never
// be met, effectively turning the breaker into a no-op pass-through.
func DisabledBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: ^uint32(0),
		FailureRatio:     1.0,
		Classifier:       func(_ *http.Response, _ error) bool { return false },
	}
}

// DefaultBreakerClassifier treats 5xx and dial/network errors as failures.
// 429 is deliberately excluded — rate limiting is the retry/backoff
// plugin's concern, not a breaker-tripping condition.
func DefaultBreakerClassifier(resp *http.Response, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}
	return resp != nil && resp.StatusCode >= 500
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT)
}
