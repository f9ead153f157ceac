package recker

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// circuitBreakerTransport wraps next with a CircuitBreaker, rejecting calls
// immediately while the breaker is open instead of letting them reach a
// struggling upstream.
type circuitBreakerTransport struct {
	breaker    CircuitBreaker
	next       http.RoundTripper
	classifier BreakerClassifier
	cfg        *internalConfig
	name       string
}

// errClassifiedFailure signals the breaker that a request the classifier
// marked as a failure (e.g. a 500) completed without a transport-level
// error. RoundTrip unwraps it before returning to the caller — the breaker
// needs to see it as a failure, but the caller still wants the response.
var errClassifiedFailure = errors.New("recker: classified as breaker failure")

func (t *circuitBreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	result, err := t.breaker.Execute(func() (interface{}, error) {
		resp, rtErr := t.next.RoundTrip(req) //nolint:bodyclose
		if !t.classifier(resp, rtErr) {
			return resp, nil
		}
		if rtErr != nil {
			return resp, rtErr
		}
		return resp, errClassifiedFailure
	})

	if err != nil {
		t.cfg.Metrics.recordBreakerRequest(ctx, t.name, breakerOutcome(err))

		if errors.Is(err, errClassifiedFailure) {
			if resp, ok := result.(*http.Response); ok {
				return resp, nil
			}
		}
		return nil, err
	}

	t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "success")

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, errors.New("recker: breaker returned an unexpected result type")
	}
	return resp, nil
}

// breakerOutcome labels a failed Execute call for metrics: a rejection by an
// open breaker is distinct from a request that actually ran and failed.
func breakerOutcome(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) {
		return "rejected"
	}
	return "failure"
}

// newCircuitBreakerTransport builds the breaker plugin from cfg.BreakerConfig,
// choosing a Redis-backed shared breaker when a Store is configured and
// falling back to a local one if distributed construction fails.
func newCircuitBreakerTransport(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if cfg.BreakerConfig == nil {
		return next
	}

	name := cfg.ServiceName
	if name == "" {
		name = "default-http-client"
	}

	settings := gobreakerSettings(name, cfg)
	breaker := buildBreaker(settings, cfg.BreakerConfig.Store)

	return &circuitBreakerTransport{
		breaker:    breaker,
		next:       next,
		classifier: cfg.BreakerConfig.Classifier,
		cfg:        cfg,
		name:       name,
	}
}

func gobreakerSettings(name string, cfg *internalConfig) gobreaker.Settings {
	bc := cfg.BreakerConfig
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if bc.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= bc.ConsecutiveFailures {
				return true
			}
			if bc.FailureThreshold > 0 && counts.Requests < bc.FailureThreshold {
				return false
			}
			if bc.FailureRatio > 0 && counts.TotalFailures > 0 {
				if float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio {
					return true
				}
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if cfg.Metrics != nil {
				cfg.Metrics.recordBreakerState(context.Background(), name, int64(to))
			}
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}
}

// buildBreaker picks between a Redis-backed distributed breaker and a local
// in-memory one. Distributed construction only fails when the store itself
// is nil, which the caller never passes here, but we still fall back to
// local rather than propagate an error from a plugin constructor.
func buildBreaker(settings gobreaker.Settings, store gobreaker.SharedDataStore) CircuitBreaker {
	if store == nil {
		return gobreaker.NewCircuitBreaker[interface{}](settings)
	}
	if dcb, err := gobreaker.NewDistributedCircuitBreaker[interface{}](store, settings); err == nil {
		return dcb
	}
	return gobreaker.NewCircuitBreaker[interface{}](settings)
}
