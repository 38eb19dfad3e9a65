// Package resilience provides the circuit breaker that guards every call to
// the backend. Calls are never retried automatically: a retry is always a
// user-initiated resubmission.
package resilience

import (
	"errors"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"

	"github.com/sony/gobreaker"
)

// Config holds circuit breaker parameters.
type Config struct {
	MaxRequests  uint32        // half-open: requests let through
	Interval     time.Duration // closed: counters reset period
	Timeout      time.Duration // open -> half-open delay
	MinRequests  uint32        // requests seen before the breaker may trip
	FailureRatio float64
}

// DefaultConfig returns the breaker settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxRequests:  3,
		Interval:     30 * time.Second,
		Timeout:      10 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// NewCircuitBreaker creates a circuit breaker. Only failures that say
// something about the backend's health count: no response at all, or a 5xx.
// Rejections such as bad credentials or validation errors do not trip it.
func NewCircuitBreaker(name string, cfg Config) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: IsHealthy,
	})
}

// IsHealthy reports whether err leaves the backend's health untouched.
func IsHealthy(err error) bool {
	if err == nil {
		return true
	}
	var network *domain.ErrNetwork
	if errors.As(err, &network) {
		return false
	}
	var server *domain.ErrServer
	if errors.As(err, &server) {
		return server.Status < 500
	}
	return true
}

// IsOpen reports whether err comes from the breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
