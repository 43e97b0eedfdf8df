// Package retry wraps calls to the generation service with the shared
// transient-failure policy: long waits after rate limiting, short linear
// backoff after malformed output, no retry for anything else.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/coursegen/internal/apperr"
)

// Class is the failure class of an attempt.
type Class int

const (
	// Fatal failures are returned immediately.
	Fatal Class = iota
	// RateLimited failures wait RateLimitWait × attempt.
	RateLimited
	// Malformed failures wait MalformedBackoff × attempt.
	Malformed
)

func (c Class) String() string {
	switch c {
	case RateLimited:
		return "rate_limited"
	case Malformed:
		return "malformed_output"
	default:
		return "fatal"
	}
}

// Classify maps an error to its failure class.
func Classify(err error) Class {
	switch {
	case errors.Is(err, apperr.ErrRateLimited):
		return RateLimited
	case errors.Is(err, apperr.ErrMalformedOutput):
		return Malformed
	default:
		return Fatal
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy configures Do.
type Policy struct {
	// Name identifies the call site in logs.
	Name             string
	MaxAttempts      int
	RateLimitWait    time.Duration
	MalformedBackoff time.Duration
	// Sleep defaults to a context-aware timer.
	Sleep  SleepFunc
	Logger *slog.Logger
}

// DefaultPolicy returns the policy used when a field is left zero.
func DefaultPolicy() Policy {
	return Policy{
		Name:             "generate",
		MaxAttempts:      3,
		RateLimitWait:    15 * time.Second,
		MalformedBackoff: time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.Name == "" {
		p.Name = def.Name
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.RateLimitWait <= 0 {
		p.RateLimitWait = def.RateLimitWait
	}
	if p.MalformedBackoff <= 0 {
		p.MalformedBackoff = def.MalformedBackoff
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// Wait returns how long to wait before the attempt after a failure of class c.
func (p Policy) Wait(c Class, attempt int) time.Duration {
	switch c {
	case RateLimited:
		return p.RateLimitWait * time.Duration(attempt)
	case Malformed:
		return p.MalformedBackoff * time.Duration(attempt)
	default:
		return 0
	}
}

// Do runs op until it succeeds, fails fatally, or MaxAttempts attempts have failed
// transiently. Exhaustion yields a single apperr generation error wrapping the last
// failure.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	lastClass := Fatal

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				p.Logger.Info("generation succeeded after retry", "op", p.Name, "attempt", attempt)
			}
			return result, nil
		}

		lastErr, lastClass = err, Classify(err)
		if lastClass == Fatal {
			p.Logger.Error("generation failed", "op", p.Name, "attempt", attempt, "error", err)
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Wait(lastClass, attempt)
		p.Logger.Warn("generation attempt failed, retrying",
			"op", p.Name,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"class", lastClass.String(),
			"wait", wait.String(),
			"error", err,
		)
		if err := p.Sleep(ctx, wait); err != nil {
			return zero, apperr.Generation("generation cancelled", err)
		}
	}

	p.Logger.Error("generation retries exhausted",
		"op", p.Name,
		"attempts", p.MaxAttempts,
		"class", lastClass.String(),
		"error", lastErr,
	)
	if lastClass == RateLimited {
		return zero, apperr.Generation(
			fmt.Sprintf("API rate limit exceeded after %d attempts, try again in a few minutes", p.MaxAttempts), lastErr)
	}
	return zero, apperr.Generation(
		fmt.Sprintf("could not parse generation output after %d attempts", p.MaxAttempts), lastErr)
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
