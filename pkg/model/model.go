// Package model adapts language-model providers to a single Generate call and
// wraps them with timeouts, rate limits and tracing.
package model

import (
	"context"
	"errors"
	"fmt"
)

// Constraints are the generation parameters passed with every call.
type Constraints struct {
	MaxTokens   int
	Temperature float32
	System      string
}

// DefaultConstraints returns the parameters used for benchmark outputs.
func DefaultConstraints() Constraints {
	return Constraints{MaxTokens: 2000, Temperature: 0.7}
}

// JudgeConstraints returns the parameters used for judge calls.
func JudgeConstraints() Constraints {
	return Constraints{MaxTokens: 1000, Temperature: 0}
}

// Adapter is a model provider that turns a prompt into text.
type Adapter interface {
	Name() string
	Generate(ctx context.Context, prompt string, c Constraints) (string, error)
}

// ErrTimeout matches any ProviderError caused by a call exceeding its
// deadline.
var ErrTimeout = errors.New("provider call timed out")

// ProviderError is returned for every failed provider call: network, auth,
// rate-limit, non-success status or timeout.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Provider, e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Timeout {
		msg += " timed out"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTimeout) match timed-out calls.
func (e *ProviderError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// wrapError converts err into a ProviderError unless it already is one.
// Context deadline errors are flagged as timeouts.
func wrapError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Timeout:  errors.Is(err, context.DeadlineExceeded),
		Err:      err,
	}
}

// Func adapts a plain function to the Adapter interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, prompt string, c Constraints) (string, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Generate(ctx context.Context, prompt string, c Constraints) (string, error) {
	return f.Fn(ctx, prompt, c)
}
