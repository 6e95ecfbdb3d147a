package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cgast/prowrite/pkg/model"
	"github.com/cgast/prowrite/pkg/score"
)

// Method selects how an ensemble combines verdicts.
type Method string

const (
	MethodMean   Method = "mean"
	MethodMedian Method = "median"
)

// ParseMethod returns the method for s, defaulting to mean for "".
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodMean:
		return MethodMean, nil
	case MethodMedian:
		return MethodMedian, nil
	}
	return "", fmt.Errorf("unknown ensemble method %q", s)
}

// Ensemble asks every member judge concurrently and combines the scores.
// Members that fail are skipped; the call fails only when all of them do.
type Ensemble struct {
	judges []Judge
	method Method
}

// NewEnsemble combines judges with method, defaulting to mean.
func NewEnsemble(method Method, judges ...Judge) *Ensemble {
	if method == "" {
		method = MethodMean
	}
	return &Ensemble{judges: judges, method: method}
}

func (e *Ensemble) Name() string {
	names := make([]string, len(e.judges))
	for i, j := range e.judges {
		names[i] = j.Name()
	}
	if len(names) == 1 {
		return names[0]
	}
	return string(e.method) + "(" + strings.Join(names, ",") + ")"
}

// Members returns the member judges.
func (e *Ensemble) Members() []Judge { return e.judges }

// Verdicts returns every member's verdict and error, in member order.
func (e *Ensemble) Verdicts(ctx context.Context, prompt, rubric string) ([]Verdict, []error) {
	verdicts := make([]Verdict, len(e.judges))
	errs := make([]error, len(e.judges))

	var g errgroup.Group
	for i, j := range e.judges {
		g.Go(func() error {
			verdicts[i], errs[i] = j.Judge(ctx, prompt, rubric)
			return nil
		})
	}
	_ = g.Wait()
	return verdicts, errs
}

// Judge implements Judge.
func (e *Ensemble) Judge(ctx context.Context, prompt, rubric string) (Verdict, error) {
	if len(e.judges) == 0 {
		return Verdict{}, errors.New("ensemble has no judges")
	}
	verdicts, errs := e.Verdicts(ctx, prompt, rubric)

	var scores []float64
	var rationales []string
	for i, v := range verdicts {
		if errs[i] != nil {
			continue
		}
		scores = append(scores, v.Score)
		if v.Rationale != "" {
			if len(e.judges) == 1 {
				rationales = append(rationales, v.Rationale)
			} else {
				rationales = append(rationales, e.judges[i].Name()+": "+v.Rationale)
			}
		}
	}
	if len(scores) == 0 {
		return Verdict{}, firstError(errs)
	}

	s := score.Mean(scores)
	if e.method == MethodMedian {
		s = score.Median(scores)
	}
	return Verdict{
		Score:     score.Clamp(s),
		Rationale: strings.Join(rationales, "\n"),
		Judge:     e.Name(),
	}, nil
}

// firstError returns the first provider error, or else the first non-nil error.
func firstError(errs []error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if model.IsProviderError(err) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}

type boundedJudge struct {
	next    Judge
	timeout time.Duration
}

// WithTimeout bounds every Judge call the same way model.WithTimeout bounds
// Generate calls.
func WithTimeout(next Judge, timeout time.Duration) Judge {
	if timeout <= 0 {
		return next
	}
	return &boundedJudge{next: next, timeout: timeout}
}

func (b *boundedJudge) Name() string { return b.next.Name() }

func (b *boundedJudge) Judge(ctx context.Context, prompt, rubric string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type result struct {
		v   Verdict
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := b.next.Judge(ctx, prompt, rubric)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return Verdict{}, &model.ProviderError{
			Provider: b.next.Name(),
			Op:       "judge",
			Timeout:  ctx.Err() == context.DeadlineExceeded,
			Err:      fmt.Errorf("after %s: %w", b.timeout, ctx.Err()),
		}
	}
}

func ctxDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
