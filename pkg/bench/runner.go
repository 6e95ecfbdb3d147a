package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cgast/prowrite/pkg/events"
	"github.com/cgast/prowrite/pkg/model"
	"github.com/cgast/prowrite/pkg/oracle"
	"github.com/cgast/prowrite/pkg/score"
	"github.com/cgast/prowrite/pkg/scorer"
	"github.com/cgast/prowrite/pkg/task"
	"github.com/cgast/prowrite/pkg/text"
)

var tracer = otel.Tracer("prowrite.bench")

// Config tunes a Runner.
type Config struct {
	Concurrency    int
	WordBudget     int
	BalanceK       float64
	JudgeThreshold float64
	PassThreshold  float64
	// Seed is the base seed for pairwise comparisons. Zero picks one per
	// runner; the seed used is recorded in every SuiteReport.
	Seed     uint64
	Weights  score.Weights
	Generate model.Constraints
	Logger   *slog.Logger
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:    4,
		WordBudget:     text.DefaultWordBudget,
		BalanceK:       scorer.DefaultBalanceK,
		JudgeThreshold: 50,
		PassThreshold:  DefaultPassThreshold,
		Weights:        score.DefaultWeights(),
		Generate:       model.DefaultConstraints(),
	}
}

// Recorder persists results as a run progresses.
type Recorder interface {
	SaveResult(r TaskResult) error
	SaveReport(r SuiteReport) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithBus publishes run and task events to bus.
func WithBus(bus events.Bus) Option {
	return func(r *Runner) {
		r.bus = bus
	}
}

// WithRecorder saves every result and the final report through rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithMetrics updates m as tasks finish.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithRunID fixes the run id instead of generating one per run.
func WithRunID(id string) Option {
	return func(r *Runner) {
		r.newID = func() string { return id }
	}
}

// Runner generates outputs for tasks with one model and scores them.
type Runner struct {
	adapter   model.Adapter
	judge     oracle.Judge
	cfg       Config
	evaluator *Evaluator
	bus       events.Bus
	recorder  Recorder
	metrics   *Metrics
	logger    *slog.Logger
	newID     func() string
}

// NewRunner creates a runner for adapter, scored by judge.
func NewRunner(adapter model.Adapter, judge oracle.Judge, cfg Config, opts ...Option) (*Runner, error) {
	if adapter == nil {
		return nil, errors.New("runner: no model adapter")
	}
	if judge == nil {
		return nil, errors.New("runner: no judge")
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	r := &Runner{
		adapter:   adapter,
		judge:     judge,
		cfg:       cfg,
		evaluator: NewEvaluator(judge, cfg),
		logger:    cfg.Logger,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Seed returns the base seed used for pairwise comparisons.
func (r *Runner) Seed() uint64 { return r.cfg.Seed }

// Run evaluates tasks and returns a report with one result per task, in
// input order. Task failures are recorded in the report, never returned.
// The error is non-nil only when ctx ends early or the report cannot be
// saved; the report is complete either way.
func (r *Runner) Run(ctx context.Context, tasks []task.TaskSpec) (SuiteReport, error) {
	loaded := make([]task.Loaded, len(tasks))
	for i, t := range tasks {
		loaded[i] = task.Loaded{Spec: t}
	}
	return r.RunLoaded(ctx, loaded)
}

// RunLoaded is Run over loader output. Entries that failed to load, and
// entries repeating an earlier task id, become malformed results.
func (r *Runner) RunLoaded(ctx context.Context, tasks []task.Loaded) (SuiteReport, error) {
	tasks = task.MarkDuplicates(tasks)
	runID := r.newID()
	ctx, span := tracer.Start(ctx, "bench.Run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("model", r.adapter.Name()),
			attribute.Int("tasks", len(tasks)),
		),
	)
	defer span.End()

	report := SuiteReport{
		RunID:     runID,
		Model:     r.adapter.Name(),
		Judges:    r.judgeNames(),
		Seed:      r.cfg.Seed,
		StartedAt: time.Now(),
		Results:   make([]TaskResult, len(tasks)),
	}

	r.logger.Info("run started",
		slog.String("run_id", runID),
		slog.String("model", report.Model),
		slog.Int("tasks", len(tasks)),
		slog.Int("concurrency", r.cfg.Concurrency),
	)
	r.publish(events.Event{Type: events.EventRunStart, RunID: runID, Data: events.RunInfo{
		Model: report.Model, Judges: report.Judges, Tasks: len(tasks),
	}})

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, l := range tasks {
		g.Go(func() error {
			report.Results[i] = r.runOne(ctx, runID, i, l)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now()
	report.Summary = Summarize(report.Results, r.cfg.PassThreshold)

	r.logger.Info("run finished",
		slog.String("run_id", runID),
		slog.Int("scored", report.Summary.Scored),
		slog.Int("evaluation_failed", report.Summary.EvaluationFailed),
		slog.Int("malformed", report.Summary.Malformed),
		slog.Float64("mean", report.Summary.Mean),
		slog.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)
	r.publish(events.Event{
		Type:     events.EventRunEnd,
		RunID:    runID,
		Duration: report.FinishedAt.Sub(report.StartedAt),
		Data: events.RunInfo{
			Model: report.Model, Judges: report.Judges, Tasks: len(tasks),
			Scored: report.Summary.Scored, Mean: report.Summary.Mean,
		},
	})

	var err error
	if r.recorder != nil {
		if serr := r.recorder.SaveReport(report); serr != nil {
			err = fmt.Errorf("save report %s: %w", runID, serr)
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(ctxErr, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return report, err
}

// EvaluateTask runs a single task under a fresh run id.
func (r *Runner) EvaluateTask(ctx context.Context, t task.TaskSpec) TaskResult {
	return r.evaluateTask(ctx, r.newID(), t)
}

func (r *Runner) runOne(ctx context.Context, runID string, i int, l task.Loaded) TaskResult {
	r.metrics.started()
	r.publish(events.Event{Type: events.EventTaskStart, RunID: runID, TaskIndex: i,
		Data: events.TaskInfo{TaskID: l.ID()}})

	var res TaskResult
	if l.Err != nil {
		res = TaskResult{
			RunID:     runID,
			TaskID:    l.ID(),
			Model:     r.adapter.Name(),
			Status:    StatusMalformed,
			Reason:    l.Err.Error(),
			StartedAt: time.Now(),
		}
		r.logger.Warn("task malformed",
			slog.String("task_id", res.TaskID),
			slog.String("status", string(res.Status)),
			slog.String("error", res.Reason),
		)
	} else {
		res = r.evaluateTask(ctx, runID, l.Spec)
	}
	res.Index = i

	r.metrics.observe(res, res.Duration)
	if r.recorder != nil {
		if err := r.recorder.SaveResult(res); err != nil {
			r.logger.Error("save result failed",
				slog.String("task_id", res.TaskID),
				slog.String("error", err.Error()),
			)
		}
	}

	info := events.TaskInfo{TaskID: res.TaskID, Status: string(res.Status), Final: res.Final, Reason: res.Reason}
	typ := events.EventTaskEnd
	if !res.Scored() {
		typ = events.EventTaskFailed
	}
	r.publish(events.Event{Type: typ, RunID: runID, TaskIndex: i, Duration: res.Duration, Data: info})
	return res
}

func (r *Runner) evaluateTask(ctx context.Context, runID string, t task.TaskSpec) TaskResult {
	ctx, span := tracer.Start(ctx, "bench.EvaluateTask",
		trace.WithAttributes(
			attribute.String("task.id", t.ID),
			attribute.String("task.category", string(t.Category)),
		),
	)
	defer span.End()

	start := time.Now()
	res := TaskResult{
		RunID:     runID,
		TaskID:    t.ID,
		Category:  t.Category,
		Model:     r.adapter.Name(),
		StartedAt: start,
	}
	r.logger.Debug("task started", slog.String("run_id", runID), slog.String("task_id", t.ID))

	fail := func(stage string, err error) TaskResult {
		res.Status = StatusEvaluationFailed
		res.Reason = fmt.Sprintf("%s: %v", stage, err)
		res.Duration = time.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, res.Reason)
		attrs := []any{
			slog.String("task_id", t.ID),
			slog.String("status", string(res.Status)),
			slog.String("error", res.Reason),
		}
		var pe *model.ProviderError
		if errors.As(err, &pe) {
			attrs = append(attrs, slog.String("provider", pe.Provider), slog.Bool("timeout", pe.Timeout))
		}
		r.logger.Warn("task evaluation failed", attrs...)
		return res
	}

	initial, turns, err := r.generate(ctx, t)
	res.Outputs = outputs(initial, turns)
	if err != nil {
		return fail("generate", err)
	}

	ev, err := r.evaluator.Evaluate(ctx, t, initial, turns)
	if err != nil {
		return fail("score", err)
	}

	final := ev.Breakdown.Final
	res.Status = StatusScored
	res.Scores = ev.Scores
	res.Failures = ev.Failures
	res.Breakdown = &ev.Breakdown
	res.Final = &final
	res.Constraints = &ev.Constraints
	res.Predicates = ev.Predicates
	res.Revision = ev.Revision
	if ev.Revision != nil {
		res.Seeds = ev.Revision.Seeds()
	}
	res.Duration = time.Since(start)

	span.SetAttributes(attribute.Float64("task.final_score", final), attribute.Int("task.critical_failures", ev.Failures.Len()))
	span.SetStatus(codes.Ok, "")
	r.logger.Info("task scored",
		slog.String("task_id", t.ID),
		slog.String("status", string(res.Status)),
		slog.Float64("final", final),
		slog.Int("critical_failures", ev.Failures.Len()),
		slog.Duration("duration", res.Duration),
	)
	return res
}

// generate produces the initial draft and, for revision tasks, one response
// per feedback turn. Each revision prompt carries the drafts so far.
func (r *Runner) generate(ctx context.Context, t task.TaskSpec) (string, []scorer.Turn, error) {
	initial, err := r.adapter.Generate(ctx, task.Prompt(t), r.cfg.Generate)
	if err != nil {
		return "", nil, err
	}
	if !t.IsRevision() {
		return initial, nil, nil
	}

	drafts := []string{initial}
	turns := make([]scorer.Turn, 0, len(t.RevisionChain))
	for i, fb := range t.RevisionChain {
		prompt, err := task.RevisionPrompt(t, drafts, i)
		if err != nil {
			return initial, turns, err
		}
		resp, err := r.adapter.Generate(ctx, prompt, r.cfg.Generate)
		if err != nil {
			return initial, turns, fmt.Errorf("revision round %d: %w", i+1, err)
		}
		drafts = append(drafts, resp)
		turns = append(turns, scorer.Turn{Feedback: fb.Feedback, Response: resp})
	}
	return initial, turns, nil
}

func outputs(initial string, turns []scorer.Turn) []string {
	if initial == "" && len(turns) == 0 {
		return nil
	}
	out := make([]string, 0, len(turns)+1)
	out = append(out, initial)
	for _, t := range turns {
		out = append(out, t.Response)
	}
	return out
}

func (r *Runner) judgeNames() []string {
	if e, ok := r.judge.(*oracle.Ensemble); ok {
		members := e.Members()
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = m.Name()
		}
		return names
	}
	return []string{r.judge.Name()}
}

func (r *Runner) publish(e events.Event) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(e)
}
