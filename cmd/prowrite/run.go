package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cgast/prowrite/internal/config"
	"github.com/cgast/prowrite/internal/inspector"
	"github.com/cgast/prowrite/pkg/bench"
	"github.com/cgast/prowrite/pkg/events"
	"github.com/cgast/prowrite/pkg/report"
	"github.com/cgast/prowrite/pkg/store"
	"github.com/cgast/prowrite/pkg/task"
)

var (
	runModel     string
	runCategory  string
	runTasks     []string
	runTasksDir  string
	runOutput    string
	runFormat    string
	runJudges    []string
	runSeed      uint64
	runInspector int
	evalTask     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark suite against a model",
	Long: `Loads every task under the tasks directory, generates outputs with the
model under test and scores them. Files that fail to load are reported as
malformed. Results are saved as JSON and, when a store is configured, in the
results database.

Examples:
  prowrite run --model claude-sonnet-4-20250514
  prowrite run --model openai:gpt-4o --category constrained_revision
  prowrite run --model gpt-4o --tasks cr-001,sd-002 --inspector 7070`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleRun(cmd, "")
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a single task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleRun(cmd, evalTask)
	},
}

func init() {
	for _, c := range []*cobra.Command{runCmd, evaluateCmd} {
		c.Flags().StringVarP(&runModel, "model", "m", "", "model under test (e.g. claude-sonnet-4-20250514, openai:gpt-4o)")
		c.Flags().StringVar(&runTasksDir, "tasks-dir", "", "task directory (default from config)")
		c.Flags().StringVarP(&runOutput, "output", "o", "", "results JSON path (default <results_dir>/<model>_<timestamp>.json)")
		c.Flags().StringVar(&runFormat, "format", "text", "report format printed after the run (text, markdown, json)")
		c.Flags().StringSliceVar(&runJudges, "judge", nil, "judge models, overriding judge.models")
		c.Flags().Uint64Var(&runSeed, "seed", 0, "pairwise comparison seed, overriding scoring.seed")
		c.Flags().IntVar(&runInspector, "inspector", 0, "serve the inspector on this port while running")
		c.MarkFlagRequired("model")
	}
	runCmd.Flags().StringVarP(&runCategory, "category", "c", "", "only run tasks of this category")
	runCmd.Flags().StringSliceVar(&runTasks, "tasks", nil, "only run these task ids, in this order")
	evaluateCmd.Flags().StringVarP(&evalTask, "task", "t", "", "task id")
	evaluateCmd.MarkFlagRequired("task")
}

// handleRun implements `prowrite run` and, with a task id, `prowrite evaluate`.
func handleRun(cmd *cobra.Command, taskID string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if len(runJudges) > 0 {
		cfg.Judge.Models = runJudges
	}
	if cmd.Flags().Changed("seed") {
		cfg.Scoring.Seed = runSeed
	}
	format, err := report.ParseFormat(runFormat)
	if err != nil {
		return err
	}

	tasks, err := selectTasks(cfg, taskID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return errors.New("no tasks selected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewMemoryBus()
	defer bus.Close()
	promReg := prometheus.NewRegistry()
	opts := []bench.Option{
		bench.WithBus(bus),
		bench.WithMetrics(bench.NewMetrics(promReg)),
	}

	var st *store.BoltStore
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, bench.WithRecorder(st))
	}

	if port := inspectorPort(cfg); port > 0 {
		var runs inspector.RunSource
		if st != nil {
			runs = st
		}
		srv := inspector.New(bus, runs, promReg, logger)
		srv.StartAsync(ctx, port)
		fmt.Fprintf(os.Stderr, "Inspector running at http://localhost:%d\n", port)
	}

	runner, err := newRunner(cfg, logger, runModel, opts...)
	if err != nil {
		return err
	}

	rep, runErr := runner.RunLoaded(ctx, tasks)

	outPath := runOutput
	if outPath == "" {
		outPath = report.DefaultResultsPath(cfg.ResultsDir, rep)
	}
	if err := report.SaveResults(outPath, rep); err != nil {
		return err
	}
	logger.Info("results saved", slog.String("path", outPath), slog.String("run_id", rep.RunID))

	out, err := report.Render(rep, format)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return runErr
}

// selectTasks loads the tasks for a run. A single taskID selects just that
// task; otherwise --tasks and --category narrow the directory listing.
func selectTasks(cfg config.Config, taskID string) ([]task.Loaded, error) {
	dir := runTasksDir
	if dir == "" {
		dir = cfg.TasksDir
	}

	var category task.Category
	if taskID == "" && runCategory != "" {
		c, err := task.ParseCategory(runCategory)
		if err != nil {
			return nil, err
		}
		category = c
	}

	all, err := task.LoadDir(dir, category)
	if err != nil {
		return nil, err
	}
	switch {
	case taskID != "":
		return task.Select(all, []string{taskID}), nil
	case len(runTasks) > 0:
		return task.Select(all, runTasks), nil
	}
	return all, nil
}

// inspectorPort returns the port to serve the inspector on, or 0 when it is
// disabled. The --inspector flag wins over the config file.
func inspectorPort(cfg config.Config) int {
	if runInspector > 0 {
		return runInspector
	}
	if cfg.Inspector.Enabled {
		if cfg.Inspector.Port > 0 {
			return cfg.Inspector.Port
		}
		return config.DefaultInspectorPort
	}
	return 0
}

// newRunner resolves the model under test and the judges from the provider
// config and builds a runner for them.
func newRunner(cfg config.Config, logger *slog.Logger, modelSpec string, opts ...bench.Option) (*bench.Runner, error) {
	pc, err := config.LoadProviderConfig(config.Path(configDir, config.ProvidersFile))
	if err != nil {
		return nil, err
	}
	reg := newRegistry(pc, logger)
	lims := cfg.Limiters()
	adapter, err := reg.ResolveWrapped(modelSpec, cfg.ModelOptions(), lims)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", modelSpec, err)
	}
	judge, err := buildJudge(cfg, pc, reg, lims)
	if err != nil {
		return nil, err
	}
	return bench.NewRunner(adapter, judge, cfg.Bench(logger), opts...)
}
