package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cgast/prowrite/internal/inspector"
	"github.com/cgast/prowrite/internal/sandbox"
	"github.com/cgast/prowrite/pkg/bench"
	"github.com/cgast/prowrite/pkg/protocol"
	"github.com/cgast/prowrite/pkg/store"
	"github.com/cgast/prowrite/pkg/task"
)

var serveModel string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer JSON-RPC requests on stdin/stdout",
	Long: `Serve mode lets another program drive evaluations. Each line on stdin is a
JSON-RPC 2.0 request; each response is written as one line on stdout.

Methods: tasks.list, task.validate, task.evaluate, runs.list, runs.get,
rpc.methods.

Example:
  echo '{"jsonrpc":"2.0","id":1,"method":"tasks.list"}' | prowrite serve --model gpt-4o`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleServe(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveModel, "model", "m", "", "model under test for task.evaluate")
	serveCmd.MarkFlagRequired("model")
	rootCmd.AddCommand(serveCmd)
}

// taskEvaluator is the part of bench.Runner serve mode needs.
type taskEvaluator interface {
	EvaluateTask(ctx context.Context, t task.TaskSpec) bench.TaskResult
}

// handleServe implements `prowrite serve`.
func handleServe(cmd *cobra.Command) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	var runs inspector.RunSource
	var opts []bench.Option
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
		runs = st
		opts = append(opts, bench.WithRecorder(st))
	}

	runner, err := newRunner(cfg, logger, serveModel, opts...)
	if err != nil {
		return err
	}

	sb, err := cfg.Sandbox()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := protocol.NewHandler()
	registerMethods(h, serveDeps{tasksDir: cfg.TasksDir, eval: runner, runs: runs, sandbox: sb})
	return h.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

// serveDeps are the collaborators of the serve-mode methods. runs may be nil
// when no store is configured.
type serveDeps struct {
	tasksDir string
	eval     taskEvaluator
	runs     inspector.RunSource
	sandbox  *sandbox.Sandbox
}

func registerMethods(h *protocol.Handler, d serveDeps) {
	tasksDir, eval, runs := d.tasksDir, d.eval, d.runs

	h.Register(protocol.MethodTasksList, func(_ context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, perr := protocol.ParseParams[protocol.TasksListParams](params)
		if perr != nil {
			return nil, perr
		}
		var category task.Category
		if p.Category != "" {
			c, err := task.ParseCategory(p.Category)
			if err != nil {
				return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: err.Error()}
			}
			category = c
		}
		all, err := task.LoadDir(tasksDir, category)
		if err != nil {
			return nil, &protocol.Error{Code: protocol.CodeInternalError, Message: err.Error()}
		}
		infos := make([]protocol.TaskInfo, len(all))
		for i, l := range all {
			infos[i] = protocol.TaskInfo{ID: l.ID(), Path: l.Path}
			if l.Err != nil {
				infos[i].Error = l.Err.Error()
				continue
			}
			infos[i].Category = string(l.Spec.Category)
			infos[i].Difficulty = l.Spec.Difficulty
			infos[i].Turns = len(l.Spec.RevisionChain)
		}
		return infos, nil
	})

	h.Register(protocol.MethodTaskValidate, func(_ context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, perr := protocol.ParseParams[protocol.TaskValidateParams](params)
		if perr != nil {
			return nil, perr
		}
		var t task.TaskSpec
		var err error
		switch {
		case len(p.Task) > 0:
			t, err = task.ParseTask(p.Task)
		case p.Path != "":
			data, rerr := d.sandbox.ReadFile(p.Path)
			if rerr != nil {
				return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: rerr.Error()}
			}
			t, err = task.ParseTask(data)
		default:
			return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: "path or task is required"}
		}
		return validateResult(t, err), nil
	})

	h.Register(protocol.MethodTaskEvaluate, func(ctx context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, perr := protocol.ParseParams[protocol.TaskEvaluateParams](params)
		if perr != nil {
			return nil, perr
		}
		var t task.TaskSpec
		var err error
		switch {
		case len(p.Task) > 0:
			t, err = task.ParseTask(p.Task)
		case p.TaskID != "":
			t, err = task.FindTask(tasksDir, p.TaskID)
		default:
			return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: "task_id or task is required"}
		}
		if err != nil {
			if task.IsMalformed(err) {
				return nil, &protocol.Error{Code: protocol.CodeTaskMalformed, Message: err.Error(), Data: validateResult(t, err)}
			}
			return nil, &protocol.Error{Code: protocol.CodeTaskNotFound, Message: err.Error()}
		}
		return eval.EvaluateTask(ctx, t), nil
	})

	h.Register(protocol.MethodRunsList, func(context.Context, json.RawMessage) (any, *protocol.Error) {
		if runs == nil {
			return []store.RunInfo{}, nil
		}
		list, err := runs.ListRuns()
		if err != nil {
			return nil, &protocol.Error{Code: protocol.CodeInternalError, Message: err.Error()}
		}
		if list == nil {
			list = []store.RunInfo{}
		}
		return list, nil
	})

	h.Register(protocol.MethodRunsGet, func(_ context.Context, params json.RawMessage) (any, *protocol.Error) {
		p, perr := protocol.ParseParams[protocol.RunsGetParams](params)
		if perr != nil {
			return nil, perr
		}
		if p.RunID == "" {
			return nil, &protocol.Error{Code: protocol.CodeInvalidParams, Message: "run_id is required"}
		}
		if runs == nil {
			return nil, &protocol.Error{Code: protocol.CodeRunNotFound, Message: "no results store configured"}
		}
		rep, err := runs.LoadReport(p.RunID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &protocol.Error{Code: protocol.CodeRunNotFound, Message: err.Error()}
		}
		if err != nil {
			return nil, &protocol.Error{Code: protocol.CodeInternalError, Message: err.Error()}
		}
		return rep, nil
	})
}

// validateResult lists the schema violations behind err, one per field.
func validateResult(t task.TaskSpec, err error) protocol.ValidateResult {
	res := protocol.ValidateResult{Valid: err == nil, TaskID: t.ID}
	if err == nil {
		return res
	}
	var vr task.ValidationResult
	if errors.As(err, &vr) {
		for _, e := range vr.Errors {
			res.Errors = append(res.Errors, e.Error())
		}
		return res
	}
	res.Errors = []string{err.Error()}
	return res
}
