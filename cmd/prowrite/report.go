package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cgast/prowrite/internal/config"
	"github.com/cgast/prowrite/pkg/bench"
	"github.com/cgast/prowrite/pkg/report"
	"github.com/cgast/prowrite/pkg/store"
)

var (
	reportResults string
	reportRun     string
	reportFormat  string
	reportPublish string
	runsDelete    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render a saved run as text, markdown or JSON",
	Long: `Renders a results file or a stored run, and optionally publishes it as a
GitHub issue.

Examples:
  prowrite report --results results/gpt-4o_20260101_120000.json
  prowrite report --run 6f1c... --format markdown
  prowrite report --results r.json --publish cgast/prowrite-results`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleReport(cmd)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs in the results store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleRuns(cmd)
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportResults, "results", "r", "", "results JSON file")
	reportCmd.Flags().StringVar(&reportRun, "run", "", "run id in the results store")
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", "text", "output format (text, markdown, json)")
	reportCmd.Flags().StringVar(&reportPublish, "publish", "", "publish the report as an issue in owner/repo")
	reportCmd.MarkFlagsOneRequired("results", "run")
	reportCmd.MarkFlagsMutuallyExclusive("results", "run")

	runsCmd.Flags().StringVar(&runsDelete, "delete", "", "delete the run with this id")
}

// handleReport implements `prowrite report`.
func handleReport(cmd *cobra.Command) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(reportFormat)
	if err != nil {
		return err
	}

	var rep bench.SuiteReport
	if reportResults != "" {
		rep, err = report.LoadResults(reportResults)
	} else {
		rep, err = loadStoredReport(cfg, reportRun)
	}
	if err != nil {
		return err
	}

	out, err := report.Render(rep, format)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)

	if !cmd.Flags().Changed("publish") {
		return nil
	}
	return publish(cmd, rep)
}

func publish(cmd *cobra.Command, rep bench.SuiteReport) error {
	pc, err := config.LoadProviderConfig(config.Path(configDir, config.ProvidersFile))
	if err != nil {
		return err
	}
	repo := reportPublish
	if repo == "" {
		repo = pc.GitHub.DefaultRepo
	}
	if repo == "" {
		return errors.New("no repository to publish to (pass --publish owner/repo or set github.default_repo)")
	}

	pub, err := report.NewPublisher(pc.GitHub.Token, report.WithLabels("prowritebench"))
	if err != nil {
		return err
	}
	issue, err := pub.Publish(context.Background(), repo, rep)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published #%d: %s\n", issue.Number, issue.URL)
	return nil
}

func loadStoredReport(cfg config.Config, runID string) (bench.SuiteReport, error) {
	st, err := openStore(cfg)
	if err != nil {
		return bench.SuiteReport{}, err
	}
	defer st.Close()
	return st.LoadReport(runID)
}

func openStore(cfg config.Config) (*store.BoltStore, error) {
	if cfg.Store.Path == "" {
		return nil, errors.New("no results store configured (store.path)")
	}
	return store.Open(cfg.Store.Path)
}

// handleRuns implements `prowrite runs`.
func handleRuns(cmd *cobra.Command) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	if runsDelete != "" {
		if err := st.DeleteRun(runsDelete); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %s\n", runsDelete)
		return nil
	}

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No stored runs.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tMODEL\tSTARTED\tSCORED\tMEAN\tPASS RATE")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%.2f\t%.0f%%\n",
			r.RunID, r.Model, r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Summary.Scored, r.Summary.Total, r.Summary.Mean, r.Summary.PassRate*100)
	}
	return w.Flush()
}
