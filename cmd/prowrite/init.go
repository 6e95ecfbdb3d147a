package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cgast/prowrite/internal/config"
	"github.com/cgast/prowrite/pkg/task"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write default config and provider files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleInit(cmd)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <task-file>...",
	Short: "Check task files against the task schema",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleValidate(cmd, args)
	},
}

// handleInit implements `prowrite init`.
func handleInit(cmd *cobra.Command) error {
	created, err := config.Init(configDir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(created) == 0 {
		fmt.Fprintf(out, "%s already initialized\n", configDir)
		return nil
	}
	for _, path := range created {
		fmt.Fprintf(out, "Created %s\n", path)
	}
	fmt.Fprintln(out, "Add provider credentials, then run:")
	fmt.Fprintf(out, "  prowrite run --model <model>\n")
	return nil
}

// handleValidate implements `prowrite validate <file>...`. Every file is
// checked; the command fails if any is invalid.
func handleValidate(cmd *cobra.Command, paths []string) error {
	out := cmd.OutOrStdout()
	invalid := 0
	for _, path := range paths {
		t, err := task.LoadTask(path)
		if err != nil {
			invalid++
			fmt.Fprintf(out, "✗ %s\n  %v\n", filepath.Clean(path), err)
			continue
		}
		fmt.Fprintf(out, "✓ %s (%s, %s)\n", filepath.Clean(path), t.ID, t.Category)
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d task files invalid", invalid, len(paths))
	}
	return nil
}
