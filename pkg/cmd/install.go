package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bitey-pm/bitey/pkg/installer"
	"github.com/bitey-pm/bitey/pkg/resolver"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newInstallCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <package>...",
		Short: "Install packages and their dependencies",
		Long: `Locates each package in the configured remotes, resolves its dependencies
from the same remote and installs everything in dependency order.

The full plan is shown for confirmation first unless --yes is given.`,
		Args: cobra.MinimumNArgs(1),
	}
	yes := cmd.Flags().BoolP("yes", "y", false, "install without asking for confirmation")
	cmd.RunE = g.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return runInstall(ctx, g, cmd, args, *yes)
	})
	return cmd
}

func runInstall(ctx context.Context, g *globals, cmd *cobra.Command, args []string, yes bool) error {
	inst, err := g.installer(true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var confirmPlan installer.ConfirmFunc
	if !yes {
		confirmPlan = func(plan *resolver.Plan) (bool, error) {
			renderPlan(out, plan)
			return confirm(fmt.Sprintf("Install %d package(s)?", plan.Len()), "")
		}
	}

	report, err := inst.InstallPackages(ctx, args, confirmPlan)
	if errors.Is(err, installer.ErrAborted) {
		fmt.Fprintln(out, "Aborted, nothing was installed")
		return err
	}
	if err != nil {
		return err
	}

	for _, name := range report.Skipped {
		fmt.Fprintf(out, "%s is already installed\n", name)
	}
	for _, name := range report.Installed {
		fmt.Fprintf(out, "Installed %s\n", name)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(out, "Failed %s\n", f)
	}
	return report.Err()
}

func renderPlan(w io.Writer, plan *resolver.Plan) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Package", "Version", "Reason", "Remote"})
	for _, e := range plan.Entries() {
		reason := "dependency"
		if e.Requested {
			reason = "requested"
		}
		t.AppendRow(table.Row{e.Name, e.Manifest.Version, reason, e.RemoteURL})
	}
	t.Render()
}
