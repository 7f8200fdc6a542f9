package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitey-pm/bitey/pkg/installer"
	"github.com/spf13/cobra"
)

func newRemoveCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <package>...",
		Aliases: []string{"rm"},
		Short:   "Remove installed packages",
		Long: `Deletes each package's directory from the store. Packages that depend on a
removed package are not touched; they are listed as a warning first.`,
		Args: cobra.MinimumNArgs(1),
	}
	yes := cmd.Flags().BoolP("yes", "y", false, "remove without asking for confirmation")
	cmd.RunE = g.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return runRemove(g, cmd, args, *yes)
	})
	return cmd
}

func runRemove(g *globals, cmd *cobra.Command, args []string, yes bool) error {
	inst, err := g.installer(false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var warnings []string
	for _, name := range args {
		dependents, err := inst.RequiredBy(name)
		if err != nil {
			g.logger.Debug("could not read receipt", "package", name, "err", err)
			continue
		}
		if len(dependents) > 0 {
			warnings = append(warnings, fmt.Sprintf("%s is required by %s", name, strings.Join(dependents, ", ")))
		}
	}
	for _, w := range warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}

	if !yes {
		ok, err := confirm(fmt.Sprintf("Remove %s?", strings.Join(args, ", ")), strings.Join(warnings, "\n"))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted, nothing was removed")
			return installer.ErrAborted
		}
	}

	var errs []error
	for _, name := range args {
		if err := inst.Remove(name); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "Removed %s\n", name)
	}
	return errors.Join(errs...)
}
