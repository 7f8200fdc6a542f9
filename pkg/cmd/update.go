package cmd

import (
	"context"
	"fmt"

	"github.com/bitey-pm/bitey/pkg/installer"
	"github.com/spf13/cobra"
)

func newUpdateCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [package...]",
		Short: "Update installed packages",
		Long: `Refetches each package's manifest through its stored pointer and reinstalls
it when the version changed. With no arguments every installed package is
checked.`,
	}
	cmd.RunE = g.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
		inst, err := g.installer(false)
		if err != nil {
			return err
		}

		results, err := inst.UpdateAll(ctx, args)
		out := cmd.OutOrStdout()
		for _, r := range results {
			switch r.Status {
			case installer.Updated:
				prev := r.Previous
				if prev == "" {
					prev = "?"
				}
				fmt.Fprintf(out, "Updated %s %s -> %s\n", r.Name, prev, r.Version)
			case installer.UpToDate:
				fmt.Fprintf(out, "%s is up to date (%s)\n", r.Name, r.Version)
			}
		}
		if len(results) == 0 && err == nil {
			fmt.Fprintln(out, "No packages installed")
		}
		return err
	})
	return cmd
}
