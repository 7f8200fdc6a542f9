package cmd

import (
	"context"
	"fmt"

	"github.com/bitey-pm/bitey/pkg/remote"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRemoteCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage package remotes",
	}

	addCmd := &cobra.Command{
		Use:   "add <url|ppa:profile/ppa>",
		Short: "Add a remote",
		Long: `Registers a remote by base URL. The shorthand ppa:<profile>/<ppa> expands to
` + remote.PPABaseURL + `/<profile>/<ppa>.`,
		Args: cobra.ExactArgs(1),
	}
	name := addCmd.Flags().String("name", "", "remote name (default derived from the URL)")
	addCmd.RunE = g.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
		r, err := remote.Add(g.cfg.RemotesDir, args[0], *name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added remote %s (%s)\n", r.Name, r.URL)
		return nil
	})

	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List remotes in lookup order",
		Args:    cobra.NoArgs,
		RunE: g.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			remotes, warnings := remote.List(g.cfg.RemotesDir)
			for _, w := range warnings {
				g.logger.Warn("skipping remote", "err", w)
			}
			out := cmd.OutOrStdout()
			if len(remotes) == 0 {
				fmt.Fprintln(out, "No remotes configured")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(out)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "URL"})
			for _, r := range remotes {
				t.AppendRow(table.Row{r.Name, r.URL})
			}
			t.Render()
			return nil
		}),
	}

	removeCmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a remote",
		Args:    cobra.ExactArgs(1),
		RunE: g.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if err := remote.Remove(g.cfg.RemotesDir, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed remote %s\n", args[0])
			return nil
		}),
	}

	cmd.AddCommand(addCmd, listCmd, removeCmd)
	return cmd
}
