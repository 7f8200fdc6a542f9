package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newListCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed packages",
		Args:    cobra.NoArgs,
	}
	cmd.RunE = g.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
		inst, err := g.installer(false)
		if err != nil {
			return err
		}
		pkgs, err := inst.List()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(pkgs) == 0 {
			fmt.Fprintln(out, "No packages installed")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Package", "Version", "Installed", "Required by", "Description"})
		for _, p := range pkgs {
			if p.Err != nil {
				t.AppendRow(table.Row{p.Name, "?", "", "", "unreadable: " + p.Err.Error()})
				continue
			}
			installed := ""
			if !p.InstalledAt.IsZero() {
				installed = humanize.Time(p.InstalledAt)
			}
			t.AppendRow(table.Row{p.Name, p.Version, installed, strings.Join(p.RequiredBy, ", "), p.Description})
		}
		t.Render()
		return nil
	})
	return cmd
}
