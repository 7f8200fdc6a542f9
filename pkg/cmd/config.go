package cmd

import (
	"context"
	"fmt"

	"github.com/bitey-pm/bitey/pkg/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
	}
	force := initCmd.Flags().Bool("force", false, "overwrite an existing file")
	initCmd.RunE = func(cmd *cobra.Command, args []string) error {
		path := g.configFile
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		if err := config.WriteDefault(path, *force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: g.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			data, err := g.cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}),
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
