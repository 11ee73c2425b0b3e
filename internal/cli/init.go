package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/amesworks/groundwork/internal/config"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the .groundwork project layout",
		Long: "Init creates the .groundwork directory with its default config,\n" +
			"data, pipelines, state, and logs folders. Running it inside an\n" +
			"existing project is harmless.",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ResolveProjectDir(opts.project)
			if err != nil {
				return err
			}
			if err := config.InitProjectDir(dir); err != nil {
				return err
			}
			cmd.Printf("initialized %s\n", filepath.Join(dir, config.GroundworkDir))
			return nil
		},
	}
}
