package cli

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/amesworks/groundwork/internal/history"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/stages"
	"github.com/amesworks/groundwork/internal/tui"
)

func newBoardCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Open the interactive progress board",
		Long: "Board shows the stage checklist live: move with j/k, run the\n" +
			"selected stage with enter, and approve gates with a.",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.NoColor() {
				os.Setenv("NO_COLOR", "1")
			}
			reg := pipeline.NewRegistry()
			stages.RegisterBuiltins(reg)
			def, err := resolveDefinition(cfg, reg)
			if err != nil {
				return err
			}
			boardOpts := []tui.Option{tui.WithDefinition(def)}
			if cfg.HistoryEnabled() {
				store, err := history.Open(cfg.HistoryPath())
				if err != nil {
					cmd.PrintErrf("history unavailable: %v\n", err)
				} else {
					defer store.Close()
					boardOpts = append(boardOpts, tui.WithRecorder(store))
				}
			}
			board, err := tui.New(cfg, boardOpts...)
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(board, tea.WithAltScreen()).Run()
			return err
		},
	}
}
