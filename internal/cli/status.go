package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/pipeline/resolver"
	"github.com/amesworks/groundwork/internal/progress"
	"github.com/amesworks/groundwork/internal/stages"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var write, verify bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the preparation checklist",
		Long: "Status derives each stage's checkbox from the artifacts on disk.\n" +
			"--write saves the checklist to .groundwork/PROGRESS.md, --verify\n" +
			"compares an existing PROGRESS.md against the on-disk stage state.",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			title, items, err := checklistItems(cfg)
			if err != nil {
				return err
			}
			if verify {
				existing, err := os.ReadFile(cfg.ProgressPath())
				if err != nil {
					return fmt.Errorf("status: read %s: %w", cfg.ProgressPath(), err)
				}
				if err := verifyChecklist(existing, items); err != nil {
					return err
				}
				cmd.Printf("%s matches the stage state\n", cfg.ProgressPath())
			}
			if write {
				if err := os.WriteFile(cfg.ProgressPath(), progress.Render(title, items), 0o644); err != nil {
					return fmt.Errorf("status: write %s: %w", cfg.ProgressPath(), err)
				}
				cmd.Printf("wrote %s\n", cfg.ProgressPath())
			}
			if !write && !verify {
				_, err = cmd.OutOrStdout().Write(progress.Render(title, items))
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "write the checklist to PROGRESS.md")
	cmd.Flags().BoolVar(&verify, "verify", false, "compare PROGRESS.md against the stage state")
	return cmd
}

// checklistItems derives one checkbox per stage from the artifacts on disk.
// Notes annotate readiness without ever changing the box state.
func checklistItems(cfg *config.Config) (string, []progress.Item, error) {
	pctx, err := pipeline.NewContext(cfg, nil)
	if err != nil {
		return "", nil, err
	}
	reg := pipeline.NewRegistry()
	stages.RegisterBuiltins(reg)
	def, err := resolveDefinition(cfg, reg)
	if err != nil {
		return "", nil, err
	}
	res, err := resolver.New(def, reg)
	if err != nil {
		return "", nil, err
	}
	if err := res.Refresh(pctx); err != nil {
		return "", nil, err
	}
	gated := make(map[string]bool)
	for _, id := range stages.DefaultGates() {
		gated[id] = true
	}
	nodes := res.Nodes()
	items := make([]progress.Item, 0, len(nodes))
	for _, node := range nodes {
		item := progress.Item{
			ID:   node.ID,
			Name: node.Stage.Info().Name,
			Done: node.State == resolver.NodeStateComplete,
		}
		switch {
		case item.Done:
		case node.Err != nil:
			item.Note = fmt.Sprintf("error: %v", node.Err)
		case node.State == resolver.NodeStateReady && gated[node.ID]:
			item.Note = "waiting for approval"
		case node.State == resolver.NodeStateReady:
			item.Note = "ready"
		case len(node.BlockedBy) > 0:
			item.Note = "waiting on " + strings.Join(node.BlockedBy, ", ")
		}
		items = append(items, item)
	}
	return def.Name, items, nil
}

func verifyChecklist(existing []byte, items []progress.Item) error {
	_, parsed, err := progress.Parse(existing)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(items))
	for _, item := range items {
		want[item.ID] = item.Done
	}
	if len(parsed) != len(items) {
		return fmt.Errorf("status: PROGRESS.md lists %d stages, expected %d", len(parsed), len(items))
	}
	for _, item := range parsed {
		done, known := want[item.ID]
		if !known {
			return fmt.Errorf("status: PROGRESS.md lists unknown stage %q", item.ID)
		}
		if done != item.Done {
			return fmt.Errorf("status: stage %s is %s on disk but %s in PROGRESS.md",
				item.ID, boxLabel(done), boxLabel(item.Done))
		}
	}
	return nil
}

func boxLabel(done bool) string {
	if done {
		return "checked"
	}
	return "unchecked"
}
