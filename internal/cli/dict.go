package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/dict"
	"github.com/amesworks/groundwork/internal/logbook"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/stages"
)

func newDictCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Work with the parsed data dictionary",
	}
	cmd.AddCommand(newDictParseCmd(opts), newDictExportCmd(opts))
	return cmd
}

func newDictParseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse",
		Short: "Parse documentation.txt into the dictionary artifacts",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			pctx, reg, err := newStageRuntime(cfg)
			if err != nil {
				return err
			}
			result, err := runRegisteredStage(pctx, reg, "dictionary")
			if err != nil {
				return err
			}
			if result.Message != "" {
				cmd.Println(result.Message)
			}
			return nil
		},
	}
}

func newDictExportCmd(opts *rootOptions) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the parsed dictionary as JSON or YAML",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			defs, err := loadDictionaryArtifact(cfg)
			if err != nil {
				return err
			}
			var body []byte
			switch format {
			case "json":
				body, err = dict.EncodeJSON(defs)
			case "yaml":
				body, err = dict.EncodeYAML(defs)
			default:
				return usagef("unsupported format %q (json or yaml)", format)
			}
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, body, 0o644); err != nil {
					return fmt.Errorf("dict export: write %s: %w", output, err)
				}
				cmd.Printf("wrote %s\n", output)
				return nil
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func loadDictionaryArtifact(cfg *config.Config) ([]dict.Definition, error) {
	pctx, err := pipeline.NewContext(cfg, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Variables []dict.Definition `json:"variables"`
	}
	if _, err := pctx.Artifacts.ReadJSON(artifact.VariablesJSON, &payload); err != nil {
		return nil, fmt.Errorf("dictionary not parsed yet, run `groundwork dict parse` first: %w", err)
	}
	return payload.Variables, nil
}

// newStageRuntime builds the context and registry used to run stages
// outside the engine loop.
func newStageRuntime(cfg *config.Config) (*pipeline.Context, *pipeline.Registry, error) {
	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), "run.log"))
	if err != nil {
		return nil, nil, err
	}
	pctx, err := pipeline.NewContext(cfg, lb)
	if err != nil {
		return nil, nil, err
	}
	reg := pipeline.NewRegistry()
	stages.RegisterBuiltins(reg)
	return pctx, reg, nil
}

// runRegisteredStage executes one stage and turns a needs-input result into
// an error so callers exit non-zero with the stage's own message.
func runRegisteredStage(pctx *pipeline.Context, reg *pipeline.Registry, stageID string) (pipeline.Result, error) {
	stage, err := reg.Resolve(stageID, nil)
	if err != nil {
		return pipeline.Result{}, err
	}
	result, err := stage.Run(pctx)
	if err != nil {
		return result, err
	}
	if result.Status == pipeline.StatusNeedsInput {
		return result, fmt.Errorf("%s: %s", stageID, result.Message)
	}
	return result, nil
}
