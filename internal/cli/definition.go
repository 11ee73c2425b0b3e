package cli

import (
	"fmt"

	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/stages"
)

// resolveDefinition returns the pipeline named by config (pipeline.default).
// A definition under .groundwork/pipelines/ with that ID wins over the
// builtin, letting a project reorder or drop stages without recompiling.
// Stage IDs are checked against the registry so a typo surfaces with the
// file that holds it.
func resolveDefinition(cfg *config.Config, reg *pipeline.Registry) (pipeline.Definition, error) {
	builtin := stages.Prepare()
	want := cfg.DefaultPipeline()
	files, err := pipeline.LoadDefinitionDir(cfg.PipelinesDir())
	if err != nil {
		return pipeline.Definition{}, err
	}
	for _, file := range files {
		if file.Definition.ID != want {
			continue
		}
		for _, ref := range file.Definition.Stages {
			if _, err := reg.Resolve(ref.StageID, ref.Config); err != nil {
				return pipeline.Definition{}, fmt.Errorf("%s: %w", file.Path, err)
			}
		}
		return file.Definition, nil
	}
	if want != builtin.ID {
		return pipeline.Definition{}, fmt.Errorf("pipeline %s not found in %s", want, cfg.PipelinesDir())
	}
	return builtin, nil
}
