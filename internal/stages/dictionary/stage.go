package dictionary

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/dict"
	"github.com/amesworks/groundwork/internal/pipeline"
)

const (
	stageID      = "dictionary"
	stageVersion = "1.0.0"
)

// Stage parses the dataset documentation into the variables dictionary.
type Stage struct {
	*pipeline.Base
}

// Register installs the stage factory into the registry.
func Register(reg *pipeline.Registry) {
	if reg == nil {
		return
	}
	reg.MustRegister(stageID, func(pipeline.Config) (pipeline.Stage, error) {
		return New(), nil
	})
}

// New constructs the stage with its IO contracts.
func New() *Stage {
	info := pipeline.Info{
		ID:          stageID,
		Name:        "Parse Dictionary",
		Description: "Parses the dataset documentation into variable definitions.",
		Version:     stageVersion,
	}
	base := pipeline.NewBase(info)
	base.SetOutputs(
		artifact.VariablesJSON,
		artifact.VariablesYAML,
	)
	return &Stage{Base: base}
}

// Run parses the documentation and writes both dictionary artifacts.
func (s *Stage) Run(ctx *pipeline.Context) (pipeline.Result, error) {
	if err := validateContext(ctx); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	docPath := ctx.Config.DocumentationPath()
	raw, err := os.ReadFile(docPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pipeline.Result{
				Status:  pipeline.StatusNeedsInput,
				Message: fmt.Sprintf("waiting for documentation at %s", docPath),
			}, nil
		}
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("dictionary: read %s: %w", docPath, err)
	}
	defs, err := dict.ParseFile(docPath, ctx.Config.Encoding())
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("dictionary: %w", err)
	}
	d, err := dict.New(defs)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("dictionary: %w", err)
	}

	fp := artifact.Checksum(raw)
	payload := struct {
		Variables []dict.Definition `json:"variables"`
	}{Variables: defs}
	body, err := json.Marshal(payload)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("dictionary: encode variables: %w", err)
	}
	if err := ctx.Artifacts.Write(artifact.VariablesJSON, body, stageMetadata(ctx, artifact.VariablesJSON, fp)); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("dictionary: write %s: %w", artifact.VariablesJSON.ID, err)
	}
	yamlBody, err := dict.EncodeYAML(defs)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("dictionary: encode yaml: %w", err)
	}
	if err := ctx.Artifacts.Write(artifact.VariablesYAML, yamlBody, stageMetadata(ctx, artifact.VariablesYAML, fp)); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("dictionary: write %s: %w", artifact.VariablesYAML.ID, err)
	}

	return pipeline.Result{
		Status:  pipeline.StatusCompleted,
		Message: fmt.Sprintf("parsed %d variable definitions", d.Len()),
		Metrics: map[string]int{
			"definitions":  d.Len(),
			"qualitative":  len(d.Qualitative()),
			"quantitative": len(d.Quantitative()),
		},
	}, nil
}

// IsComplete verifies both dictionary artifacts exist with this stage's
// provenance.
func (s *Stage) IsComplete(ctx *pipeline.Context) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	for _, ref := range s.Outputs() {
		ready, err := artifactReady(ctx, ref)
		if err != nil {
			return false, err
		}
		if !ready {
			return false, nil
		}
	}
	return true, nil
}

// ArtifactFingerprints ties the dictionary artifacts to the documentation
// checksum so edits to the source text mark them stale.
func (s *Stage) ArtifactFingerprints(ctx *pipeline.Context) (map[string]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(ctx.Config.DocumentationPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("dictionary: read %s: %w", ctx.Config.DocumentationPath(), err)
	}
	fp := artifact.Checksum(raw)
	return map[string]string{
		artifact.VariablesJSON.ID: fp,
		artifact.VariablesYAML.ID: fp,
	}, nil
}

func artifactReady(ctx *pipeline.Context, ref artifact.Ref) (bool, error) {
	result, err := ctx.Artifacts.Check(ref)
	switch result.State {
	case artifact.StateMissing, artifact.StateInvalid:
		return false, nil
	case artifact.StateError:
		if err == nil {
			err = result.Err
		}
		return false, fmt.Errorf("dictionary: check %s: %w", ref.ID, err)
	}
	if result.Metadata == nil || result.Metadata.StageID != stageID || result.Metadata.Version != stageVersion {
		return false, nil
	}
	return true, nil
}

func stageMetadata(ctx *pipeline.Context, ref artifact.Ref, fp string) artifact.Metadata {
	meta := artifact.Metadata{
		ArtifactID: ref.ID,
		StageID:    stageID,
		Version:    stageVersion,
		Pipeline:   ctx.Config.DefaultPipeline(),
	}
	if fp != "" {
		meta.Notes = map[string]string{pipeline.FingerprintNoteKey(ref.ID): fp}
	}
	return meta
}

func validateContext(ctx *pipeline.Context) error {
	if ctx == nil {
		return fmt.Errorf("dictionary: context is required")
	}
	if ctx.Config == nil {
		return fmt.Errorf("dictionary: config is required")
	}
	if ctx.Artifacts == nil {
		return fmt.Errorf("dictionary: artifact store is required")
	}
	return nil
}
