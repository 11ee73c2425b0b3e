package categorize

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/clean"
	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/table"
)

const (
	stageID      = "categorize"
	stageVersion = "1.0.0"
)

// Stage labels rows of the imputed table per the configured rules.
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
		Name:        "Categorize Rows",
		Description: "Labels rows by predicate rules and tallies the label combinations.",
		Version:     stageVersion,
	}
	base := pipeline.NewBase(info)
	base.SetInputs(artifact.ImputedCSV)
	base.SetOutputs(
		artifact.CategoriesCSV,
		artifact.CasesCSV,
	)
	return &Stage{Base: base}
}

// Run labels every row and writes the categories and cases tables. With no
// rules configured the stage reports a no-op.
func (s *Stage) Run(ctx *pipeline.Context) (pipeline.Result, error) {
	if err := validateContext(ctx); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	configured := ctx.Config.CategorizeRules()
	if len(configured) == 0 {
		return pipeline.Result{Status: pipeline.StatusNoOp, Message: "no categorize rules configured"}, nil
	}
	imputed, err := ctx.Artifacts.Check(artifact.ImputedCSV)
	if imputed.State != artifact.StateReady {
		if imputed.State == artifact.StateError && err != nil {
			return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("categorize: check %s: %w", artifact.ImputedCSV.ID, err)
		}
		return pipeline.Result{
			Status:  pipeline.StatusNeedsInput,
			Message: fmt.Sprintf("waiting for %s", artifact.ImputedCSV.Name),
		}, nil
	}

	rules, err := buildRules(configured)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	tbl, err := table.ReadFile(ctx.Artifacts.Path(artifact.ImputedCSV), table.Options{})
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("categorize: %w", err)
	}
	categories, cases, err := clean.Categorize(tbl, rules)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("categorize: %w", err)
	}

	fp, err := s.fingerprint(ctx, imputed.Metadata.Checksum)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	if err := writeTable(ctx, artifact.CategoriesCSV, categories, fp); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	if err := writeTable(ctx, artifact.CasesCSV, cases, fp); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}

	return pipeline.Result{
		Status:  pipeline.StatusCompleted,
		Message: fmt.Sprintf("labeled %d rows into %d cases", categories.Rows(), cases.Rows()),
		Metrics: map[string]int{
			"rules": len(rules),
			"rows":  categories.Rows(),
			"cases": cases.Rows(),
		},
	}, nil
}

// IsComplete reports true with no rules configured; otherwise both label
// tables must exist with this stage's provenance.
func (s *Stage) IsComplete(ctx *pipeline.Context) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if len(ctx.Config.CategorizeRules()) == 0 {
		return true, nil
	}
	for _, ref := range s.Outputs() {
		result, err := ctx.Artifacts.Check(ref)
		switch result.State {
		case artifact.StateMissing, artifact.StateInvalid:
			return false, nil
		case artifact.StateError:
			if err == nil {
				err = result.Err
			}
			return false, fmt.Errorf("categorize: check %s: %w", ref.ID, err)
		}
		if result.Metadata == nil || result.Metadata.StageID != stageID || result.Metadata.Version != stageVersion {
			return false, nil
		}
	}
	return true, nil
}

// ArtifactFingerprints combines the imputed table checksum with the label
// rules. Without rules there is nothing to fingerprint.
func (s *Stage) ArtifactFingerprints(ctx *pipeline.Context) (map[string]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(ctx.Config.CategorizeRules()) == 0 {
		return nil, nil
	}
	imputed, err := ctx.Artifacts.Check(artifact.ImputedCSV)
	if imputed.State != artifact.StateReady {
		if imputed.State == artifact.StateError && err != nil {
			return nil, fmt.Errorf("categorize: check %s: %w", artifact.ImputedCSV.ID, err)
		}
		return nil, nil
	}
	if imputed.Metadata == nil || imputed.Metadata.Checksum == "" {
		return nil, nil
	}
	fp, err := s.fingerprint(ctx, imputed.Metadata.Checksum)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		artifact.CategoriesCSV.ID: fp,
		artifact.CasesCSV.ID:      fp,
	}, nil
}

func (s *Stage) fingerprint(ctx *pipeline.Context, imputedChecksum string) (string, error) {
	rules, err := yaml.Marshal(ctx.Config.CategorizeRules())
	if err != nil {
		return "", fmt.Errorf("categorize: encode rules: %w", err)
	}
	return artifact.ChecksumParts(imputedChecksum, string(rules)), nil
}

func buildRules(configured []config.CategorizeRule) ([]clean.Rule, error) {
	rules := make([]clean.Rule, 0, len(configured))
	for _, rc := range configured {
		test, err := clean.NewPredicate(rc.When.Op, rc.When.Value, rc.When.Values)
		if err != nil {
			return nil, fmt.Errorf("categorize: rule for %s: %w", rc.Column, err)
		}
		rules = append(rules, clean.Rule{
			Column: rc.Column,
			Label:  rc.Label,
			Other:  rc.ElseLabel,
			Test:   test,
		})
	}
	return rules, nil
}

func writeTable(ctx *pipeline.Context, ref artifact.Ref, tbl *table.Table, fp string) error {
	var buf bytes.Buffer
	if err := tbl.WriteCSV(&buf); err != nil {
		return fmt.Errorf("categorize: %w", err)
	}
	if err := ctx.Artifacts.Write(ref, buf.Bytes(), stageMetadata(ctx, ref, fp)); err != nil {
		return fmt.Errorf("categorize: write %s: %w", ref.ID, err)
	}
	return nil
}

func stageMetadata(ctx *pipeline.Context, ref artifact.Ref, fp string) artifact.Metadata {
	meta := artifact.Metadata{
		ArtifactID: ref.ID,
		StageID:    stageID,
		Version:    stageVersion,
		Pipeline:   ctx.Config.DefaultPipeline(),
		Inputs:     []string{artifact.ImputedCSV.ID},
	}
	if fp != "" {
		meta.Notes = map[string]string{pipeline.FingerprintNoteKey(ref.ID): fp}
	}
	return meta
}

func validateContext(ctx *pipeline.Context) error {
	if ctx == nil {
		return fmt.Errorf("categorize: context is required")
	}
	if ctx.Config == nil {
		return fmt.Errorf("categorize: config is required")
	}
	if ctx.Artifacts == nil {
		return fmt.Errorf("categorize: artifact store is required")
	}
	return nil
}
