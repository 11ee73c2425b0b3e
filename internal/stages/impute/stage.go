package impute

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
	stageID      = "impute"
	stageVersion = "1.0.0"
)

// Stage fills missing cells per the configured imputation rules.
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
		Name:        "Impute Missing",
		Description: "Fills missing cells with configured mode or median strategies.",
		Version:     stageVersion,
	}
	base := pipeline.NewBase(info)
	base.SetInputs(artifact.RepairedCSV)
	base.SetOutputs(artifact.ImputedCSV)
	return &Stage{Base: base}
}

// Run applies every imputation rule and writes the filled table. With no
// rules configured the repaired table passes through unchanged.
func (s *Stage) Run(ctx *pipeline.Context) (pipeline.Result, error) {
	if err := validateContext(ctx); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	repaired, err := ctx.Artifacts.Check(artifact.RepairedCSV)
	if repaired.State != artifact.StateReady {
		if repaired.State == artifact.StateError && err != nil {
			return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("impute: check %s: %w", artifact.RepairedCSV.ID, err)
		}
		return pipeline.Result{
			Status:  pipeline.StatusNeedsInput,
			Message: fmt.Sprintf("waiting for %s", artifact.RepairedCSV.Name),
		}, nil
	}

	// Intermediate artifacts are written with the default NA rendering, so
	// they are read back with the default markers rather than the project's.
	tbl, err := table.ReadFile(ctx.Artifacts.Path(artifact.RepairedCSV), table.Options{})
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("impute: %w", err)
	}

	var filled int
	for _, rule := range ctx.Config.Imputations() {
		n, err := applyRule(tbl, rule)
		if err != nil {
			return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("impute: %s: %w", rule.Variable, err)
		}
		filled += n
	}
	remaining := 0
	for _, name := range tbl.Names() {
		col, err := tbl.Column(name)
		if err != nil {
			return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("impute: %w", err)
		}
		remaining += col.MissingCount()
	}

	var buf bytes.Buffer
	if err := tbl.WriteCSV(&buf); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("impute: %w", err)
	}
	fp, err := s.fingerprint(ctx, repaired.Metadata.Checksum)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	if err := ctx.Artifacts.Write(artifact.ImputedCSV, buf.Bytes(), stageMetadata(ctx, artifact.ImputedCSV, fp)); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("impute: write %s: %w", artifact.ImputedCSV.ID, err)
	}

	return pipeline.Result{
		Status:  pipeline.StatusCompleted,
		Message: fmt.Sprintf("filled %d missing cells", filled),
		Metrics: map[string]int{
			"filled":    filled,
			"remaining": remaining,
			"rows":      tbl.Rows(),
		},
	}, nil
}

// IsComplete verifies the imputed table exists with this stage's provenance.
func (s *Stage) IsComplete(ctx *pipeline.Context) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	result, err := ctx.Artifacts.Check(artifact.ImputedCSV)
	switch result.State {
	case artifact.StateMissing, artifact.StateInvalid:
		return false, nil
	case artifact.StateError:
		if err == nil {
			err = result.Err
		}
		return false, fmt.Errorf("impute: check %s: %w", artifact.ImputedCSV.ID, err)
	}
	if result.Metadata == nil || result.Metadata.StageID != stageID || result.Metadata.Version != stageVersion {
		return false, nil
	}
	return true, nil
}

// ArtifactFingerprints combines the repaired table checksum with the fill
// rules so a rerun of repair or a config edit marks the table stale.
func (s *Stage) ArtifactFingerprints(ctx *pipeline.Context) (map[string]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	repaired, err := ctx.Artifacts.Check(artifact.RepairedCSV)
	if repaired.State != artifact.StateReady {
		if repaired.State == artifact.StateError && err != nil {
			return nil, fmt.Errorf("impute: check %s: %w", artifact.RepairedCSV.ID, err)
		}
		return nil, nil
	}
	if repaired.Metadata == nil || repaired.Metadata.Checksum == "" {
		return nil, nil
	}
	fp, err := s.fingerprint(ctx, repaired.Metadata.Checksum)
	if err != nil {
		return nil, err
	}
	return map[string]string{artifact.ImputedCSV.ID: fp}, nil
}

func (s *Stage) fingerprint(ctx *pipeline.Context, repairedChecksum string) (string, error) {
	rules, err := yaml.Marshal(ctx.Config.Imputations())
	if err != nil {
		return "", fmt.Errorf("impute: encode rules: %w", err)
	}
	return artifact.ChecksumParts(repairedChecksum, string(rules)), nil
}

func applyRule(tbl *table.Table, rule config.ImputationRule) (int, error) {
	switch rule.Strategy {
	case config.StrategyMode:
		if rule.By != "" {
			return clean.FillModeBy(tbl, rule.Variable, rule.By)
		}
		col, err := tbl.Column(rule.Variable)
		if err != nil {
			return 0, err
		}
		return clean.FillMode(col)
	case config.StrategyMedian:
		if rule.By != "" {
			return clean.FillMedianBy(tbl, rule.Variable, rule.By)
		}
		col, err := tbl.Column(rule.Variable)
		if err != nil {
			return 0, err
		}
		return clean.FillMedian(col)
	default:
		return 0, fmt.Errorf("unknown strategy %q", rule.Strategy)
	}
}

func stageMetadata(ctx *pipeline.Context, ref artifact.Ref, fp string) artifact.Metadata {
	meta := artifact.Metadata{
		ArtifactID: ref.ID,
		StageID:    stageID,
		Version:    stageVersion,
		Pipeline:   ctx.Config.DefaultPipeline(),
		Inputs:     []string{artifact.RepairedCSV.ID},
	}
	if fp != "" {
		meta.Notes = map[string]string{pipeline.FingerprintNoteKey(ref.ID): fp}
	}
	return meta
}

func validateContext(ctx *pipeline.Context) error {
	if ctx == nil {
		return fmt.Errorf("impute: context is required")
	}
	if ctx.Config == nil {
		return fmt.Errorf("impute: config is required")
	}
	if ctx.Artifacts == nil {
		return fmt.Errorf("impute: artifact store is required")
	}
	return nil
}
