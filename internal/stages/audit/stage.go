package audit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/dict"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/report"
	"github.com/amesworks/groundwork/internal/table"
)

const (
	stageID      = "audit"
	stageVersion = "1.0.0"
)

// Stage audits the training table against the variables dictionary.
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
		Name:        "Audit Table",
		Description: "Counts nulls, invalid values, and outliers against the dictionary.",
		Version:     stageVersion,
	}
	base := pipeline.NewBase(info)
	base.SetInputs(artifact.VariablesJSON)
	base.SetOutputs(
		artifact.AuditJSON,
		artifact.AuditReport,
	)
	return &Stage{Base: base}
}

// Run loads the dictionary and table, builds the findings, and writes both
// audit artifacts.
func (s *Stage) Run(ctx *pipeline.Context) (pipeline.Result, error) {
	if err := validateContext(ctx); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	if missing, err := s.missingInput(ctx); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	} else if missing != "" {
		return pipeline.Result{Status: pipeline.StatusNeedsInput, Message: fmt.Sprintf("waiting for %s", missing)}, nil
	}

	d, variablesMeta, err := loadDictionary(ctx)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	trainPath := ctx.Config.TrainPath()
	tbl, err := table.ReadFile(trainPath, table.Options{NAMarkers: ctx.Config.NAMarkers()})
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("audit: read %s: %w", trainPath, err)
	}
	findings, err := report.Build(d, tbl, ctx.Config.FenceFactor())
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("audit: %w", err)
	}

	fp, _, err := s.fingerprint(ctx, variablesMeta.Checksum)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	body, err := report.EncodeJSON(findings)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("audit: encode findings: %w", err)
	}
	if err := ctx.Artifacts.Write(artifact.AuditJSON, body, stageMetadata(ctx, artifact.AuditJSON, fp)); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("audit: write %s: %w", artifact.AuditJSON.ID, err)
	}
	if err := ctx.Artifacts.Write(artifact.AuditReport, findings.Markdown(), stageMetadata(ctx, artifact.AuditReport, fp)); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("audit: write %s: %w", artifact.AuditReport.ID, err)
	}

	nulls, invalid, outliers := findings.Totals()
	return pipeline.Result{
		Status:  pipeline.StatusCompleted,
		Message: fmt.Sprintf("audited %d columns across %d rows", findings.Columns, findings.Rows),
		Metrics: map[string]int{
			"rows":         findings.Rows,
			"columns":      findings.Columns,
			"nulls":        nulls,
			"invalid":      invalid,
			"outliers":     outliers,
			"undocumented": len(findings.Undocumented),
			"missing":      len(findings.Missing),
		},
	}, nil
}

// IsComplete verifies both audit artifacts exist with this stage's provenance.
func (s *Stage) IsComplete(ctx *pipeline.Context) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
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
			return false, fmt.Errorf("audit: check %s: %w", ref.ID, err)
		}
		if result.Metadata == nil || result.Metadata.StageID != stageID || result.Metadata.Version != stageVersion {
			return false, nil
		}
	}
	return true, nil
}

// ArtifactFingerprints combines the dictionary checksum, the training bytes,
// and the fence factor so changes to any of them mark the audit stale.
func (s *Stage) ArtifactFingerprints(ctx *pipeline.Context) (map[string]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	result, err := ctx.Artifacts.Check(artifact.VariablesJSON)
	if result.State != artifact.StateReady {
		if result.State == artifact.StateError && err != nil {
			return nil, fmt.Errorf("audit: check %s: %w", artifact.VariablesJSON.ID, err)
		}
		return nil, nil
	}
	if result.Metadata == nil || result.Metadata.Checksum == "" {
		return nil, nil
	}
	fp, ok, err := s.fingerprint(ctx, result.Metadata.Checksum)
	if err != nil || !ok {
		return nil, err
	}
	return map[string]string{
		artifact.AuditJSON.ID:   fp,
		artifact.AuditReport.ID: fp,
	}, nil
}

func (s *Stage) fingerprint(ctx *pipeline.Context, variablesChecksum string) (string, bool, error) {
	raw, err := os.ReadFile(ctx.Config.TrainPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("audit: read %s: %w", ctx.Config.TrainPath(), err)
	}
	fp := artifact.ChecksumParts(
		variablesChecksum,
		artifact.Checksum(raw),
		table.FormatFloat(ctx.Config.FenceFactor()),
	)
	return fp, true, nil
}

func (s *Stage) missingInput(ctx *pipeline.Context) (string, error) {
	result, err := ctx.Artifacts.Check(artifact.VariablesJSON)
	if result.State == artifact.StateError && err != nil {
		return "", fmt.Errorf("audit: check %s: %w", artifact.VariablesJSON.ID, err)
	}
	if result.State != artifact.StateReady {
		return artifact.VariablesJSON.Name, nil
	}
	if _, err := os.Stat(ctx.Config.TrainPath()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Sprintf("training table at %s", ctx.Config.TrainPath()), nil
		}
		return "", fmt.Errorf("audit: stat %s: %w", ctx.Config.TrainPath(), err)
	}
	return "", nil
}

func loadDictionary(ctx *pipeline.Context) (*dict.Dictionary, artifact.Metadata, error) {
	var payload struct {
		Variables []dict.Definition `json:"variables"`
	}
	meta, err := ctx.Artifacts.ReadJSON(artifact.VariablesJSON, &payload)
	if err != nil {
		return nil, artifact.Metadata{}, fmt.Errorf("audit: %w", err)
	}
	d, err := dict.New(payload.Variables)
	if err != nil {
		return nil, artifact.Metadata{}, fmt.Errorf("audit: %w", err)
	}
	return d, meta, nil
}

func stageMetadata(ctx *pipeline.Context, ref artifact.Ref, fp string) artifact.Metadata {
	meta := artifact.Metadata{
		ArtifactID: ref.ID,
		StageID:    stageID,
		Version:    stageVersion,
		Pipeline:   ctx.Config.DefaultPipeline(),
		Inputs:     []string{artifact.VariablesJSON.ID},
	}
	if fp != "" {
		meta.Notes = map[string]string{pipeline.FingerprintNoteKey(ref.ID): fp}
	}
	return meta
}

func validateContext(ctx *pipeline.Context) error {
	if ctx == nil {
		return fmt.Errorf("audit: context is required")
	}
	if ctx.Config == nil {
		return fmt.Errorf("audit: config is required")
	}
	if ctx.Artifacts == nil {
		return fmt.Errorf("audit: artifact store is required")
	}
	return nil
}
