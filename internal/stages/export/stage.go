package export

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/table"
)

const (
	stageID      = "export"
	stageVersion = "1.0.0"
)

// Stage publishes the prepared table.
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
		Name:        "Export Table",
		Description: "Copies the prepared table to the export folder and destination.",
		Version:     stageVersion,
		Concurrency: pipeline.ConcurrencyProfile{Exclusive: true},
	}
	base := pipeline.NewBase(info)
	base.SetInputs(artifact.ImputedCSV)
	base.SetOutputs(
		artifact.ExportDir,
		artifact.ExportedCSV,
		artifact.ExportCompleteMarker,
	)
	return &Stage{Base: base}
}

// Run copies the imputed table into the export folder and to the configured
// destination, then writes the completion marker.
func (s *Stage) Run(ctx *pipeline.Context) (pipeline.Result, error) {
	if err := validateContext(ctx); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	imputed, err := ctx.Artifacts.Check(artifact.ImputedCSV)
	if imputed.State != artifact.StateReady {
		if imputed.State == artifact.StateError && err != nil {
			return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("export: check %s: %w", artifact.ImputedCSV.ID, err)
		}
		return pipeline.Result{
			Status:  pipeline.StatusNeedsInput,
			Message: fmt.Sprintf("waiting for %s", artifact.ImputedCSV.Name),
		}, nil
	}

	body, err := os.ReadFile(ctx.Artifacts.Path(artifact.ImputedCSV))
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("export: read %s: %w", artifact.ImputedCSV.ID, err)
	}
	tbl, err := table.ReadCSV(bytes.NewReader(body), table.Options{})
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("export: %w", err)
	}

	if err := ctx.Artifacts.Write(artifact.ExportDir, nil, artifact.Metadata{}); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("export: create export dir: %w", err)
	}
	fp := s.fingerprint(ctx, imputed.Metadata.Checksum)
	if err := ctx.Artifacts.Write(artifact.ExportedCSV, body, stageMetadata(ctx, artifact.ExportedCSV, fp)); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("export: write %s: %w", artifact.ExportedCSV.ID, err)
	}

	dest := ctx.Config.ExportPath()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("export: ensure dir for %s: %w", dest, err)
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("export: write %s: %w", dest, err)
	}

	// The marker lands last so its presence means both copies exist.
	if err := ctx.Artifacts.Write(artifact.ExportCompleteMarker, nil, artifact.Metadata{}); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("export: write marker: %w", err)
	}

	return pipeline.Result{
		Status:  pipeline.StatusCompleted,
		Message: fmt.Sprintf("exported %d rows to %s", tbl.Rows(), dest),
		Metrics: map[string]int{
			"rows":    tbl.Rows(),
			"columns": len(tbl.Names()),
		},
	}, nil
}

// IsComplete verifies the export folder, both copies, and the marker exist.
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
			return false, fmt.Errorf("export: check %s: %w", ref.ID, err)
		}
		if result.Metadata != nil && (result.Metadata.StageID != stageID || result.Metadata.Version != stageVersion) {
			return false, nil
		}
	}
	if _, err := os.Stat(ctx.Config.ExportPath()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("export: stat %s: %w", ctx.Config.ExportPath(), err)
	}
	return true, nil
}

// OnArtifactInvalidation drops the completion marker when the exported table
// is stale, so the marker only ever vouches for a current export.
func (s *Stage) OnArtifactInvalidation(ctx *pipeline.Context, event pipeline.ArtifactInvalidation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if event.Artifact.ID != artifact.ExportedCSV.ID {
		return nil
	}
	path := ctx.Artifacts.Path(artifact.ExportCompleteMarker)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("export: remove %s: %w", artifact.ExportCompleteMarker.ID, err)
	}
	return nil
}

// ArtifactFingerprints ties the exported table to the imputed checksum and
// the destination path.
func (s *Stage) ArtifactFingerprints(ctx *pipeline.Context) (map[string]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	imputed, err := ctx.Artifacts.Check(artifact.ImputedCSV)
	if imputed.State != artifact.StateReady {
		if imputed.State == artifact.StateError && err != nil {
			return nil, fmt.Errorf("export: check %s: %w", artifact.ImputedCSV.ID, err)
		}
		return nil, nil
	}
	if imputed.Metadata == nil || imputed.Metadata.Checksum == "" {
		return nil, nil
	}
	fp := s.fingerprint(ctx, imputed.Metadata.Checksum)
	return map[string]string{artifact.ExportedCSV.ID: fp}, nil
}

func (s *Stage) fingerprint(ctx *pipeline.Context, imputedChecksum string) string {
	return artifact.ChecksumParts(imputedChecksum, ctx.Config.ExportPath())
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
		return fmt.Errorf("export: context is required")
	}
	if ctx.Config == nil {
		return fmt.Errorf("export: config is required")
	}
	if ctx.Artifacts == nil {
		return fmt.Errorf("export: artifact store is required")
	}
	return nil
}
