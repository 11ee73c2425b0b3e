package repair

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/clean"
	"github.com/amesworks/groundwork/internal/dict"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/table"
)

const (
	stageID      = "repair"
	stageVersion = "1.0.0"
)

// Stage rewrites invalid values in the training table.
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
		Name:        "Repair Values",
		Description: "Replaces or blanks values the dictionary does not allow.",
		Version:     stageVersion,
	}
	base := pipeline.NewBase(info)
	base.SetInputs(artifact.VariablesJSON)
	base.SetOutputs(artifact.RepairedCSV)
	return &Stage{Base: base}
}

// Run applies the replacement rules to every documented column and writes the
// repaired table.
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
	replacements, err := replacementsByVariable(ctx, d)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	trainPath := ctx.Config.TrainPath()
	tbl, err := table.ReadFile(trainPath, table.Options{NAMarkers: ctx.Config.NAMarkers()})
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("repair: read %s: %w", trainPath, err)
	}

	var replaced, nulled int
	for _, def := range d.Definitions() {
		if !tbl.HasColumn(def.Name) {
			continue
		}
		col, err := tbl.Column(def.Name)
		if err != nil {
			return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("repair: %w", err)
		}
		var res clean.ReplaceResult
		if allowed, ok := def.Allowed(); ok {
			res = clean.ReplaceInvalid(col, allowed, replacements[def.Name])
		} else {
			res = repairQuantitative(col, replacements[def.Name])
		}
		replaced += res.Replaced
		nulled += res.Nulled
	}

	var buf bytes.Buffer
	if err := tbl.WriteCSV(&buf); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("repair: %w", err)
	}
	fp, _, err := s.fingerprint(ctx, variablesMeta.Checksum)
	if err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, err
	}
	if err := ctx.Artifacts.Write(artifact.RepairedCSV, buf.Bytes(), stageMetadata(ctx, artifact.RepairedCSV, fp)); err != nil {
		return pipeline.Result{Status: pipeline.StatusFailed}, fmt.Errorf("repair: write %s: %w", artifact.RepairedCSV.ID, err)
	}

	return pipeline.Result{
		Status:  pipeline.StatusCompleted,
		Message: fmt.Sprintf("replaced %d values, blanked %d", replaced, nulled),
		Metrics: map[string]int{
			"replaced": replaced,
			"nulled":   nulled,
			"rows":     tbl.Rows(),
		},
	}, nil
}

// IsComplete verifies the repaired table exists with this stage's provenance.
func (s *Stage) IsComplete(ctx *pipeline.Context) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	result, err := ctx.Artifacts.Check(artifact.RepairedCSV)
	switch result.State {
	case artifact.StateMissing, artifact.StateInvalid:
		return false, nil
	case artifact.StateError:
		if err == nil {
			err = result.Err
		}
		return false, fmt.Errorf("repair: check %s: %w", artifact.RepairedCSV.ID, err)
	}
	if result.Metadata == nil || result.Metadata.StageID != stageID || result.Metadata.Version != stageVersion {
		return false, nil
	}
	return true, nil
}

// ArtifactFingerprints combines the training bytes, the dictionary checksum,
// and the replacement rules so changing any of them marks the table stale.
func (s *Stage) ArtifactFingerprints(ctx *pipeline.Context) (map[string]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	result, err := ctx.Artifacts.Check(artifact.VariablesJSON)
	if result.State != artifact.StateReady {
		if result.State == artifact.StateError && err != nil {
			return nil, fmt.Errorf("repair: check %s: %w", artifact.VariablesJSON.ID, err)
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
	return map[string]string{artifact.RepairedCSV.ID: fp}, nil
}

func (s *Stage) fingerprint(ctx *pipeline.Context, variablesChecksum string) (string, bool, error) {
	raw, err := os.ReadFile(ctx.Config.TrainPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("repair: read %s: %w", ctx.Config.TrainPath(), err)
	}
	rules, err := yaml.Marshal(ctx.Config.Repairs())
	if err != nil {
		return "", false, fmt.Errorf("repair: encode rules: %w", err)
	}
	fp := artifact.ChecksumParts(
		artifact.Checksum(raw),
		variablesChecksum,
		string(rules),
	)
	return fp, true, nil
}

func (s *Stage) missingInput(ctx *pipeline.Context) (string, error) {
	result, err := ctx.Artifacts.Check(artifact.VariablesJSON)
	if result.State == artifact.StateError && err != nil {
		return "", fmt.Errorf("repair: check %s: %w", artifact.VariablesJSON.ID, err)
	}
	if result.State != artifact.StateReady {
		return artifact.VariablesJSON.Name, nil
	}
	if _, err := os.Stat(ctx.Config.TrainPath()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Sprintf("training table at %s", ctx.Config.TrainPath()), nil
		}
		return "", fmt.Errorf("repair: stat %s: %w", ctx.Config.TrainPath(), err)
	}
	return "", nil
}

// repairQuantitative treats unparsable known cells as invalid: mapped values
// are rewritten, the rest become missing.
func repairQuantitative(col *table.Column, replacements map[string]string) clean.ReplaceResult {
	var res clean.ReplaceResult
	for i := 0; i < col.Len(); i++ {
		if _, _, err := col.FloatAt(i); err == nil {
			continue
		}
		v, _ := col.Value(i)
		if repl, mapped := replacements[v]; mapped {
			col.Set(i, repl)
			res.Replaced++
		} else {
			col.SetMissing(i)
			res.Nulled++
		}
	}
	return res
}

// replacementsByVariable indexes the configured rules and rejects rules that
// name variables the dictionary does not document.
func replacementsByVariable(ctx *pipeline.Context, d *dict.Dictionary) (map[string]map[string]string, error) {
	rules := ctx.Config.Repairs()
	if len(rules) == 0 {
		return nil, nil
	}
	out := make(map[string]map[string]string, len(rules))
	for _, rule := range rules {
		if _, ok := d.Lookup(rule.Variable); !ok {
			return nil, fmt.Errorf("repair: rule for %s: variable not documented", rule.Variable)
		}
		out[rule.Variable] = rule.Replacements
	}
	return out, nil
}

func loadDictionary(ctx *pipeline.Context) (*dict.Dictionary, artifact.Metadata, error) {
	var payload struct {
		Variables []dict.Definition `json:"variables"`
	}
	meta, err := ctx.Artifacts.ReadJSON(artifact.VariablesJSON, &payload)
	if err != nil {
		return nil, artifact.Metadata{}, fmt.Errorf("repair: %w", err)
	}
	d, err := dict.New(payload.Variables)
	if err != nil {
		return nil, artifact.Metadata{}, fmt.Errorf("repair: %w", err)
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
		return fmt.Errorf("repair: context is required")
	}
	if ctx.Config == nil {
		return fmt.Errorf("repair: config is required")
	}
	if ctx.Artifacts == nil {
		return fmt.Errorf("repair: artifact store is required")
	}
	return nil
}
