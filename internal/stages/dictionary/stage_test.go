package dictionary

import (
	"os"
	"strings"
	"testing"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/dict"
	"github.com/amesworks/groundwork/internal/pipeline"
)

const docText = "MS Zoning (Nominal): Identifies the general zoning classification of the sale.\n" +
	"       A\tAgriculture\n" +
	"       C (all)\tCommercial\n" +
	"       RL\tResidential Low Density\n" +
	"\n" +
	"Lot Frontage (Continuous): Linear feet of street connected to property\n" +
	"\n" +
	"Sale Condition (Nominal): Condition of sale\n" +
	"       Normal\tNormal Sale\n" +
	"       Abnorml\tAbnormal Sale - trade, foreclosure, short sale\n"

func newTestContext(t *testing.T) *pipeline.Context {
	t.Helper()
	dir := t.TempDir()
	if err := config.InitProjectDir(dir); err != nil {
		t.Fatalf("init project: %v", err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx, err := pipeline.NewContext(cfg, nil)
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	return ctx
}

func writeDocumentation(t *testing.T, ctx *pipeline.Context, text string) {
	t.Helper()
	if err := os.WriteFile(ctx.Config.DocumentationPath(), []byte(text), 0o644); err != nil {
		t.Fatalf("write documentation: %v", err)
	}
}

func TestRunParsesDocumentation(t *testing.T) {
	ctx := newTestContext(t)
	writeDocumentation(t, ctx, docText)
	stage := New()

	result, err := stage.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != pipeline.StatusCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Metrics["definitions"] != 3 || result.Metrics["qualitative"] != 2 || result.Metrics["quantitative"] != 1 {
		t.Fatalf("unexpected metrics: %+v", result.Metrics)
	}

	var payload struct {
		Variables []dict.Definition `json:"variables"`
	}
	meta, err := ctx.Artifacts.ReadJSON(artifact.VariablesJSON, &payload)
	if err != nil {
		t.Fatalf("read variables.json: %v", err)
	}
	if meta.StageID != stageID || meta.Version != stageVersion {
		t.Fatalf("unexpected provenance: %+v", meta)
	}
	if len(payload.Variables) != 3 {
		t.Fatalf("expected 3 definitions, got %+v", payload.Variables)
	}
	zoning := payload.Variables[0]
	if zoning.Name != "MS Zoning" || zoning.Kind != dict.KindNominal {
		t.Fatalf("unexpected first definition: %+v", zoning)
	}
	if len(zoning.Values) != 3 || zoning.Values[1] != "C (all)" {
		t.Fatalf("unexpected value set: %+v", zoning.Values)
	}

	raw, err := os.ReadFile(ctx.Artifacts.Path(artifact.VariablesYAML))
	if err != nil {
		t.Fatalf("read variables.yaml: %v", err)
	}
	if !strings.HasPrefix(string(raw), "---\n") || !strings.Contains(string(raw), "Lot Frontage") {
		t.Fatalf("unexpected yaml artifact:\n%s", raw)
	}

	if complete, err := stage.IsComplete(ctx); err != nil || !complete {
		t.Fatalf("expected completion, got %v (%v)", complete, err)
	}
}

func TestRunReportsMissingDocumentation(t *testing.T) {
	ctx := newTestContext(t)
	stage := New()

	result, err := stage.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != pipeline.StatusNeedsInput {
		t.Fatalf("expected needs-input, got %+v", result)
	}
	if !strings.Contains(result.Message, "waiting for documentation") {
		t.Fatalf("unexpected message: %s", result.Message)
	}
}

func TestFingerprintsTrackDocumentation(t *testing.T) {
	ctx := newTestContext(t)
	stage := New()

	fps, err := stage.ArtifactFingerprints(ctx)
	if err != nil {
		t.Fatalf("fingerprints: %v", err)
	}
	if fps != nil {
		t.Fatalf("expected no fingerprints without documentation, got %v", fps)
	}

	writeDocumentation(t, ctx, docText)
	fps, err = stage.ArtifactFingerprints(ctx)
	if err != nil {
		t.Fatalf("fingerprints: %v", err)
	}
	if fps[artifact.VariablesJSON.ID] == "" || fps[artifact.VariablesJSON.ID] != fps[artifact.VariablesYAML.ID] {
		t.Fatalf("expected matching fingerprints, got %v", fps)
	}
	first := fps[artifact.VariablesJSON.ID]

	writeDocumentation(t, ctx, docText+"Alley (Nominal): Type of alley access\n       Grvl\tGravel\n")
	fps, err = stage.ArtifactFingerprints(ctx)
	if err != nil {
		t.Fatalf("fingerprints: %v", err)
	}
	if fps[artifact.VariablesJSON.ID] == first {
		t.Fatal("expected fingerprint to change with the documentation")
	}
}
