package categorize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/pipeline"
)

const imputedCSV = `Order,Pool Area,Year Built
1,0,1976
2,512,2001
3,0,1950
4,NA,1985
5,228,1999
`

const categorizeConfig = `version: 1
categorize:
  - column: Pool Area
    label: with-pool
    else_label: no-pool
    when: { op: gt, value: "0" }
  - column: Year Built
    label: modern
    else_label: vintage
    when: { op: ge, value: "1980" }
`

func newTestContext(t *testing.T, configYAML string) *pipeline.Context {
	t.Helper()
	dir := t.TempDir()
	if err := config.InitProjectDir(dir); err != nil {
		t.Fatalf("init project: %v", err)
	}
	if configYAML != "" {
		path := filepath.Join(dir, config.GroundworkDir, "config.yaml")
		if err := os.WriteFile(path, []byte(configYAML), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
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

func seedImputed(t *testing.T, ctx *pipeline.Context, body string) {
	t.Helper()
	meta := artifact.Metadata{StageID: "impute", Version: "1.0.0"}
	if err := ctx.Artifacts.Write(artifact.ImputedCSV, []byte(body), meta); err != nil {
		t.Fatalf("seed imputed.csv: %v", err)
	}
}

func TestRunLabelsRows(t *testing.T) {
	ctx := newTestContext(t, categorizeConfig)
	seedImputed(t, ctx, imputedCSV)
	stage := New()

	result, err := stage.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != pipeline.StatusCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Metrics["rules"] != 2 || result.Metrics["rows"] != 5 || result.Metrics["cases"] != 3 {
		t.Fatalf("unexpected metrics: %+v", result.Metrics)
	}

	categories, err := os.ReadFile(ctx.Artifacts.Path(artifact.CategoriesCSV))
	if err != nil {
		t.Fatalf("read categories.csv: %v", err)
	}
	wantCategories := `Pool Area,Year Built,Count
no-pool,vintage,1
with-pool,modern,1
no-pool,vintage,1
null,modern,1
with-pool,modern,1
`
	if string(categories) != wantCategories {
		t.Fatalf("unexpected categories:\n%s", categories)
	}

	cases, err := os.ReadFile(ctx.Artifacts.Path(artifact.CasesCSV))
	if err != nil {
		t.Fatalf("read cases.csv: %v", err)
	}
	wantCases := `Pool Area,Year Built,Count
no-pool,vintage,2
null,modern,1
with-pool,modern,2
`
	if string(cases) != wantCases {
		t.Fatalf("unexpected cases:\n%s", cases)
	}

	if complete, err := stage.IsComplete(ctx); err != nil || !complete {
		t.Fatalf("expected completion, got %v (%v)", complete, err)
	}
}

func TestRunWithoutRulesIsNoOp(t *testing.T) {
	ctx := newTestContext(t, "")
	seedImputed(t, ctx, imputedCSV)
	stage := New()

	result, err := stage.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != pipeline.StatusNoOp {
		t.Fatalf("expected no-op, got %+v", result)
	}
	if _, err := os.Stat(ctx.Artifacts.Path(artifact.CategoriesCSV)); !os.IsNotExist(err) {
		t.Fatalf("expected no categories artifact, got %v", err)
	}
	if complete, err := stage.IsComplete(ctx); err != nil || !complete {
		t.Fatalf("expected completion without rules, got %v (%v)", complete, err)
	}

	fps, err := stage.ArtifactFingerprints(ctx)
	if err != nil || fps != nil {
		t.Fatalf("expected no fingerprints without rules, got %v (%v)", fps, err)
	}
}

func TestRunWaitsForImputedTable(t *testing.T) {
	ctx := newTestContext(t, categorizeConfig)
	stage := New()

	result, err := stage.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != pipeline.StatusNeedsInput || !strings.Contains(result.Message, artifact.ImputedCSV.Name) {
		t.Fatalf("expected imputed wait, got %+v", result)
	}
}

func TestRunFailsOnUnknownOperator(t *testing.T) {
	ctx := newTestContext(t, "")
	seedImputed(t, ctx, imputedCSV)
	// The loader rejects bad operators, so plant one behind its back.
	ctx.Config.Project.Categorize = []config.CategorizeRule{{
		Column:    "Pool Area",
		Label:     "with-pool",
		ElseLabel: "no-pool",
		When:      config.PredicateConfig{Op: "between", Value: "0"},
	}}
	stage := New()

	result, err := stage.Run(ctx)
	if err == nil || !strings.Contains(err.Error(), "unknown operator") {
		t.Fatalf("expected operator error, got %v", err)
	}
	if result.Status != pipeline.StatusFailed {
		t.Fatalf("expected failed status, got %+v", result)
	}
}
