package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/pipeline"
)

const imputedCSV = `Order,MS Zoning,Lot Frontage
1,RL,80
2,C,75
3,RM,70
4,C,70
5,FV,77.5
`

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

func seedImputed(t *testing.T, ctx *pipeline.Context, body string) {
	t.Helper()
	meta := artifact.Metadata{StageID: "impute", Version: "1.0.0"}
	if err := ctx.Artifacts.Write(artifact.ImputedCSV, []byte(body), meta); err != nil {
		t.Fatalf("seed imputed.csv: %v", err)
	}
}

func TestRunExportsPreparedTable(t *testing.T) {
	ctx := newTestContext(t)
	seedImputed(t, ctx, imputedCSV)
	stage := New()

	result, err := stage.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != pipeline.StatusCompleted {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Metrics["rows"] != 5 || result.Metrics["columns"] != 3 {
		t.Fatalf("unexpected metrics: %+v", result.Metrics)
	}
	if !strings.Contains(result.Message, ctx.Config.ExportPath()) {
		t.Fatalf("expected destination in message, got %q", result.Message)
	}

	prepared, err := os.ReadFile(ctx.Artifacts.Path(artifact.ExportedCSV))
	if err != nil {
		t.Fatalf("read prepared.csv: %v", err)
	}
	if string(prepared) != imputedCSV {
		t.Fatalf("expected verbatim copy, got:\n%s", prepared)
	}
	external, err := os.ReadFile(ctx.Config.ExportPath())
	if err != nil {
		t.Fatalf("read export destination: %v", err)
	}
	if string(external) != imputedCSV {
		t.Fatalf("expected verbatim destination copy, got:\n%s", external)
	}
	if _, err := os.Stat(ctx.Artifacts.Path(artifact.ExportCompleteMarker)); err != nil {
		t.Fatalf("expected completion marker: %v", err)
	}

	if complete, err := stage.IsComplete(ctx); err != nil || !complete {
		t.Fatalf("expected completion, got %v (%v)", complete, err)
	}
}

func TestRunWaitsForImputedTable(t *testing.T) {
	ctx := newTestContext(t)
	stage := New()

	result, err := stage.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != pipeline.StatusNeedsInput || !strings.Contains(result.Message, artifact.ImputedCSV.Name) {
		t.Fatalf("expected imputed wait, got %+v", result)
	}
}

func TestIsCompleteRequiresDestinationCopy(t *testing.T) {
	ctx := newTestContext(t)
	seedImputed(t, ctx, imputedCSV)
	stage := New()

	if _, err := stage.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := os.Remove(ctx.Config.ExportPath()); err != nil {
		t.Fatalf("remove destination: %v", err)
	}
	if complete, err := stage.IsComplete(ctx); err != nil || complete {
		t.Fatalf("expected incomplete after destination removal, got %v (%v)", complete, err)
	}
}

func TestInvalidationDropsCompletionMarker(t *testing.T) {
	ctx := newTestContext(t)
	seedImputed(t, ctx, imputedCSV)
	stage := New()

	if _, err := stage.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	err := stage.OnArtifactInvalidation(ctx, pipeline.ArtifactInvalidation{
		Artifact: artifact.ExportDir,
		Reason:   pipeline.InvalidationReasonMissing,
	})
	if err != nil {
		t.Fatalf("invalidation: %v", err)
	}
	if _, err := os.Stat(ctx.Artifacts.Path(artifact.ExportCompleteMarker)); err != nil {
		t.Fatalf("marker should survive unrelated invalidations: %v", err)
	}

	err = stage.OnArtifactInvalidation(ctx, pipeline.ArtifactInvalidation{
		Artifact: artifact.ExportedCSV,
		Reason:   pipeline.InvalidationReasonFingerprint,
	})
	if err != nil {
		t.Fatalf("invalidation: %v", err)
	}
	if _, err := os.Stat(ctx.Artifacts.Path(artifact.ExportCompleteMarker)); !os.IsNotExist(err) {
		t.Fatalf("expected marker removal, got %v", err)
	}
	if complete, err := stage.IsComplete(ctx); err != nil || complete {
		t.Fatalf("expected incomplete after marker removal, got %v (%v)", complete, err)
	}

	// Removing an already-absent marker is not an error.
	err = stage.OnArtifactInvalidation(ctx, pipeline.ArtifactInvalidation{
		Artifact: artifact.ExportedCSV,
		Reason:   pipeline.InvalidationReasonFingerprint,
	})
	if err != nil {
		t.Fatalf("repeat invalidation: %v", err)
	}
}

func TestFingerprintsTrackDestination(t *testing.T) {
	ctx := newTestContext(t)
	seedImputed(t, ctx, imputedCSV)
	stage := New()

	fps, err := stage.ArtifactFingerprints(ctx)
	if err != nil {
		t.Fatalf("fingerprints: %v", err)
	}
	first := fps[artifact.ExportedCSV.ID]
	if first == "" {
		t.Fatalf("expected fingerprint, got %v", fps)
	}

	ctx.Config.Project.Export.Path = filepath.Join(ctx.Config.ProjectDir, "elsewhere", "final.csv")
	fps, err = stage.ArtifactFingerprints(ctx)
	if err != nil {
		t.Fatalf("fingerprints: %v", err)
	}
	if fps[artifact.ExportedCSV.ID] == first {
		t.Fatal("expected fingerprint to change with the destination")
	}
}
