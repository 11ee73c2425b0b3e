package resolver

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/pipeline"
)

func TestResolverRefreshSetsStates(t *testing.T) {
	stubs := map[string]*stubStage{
		"dictionary": newStubStage("dictionary", true, nil),
		"audit":      newStubStage("audit", false, nil),
		"repair":     newStubStage("repair", false, nil),
	}
	resolver := buildResolver(t, stubs)
	ctx := newTestContext(t)

	if err := resolver.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	parse := mustNode(t, resolver, "parse")
	scan := mustNode(t, resolver, "scan")
	fix := mustNode(t, resolver, "fix")

	if parse.State != NodeStateComplete {
		t.Fatalf("expected parse complete, got %s", parse.State)
	}
	if scan.State != NodeStateReady {
		t.Fatalf("expected scan ready, got %s", scan.State)
	}
	if fix.State != NodeStateBlocked {
		t.Fatalf("expected fix blocked, got %s", fix.State)
	}
	if len(fix.BlockedBy) != 1 || fix.BlockedBy[0] != "scan" {
		t.Fatalf("fix blocked by %+v", fix.BlockedBy)
	}

	ready := resolver.Ready()
	if len(ready) != 1 || ready[0].ID != "scan" {
		t.Fatalf("unexpected ready set: %#v", ready)
	}
}

func TestResolverQueueTargetsOrdersDependencies(t *testing.T) {
	stubs := map[string]*stubStage{
		"dictionary": newStubStage("dictionary", false, nil),
		"audit":      newStubStage("audit", false, nil),
		"repair":     newStubStage("repair", false, nil),
	}
	resolver := buildResolver(t, stubs)
	ctx := newTestContext(t)

	if err := resolver.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	queue, err := resolver.Queue("fix")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(queue) != 3 {
		t.Fatalf("expected 3 queued stages, got %d", len(queue))
	}
	if queue[0].ID != "parse" || queue[1].ID != "scan" || queue[2].ID != "fix" {
		t.Fatalf("unexpected order: %s -> %s -> %s", queue[0].ID, queue[1].ID, queue[2].ID)
	}
}

func TestResolverRefreshPropagatesErrors(t *testing.T) {
	stubs := map[string]*stubStage{
		"dictionary": newStubStage("dictionary", true, nil),
		"audit":      newStubStage("audit", false, errors.New("boom")),
		"repair":     newStubStage("repair", false, nil),
	}
	resolver := buildResolver(t, stubs)
	ctx := newTestContext(t)

	if err := resolver.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	scan := mustNode(t, resolver, "scan")
	if scan.State != NodeStateError {
		t.Fatalf("expected scan error state, got %s", scan.State)
	}
	if scan.Err == nil || scan.Err.Error() != "boom" {
		t.Fatalf("unexpected scan error: %v", scan.Err)
	}
	fix := mustNode(t, resolver, "fix")
	if fix.State != NodeStateBlocked {
		t.Fatalf("expected fix blocked by error, got %s", fix.State)
	}
	if len(fix.BlockedBy) != 1 || fix.BlockedBy[0] != "scan" {
		t.Fatalf("unexpected fix blockers: %+v", fix.BlockedBy)
	}
}

func TestResolverDowngradesCompleteStageWithMissingArtifact(t *testing.T) {
	stub := newStubStage("audit", true, nil)
	stub.outputs = []artifact.Ref{artifact.AuditJSON}

	reg := pipeline.NewRegistry()
	reg.MustRegister("audit", func(pipeline.Config) (pipeline.Stage, error) { return stub, nil })
	def := pipeline.Definition{
		ID:     "downgrade-check",
		Stages: []pipeline.StageRef{{ID: "scan", StageID: "audit"}},
	}
	resolver, err := New(def, reg)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	ctx := newTestContext(t)

	if err := resolver.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	scan := mustNode(t, resolver, "scan")
	if scan.State != NodeStateReady {
		t.Fatalf("missing output should downgrade complete stage to ready, got %s", scan.State)
	}
	report, ok := scan.Artifacts[artifact.AuditJSON.ID]
	if !ok {
		t.Fatalf("missing artifact report for %s", artifact.AuditJSON.ID)
	}
	if report.Status != pipeline.ArtifactStatusMissing {
		t.Fatalf("expected missing artifact status, got %s", report.Status)
	}
}

func buildResolver(t *testing.T, stubs map[string]*stubStage) *Resolver {
	t.Helper()
	reg := pipeline.NewRegistry()
	for id, stub := range stubs {
		id := id
		stub := stub
		reg.MustRegister(id, func(pipeline.Config) (pipeline.Stage, error) {
			return stub, nil
		})
	}
	def := pipeline.Definition{
		ID: "test-pipeline",
		Stages: []pipeline.StageRef{
			{ID: "parse", StageID: "dictionary"},
			{ID: "scan", StageID: "audit", Needs: []string{"parse"}},
			{ID: "fix", StageID: "repair", Needs: []string{"scan"}},
		},
	}
	resolver, err := New(def, reg)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return resolver
}

func newTestContext(t *testing.T) *pipeline.Context {
	t.Helper()
	tempDir := t.TempDir()
	cfg := &config.Config{ProjectDir: tempDir, DotDir: filepath.Join(tempDir, ".groundwork")}
	ctx, err := pipeline.NewContext(cfg, nil)
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	return ctx
}

func mustNode(t *testing.T, resolver *Resolver, id string) *Node {
	t.Helper()
	node, ok := resolver.Node(id)
	if !ok {
		t.Fatalf("missing node %s", id)
	}
	return node
}

type stubStage struct {
	info     pipeline.Info
	complete bool
	err      error
	outputs  []artifact.Ref
}

func newStubStage(id string, complete bool, err error) *stubStage {
	return &stubStage{
		info: pipeline.Info{
			ID:      id,
			Name:    "stub " + id,
			Version: "1.0.0",
		},
		complete: complete,
		err:      err,
	}
}

func (s *stubStage) Info() pipeline.Info {
	return s.info
}

func (s *stubStage) Inputs() []artifact.Ref {
	return nil
}

func (s *stubStage) Outputs() []artifact.Ref {
	return s.outputs
}

func (s *stubStage) IsComplete(*pipeline.Context) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.complete, nil
}

func (s *stubStage) Run(*pipeline.Context) (pipeline.Result, error) {
	return pipeline.Result{Status: pipeline.StatusCompleted}, nil
}
