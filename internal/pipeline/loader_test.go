package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

const samplePipeline = `id: house-prices
name: House Prices Preparation
stages:
  - stage: dictionary
  - stage: audit
    needs: [dictionary]
runtime:
  max_parallel: 2
`

func TestLoadDefinitionDir(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "house-prices.yaml")
	if err := os.WriteFile(path, []byte(samplePipeline), 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	defs, err := LoadDefinitionDir(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Path != path {
		t.Fatalf("expected path %s, got %s", path, defs[0].Path)
	}
	if defs[0].Definition.ID != "house-prices" {
		t.Fatalf("unexpected id: %+v", defs[0].Definition)
	}
	if deps := defs[0].Definition.Dependencies("audit"); len(deps) != 1 || deps[0] != "dictionary" {
		t.Fatalf("needs were not merged into the graph: %v", deps)
	}
}

func TestLoadDefinitionDirMissing(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if defs != nil {
		t.Fatalf("expected nil slice for missing dir, got %v", defs)
	}
}

func TestLoadDefinitionDirSkipsNonYAML(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("scratch"), 0644); err != nil {
		t.Fatalf("write notes: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "prep.yml"), []byte(samplePipeline), 0644); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}
	defs, err := LoadDefinitionDir(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected only yaml files to load, got %d definitions", len(defs))
	}
}

func TestFindDefinition(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "prep.yaml"), []byte(samplePipeline), 0644); err != nil {
		t.Fatalf("write pipeline: %v", err)
	}

	def, err := FindDefinition(root, "house-prices")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if def.Name != "House Prices Preparation" {
		t.Fatalf("unexpected definition: %+v", def)
	}

	if _, err := FindDefinition(root, "absent"); err == nil {
		t.Fatalf("expected error for unknown pipeline id")
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("dictionary", func(cfg Config) (Stage, error) {
		stage := &fixedStage{Base: NewBase(Info{ID: "dictionary", Name: "Dictionary", Version: "1.0.0"})}
		return stage, nil
	})

	stage, err := reg.Resolve("dictionary", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if stage.Info().ID != "dictionary" {
		t.Fatalf("unexpected stage: %+v", stage.Info())
	}

	if _, err := reg.Resolve("absent", nil); err == nil {
		t.Fatalf("expected error for unknown stage id")
	}
	if err := reg.Register("dictionary", func(Config) (Stage, error) { return nil, nil }); err == nil {
		t.Fatalf("expected error for duplicate registration")
	}
}

type fixedStage struct {
	*Base
}

func (s *fixedStage) IsComplete(*Context) (bool, error) { return false, nil }

func (s *fixedStage) Run(*Context) (Result, error) {
	return Result{Status: StatusCompleted}, nil
}
