package pipeline

import (
	"strings"
	"testing"
)

func TestParseDefinitionYAMLRejectsMissingStages(t *testing.T) {
	const payload = `
id: missing-stages
stages: []
`
	_, err := ParseDefinitionYAML([]byte(payload))
	if err == nil {
		t.Fatalf("expected error when stages are missing")
	}
	if !strings.Contains(err.Error(), "at least one stage is required") {
		t.Fatalf("unexpected error for missing stages: %v", err)
	}
}

func TestParseDefinitionYAMLRejectsInvalidDependencyReferences(t *testing.T) {
	const payload = `
id: invalid-dependency
stages:
  - id: start
    stage: dictionary
    needs: [missing]
`
	_, err := ParseDefinitionYAML([]byte(payload))
	if err == nil {
		t.Fatalf("expected error when dependency references unknown stage")
	}
	if !strings.Contains(err.Error(), "references unknown stage") {
		t.Fatalf("unexpected error for dependency reference: %v", err)
	}
}

func TestParseDefinitionYAMLRejectsDuplicateInstanceIDs(t *testing.T) {
	const payload = `
id: duplicate-instances
stages:
  - id: prep
    stage: dictionary
  - id: prep
    stage: audit
`
	_, err := ParseDefinitionYAML([]byte(payload))
	if err == nil {
		t.Fatalf("expected error when instance ids collide")
	}
	if !strings.Contains(err.Error(), "duplicate stage instance id prep") {
		t.Fatalf("unexpected error for duplicate instance: %v", err)
	}
}

func TestParseDefinitionYAMLClampsNegativeParallelSettings(t *testing.T) {
	const payload = `
id: clamp-runtime
runtime:
  max_parallel: -4
stages:
  - stage: dictionary
`
	def, err := ParseDefinitionYAML([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error parsing runtime clamp: %v", err)
	}
	if def.Runtime.MaxParallel != 0 {
		t.Fatalf("max_parallel should clamp to 0, got %d", def.Runtime.MaxParallel)
	}
}

func TestNormalizedMergesNeedsIntoGraph(t *testing.T) {
	const payload = `
id: audit-flow
stages:
  - stage: dictionary
  - stage: audit
    needs: [dictionary]
graph:
  audit: [dictionary]
`
	def, err := ParseDefinitionYAML([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error normalizing needs: %v", err)
	}
	deps := def.Dependencies("audit")
	if len(deps) != 1 || deps[0] != "dictionary" {
		t.Fatalf("audit should depend on dictionary exactly once, got %v", deps)
	}
}

func TestDefinitionCloneIsIndependent(t *testing.T) {
	def := Definition{
		ID: "clone-check",
		Stages: []StageRef{
			{StageID: "dictionary"},
			{StageID: "audit", Needs: []string{"dictionary"}, Config: Config{"strict": true}},
		},
		Graph:    DependencyGraph{"audit": {"dictionary"}},
		Metadata: map[string]string{"owner": "data"},
	}
	clone := def.Clone()
	clone.Stages[1].Needs[0] = "mutated"
	clone.Stages[1].Config["strict"] = false
	clone.Graph["audit"][0] = "mutated"
	clone.Metadata["owner"] = "mutated"

	if def.Stages[1].Needs[0] != "dictionary" {
		t.Fatalf("clone mutated the original needs slice")
	}
	if def.Stages[1].Config["strict"] != true {
		t.Fatalf("clone mutated the original config map")
	}
	if def.Graph["audit"][0] != "dictionary" {
		t.Fatalf("clone mutated the original graph")
	}
	if def.Metadata["owner"] != "data" {
		t.Fatalf("clone mutated the original metadata")
	}
}

func TestStageRefRejectsDuplicateNeeds(t *testing.T) {
	ref := StageRef{StageID: "repair", Needs: []string{"audit", "audit"}}
	err := ref.Validate()
	if err == nil {
		t.Fatalf("expected error for duplicate dependency")
	}
	if !strings.Contains(err.Error(), "duplicate dependency") {
		t.Fatalf("unexpected error for duplicate dependency: %v", err)
	}
}
