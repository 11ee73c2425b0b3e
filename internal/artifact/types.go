// Package artifact defines the filesystem-level contracts (inputs/outputs)
// that pipeline stages exchange. Each artifact has a stable identifier, kind,
// and a resolver that maps to the actual path within the project's
// .groundwork/data tree.

package artifact

import (
	"fmt"
	"path/filepath"
	"time"
)

// Kind captures the storage shape and serialization format for an artifact.
type Kind string

const (
	// KindDocument represents a markdown-like text document with YAML frontmatter.
	KindDocument Kind = "document"
	// KindJSON represents a JSON document enriched with a _groundwork metadata block.
	KindJSON Kind = "json"
	// KindCSV represents a CSV table with a .meta.json provenance sidecar.
	KindCSV Kind = "csv"
	// KindMarker represents an empty file used as a marker/flag.
	KindMarker Kind = "marker"
	// KindDirectory represents a directory that must exist.
	KindDirectory Kind = "directory"
)

// PathResolver returns the fully-qualified path to an artifact under the
// project's data directory.
type PathResolver func(dataDir string) string

// Ref declares a stable identifier and metadata for an artifact.
type Ref struct {
	ID          string
	Name        string
	Description string
	Kind        Kind
	Optional    bool
	path        PathResolver
}

// Path resolves the artifact path under the provided data directory.
func (r Ref) Path(dataDir string) string {
	if dataDir == "" || r.path == nil {
		return ""
	}
	return filepath.Clean(r.path(dataDir))
}

// SidecarPath resolves the metadata sidecar path for CSV artifacts.
func (r Ref) SidecarPath(dataDir string) string {
	if r.Kind != KindCSV {
		return ""
	}
	path := r.Path(dataDir)
	if path == "" {
		return ""
	}
	return path + ".meta.json"
}

// Validate ensures the reference is well-formed.
func (r Ref) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("artifact: id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("artifact: kind is required for %s", r.ID)
	}
	if r.path == nil {
		return fmt.Errorf("artifact: path resolver missing for %s", r.ID)
	}
	return nil
}

// Metadata captures provenance stored inside artifact frontmatter, metadata
// blocks, or sidecars.
type Metadata struct {
	ArtifactID string
	StageID    string
	Version    string
	Pipeline   string
	Inputs     []string
	CreatedAt  time.Time
	Checksum   string
	Notes      map[string]string
}

// WithDefaults ensures metadata carries the artifact ID and timestamps.
func (m Metadata) WithDefaults(ref Ref, now time.Time) Metadata {
	clone := m
	if clone.ArtifactID == "" {
		clone.ArtifactID = ref.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now.UTC()
	} else {
		clone.CreatedAt = clone.CreatedAt.UTC()
	}
	return clone
}

// ValidateFor ensures metadata matches the artifact contract.
func (m Metadata) ValidateFor(ref Ref) error {
	if m.ArtifactID != ref.ID {
		return fmt.Errorf("artifact: metadata id %s does not match ref %s", m.ArtifactID, ref.ID)
	}
	if m.StageID == "" {
		return fmt.Errorf("artifact: stage id is required for %s", ref.ID)
	}
	if m.Version == "" {
		return fmt.Errorf("artifact: version is required for %s", ref.ID)
	}
	return nil
}

// State captures the readiness of an artifact on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateInvalid State = "invalid"
	StateError   State = "error"
)

// CheckResult captures Store.Check results.
type CheckResult struct {
	Ref      Ref
	Path     string
	State    State
	Metadata *Metadata
	Err      error
}

// helper to register global references
func register(ref Ref) Ref {
	if refs == nil {
		refs = map[string]Ref{}
	}
	refs[ref.ID] = ref
	return ref
}

var refs map[string]Ref

// Lookup returns a registered artifact reference by ID.
func Lookup(id string) (Ref, bool) {
	ref, ok := refs[id]
	return ref, ok
}

// newDocRef creates a markdown document reference helper.
func newDocRef(id, name, desc string, resolver PathResolver) Ref {
	return Ref{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        KindDocument,
		path:        resolver,
	}
}

// newJSONRef creates a JSON artifact reference helper.
func newJSONRef(id, name, desc string, resolver PathResolver) Ref {
	return Ref{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        KindJSON,
		path:        resolver,
	}
}

// newCSVRef creates a CSV table reference helper.
func newCSVRef(id, name, desc string, resolver PathResolver) Ref {
	return Ref{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        KindCSV,
		path:        resolver,
	}
}

// newMarkerRef creates a marker file reference helper.
func newMarkerRef(id, name, desc string, resolver PathResolver) Ref {
	return Ref{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        KindMarker,
		path:        resolver,
	}
}

// newDirectoryRef creates a directory reference helper.
func newDirectoryRef(id, name, desc string, resolver PathResolver) Ref {
	return Ref{
		ID:          id,
		Name:        name,
		Description: desc,
		Kind:        KindDirectory,
		path:        resolver,
	}
}

// optional marks a reference as tolerable when absent. Stages that only
// produce an artifact under certain configurations use optional outputs.
func optional(ref Ref) Ref {
	ref.Optional = true
	return ref
}

// Canonical artifact references for the dataset preparation pipeline.
var (
	VariablesJSON = register(newJSONRef("variables-json", "Variables Dictionary", "Parsed data dictionary with kinds and allowed values", func(dataDir string) string {
		return filepath.Join(dataDir, "variables.json")
	}))
	VariablesYAML = register(newDocRef("variables-yaml", "Variables Dictionary (YAML)", "Readable YAML rendering of the parsed dictionary", func(dataDir string) string {
		return filepath.Join(dataDir, "variables.yaml")
	}))

	AuditJSON = register(newJSONRef("audit-json", "Audit Findings", "Per-column null and invalid counts against the dictionary", func(dataDir string) string {
		return filepath.Join(dataDir, "audit.json")
	}))
	AuditReport = register(newDocRef("audit-report", "Audit Report", "Readable summary of the audit findings", func(dataDir string) string {
		return filepath.Join(dataDir, "audit.md")
	}))

	RepairedCSV = register(newCSVRef("repaired-csv", "Repaired Table", "Training table with invalid values replaced or blanked", func(dataDir string) string {
		return filepath.Join(dataDir, "repaired.csv")
	}))
	ImputedCSV = register(newCSVRef("imputed-csv", "Imputed Table", "Repaired table with missing cells filled", func(dataDir string) string {
		return filepath.Join(dataDir, "imputed.csv")
	}))

	CategoriesCSV = register(optional(newCSVRef("categories-csv", "Categorized Rows", "Per-row category labels derived from the rules", func(dataDir string) string {
		return filepath.Join(dataDir, "categories.csv")
	})))
	CasesCSV = register(optional(newCSVRef("cases-csv", "Case Tally", "Distinct label combinations with their counts", func(dataDir string) string {
		return filepath.Join(dataDir, "cases.csv")
	})))

	ExportDir = register(newDirectoryRef("export-dir", "Export Directory", "Folder holding the prepared dataset", func(dataDir string) string {
		return filepath.Join(dataDir, "export")
	}))
	ExportedCSV = register(newCSVRef("exported-csv", "Prepared Table", "Final prepared training table", func(dataDir string) string {
		return filepath.Join(dataDir, "export", "prepared.csv")
	}))
	ExportCompleteMarker = register(newMarkerRef("export-complete", "Export Complete Marker", "Marker written after the prepared table is exported", func(dataDir string) string {
		return filepath.Join(dataDir, "export", ".complete")
	}))
)
