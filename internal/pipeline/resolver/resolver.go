package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/pipeline"
)

// NodeState represents the resolver's understanding of a stage's readiness.
type NodeState string

const (
	NodeStateUnknown  NodeState = "unknown"
	NodeStatePending  NodeState = "pending"
	NodeStateReady    NodeState = "ready"
	NodeStateBlocked  NodeState = "blocked"
	NodeStateComplete NodeState = "complete"
	NodeStateError    NodeState = "error"
)

// Node captures a pipeline stage instance plus its dependency metadata.
type Node struct {
	ID           string
	Ref          pipeline.StageRef
	Stage        pipeline.Stage
	Dependencies []string
	Dependents   []string

	State     NodeState
	BlockedBy []string
	Err       error

	Artifacts    map[string]ArtifactReport
	fingerprints map[string]string
}

// ArtifactReport captures the resolver's understanding of an output artifact.
type ArtifactReport struct {
	Ref                 artifact.Ref
	Status              pipeline.ArtifactStatus
	Metadata            *artifact.Metadata
	Err                 error
	StoredFingerprint   string
	ExpectedFingerprint string
}

// Resolver builds and evaluates the pipeline dependency graph.
type Resolver struct {
	definition pipeline.Definition
	nodes      map[string]*Node
	orderedIDs []string
}

// New constructs a resolver for the provided pipeline definition. Stages are
// instantiated via the registry immediately so downstream code can run them.
func New(def pipeline.Definition, registry *pipeline.Registry) (*Resolver, error) {
	if registry == nil {
		return nil, fmt.Errorf("pipeline: stage registry is required")
	}
	normalized, err := def.Normalized()
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*Node, len(normalized.Stages))
	ordered := make([]string, 0, len(normalized.Stages))
	for _, ref := range normalized.Stages {
		id := ref.InstanceID()
		stage, err := registry.Resolve(ref.StageID, ref.Config)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s stage %s: %w", normalized.ID, id, err)
		}
		node := &Node{
			ID:           id,
			Ref:          ref,
			Stage:        stage,
			Dependencies: normalized.Dependencies(id),
		}
		nodes[id] = node
		ordered = append(ordered, id)
	}
	for _, node := range nodes {
		for _, depID := range node.Dependencies {
			dep, ok := nodes[depID]
			if !ok {
				return nil, fmt.Errorf("pipeline %s: dependency %s referenced by %s not declared", normalized.ID, depID, node.ID)
			}
			dep.Dependents = append(dep.Dependents, node.ID)
		}
	}
	for _, node := range nodes {
		if len(node.Dependents) > 1 {
			sort.Strings(node.Dependents)
		}
	}
	return &Resolver{
		definition: normalized,
		nodes:      nodes,
		orderedIDs: ordered,
	}, nil
}

// Definition returns a clone of the resolver's pipeline definition.
func (r *Resolver) Definition() pipeline.Definition {
	return r.definition.Clone()
}

// Nodes returns the nodes in pipeline declaration order.
func (r *Resolver) Nodes() []*Node {
	out := make([]*Node, 0, len(r.orderedIDs))
	for _, id := range r.orderedIDs {
		if node, ok := r.nodes[id]; ok {
			out = append(out, node)
		}
	}
	return out
}

// Node retrieves a specific stage node by pipeline instance ID.
func (r *Resolver) Node(id string) (*Node, bool) {
	node, ok := r.nodes[id]
	return node, ok
}

// Refresh re-evaluates stage completion status and dependency readiness using
// the provided stage context. Callers should invoke Refresh before querying
// for runnable stages to ensure the snapshot reflects on-disk artifacts.
func (r *Resolver) Refresh(ctx *pipeline.Context) error {
	if ctx == nil {
		return fmt.Errorf("pipeline: stage context is required")
	}
	for _, node := range r.nodes {
		node.Err = nil
		node.BlockedBy = nil
		node.Artifacts = nil
		node.fingerprints = nil
		node.State = NodeStateUnknown
		if fpProvider, ok := node.Stage.(pipeline.Fingerprinter); ok {
			fingerprints, err := fpProvider.ArtifactFingerprints(ctx)
			if err != nil {
				node.State = NodeStateError
				node.Err = fmt.Errorf("pipeline: fingerprints for %s: %w", node.ID, err)
				continue
			}
			if len(fingerprints) > 0 {
				node.fingerprints = fingerprints
			}
		}
		complete, err := node.Stage.IsComplete(ctx)
		if err != nil {
			node.State = NodeStateError
			node.Err = err
			continue
		}
		if complete {
			node.State = NodeStateComplete
		} else {
			node.State = NodeStatePending
		}
	}
	for _, node := range r.nodes {
		if node.State == NodeStateError {
			continue
		}
		r.refreshArtifacts(ctx, node)
		if node.State == NodeStateComplete && node.hasArtifactIssues() {
			node.State = NodeStatePending
		}
	}
	for _, node := range r.nodes {
		if node.State == NodeStateComplete || node.State == NodeStateError {
			continue
		}
		blockers := r.blockers(node)
		if len(blockers) == 0 {
			node.State = NodeStateReady
		} else {
			node.State = NodeStateBlocked
			node.BlockedBy = blockers
		}
	}
	return nil
}

// Ready returns nodes that are runnable because all dependencies are complete.
func (r *Resolver) Ready() []*Node {
	var ready []*Node
	for _, id := range r.orderedIDs {
		node := r.nodes[id]
		if node.State == NodeStateReady {
			ready = append(ready, node)
		}
	}
	return ready
}

// Queue returns stages that must run to satisfy the requested targets. If no
// targets are provided, every incomplete stage is considered. Dependencies are
// returned before the stages that require them, and already-complete stages
// are skipped.
func (r *Resolver) Queue(targets ...string) ([]*Node, error) {
	if len(targets) == 0 {
		targets = append([]string{}, r.orderedIDs...)
	}
	visited := make(map[string]bool, len(targets))
	ordered := make([]*Node, 0, len(r.nodes))
	var visit func(string) error
	visit = func(id string) error {
		if visited[id] {
			return nil
		}
		node, ok := r.nodes[id]
		if !ok {
			return fmt.Errorf("pipeline: unknown stage %s", id)
		}
		visited[id] = true
		for _, dep := range node.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		if node.State != NodeStateComplete {
			ordered = append(ordered, node)
		}
		return nil
	}
	for _, id := range targets {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func (r *Resolver) blockers(node *Node) []string {
	if len(node.Dependencies) == 0 {
		return nil
	}
	blockers := make([]string, 0, len(node.Dependencies))
	for _, depID := range node.Dependencies {
		dep, ok := r.nodes[depID]
		if !ok || dep.State != NodeStateComplete {
			blockers = append(blockers, depID)
		}
	}
	if len(blockers) == 0 {
		return nil
	}
	return blockers
}

func (r *Resolver) refreshArtifacts(ctx *pipeline.Context, node *Node) {
	outputs := node.Stage.Outputs()
	if len(outputs) == 0 {
		node.Artifacts = nil
		return
	}
	if node.Artifacts == nil {
		node.Artifacts = make(map[string]ArtifactReport, len(outputs))
	} else {
		for key := range node.Artifacts {
			delete(node.Artifacts, key)
		}
	}
	for _, ref := range outputs {
		report := r.CheckArtifact(ctx, node, ref)
		node.Artifacts[ref.ID] = report
	}
}

func (n *Node) hasArtifactIssues() bool {
	if len(n.Artifacts) == 0 {
		return false
	}
	for _, report := range n.Artifacts {
		if report.Ref.Optional && report.Status == pipeline.ArtifactStatusMissing {
			continue
		}
		switch report.Status {
		case pipeline.ArtifactStatusFresh, pipeline.ArtifactStatusReady:
			continue
		default:
			return true
		}
	}
	return false
}

// CheckArtifact evaluates a single artifact and returns its resolver status.
func (r *Resolver) CheckArtifact(ctx *pipeline.Context, node *Node, ref artifact.Ref) ArtifactReport {
	report := ArtifactReport{Ref: ref, Status: pipeline.ArtifactStatusUnknown}
	if ctx == nil || ctx.Artifacts == nil {
		report.Status = pipeline.ArtifactStatusError
		report.Err = fmt.Errorf("pipeline: artifact store unavailable")
		r.emitInvalidation(ctx, node, report, pipeline.InvalidationReasonCheckError)
		return report
	}
	result, err := ctx.Artifacts.Check(ref)
	report.Metadata = result.Metadata
	if err != nil {
		report.Err = err
	}
	switch result.State {
	case artifact.StateMissing:
		report.Status = pipeline.ArtifactStatusMissing
		r.emitInvalidation(ctx, node, report, pipeline.InvalidationReasonMissing)
	case artifact.StateInvalid:
		if report.Err == nil {
			report.Err = result.Err
		}
		report.Status = pipeline.ArtifactStatusInvalid
		r.emitInvalidation(ctx, node, report, pipeline.InvalidationReasonInvalidMetadata)
	case artifact.StateError:
		if report.Err == nil {
			report.Err = result.Err
		}
		if report.Err == nil {
			report.Err = fmt.Errorf("pipeline: %s encountered an unknown error", ref.ID)
		}
		report.Status = pipeline.ArtifactStatusError
		r.emitInvalidation(ctx, node, report, pipeline.InvalidationReasonCheckError)
	case artifact.StateReady:
		if ref.Kind == artifact.KindMarker || ref.Kind == artifact.KindDirectory {
			// Markers and directories carry no metadata to validate.
			report.Status = pipeline.ArtifactStatusReady
			break
		}
		info := node.Stage.Info()
		meta := result.Metadata
		if meta == nil {
			report.Status = pipeline.ArtifactStatusInvalid
			report.Err = fmt.Errorf("pipeline: %s missing metadata", ref.ID)
			r.emitInvalidation(ctx, node, report, pipeline.InvalidationReasonInvalidMetadata)
			break
		}
		if meta.StageID != info.ID {
			report.Status = pipeline.ArtifactStatusInvalid
			report.Err = fmt.Errorf("pipeline: %s created by %s expected %s", ref.ID, meta.StageID, info.ID)
			r.emitInvalidation(ctx, node, report, pipeline.InvalidationReasonInvalidMetadata)
			break
		}
		if meta.Version != info.Version {
			report.Status = pipeline.ArtifactStatusOutdated
			r.emitInvalidation(ctx, node, report, pipeline.InvalidationReasonVersionMismatch)
			break
		}
		expected, hasExpected, fpErr := r.expectedFingerprint(ctx, node, ref)
		if fpErr != nil {
			report.Status = pipeline.ArtifactStatusError
			report.Err = fpErr
			r.emitInvalidation(ctx, node, report, pipeline.InvalidationReasonCheckError)
			break
		}
		if !hasExpected {
			report.Status = pipeline.ArtifactStatusReady
			break
		}
		stored := fingerprintFromMetadata(meta, ref.ID)
		report.ExpectedFingerprint = expected
		report.StoredFingerprint = stored
		if strings.TrimSpace(stored) == "" {
			report.Status = pipeline.ArtifactStatusReady
			break
		}
		if stored != expected {
			report.Status = pipeline.ArtifactStatusOutdated
			r.emitInvalidation(ctx, node, report, pipeline.InvalidationReasonFingerprint)
			break
		}
		report.Status = pipeline.ArtifactStatusFresh
	default:
		report.Status = pipeline.ArtifactStatusUnknown
	}
	return report
}

func (r *Resolver) expectedFingerprint(ctx *pipeline.Context, node *Node, ref artifact.Ref) (string, bool, error) {
	if node == nil {
		return "", false, nil
	}
	if node.fingerprints == nil {
		provider, ok := node.Stage.(pipeline.Fingerprinter)
		if !ok {
			return "", false, nil
		}
		fingerprints, err := provider.ArtifactFingerprints(ctx)
		if err != nil {
			return "", false, err
		}
		node.fingerprints = fingerprints
	}
	value, ok := node.fingerprints[ref.ID]
	if !ok || strings.TrimSpace(value) == "" {
		return "", false, nil
	}
	return value, true, nil
}

func fingerprintFromMetadata(meta *artifact.Metadata, artifactID string) string {
	if meta == nil || len(meta.Notes) == 0 {
		return ""
	}
	return meta.Notes[pipeline.FingerprintNoteKey(artifactID)]
}

func (r *Resolver) emitInvalidation(ctx *pipeline.Context, node *Node, report ArtifactReport, reason pipeline.ArtifactInvalidationReason) {
	handler, ok := node.Stage.(pipeline.ArtifactInvalidationHandler)
	if !ok {
		return
	}
	event := pipeline.ArtifactInvalidation{
		Artifact:            report.Ref,
		Status:              report.Status,
		Reason:              reason,
		StoredFingerprint:   report.StoredFingerprint,
		ExpectedFingerprint: report.ExpectedFingerprint,
		Metadata:            report.Metadata,
		Err:                 report.Err,
	}
	if err := handler.OnArtifactInvalidation(ctx, event); err != nil {
		node.State = NodeStateError
		node.Err = err
	}
}
