package pipeline

import "github.com/amesworks/groundwork/internal/artifact"

// Base provides the boilerplate shared by stage implementations.
type Base struct {
	info    Info
	inputs  []artifact.Ref
	outputs []artifact.Ref
}

// NewBase constructs the embedded stage scaffolding.
func NewBase(info Info) *Base {
	return &Base{info: info}
}

func (b *Base) Info() Info { return b.info }

func (b *Base) Inputs() []artifact.Ref {
	out := make([]artifact.Ref, len(b.inputs))
	copy(out, b.inputs)
	return out
}

func (b *Base) Outputs() []artifact.Ref {
	out := make([]artifact.Ref, len(b.outputs))
	copy(out, b.outputs)
	return out
}

// SetInputs declares the artifacts the stage consumes.
func (b *Base) SetInputs(refs ...artifact.Ref) { b.inputs = refs }

// SetOutputs declares the artifacts the stage produces.
func (b *Base) SetOutputs(refs ...artifact.Ref) { b.outputs = refs }
