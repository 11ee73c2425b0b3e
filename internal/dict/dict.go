// Package dict models the dataset's data dictionary: the variable definitions
// extracted from documentation.txt. Each variable has a kind (Nominal, Ordinal,
// Discrete, Continuous) and, for qualitative kinds, the ordered list of
// documented values.
package dict

import (
	"fmt"
	"strings"
)

// Kind classifies a variable.
type Kind string

const (
	KindNominal    Kind = "Nominal"
	KindOrdinal    Kind = "Ordinal"
	KindDiscrete   Kind = "Discrete"
	KindContinuous Kind = "Continuous"
)

// ParseKind normalizes a kind string.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.TrimSpace(value)) {
	case KindNominal:
		return KindNominal, nil
	case KindOrdinal:
		return KindOrdinal, nil
	case KindDiscrete:
		return KindDiscrete, nil
	case KindContinuous:
		return KindContinuous, nil
	default:
		return "", fmt.Errorf("dict: unknown kind %q", value)
	}
}

// Qualitative reports whether the kind carries a documented value set.
func (k Kind) Qualitative() bool {
	return k == KindNominal || k == KindOrdinal
}

// Quantitative reports whether the kind is numeric.
func (k Kind) Quantitative() bool {
	return k == KindDiscrete || k == KindContinuous
}

// Valid reports whether the kind is one of the four documented kinds.
func (k Kind) Valid() bool {
	return k.Qualitative() || k.Quantitative()
}

// Definition describes a single documented variable.
type Definition struct {
	Name   string   `json:"name" yaml:"name"`
	Kind   Kind     `json:"kind" yaml:"kind"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
}

// Validate ensures the definition is well-formed.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("dict: definition name is required")
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("dict: %s: unknown kind %q", d.Name, d.Kind)
	}
	if d.Kind.Quantitative() && len(d.Values) > 0 {
		return fmt.Errorf("dict: %s: %s variables carry no value set", d.Name, d.Kind)
	}
	return nil
}

// Allowed returns the documented value set for membership checks. The second
// return is false for quantitative kinds, which accept any numeric value.
func (d Definition) Allowed() (map[string]struct{}, bool) {
	if !d.Kind.Qualitative() {
		return nil, false
	}
	set := make(map[string]struct{}, len(d.Values))
	for _, v := range d.Values {
		set[v] = struct{}{}
	}
	return set, true
}

// Dictionary is an ordered collection of definitions with name lookup.
type Dictionary struct {
	defs  []Definition
	index map[string]int
}

// New validates the definitions and builds the dictionary. Duplicate names are
// rejected so one column never resolves to two contracts.
func New(defs []Definition) (*Dictionary, error) {
	d := &Dictionary{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for i, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("dict: definition[%d]: %w", i, err)
		}
		if _, exists := d.index[def.Name]; exists {
			return nil, fmt.Errorf("dict: duplicate definition %s", def.Name)
		}
		d.index[def.Name] = len(d.defs)
		d.defs = append(d.defs, cloneDefinition(def))
	}
	return d, nil
}

// Definitions returns the definitions in documentation order.
func (d *Dictionary) Definitions() []Definition {
	out := make([]Definition, len(d.defs))
	for i, def := range d.defs {
		out[i] = cloneDefinition(def)
	}
	return out
}

// Lookup finds a definition by variable name.
func (d *Dictionary) Lookup(name string) (Definition, bool) {
	i, ok := d.index[name]
	if !ok {
		return Definition{}, false
	}
	return cloneDefinition(d.defs[i]), true
}

// Len returns the number of definitions.
func (d *Dictionary) Len() int {
	return len(d.defs)
}

// Qualitative returns the Nominal and Ordinal definitions in order.
func (d *Dictionary) Qualitative() []Definition {
	return d.filter(Kind.Qualitative)
}

// Quantitative returns the Discrete and Continuous definitions in order.
func (d *Dictionary) Quantitative() []Definition {
	return d.filter(Kind.Quantitative)
}

func (d *Dictionary) filter(keep func(Kind) bool) []Definition {
	var out []Definition
	for _, def := range d.defs {
		if keep(def.Kind) {
			out = append(out, cloneDefinition(def))
		}
	}
	return out
}

func cloneDefinition(def Definition) Definition {
	clone := def
	if def.Values != nil {
		clone.Values = append([]string{}, def.Values...)
	}
	return clone
}
