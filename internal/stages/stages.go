// Package stages collects the built-in preparation stages and the default
// pipeline that sequences them.
package stages

import (
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/stages/audit"
	"github.com/amesworks/groundwork/internal/stages/categorize"
	"github.com/amesworks/groundwork/internal/stages/dictionary"
	"github.com/amesworks/groundwork/internal/stages/export"
	"github.com/amesworks/groundwork/internal/stages/impute"
	"github.com/amesworks/groundwork/internal/stages/repair"
)

// RegisterBuiltins installs all of the built-in stage factories into the
// provided registry.
func RegisterBuiltins(reg *pipeline.Registry) {
	if reg == nil {
		return
	}
	dictionary.Register(reg)
	audit.Register(reg)
	repair.Register(reg)
	impute.Register(reg)
	categorize.Register(reg)
	export.Register(reg)
}

// Prepare returns the default preparation pipeline. Each stage feeds the
// next, with categorization marked optional since projects without
// categorize rules skip it entirely.
func Prepare() pipeline.Definition {
	return pipeline.Definition{
		ID:          "house-prices",
		Name:        "House Prices Preparation",
		Description: "Parse the data dictionary, audit the raw table, then repair, impute, categorize, and export it.",
		Stages: []pipeline.StageRef{
			{StageID: "dictionary"},
			{StageID: "audit", Needs: []string{"dictionary"}},
			{StageID: "repair", Needs: []string{"audit"}},
			{StageID: "impute", Needs: []string{"repair"}},
			{StageID: "categorize", Needs: []string{"impute"}, Optional: true},
			{StageID: "export", Needs: []string{"categorize"}},
		},
		Runtime: pipeline.RuntimeConfig{MaxParallel: 2},
	}
}

// DefaultGates names the stage instances that hold for operator approval
// before running.
func DefaultGates() []string {
	return []string{"repair"}
}
