package pipeline

import (
	"fmt"

	"github.com/amesworks/groundwork/internal/artifact"
)

// Info describes a stage's identity and intent.
type Info struct {
	ID          string
	Name        string
	Description string
	Version     string
	Concurrency ConcurrencyProfile
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("pipeline: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("pipeline: name is required for %s", i.ID)
	}
	if i.Version == "" {
		return fmt.Errorf("pipeline: version is required for %s", i.ID)
	}
	if err := i.Concurrency.validate(i.ID); err != nil {
		return err
	}
	return nil
}

// ConcurrencyProfile declares how many scheduler slots a stage consumes and
// whether it requires exclusive execution.
type ConcurrencyProfile struct {
	// Slots describes how many scheduler capacity units are required to execute
	// the stage. Zero or negative values default to one slot.
	Slots int
	// Exclusive forces the stage to run without any other stages occupying the
	// pipeline engine. Useful for steps that rewrite files other stages read.
	Exclusive bool
}

func (p ConcurrencyProfile) slotsOrDefault() int {
	if p.Slots <= 0 {
		return 1
	}
	return p.Slots
}

func (p ConcurrencyProfile) validate(stageID string) error {
	if p.Slots < 0 {
		return fmt.Errorf("pipeline: concurrency slots must be >= 0 for %s", stageID)
	}
	return nil
}

// SlotCost returns how many scheduler slots the stage consumes simultaneously.
func (i Info) SlotCost() int {
	return i.Concurrency.slotsOrDefault()
}

// RequiresExclusiveExecution reports whether the stage must run without other
// concurrent stages.
func (i Info) RequiresExclusiveExecution() bool {
	return i.Concurrency.Exclusive
}

// Result captures the outcome of a stage execution. Metrics carry small
// counters (rows read, cells filled) into the run history.
type Result struct {
	Status  Status
	Message string
	Metrics map[string]int
}

// Status enumerates stage run outcomes.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusNoOp       Status = "no-op"
	StatusNeedsInput Status = "needs-input"
	StatusFailed     Status = "failed"
)

// Stage is implemented by every preparation step.
type Stage interface {
	Info() Info
	Inputs() []artifact.Ref
	Outputs() []artifact.Ref
	IsComplete(ctx *Context) (bool, error)
	Run(ctx *Context) (Result, error)
}
