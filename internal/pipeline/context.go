package pipeline

import (
	"fmt"

	"github.com/amesworks/groundwork/internal/artifact"
	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/logbook"
)

// Context carries the shared project handles each stage needs: resolved
// configuration, the logbook, and the artifact store rooted at the project's
// data directory.
type Context struct {
	Config    *config.Config
	Logbook   *logbook.Logbook
	Artifacts *artifact.Store
}

// NewContext builds a stage context from resolved configuration.
func NewContext(cfg *config.Config, lb *logbook.Logbook) (*Context, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline: config is required")
	}
	return &Context{
		Config:    cfg,
		Artifacts: artifact.NewStore(cfg.DataDir()),
		Logbook:   lb,
	}, nil
}

// WithArtifacts returns a copy of the context using the provided store.
// Tests use this to swap in stores with deterministic clocks.
func (c *Context) WithArtifacts(store *artifact.Store) *Context {
	clone := *c
	clone.Artifacts = store
	return &clone
}

// Log appends to the logbook when one is attached.
func (c *Context) Log(level logbook.Level, format string, args ...any) {
	if c == nil || c.Logbook == nil {
		return
	}
	switch level {
	case logbook.LevelWarn:
		c.Logbook.Warn(format, args...)
	case logbook.LevelError:
		c.Logbook.Error(format, args...)
	default:
		c.Logbook.Info(format, args...)
	}
}
