package engine

import (
	"strings"

	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/pipeline/resolver"
)

func applyPipelineRuntime(def pipeline.Definition, runtime Runtime) Runtime {
	if def.Runtime.MaxParallel > 0 && runtime.MaxParallel <= 0 {
		runtime.MaxParallel = def.Runtime.MaxParallel
	}
	return runtime
}

// releaseRunning removes finished stages from the running set. A stage that
// stopped to ask for input has still returned, so it releases its slot too;
// deriveRunStatus reports the blockage from the run record instead.
func releaseRunning(running []string, updates []StageUpdate) []string {
	if len(running) == 0 || len(updates) == 0 {
		return running
	}
	released := map[string]struct{}{}
	for _, update := range updates {
		id := strings.TrimSpace(update.ID)
		if id == "" {
			continue
		}
		released[id] = struct{}{}
	}
	if len(released) == 0 {
		return running
	}
	filtered := make([]string, 0, len(running))
	for _, id := range running {
		if _, drop := released[id]; drop {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered
}

// dropSettledRunning strips running entries whose node already reached a
// terminal resolver state. Guards against stale running lists after crashes.
func dropSettledRunning(running []string, nodes []StageStatus) []string {
	if len(running) == 0 {
		return running
	}
	settled := map[string]struct{}{}
	for _, status := range nodes {
		switch status.State {
		case resolver.NodeStateComplete, resolver.NodeStateError:
			settled[status.ID] = struct{}{}
		}
	}
	if len(settled) == 0 {
		return running
	}
	filtered := make([]string, 0, len(running))
	for _, id := range running {
		if _, drop := settled[id]; drop {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered
}

func appendRunning(running []string, ids []string) []string {
	if len(ids) == 0 {
		return running
	}
	set := make(map[string]struct{}, len(running))
	for _, id := range running {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	for _, id := range ids {
		clean := strings.TrimSpace(id)
		if clean == "" {
			continue
		}
		if _, exists := set[clean]; exists {
			continue
		}
		running = append(running, clean)
		set[clean] = struct{}{}
	}
	return running
}

func stripIDs(values []string, ids []string) []string {
	if len(values) == 0 || len(ids) == 0 {
		return values
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		drop[id] = struct{}{}
	}
	if len(drop) == 0 {
		return values
	}
	filtered := make([]string, 0, len(values))
	for _, id := range values {
		if _, remove := drop[id]; remove {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered
}

func filterClaimable(runnable []string, requested []string) []string {
	if len(runnable) == 0 {
		return nil
	}
	if len(requested) == 0 {
		out := make([]string, len(runnable))
		copy(out, runnable)
		return out
	}
	allowed := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		clean := strings.TrimSpace(id)
		if clean == "" {
			continue
		}
		allowed[clean] = struct{}{}
	}
	var filtered []string
	for _, id := range runnable {
		if _, ok := allowed[id]; ok {
			filtered = append(filtered, id)
		}
	}
	return filtered
}
