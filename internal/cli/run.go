package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/history"
	"github.com/amesworks/groundwork/internal/logbook"
	"github.com/amesworks/groundwork/internal/logging"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/pipeline/engine"
	"github.com/amesworks/groundwork/internal/pipeline/events"
	"github.com/amesworks/groundwork/internal/pipeline/resolver"
	"github.com/amesworks/groundwork/internal/pipeline/scheduler"
	"github.com/amesworks/groundwork/internal/stages"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var approve []string
	var maxParallel int
	cmd := &cobra.Command{
		Use:   "run [stage...]",
		Short: "Run the preparation pipeline",
		Long: "Run executes every runnable stage in dependency order, resuming\n" +
			"the persisted run when one exists. Gated stages hold the run until\n" +
			"approved with --approve; approvals apply to this invocation only.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runPipeline(cmd, cfg, args, approve, maxParallel)
		},
	}
	cmd.Flags().StringArrayVar(&approve, "approve", nil, "approve a gated stage for this run (repeatable)")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "stages allowed to run at once (defaults to config)")
	return cmd
}

func runPipeline(cmd *cobra.Command, cfg *config.Config, targets, approve []string, maxParallel int) error {
	reg := pipeline.NewRegistry()
	stages.RegisterBuiltins(reg)
	def, err := resolveDefinition(cfg, reg)
	if err != nil {
		return err
	}
	if err := validateStageNames(def, targets); err != nil {
		return err
	}
	if err := validateStageNames(def, approve); err != nil {
		return err
	}

	debug, err := logging.New(cfg.LogsDir())
	if err == nil {
		defer debug.Close()
	}
	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), "run.log"))
	if err != nil {
		return err
	}
	pctx, err := pipeline.NewContext(cfg, lb)
	if err != nil {
		return err
	}

	mux := events.NewMux(events.MuxWithLogger(debug))
	mux.Attach(events.SinkFunc(func(ev events.Event) error {
		subject := ev.RunID
		if ev.StageID != "" {
			subject = ev.StageID
		}
		if ev.Message != "" {
			lb.Info("%s %s: %s", ev.Type, subject, ev.Message)
		} else {
			lb.Info("%s %s", ev.Type, subject)
		}
		return nil
	}))
	engineOpts := []engine.Option{engine.WithSink(mux)}
	if cfg.HistoryEnabled() {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			lb.Warn("history unavailable: %v", err)
		} else {
			defer store.Close()
			engineOpts = append(engineOpts, engine.WithRecorder(store))
		}
	}
	eng, err := engine.New(reg, engine.NewRepository(cfg.EngineStateDir()), engineOpts...)
	if err != nil {
		return err
	}

	req := engine.RunRequest{
		Definition: def,
		Runtime:    runOverrides(cfg, targets, approve, maxParallel),
		Resume:     true,
	}
	debug.Printf("run: targets=%v approve=%v", targets, approve)
	state, err := eng.Run(cmd.Context(), pctx, req)
	if errors.Is(err, engine.ErrStateNotFound) {
		req.Resume = false
		state, err = eng.Run(cmd.Context(), pctx, req)
	}
	if err != nil {
		debug.Printf("run: %v", err)
		return err
	}
	debug.Printf("run: finished status=%s", state.Status)

	printRunSummary(cmd.OutOrStdout(), state)
	if state.Status == engine.RunStatusError {
		return fmt.Errorf("run %s finished with failed stages", state.RunID)
	}
	return nil
}

// runOverrides arms the declared approval gates fresh for every invocation;
// --approve marks them approved, targets and max-parallel narrow the batch.
func runOverrides(cfg *config.Config, targets, approve []string, maxParallel int) *engine.RuntimeOverrides {
	gates := make(map[string]scheduler.GateState)
	for _, id := range stages.DefaultGates() {
		gates[id] = scheduler.GateState{Required: true}
	}
	for _, id := range approve {
		gates[id] = scheduler.GateState{Required: true, Approved: true}
	}
	overrides := &engine.RuntimeOverrides{Gates: &gates}
	if len(targets) > 0 {
		t := append([]string(nil), targets...)
		overrides.Targets = &t
	}
	if maxParallel <= 0 {
		maxParallel = cfg.MaxParallel()
	}
	overrides.MaxParallel = &maxParallel
	return overrides
}

func validateStageNames(def pipeline.Definition, names []string) error {
	known := make(map[string]bool, len(def.Stages))
	for _, ref := range def.Stages {
		known[ref.InstanceID()] = true
	}
	for _, name := range names {
		if !known[name] {
			return usagef("unknown stage %q (stages: %s)", name, strings.Join(stageIDs(def), ", "))
		}
	}
	return nil
}

func stageIDs(def pipeline.Definition) []string {
	ids := make([]string, 0, len(def.Stages))
	for _, ref := range def.Stages {
		ids = append(ids, ref.InstanceID())
	}
	return ids
}

func printRunSummary(w io.Writer, state engine.State) {
	for _, node := range state.Nodes {
		fmt.Fprintf(w, "%-11s %s\n", node.ID, nodeSummary(node, state))
	}
	status := string(state.Status)
	if state.StatusReason != "" {
		status += ": " + state.StatusReason
	}
	fmt.Fprintf(w, "run %s %s\n", state.RunID, status)
}

func nodeSummary(node engine.StageStatus, state engine.State) string {
	if run, ok := state.Runs[node.ID]; ok {
		out := string(run.Status)
		if run.Message != "" {
			out += " - " + run.Message
		}
		if run.Error != "" {
			out += " - " + run.Error
		}
		return out
	}
	if gate, ok := state.Runtime.Gates[node.ID]; ok && gate.Required && !gate.Approved && node.State != resolver.NodeStateComplete {
		return fmt.Sprintf("held - approve with --approve %s", node.ID)
	}
	return string(node.State)
}
