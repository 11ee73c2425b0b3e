// Package tui renders the interactive preparation board. The board is a
// single bubbletea model: Update folds engine snapshots and key presses into
// the next model, View draws the stage list from the latest snapshot.
package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/logbook"
	"github.com/amesworks/groundwork/internal/pipeline"
	"github.com/amesworks/groundwork/internal/pipeline/engine"
	"github.com/amesworks/groundwork/internal/pipeline/resolver"
	"github.com/amesworks/groundwork/internal/pipeline/scheduler"
	"github.com/amesworks/groundwork/internal/progress"
	"github.com/amesworks/groundwork/internal/stages"
)

// boardRefreshInterval paces background artifact re-evaluation while the
// board is idle.
const boardRefreshInterval = 5 * time.Second

// progressBarWidth is the character width of the stage progress bar.
const progressBarWidth = 20

const keyLegend = "enter=run  a=approve gate  g=toggle gate  r=refresh  j/k=move  q=quit"

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyleReady   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleGate    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	labelStyleDefault = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	legendStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// boardStateMsg delivers a fresh engine snapshot to the update loop.
type boardStateMsg struct {
	state engine.State
	err   error
}

// refreshRequestMsg asks the board to re-check artifacts on disk.
type refreshRequestMsg struct{}

// claimMsg carries the outcome of reserving a stage for execution.
type claimMsg struct {
	result engine.ClaimResult
	err    error
}

// stageDoneMsg reports a finished stage execution.
type stageDoneMsg struct {
	id         string
	result     pipeline.Result
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

// Option adjusts how the board is assembled.
type Option func(*Board)

// WithDefinition overrides the pipeline definition used when no persisted
// run exists yet.
func WithDefinition(def pipeline.Definition) Option {
	return func(b *Board) {
		b.definition = def
	}
}

// WithRecorder attaches a run history recorder to the engine.
func WithRecorder(rec engine.Recorder) Option {
	return func(b *Board) {
		b.recorder = rec
	}
}

// Board drives the preparation pipeline interactively. It resumes the
// persisted run when one exists, lets the operator run stages one at a
// time, and surfaces approval gates before destructive stages execute.
type Board struct {
	cfg        *config.Config
	definition pipeline.Definition
	recorder   engine.Recorder

	pctx     *pipeline.Context
	registry *pipeline.Registry
	eng      *engine.Engine
	refs     map[string]pipeline.StageRef

	state       engine.State
	stateLoaded bool
	running     bool
	selection   int
	width       int
	height      int
	statusMsg   string
	err         error
	spin        spinner.Model
}

// New assembles a board bound to the project configuration.
func New(cfg *config.Config, opts ...Option) (*Board, error) {
	if cfg == nil {
		return nil, fmt.Errorf("tui: config is required")
	}
	board := &Board{cfg: cfg, definition: stages.Prepare()}
	board.spin = spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(labelStyleRunning))
	for _, opt := range opts {
		opt(board)
	}
	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), "run.log"))
	if err != nil {
		return nil, err
	}
	pctx, err := pipeline.NewContext(cfg, lb)
	if err != nil {
		return nil, err
	}
	registry := pipeline.NewRegistry()
	stages.RegisterBuiltins(registry)
	var engineOpts []engine.Option
	if board.recorder != nil {
		engineOpts = append(engineOpts, engine.WithRecorder(board.recorder))
	}
	eng, err := engine.New(registry, engine.NewRepository(cfg.EngineStateDir()), engineOpts...)
	if err != nil {
		return nil, err
	}
	board.pctx = pctx
	board.registry = registry
	board.eng = eng
	board.refs = stageRefIndex(board.definition)
	return board, nil
}

// Init loads the persisted run, starting a fresh one when none exists.
func (b *Board) Init() tea.Cmd {
	return tea.Batch(b.bootstrap, scheduleRefresh())
}

func (b *Board) bootstrap() tea.Msg {
	state, err := b.eng.Resume(b.pctx, engine.ResumeRequest{})
	if errors.Is(err, engine.ErrStateNotFound) {
		gates := defaultGateStates()
		state, err = b.eng.Start(b.pctx, engine.StartRequest{
			Definition: b.definition,
			Runtime:    &engine.RuntimeOverrides{Gates: &gates},
		})
	}
	return boardStateMsg{state: state, err: err}
}

// defaultGateStates arms the approval gates declared by the built-in pipeline.
func defaultGateStates() map[string]scheduler.GateState {
	gates := make(map[string]scheduler.GateState)
	for _, id := range stages.DefaultGates() {
		gates[id] = scheduler.GateState{Required: true}
	}
	return gates
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(boardRefreshInterval, func(time.Time) tea.Msg {
		return refreshRequestMsg{}
	})
}

// Update folds a message into the board model.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		return b, nil
	case tea.KeyMsg:
		return b.handleKey(msg)
	case boardStateMsg:
		return b.handleState(msg)
	case refreshRequestMsg:
		if !b.stateLoaded || b.running {
			return b, scheduleRefresh()
		}
		return b, tea.Batch(b.refreshState, scheduleRefresh())
	case claimMsg:
		return b.handleClaim(msg)
	case stageDoneMsg:
		return b.handleStageDone(msg)
	case spinner.TickMsg:
		if !b.running {
			return b, nil
		}
		var cmd tea.Cmd
		b.spin, cmd = b.spin.Update(msg)
		return b, cmd
	}
	return b, nil
}

func (b *Board) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return b, tea.Quit
	case "up", "k":
		if b.selection > 0 {
			b.selection--
		}
	case "down", "j":
		if b.selection < len(b.state.Nodes)-1 {
			b.selection++
		}
	case "r":
		if b.stateLoaded && !b.running {
			return b, b.refreshState
		}
	case "enter":
		return b, b.runSelected()
	case "a":
		return b, b.approveSelected()
	case "g":
		return b, b.toggleGateSelected()
	}
	return b, nil
}

func (b *Board) handleState(msg boardStateMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if !b.stateLoaded {
			b.err = msg.err
		} else {
			b.setStatus(fmt.Sprintf("engine: %v", msg.err))
		}
		return b, nil
	}
	b.err = nil
	b.applyState(msg.state)
	return b, nil
}

func (b *Board) handleClaim(msg claimMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		b.setStatus(fmt.Sprintf("claim: %v", msg.err))
		return b, nil
	}
	b.applyState(msg.result.State)
	if len(msg.result.Claims) == 0 {
		b.setStatus("nothing to run")
		return b, nil
	}
	claim := msg.result.Claims[0]
	b.running = true
	b.setStatus(fmt.Sprintf("running %s", claim.Name))
	return b, tea.Batch(b.executeStage(claim), b.spin.Tick)
}

func (b *Board) handleStageDone(msg stageDoneMsg) (tea.Model, tea.Cmd) {
	b.running = false
	switch {
	case msg.err != nil:
		b.setStatus(fmt.Sprintf("%s: %v", msg.id, msg.err))
	case msg.result.Message != "":
		b.setStatus(msg.result.Message)
	default:
		b.setStatus(fmt.Sprintf("%s finished", msg.id))
	}
	return b, func() tea.Msg { return b.reportStage(msg) }
}

// refreshState re-evaluates artifacts without reporting stage results.
func (b *Board) refreshState() tea.Msg {
	state, err := b.eng.Update(b.pctx, engine.UpdateRequest{})
	return boardStateMsg{state: state, err: err}
}

func (b *Board) runSelected() tea.Cmd {
	node, ok := b.selectedNode()
	if !ok {
		return nil
	}
	if b.running {
		b.setStatus("a stage is already running")
		return nil
	}
	if !contains(b.state.Runnable, node.ID) {
		b.setStatus(fmt.Sprintf("%s is not runnable", node.ID))
		return nil
	}
	id := node.ID
	return func() tea.Msg {
		result, err := b.eng.Claim(b.pctx, engine.ClaimRequest{Limit: 1, Stages: []string{id}})
		return claimMsg{result: result, err: err}
	}
}

// executeStage resolves and runs a claimed stage off the update loop.
func (b *Board) executeStage(claim engine.WorkClaim) tea.Cmd {
	ref := b.refs[claim.ID]
	return func() tea.Msg {
		startedAt := time.Now().UTC()
		stage, err := b.registry.Resolve(claim.StageID, ref.Config)
		if err != nil {
			return stageDoneMsg{id: claim.ID, err: err, startedAt: startedAt, finishedAt: time.Now().UTC()}
		}
		result, err := stage.Run(b.pctx)
		return stageDoneMsg{id: claim.ID, result: result, err: err, startedAt: startedAt, finishedAt: time.Now().UTC()}
	}
}

func (b *Board) reportStage(msg stageDoneMsg) tea.Msg {
	state, err := b.eng.Update(b.pctx, engine.UpdateRequest{
		Results: []engine.StageUpdate{{
			ID:         msg.id,
			Result:     msg.result,
			Err:        msg.err,
			StartedAt:  msg.startedAt,
			FinishedAt: msg.finishedAt,
		}},
	})
	return boardStateMsg{state: state, err: err}
}

func (b *Board) approveSelected() tea.Cmd {
	node, ok := b.selectedNode()
	if !ok {
		return nil
	}
	gates := cloneGateStates(b.state.Runtime.Gates)
	gate, armed := gates[node.ID]
	if !armed || !gate.Required {
		b.setStatus(fmt.Sprintf("%s has no approval gate", node.ID))
		return nil
	}
	if gate.Approved {
		b.setStatus(fmt.Sprintf("%s is already approved", node.ID))
		return nil
	}
	gate.Approved = true
	gates[node.ID] = gate
	b.setStatus(fmt.Sprintf("approved %s", node.ID))
	return b.pushGates(gates)
}

func (b *Board) toggleGateSelected() tea.Cmd {
	node, ok := b.selectedNode()
	if !ok {
		return nil
	}
	gates := cloneGateStates(b.state.Runtime.Gates)
	gate := gates[node.ID]
	gate.Required = !gate.Required
	if !gate.Required {
		gate.Approved = false
	}
	gates[node.ID] = gate
	return b.pushGates(gates)
}

func (b *Board) pushGates(gates map[string]scheduler.GateState) tea.Cmd {
	return func() tea.Msg {
		state, err := b.eng.Update(b.pctx, engine.UpdateRequest{
			Runtime: &engine.RuntimeOverrides{Gates: &gates},
		})
		return boardStateMsg{state: state, err: err}
	}
}

func (b *Board) applyState(state engine.State) {
	b.state = state
	b.stateLoaded = true
	b.refs = stageRefIndex(state.Definition)
	if len(state.Nodes) == 0 {
		b.selection = 0
	} else if b.selection >= len(state.Nodes) {
		b.selection = len(state.Nodes) - 1
	}
}

func (b *Board) selectedNode() (engine.StageStatus, bool) {
	if !b.stateLoaded || b.selection < 0 || b.selection >= len(b.state.Nodes) {
		return engine.StageStatus{}, false
	}
	return b.state.Nodes[b.selection], true
}

func (b *Board) setStatus(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}
	b.statusMsg = message
	if b.pctx != nil && b.pctx.Logbook != nil {
		b.pctx.Logbook.Info("board: %s", message)
	}
}

// View draws the board from the latest engine snapshot.
func (b *Board) View() string {
	if b.err != nil {
		return labelStyleBlocked.Render(fmt.Sprintf("Board error: %v", b.err)) + "\n"
	}
	if !b.stateLoaded {
		return detailTextStyle.Render("Loading run state…") + "\n"
	}
	done := 0
	for _, node := range b.state.Nodes {
		if node.State == resolver.NodeStateComplete {
			done++
		}
	}
	statusLine := fmt.Sprintf("Status: %s", b.state.Status)
	if b.state.StatusReason != "" {
		statusLine += fmt.Sprintf(" · %s", b.state.StatusReason)
	}
	lines := []string{
		titleStyle.Render("groundwork") + " · " + b.state.PipelineID,
		fmt.Sprintf("%s %d/%d stages", progress.Bar(done, len(b.state.Nodes), progressBarWidth), done, len(b.state.Nodes)),
		statusLine,
	}
	if b.statusMsg != "" {
		status := detailTextStyle.Render(b.statusMsg)
		if b.running {
			status = b.spin.View() + " " + status
		}
		lines = append(lines, status)
	}
	lines = append(lines, "")
	for i, node := range b.state.Nodes {
		lines = append(lines, b.renderStageLine(i, node))
		if i == b.selection {
			lines = append(lines, b.renderStageDetails(node))
		}
	}
	lines = append(lines, "", legendStyle.Render(keyLegend))
	return strings.Join(lines, "\n") + "\n"
}

func (b *Board) renderStageLine(idx int, node engine.StageStatus) string {
	indicator := " "
	if idx == b.selection {
		indicator = ">"
	}
	name := node.Name
	if strings.TrimSpace(name) == "" {
		name = node.ID
	}
	labels := b.stageLabels(node)
	rendered := make([]string, 0, len(labels))
	for _, label := range labels {
		rendered = append(rendered, label.style.Render(label.text))
	}
	return fmt.Sprintf("%s %s · [%s]", indicator, name, strings.Join(rendered, ", "))
}

func (b *Board) renderStageDetails(node engine.StageStatus) string {
	var details []string
	if node.Description != "" {
		details = append(details, node.Description)
	}
	if len(node.BlockedBy) > 0 {
		details = append(details, fmt.Sprintf("Blocked by: %s", strings.Join(node.BlockedBy, ", ")))
	}
	if skip, held := b.state.Skipped[node.ID]; held {
		details = append(details, fmt.Sprintf("Held: %s (%s)", skip.Detail, skip.Reason))
	}
	if run := node.LastRun; run != nil {
		runLine := fmt.Sprintf("Last run: %s", run.Status)
		if run.Message != "" {
			runLine += fmt.Sprintf(" · %s", run.Message)
		}
		if run.Error != "" {
			runLine += fmt.Sprintf(" · error: %s", run.Error)
		}
		if metrics := formatMetrics(run.Metrics); metrics != "" {
			runLine += fmt.Sprintf(" · %s", metrics)
		}
		details = append(details, runLine)
	}
	if len(details) == 0 {
		return detailTextStyle.Render("  no additional details")
	}
	return detailTextStyle.Render("  " + strings.Join(details, "\n  "))
}

type stageLabel struct {
	text  string
	style lipgloss.Style
}

// stageLabels picks the badges shown next to a stage name. A running claim
// wins over the resolver state, and an armed gate is always surfaced.
func (b *Board) stageLabels(node engine.StageStatus) []stageLabel {
	labels := make([]stageLabel, 0, 2)
	if contains(b.state.Runtime.Running, node.ID) {
		labels = append(labels, stageLabel{text: "Running", style: labelStyleRunning})
	} else {
		labels = append(labels, stageLabel{text: friendlyLabel(node.State), style: labelStyleForState(node.State)})
	}
	if gate, armed := b.state.Runtime.Gates[node.ID]; armed && gate.Required && node.State != resolver.NodeStateComplete {
		if gate.Approved {
			labels = append(labels, stageLabel{text: "Approved", style: labelStyleReady})
		} else {
			labels = append(labels, stageLabel{text: "Gate", style: labelStyleGate})
		}
	}
	return labels
}

func friendlyLabel(state resolver.NodeState) string {
	switch state {
	case resolver.NodeStateComplete:
		return "Done"
	case resolver.NodeStateReady:
		return "Ready"
	case resolver.NodeStateBlocked:
		return "Blocked"
	case resolver.NodeStatePending:
		return "Pending"
	case resolver.NodeStateError:
		return "Error"
	default:
		return "Unknown"
	}
}

func labelStyleForState(state resolver.NodeState) lipgloss.Style {
	switch state {
	case resolver.NodeStateReady:
		return labelStyleReady
	case resolver.NodeStateBlocked, resolver.NodeStateError:
		return labelStyleBlocked
	default:
		return labelStyleDefault
	}
}

func formatMetrics(metrics map[string]int) string {
	if len(metrics) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metrics))
	for key := range metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, metrics[key]))
	}
	return strings.Join(parts, " ")
}

func stageRefIndex(def pipeline.Definition) map[string]pipeline.StageRef {
	refs := make(map[string]pipeline.StageRef, len(def.Stages))
	for _, ref := range def.Stages {
		refs[ref.InstanceID()] = ref
	}
	return refs
}

func cloneGateStates(src map[string]scheduler.GateState) map[string]scheduler.GateState {
	out := make(map[string]scheduler.GateState, len(src))
	for id, gate := range src {
		out[id] = gate
	}
	return out
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
