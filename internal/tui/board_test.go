package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amesworks/groundwork/internal/config"
	"github.com/amesworks/groundwork/internal/pipeline/engine"
	"github.com/amesworks/groundwork/internal/pipeline/resolver"
	"github.com/amesworks/groundwork/internal/pipeline/scheduler"
)

const boardDoc = "MS Zoning (Nominal): Identifies the general zoning classification of the sale.\n" +
	"       A\tAgriculture\n" +
	"       C\tCommercial\n" +
	"       FV\tFloating Village Residential\n" +
	"       RH\tResidential High Density\n" +
	"       RL\tResidential Low Density\n" +
	"       RM\tResidential Medium Density\n" +
	"\n" +
	"Lot Frontage (Continuous): Linear feet of street connected to property\n" +
	"\n" +
	"Neighborhood (Nominal): Physical locations within Ames city limits\n" +
	"       NAmes\tNorth Ames\n" +
	"       OldTown\tOld Town\n" +
	"\n" +
	"Year Built (Discrete): Original construction date\n"

const boardTrain = `Order,MS Zoning,Lot Frontage,Neighborhood,Year Built
1,RL,80,NAmes,1965
2,C (all),75,NAmes,2001
3,RM,NA,OldTown,1915
4,NA,70,OldTown,1999
5,FV,NA,NAmes,1978
`

const boardConfig = `version: 1
repairs:
  - variable: MS Zoning
    replacements:
      "C (all)": "C"
imputations:
  - variable: MS Zoning
    strategy: mode
  - variable: Lot Frontage
    strategy: median
    by: Neighborhood
categorize:
  - column: Year Built
    label: modern
    else_label: vintage
    when: { op: ge, value: "1980" }
`

func TestBoardBootstrapStartsFreshRun(t *testing.T) {
	board := newTestBoard(t)

	pump(t, board, board.bootstrap)

	if !board.stateLoaded {
		t.Fatal("expected state to load")
	}
	if board.state.Status != engine.RunStatusRunning {
		t.Fatalf("unexpected status %s (%s)", board.state.Status, board.state.StatusReason)
	}
	gate, ok := board.state.Runtime.Gates["repair"]
	if !ok || !gate.Required || gate.Approved {
		t.Fatalf("repair gate not armed: %+v", board.state.Runtime.Gates)
	}
	view := board.View()
	for _, want := range []string{"groundwork", "0/6 stages", "Parse Dictionary", "Gate", "enter=run"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestBoardRunsSelectedStage(t *testing.T) {
	board := newTestBoard(t)
	pump(t, board, board.bootstrap)

	press(t, board, tea.KeyMsg{Type: tea.KeyEnter})

	if board.running {
		t.Fatal("expected run to settle")
	}
	node := findNode(t, board, "dictionary")
	if node.State != resolver.NodeStateComplete {
		t.Fatalf("dictionary state %s, error %q", node.State, node.Error)
	}
	view := board.View()
	if !strings.Contains(view, "1/6 stages") {
		t.Fatalf("progress bar not updated:\n%s", view)
	}
}

func TestBoardGateHoldsRepairUntilApproved(t *testing.T) {
	board := newTestBoard(t)
	pump(t, board, board.bootstrap)

	press(t, board, tea.KeyMsg{Type: tea.KeyEnter}) // dictionary
	press(t, board, keyRune('j'))
	press(t, board, tea.KeyMsg{Type: tea.KeyEnter}) // audit
	press(t, board, keyRune('j'))

	press(t, board, tea.KeyMsg{Type: tea.KeyEnter})
	if node := findNode(t, board, "repair"); node.State == resolver.NodeStateComplete {
		t.Fatal("repair ran before approval")
	}
	if !strings.Contains(board.statusMsg, "not runnable") {
		t.Fatalf("unexpected status message %q", board.statusMsg)
	}

	press(t, board, keyRune('a'))
	gate := board.state.Runtime.Gates["repair"]
	if !gate.Approved {
		t.Fatalf("gate not approved: %+v", gate)
	}
	press(t, board, tea.KeyMsg{Type: tea.KeyEnter})
	if node := findNode(t, board, "repair"); node.State != resolver.NodeStateComplete {
		t.Fatalf("repair state %s, error %q", node.State, node.Error)
	}
	if !strings.Contains(board.View(), "3/6 stages") {
		t.Fatalf("progress bar not updated:\n%s", board.View())
	}
}

func TestBoardToggleGateArmsAnyStage(t *testing.T) {
	board := newTestBoard(t)
	pump(t, board, board.bootstrap)

	press(t, board, keyRune('g'))
	gate := board.state.Runtime.Gates["dictionary"]
	if !gate.Required || gate.Approved {
		t.Fatalf("dictionary gate not armed: %+v", gate)
	}
	if contains(board.state.Runnable, "dictionary") {
		t.Fatal("gated stage still runnable")
	}

	press(t, board, keyRune('g'))
	gate = board.state.Runtime.Gates["dictionary"]
	if gate.Required {
		t.Fatalf("dictionary gate still armed: %+v", gate)
	}
	if !contains(board.state.Runnable, "dictionary") {
		t.Fatal("stage not runnable after disarming gate")
	}
}

func TestStageLabelsPickRunningAndGateBadges(t *testing.T) {
	board := &Board{
		stateLoaded: true,
		state: engine.State{
			Runtime: engine.Runtime{
				Running: []string{"impute"},
				Gates: map[string]scheduler.GateState{
					"repair": {Required: true},
					"export": {Required: true, Approved: true},
				},
			},
		},
	}
	cases := []struct {
		node engine.StageStatus
		want []string
	}{
		{engine.StageStatus{ID: "impute", State: resolver.NodeStateReady}, []string{"Running"}},
		{engine.StageStatus{ID: "repair", State: resolver.NodeStateReady}, []string{"Ready", "Gate"}},
		{engine.StageStatus{ID: "export", State: resolver.NodeStateBlocked}, []string{"Blocked", "Approved"}},
		{engine.StageStatus{ID: "audit", State: resolver.NodeStateComplete}, []string{"Done"}},
	}
	for _, tc := range cases {
		labels := board.stageLabels(tc.node)
		if len(labels) != len(tc.want) {
			t.Fatalf("%s: got %d labels, want %v", tc.node.ID, len(labels), tc.want)
		}
		for i, label := range labels {
			if label.text != tc.want[i] {
				t.Errorf("%s: label %d = %q, want %q", tc.node.ID, i, label.text, tc.want[i])
			}
		}
	}
}

// pump executes commands until the update loop settles. Scheduled refresh
// ticks are never pumped because tests drive refreshes by hand.
func pump(t *testing.T, board *Board, cmd tea.Cmd) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if next == nil {
			continue
		}
		switch msg := next().(type) {
		case nil:
		case tea.BatchMsg:
			queue = append(queue, msg...)
		default:
			_, cmd := board.Update(msg)
			queue = append(queue, cmd)
		}
	}
}

func press(t *testing.T, board *Board, msg tea.KeyMsg) {
	t.Helper()
	_, cmd := board.Update(msg)
	pump(t, board, cmd)
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func findNode(t *testing.T, board *Board, id string) engine.StageStatus {
	t.Helper()
	for _, node := range board.state.Nodes {
		if node.ID == id {
			return node
		}
	}
	t.Fatalf("node %s not found", id)
	return engine.StageStatus{}
}

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	dir := t.TempDir()
	if err := config.InitProjectDir(dir); err != nil {
		t.Fatalf("init project: %v", err)
	}
	configPath := filepath.Join(dir, config.GroundworkDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(boardConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := os.WriteFile(cfg.DocumentationPath(), []byte(boardDoc), 0o644); err != nil {
		t.Fatalf("write documentation: %v", err)
	}
	if err := os.WriteFile(cfg.TrainPath(), []byte(boardTrain), 0o644); err != nil {
		t.Fatalf("write train: %v", err)
	}
	board, err := New(cfg)
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	return board
}
