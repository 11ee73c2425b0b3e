// internal/config/config.go
//
// This package handles configuration and the .groundwork directory structure.
// Every project that uses groundwork gets a .groundwork/ folder created in its
// root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/amesworks/groundwork/internal/clean"
	"github.com/amesworks/groundwork/internal/dict"
)

const (
	// GroundworkDir is the name of the directory we create in each project
	GroundworkDir = ".groundwork"

	defaultPipelineID  = "house-prices"
	defaultMaxParallel = 2
	defaultExportPath  = "out/cleaned.csv"
)

// Imputation strategies accepted by config.yaml.
const (
	StrategyMode   = "mode"
	StrategyMedian = "median"
)

const defaultProjectConfigYAML = `# groundwork project configuration
version: 1

# Input dataset. Paths are relative to the project root.
dataset:
  documentation: documentation.txt
  train: train.csv
  # Encoding of the documentation file: latin-1 or utf-8.
  encoding: latin-1

# Cell values read as missing.
na_markers: ["", "NA"]

# Replacement maps for documented-but-miscoded values. Values with no
# mapping are blanked so the impute stage can fill them.
# repairs:
#   - variable: MS Zoning
#     replacements:
#       "C (all)": "C"

# Missing-value fills. Strategy is mode or median; "by" groups the fill by
# another column and falls back to the overall statistic.
# imputations:
#   - variable: Lot Frontage
#     strategy: median
#     by: Neighborhood

# Row labeling rules. Operators: eq ne gt ge lt le in.
# categorize:
#   - column: Pool Area
#     label: with-pool
#     else_label: no-pool
#     when: { op: gt, value: "0" }

outliers:
  iqr_multiplier: 1.5

export:
  path: out/cleaned.csv

pipeline:
  default: house-prices
  # Upper bound on stages run concurrently within a batch.
  max_parallel: 2

history:
  disabled: false
`

// DatasetConfig points at the raw inputs a project prepares.
type DatasetConfig struct {
	Documentation string `yaml:"documentation"`
	Train         string `yaml:"train"`
	Encoding      string `yaml:"encoding,omitempty"`
}

// PipelineConfig captures pipeline preferences.
type PipelineConfig struct {
	Default     string `yaml:"default"`
	MaxParallel int    `yaml:"max_parallel,omitempty"`
}

// HistoryConfig controls the run history ledger.
type HistoryConfig struct {
	Disabled bool `yaml:"disabled,omitempty"`
}

// RepairRule maps documented-but-miscoded values for one variable. Invalid
// values with no mapping are blanked by the repair stage.
type RepairRule struct {
	Variable     string            `yaml:"variable"`
	Replacements map[string]string `yaml:"replacements"`
}

// ImputationRule fills missing cells of one variable with mode or median,
// optionally grouped by another column.
type ImputationRule struct {
	Variable string `yaml:"variable"`
	Strategy string `yaml:"strategy"`
	By       string `yaml:"by,omitempty"`
}

// PredicateConfig is the serialized form of a categorize test.
type PredicateConfig struct {
	Op     string   `yaml:"op"`
	Value  string   `yaml:"value,omitempty"`
	Values []string `yaml:"values,omitempty"`
}

// CategorizeRule labels rows by a predicate over one column.
type CategorizeRule struct {
	Column    string          `yaml:"column"`
	Label     string          `yaml:"label"`
	ElseLabel string          `yaml:"else_label"`
	When      PredicateConfig `yaml:"when"`
}

// OutliersConfig tunes the fences used by the audit stage.
type OutliersConfig struct {
	IQRMultiplier float64 `yaml:"iqr_multiplier,omitempty"`
}

// ExportConfig controls where the prepared table is copied.
type ExportConfig struct {
	Path string `yaml:"path,omitempty"`
}

// ProjectConfig models .groundwork/config.yaml.
type ProjectConfig struct {
	Version     int              `yaml:"version"`
	Dataset     DatasetConfig    `yaml:"dataset"`
	NAMarkers   []string         `yaml:"na_markers"`
	Repairs     []RepairRule     `yaml:"repairs,omitempty"`
	Imputations []ImputationRule `yaml:"imputations,omitempty"`
	Categorize  []CategorizeRule `yaml:"categorize,omitempty"`
	Outliers    OutliersConfig   `yaml:"outliers,omitempty"`
	Export      ExportConfig     `yaml:"export,omitempty"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
	History     HistoryConfig    `yaml:"history,omitempty"`
}

// EnvOverrides are process-environment settings that win over config.yaml.
type EnvOverrides struct {
	Project     string `env:"GROUNDWORK_PROJECT"`
	MaxParallel int    `env:"GROUNDWORK_MAX_PARALLEL"`
	NoColor     bool   `env:"GROUNDWORK_NO_COLOR"`
	NoHistory   bool   `env:"GROUNDWORK_NO_HISTORY"`
}

// Config holds the runtime configuration for groundwork.
type Config struct {
	// ProjectDir is the directory where the user ran `groundwork` from
	ProjectDir string

	// DotDir is ProjectDir/.groundwork
	DotDir string

	Project ProjectConfig
	Env     EnvOverrides
}

// InitProjectDir creates the .groundwork directory structure in the given
// project directory and seeds config.yaml when absent.
//
// Structure created:
// .groundwork/
// ├── pipelines/    <- Pipeline definitions (YAML)
// ├── data/         <- Produced artifacts (parsed dictionary, audits, tables)
// ├── state/        <- Engine state and run history
// │   └── engine/
// └── logs/         <- Run and tool logs
func InitProjectDir(projectDir string) error {
	dotDir := filepath.Join(projectDir, GroundworkDir)

	dirs := []string{
		filepath.Join(dotDir, "pipelines"),
		filepath.Join(dotDir, "data"),
		filepath.Join(dotDir, "state", "engine"),
		filepath.Join(dotDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return ensureProjectConfig(filepath.Join(dotDir, "config.yaml"))
}

// ResolveProjectDir picks the project directory: the explicit argument wins,
// then GROUNDWORK_PROJECT, then the working directory.
func ResolveProjectDir(explicit string) (string, error) {
	if dir := strings.TrimSpace(explicit); dir != "" {
		return filepath.Abs(dir)
	}
	if dir := strings.TrimSpace(os.Getenv("GROUNDWORK_PROJECT")); dir != "" {
		return filepath.Abs(dir)
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: resolve working directory: %w", err)
	}
	return dir, nil
}

// NewConfig creates a Config populated from .groundwork/config.yaml and the
// process environment.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir: projectDir,
		DotDir:     filepath.Join(projectDir, GroundworkDir),
		Project:    defaultProjectConfig(),
	}

	if err := env.Parse(&cfg.Env); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DataDir returns the directory for produced artifacts.
func (c *Config) DataDir() string {
	return filepath.Join(c.DotDir, "data")
}

// PipelinesDir returns the directory holding pipeline definitions.
func (c *Config) PipelinesDir() string {
	return filepath.Join(c.DotDir, "pipelines")
}

// StateDir returns the path to the state directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.DotDir, "state")
}

// EngineStateDir returns the directory for persisted engine state.
func (c *Config) EngineStateDir() string {
	return filepath.Join(c.StateDir(), "engine")
}

// HistoryPath returns the on-disk location of the run history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.StateDir(), "history.db")
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DotDir, "logs")
}

// ProgressPath returns the on-disk location of the progress board.
func (c *Config) ProgressPath() string {
	return filepath.Join(c.DotDir, "PROGRESS.md")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.DotDir, "config.yaml")
}

// DocumentationPath returns the resolved path of the data dictionary source.
func (c *Config) DocumentationPath() string {
	return c.Project.Dataset.Documentation
}

// TrainPath returns the resolved path of the training table.
func (c *Config) TrainPath() string {
	return c.Project.Dataset.Train
}

// Encoding returns the configured documentation encoding.
func (c *Config) Encoding() dict.Encoding {
	enc, _ := dict.ParseEncoding(c.Project.Dataset.Encoding)
	return enc
}

// NAMarkers returns the configured missing-value markers.
func (c *Config) NAMarkers() []string {
	return c.Project.NAMarkers
}

// Repairs returns the configured invalid-value replacement rules.
func (c *Config) Repairs() []RepairRule {
	return c.Project.Repairs
}

// Imputations returns the configured missing-value fill rules.
func (c *Config) Imputations() []ImputationRule {
	return c.Project.Imputations
}

// CategorizeRules returns the configured row labeling rules.
func (c *Config) CategorizeRules() []CategorizeRule {
	return c.Project.Categorize
}

// FenceFactor returns the IQR multiplier for outlier fences.
func (c *Config) FenceFactor() float64 {
	return c.Project.Outliers.IQRMultiplier
}

// ExportPath returns the resolved destination for the prepared table.
func (c *Config) ExportPath() string {
	return c.Project.Export.Path
}

// DefaultPipeline returns the configured default pipeline identifier.
func (c *Config) DefaultPipeline() string {
	return c.Project.Pipeline.Default
}

// MaxParallel returns the stage concurrency bound. The environment override
// wins over config.yaml.
func (c *Config) MaxParallel() int {
	if c.Env.MaxParallel > 0 {
		return c.Env.MaxParallel
	}
	if c.Project.Pipeline.MaxParallel > 0 {
		return c.Project.Pipeline.MaxParallel
	}
	return defaultMaxParallel
}

// HistoryEnabled reports whether runs should be recorded in the history
// ledger. GROUNDWORK_NO_HISTORY wins over config.yaml.
func (c *Config) HistoryEnabled() bool {
	if c.Env.NoHistory {
		return false
	}
	return !c.Project.History.Disabled
}

// NoColor reports whether terminal output should skip styling.
func (c *Config) NoColor() bool {
	return c.Env.NoColor
}

// SetDefaultPipeline updates the default pipeline identifier and persists the
// value back to .groundwork/config.yaml.
func (c *Config) SetDefaultPipeline(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("config: pipeline id is required")
	}
	c.Project.Pipeline.Default = id
	return c.saveProjectConfig()
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Project.normalize(c.ProjectDir)
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Version: 1,
		Dataset: DatasetConfig{
			Documentation: "documentation.txt",
			Train:         "train.csv",
			Encoding:      string(dict.EncodingLatin1),
		},
		NAMarkers: []string{"", "NA"},
		Outliers:  OutliersConfig{IQRMultiplier: clean.DefaultFenceFactor},
		Export:    ExportConfig{Path: defaultExportPath},
		Pipeline: PipelineConfig{
			Default:     defaultPipelineID,
			MaxParallel: defaultMaxParallel,
		},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.Dataset.Documentation) == "" {
		pc.Dataset.Documentation = "documentation.txt"
	}
	if strings.TrimSpace(pc.Dataset.Train) == "" {
		pc.Dataset.Train = "train.csv"
	}
	if strings.TrimSpace(pc.Dataset.Encoding) == "" {
		pc.Dataset.Encoding = string(dict.EncodingLatin1)
	}
	if pc.NAMarkers == nil {
		pc.NAMarkers = []string{"", "NA"}
	}
	if pc.Outliers.IQRMultiplier == 0 {
		pc.Outliers.IQRMultiplier = clean.DefaultFenceFactor
	}
	if strings.TrimSpace(pc.Export.Path) == "" {
		pc.Export.Path = defaultExportPath
	}
	if pc.Pipeline.MaxParallel == 0 {
		pc.Pipeline.MaxParallel = defaultMaxParallel
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Dataset.Documentation = resolvePath(base, pc.Dataset.Documentation)
	pc.Dataset.Train = resolvePath(base, pc.Dataset.Train)
	pc.Dataset.Encoding = strings.ToLower(strings.TrimSpace(pc.Dataset.Encoding))
	for i := range pc.Repairs {
		pc.Repairs[i].Variable = strings.TrimSpace(pc.Repairs[i].Variable)
	}
	for i := range pc.Imputations {
		pc.Imputations[i].Variable = strings.TrimSpace(pc.Imputations[i].Variable)
		pc.Imputations[i].Strategy = strings.ToLower(strings.TrimSpace(pc.Imputations[i].Strategy))
		pc.Imputations[i].By = strings.TrimSpace(pc.Imputations[i].By)
	}
	for i := range pc.Categorize {
		pc.Categorize[i].Column = strings.TrimSpace(pc.Categorize[i].Column)
		pc.Categorize[i].When.Op = strings.ToLower(strings.TrimSpace(pc.Categorize[i].When.Op))
	}
	pc.Export.Path = resolvePath(base, pc.Export.Path)
	pc.Pipeline.Default = strings.TrimSpace(pc.Pipeline.Default)
	if pc.Pipeline.Default == "" {
		pc.Pipeline.Default = defaultPipelineID
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if _, err := dict.ParseEncoding(pc.Dataset.Encoding); err != nil {
		return fmt.Errorf("dataset.encoding: %w", err)
	}
	if len(pc.NAMarkers) == 0 {
		return fmt.Errorf("na_markers needs at least one marker")
	}
	for i, rule := range pc.Repairs {
		if rule.Variable == "" {
			return fmt.Errorf("repairs[%d]: variable is required", i)
		}
		if len(rule.Replacements) == 0 {
			return fmt.Errorf("repairs[%d]: at least one replacement is required", i)
		}
	}
	for i, rule := range pc.Imputations {
		if rule.Variable == "" {
			return fmt.Errorf("imputations[%d]: variable is required", i)
		}
		if rule.Strategy != StrategyMode && rule.Strategy != StrategyMedian {
			return fmt.Errorf("imputations[%d]: strategy must be mode or median, got %q", i, rule.Strategy)
		}
	}
	for i, rule := range pc.Categorize {
		if rule.Column == "" {
			return fmt.Errorf("categorize[%d]: column is required", i)
		}
		if strings.TrimSpace(rule.Label) == "" || strings.TrimSpace(rule.ElseLabel) == "" {
			return fmt.Errorf("categorize[%d]: label and else_label are required", i)
		}
		if _, err := clean.NewPredicate(rule.When.Op, rule.When.Value, rule.When.Values); err != nil {
			return fmt.Errorf("categorize[%d]: %w", i, err)
		}
	}
	if pc.Outliers.IQRMultiplier <= 0 {
		return fmt.Errorf("outliers.iqr_multiplier must be > 0")
	}
	if pc.Pipeline.MaxParallel < 1 {
		return fmt.Errorf("pipeline.max_parallel must be >= 1")
	}
	if strings.TrimSpace(pc.Pipeline.Default) == "" {
		return fmt.Errorf("pipeline.default is required")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}

func (c *Config) saveProjectConfig() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	c.Project.applyDefaults()
	c.Project.normalize(c.ProjectDir)
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.DotDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure project dir: %w", err)
	}
	data, err := yaml.Marshal(c.Project)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ProjectConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write project config: %w", err)
	}
	return nil
}
