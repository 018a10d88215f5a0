// Package config owns the two structured state documents of a working copy:
// .gitgov/config.json (project metadata) and .gitgov/.session.json (last
// actor and per-actor active task/cycle). Both are single JSON documents
// written with the atomic temp-file + rename discipline and never held open
// across commands.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// GitgovDirName is the project state directory created at the project root.
const GitgovDirName = ".gitgov"

// Paths resolves the on-disk layout under a project root.
type Paths struct {
	Root string
}

// Dir returns the .gitgov directory.
func (p Paths) Dir() string { return filepath.Join(p.Root, GitgovDirName) }

// ConfigPath returns the project config file path.
func (p Paths) ConfigPath() string { return filepath.Join(p.Dir(), "config.json") }

// SessionPath returns the session file path.
func (p Paths) SessionPath() string { return filepath.Join(p.Dir(), ".session.json") }

// ActorsDir holds ActorRecord files and private keys.
func (p Paths) ActorsDir() string { return filepath.Join(p.Dir(), "actors") }

// AgentsDir holds AgentRecord files.
func (p Paths) AgentsDir() string { return filepath.Join(p.Dir(), "agents") }

// TasksDir holds TaskRecord files.
func (p Paths) TasksDir() string { return filepath.Join(p.Dir(), "tasks") }

// CyclesDir holds CycleRecord files.
func (p Paths) CyclesDir() string { return filepath.Join(p.Dir(), "cycles") }

// FeedbackDir holds FeedbackRecord files.
func (p Paths) FeedbackDir() string { return filepath.Join(p.Dir(), "feedback") }

// ExecutionsDir holds ExecutionRecord files.
func (p Paths) ExecutionsDir() string { return filepath.Join(p.Dir(), "executions") }

// ChangelogsDir holds ChangelogRecord files.
func (p Paths) ChangelogsDir() string { return filepath.Join(p.Dir(), "changelogs") }

// PromptPath returns the agent prompt file copied at init.
func (p Paths) PromptPath() string { return filepath.Join(p.Dir(), "gitgov") }

// SyncConfig controls the state-branch synchronization hook.
type SyncConfig struct {
	Enabled  bool   `json:"enabled"`
	AutoPush bool   `json:"autoPush"`
	Remote   string `json:"remote,omitempty"`
}

// DefaultsConfig carries project-wide defaults applied by the adapters.
type DefaultsConfig struct {
	Priority    string `json:"priority,omitempty"`
	Methodology string `json:"methodology,omitempty"`
}

// StateConfig groups the VCS-facing settings.
type StateConfig struct {
	Branch   string         `json:"branch"`
	Sync     SyncConfig     `json:"sync"`
	Defaults DefaultsConfig `json:"defaults"`
}

// Config is the content of .gitgov/config.json.
type Config struct {
	ProtocolVersion string      `json:"protocolVersion"`
	ProjectID       string      `json:"projectId"`
	ProjectName     string      `json:"projectName"`
	RootCycle       string      `json:"rootCycle"`
	State           StateConfig `json:"state"`
}

// Manager reads and writes the project config document.
type Manager struct {
	path string
}

// NewManager creates a manager for the config file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads and parses config.json.
func (m *Manager) Load(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", m.path, err)
	}
	return &cfg, nil
}

// Save writes config.json atomically.
func (m *Manager) Save(ctx context.Context, cfg *Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJSONAtomic(m.path, cfg)
}

func writeJSONAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
