// Package project owns working-copy bootstrap: it creates the .gitgov
// layout, the trust-root actor, the root cycle, and the config and session
// documents, in a fixed order with full rollback on any failure.
package project

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/gitgov-io/gitgov/pkg/backlog"
	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/records"
)

//go:embed prompt.md
var agentPrompt []byte

// bootstrapRoles are granted to the trust-root actor so it can drive every
// methodology transition of a fresh project.
var bootstrapRoles = []string{"admin", "author", "approver:product", "approver:quality", "developer"}

// Adapter runs project initialization.
type Adapter struct {
	init   Initializer
	bus    *eventbus.Bus
	logger *slog.Logger
	now    func() time.Time
}

// Options wires a project adapter. Init defaults to FSInitializer.
type Options struct {
	Init   Initializer
	Bus    *eventbus.Bus
	Logger *slog.Logger
	Now    func() time.Time
}

// NewAdapter builds a project adapter.
func NewAdapter(opts Options) *Adapter {
	if opts.Init == nil {
		opts.Init = FSInitializer{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Adapter{init: opts.Init, bus: opts.Bus, logger: opts.Logger, now: opts.Now}
}

// InitOptions parameterizes InitializeProject.
type InitOptions struct {
	Root      string
	Name      string
	ActorName string
	// Template optionally seeds initial cycles and tasks.
	Template *Template
	// Defaults recorded in config.json.
	Priority    string
	Methodology string
	Branch      string
}

// InitResult reports what InitializeProject created.
type InitResult struct {
	ProjectID   string
	ProjectName string
	RootCycleID string
	ActorID     string
}

// Template is the optional seed content: cycles under the root and tasks
// inside them. Every entry passes through its record factory, so invalid
// seeds fail the whole init.
type Template struct {
	Cycles []TemplateCycle `json:"cycles"`
}

// TemplateCycle is one seeded cycle with its tasks.
type TemplateCycle struct {
	Title string         `json:"title"`
	Tasks []records.Task `json:"tasks"`
}

// LoadTemplate parses a template file.
func LoadTemplate(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tpl Template
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", path, err)
	}
	return &tpl, nil
}

// InitializeProject performs the ordered bootstrap: environment validation,
// directory creation, prompt copy, trust-root actor, root cycle, template
// seeding, config write, session init, VCS wiring. Any failure rolls back
// every artifact created during this call.
func (a *Adapter) InitializeProject(ctx context.Context, opts InitOptions) (*InitResult, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	if opts.ActorName == "" {
		return nil, fmt.Errorf("actor name is required")
	}
	paths := config.Paths{Root: opts.Root}
	if err := a.init.ValidateEnvironment(ctx, paths); err != nil {
		return nil, err
	}

	result, err := a.runInit(ctx, paths, opts)
	if err != nil {
		if rbErr := a.init.Rollback(ctx, paths); rbErr != nil {
			a.logger.Error("init rollback failed", "root", opts.Root, "error", rbErr)
		}
		return nil, err
	}
	return result, nil
}

func (a *Adapter) runInit(ctx context.Context, paths config.Paths, opts InitOptions) (*InitResult, error) {
	for _, dir := range []string{
		paths.Dir(), paths.ActorsDir(), paths.AgentsDir(), paths.TasksDir(),
		paths.CyclesDir(), paths.FeedbackDir(), paths.ExecutionsDir(), paths.ChangelogsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(paths.PromptPath(), agentPrompt, 0o644); err != nil {
		return nil, err
	}

	session := config.NewSessionManager(paths.SessionPath())
	ident, err := identity.NewAdapter(identity.Options{
		ActorsDir: paths.ActorsDir(),
		AgentsDir: paths.AgentsDir(),
		Session:   session,
		Bus:       a.bus,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	actor, err := ident.CreateActor(ctx, records.Actor{
		Type:        records.ActorTypeHuman,
		DisplayName: opts.ActorName,
		Roles:       bootstrapRoles,
	}, "")
	if err != nil {
		return nil, err
	}

	bl, err := backlog.NewAdapter(backlog.Options{
		TasksDir:  paths.TasksDir(),
		CyclesDir: paths.CyclesDir(),
		Identity:  ident,
		Session:   session,
		Bus:       a.bus,
		Logger:    a.logger,
		Now:       a.now,
	})
	if err != nil {
		return nil, err
	}
	root, err := bl.CreateCycle(ctx, records.Cycle{Title: "root"}, actor.ID)
	if err != nil {
		return nil, err
	}

	if opts.Template != nil {
		if err := a.seedTemplate(ctx, bl, opts.Template, root.ID, actor.ID); err != nil {
			return nil, err
		}
	}

	cfg := &config.Config{
		ProtocolVersion: records.ProtocolVersion,
		ProjectID:       records.Slugify(opts.Name) + "-" + uuid.NewString()[:8],
		ProjectName:     opts.Name,
		RootCycle:       root.ID,
		State: config.StateConfig{
			Branch: branchOrDefault(opts.Branch),
			Sync:   config.SyncConfig{Enabled: false},
			Defaults: config.DefaultsConfig{
				Priority:    defaultString(opts.Priority, records.PriorityMedium),
				Methodology: defaultString(opts.Methodology, "default"),
			},
		},
	}
	if err := config.NewManager(paths.ConfigPath()).Save(ctx, cfg); err != nil {
		return nil, err
	}
	if err := session.SetLastActor(ctx, actor.ID); err != nil {
		return nil, err
	}
	if err := a.init.SetupVCS(ctx, paths); err != nil {
		return nil, err
	}

	a.logger.Info("project initialized",
		"project", cfg.ProjectID, "actor", actor.ID, "rootCycle", root.ID)
	return &InitResult{
		ProjectID:   cfg.ProjectID,
		ProjectName: cfg.ProjectName,
		RootCycleID: root.ID,
		ActorID:     actor.ID,
	}, nil
}

// seedTemplate creates the template cycles as children of the root and the
// template tasks inside their cycles.
func (a *Adapter) seedTemplate(ctx context.Context, bl *backlog.Adapter, tpl *Template, rootID, actorID string) error {
	var childIDs []string
	for _, tc := range tpl.Cycles {
		cycle, err := bl.CreateCycle(ctx, records.Cycle{Title: tc.Title}, actorID)
		if err != nil {
			return err
		}
		childIDs = append(childIDs, cycle.ID)
		for _, partial := range tc.Tasks {
			task, err := bl.CreateTask(ctx, partial, actorID)
			if err != nil {
				return err
			}
			if err := bl.AddTaskToCycle(ctx, cycle.ID, task.ID, actorID); err != nil {
				return err
			}
		}
	}
	if len(childIDs) == 0 {
		return nil
	}
	_, err := bl.UpdateCycle(ctx, rootID, actorID, backlog.CycleUpdate{ChildCycleIDs: childIDs})
	return err
}

func branchOrDefault(branch string) string {
	if branch == "" {
		return "gitgov-state"
	}
	return branch
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
