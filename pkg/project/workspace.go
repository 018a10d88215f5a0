package project

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gitgov-io/gitgov/pkg/backlog"
	"github.com/gitgov-io/gitgov/pkg/changelog"
	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/execution"
	"github.com/gitgov-io/gitgov/pkg/feedback"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/metrics"
	"github.com/gitgov-io/gitgov/pkg/workflow"
)

// Workspace is a fully wired kernel over one initialized working copy.
type Workspace struct {
	Paths     config.Paths
	Config    *config.Config
	Session   *config.SessionManager
	Bus       *eventbus.Bus
	Identity  *identity.Adapter
	Backlog   *backlog.Adapter
	Feedback  *feedback.Adapter
	Execution *execution.Adapter
	Changelog *changelog.Adapter
	Health    metrics.HealthSource
}

// Open assembles the adapters over an existing .gitgov directory. The event
// subscriptions between adapters are live once Open returns.
func Open(ctx context.Context, root string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	paths := config.Paths{Root: root}
	if _, err := os.Stat(paths.Dir()); err != nil {
		return nil, fmt.Errorf("no gitgov working copy at %s: %w", root, err)
	}
	cfg, err := config.NewManager(paths.ConfigPath()).Load(ctx)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New(logger)
	session := config.NewSessionManager(paths.SessionPath())
	ident, err := identity.NewAdapter(identity.Options{
		ActorsDir: paths.ActorsDir(),
		AgentsDir: paths.AgentsDir(),
		Session:   session,
		Bus:       bus,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	fb, err := feedback.NewAdapter(feedback.Options{
		Dir:      paths.FeedbackDir(),
		Identity: ident,
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	health := metrics.NewFeedbackHealthSource(fb)

	methodology, err := loadMethodology(paths, cfg)
	if err != nil {
		return nil, err
	}
	bl, err := backlog.NewAdapter(backlog.Options{
		TasksDir:    paths.TasksDir(),
		CyclesDir:   paths.CyclesDir(),
		Identity:    ident,
		Methodology: methodology,
		Health:      health,
		Feedback:    fb,
		Session:     session,
		Bus:         bus,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	execs, err := execution.NewAdapter(execution.Options{
		Dir:      paths.ExecutionsDir(),
		Tasks:    bl.Tasks(),
		Identity: ident,
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	cls, err := changelog.NewAdapter(changelog.Options{
		Dir:      paths.ChangelogsDir(),
		Tasks:    bl.Tasks(),
		Cycles:   bl.Cycles(),
		Identity: ident,
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &Workspace{
		Paths:     paths,
		Config:    cfg,
		Session:   session,
		Bus:       bus,
		Identity:  ident,
		Backlog:   bl,
		Feedback:  fb,
		Execution: execs,
		Changelog: cls,
		Health:    health,
	}, nil
}

// loadMethodology resolves the configured methodology: "default" (or empty)
// uses the embedded rule set, anything else is a rule file path relative to
// the state directory.
func loadMethodology(paths config.Paths, cfg *config.Config) (workflow.Methodology, error) {
	name := cfg.State.Defaults.Methodology
	if name == "" || name == "default" {
		return workflow.Default(), nil
	}
	return workflow.LoadFile(filepath.Join(paths.Dir(), name))
}
