package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/project"
)

func runInit(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	name := fs.String("name", "", "project name (required)")
	actorName := fs.String("actor", "", "display name of the bootstrap actor (required)")
	root := fs.String("root", "", "project root (default: current directory)")
	template := fs.String("template", "", "path to a JSON seed template")
	methodology := fs.String("methodology", "", "methodology name or rule file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *name == "" || *actorName == "" {
		fmt.Fprintln(stderr, "usage: gitgov init --name <project> --actor <name> [--root dir] [--template file]")
		return exitUsage
	}
	if *root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fail(stderr, err)
		}
		*root = wd
	}

	opts := project.InitOptions{
		Root:        *root,
		Name:        *name,
		ActorName:   *actorName,
		Methodology: *methodology,
	}
	if *template != "" {
		tpl, err := project.LoadTemplate(*template)
		if err != nil {
			return fail(stderr, err)
		}
		opts.Template = tpl
	}

	adapter := project.NewAdapter(project.Options{Bus: eventbus.New(logger), Logger: logger})
	result, err := adapter.InitializeProject(ctx, opts)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "initialized project %s\n", result.ProjectID)
	fmt.Fprintf(stdout, "  actor:      %s\n", result.ActorID)
	fmt.Fprintf(stdout, "  root cycle: %s\n", result.RootCycleID)
	return exitOK
}
