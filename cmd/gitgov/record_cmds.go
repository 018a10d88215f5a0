package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gitgov-io/gitgov/pkg/changelog"
	"github.com/gitgov-io/gitgov/pkg/records"
)

func runFeedback(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: gitgov feedback <create|resolve|list> [flags]")
		return exitUsage
	}
	ws, err := openWorkspace(ctx, logger)
	if err != nil {
		return fail(stderr, err)
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("feedback create", flag.ContinueOnError)
		fs.SetOutput(stderr)
		entityType := fs.String("entity-type", "task", "task|cycle|execution|changelog|feedback")
		entityID := fs.String("entity", "", "entity id (required)")
		kind := fs.String("type", "suggestion", "blocking|suggestion|question|approval|clarification|assignment")
		content := fs.String("content", "", "feedback content (required)")
		assignee := fs.String("assignee", "", "assignee actor id (assignment type)")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *entityID == "" || *content == "" {
			fmt.Fprintln(stderr, "usage: gitgov feedback create --entity <id> --content <text> [--type t]")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		fb, err := ws.Feedback.Create(ctx, records.Feedback{
			EntityType: records.FeedbackEntityType(*entityType),
			EntityID:   *entityID,
			Type:       records.FeedbackType(*kind),
			Content:    *content,
			Assignee:   *assignee,
		}, actorID)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, fb.ID)
		return exitOK

	case "resolve":
		fs := flag.NewFlagSet("feedback resolve", flag.ContinueOnError)
		fs.SetOutput(stderr)
		id := fs.String("id", "", "feedback id to resolve (required)")
		content := fs.String("content", "", "resolution note")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *id == "" {
			fmt.Fprintln(stderr, "usage: gitgov feedback resolve --id <feedbackId> [--content note]")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		resolution, err := ws.Feedback.Resolve(ctx, *id, actorID, *content)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, resolution.ID)
		return exitOK

	case "list":
		fs := flag.NewFlagSet("feedback list", flag.ContinueOnError)
		fs.SetOutput(stderr)
		entity := fs.String("entity", "", "filter by entity id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		var items []records.Feedback
		var err error
		if *entity != "" {
			items, err = ws.Feedback.GetFeedbackByEntity(ctx, *entity)
		} else {
			items, err = ws.Feedback.GetAllFeedback(ctx)
		}
		if err != nil {
			return fail(stderr, err)
		}
		for _, fb := range items {
			fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\t%s\n", fb.ID, fb.Type, fb.Status, fb.EntityID, fb.Content)
		}
		return exitOK

	default:
		fmt.Fprintf(stderr, "unknown feedback command: %s\n", args[0])
		return exitUsage
	}
}

func runExec(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: gitgov exec <create|list> [flags]")
		return exitUsage
	}
	ws, err := openWorkspace(ctx, logger)
	if err != nil {
		return fail(stderr, err)
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("exec create", flag.ContinueOnError)
		fs.SetOutput(stderr)
		task := fs.String("task", "", "task id (required)")
		result := fs.String("result", "", "what happened, at least 10 chars (required)")
		kind := fs.String("type", "", "execution type (default progress)")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *task == "" || *result == "" {
			fmt.Fprintln(stderr, "usage: gitgov exec create --task <taskId> --result <text>")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		exec, err := ws.Execution.Create(ctx, records.Execution{
			TaskID: *task,
			Result: *result,
			Type:   *kind,
		}, actorID)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, exec.ID)
		return exitOK

	case "list":
		fs := flag.NewFlagSet("exec list", flag.ContinueOnError)
		fs.SetOutput(stderr)
		task := fs.String("task", "", "filter by task id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		var items []records.Execution
		var err error
		if *task != "" {
			items, err = ws.Execution.GetExecutionsByTask(ctx, *task)
		} else {
			items, err = ws.Execution.GetAllExecutions(ctx)
		}
		if err != nil {
			return fail(stderr, err)
		}
		for _, exec := range items {
			fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\n", exec.ID, exec.TaskID, exec.Type, exec.Title)
		}
		return exitOK

	default:
		fmt.Fprintf(stderr, "unknown exec command: %s\n", args[0])
		return exitUsage
	}
}

func runChangelog(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: gitgov changelog <create|list> [flags]")
		return exitUsage
	}
	ws, err := openWorkspace(ctx, logger)
	if err != nil {
		return fail(stderr, err)
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("changelog create", flag.ContinueOnError)
		fs.SetOutput(stderr)
		title := fs.String("title", "", "release title, at least 10 chars (required)")
		description := fs.String("description", "", "release description, at least 20 chars (required)")
		tasks := fs.String("tasks", "", "comma-separated related task ids (required)")
		version := fs.String("version", "", "semver release version")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *title == "" || *description == "" || *tasks == "" {
			fmt.Fprintln(stderr, "usage: gitgov changelog create --title <t> --description <d> --tasks <id1,id2>")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		cl, err := ws.Changelog.Create(ctx, records.Changelog{
			Title:        *title,
			Description:  *description,
			RelatedTasks: strings.Split(*tasks, ","),
			Version:      *version,
			CompletedAt:  time.Now().Unix(),
		}, actorID)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, cl.ID)
		return exitOK

	case "list":
		fs := flag.NewFlagSet("changelog list", flag.ContinueOnError)
		fs.SetOutput(stderr)
		limit := fs.Int("limit", 0, "at most N entries, newest first")
		version := fs.String("version", "", "filter by version")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		items, err := ws.Changelog.GetAllChangelogs(ctx, changelog.Query{Limit: *limit, Version: *version})
		if err != nil {
			return fail(stderr, err)
		}
		for _, cl := range items {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", cl.ID, cl.Version, cl.Title)
		}
		return exitOK

	default:
		fmt.Fprintf(stderr, "unknown changelog command: %s\n", args[0])
		return exitUsage
	}
}
