package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gitgov-io/gitgov/pkg/project"
	"github.com/gitgov-io/gitgov/pkg/records"
)

func runTask(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: gitgov task <create|submit|approve|activate|pause|resume|complete|discard|delete|show|list> [flags]")
		return exitUsage
	}
	ws, err := openWorkspace(ctx, logger)
	if err != nil {
		return fail(stderr, err)
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("task create", flag.ContinueOnError)
		fs.SetOutput(stderr)
		title := fs.String("title", "", "task title (required)")
		description := fs.String("description", "", "task description")
		priority := fs.String("priority", "", "low|medium|high|critical")
		tags := fs.String("tags", "", "comma-separated tags")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *title == "" {
			fmt.Fprintln(stderr, "usage: gitgov task create --title <title> [--description d] [--priority p]")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		partial := records.Task{Title: *title, Description: *description, Priority: *priority}
		if *tags != "" {
			partial.Tags = strings.Split(*tags, ",")
		}
		task, err := ws.Backlog.CreateTask(ctx, partial, actorID)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, task.ID)
		return exitOK

	case "submit", "approve", "activate", "complete":
		return runTaskTransition(ctx, ws, args[0], args[1:], stdout, stderr)

	case "pause", "discard":
		fs := flag.NewFlagSet("task "+args[0], flag.ContinueOnError)
		fs.SetOutput(stderr)
		id := fs.String("id", "", "task id (required)")
		reason := fs.String("reason", "", "why")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *id == "" {
			fmt.Fprintf(stderr, "usage: gitgov task %s --id <taskId> [--reason r]\n", args[0])
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		var task *records.Task
		if args[0] == "pause" {
			task, err = ws.Backlog.PauseTask(ctx, *id, actorID, *reason)
		} else {
			task, err = ws.Backlog.DiscardTask(ctx, *id, actorID, *reason)
		}
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "%s\t%s\n", task.ID, task.Status)
		return exitOK

	case "resume":
		fs := flag.NewFlagSet("task resume", flag.ContinueOnError)
		fs.SetOutput(stderr)
		id := fs.String("id", "", "task id (required)")
		force := fs.Bool("force", false, "resume despite open blocking feedback")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *id == "" {
			fmt.Fprintln(stderr, "usage: gitgov task resume --id <taskId> [--force]")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		task, err := ws.Backlog.ResumeTask(ctx, *id, actorID, *force)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "%s\t%s\n", task.ID, task.Status)
		return exitOK

	case "delete":
		fs := flag.NewFlagSet("task delete", flag.ContinueOnError)
		fs.SetOutput(stderr)
		id := fs.String("id", "", "task id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *id == "" {
			fmt.Fprintln(stderr, "usage: gitgov task delete --id <taskId>")
			return exitUsage
		}
		if err := ws.Backlog.DeleteTask(ctx, *id); err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "deleted %s\n", *id)
		return exitOK

	case "show":
		fs := flag.NewFlagSet("task show", flag.ContinueOnError)
		fs.SetOutput(stderr)
		id := fs.String("id", "", "task id (required)")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *id == "" {
			fmt.Fprintln(stderr, "usage: gitgov task show --id <taskId>")
			return exitUsage
		}
		task, err := ws.Backlog.GetTask(ctx, *id)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "id:       %s\n", task.ID)
		fmt.Fprintf(stdout, "title:    %s\n", task.Title)
		fmt.Fprintf(stdout, "status:   %s\n", task.Status)
		fmt.Fprintf(stdout, "priority: %s\n", task.Priority)
		if len(task.CycleIDs) > 0 {
			fmt.Fprintf(stdout, "cycles:   %s\n", strings.Join(task.CycleIDs, ", "))
		}
		if task.Notes != "" {
			fmt.Fprintf(stdout, "notes:    %s\n", task.Notes)
		}
		return exitOK

	case "list":
		tasks, err := ws.Backlog.GetAllTasks(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		for _, task := range tasks {
			fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\n", task.ID, task.Status, task.Priority, task.Title)
		}
		return exitOK

	default:
		fmt.Fprintf(stderr, "unknown task command: %s\n", args[0])
		return exitUsage
	}
}

func runTaskTransition(ctx context.Context, ws *project.Workspace, command string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("task "+command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.String("id", "", "task id (required)")
	actor := fs.String("actor", "", "acting actor id")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *id == "" {
		fmt.Fprintf(stderr, "usage: gitgov task %s --id <taskId>\n", command)
		return exitUsage
	}
	actorID, err := actingActor(ctx, ws, *actor)
	if err != nil {
		return fail(stderr, err)
	}
	var task *records.Task
	switch command {
	case "submit":
		task, err = ws.Backlog.SubmitTask(ctx, *id, actorID)
	case "approve":
		task, err = ws.Backlog.ApproveTask(ctx, *id, actorID)
	case "activate":
		task, err = ws.Backlog.ActivateTask(ctx, *id, actorID)
	case "complete":
		task, err = ws.Backlog.CompleteTask(ctx, *id, actorID)
	}
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "%s\t%s\n", task.ID, task.Status)
	return exitOK
}
