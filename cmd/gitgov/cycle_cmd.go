package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gitgov-io/gitgov/pkg/backlog"
	"github.com/gitgov-io/gitgov/pkg/records"
)

func runCycle(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: gitgov cycle <create|list|update|add-task|remove-tasks|move> [flags]")
		return exitUsage
	}
	ws, err := openWorkspace(ctx, logger)
	if err != nil {
		return fail(stderr, err)
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("cycle create", flag.ContinueOnError)
		fs.SetOutput(stderr)
		title := fs.String("title", "", "cycle title (required)")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *title == "" {
			fmt.Fprintln(stderr, "usage: gitgov cycle create --title <title>")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		cycle, err := ws.Backlog.CreateCycle(ctx, records.Cycle{Title: *title}, actorID)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, cycle.ID)
		return exitOK

	case "list":
		cycles, err := ws.Backlog.GetAllCycles(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		for _, c := range cycles {
			fmt.Fprintf(stdout, "%s\t%s\t%d tasks\t%s\n", c.ID, c.Status, len(c.TaskIDs), c.Title)
		}
		return exitOK

	case "update":
		fs := flag.NewFlagSet("cycle update", flag.ContinueOnError)
		fs.SetOutput(stderr)
		id := fs.String("id", "", "cycle id (required)")
		status := fs.String("status", "", "planning|active|completed|archived")
		title := fs.String("title", "", "new title")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *id == "" || (*status == "" && *title == "") {
			fmt.Fprintln(stderr, "usage: gitgov cycle update --id <cycleId> [--status s] [--title t]")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		var update backlog.CycleUpdate
		if *status != "" {
			s := records.CycleStatus(*status)
			update.Status = &s
		}
		if *title != "" {
			update.Title = title
		}
		cycle, err := ws.Backlog.UpdateCycle(ctx, *id, actorID, update)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "%s\t%s\n", cycle.ID, cycle.Status)
		return exitOK

	case "add-task":
		fs := flag.NewFlagSet("cycle add-task", flag.ContinueOnError)
		fs.SetOutput(stderr)
		id := fs.String("id", "", "cycle id (required)")
		task := fs.String("task", "", "task id (required)")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *id == "" || *task == "" {
			fmt.Fprintln(stderr, "usage: gitgov cycle add-task --id <cycleId> --task <taskId>")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		if err := ws.Backlog.AddTaskToCycle(ctx, *id, *task, actorID); err != nil {
			return fail(stderr, err)
		}
		return exitOK

	case "remove-tasks":
		fs := flag.NewFlagSet("cycle remove-tasks", flag.ContinueOnError)
		fs.SetOutput(stderr)
		id := fs.String("id", "", "cycle id (required)")
		tasks := fs.String("tasks", "", "comma-separated task ids (required)")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *id == "" || *tasks == "" {
			fmt.Fprintln(stderr, "usage: gitgov cycle remove-tasks --id <cycleId> --tasks <id1,id2>")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		if err := ws.Backlog.RemoveTasksFromCycle(ctx, *id, strings.Split(*tasks, ","), actorID); err != nil {
			return fail(stderr, err)
		}
		return exitOK

	case "move":
		fs := flag.NewFlagSet("cycle move", flag.ContinueOnError)
		fs.SetOutput(stderr)
		from := fs.String("from", "", "source cycle id (required)")
		to := fs.String("to", "", "target cycle id (required)")
		tasks := fs.String("tasks", "", "comma-separated task ids (required)")
		actor := fs.String("actor", "", "acting actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *from == "" || *to == "" || *tasks == "" {
			fmt.Fprintln(stderr, "usage: gitgov cycle move --from <cycleId> --to <cycleId> --tasks <id1,id2>")
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *actor)
		if err != nil {
			return fail(stderr, err)
		}
		if err := ws.Backlog.MoveTasksBetweenCycles(ctx, *to, strings.Split(*tasks, ","), *from, actorID); err != nil {
			return fail(stderr, err)
		}
		return exitOK

	default:
		fmt.Fprintf(stderr, "unknown cycle command: %s\n", args[0])
		return exitUsage
	}
}
