package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gitgov-io/gitgov/pkg/records"
)

func runActor(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: gitgov actor <create|list|rotate> [flags]")
		return exitUsage
	}
	ws, err := openWorkspace(ctx, logger)
	if err != nil {
		return fail(stderr, err)
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("actor create", flag.ContinueOnError)
		fs.SetOutput(stderr)
		name := fs.String("name", "", "display name (required)")
		kind := fs.String("type", "human", "actor type: human or agent")
		roles := fs.String("roles", "author", "comma-separated capability roles")
		signer := fs.String("signer", "", "signing actor id (default: current actor)")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		if *name == "" {
			fmt.Fprintln(stderr, "usage: gitgov actor create --name <name> [--type human|agent] [--roles r1,r2]")
			return exitUsage
		}
		signerID, err := actingActor(ctx, ws, *signer)
		if err != nil {
			return fail(stderr, err)
		}
		actor, err := ws.Identity.CreateActor(ctx, records.Actor{
			Type:        records.ActorType(*kind),
			DisplayName: *name,
			Roles:       strings.Split(*roles, ","),
		}, signerID)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, actor.ID)
		return exitOK

	case "list":
		actors, err := ws.Identity.ListActors(ctx)
		if err != nil {
			return fail(stderr, err)
		}
		for _, a := range actors {
			fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\n", a.ID, a.Type, a.Status, strings.Join(a.Roles, ","))
		}
		return exitOK

	case "rotate":
		fs := flag.NewFlagSet("actor rotate", flag.ContinueOnError)
		fs.SetOutput(stderr)
		id := fs.String("id", "", "actor id to rotate (default: current actor)")
		if err := fs.Parse(args[1:]); err != nil {
			return exitUsage
		}
		actorID, err := actingActor(ctx, ws, *id)
		if err != nil {
			return fail(stderr, err)
		}
		old, successor, err := ws.Identity.RotateActorKey(ctx, actorID)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "rotated %s -> %s\n", old.ID, successor.ID)
		return exitOK

	default:
		fmt.Fprintf(stderr, "unknown actor command: %s\n", args[0])
		return exitUsage
	}
}
