// Command gitgov is the CLI over the governance kernel. Every subcommand
// maps onto one adapter operation; the CLI never touches record files
// directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gitgov-io/gitgov/pkg/backlog"
	"github.com/gitgov-io/gitgov/pkg/crypto"
	"github.com/gitgov-io/gitgov/pkg/feedback"
	"github.com/gitgov-io/gitgov/pkg/observability"
	"github.com/gitgov-io/gitgov/pkg/project"
	"github.com/gitgov-io/gitgov/pkg/records"
	"github.com/gitgov-io/gitgov/pkg/store"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Exit codes: one per error tag, so scripts can branch on outcome.
const (
	exitOK             = 0
	exitError          = 1
	exitUsage          = 2
	exitValidation     = 3
	exitNotFound       = 4
	exitProtocol       = 5
	exitDuplicate      = 6
	exitBlocked        = 7
	exitEntityType     = 8
	exitChecksum       = 9
	exitSignature      = 10
	exitAtomic         = 11
	exitNotImplemented = 12
	exitCrypto         = 13
)

// Run dispatches a subcommand. It exists separate from main for tests.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return exitUsage
	}
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	obsCfg := observability.DefaultConfig()
	if endpoint := os.Getenv("GITGOV_OTEL_ENDPOINT"); endpoint != "" {
		obsCfg.Enabled = true
		obsCfg.OTLPEndpoint = endpoint
	}
	obs, err := observability.New(ctx, obsCfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, "telemetry init:", err)
		return exitError
	}
	defer obs.Shutdown(ctx)

	ctx, done := obs.TrackCommand(ctx, "gitgov."+args[1])
	code := dispatch(ctx, args, stdout, stderr, logger)
	if code == exitOK {
		done(nil)
	} else {
		done(fmt.Errorf("exit %d", code))
	}
	return code
}

func dispatch(ctx context.Context, args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	switch args[1] {
	case "init":
		return runInit(ctx, args[2:], stdout, stderr, logger)
	case "actor":
		return runActor(ctx, args[2:], stdout, stderr, logger)
	case "task":
		return runTask(ctx, args[2:], stdout, stderr, logger)
	case "cycle":
		return runCycle(ctx, args[2:], stdout, stderr, logger)
	case "feedback":
		return runFeedback(ctx, args[2:], stdout, stderr, logger)
	case "exec":
		return runExec(ctx, args[2:], stdout, stderr, logger)
	case "changelog":
		return runChangelog(ctx, args[2:], stdout, stderr, logger)
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: gitgov <command> [flags]

Commands:
  init       initialize a working copy (.gitgov)
  actor      manage signing identities (create, list, rotate)
  task       manage tasks (create, submit, approve, activate, pause,
             resume, complete, discard, delete, show, list)
  cycle      manage cycles (create, list, update, add-task, move)
  feedback   raise and resolve feedback (create, resolve, list)
  exec       record work on tasks (create, list)
  changelog  publish releases (create, list)

Run 'gitgov <command>' without arguments for command-specific usage.`)
}

// fail prints one tagged error line and converts the tag to an exit code.
func fail(stderr io.Writer, err error) int {
	fmt.Fprintln(stderr, "error:", err)
	var (
		validation *records.DetailedValidationError
		notFound   *store.RecordNotFoundError
		checksum   *store.ChecksumMismatchError
		signature  *store.SignatureError
		protocol   *backlog.ProtocolViolationError
		blocked    *backlog.BlockingFeedbackError
		atomic     *backlog.AtomicOperationError
		notImpl    *backlog.NotImplementedError
		duplicate  *feedback.DuplicateAssignmentError
		entityType *feedback.InvalidEntityTypeError
		cryptoErr  *crypto.CryptoError
	)
	switch {
	case errors.As(err, &validation):
		return exitValidation
	case errors.As(err, &notFound):
		return exitNotFound
	case errors.As(err, &checksum):
		return exitChecksum
	case errors.As(err, &signature):
		return exitSignature
	case errors.As(err, &protocol):
		return exitProtocol
	case errors.As(err, &blocked):
		return exitBlocked
	case errors.As(err, &atomic):
		return exitAtomic
	case errors.As(err, &notImpl):
		return exitNotImplemented
	case errors.As(err, &duplicate):
		return exitDuplicate
	case errors.As(err, &entityType):
		return exitEntityType
	case errors.As(err, &cryptoErr):
		return exitCrypto
	default:
		return exitError
	}
}

// openWorkspace wires the kernel over the working copy in the current
// directory (or GITGOV_ROOT).
func openWorkspace(ctx context.Context, logger *slog.Logger) (*project.Workspace, error) {
	root := os.Getenv("GITGOV_ROOT")
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	return project.Open(ctx, root, logger)
}

// actingActor resolves the identity a command acts as: the --actor flag
// when given, else the session's current actor.
func actingActor(ctx context.Context, ws *project.Workspace, flagValue string) (string, error) {
	if flagValue != "" {
		return ws.Identity.ResolveCurrentActorID(ctx, flagValue)
	}
	actor, err := ws.Identity.GetCurrentActor(ctx)
	if err != nil {
		return "", err
	}
	return actor.ID, nil
}
