package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"switchboard/internal/adapter/channel"
	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
	"switchboard/internal/infra/logger"
	"switchboard/internal/infra/tracer"
)

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
		if !strings.HasPrefix(args[0], "-") {
			cmd, args = args[0], args[1:]
		}
	}

	var err error
	switch cmd {
	case "serve":
		err = withApp(args, runServe)
	case "chat":
		err = withApp(args, runChat)
	case "ingest":
		err = withApp(args, func(ctx context.Context, a *app, rest []string) error {
			user, files := flagValue(rest, "--user")
			return runIngest(ctx, a, user, files, os.Stdout)
		})
	case "agents":
		err = withApp(args, func(_ context.Context, a *app, _ []string) error {
			return printAgents(a, os.Stdout)
		})
	case "doctor":
		err = runDoctor(configPath(args), os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'switchboard --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`switchboard - multi-agent conversational router

USAGE:
    switchboard [COMMAND] [FLAGS]

COMMANDS:
    serve       Serve the HTTP chat API (default)
    chat        Chat interactively on stdin/stdout
    ingest      Embed text files into the document store
                Usage: ingest [--user ID] FILE...
    agents      List registered agents
    doctor      Run health checks on your setup

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)
    --session ID       Session ID for chat (default: new session)

CONFIGURATION:
    Config file: ./config.yaml (optional)
    Environment: SWITCHBOARD_* variables override config

EXAMPLES:
    switchboard                                  # Serve on :8090
    switchboard chat                             # Terminal chat
    switchboard ingest --user ana notes.md       # Index a document
    switchboard doctor                           # Check system health`)
}

// withApp loads config, sets up logging and tracing, wires the app and runs
// fn with a context cancelled on SIGINT/SIGTERM.
func withApp(args []string, fn func(ctx context.Context, a *app, args []string) error) error {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracerShutdown(shutdownCtx)
	}()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(); err != nil {
			log.Error("shutdown error", "error", err)
		}
	}()

	return fn(ctx, a, stripGlobalFlags(args))
}

func runServe(ctx context.Context, a *app, _ []string) error {
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	ch := channel.NewHTTPChannel(a.cfg.Gateway, a.registry, logger.Component(a.log, "http"))
	if err := ch.Start(ctx, a.chat.Handle); err != nil {
		return err
	}

	a.log.Info("switchboard serving",
		"addr", ch.Addr(),
		"provider", a.cfg.LLM.DefaultProvider,
		"agents", a.agents,
		"history", a.cfg.History.Backend,
		"documents", a.documents != nil,
	)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return ch.Stop(shutdownCtx)
}

func runChat(ctx context.Context, a *app, args []string) error {
	session, _ := flagValue(args, "--session")
	if session == "" {
		session = "cli-" + time.Now().Format("20060102-150405")
	}

	ch := channel.NewCLIChannel(os.Stdin, os.Stdout, logger.Component(a.log, "cli"),
		channel.WithSession(session),
		channel.WithUser(a.cfg.Documents.UserID),
	)
	handler := func(ctx context.Context, msg domain.InboundMessage) (domain.OutboundMessage, error) {
		out, err := a.chat.Handle(ctx, msg)
		if err == nil && out.Agent != "" {
			out.Content = fmt.Sprintf("[%s] %s", out.Agent, out.Content)
		}
		return out, err
	}
	if err := ch.Start(ctx, handler); err != nil {
		return err
	}

	select {
	case <-ch.Done():
	case <-ctx.Done():
	}
	return ch.Stop(context.Background())
}

func printAgents(a *app, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, info := range a.registry.List() {
		fmt.Fprintf(tw, "%s\t%s\n", info.Name, info.Description)
	}
	return tw.Flush()
}

// configPath returns --config from args, then $SWITCHBOARD_CONFIG, then
// ./config.yaml.
func configPath(args []string) string {
	if p, _ := flagValue(args, "--config"); p != "" {
		return p
	}
	if p := os.Getenv("SWITCHBOARD_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// flagValue extracts "--name value" or "--name=value" from args and returns
// it with the remaining arguments.
func flagValue(args []string, name string) (string, []string) {
	var value string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == name && i+1 < len(args):
			value = args[i+1]
			i++
		case strings.HasPrefix(args[i], name+"="):
			value = strings.TrimPrefix(args[i], name+"=")
		default:
			rest = append(rest, args[i])
		}
	}
	return value, rest
}

func stripGlobalFlags(args []string) []string {
	_, rest := flagValue(args, "--config")
	return rest
}
