package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"scenetuner/internal/adapter/tui/uxerror"
	"scenetuner/internal/infra/config"
	"scenetuner/internal/infra/logger"
	"scenetuner/internal/infra/tracer"
	"scenetuner/internal/usecase/workspace"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	args := stripConfigFlag(os.Args[1:])
	if len(args) == 0 {
		showUsage(os.Stdout)
		return
	}
	switch args[0] {
	case "--help", "-h", "help":
		showUsage(os.Stdout)
		return
	case "doctor":
		if err := runDoctor(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
		return
	}

	a, cleanup, err := bootstrap(os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	err = a.dispatch(args)
	cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", args[0], uxerror.Humanize(err).Render())
		os.Exit(1)
	}
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	out    io.Writer
	errOut io.Writer
}

func bootstrap(out, errOut io.Writer) (*app, func(), error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, nil, fmt.Errorf("tracer: %w", err)
	}

	cleanup := func() {
		if err := tracerShutdown(ctx); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
		logCloser()
	}
	return &app{cfg: cfg, log: log, out: out, errOut: errOut}, cleanup, nil
}

func (a *app) dispatch(args []string) error {
	rest := args[1:]
	switch args[0] {
	case "inspect":
		return a.runInspect(rest)
	case "validate":
		return a.runValidate(rest)
	case "set":
		return a.runSet(rest)
	case "preset":
		return a.runPreset(rest)
	case "export":
		return a.runExport(rest)
	case "import":
		return a.runImport(rest)
	case "run":
		return a.runRender(rest)
	case "history":
		return a.runHistory(rest)
	case "console":
		return a.runConsole(rest)
	default:
		return fmt.Errorf("unknown command %q; run 'scenetuner --help' for usage", args[0])
	}
}

// openWorkspace opens a script without the run journal unless the command
// renders.
func (a *app) openWorkspace(path string, journal bool) (*workspace.Workspace, error) {
	var opts []workspace.Option
	if !journal {
		opts = append(opts, workspace.WithoutJournal())
	}
	return workspace.Open(context.Background(), path, a.cfg, a.log, opts...)
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, `scenetuner - live parameter tuning for manimgl scenes

USAGE:
    scenetuner [--config PATH] <COMMAND> [ARGS]

COMMANDS:
    inspect <script>                      List parameters by category and the scenes
    validate <script>                     Check every parameter declares its metadata
    set <script> name=value...            Change values and patch the script (one undo step)
    preset save|load|delete <script> <name>
    preset list <script>                  Manage named presets stored next to the script
    export <script> <file>                Write current values to a JSON file
    import <script> <file>                Apply values from an exported file
    run <script> [--scene S] [--quality low|medium|high] [--mode auto-play|preview-loop|save-only]
                                          Render in the foreground; Ctrl-C stops the renderer
    history [--limit N]                   Show journaled renders, newest first
    console <script>                      Interactive terminal editor with live rendering
    doctor                                Check the renderer, config and run log

CONFIGURATION:
    Config file: ~/.scenetuner/config.yaml (override with --config or SCENETUNER_CONFIG)
    Environment: SCENETUNER_* variables override the file; .env is loaded if present`)
}

// configPath honors --config, then SCENETUNER_CONFIG, then the default.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("SCENETUNER_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath()
}

// stripConfigFlag removes --config and its value from args.
func stripConfigFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			i++
		case strings.HasPrefix(args[i], "--config="):
		default:
			out = append(out, args[i])
		}
	}
	return out
}
