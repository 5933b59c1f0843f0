package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"wa-resolver/internal/adapter/annotation"
	"wa-resolver/internal/adapter/sink"
	"wa-resolver/internal/adapter/viewer"
	"wa-resolver/internal/domain"
	"wa-resolver/internal/infra/config"
	"wa-resolver/internal/infra/logger"
	"wa-resolver/internal/infra/tracer"
	"wa-resolver/internal/plugin"
	"wa-resolver/internal/usecase/eventbus"
	"wa-resolver/internal/usecase/resolver"
)

func main() {
	args := os.Args[1:]

	// Handle help flag first
	if len(args) >= 1 {
		switch args[0] {
		case "--help", "-h", "help":
			showUsage(os.Stdout)
			return
		}
	}

	cmd, args := splitCommand(args)
	switch cmd {
	case "resolve":
		if err := run(args); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	case "derive":
		if err := runDerive(args, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "derive: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'wa-resolver --help' for usage information.\n", cmd)
		os.Exit(1)
	}
}

// splitCommand strips a leading subcommand name. Anything else, including
// canvas ids without a scheme separator, is left for resolve.
func splitCommand(args []string) (string, []string) {
	if len(args) >= 1 {
		switch args[0] {
		case "resolve", "derive":
			return args[0], args[1:]
		}
	}
	return "resolve", args
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, `wa-resolver - Web Annotation resolver for IIIF canvases

USAGE:
    wa-resolver [COMMAND] [FLAGS] [CANVAS_ID...]

COMMANDS:
    resolve     Fetch the annotation page of every canvas (default)
    derive      Print the annotation endpoint derived from each canvas id

    (no command) - Same as resolve

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml (optional)
    Environment: WA_* variables override config
    Canvas ids given as arguments replace viewer.canvases from config

EXAMPLES:
    wa-resolver https://example.org/iiif3/book1/canvas/p1
    wa-resolver --config viewer.yaml
    wa-resolver derive https://example.org/iiif/book1/canvas/p1`)
}

// parseArgs splits --config from positional canvas ids. Any other flag is an
// error.
func parseArgs(args []string) (cfgPath string, ids []string, err error) {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			cfgPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			cfgPath = strings.TrimPrefix(args[i], "--config=")
		case args[i] == "--config":
			return "", nil, fmt.Errorf("flag needs an argument: --config")
		case strings.HasPrefix(args[i], "-"):
			return "", nil, fmt.Errorf("unknown flag: %s", args[i])
		default:
			ids = append(ids, args[i])
		}
	}
	if cfgPath == "" {
		cfgPath = os.Getenv("WA_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	return cfgPath, ids, nil
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runResolve(ctx, args, os.Stdout)
}

// runResolve mounts the web annotations plugin on a viewer window showing the
// configured canvases and waits until every fetch has settled or ctx ends.
func runResolve(ctx context.Context, args []string, stdout io.Writer) error {
	// 1. Config
	cfgPath, ids, err := parseArgs(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(ids) > 0 {
		cfg.Viewer.Canvases = ids
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.WithoutCancel(ctx))

	// 3. Event bus & viewer state
	bus := eventbus.New(logger.Component(log, "eventbus"))
	defer bus.Close()
	state := viewer.NewState(bus)

	var received, failed atomic.Int64
	bus.Subscribe(domain.EventAnnotationReceived, func(context.Context, domain.Event) { received.Add(1) })
	bus.Subscribe(domain.EventAnnotationFailed, func(context.Context, domain.Event) { failed.Add(1) })

	// 4. Sink
	lister, primary, sinkCloser, err := buildSink(cfg.Sink, stdout)
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	defer sinkCloser()
	sinkLog := logger.Component(log, "sink")
	snk := sink.NewRouter(sinkLog, primary, sink.NewCallback(
		func(_ context.Context, canvasID, endpointURL string, page domain.AnnotationPage) error {
			sinkLog.Debug("annotation page delivered", "canvas", canvasID, "url", endpointURL, "items", len(page.Items))
			return nil
		}))
	defer snk.Close()

	// 5. Resolver
	client, err := annotation.NewFromConfig(cfg.Fetch, logger.Component(log, "annotation"))
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	res, err := resolver.New(resolver.Config{
		WindowID: cfg.Viewer.WindowID,
		Reader:   state,
		Sink:     snk,
		Fetcher:  client,
		Bus:      bus,
		Logger:   logger.Component(log, "resolver"),
	})
	if err != nil {
		return fmt.Errorf("resolver: %w", err)
	}

	// 6. Plugin
	mgr := plugin.NewManager(logger.Component(log, "plugin"))
	if err := mgr.Load(plugin.NewWebAnnotations(cfg.Viewer.WindowID, res, bus, log)); err != nil {
		return fmt.Errorf("plugin: %w", err)
	}
	for _, m := range mgr.List() {
		log.Debug("plugin ready", "name", m.Name, "target", m.Target)
	}
	controls := domain.ViewFunc(func(_ context.Context, props domain.Props) error {
		log.Debug("navigation controls rendered", "window", props["windowId"])
		return nil
	})
	view, comps := mgr.Attach(plugin.WebAnnotationsTarget, controls)

	// 7. Show the window and mount
	state.SetVisible(ctx, cfg.Viewer.WindowID, viewer.CanvasesFromIDs(cfg.Viewer.Canvases))
	for _, c := range comps {
		if err := c.Mount(ctx); err != nil {
			return fmt.Errorf("mount: %w", err)
		}
	}
	if err := view.Render(ctx, domain.Props{"windowId": cfg.Viewer.WindowID}); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	done := make(chan struct{})
	go func() {
		res.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("interrupted, abandoning in-flight fetches")
	}

	for _, c := range comps {
		c.Unmount(context.WithoutCancel(ctx))
	}
	if err := mgr.Unload(plugin.WebAnnotationsName); err != nil {
		log.Warn("plugin unload failed", "error", err)
	}
	bus.Drain()

	log.Info("resolve finished",
		"window", cfg.Viewer.WindowID,
		"canvases", len(cfg.Viewer.Canvases),
		"received", received.Load(),
		"failed", failed.Load(),
	)

	if lister != nil {
		entries, err := lister.Entries(context.WithoutCancel(ctx))
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("print: %w", err)
		}
	}
	return nil
}

// buildSink returns the configured primary sink. lister is non-nil for the
// memory and sqlite sinks, whose entries are printed once resolving ends. The
// sqlite sink is closed through the router.
func buildSink(cfg config.SinkConfig, stdout io.Writer) (sink.Lister, sink.Sink, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Type {
	case "memory":
		store := sink.NewStore()
		return store, store, noop, nil
	case "sqlite":
		db, err := sink.NewSQLite(cfg.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, db, noop, nil
	default:
		if cfg.Output == "" || strings.EqualFold(cfg.Output, "stdout") {
			return nil, sink.NewStdout(stdout), noop, nil
		}
		w, closer, err := logger.OpenOutput(cfg.Output)
		if err != nil {
			return nil, nil, nil, err
		}
		return nil, sink.NewStdout(w), closer, nil
	}
}

// runDerive prints "<canvas id>\t<endpoint url>" per id. Ids that cannot be
// turned into a URL are reported and make the command fail.
func runDerive(args []string, stdout io.Writer) error {
	_, ids, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("at least one canvas id is required")
	}

	var failed int
	for _, id := range ids {
		endpoint, err := resolver.DeriveEndpoint(id)
		if err != nil {
			slog.Warn("derive failed", "canvas", id, "code", domain.ErrorCodeOf(err), "error", err)
			failed++
			continue
		}
		fmt.Fprintf(stdout, "%s\t%s\n", id, endpoint)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d canvas ids could not be derived", failed, len(ids))
	}
	return nil
}
