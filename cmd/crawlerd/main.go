// Command crawlerd is the browser crawl engine. Subcommands:
//
//	worker  consume tasks from the queue and execute them
//	serve   run the HTTP submission API
//	submit  push a task JSON file onto the queue
//	run     execute one task locally and print the report
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/crawlerd/crawlerd/pkg/api"
	"github.com/crawlerd/crawlerd/pkg/artifact"
	"github.com/crawlerd/crawlerd/pkg/browser"
	"github.com/crawlerd/crawlerd/pkg/browser/adapters/chrome"
	"github.com/crawlerd/crawlerd/pkg/config"
	"github.com/crawlerd/crawlerd/pkg/logging"
	"github.com/crawlerd/crawlerd/pkg/queue"
	"github.com/crawlerd/crawlerd/pkg/runner"
	"github.com/crawlerd/crawlerd/pkg/secrets"
	"github.com/crawlerd/crawlerd/pkg/task"
	"github.com/crawlerd/crawlerd/pkg/telemetry"
	"github.com/crawlerd/crawlerd/pkg/worker"
)

// Version information set via ldflags during build.
var (
	version = "1.0.0-dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "worker":
		err = cmdWorker(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	case "submit":
		err = cmdSubmit(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("crawlerd %s (%s)\n", version, commit)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: crawlerd <command> [flags]

Commands:
  worker   consume tasks from the queue and execute them
  serve    run the HTTP submission API
  submit   push a task JSON file onto the queue
  run      execute one task locally and print the report
  version  print the build version

Run 'crawlerd <command> -h' for command flags.
`)
}

func cmdWorker(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config YAML")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewTracerProvider("crawlerd", version)
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	bus, err := connectBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	provider, err := buildSecrets(ctx, cfg, logger)
	if err != nil {
		return err
	}

	runtime := chrome.NewRuntime(chrome.Options{
		ExecPath:  cfg.Browser.ExecPath,
		Headful:   cfg.Browser.Headful,
		NoSandbox: cfg.Browser.NoSandbox,
	})
	defer runtime.Close()

	r := runner.New(runner.Options{
		Browser:            browser.NewManager(runtime),
		Secrets:            provider,
		Artifacts:          store,
		Logger:             logger,
		ContinueOnReadOnly: cfg.Worker.ContinueOnReadOnly,
		BackfillSkipped:    cfg.Worker.BackfillSkipped,
		PersistReports:     cfg.Worker.PersistReports,
	})

	w := worker.New(worker.Options{
		Bus:               bus,
		Runner:            r,
		Logger:            logger,
		QueueName:         cfg.Queue.Name,
		ResultSubject:     cfg.Queue.ResultSubject,
		DeadLetterSubject: cfg.Queue.DeadLetterSubject,
		Concurrency:       cfg.Worker.Concurrency,
	})
	return w.Run(ctx)
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config YAML")
	address := fs.String("address", "", "listen address (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *address != "" {
		cfg.API.Address = *address
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	bus, err := connectBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	server := api.NewServer(api.Options{
		Address:   cfg.API.Address,
		Bus:       bus,
		Logger:    logger,
		QueueName: cfg.Queue.Name,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return server.Shutdown(context.Background())
	}
}

func cmdSubmit(args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config YAML")
	file := fs.String("file", "-", "task JSON file, or - for stdin")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	t, err := readTask(*file)
	if err != nil {
		return err
	}

	bus, err := connectBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := bus.Queue(cfg.Queue.Name).Push(context.Background(), payload); err != nil {
		return err
	}
	fmt.Printf("submitted %s\n", t.TaskID)
	return nil
}

// cmdRun executes one task in-process with local artifacts, bypassing the
// queue entirely. The report goes to stdout; a failure report is not an
// error exit, an engine fault is.
func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config YAML")
	file := fs.String("file", "-", "task JSON file, or - for stdin")
	artifactDir := fs.String("artifacts", "artifacts", "directory for screenshots and reports")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	t, err := readTask(*file)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr)
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := buildSecrets(ctx, cfg, logger)
	if err != nil {
		return err
	}

	runtime := chrome.NewRuntime(chrome.Options{
		ExecPath:  cfg.Browser.ExecPath,
		Headful:   cfg.Browser.Headful,
		NoSandbox: cfg.Browser.NoSandbox,
	})
	defer runtime.Close()

	r := runner.New(runner.Options{
		Browser:            browser.NewManager(runtime),
		Secrets:            provider,
		Artifacts:          artifact.NewLocalStore(*artifactDir),
		Logger:             logger,
		ContinueOnReadOnly: cfg.Worker.ContinueOnReadOnly,
		BackfillSkipped:    cfg.Worker.BackfillSkipped,
		PersistReports:     cfg.Worker.PersistReports,
	})

	report, err := r.Run(ctx, t)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readTask(path string) (*task.Task, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading task: %w", err)
	}
	return task.Decode(raw)
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	var logger *logging.Logger
	var err error
	if cfg.Logging.Dir != "" {
		logger, err = logging.NewFileLogger(cfg.Logging.Dir)
		if err != nil {
			return nil, err
		}
	} else {
		logger = logging.New(os.Stderr)
	}
	logger.SetMinLevel(logging.Level(cfg.Logging.Level))
	return logger, nil
}

func connectBus(cfg *config.Config) (queue.Bus, error) {
	return queue.NewNATSBus(queue.Config{
		URL:        cfg.Queue.URL,
		Name:       "crawlerd",
		AckWait:    cfg.Queue.AckWait.Std(),
		MaxDeliver: cfg.Queue.MaxDeliver,
	})
}

func buildStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (artifact.Store, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return artifact.NewS3Store(ctx, cfg.Storage.Bucket, cfg.Storage.Region, logger)
	case "local":
		return artifact.NewLocalStore(cfg.Storage.Dir), nil
	default:
		return nil, errors.New("unknown storage backend " + cfg.Storage.Backend)
	}
}

func buildSecrets(ctx context.Context, cfg *config.Config, logger *logging.Logger) (secrets.Provider, error) {
	switch cfg.Secrets.Backend {
	case "aws":
		provider, err := secrets.NewAWSProvider(ctx, cfg.Secrets.Region, cfg.Secrets.DefaultRef, logger)
		if err != nil {
			return nil, err
		}
		return secrets.NewCache(provider), nil
	case "none":
		return secrets.NewStatic(nil), nil
	default:
		return nil, errors.New("unknown secrets backend " + cfg.Secrets.Backend)
	}
}
