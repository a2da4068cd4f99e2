package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"qsoul/internal/config"
	"qsoul/internal/logging"
	"qsoul/pkg/qsoul"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

type globalOptions struct {
	configPath   string
	store        string
	dbPath       string
	artifactsDir string
	exportDir    string
	logLevel     string
	logFormat    string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "qsoulctl",
		Short:         "Feedback-modulated stochastic parameter search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.StringVar(&opts.store, "store", "", "store backend: memory|sqlite")
	flags.StringVar(&opts.dbPath, "db-path", "", "sqlite database path")
	flags.StringVar(&opts.artifactsDir, "artifacts-dir", "runs", "directory holding run artifacts and the run index")
	flags.StringVar(&opts.exportDir, "export-dir", "", "directory exports are written to")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: auto|text|json")

	root.AddCommand(
		newRunCmd(opts),
		newRunsCmd(opts),
		newBestCmd(opts),
		newHistoryCmd(opts),
		newDreamLogCmd(opts),
		newExportCmd(opts),
		newResetCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// loadConfig layers changed persistent flags over the file and environment.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (config.RunConfig, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.RunConfig{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store = opts.store
	}
	if flags.Changed("db-path") {
		cfg.DBPath = opts.dbPath
	}
	if flags.Changed("export-dir") {
		cfg.ExportDir = opts.exportDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.RunConfig) (*logrus.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Out:    cmd.ErrOrStderr(),
	})
}

func newClient(cfg config.RunConfig, opts *globalOptions, logger logrus.FieldLogger, reg prometheus.Registerer, tracer trace.Tracer) (*qsoul.Client, error) {
	return qsoul.New(qsoul.Options{
		StoreKind:    cfg.Store,
		DBPath:       cfg.DBPath,
		ArtifactsDir: opts.artifactsDir,
		ExportsDir:   cfg.ExportDir,
		Logger:       logger,
		Registerer:   reg,
		Tracer:       tracer,
	})
}

// openClient is the shared setup of the read-only commands.
func openClient(cmd *cobra.Command, opts *globalOptions) (*qsoul.Client, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, opts, logger, nil, nil)
}
