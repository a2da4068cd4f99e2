package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"qsoul/internal/evo"
	"qsoul/internal/model"
	"qsoul/internal/telemetry"
	"qsoul/pkg/qsoul"
)

type runOptions struct {
	runID        string
	seed         int64
	intensity    float64
	maxSteps     int
	patience     int
	learningRate float64
	mutationRate float64
	light        float64
	paramCount   int
	genes        int
	evaluator    string
	qubits       int
	reps         int
	noise        float64
	otelEndpoint string
	quiet        bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one search and persist its outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, global, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.runID, "run-id", "", "explicit run id")
	flags.Int64Var(&opts.seed, "seed", 0, "random seed (0 draws one from the clock)")
	flags.Float64Var(&opts.intensity, "intensity", 0, "modulator intensity")
	flags.IntVar(&opts.maxSteps, "max-steps", 0, "step budget")
	flags.IntVar(&opts.patience, "patience", 0, "steps without improvement before halting")
	flags.Float64Var(&opts.learningRate, "learning-rate", 0, "base learning rate")
	flags.Float64Var(&opts.mutationRate, "mutation-rate", 0, "base mutation rate")
	flags.Float64Var(&opts.light, "light", 0, "ambient light fed to the resource signal")
	flags.IntVar(&opts.paramCount, "params", 0, "initial parameter count for evaluators without a fixed arity")
	flags.IntVar(&opts.genes, "genes", 0, "gene count")
	flags.StringVar(&opts.evaluator, "evaluator", "", "energy evaluator: ansatz|quadratic")
	flags.IntVar(&opts.qubits, "qubits", 0, "ansatz qubits")
	flags.IntVar(&opts.reps, "reps", 0, "ansatz repetitions")
	flags.Float64Var(&opts.noise, "noise", 0, "energy noise standard deviation")
	flags.StringVar(&opts.otelEndpoint, "otel-endpoint", "", "OTLP/HTTP trace endpoint")
	flags.BoolVar(&opts.quiet, "quiet", false, "do not print per-step lines")
	return cmd
}

func runSearch(cmd *cobra.Command, global *globalOptions, opts *runOptions) error {
	cfg, err := loadConfig(cmd, global)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("run-id") {
		cfg.RunID = opts.runID
	}
	if flags.Changed("seed") {
		cfg.Seed = opts.seed
	}
	if flags.Changed("intensity") {
		cfg.Intensity = opts.intensity
	}
	if flags.Changed("max-steps") {
		cfg.MaxSteps = opts.maxSteps
	}
	if flags.Changed("patience") {
		cfg.Patience = opts.patience
	}
	if flags.Changed("learning-rate") {
		cfg.BaseLearningRate = opts.learningRate
	}
	if flags.Changed("mutation-rate") {
		cfg.BaseMutationRate = opts.mutationRate
	}
	if flags.Changed("light") {
		cfg.Light = opts.light
	}
	if flags.Changed("params") {
		cfg.ParamCount = opts.paramCount
	}
	if flags.Changed("genes") {
		cfg.Genes = opts.genes
	}
	if flags.Changed("evaluator") {
		cfg.Evaluator = opts.evaluator
	}
	if flags.Changed("qubits") {
		cfg.Qubits = opts.qubits
	}
	if flags.Changed("reps") {
		cfg.Reps = opts.reps
	}
	if flags.Changed("noise") {
		cfg.Noise = opts.noise
	}
	if flags.Changed("otel-endpoint") {
		cfg.OTelEndpoint = opts.otelEndpoint
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	shutdown, err := telemetry.SetupTracing(ctx, "qsoulctl", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	var tracer trace.Tracer
	if cfg.OTelEndpoint != "" {
		tracer = otel.Tracer("qsoulctl")
	}
	client, err := newClient(cfg, global, logger, nil, tracer)
	if err != nil {
		return err
	}
	defer client.Close()

	out := cmd.OutOrStdout()
	req := qsoul.RunRequestFromConfig(cfg)
	if !opts.quiet {
		req.Observers = []evo.Observer{stepPrinter{out: out}}
	}

	summary, err := client.Run(ctx, req)
	if err != nil && summary.RunID == "" {
		return err
	}
	printRunSummary(out, summary)
	return err
}

type stepPrinter struct {
	out io.Writer
}

func (p stepPrinter) OnStep(record model.StepRecord) {
	applied := ""
	if record.Mutation != model.MutationNone && !record.Applied {
		applied = " (gate closed)"
	}
	fmt.Fprintf(p.out, "step=%d energy=%.6f vibe=%.4f mutation=%s%s params=%d\n",
		record.Step, record.Energy, record.VibeMagnitude, record.Mutation, applied, len(record.Params))
}

func (p stepPrinter) OnHalt(evo.RunResult) {}

func printRunSummary(out io.Writer, summary qsoul.RunSummary) {
	fmt.Fprintf(out, "run_id=%s state=%s steps=%s\n", summary.RunID, summary.State, humanize.Comma(int64(summary.StepsRun)))
	if summary.Best != nil {
		fmt.Fprintf(out, "best_step=%d best_energy=%.6f improvement=%.6f\n",
			summary.Best.Step, summary.Best.Energy, summary.Summary.Improvement)
	}
	fmt.Fprintf(out, "vibe_magnitude=%.6f intensity=%.3f\n", summary.Modulator.Magnitude, summary.Modulator.Intensity)
	if summary.ArtifactsDir != "" {
		fmt.Fprintf(out, "artifacts=%s\n", summary.ArtifactsDir)
	}
}
