package qsoul

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"qsoul/internal/config"
	"qsoul/internal/evo"
	"qsoul/internal/logging"
	"qsoul/internal/model"
	"qsoul/internal/signals"
	"qsoul/internal/stats"
	"qsoul/internal/storage"
	"qsoul/internal/telemetry"
	"qsoul/internal/vibe"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "qsoul.db"
	defaultParamCount   = 8
	defaultGenes        = 3
	defaultRunsLimit    = 20
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Logger       logrus.FieldLogger
	// Registerer receives the search metrics; nil disables them.
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
	Now        func() time.Time
}

type Client struct {
	store   storage.Store
	metrics *telemetry.Metrics
	logger  logrus.FieldLogger
	tracer  trace.Tracer
	now     func() time.Time

	artifactsDir string
	exportsDir   string
	initialized  bool
}

// RunRequest describes one search run. Zero numeric fields other than Genes,
// Noise and Seed take the package defaults; a zero Seed is drawn from the
// clock. Energies, when set, replaces the named evaluator with a replay of the
// given values.
type RunRequest struct {
	RunID            string
	Seed             int64
	Intensity        float64
	MaxSteps         int
	Patience         int
	BaseLearningRate float64
	BaseMutationRate float64
	Light            float64
	ParamCount       int
	Genes            int
	Evaluator        string
	Qubits           int
	Reps             int
	Noise            float64
	Energies         []float64
	Observers        []evo.Observer
}

type RunSummary struct {
	RunID         string
	State         model.RunState
	StepsRun      int
	Best          *model.BestRecord
	EnergyHistory []float64
	VibeTrace     []float64
	Summary       stats.Summary
	Modulator     model.ModulatorState
	ArtifactsDir  string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string         `json:"run_id"`
	CreatedAtUTC string         `json:"created_at_utc"`
	Evaluator    string         `json:"evaluator"`
	Seed         int64          `json:"seed"`
	MaxSteps     int            `json:"max_steps"`
	State        model.RunState `json:"state"`
	StepsRun     int            `json:"steps_run"`
	BestStep     int            `json:"best_step"`
	BestEnergy   float64        `json:"best_energy"`
}

// RunRef names a run either by id or as the most recent one.
type RunRef struct {
	RunID  string
	Latest bool
}

type HistoryRequest struct {
	RunRef
	Limit int
}

type DreamLogRequest struct {
	RunRef
	Limit int
}

type ExportRequest struct {
	RunRef
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	var metrics *telemetry.Metrics
	if opts.Registerer != nil {
		metrics, err = telemetry.NewMetrics(opts.Registerer)
		if err != nil {
			_ = storage.CloseIfSupported(store)
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return &Client{
		store:        store,
		metrics:      metrics,
		logger:       logger,
		tracer:       opts.Tracer,
		now:          now,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

// RunRequestFromConfig maps loaded settings onto a run request.
func RunRequestFromConfig(cfg config.RunConfig) RunRequest {
	return RunRequest{
		RunID:            cfg.RunID,
		Seed:             cfg.Seed,
		Intensity:        cfg.Intensity,
		MaxSteps:         cfg.MaxSteps,
		Patience:         cfg.Patience,
		BaseLearningRate: cfg.BaseLearningRate,
		BaseMutationRate: cfg.BaseMutationRate,
		Light:            cfg.Light,
		ParamCount:       cfg.ParamCount,
		Genes:            cfg.Genes,
		Evaluator:        cfg.Evaluator,
		Qubits:           cfg.Qubits,
		Reps:             cfg.Reps,
		Noise:            cfg.Noise,
	}
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Run executes one search and persists its outputs. A cancelled run is still
// persisted with state aborted; the cancellation error is returned alongside
// the summary.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	applyRunDefaults(&req)
	if req.Seed == 0 {
		req.Seed = c.now().UnixNano()
	}
	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = storage.NewRunID()
	}
	logger := c.logger.WithField("run_id", runID)

	rng := rand.New(rand.NewSource(req.Seed))
	evaluator, paramCount, err := c.buildEvaluator(req, rng, logger)
	if err != nil {
		return RunSummary{}, err
	}
	if paramCount <= 0 {
		paramCount = req.ParamCount
	}

	modulator, err := vibe.New(rng, req.Intensity)
	if err != nil {
		return RunSummary{}, err
	}
	controller, err := evo.NewStepController(evo.ControllerConfig{
		Modulator:        modulator,
		Rand:             rng,
		Fitness:          signals.Fitness,
		Resource:         signals.Glucose,
		BaseShake:        signals.BaseShake,
		BaseLearningRate: req.BaseLearningRate,
		BaseMutationRate: req.BaseMutationRate,
		Light:            req.Light,
	})
	if err != nil {
		return RunSummary{}, err
	}

	observers := append([]evo.Observer(nil), req.Observers...)
	if c.metrics != nil {
		observers = append(observers, c.metrics)
	}
	dreams := evo.NewMemoryDreamLog()
	loop, err := evo.NewSearchLoop(evo.SearchConfig{
		Evaluator:  evaluator,
		Controller: controller,
		MaxSteps:   req.MaxSteps,
		Patience:   req.Patience,
		DreamLog:   dreams,
		Observers:  observers,
		Logger:     logger,
		Tracer:     c.tracer,
	})
	if err != nil {
		return RunSummary{}, err
	}

	result, runErr := loop.Run(ctx, initialGenome(rng, paramCount, req.Genes))
	if runErr != nil && result.State != model.RunStateAborted {
		return RunSummary{}, runErr
	}

	// Persist with a fresh context so an aborted run still lands.
	persistCtx := context.WithoutCancel(ctx)
	now := c.now().UTC()
	artifacts := buildArtifacts(runID, req, paramCount, result, dreams.Events(), now)
	if err := c.persist(persistCtx, artifacts); err != nil {
		return RunSummary{}, err
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, artifacts)
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, indexEntry(artifacts)); err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:         runID,
		State:         result.State,
		StepsRun:      result.StepsRun,
		Best:          artifacts.Best,
		EnergyHistory: append([]float64(nil), result.EnergyHistory...),
		VibeTrace:     append([]float64(nil), result.VibeTrace...),
		Summary:       artifacts.Summary,
		Modulator:     result.Modulator,
		ArtifactsDir:  filepath.Clean(runDir),
	}
	return summary, runErr
}

// Runs lists stored and indexed runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}

	items, err := c.listRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) > req.Limit {
		items = items[:req.Limit]
	}
	return items, nil
}

// listRuns merges the store's runs with the on-disk run index. The store
// wins when both hold a run.
func (c *Client) listRuns(ctx context.Context) ([]RunItem, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}

	items := make([]RunItem, 0, len(runs)+len(entries))
	seen := make(map[string]struct{}, len(runs))
	for _, run := range runs {
		seen[run.ID] = struct{}{}
		items = append(items, RunItem{
			RunID:        run.ID,
			CreatedAtUTC: run.CreatedAtUTC,
			Evaluator:    run.Evaluator,
			Seed:         run.Seed,
			MaxSteps:     run.MaxSteps,
			State:        run.State,
			StepsRun:     run.StepsRun,
			BestStep:     run.BestStep,
			BestEnergy:   run.BestEnergy,
		})
	}
	for _, e := range entries {
		if _, ok := seen[e.RunID]; ok {
			continue
		}
		items = append(items, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Evaluator:    e.Evaluator,
			Seed:         e.Seed,
			MaxSteps:     e.MaxSteps,
			State:        e.State,
			StepsRun:     e.StepsRun,
			BestStep:     e.BestStep,
			BestEnergy:   e.BestEnergy,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return model.CompareTimestamps(items[i].CreatedAtUTC, items[j].CreatedAtUTC) > 0
	})
	return items, nil
}

// GetRun returns the persisted run header.
func (c *Client) GetRun(ctx context.Context, ref RunRef) (model.RunRecord, error) {
	runID, err := c.resolveRunID(ctx, ref)
	if err != nil {
		return model.RunRecord{}, err
	}
	if err := c.Init(ctx); err != nil {
		return model.RunRecord{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if ok {
		return run, nil
	}
	artifacts, err := c.loadArtifacts(runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	return runRecord(artifacts), nil
}

func (c *Client) Best(ctx context.Context, ref RunRef) (model.BestRecord, error) {
	runID, err := c.resolveRunID(ctx, ref)
	if err != nil {
		return model.BestRecord{}, err
	}
	if err := c.Init(ctx); err != nil {
		return model.BestRecord{}, err
	}
	best, ok, err := c.store.GetBest(ctx, runID)
	if err != nil {
		return model.BestRecord{}, err
	}
	if ok {
		return best, nil
	}
	artifacts, err := c.loadArtifacts(runID)
	if err != nil {
		return model.BestRecord{}, err
	}
	if artifacts.Best == nil {
		return model.BestRecord{}, fmt.Errorf("%w: no best record for run id: %s", ErrRunNotFound, runID)
	}
	return artifacts.Best.Clone(), nil
}

func (c *Client) EnergyHistory(ctx context.Context, req HistoryRequest) ([]float64, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunRef)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetEnergyHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		artifacts, err := c.loadArtifacts(runID)
		if err != nil {
			return nil, err
		}
		history = artifacts.EnergyHistory
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) DreamLog(ctx context.Context, req DreamLogRequest) ([]model.DreamEvent, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunRef)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	events, ok, err := c.store.GetDreamLog(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		artifacts, err := c.loadArtifacts(runID)
		if err != nil {
			return nil, err
		}
		events = artifacts.DreamLog
	}
	if req.Limit > 0 && len(events) > req.Limit {
		events = events[:req.Limit]
	}
	return events, nil
}

// Export writes run.json and energy.csv for a run into
// <out dir>/<run id>_<YYYYMMDD>.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	runID, err := c.resolveRunID(ctx, req.RunRef)
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	artifacts, ok, err := stats.ReadRunArtifacts(c.artifactsDir, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		artifacts, err = c.artifactsFromStore(ctx, runID)
		if err != nil {
			return ExportSummary{}, err
		}
	}

	dir, err := stats.ExportRun(req.OutDir, artifacts, c.now())
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

// Reset drops every stored run and the on-disk run index.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	if err := c.store.Reset(ctx); err != nil {
		return err
	}
	return stats.ClearRunIndex(c.artifactsDir)
}

// DeleteRun removes one run from the store and from the artifacts directory.
func (c *Client) DeleteRun(ctx context.Context, ref RunRef) (string, error) {
	runID, err := c.resolveRunID(ctx, ref)
	if err != nil {
		return "", err
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	_, stored, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if stored {
		if err := c.store.DeleteRun(ctx, runID); err != nil {
			return "", err
		}
	}
	indexed, err := stats.RemoveRun(c.artifactsDir, runID)
	if err != nil {
		return "", err
	}
	if !stored && !indexed {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return runID, nil
}

func (c *Client) resolveRunID(ctx context.Context, ref RunRef) (string, error) {
	if ref.RunID != "" && ref.Latest {
		return "", errors.New("use either run id or latest")
	}
	if !ref.Latest {
		if strings.TrimSpace(ref.RunID) == "" {
			return "", errors.New("run id or latest is required")
		}
		return ref.RunID, nil
	}
	items, err := c.listRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", fmt.Errorf("%w: no runs available", ErrRunNotFound)
	}
	return items[0].RunID, nil
}

func (c *Client) buildEvaluator(req RunRequest, rng *rand.Rand, logger logrus.FieldLogger) (evo.Evaluator, int, error) {
	if len(req.Energies) > 0 {
		seq, err := signals.NewSequence(req.Energies...)
		return seq, 0, err
	}
	return signals.NewEvaluator(signals.EvaluatorOptions{
		Kind:   req.Evaluator,
		Qubits: req.Qubits,
		Reps:   req.Reps,
		Noise:  req.Noise,
		Rand:   rng,
		Logger: logger,
	})
}

func (c *Client) persist(ctx context.Context, artifacts stats.RunArtifacts) error {
	runID := artifacts.Config.RunID
	if err := c.store.SaveRun(ctx, runRecord(artifacts)); err != nil {
		return fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := c.store.SaveEnergyHistory(ctx, runID, artifacts.EnergyHistory); err != nil {
		return fmt.Errorf("save energy history %s: %w", runID, err)
	}
	if err := c.store.SaveVibeTrace(ctx, runID, artifacts.VibeTrace); err != nil {
		return fmt.Errorf("save vibe trace %s: %w", runID, err)
	}
	if err := c.store.SaveSteps(ctx, runID, artifacts.Steps); err != nil {
		return fmt.Errorf("save steps %s: %w", runID, err)
	}
	if err := c.store.SaveDreamLog(ctx, runID, artifacts.DreamLog); err != nil {
		return fmt.Errorf("save dream log %s: %w", runID, err)
	}
	if artifacts.Best != nil {
		if err := c.store.SaveBest(ctx, runID, *artifacts.Best); err != nil {
			return fmt.Errorf("save best %s: %w", runID, err)
		}
	}
	return nil
}

func (c *Client) loadArtifacts(runID string) (stats.RunArtifacts, error) {
	artifacts, ok, err := stats.ReadRunArtifacts(c.artifactsDir, runID)
	if err != nil {
		return stats.RunArtifacts{}, err
	}
	if !ok {
		return stats.RunArtifacts{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return artifacts, nil
}

func (c *Client) artifactsFromStore(ctx context.Context, runID string) (stats.RunArtifacts, error) {
	if err := c.Init(ctx); err != nil {
		return stats.RunArtifacts{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return stats.RunArtifacts{}, err
	}
	if !ok {
		return stats.RunArtifacts{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	history, _, err := c.store.GetEnergyHistory(ctx, runID)
	if err != nil {
		return stats.RunArtifacts{}, err
	}
	trace, _, err := c.store.GetVibeTrace(ctx, runID)
	if err != nil {
		return stats.RunArtifacts{}, err
	}
	steps, _, err := c.store.GetSteps(ctx, runID)
	if err != nil {
		return stats.RunArtifacts{}, err
	}
	dreams, _, err := c.store.GetDreamLog(ctx, runID)
	if err != nil {
		return stats.RunArtifacts{}, err
	}
	artifacts := stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:     run.ID,
			Seed:      run.Seed,
			Evaluator: run.Evaluator,
			Intensity: run.Intensity,
			MaxSteps:  run.MaxSteps,
			Patience:  run.Patience,
		},
		State:         run.State,
		StepsRun:      run.StepsRun,
		EnergyHistory: history,
		VibeTrace:     trace,
		Steps:         steps,
		DreamLog:      dreams,
		Summary:       stats.Summarize(history),
		CreatedAtUTC:  run.CreatedAtUTC,
	}
	best, ok, err := c.store.GetBest(ctx, runID)
	if err != nil {
		return stats.RunArtifacts{}, err
	}
	if ok {
		artifacts.Best = &best
	}
	return artifacts, nil
}

func applyRunDefaults(req *RunRequest) {
	if req.Intensity <= 0 {
		req.Intensity = vibe.DefaultIntensity
	}
	if req.MaxSteps <= 0 {
		req.MaxSteps = evo.DefaultMaxSteps
	}
	if req.Patience <= 0 {
		req.Patience = evo.DefaultPatience
	}
	if req.BaseLearningRate <= 0 {
		req.BaseLearningRate = evo.DefaultBaseLearningRate
	}
	if req.BaseMutationRate <= 0 {
		req.BaseMutationRate = evo.DefaultBaseMutationRate
	}
	if req.Light <= 0 {
		req.Light = evo.DefaultLight
	}
	if req.ParamCount <= 0 {
		req.ParamCount = defaultParamCount
	}
	if req.Genes < 0 {
		req.Genes = defaultGenes
	}
	if req.Evaluator == "" {
		req.Evaluator = signals.EvaluatorAnsatz
	}
	if req.Qubits <= 0 {
		req.Qubits = 4
	}
	if req.Reps <= 0 {
		req.Reps = 1
	}
}

// initialGenome draws params and thetas uniformly from [0, 1) and genes as
// fair coin flips.
func initialGenome(rng *rand.Rand, params, genes int) model.Genome {
	g := model.Genome{
		Params: make([]float64, params),
		Genes:  make([]int, genes),
		Thetas: make([]float64, genes),
	}
	for i := range g.Params {
		g.Params[i] = rng.Float64()
	}
	for i := range g.Genes {
		g.Genes[i] = rng.Intn(2)
		g.Thetas[i] = rng.Float64()
	}
	return g
}

func buildArtifacts(runID string, req RunRequest, paramCount int, result evo.RunResult, dreams []model.DreamEvent, now time.Time) stats.RunArtifacts {
	evaluator := req.Evaluator
	if len(req.Energies) > 0 {
		evaluator = "sequence"
	}
	artifacts := stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:            runID,
			Seed:             req.Seed,
			Evaluator:        evaluator,
			Intensity:        req.Intensity,
			MaxSteps:         req.MaxSteps,
			Patience:         req.Patience,
			BaseLearningRate: req.BaseLearningRate,
			BaseMutationRate: req.BaseMutationRate,
			Light:            req.Light,
			ParamCount:       paramCount,
			Genes:            req.Genes,
			Qubits:           req.Qubits,
			Reps:             req.Reps,
			Noise:            req.Noise,
		},
		State:         result.State,
		StepsRun:      result.StepsRun,
		EnergyHistory: result.EnergyHistory,
		VibeTrace:     result.VibeTrace,
		Steps:         result.Steps,
		DreamLog:      dreams,
		Summary:       stats.Summarize(result.EnergyHistory),
		CreatedAtUTC:  model.FormatTimestamp(now),
	}
	if result.Modulator.Intensity > 0 {
		state := result.Modulator
		artifacts.Modulator = &state
	}
	if result.Best.Step >= 0 {
		best := result.Best.Clone()
		best.VersionedRecord = storage.Versioned()
		artifacts.Best = &best
	}
	return artifacts
}

func runRecord(a stats.RunArtifacts) model.RunRecord {
	run := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              a.Config.RunID,
		Seed:            a.Config.Seed,
		Evaluator:       a.Config.Evaluator,
		Intensity:       a.Config.Intensity,
		MaxSteps:        a.Config.MaxSteps,
		Patience:        a.Config.Patience,
		State:           a.State,
		StepsRun:        a.StepsRun,
		BestStep:        -1,
		CreatedAtUTC:    a.CreatedAtUTC,
	}
	if a.Best != nil {
		run.BestStep = a.Best.Step
		run.BestEnergy = a.Best.Energy
	}
	return run
}

func indexEntry(a stats.RunArtifacts) stats.RunIndexEntry {
	run := runRecord(a)
	return stats.RunIndexEntry{
		RunID:        run.ID,
		Evaluator:    run.Evaluator,
		Seed:         run.Seed,
		MaxSteps:     run.MaxSteps,
		State:        run.State,
		StepsRun:     run.StepsRun,
		BestStep:     run.BestStep,
		BestEnergy:   run.BestEnergy,
		CreatedAtUTC: run.CreatedAtUTC,
	}
}
