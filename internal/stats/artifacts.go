package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"qsoul/internal/model"
)

const (
	runIndexFile   = "run_index.json"
	runBundleFile  = "run.json"
	energyCSVFile  = "energy.csv"
	exportDayStamp = "%Y%m%d"
)

// RunConfig is the settings snapshot stored next to a run's outputs.
type RunConfig struct {
	RunID            string  `json:"run_id"`
	Seed             int64   `json:"seed"`
	Evaluator        string  `json:"evaluator"`
	Intensity        float64 `json:"intensity"`
	MaxSteps         int     `json:"max_steps"`
	Patience         int     `json:"patience"`
	BaseLearningRate float64 `json:"base_learning_rate"`
	BaseMutationRate float64 `json:"base_mutation_rate"`
	Light            float64 `json:"light"`
	ParamCount       int     `json:"param_count"`
	Genes            int     `json:"genes"`
	Qubits           int     `json:"qubits,omitempty"`
	Reps             int     `json:"reps,omitempty"`
	Noise            float64 `json:"noise"`
}

// RunArtifacts bundles everything one run produced. Best is nil when the run
// halted before its first evaluation.
type RunArtifacts struct {
	Config        RunConfig             `json:"config"`
	State         model.RunState        `json:"state"`
	StepsRun      int                   `json:"steps_run"`
	EnergyHistory []float64             `json:"energy_history"`
	VibeTrace     []float64             `json:"vibe_trace"`
	Steps         []model.StepRecord    `json:"steps"`
	Best          *model.BestRecord     `json:"best,omitempty"`
	Modulator     *model.ModulatorState `json:"modulator,omitempty"`
	DreamLog      []model.DreamEvent    `json:"dream_log,omitempty"`
	Summary       Summary               `json:"summary"`
	CreatedAtUTC  string                `json:"created_at_utc"`
}

type RunIndexEntry struct {
	RunID        string         `json:"run_id"`
	Evaluator    string         `json:"evaluator"`
	Seed         int64          `json:"seed"`
	MaxSteps     int            `json:"max_steps"`
	State        model.RunState `json:"state"`
	StepsRun     int            `json:"steps_run"`
	BestStep     int            `json:"best_step"`
	BestEnergy   float64        `json:"best_energy"`
	CreatedAtUTC string         `json:"created_at_utc"`
}

// WriteRunArtifacts stores the bundle under baseDir/<run id>.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := writeBundle(runDir, artifacts); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunArtifacts(baseDir, runID string) (RunArtifacts, bool, error) {
	path := filepath.Join(baseDir, runID, runBundleFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunArtifacts{}, false, nil
		}
		return RunArtifacts{}, false, err
	}

	var artifacts RunArtifacts
	if err := json.Unmarshal(data, &artifacts); err != nil {
		return RunArtifacts{}, false, err
	}
	return artifacts, true, nil
}

// ExportDirName names an export folder after the run and the export day.
func ExportDirName(runID string, at time.Time) string {
	return runID + "_" + strftime.Format(exportDayStamp, at.UTC())
}

// ExportRun writes run.json and energy.csv into outDir/<run id>_<YYYYMMDD>.
func ExportRun(outDir string, artifacts RunArtifacts, at time.Time) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}
	dst := filepath.Join(outDir, ExportDirName(artifacts.Config.RunID, at))
	if err := writeBundle(dst, artifacts); err != nil {
		return "", err
	}
	return dst, nil
}

func writeBundle(dir string, artifacts RunArtifacts) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, runBundleFile), artifacts); err != nil {
		return err
	}
	return WriteEnergyCSV(filepath.Join(dir, energyCSVFile), artifacts.Steps)
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// readRunIndex returns the entries in append order.
func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		c := model.CompareTimestamps(indexed[i].entry.CreatedAtUTC, indexed[j].entry.CreatedAtUTC)
		if c == 0 {
			// later appends win ties
			return indexed[i].idx > indexed[j].idx
		}
		return c > 0
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ClearRunIndex removes the index and every run directory it lists.
func ClearRunIndex(baseDir string) error {
	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	for _, entry := range index {
		if strings.TrimSpace(entry.RunID) == "" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(baseDir, entry.RunID)); err != nil {
			return err
		}
	}
	if err := os.Remove(filepath.Join(baseDir, runIndexFile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveRun drops one run from the index and deletes its directory. It
// reports whether the index listed the run.
func RemoveRun(baseDir, runID string) (bool, error) {
	if strings.TrimSpace(runID) == "" {
		return false, fmt.Errorf("run id is required")
	}
	index, err := readRunIndex(baseDir)
	if err != nil {
		return false, err
	}

	kept := index[:0]
	found := false
	for _, entry := range index {
		if entry.RunID == runID {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if err := os.RemoveAll(filepath.Join(baseDir, runID)); err != nil {
		return found, err
	}
	if !found {
		return false, nil
	}
	return true, writeJSON(filepath.Join(baseDir, runIndexFile), kept)
}

func WriteEnergyCSV(path string, steps []model.StepRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"step", "energy", "vibe", "mutation"}); err != nil {
		return err
	}
	for _, step := range steps {
		if err := writer.Write([]string{
			strconv.Itoa(step.Step),
			strconv.FormatFloat(step.Energy, 'f', -1, 64),
			strconv.FormatFloat(step.VibeMagnitude, 'f', -1, 64),
			step.Mutation.String(),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
