package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"qsoul/pkg/qsoul"
)

type refOptions struct {
	runID  string
	latest bool
}

func (o *refOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&o.latest, "latest", false, "use the most recent run from the run index")
}

func (o *refOptions) ref(command string) (qsoul.RunRef, error) {
	if o.runID != "" && o.latest {
		return qsoul.RunRef{}, errors.New("use either --run-id or --latest, not both")
	}
	if o.runID == "" && !o.latest {
		return qsoul.RunRef{}, fmt.Errorf("%s requires --run-id or --latest", command)
	}
	return qsoul.RunRef{RunID: o.runID, Latest: o.latest}, nil
}

func newRunsCmd(global *globalOptions) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, err := openClient(cmd, global)
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Runs(cmd.Context(), qsoul.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSONTo(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(out, "run_id=%s created=%s evaluator=%s seed=%d state=%s steps=%d best_step=%d best_energy=%.6f\n",
					item.RunID, relativeTime(item.CreatedAtUTC), item.Evaluator, item.Seed,
					item.State, item.StepsRun, item.BestStep, item.BestEnergy)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs as JSON")
	return cmd
}

func newBestCmd(global *globalOptions) *cobra.Command {
	ref := &refOptions{}
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "best",
		Short: "Show the lowest-energy configuration of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runRef, err := ref.ref("best")
			if err != nil {
				return err
			}
			client, err := openClient(cmd, global)
			if err != nil {
				return err
			}
			defer client.Close()

			best, err := client.Best(cmd.Context(), runRef)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSONTo(out, best)
			}
			fmt.Fprintf(out, "step=%d energy=%.6f params=%d genes=%v\n", best.Step, best.Energy, len(best.Params), best.Genes)
			for i, p := range best.Params {
				fmt.Fprintf(out, "param[%d]=%.6f\n", i, p)
			}
			return nil
		},
	}
	ref.bind(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the best record as JSON")
	return cmd
}

func newHistoryCmd(global *globalOptions) *cobra.Command {
	ref := &refOptions{}
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the per-step energy history of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runRef, err := ref.ref("history")
			if err != nil {
				return err
			}
			if limit < 0 {
				limit = 0
			}
			client, err := openClient(cmd, global)
			if err != nil {
				return err
			}
			defer client.Close()

			history, err := client.EnergyHistory(cmd.Context(), qsoul.HistoryRequest{RunRef: runRef, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSONTo(out, history)
			}
			if len(history) == 0 {
				fmt.Fprintln(out, "no energy history")
				return nil
			}
			for i, e := range history {
				fmt.Fprintf(out, "step=%d energy=%.6f\n", i, e)
			}
			return nil
		},
	}
	ref.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 50, "max steps to print (<=0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the history as JSON")
	return cmd
}

func newDreamLogCmd(global *globalOptions) *cobra.Command {
	ref := &refOptions{}
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "dream-log",
		Short: "Print the dream journal of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runRef, err := ref.ref("dream-log")
			if err != nil {
				return err
			}
			if limit < 0 {
				limit = 0
			}
			client, err := openClient(cmd, global)
			if err != nil {
				return err
			}
			defer client.Close()

			events, err := client.DreamLog(cmd.Context(), qsoul.DreamLogRequest{RunRef: runRef, Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSONTo(out, events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "no dream events")
				return nil
			}
			for _, ev := range events {
				meta, err := json.Marshal(ev.Metadata)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "generation=%d event=%s metadata=%s\n", ev.Generation, ev.Event, meta)
			}
			return nil
		},
	}
	ref.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "max events to print (<=0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit events as JSON")
	return cmd
}

func newExportCmd(global *globalOptions) *cobra.Command {
	ref := &refOptions{}
	var outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts into a dated export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runRef, err := ref.ref("export")
			if err != nil {
				return err
			}
			client, err := openClient(cmd, global)
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), qsoul.ExportRequest{RunRef: runRef, OutDir: outDir})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	ref.bind(cmd)
	cmd.Flags().StringVar(&outDir, "out", "", "export output directory (defaults to the configured export dir)")
	return cmd
}

func newResetCmd(global *globalOptions) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every stored run, or one run with --run-id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			client, err := openClient(cmd, global)
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				deleted, err := client.DeleteRun(cmd.Context(), qsoul.RunRef{RunID: runID})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted run_id=%s store=%s\n", deleted, cfg.Store)
				return nil
			}
			if err := client.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out, "reset store=%s\n", cfg.Store)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "delete only this run")
	return cmd
}

func relativeTime(stamp string) string {
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return stamp
	}
	return humanize.Time(t)
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
