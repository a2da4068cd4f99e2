package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"qsoul/pkg/qsoul"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(global *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run queries and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, global)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			client, err := newClient(cfg, global, logger, reg, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			srv := &httpServer{
				client:   client,
				base:     qsoul.RunRequestFromConfig(cfg),
				gatherer: reg,
				logger:   logger,
			}
			return srv.serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

type httpServer struct {
	client   *qsoul.Client
	base     qsoul.RunRequest
	gatherer prometheus.Gatherer
	logger   logrus.FieldLogger

	// runMu serializes POST /runs; the run index is a single file.
	runMu sync.Mutex
}

func (s *httpServer) serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.WithField("addr", addr).Info("serving")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *httpServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /runs", s.handleRuns)
	mux.HandleFunc("POST /runs", s.handleStartRun)
	mux.HandleFunc("GET /runs/{id}", s.handleRun)
	mux.HandleFunc("GET /runs/{id}/best", s.handleBest)
	mux.HandleFunc("GET /runs/{id}/energy", s.handleEnergy)
	mux.HandleFunc("GET /runs/{id}/dream_log", s.handleDreamLog)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(s.logger), handlers.PrintRecoveryStack(true))
	return recovery(handlers.CompressHandler(mux))
}

// runRef treats the path id "latest" as the newest indexed run.
func runRef(r *http.Request) qsoul.RunRef {
	id := r.PathValue("id")
	if id == "latest" {
		return qsoul.RunRef{Latest: true}
	}
	return qsoul.RunRef{RunID: id}
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}

func (s *httpServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	items, err := s.client.Runs(r.Context(), qsoul.RunsRequest{Limit: limit})
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	if items == nil {
		items = []qsoul.RunItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// startRunBody overlays the configured run defaults; zero fields keep them.
type startRunBody struct {
	RunID     string    `json:"run_id"`
	Seed      int64     `json:"seed"`
	MaxSteps  int       `json:"max_steps"`
	Patience  int       `json:"patience"`
	Intensity float64   `json:"intensity"`
	Evaluator string    `json:"evaluator"`
	Energies  []float64 `json:"energies"`
}

func (s *httpServer) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var body startRunBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode run request: %w", err))
			return
		}
	}

	req := s.base
	req.Observers = nil
	if body.RunID != "" {
		req.RunID = body.RunID
	}
	if body.Seed != 0 {
		req.Seed = body.Seed
	}
	if body.MaxSteps > 0 {
		req.MaxSteps = body.MaxSteps
	}
	if body.Patience > 0 {
		req.Patience = body.Patience
	}
	if body.Intensity > 0 {
		req.Intensity = body.Intensity
	}
	if body.Evaluator != "" {
		req.Evaluator = body.Evaluator
	}
	if len(body.Energies) > 0 {
		req.Energies = body.Energies
	}

	s.runMu.Lock()
	summary, err := s.client.Run(r.Context(), req)
	s.runMu.Unlock()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"run_id":    summary.RunID,
		"state":     summary.State,
		"steps_run": summary.StepsRun,
		"best":      summary.Best,
		"summary":   summary.Summary,
	})
}

func (s *httpServer) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.client.GetRun(r.Context(), runRef(r))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *httpServer) handleBest(w http.ResponseWriter, r *http.Request) {
	best, err := s.client.Best(r.Context(), runRef(r))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, best)
}

func (s *httpServer) handleEnergy(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	history, err := s.client.EnergyHistory(r.Context(), qsoul.HistoryRequest{RunRef: runRef(r), Limit: limit})
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *httpServer) handleDreamLog(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	events, err := s.client.DreamLog(r.Context(), qsoul.DreamLogRequest{RunRef: runRef(r), Limit: limit})
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *httpServer) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, qsoul.ErrRunNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}

func (s *httpServer) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
