// Package api - HTTP handlers for allocation runs
// Handlers wrap the engine and store; all allocation logic lives in core packages.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"hospital-abc/adapters/storage"
	"hospital-abc/core/determinism"
	"hospital-abc/core/engine"
	"hospital-abc/core/explanation"
	"hospital-abc/core/guards"
	"hospital-abc/core/output"
	"hospital-abc/core/scenario"
	"hospital-abc/core/types"
	"hospital-abc/internal/errors"
)

// decodeRequest reads and checks a RunRequest body
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*RunRequest, bool) {
	var req RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, "INVALID_JSON", err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if strings.TrimSpace(req.Scenario.Content) == "" {
		s.writeError(w, "VALIDATION_ERROR", "scenario.content is required", http.StatusBadRequest)
		return nil, false
	}
	if req.Scenario.Filename == "" {
		req.Scenario.Filename = "scenario.hcl"
	}
	return &req, true
}

func (s *Server) openWorkspace(ctx context.Context, req *RunRequest) (*scenario.Workspace, error) {
	bundle, err := scenario.Parse(req.Scenario.Filename, []byte(req.Scenario.Content))
	if err != nil {
		return nil, err
	}
	if len(req.Stages) > 0 {
		bundle.Stages = bundle.Stages[:0]
		for _, name := range req.Stages {
			stage, err := types.ParseStage(strings.ToLower(strings.TrimSpace(name)))
			if err != nil {
				return nil, errors.Validation("stages", err)
			}
			bundle.Stages = append(bundle.Stages, stage)
		}
	}
	return scenario.Open(ctx, bundle, s.logger)
}

// handleRun handles POST /runs
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	requestID := generateRequestID()

	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	ws, err := s.openWorkspace(ctx, req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	opts := s.opts
	if ws.Bundle.Scenario.Settings.Rounding.Method != "" {
		opts.Rounding = ws.Bundle.Scenario.Settings.Rounding
	}
	opts.ChainStages = opts.ChainStages || req.Chain || ws.Bundle.ChainStages

	eng := engine.New(ws.Catalog,
		engine.WithOptions(opts),
		engine.WithLogger(s.logger),
		engine.WithMappings(ws.Mappings),
		engine.WithScenario(ws.Bundle.Scenario.ID),
	)
	state := eng.ExecuteWorkflow(ctx, ws.Bundle.Stages, ws.Bundle.StageConfigs, nil)

	resp := &RunResponse{
		RequestID:  requestID,
		Timestamp:  time.Now().UTC(),
		Violations: guards.Check(state, guards.DefaultTolerance),
	}
	fingerprint := determinism.Fingerprint(state.Results).Hex()
	resp.Report = output.NewReport(state, output.ReportMetadata{
		Fingerprint: fingerprint,
		Scenario:    ws.Bundle.Scenario.ID,
		Version:     s.version,
	})

	if req.Save == nil || *req.Save {
		run := storage.NewStoredRun(state, map[string]string{
			"request_id": requestID,
			"version":    s.version,
		})
		if err := s.store.Save(ctx, run); err != nil {
			s.logger.Warn("run not saved", zap.String("run_id", state.RunID), zap.Error(err))
		} else {
			resp.Saved = true
		}
	}

	resp.Metadata = &ResponseMetadata{
		InputHash:     computeInputHash(req),
		EngineVersion: s.version,
		DurationMs:    time.Since(start).Milliseconds(),
	}

	status := http.StatusOK
	if state.Outcome() == types.OutcomeRejected {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, resp, status)
}

// handleValidate handles POST /validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	ws, err := s.openWorkspace(ctx, req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	report, err := ws.Check(ctx)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	s.writeJSON(w, &ValidateResponse{
		RequestID: generateRequestID(),
		Valid:     report.Errors() == 0,
		Report:    report,
	}, http.StatusOK)
}

// handleListRuns handles GET /runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &storage.ListFilter{
		ScenarioID: q.Get("scenario"),
		Outcome:    types.RunOutcome(q.Get("outcome")),
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit", 50); err != nil {
		s.writeFailure(w, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		s.writeFailure(w, err)
		return
	}

	runs, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := RunListResponse{Runs: make([]RunSummary, 0, len(runs)), Count: len(runs)}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, summarize(run))
	}
	s.writeJSON(w, resp, http.StatusOK)
}

// handleGetRun handles GET /runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, output.NewReport(run.State, output.ReportMetadata{
		Fingerprint: run.Fingerprint,
		Scenario:    run.ScenarioID,
		Version:     run.Metadata["version"],
	}), http.StatusOK)
}

// handleDeleteRun handles DELETE /runs/{id}
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExplain handles GET /runs/{id}/explain/{entity}
func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, explanation.Explain(run.State, r.PathValue("entity")), http.StatusOK)
}

// handleCompare handles GET /compare?old=<id>&new=<id>
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	oldID, newID := r.URL.Query().Get("old"), r.URL.Query().Get("new")
	if oldID == "" || newID == "" {
		s.writeError(w, "VALIDATION_ERROR", "old and new run ids are required", http.StatusBadRequest)
		return
	}
	res, err := storage.Compare(r.Context(), s.store, oldID, newID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, res, http.StatusOK)
}
