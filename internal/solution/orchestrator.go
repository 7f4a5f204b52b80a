// Package solution sequences the reasoning pipeline for one session:
// latest Observation, stage-1 refinement, conditional manual retrieval,
// stage-2 planning, and a persisted snapshot of the outcome.
package solution

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/kiranshivaraju/fixsight/internal/retrieval"
	"github.com/kiranshivaraju/fixsight/internal/session"
	"github.com/kiranshivaraju/fixsight/pkg/models"
	"github.com/kiranshivaraju/fixsight/pkg/ragquery"
)

// Refiner is the stage-1 reasoning dependency.
type Refiner interface {
	Refine(ctx context.Context, obs *models.Observation) (*models.ReasonerOutput, error)
}

// Retriever searches the knowledge base for repair manual passages.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*retrieval.Result, error)
}

// Planner is the stage-2 planning dependency.
type Planner interface {
	Generate(ctx context.Context, reasoned *models.ReasonerOutput, passages []models.RetrievedPassage, retrievalMetrics *models.VectorRetrievalMetrics) (*models.FixPlan, error)
}

// Orchestrator runs the solution pipeline end to end and owns the
// per-stage latency bookkeeping.
type Orchestrator struct {
	sessions  *session.Coordinator
	reasoner  Refiner
	retriever Retriever
	planner   Planner
	queries   ragquery.QueryBuilder
}

func New(sessions *session.Coordinator, reasoner Refiner, retriever Retriever, planner Planner) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		reasoner:  reasoner,
		retriever: retriever,
		planner:   planner,
	}
}

// Solve runs the pipeline against the session's latest Observation.
//
// Failures before the pipeline starts (lock busy, no observation) come
// back as bare errors. Once stage 1 is underway every outcome becomes a
// SolutionResult snapshot: on a stage failure the result carries the
// failing stage name and any partial outputs alongside the returned
// error, and the snapshot is persisted either way. A retrieval failure
// is not a stage failure; the planner runs its vision-only fallback and
// the plan is flagged as degraded.
func (o *Orchestrator) Solve(ctx context.Context, sessionID string) (*models.SolutionResult, error) {
	release, err := o.sessions.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, err := o.sessions.Latest(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &models.SolutionResult{
		SessionID:      sessionID,
		StageLatencies: map[string]float64{},
		CreatedAt:      start.UTC(),
	}

	stageStart := time.Now()
	reasoned, err := o.reasoner.Refine(ctx, rec.Observation)
	o.endStage(result, models.StageReasoner1, stageStart, err)
	if err != nil {
		return o.fail(ctx, result, models.StageReasoner1, err, start)
	}
	result.ReasonerOutput = reasoned

	var (
		passages []models.RetrievedPassage
		metrics  *models.VectorRetrievalMetrics
		degraded bool
	)
	if reasoned.RequiresRAG {
		stageStart = time.Now()
		res, rerr := o.retriever.Retrieve(ctx, o.buildQuery(reasoned, rec.Observation))
		o.endStage(result, models.StageRAG, stageStart, rerr)
		if rerr != nil {
			degraded = true
			slog.Warn("retrieval failed, planning from vision only",
				"session_id", sessionID,
				"error", rerr)
		} else {
			passages = res.Passages
			metrics = &res.Metrics
		}
	}

	stageStart = time.Now()
	fixPlan, err := o.planner.Generate(ctx, reasoned, passages, metrics)
	o.endStage(result, models.StageReasoner2, stageStart, err)
	if err != nil {
		return o.fail(ctx, result, models.StageReasoner2, err, start)
	}
	if degraded && !slices.Contains(fixPlan.Metrics.UncertaintyFlags, models.FlagRetrievalDegraded) {
		fixPlan.Metrics.UncertaintyFlags = append(fixPlan.Metrics.UncertaintyFlags, models.FlagRetrievalDegraded)
	}

	result.FixPlan = fixPlan
	result.TotalLatencyMS = msSince(start)

	if err := o.sessions.SaveSolution(ctx, sessionID, result); err != nil {
		return result, fmt.Errorf("save solution: %w", err)
	}

	slog.Info("solution pipeline completed",
		"session_id", sessionID,
		"total_ms", result.TotalLatencyMS,
		"fallback", fixPlan.FallbackToVisionOnly,
		"confidence", fixPlan.Metrics.Confidence)
	return result, nil
}

// buildQuery prefers the reasoner's synthesized query, then its
// keywords, then a deterministic description of the observation.
func (o *Orchestrator) buildQuery(reasoned *models.ReasonerOutput, obs *models.Observation) string {
	if q := strings.TrimSpace(reasoned.RAGQuery); q != "" {
		return q
	}
	if q := o.queries.FromKeywords(reasoned.RAGQueryKeywords); q != "" {
		return q
	}
	return o.queries.FromObservation(obs)
}

// endStage records the stage latency whether the stage succeeded or
// not. Successes log here; failure paths log for themselves.
func (o *Orchestrator) endStage(result *models.SolutionResult, stage string, start time.Time, err error) {
	ms := msSince(start)
	result.StageLatencies[stage] = ms
	if err != nil {
		return
	}
	slog.Info("pipeline stage completed",
		"session_id", result.SessionID,
		"stage", stage,
		"duration_ms", ms)
}

// fail finalizes the snapshot for an aborted run. The snapshot is still
// persisted so the latest-solution view reflects what happened.
func (o *Orchestrator) fail(ctx context.Context, result *models.SolutionResult, stage string, cause error, start time.Time) (*models.SolutionResult, error) {
	result.Error = cause.Error()
	result.ErrorStage = stage
	result.TotalLatencyMS = msSince(start)

	slog.Error("solution pipeline aborted",
		"session_id", result.SessionID,
		"stage", stage,
		"error", cause)

	if err := o.sessions.SaveSolution(ctx, result.SessionID, result); err != nil {
		slog.Error("persisting aborted solution",
			"session_id", result.SessionID,
			"error", err)
	}
	return result, cause
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
