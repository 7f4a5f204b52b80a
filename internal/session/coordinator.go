// Package session owns all per-session state in the backing store.
// The Coordinator serializes frame analysis per session and persists
// analysis records, solution results, and guide progress under
// per-session keys sharing a single TTL.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/fixsight/internal/config"
	"github.com/kiranshivaraju/fixsight/pkg/models"
)

// releaseTimeout bounds the store calls made while releasing a session
// lock. Release runs on its own context because the request context is
// often already canceled by the time the deferred release fires.
const releaseTimeout = 5 * time.Second

// Coordinator enforces the frame admission protocol for a session:
// one analysis at a time, a minimum interval between accepted frames,
// and rejection of frames identical to the previous one.
type Coordinator struct {
	store Store
	cfg   config.SessionConfig
}

func NewCoordinator(store Store, cfg config.SessionConfig) *Coordinator {
	return &Coordinator{store: store, cfg: cfg}
}

// Admit runs the admission checks for a frame and, on success, returns
// a release function the caller must invoke once analysis finishes.
// Release marks the session idle and unlocks it; it only removes the
// lock if this call still holds it, so a lease that expired mid-flight
// never clobbers a newer holder.
//
// On rejection Admit releases internally and returns one of
// ErrLockBusy, ErrThrottled, or ErrDuplicateFrame.
func (c *Coordinator) Admit(ctx context.Context, sessionID string, frame []byte) (func(), error) {
	token := []byte(uuid.NewString())

	acquired, err := c.store.SetNX(ctx, LockKey(sessionID), token, c.cfg.LockLease)
	if err != nil {
		return nil, fmt.Errorf("acquiring session lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockBusy
	}

	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_ = c.store.Set(rctx, StatusKey(sessionID), []byte(models.SessionStatusIdle), c.cfg.TTL)
		_, _ = c.store.CompareAndDelete(rctx, LockKey(sessionID), token)
	}

	if err := c.checkThrottle(ctx, sessionID); err != nil {
		release()
		return nil, err
	}

	nowMS := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := c.store.Set(ctx, LastCallKey(sessionID), []byte(nowMS), c.cfg.TTL); err != nil {
		release()
		return nil, fmt.Errorf("recording call time: %w", err)
	}
	if err := c.store.Set(ctx, StatusKey(sessionID), []byte(models.SessionStatusAnalyzing), c.cfg.TTL); err != nil {
		release()
		return nil, fmt.Errorf("marking session analyzing: %w", err)
	}

	dup, err := c.isDuplicate(ctx, sessionID, frame)
	if err != nil {
		release()
		return nil, err
	}
	if dup {
		release()
		return nil, ErrDuplicateFrame
	}

	return release, nil
}

// Lock acquires the session lock without the frame admission checks.
// Solution runs use it so a pipeline run and a frame analysis for the
// same session exclude each other. Returns ErrLockBusy when held.
func (c *Coordinator) Lock(ctx context.Context, sessionID string) (func(), error) {
	token := []byte(uuid.NewString())

	acquired, err := c.store.SetNX(ctx, LockKey(sessionID), token, c.cfg.LockLease)
	if err != nil {
		return nil, fmt.Errorf("acquiring session lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockBusy
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_, _ = c.store.CompareAndDelete(rctx, LockKey(sessionID), token)
	}, nil
}

// checkThrottle rejects the frame when the previous accepted frame is
// more recent than the configured minimum interval. A rejected frame
// does not refresh the interval.
func (c *Coordinator) checkThrottle(ctx context.Context, sessionID string) error {
	raw, found, err := c.store.Get(ctx, LastCallKey(sessionID))
	if err != nil {
		return fmt.Errorf("reading last call time: %w", err)
	}
	if !found {
		return nil
	}
	lastMS, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		// Unreadable marker, let the frame through.
		return nil
	}
	if time.Since(time.UnixMilli(lastMS)) < c.cfg.MinInterval {
		return ErrThrottled
	}
	return nil
}

// isDuplicate compares the frame hash against the previous frame's
// hash. A changed frame overwrites the stored hash, so only exact
// repeats of the most recent frame are rejected, no matter how much
// time has passed.
func (c *Coordinator) isDuplicate(ctx context.Context, sessionID string, frame []byte) (bool, error) {
	sum := sha256.Sum256(frame)
	hash := hex.EncodeToString(sum[:])

	prev, found, err := c.store.Get(ctx, LastHashKey(sessionID))
	if err != nil {
		return false, fmt.Errorf("reading last frame hash: %w", err)
	}
	if found && string(prev) == hash {
		return true, nil
	}
	if err := c.store.Set(ctx, LastHashKey(sessionID), []byte(hash), c.cfg.TTL); err != nil {
		return false, fmt.Errorf("storing frame hash: %w", err)
	}
	return false, nil
}

// RecordAnalysis appends the record to the session history and, when
// the record carries a valid observation, promotes it to the latest
// slot. Invalid records reach history only, so clients polling the
// latest observation never see a failed extraction.
func (c *Coordinator) RecordAnalysis(ctx context.Context, sessionID string, rec models.AnalysisRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling analysis record: %w", err)
	}
	if rec.Valid && rec.Observation != nil {
		if err := c.store.Set(ctx, LatestKey(sessionID), payload, c.cfg.TTL); err != nil {
			return fmt.Errorf("storing latest analysis: %w", err)
		}
	}
	if err := c.store.PushCapped(ctx, HistoryKey(sessionID), payload, int64(c.cfg.HistoryLimit), c.cfg.TTL); err != nil {
		return fmt.Errorf("appending analysis history: %w", err)
	}
	return nil
}

// Latest returns the most recent valid analysis record, or
// ErrNoObservation when the session has none.
func (c *Coordinator) Latest(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	raw, found, err := c.store.Get(ctx, LatestKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("reading latest analysis: %w", err)
	}
	if !found {
		return nil, ErrNoObservation
	}
	var rec models.AnalysisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding latest analysis: %w", err)
	}
	return &rec, nil
}

// History returns up to limit analysis records, newest first. A limit
// outside (0, HistoryLimit] falls back to the configured cap.
func (c *Coordinator) History(ctx context.Context, sessionID string, limit int) ([]models.AnalysisRecord, error) {
	if limit <= 0 || limit > c.cfg.HistoryLimit {
		limit = c.cfg.HistoryLimit
	}
	items, err := c.store.Range(ctx, HistoryKey(sessionID), 0, int64(limit)-1)
	if err != nil {
		return nil, fmt.Errorf("reading analysis history: %w", err)
	}
	records := make([]models.AnalysisRecord, 0, len(items))
	for _, raw := range items {
		var rec models.AnalysisRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decoding history entry: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Status reports the session state. Sessions with no stored status are
// idle.
func (c *Coordinator) Status(ctx context.Context, sessionID string) (string, error) {
	raw, found, err := c.store.Get(ctx, StatusKey(sessionID))
	if err != nil {
		return "", fmt.Errorf("reading session status: %w", err)
	}
	if !found {
		return models.SessionStatusIdle, nil
	}
	return string(raw), nil
}

// SaveGuide stores a guide plan and its initial state together.
func (c *Coordinator) SaveGuide(ctx context.Context, sessionID string, plan *models.GuidePlan, state *models.GuideState) error {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshaling guide plan: %w", err)
	}
	if err := c.store.Set(ctx, GuidePlanKey(sessionID), planJSON, c.cfg.TTL); err != nil {
		return fmt.Errorf("storing guide plan: %w", err)
	}
	return c.SaveGuideState(ctx, sessionID, state)
}

// SaveGuideState overwrites the guide state, leaving the plan as is.
func (c *Coordinator) SaveGuideState(ctx context.Context, sessionID string, state *models.GuideState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling guide state: %w", err)
	}
	if err := c.store.Set(ctx, GuideStateKey(sessionID), stateJSON, c.cfg.TTL); err != nil {
		return fmt.Errorf("storing guide state: %w", err)
	}
	return nil
}

// LoadGuide returns the session's guide plan and state, or ErrNoGuide
// when no guide is active.
func (c *Coordinator) LoadGuide(ctx context.Context, sessionID string) (*models.GuidePlan, *models.GuideState, error) {
	planRaw, found, err := c.store.Get(ctx, GuidePlanKey(sessionID))
	if err != nil {
		return nil, nil, fmt.Errorf("reading guide plan: %w", err)
	}
	if !found {
		return nil, nil, ErrNoGuide
	}
	stateRaw, found, err := c.store.Get(ctx, GuideStateKey(sessionID))
	if err != nil {
		return nil, nil, fmt.Errorf("reading guide state: %w", err)
	}
	if !found {
		return nil, nil, ErrNoGuide
	}
	var plan models.GuidePlan
	if err := json.Unmarshal(planRaw, &plan); err != nil {
		return nil, nil, fmt.Errorf("decoding guide plan: %w", err)
	}
	var state models.GuideState
	if err := json.Unmarshal(stateRaw, &state); err != nil {
		return nil, nil, fmt.Errorf("decoding guide state: %w", err)
	}
	return &plan, &state, nil
}

// ClearGuide removes the guide plan and state for the session.
func (c *Coordinator) ClearGuide(ctx context.Context, sessionID string) error {
	if err := c.store.Delete(ctx, GuideStateKey(sessionID)); err != nil {
		return fmt.Errorf("deleting guide state: %w", err)
	}
	if err := c.store.Delete(ctx, GuidePlanKey(sessionID)); err != nil {
		return fmt.Errorf("deleting guide plan: %w", err)
	}
	return nil
}

// SaveSolution stores the outcome of a solution pipeline run.
func (c *Coordinator) SaveSolution(ctx context.Context, sessionID string, result *models.SolutionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling solution result: %w", err)
	}
	if err := c.store.Set(ctx, SolutionKey(sessionID), payload, c.cfg.TTL); err != nil {
		return fmt.Errorf("storing solution result: %w", err)
	}
	return nil
}

// LatestSolution returns the most recent solution result, or
// ErrNoSolution when the session has never run the pipeline.
func (c *Coordinator) LatestSolution(ctx context.Context, sessionID string) (*models.SolutionResult, error) {
	raw, found, err := c.store.Get(ctx, SolutionKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("reading solution result: %w", err)
	}
	if !found {
		return nil, ErrNoSolution
	}
	var result models.SolutionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decoding solution result: %w", err)
	}
	return &result, nil
}

// Snapshot summarizes every key a session holds, for the debug
// endpoint. Values are reduced to presence and sizes so the dump stays
// safe to log.
func (c *Coordinator) Snapshot(ctx context.Context, sessionID string) (map[string]any, error) {
	snap := make(map[string]any)

	status, err := c.Status(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap["status"] = status

	locked, err := c.store.Exists(ctx, LockKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("checking session lock: %w", err)
	}
	snap["locked"] = locked

	_, hasLatest, err := c.store.Get(ctx, LatestKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("checking latest analysis: %w", err)
	}
	snap["has_latest"] = hasLatest

	history, err := c.store.Range(ctx, HistoryKey(sessionID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("reading analysis history: %w", err)
	}
	snap["history_len"] = len(history)

	lastCall, found, err := c.store.Get(ctx, LastCallKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("reading last call time: %w", err)
	}
	if found {
		snap["last_call_ms"] = string(lastCall)
	}

	lastHash, found, err := c.store.Get(ctx, LastHashKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("reading last frame hash: %w", err)
	}
	if found {
		snap["last_frame_sha256"] = string(lastHash)
	}

	hasSolution, err := c.store.Exists(ctx, SolutionKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("checking solution result: %w", err)
	}
	snap["has_solution"] = hasSolution

	hasGuide, err := c.store.Exists(ctx, GuideStateKey(sessionID))
	if err != nil {
		return nil, fmt.Errorf("checking guide state: %w", err)
	}
	snap["has_guide"] = hasGuide

	return snap, nil
}
