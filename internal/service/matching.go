package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"matchengine/internal/lock"
	"matchengine/internal/logger"
	"matchengine/internal/metrics"
	"matchengine/internal/model"
	"matchengine/internal/repository"
)

// NoTasteProfileMessage explains an empty result for a buyer without taste text.
const NoTasteProfileMessage = "buyer has no taste profile; add liked, disliked or summary text to enable ranking"

// Store is everything the matching pipeline reads and writes.
type Store interface {
	NotificationStore

	GetBuyer(ctx context.Context, id string) (*model.Buyer, error)
	UpdateCriteria(ctx context.Context, buyerID string, c model.Criteria) error
	ListAvailableProperties(ctx context.Context) ([]model.Property, error)
	AssignedPropertyIDs(ctx context.Context, buyerID string) (map[string]struct{}, error)
	ListFeedback(ctx context.Context, buyerID string) ([]model.Feedback, error)
	InsertFeedback(ctx context.Context, fb *model.Feedback) error
	Reconcile(ctx context.Context, buyerID string, failed []model.ExcludedCandidate, ranked []model.RankedMatch) (int, error)
	ListMatches(ctx context.Context, buyerID string, passed *bool) ([]model.MatchRecord, error)
	ExclusionSummary(ctx context.Context, buyerID string) ([]model.ExclusionCount, error)
	RecordRun(ctx context.Context, run *model.MatchRun) error
	ListRuns(ctx context.Context, buyerID string, limit int) ([]model.MatchRun, error)
	ListNotifications(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]model.Notification, error)
	BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string)
}

// RunRequest is one invocation of the pipeline.
type RunRequest struct {
	BuyerID string
	Save    bool
	Trigger model.Trigger
}

// MatchService wires the hard filter, soft ranker, reconciler and dispatcher
// into one sequential run per buyer.
type MatchService struct {
	store      Store
	filter     *HardFilter
	ranker     *SoftRanker
	dispatcher *Dispatcher
	locker     lock.Locker
	logger     *zap.Logger
	now        func() time.Time
}

func NewMatchService(store Store, filter *HardFilter, ranker *SoftRanker, dispatcher *Dispatcher, locker lock.Locker, log *zap.Logger) *MatchService {
	if log == nil {
		log = zap.NewNop()
	}
	if filter == nil {
		filter = NewHardFilter(log)
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(store, nil, log)
	}
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &MatchService{
		store:      store,
		filter:     filter,
		ranker:     ranker,
		dispatcher: dispatcher,
		locker:     locker,
		logger:     log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Match is the explicit entry point. SaveResults defaults to true.
func (s *MatchService) Match(ctx context.Context, req model.MatchRequest) (*model.MatchResponse, error) {
	return s.Run(ctx, RunRequest{BuyerID: req.BuyerID, Save: req.Save(), Trigger: model.TriggerManual})
}

// OnCriteriaChanged is the event-driven entry point; it always saves.
func (s *MatchService) OnCriteriaChanged(ctx context.Context, event model.CriteriaChangedEvent) error {
	_, err := s.Run(ctx, RunRequest{BuyerID: event.BuyerID, Save: true, Trigger: model.TriggerCriteriaChanged})
	return err
}

// UpdateCriteria validates and stores new criteria, then reruns matching.
func (s *MatchService) UpdateCriteria(ctx context.Context, buyerID string, c model.Criteria) (*model.MatchResponse, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer_id is required", ErrInvalidInput)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	c.Normalize()

	if err := s.store.UpdateCriteria(ctx, buyerID, c); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBuyerNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return s.Run(ctx, RunRequest{BuyerID: buyerID, Save: true, Trigger: model.TriggerCriteriaChanged})
}

// Run executes the pipeline: filter, rank, then (when saving) reconcile and
// notify. Nothing is written before ranking succeeds.
func (s *MatchService) Run(ctx context.Context, req RunRequest) (*model.MatchResponse, error) {
	started := s.now()
	buyerID := strings.TrimSpace(req.BuyerID)
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer_id is required", ErrInvalidInput)
	}
	if req.Trigger == "" {
		req.Trigger = model.TriggerManual
	}

	runID := uuid.NewString()
	log := logger.WithRun(s.logger, runID, buyerID, string(req.Trigger))

	if req.Save {
		release, err := s.locker.Acquire(ctx, lock.BuyerKey(buyerID))
		if err != nil {
			return nil, fmt.Errorf("%w: acquire buyer lock: %v", ErrPersistence, err)
		}
		defer release()
	}

	run := &model.MatchRun{
		ID:        runID,
		BuyerID:   buyerID,
		Trigger:   req.Trigger,
		Saved:     false,
		StartedAt: started,
	}

	resp, err := s.run(ctx, log, req, run)

	took := s.now().Sub(started)
	switch {
	case err != nil:
		run.Status = model.RunStatusFailed
		msg := err.Error()
		run.Error = &msg
	case resp.Message != "":
		run.Status = model.RunStatusNoTasteProfile
	default:
		run.Status = model.RunStatusSucceeded
	}
	metrics.ObserveRun(string(req.Trigger), run.Status, took)

	// Unknown or invalid buyers leave no run row.
	if err == nil || !(errors.Is(err, ErrBuyerNotFound) || errors.Is(err, ErrInvalidInput)) {
		s.recordRun(log, run)
	}

	if err != nil {
		log.Warn("match run failed", zap.Error(err), zap.Duration("took", took))
		return nil, err
	}

	resp.Took = took.Milliseconds()
	log.Info("match run finished",
		zap.String("status", run.Status),
		zap.Bool("saved", resp.Saved),
		zap.Int("passed", run.PassedCount),
		zap.Int("failed", run.FailedCount),
		zap.Int("ranked", run.RankedCount),
		zap.Int("notified", run.NotifiedCount),
		zap.Duration("took", took),
	)
	return resp, nil
}

func (s *MatchService) run(ctx context.Context, log *zap.Logger, req RunRequest, run *model.MatchRun) (*model.MatchResponse, error) {
	buyer, err := s.store.GetBuyer(ctx, run.BuyerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBuyerNotFound, run.BuyerID)
		}
		return nil, fmt.Errorf("%w: load buyer: %v", ErrPersistence, err)
	}
	if err := buyer.Criteria.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	inventory, err := s.store.ListAvailableProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load properties: %v", ErrPersistence, err)
	}
	assigned, err := s.store.AssignedPropertyIDs(ctx, buyer.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load assignments: %v", ErrPersistence, err)
	}
	candidates := make([]model.Property, 0, len(inventory))
	for _, p := range inventory {
		if _, ok := assigned[p.ID]; ok {
			continue
		}
		candidates = append(candidates, p)
	}

	result := s.filter.Partition(&buyer.Criteria, candidates)
	metrics.ObserveHardFilter(result.FailuresByRule)
	run.PassedCount = len(result.Passed)
	run.FailedCount = len(result.Excluded)

	resp := &model.MatchResponse{
		RunID:          run.ID,
		BuyerName:      buyer.Name,
		Matches:        []model.MatchResult{},
		TotalFiltered:  len(result.Passed),
		FailedCount:    len(result.Excluded),
		FiltersApplied: buyer.Criteria,
	}

	if !buyer.HasTasteProfile() {
		log.Info("buyer has no taste profile, skipping ranking")
		resp.Message = NoTasteProfileMessage
		if !req.Save {
			return resp, nil
		}
		// Exclusions are still recorded and earlier passes no longer stand.
		written, err := s.store.Reconcile(ctx, buyer.ID, result.Excluded, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: reconcile: %v", ErrPersistence, err)
		}
		resp.Saved = true
		run.Saved = true
		log.Debug("match records reconciled", zap.Int("written", written))
		return resp, nil
	}

	var ranked []model.RankedMatch
	if len(result.Passed) > 0 {
		feedback, err := s.store.ListFeedback(ctx, buyer.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: load feedback: %v", ErrPersistence, err)
		}
		if s.ranker == nil {
			return nil, &OracleError{Kind: ErrRankingUnavailable, Provider: "none", Err: errors.New("no ranking oracle configured")}
		}
		ranked, err = s.ranker.Rank(ctx, buyer, result.Passed, feedback)
		if err != nil {
			return nil, err
		}
	}
	run.RankedCount = len(ranked)

	byID := make(map[string]model.Property, len(result.Passed))
	for _, p := range result.Passed {
		byID[p.ID] = p
	}
	for _, m := range ranked {
		p, ok := byID[m.PropertyID]
		if !ok {
			continue
		}
		resp.Matches = append(resp.Matches, model.MatchResult{
			PropertyID:  m.PropertyID,
			MatchScore:  m.Score,
			MatchReason: m.Reason,
			Property:    &p,
		})
	}

	if !req.Save {
		return resp, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRankingUnavailable, err)
	}

	written, err := s.store.Reconcile(ctx, buyer.ID, result.Excluded, ranked)
	if err != nil {
		return nil, fmt.Errorf("%w: reconcile: %v", ErrPersistence, err)
	}
	resp.Saved = true
	run.Saved = true
	log.Debug("match records reconciled", zap.Int("written", written))

	created, err := s.dispatcher.Dispatch(ctx, buyer, run.ID, ranked, byID)
	if err != nil {
		// Match records are committed; a failed notification does not undo them.
		log.Error("failed to dispatch notifications", zap.Error(err))
	}
	resp.NotificationsCreated = created
	run.NotifiedCount = created

	return resp, nil
}

func (s *MatchService) recordRun(log *zap.Logger, run *model.MatchRun) {
	finished := s.now()
	run.FinishedAt = &finished
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.RecordRun(ctx, run); err != nil {
		log.Warn("failed to record run", zap.Error(err))
	}
}

// ListMatches returns persisted records for a buyer.
func (s *MatchService) ListMatches(ctx context.Context, buyerID string, passed *bool) (*model.MatchListResponse, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, fmt.Errorf("%w: buyer_id is required", ErrInvalidInput)
	}
	records, err := s.store.ListMatches(ctx, buyerID, passed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &model.MatchListResponse{BuyerID: buyerID, Records: records, Total: len(records)}, nil
}

// ExclusionSummary aggregates a buyer's failing records by reason.
func (s *MatchService) ExclusionSummary(ctx context.Context, buyerID string) (*model.ExclusionSummaryResponse, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, fmt.Errorf("%w: buyer_id is required", ErrInvalidInput)
	}
	rows, err := s.store.ExclusionSummary(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &model.ExclusionSummaryResponse{BuyerID: buyerID, Exclusions: rows}, nil
}

// RecordFeedback stores an agent verdict used by later ranking calls.
func (s *MatchService) RecordFeedback(ctx context.Context, req model.FeedbackRequest) (*model.Feedback, error) {
	req.BuyerID = strings.TrimSpace(req.BuyerID)
	req.PropertyID = strings.TrimSpace(req.PropertyID)
	if req.BuyerID == "" || req.PropertyID == "" {
		return nil, fmt.Errorf("%w: buyer_id and property_id are required", ErrInvalidInput)
	}
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown feedback status %q", ErrInvalidInput, req.Status)
	}
	if _, err := s.store.GetBuyer(ctx, req.BuyerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrBuyerNotFound, req.BuyerID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	fb := &model.Feedback{
		BuyerID:    req.BuyerID,
		PropertyID: req.PropertyID,
		Status:     req.Status,
	}
	if agent := strings.TrimSpace(req.AgentID); agent != "" {
		fb.AgentID = &agent
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		fb.Note = &note
	}
	if err := s.store.InsertFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return fb, nil
}

// ListNotifications is the read-only view of an agent's notifications.
func (s *MatchService) ListNotifications(ctx context.Context, agentID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, fmt.Errorf("%w: agent_id is required", ErrInvalidInput)
	}
	out, err := s.store.ListNotifications(ctx, agentID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return out, nil
}

// ListRuns returns a buyer's newest runs.
func (s *MatchService) ListRuns(ctx context.Context, buyerID string, limit int) ([]model.MatchRun, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, fmt.Errorf("%w: buyer_id is required", ErrInvalidInput)
	}
	out, err := s.store.ListRuns(ctx, buyerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return out, nil
}

// UpdateEmbeddings stores externally computed vectors. Every vector must have
// dimensions entries when dimensions is positive.
func (s *MatchService) UpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem, dimensions int) *model.EmbeddingBatchResponse {
	valid := make([]model.EmbeddingItem, 0, len(items))
	var rejected []string
	for _, item := range items {
		if dimensions > 0 && len(item.Embedding) != dimensions {
			rejected = append(rejected, fmt.Sprintf("%s %s: expected %d dimensions, got %d", item.Kind, item.ID, dimensions, len(item.Embedding)))
			continue
		}
		valid = append(valid, item)
	}

	success := 0
	if len(valid) > 0 {
		var errs []string
		success, errs = s.store.BatchUpdateEmbeddings(ctx, valid)
		rejected = append(rejected, errs...)
	}
	return &model.EmbeddingBatchResponse{
		Success: success,
		Failed:  len(items) - success,
		Errors:  rejected,
	}
}
