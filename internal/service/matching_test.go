package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"matchengine/internal/lock"
	"matchengine/internal/model"
	"matchengine/internal/repository"
)

type matchFixture struct {
	store   *repository.Store
	oracle  *stubOracle
	sink    *recordingSink
	service *MatchService
}

func newMatchFixture(t *testing.T) *matchFixture {
	t.Helper()
	ctx := context.Background()

	store, err := repository.Open("sqlite", filepath.Join(t.TempDir(), "match.db")+"?_pragma=busy_timeout(5000)", 1, 1)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.Migrator().Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	buyer := &model.Buyer{ID: "dana", Name: "Dana", Criteria: telAvivCriteria(), TasteLiked: ptr("quiet streets")}
	if err := store.CreateBuyer(ctx, buyer); err != nil {
		t.Fatalf("create buyer: %v", err)
	}
	if err := store.LinkAgent(ctx, "dana", "agent-1"); err != nil {
		t.Fatalf("link agent: %v", err)
	}

	props := []*model.Property{
		{ID: "A", Address: "Herzl 10", City: "Tel Aviv", Price: ptr(1_400_000.0), Rooms: ptr(3.0), HasElevator: true},
		{ID: "B", Address: "Dizengoff 5", City: "Tel Aviv", Price: ptr(1_300_000.0), Rooms: ptr(4.0), HasElevator: false},
		{ID: "C", Address: "Hanamal 2", City: "Haifa", Price: ptr(1_200_000.0), Rooms: ptr(3.0), HasElevator: true},
	}
	for _, p := range props {
		if err := store.CreateProperty(ctx, p); err != nil {
			t.Fatalf("create property: %v", err)
		}
	}

	oracle := &stubOracle{response: `{"matches":[{"property_id":"A","score":82,"reason":"quiet street, good light"}]}`}
	sink := &recordingSink{}
	log := zap.NewNop()
	svc := NewMatchService(
		store,
		NewHardFilter(log),
		NewSoftRanker(oracle, nil, SoftRankerConfig{}, log),
		NewDispatcher(store, sink, log),
		lock.NewMemoryLocker(),
		log,
	)
	return &matchFixture{store: store, oracle: oracle, sink: sink, service: svc}
}

func (f *matchFixture) records(t *testing.T) map[string]model.MatchRecord {
	t.Helper()
	records, err := f.store.ListMatches(context.Background(), "dana", nil)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	out := make(map[string]model.MatchRecord, len(records))
	for _, r := range records {
		out[r.PropertyID] = r
	}
	return out
}

func TestRunSavesAndNotifies(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	resp, err := f.service.Match(ctx, model.MatchRequest{BuyerID: "dana"})
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	if resp.BuyerName != "Dana" || resp.TotalFiltered != 1 || resp.FailedCount != 2 || !resp.Saved {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].PropertyID != "A" || resp.Matches[0].MatchScore != 82 {
		t.Fatalf("unexpected matches: %+v", resp.Matches)
	}
	if resp.Matches[0].Property == nil || resp.Matches[0].Property.Address != "Herzl 10" {
		t.Fatalf("property not denormalized: %+v", resp.Matches[0])
	}
	if resp.NotificationsCreated != 1 || len(f.sink.events) != 1 {
		t.Fatalf("expected one notification, got %d (%d published)", resp.NotificationsCreated, len(f.sink.events))
	}
	if resp.FiltersApplied.BudgetMax == nil || *resp.FiltersApplied.BudgetMax != 1_500_000 {
		t.Fatalf("filters not echoed: %+v", resp.FiltersApplied)
	}

	records := f.records(t)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if a := records["A"]; !a.HardFilterPassed || *a.MatchScore != 82 {
		t.Fatalf("unexpected record A: %+v", a)
	}
	if b := records["B"]; b.HardFilterPassed || b.MatchReason != "no elevator" {
		t.Fatalf("unexpected record B: %+v", b)
	}
	if c := records["C"]; c.HardFilterPassed || c.MatchReason != "city not targeted: Haifa" {
		t.Fatalf("unexpected record C: %+v", c)
	}

	notes, err := f.store.ListNotifications(ctx, "agent-1", false, 0)
	if err != nil || len(notes) != 1 || notes[0].PropertyID != "A" || notes[0].RunID != resp.RunID {
		t.Fatalf("unexpected notifications: %+v, %v", notes, err)
	}

	runs, err := f.store.ListRuns(ctx, "dana", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run, got %+v, %v", runs, err)
	}
	if r := runs[0]; r.Status != model.RunStatusSucceeded || !r.Saved || r.PassedCount != 1 || r.FailedCount != 2 || r.NotifiedCount != 1 {
		t.Fatalf("unexpected run row: %+v", r)
	}

	// A second identical run converges on the same records and notifies again.
	again, err := f.service.Match(ctx, model.MatchRequest{BuyerID: "dana"})
	if err != nil {
		t.Fatalf("second match: %v", err)
	}
	if len(f.records(t)) != 3 || again.NotificationsCreated != 1 {
		t.Fatalf("second run did not converge: %+v", again)
	}
}

func TestRunPreviewWritesNothing(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	resp, err := f.service.Match(ctx, model.MatchRequest{BuyerID: "dana", SaveResults: ptr(false)})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if resp.Saved || len(resp.Matches) != 1 || resp.NotificationsCreated != 0 {
		t.Fatalf("unexpected preview response: %+v", resp)
	}
	if len(f.records(t)) != 0 {
		t.Fatalf("preview persisted match records")
	}
	if notes, _ := f.store.ListNotifications(ctx, "agent-1", false, 0); len(notes) != 0 {
		t.Fatalf("preview created notifications")
	}
}

func TestRunWithoutTasteProfile(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()
	if err := f.store.CreateBuyer(ctx, &model.Buyer{ID: "plain", Name: "Plain", Criteria: telAvivCriteria()}); err != nil {
		t.Fatalf("create buyer: %v", err)
	}

	preview, err := f.service.Run(ctx, RunRequest{BuyerID: "plain"})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.Message != NoTasteProfileMessage || preview.Saved {
		t.Fatalf("unexpected preview: %+v", preview)
	}
	if records, _ := f.store.ListMatches(ctx, "plain", nil); len(records) != 0 {
		t.Fatalf("preview persisted records: %+v", records)
	}

	resp, err := f.service.Run(ctx, RunRequest{BuyerID: "plain", Save: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.Message != NoTasteProfileMessage || len(resp.Matches) != 0 || !resp.Saved {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.TotalFiltered != 1 || resp.FailedCount != 2 {
		t.Fatalf("filter counts missing: %+v", resp)
	}
	if f.oracle.calls != 0 {
		t.Fatalf("oracle called without taste profile")
	}

	records, err := f.store.ListMatches(ctx, "plain", nil)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected the two exclusions only, got %+v", records)
	}
	for _, r := range records {
		if r.HardFilterPassed || r.MatchReason == "" {
			t.Fatalf("unexpected record: %+v", r)
		}
	}
	if len(f.sink.events) != 0 {
		t.Fatalf("notification published without ranking")
	}

	runs, _ := f.store.ListRuns(ctx, "plain", 10)
	if len(runs) != 2 || runs[0].Status != model.RunStatusNoTasteProfile {
		t.Fatalf("unexpected run rows: %+v", runs)
	}
}

func TestCriteriaChangeWithoutTasteClearsStalePass(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()
	if err := f.store.CreateBuyer(ctx, &model.Buyer{ID: "plain", Name: "Plain", Criteria: telAvivCriteria()}); err != nil {
		t.Fatalf("create buyer: %v", err)
	}
	// A passing record left by an earlier ranked run.
	if _, err := f.store.Reconcile(ctx, "plain", nil, []model.RankedMatch{
		{PropertyID: "A", Score: 82, Reason: "quiet street, good light"},
	}); err != nil {
		t.Fatalf("seed reconcile: %v", err)
	}

	resp, err := f.service.UpdateCriteria(ctx, "plain", model.Criteria{TargetCities: model.StringSet{"Haifa"}})
	if err != nil {
		t.Fatalf("update criteria: %v", err)
	}
	if !resp.Saved || resp.Message != NoTasteProfileMessage || resp.FailedCount != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	records, err := f.store.ListMatches(ctx, "plain", nil)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	byID := make(map[string]model.MatchRecord, len(records))
	for _, r := range records {
		byID[r.PropertyID] = r
	}
	a, ok := byID["A"]
	if !ok || a.HardFilterPassed || !strings.HasPrefix(a.MatchReason, "city not targeted") {
		t.Fatalf("A should be a failing record now: %+v", a)
	}
	if c, ok := byID["C"]; ok && c.HardFilterPassed {
		t.Fatalf("unranked pass persisted: %+v", c)
	}
}

func TestRunOracleFailureKeepsExistingRecords(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	if _, err := f.service.Match(ctx, model.MatchRequest{BuyerID: "dana"}); err != nil {
		t.Fatalf("match: %v", err)
	}
	before := f.records(t)

	f.oracle.err = &OracleError{Kind: ErrRateLimited, Provider: "stub", StatusCode: 429, Err: errors.New("slow down")}
	_, err := f.service.Match(ctx, model.MatchRequest{BuyerID: "dana"})
	if !errors.Is(err, ErrRateLimited) || !IsRetryable(err) {
		t.Fatalf("expected retryable rate limit, got %v", err)
	}

	after := f.records(t)
	if len(after) != len(before) || !after["A"].UpdatedAt.Equal(before["A"].UpdatedAt) {
		t.Fatalf("records changed after oracle failure")
	}
	runs, _ := f.store.ListRuns(ctx, "dana", 10)
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	var failed int
	for _, r := range runs {
		if r.Status == model.RunStatusFailed && r.Error != nil {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected one failed run row, got %+v", runs)
	}
}

func TestRunMalformedOutputClearsPasses(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	if _, err := f.service.Match(ctx, model.MatchRequest{BuyerID: "dana"}); err != nil {
		t.Fatalf("match: %v", err)
	}
	f.oracle.response = "not json"
	resp, err := f.service.Match(ctx, model.MatchRequest{BuyerID: "dana"})
	if err != nil {
		t.Fatalf("malformed output must not fail the run: %v", err)
	}
	if len(resp.Matches) != 0 || !resp.Saved {
		t.Fatalf("unexpected response: %+v", resp)
	}
	records := f.records(t)
	if _, ok := records["A"]; ok {
		t.Fatalf("stale passing record A kept")
	}
	if len(records) != 2 {
		t.Fatalf("failing records should remain, got %d", len(records))
	}
}

func TestRunSkipsAssignedProperties(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()
	if err := f.store.MarkAssigned(ctx, "dana", "A"); err != nil {
		t.Fatalf("mark assigned: %v", err)
	}

	resp, err := f.service.Match(ctx, model.MatchRequest{BuyerID: "dana"})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if resp.TotalFiltered != 0 || resp.FailedCount != 2 || len(resp.Matches) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if f.oracle.calls != 0 {
		t.Fatalf("oracle called with no passing candidates")
	}
}

func TestRunInputErrors(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	if _, err := f.service.Run(ctx, RunRequest{BuyerID: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := f.service.Run(ctx, RunRequest{BuyerID: "ghost", Save: true}); !errors.Is(err, ErrBuyerNotFound) {
		t.Fatalf("expected buyer not found, got %v", err)
	}
	if runs, _ := f.store.ListRuns(ctx, "ghost", 10); len(runs) != 0 {
		t.Fatalf("unknown buyer left a run row")
	}

	inverted := model.Criteria{BudgetMin: ptr(2_000_000.0), BudgetMax: ptr(1_000_000.0)}
	if _, err := f.service.UpdateCriteria(ctx, "dana", inverted); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for inverted budget, got %v", err)
	}
	if _, err := f.service.UpdateCriteria(ctx, "ghost", model.Criteria{}); !errors.Is(err, ErrBuyerNotFound) {
		t.Fatalf("expected buyer not found, got %v", err)
	}
}

func TestUpdateCriteriaRerunsMatching(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	if _, err := f.service.Match(ctx, model.MatchRequest{BuyerID: "dana"}); err != nil {
		t.Fatalf("match: %v", err)
	}

	f.oracle.response = `{"matches":[{"property_id":"C","score":75,"reason":"sea view"}]}`
	resp, err := f.service.UpdateCriteria(ctx, "dana", model.Criteria{
		TargetCities: model.StringSet{" haifa ", "Haifa"},
		MinRooms:     ptr(3.0),
	})
	if err != nil {
		t.Fatalf("update criteria: %v", err)
	}
	if len(resp.FiltersApplied.TargetCities) != 1 {
		t.Fatalf("criteria not normalized: %v", resp.FiltersApplied.TargetCities)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].PropertyID != "C" {
		t.Fatalf("unexpected matches: %+v", resp.Matches)
	}

	records := f.records(t)
	if _, ok := records["A"]; !ok || records["A"].HardFilterPassed {
		t.Fatalf("A should now be a failing record: %+v", records["A"])
	}
	if c := records["C"]; !c.HardFilterPassed || *c.MatchScore != 75 {
		t.Fatalf("unexpected record C: %+v", c)
	}

	runs, _ := f.store.ListRuns(ctx, "dana", 10)
	var triggered bool
	for _, r := range runs {
		if r.Trigger == model.TriggerCriteriaChanged {
			triggered = true
		}
	}
	if !triggered {
		t.Fatalf("criteria change run not recorded: %+v", runs)
	}
}

func TestOnCriteriaChangedAlwaysSaves(t *testing.T) {
	f := newMatchFixture(t)
	err := f.service.OnCriteriaChanged(context.Background(), model.CriteriaChangedEvent{EventID: "e1", BuyerID: "dana"})
	if err != nil {
		t.Fatalf("on criteria changed: %v", err)
	}
	if len(f.records(t)) != 3 {
		t.Fatalf("event-driven run did not persist")
	}
}

func TestRecordFeedback(t *testing.T) {
	f := newMatchFixture(t)
	ctx := context.Background()

	fb, err := f.service.RecordFeedback(ctx, model.FeedbackRequest{BuyerID: "dana", PropertyID: "B", AgentID: "agent-1", Status: model.FeedbackNotInterested, Note: " noisy "})
	if err != nil {
		t.Fatalf("record feedback: %v", err)
	}
	if fb.ID == 0 || fb.Note == nil || *fb.Note != "noisy" {
		t.Fatalf("unexpected feedback: %+v", fb)
	}

	if _, err := f.service.RecordFeedback(ctx, model.FeedbackRequest{BuyerID: "dana", PropertyID: "B", Status: "maybe"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := f.service.RecordFeedback(ctx, model.FeedbackRequest{BuyerID: "ghost", PropertyID: "B", Status: model.FeedbackVisited}); !errors.Is(err, ErrBuyerNotFound) {
		t.Fatalf("expected buyer not found, got %v", err)
	}

	// Feedback reaches the next ranking prompt.
	if _, err := f.service.Match(ctx, model.MatchRequest{BuyerID: "dana", SaveResults: ptr(false)}); err != nil {
		t.Fatalf("match: %v", err)
	}
	if last := f.oracle.prompts[len(f.oracle.prompts)-1]; !containsAll(last, "Dizengoff 5", "noisy") {
		t.Fatalf("feedback missing from prompt:\n%s", last)
	}
}

func TestUpdateEmbeddingsChecksDimensions(t *testing.T) {
	f := newMatchFixture(t)

	resp := f.service.UpdateEmbeddings(context.Background(), []model.EmbeddingItem{
		{Kind: model.EmbeddingKindProperty, ID: "A", Embedding: []float32{1, 0, 0}},
		{Kind: model.EmbeddingKindProperty, ID: "B", Embedding: []float32{1, 0}},
		{Kind: model.EmbeddingKindBuyer, ID: "ghost", Embedding: []float32{1, 0, 0}},
	}, 3)
	if resp.Success != 1 || resp.Failed != 2 || len(resp.Errors) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
