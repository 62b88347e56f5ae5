package services

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/assetlens/backend/internal/models"
)

type fakeFeedbackStore struct {
	mu       sync.Mutex
	records  map[uint]*models.Feedback
	verdicts map[uint]*PolicyVerdict
	forced   int
}

func newFakeFeedbackStore(records ...*models.Feedback) *fakeFeedbackStore {
	s := &fakeFeedbackStore{
		records:  make(map[uint]*models.Feedback),
		verdicts: make(map[uint]*PolicyVerdict),
	}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

func (s *fakeFeedbackStore) GetByID(id uint) (*models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrFeedbackNotFound
	}
	return r, nil
}

func (s *fakeFeedbackStore) MarkAnalyzed(id uint, verdict *PolicyVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return ErrFeedbackNotFound
	}
	if r.Analyzed {
		if reflect.DeepEqual(s.verdicts[id], verdict) {
			return nil
		}
		return ErrVerdictConflict
	}
	now := time.Now()
	r.Analyzed = true
	r.AnalyzedAt = &now
	s.verdicts[id] = verdict
	return nil
}

func (s *fakeFeedbackStore) ForceMarkAnalyzed(id uint, verdict *PolicyVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return ErrFeedbackNotFound
	}
	now := time.Now()
	r.Analyzed = true
	r.AnalyzedAt = &now
	s.verdicts[id] = verdict
	s.forced++
	return nil
}

func (s *fakeFeedbackStore) ListEligible(includeAnalyzed bool, batchSize int, fn func(*models.Feedback) error) error {
	s.mu.Lock()
	var eligible []*models.Feedback
	for _, r := range s.records {
		if r.Rating != models.RatingNegative || r.Comment == "" {
			continue
		}
		if !includeAnalyzed && r.Analyzed {
			continue
		}
		eligible = append(eligible, r)
	}
	s.mu.Unlock()

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })
	for _, r := range eligible {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

type fakePolicyProvider struct {
	policies []MergedPolicy
	err      error
}

func (p *fakePolicyProvider) ActiveMerged() ([]MergedPolicy, error) {
	return p.policies, p.err
}

type fakeGenerator struct {
	mu       sync.Mutex
	verdict  *PolicyVerdict
	errs     []error // consumed one per call; nil entry means success
	calls    int
	lastSeen []MergedPolicy
}

func (g *fakeGenerator) Generate(ctx context.Context, ac *AnalysisContext, existing []MergedPolicy) (*PolicyVerdict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastSeen = existing
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return g.verdict, nil
}

func negativeFeedback(id uint) *models.Feedback {
	return &models.Feedback{
		ID:              id,
		Question:        "why is the laptop count wrong",
		Comment:         "includes decommissioned devices",
		Rating:          models.RatingNegative,
		ResponsePayload: `{"answer":"1200 laptops"}`,
	}
}

func newTestPipeline(store FeedbackStore, gen VerdictGenerator) *Pipeline {
	p := NewPipeline(store, &fakePolicyProvider{}, gen)
	p.SetRetryPolicy(3, 0)
	return p
}

func TestProcessGenerationTask_NewPolicy(t *testing.T) {
	store := newFakeFeedbackStore(negativeFeedback(1))
	gen := &fakeGenerator{verdict: &PolicyVerdict{
		Category: "accuracy", Rule: "r", Priority: "high", Rationale: "because",
	}}
	p := newTestPipeline(store, gen)

	result, err := p.ProcessGenerationTask(context.Background(), &GenerationTask{FeedbackID: 1})
	if err != nil {
		t.Fatalf("ProcessGenerationTask() error = %v", err)
	}
	if result.Status != JobSuccess {
		t.Errorf("Status = %q, expected success", result.Status)
	}
	if !store.records[1].Analyzed {
		t.Error("record should be marked analyzed")
	}
	if store.verdicts[1] == nil || store.verdicts[1].Rule != "r" {
		t.Error("verdict should be recorded")
	}
}

func TestProcessGenerationTask_DuplicateSkip(t *testing.T) {
	store := newFakeFeedbackStore(negativeFeedback(1))
	gen := &fakeGenerator{verdict: &PolicyVerdict{Skip: true, Reason: "already covered"}}
	p := newTestPipeline(store, gen)

	result, err := p.ProcessGenerationTask(context.Background(), &GenerationTask{FeedbackID: 1})
	if err != nil {
		t.Fatalf("ProcessGenerationTask() error = %v", err)
	}
	if result.Status != JobSkipped {
		t.Errorf("Status = %q, expected skipped", result.Status)
	}
	if result.Reason != "already covered" {
		t.Errorf("Reason = %q", result.Reason)
	}
	// A skip is a successful terminal outcome: the record is done.
	if !store.records[1].Analyzed {
		t.Error("skip verdict should still mark the record analyzed")
	}
}

func TestProcessGenerationTask_AlreadyAnalyzed(t *testing.T) {
	record := negativeFeedback(1)
	record.Analyzed = true
	store := newFakeFeedbackStore(record)
	gen := &fakeGenerator{verdict: &PolicyVerdict{Skip: true, Reason: "x"}}
	p := newTestPipeline(store, gen)

	result, err := p.ProcessGenerationTask(context.Background(), &GenerationTask{FeedbackID: 1})
	if err != nil {
		t.Fatalf("ProcessGenerationTask() error = %v", err)
	}
	if result.Status != JobSkipped || result.Reason != "already_analyzed" {
		t.Errorf("result = %+v, expected already_analyzed skip", result)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times for an analyzed record, expected 0", gen.calls)
	}
}

func TestProcessGenerationTask_NotEligible(t *testing.T) {
	record := negativeFeedback(1)
	record.Comment = ""
	store := newFakeFeedbackStore(record)
	gen := &fakeGenerator{}
	p := newTestPipeline(store, gen)

	result, err := p.ProcessGenerationTask(context.Background(), &GenerationTask{FeedbackID: 1})
	if err != nil {
		t.Fatalf("ProcessGenerationTask() error = %v", err)
	}
	if result.Status != JobSkipped || result.Reason != "not_eligible" {
		t.Errorf("result = %+v, expected not_eligible skip", result)
	}
}

func TestProcessGenerationTask_RetriesThenSucceeds(t *testing.T) {
	store := newFakeFeedbackStore(negativeFeedback(1))
	gen := &fakeGenerator{
		verdict: &PolicyVerdict{Skip: true, Reason: "dup"},
		errs: []error{
			&GenerationFailedError{Err: errors.New("timeout")},
			&GenerationFailedError{Err: errors.New("timeout")},
			nil,
		},
	}
	p := newTestPipeline(store, gen)

	result, err := p.ProcessGenerationTask(context.Background(), &GenerationTask{FeedbackID: 1})
	if err != nil {
		t.Fatalf("ProcessGenerationTask() error = %v", err)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, expected 3", gen.calls)
	}
	if result.Status != JobSkipped {
		t.Errorf("Status = %q", result.Status)
	}
}

func TestProcessGenerationTask_FailOpenAfterRetries(t *testing.T) {
	store := newFakeFeedbackStore(negativeFeedback(1))
	gen := &fakeGenerator{
		errs: []error{
			&GenerationFailedError{Err: errors.New("timeout")},
			&GenerationFailedError{Err: errors.New("timeout")},
			&GenerationFailedError{Err: errors.New("timeout")},
		},
	}
	p := newTestPipeline(store, gen)

	result, err := p.ProcessGenerationTask(context.Background(), &GenerationTask{FeedbackID: 1})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !IsGenerationFailed(err) {
		t.Errorf("expected GenerationFailedError, got %T", err)
	}
	if result.Status != JobError {
		t.Errorf("Status = %q, expected error", result.Status)
	}
	if gen.calls != 3 {
		t.Errorf("generator calls = %d, expected 3", gen.calls)
	}
	// Fail open: the record stays unanalyzed and can be retried later.
	if store.records[1].Analyzed {
		t.Error("record should remain unanalyzed after failure")
	}
}

func TestProcessGenerationTask_MalformedPayloadNotRetried(t *testing.T) {
	record := negativeFeedback(1)
	record.ResponsePayload = "{broken"
	store := newFakeFeedbackStore(record)
	gen := &fakeGenerator{}
	p := newTestPipeline(store, gen)

	result, err := p.ProcessGenerationTask(context.Background(), &GenerationTask{FeedbackID: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsMalformedPayload(err) {
		t.Errorf("expected MalformedPayloadError, got %T", err)
	}
	if result.Status != JobError {
		t.Errorf("Status = %q", result.Status)
	}
	if gen.calls != 0 {
		t.Errorf("generator calls = %d, expected 0 for malformed payload", gen.calls)
	}
	if store.records[1].Analyzed {
		t.Error("malformed record should stay unanalyzed for manual review")
	}
}

func TestHandleTask_SwallowsPermanentFailures(t *testing.T) {
	record := negativeFeedback(1)
	record.ResponsePayload = "{broken"
	store := newFakeFeedbackStore(record)
	p := newTestPipeline(store, &fakeGenerator{})

	// Malformed payload is permanent; the queue must not redeliver.
	if err := p.HandleTask(context.Background(), &GenerationTask{FeedbackID: 1}); err != nil {
		t.Errorf("HandleTask() error = %v, expected nil for permanent failure", err)
	}
}

func TestHandleTask_PropagatesTransientFailures(t *testing.T) {
	store := newFakeFeedbackStore(negativeFeedback(1))
	gen := &fakeGenerator{
		errs: []error{
			&GenerationFailedError{Err: errors.New("timeout")},
			&GenerationFailedError{Err: errors.New("timeout")},
			&GenerationFailedError{Err: errors.New("timeout")},
		},
	}
	p := newTestPipeline(store, gen)

	if err := p.HandleTask(context.Background(), &GenerationTask{FeedbackID: 1}); err == nil {
		t.Error("HandleTask() should propagate transient failures for queue redelivery")
	}
}

func TestProcessGenerationTask_PassesActivePoliciesToGenerator(t *testing.T) {
	store := newFakeFeedbackStore(negativeFeedback(1))
	gen := &fakeGenerator{verdict: &PolicyVerdict{Skip: true, Reason: "dup"}}
	p := NewPipeline(store, &fakePolicyProvider{policies: []MergedPolicy{
		{Rule: "existing rule", Priority: "high", Category: "accuracy"},
	}}, gen)
	p.SetRetryPolicy(1, 0)

	if _, err := p.ProcessGenerationTask(context.Background(), &GenerationTask{FeedbackID: 1}); err != nil {
		t.Fatalf("ProcessGenerationTask() error = %v", err)
	}
	if len(gen.lastSeen) != 1 || gen.lastSeen[0].Rule != "existing rule" {
		t.Errorf("generator saw policies %+v, expected the active set", gen.lastSeen)
	}
}

func TestRegenerateAll_PerRecordIsolation(t *testing.T) {
	records := []*models.Feedback{
		negativeFeedback(1),
		negativeFeedback(2),
		negativeFeedback(3),
		negativeFeedback(4),
		negativeFeedback(5),
	}
	records[2].ResponsePayload = "{broken" // third record is malformed
	records[4].Analyzed = true            // analyzed records are reprocessed too

	store := newFakeFeedbackStore(records...)
	gen := &fakeGenerator{verdict: &PolicyVerdict{
		Category: "accuracy", Rule: "r", Priority: "medium", Rationale: "because",
	}}
	p := newTestPipeline(store, gen)

	report, err := p.RegenerateAll(context.Background())
	if err != nil {
		t.Fatalf("RegenerateAll() error = %v", err)
	}

	if report.Processed != 5 {
		t.Errorf("Processed = %d, expected 5", report.Processed)
	}
	if report.Succeeded != 4 {
		t.Errorf("Succeeded = %d, expected 4", report.Succeeded)
	}
	if report.Failed != 1 {
		t.Errorf("Failed = %d, expected 1", report.Failed)
	}
	if len(report.Errors) != 1 || report.Errors[0].FeedbackID != 3 {
		t.Errorf("Errors = %+v, expected one error for record 3", report.Errors)
	}
	if store.records[3].Analyzed {
		t.Error("failed record should stay unanalyzed")
	}
	if store.forced != 4 {
		t.Errorf("forced writes = %d, expected 4", store.forced)
	}
}

func TestSetRetryPolicy_SafeDuringRunningJobs(t *testing.T) {
	records := make([]*models.Feedback, 0, 50)
	for i := uint(1); i <= 50; i++ {
		records = append(records, negativeFeedback(i))
	}
	store := newFakeFeedbackStore(records...)
	gen := &fakeGenerator{verdict: &PolicyVerdict{Skip: true, Reason: "dup"}}
	p := newTestPipeline(store, gen)

	// Admin updates the retry settings while worker goroutines are
	// mid-job; the race detector flags any unsynchronized access.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			p.SetRetryPolicy(1+i%5, 0)
		}
	}()

	for i := uint(1); i <= 50; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			if _, err := p.ProcessGenerationTask(context.Background(), &GenerationTask{FeedbackID: id}); err != nil {
				t.Errorf("ProcessGenerationTask(%d) error = %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	for i := uint(1); i <= 50; i++ {
		if !store.records[i].Analyzed {
			t.Errorf("record %d should be analyzed", i)
		}
	}
}

func TestRegenerateAll_OverwritesPriorVerdicts(t *testing.T) {
	record := negativeFeedback(1)
	record.Analyzed = true
	store := newFakeFeedbackStore(record)
	store.verdicts[1] = &PolicyVerdict{Skip: true, Reason: "old verdict"}

	gen := &fakeGenerator{verdict: &PolicyVerdict{
		Category: "clarity", Rule: "new rule", Priority: "low", Rationale: "fresh look",
	}}
	p := newTestPipeline(store, gen)

	report, err := p.RegenerateAll(context.Background())
	if err != nil {
		t.Fatalf("RegenerateAll() error = %v", err)
	}
	if report.Succeeded != 1 {
		t.Errorf("Succeeded = %d, expected 1", report.Succeeded)
	}
	if store.verdicts[1].Rule != "new rule" {
		t.Errorf("stored verdict = %+v, expected overwrite", store.verdicts[1])
	}
}
