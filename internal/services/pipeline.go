package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/assetlens/backend/internal/models"
	"github.com/assetlens/backend/pkg/logger"
)

// FeedbackStore is the persistence seam the pipeline needs. FeedbackService
// implements it in production; tests use in-memory fakes.
type FeedbackStore interface {
	GetByID(id uint) (*models.Feedback, error)
	MarkAnalyzed(id uint, verdict *PolicyVerdict) error
	ForceMarkAnalyzed(id uint, verdict *PolicyVerdict) error
	ListEligible(includeAnalyzed bool, batchSize int, fn func(*models.Feedback) error) error
}

// PolicyProvider supplies the current merged policy set for duplicate
// detection at generation time.
type PolicyProvider interface {
	ActiveMerged() ([]MergedPolicy, error)
}

// VerdictGenerator produces a verdict for one analysis context.
type VerdictGenerator interface {
	Generate(ctx context.Context, ac *AnalysisContext, existing []MergedPolicy) (*PolicyVerdict, error)
}

// Job outcome states.
const (
	JobSuccess = "success"
	JobSkipped = "skipped"
	JobError   = "error"
)

// JobResult is the structured outcome of one generation job.
type JobResult struct {
	FeedbackID uint           `json:"feedback_id"`
	Status     string         `json:"status"` // success, skipped, error
	Reason     string         `json:"reason,omitempty"`
	Verdict    *PolicyVerdict `json:"verdict,omitempty"`
}

// Pipeline runs feedback records through context building, policy
// generation, and verdict recording.
type Pipeline struct {
	store     FeedbackStore
	policies  PolicyProvider
	generator VerdictGenerator

	// retryMu guards the retry settings: admins update them at runtime
	// while worker goroutines are mid-job.
	retryMu     sync.Mutex
	maxAttempts int
	baseBackoff time.Duration
}

func NewPipeline(store FeedbackStore, policies PolicyProvider, generator VerdictGenerator) *Pipeline {
	return &Pipeline{
		store:       store,
		policies:    policies,
		generator:   generator,
		maxAttempts: 3,
		baseBackoff: 2 * time.Second,
	}
}

// SetRetryPolicy overrides the in-job retry budget for transient generation
// failures. Attempts below 1 are clamped to 1. Safe to call while jobs are
// running; in-flight jobs keep the settings they started with.
func (p *Pipeline) SetRetryPolicy(maxAttempts int, baseBackoff time.Duration) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseBackoff < 0 {
		baseBackoff = 0
	}
	p.retryMu.Lock()
	p.maxAttempts = maxAttempts
	p.baseBackoff = baseBackoff
	p.retryMu.Unlock()
}

// retryPolicy snapshots the current settings so one job sees a consistent
// attempt count and backoff even if an admin changes them mid-run.
func (p *Pipeline) retryPolicy() (int, time.Duration) {
	p.retryMu.Lock()
	defer p.retryMu.Unlock()
	return p.maxAttempts, p.baseBackoff
}

// HandleTask adapts the pipeline to the queue processor signature. Transient
// generation failures propagate so the queue redelivers; permanent failures
// (malformed payload) are logged and swallowed, leaving the record
// unanalyzed for manual review.
func (p *Pipeline) HandleTask(ctx context.Context, task *GenerationTask) error {
	result, err := p.ProcessGenerationTask(ctx, task)
	if err != nil {
		if IsGenerationFailed(err) {
			return err
		}
		logger.Warnf("[Pipeline] Feedback %d not analyzed: %v", task.FeedbackID, err)
		return nil
	}
	logger.Infof("[Pipeline] Feedback %d processed: status=%s reason=%s", result.FeedbackID, result.Status, result.Reason)
	return nil
}

// ProcessGenerationTask runs one generation job. It re-checks the analyzed
// flag first so redelivered tasks are no-ops, retries transient generation
// failures with exponential backoff, and fails open: after exhausting
// retries the record simply stays unanalyzed.
func (p *Pipeline) ProcessGenerationTask(ctx context.Context, task *GenerationTask) (*JobResult, error) {
	result := &JobResult{FeedbackID: task.FeedbackID}

	feedback, err := p.store.GetByID(task.FeedbackID)
	if err != nil {
		result.Status = JobError
		result.Reason = err.Error()
		return result, err
	}

	if feedback.Analyzed {
		result.Status = JobSkipped
		result.Reason = "already_analyzed"
		return result, nil
	}
	if !feedback.EligibleForAnalysis() {
		result.Status = JobSkipped
		result.Reason = "not_eligible"
		return result, nil
	}

	verdict, err := p.analyze(ctx, feedback)
	if err != nil {
		result.Status = JobError
		result.Reason = err.Error()
		return result, err
	}

	if err := p.store.MarkAnalyzed(feedback.ID, verdict); err != nil {
		result.Status = JobError
		result.Reason = err.Error()
		return result, err
	}

	result.Verdict = verdict
	if verdict.Skip {
		result.Status = JobSkipped
		result.Reason = verdict.Reason
	} else {
		result.Status = JobSuccess
	}
	return result, nil
}

// analyze builds the context, snapshots the current policy set, and calls
// the generator with bounded retries.
func (p *Pipeline) analyze(ctx context.Context, feedback *models.Feedback) (*PolicyVerdict, error) {
	ac, err := BuildAnalysisContext(feedback)
	if err != nil {
		return nil, err
	}

	existing, err := p.policies.ActiveMerged()
	if err != nil {
		return nil, fmt.Errorf("failed to load active policies: %w", err)
	}

	maxAttempts, baseBackoff := p.retryPolicy()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		verdict, err := p.generator.Generate(ctx, ac, existing)
		if err == nil {
			return verdict, nil
		}
		lastErr = err

		if !IsGenerationFailed(err) {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		backoff := baseBackoff << (attempt - 1)
		logger.Warnf("[Pipeline] Generation attempt %d/%d for feedback %d failed: %v (retrying in %s)",
			attempt, maxAttempts, feedback.ID, err, backoff)
		select {
		case <-ctx.Done():
			return nil, &GenerationFailedError{Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

// BatchError records one failed record inside a batch run.
type BatchError struct {
	FeedbackID uint   `json:"feedback_id"`
	Error      string `json:"error"`
}

// BatchReport aggregates a regenerate-all run.
type BatchReport struct {
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
	Errors    []BatchError `json:"errors,omitempty"`
}

// RegenerateAll reprocesses every negative, explained feedback record from
// scratch, ignoring the analyzed flag. Each record is isolated: one failure
// is recorded and the batch moves on. Prior verdicts are overwritten, which
// is the admin escape hatch for verdicts gone stale after the policy set or
// the model changed.
func (p *Pipeline) RegenerateAll(ctx context.Context) (*BatchReport, error) {
	report := &BatchReport{}

	err := p.store.ListEligible(true, 100, func(feedback *models.Feedback) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.Processed++

		verdict, err := p.analyze(ctx, feedback)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, BatchError{FeedbackID: feedback.ID, Error: err.Error()})
			logger.Warnf("[Pipeline] Regenerate failed for feedback %d: %v", feedback.ID, err)
			return nil
		}

		if err := p.store.ForceMarkAnalyzed(feedback.ID, verdict); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, BatchError{FeedbackID: feedback.ID, Error: err.Error()})
			return nil
		}

		if verdict.Skip {
			report.Skipped++
		} else {
			report.Succeeded++
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	logger.Infof("[Pipeline] Regenerate-all complete: processed=%d succeeded=%d skipped=%d failed=%d",
		report.Processed, report.Succeeded, report.Skipped, report.Failed)
	return report, nil
}
