package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/assetlens/backend/internal/models"
	"github.com/assetlens/backend/pkg/logger"
)

// DigestService generates and delivers the daily pipeline activity summary.
// The scheduler fires on business days only, honoring the configured country
// calendar.
type DigestService struct {
	db                  *gorm.DB
	feedbackService     *FeedbackService
	policyService       *PolicyService
	aiService           *AIService
	notificationService *NotificationService
	configService       *SystemConfigService
	workdayService      *WorkdayService
	cronScheduler *cron.Cron

	// scheduleMu guards currentEntryID: concurrent admin config updates
	// both call RefreshSchedule.
	scheduleMu     sync.Mutex
	currentEntryID cron.EntryID
}

func NewDigestService(
	db *gorm.DB,
	feedbackService *FeedbackService,
	policyService *PolicyService,
	aiService *AIService,
	notificationService *NotificationService,
	workdayService *WorkdayService,
) *DigestService {
	return &DigestService{
		db:                  db,
		feedbackService:     feedbackService,
		policyService:       policyService,
		aiService:           aiService,
		notificationService: notificationService,
		configService:       NewSystemConfigService(db),
		workdayService:      workdayService,
	}
}

func (s *DigestService) StartScheduler() {
	s.cronScheduler = cron.New()
	s.updateSchedule()
	s.cronScheduler.Start()
	logger.Infof("[Digest] Scheduler started")
}

func (s *DigestService) StopScheduler() {
	if s.cronScheduler != nil {
		s.cronScheduler.Stop()
	}
}

// RefreshSchedule re-reads the configured digest time. Called after an admin
// changes digest settings.
func (s *DigestService) RefreshSchedule() {
	if s.cronScheduler == nil {
		return
	}
	s.updateSchedule()
}

func (s *DigestService) updateSchedule() {
	s.applySchedule(s.configService.GetWithDefault("digest_time", "18:00"))
}

// applySchedule swaps the cron entry for the given HH:MM digest time. The
// old entry is removed under the same lock that publishes the new one, so
// concurrent refreshes cannot leave two entries behind.
func (s *DigestService) applySchedule(digestTime string) {
	parts := strings.Split(digestTime, ":")
	hour := "18"
	minute := "0"
	if len(parts) == 2 {
		hour = parts[0]
		minute = parts[1]
	}

	cronExpr := fmt.Sprintf("%s %s * * *", minute, hour)

	s.scheduleMu.Lock()
	defer s.scheduleMu.Unlock()

	if s.currentEntryID != 0 {
		s.cronScheduler.Remove(s.currentEntryID)
	}

	entryID, err := s.cronScheduler.AddFunc(cronExpr, func() {
		s.runScheduled()
	})
	if err != nil {
		logger.Errorf("[Digest] Failed to add cron job: %v", err)
		s.currentEntryID = 0
		return
	}

	s.currentEntryID = entryID
	logger.Infof("[Digest] Scheduled at %s (cron: %s)", digestTime, cronExpr)
}

func (s *DigestService) runScheduled() {
	if s.configService.GetWithDefault("digest_enabled", "false") != "true" {
		logger.Debugf("[Digest] Digest disabled, skipping")
		return
	}

	country := s.configService.GetWithDefault("digest_country", "CN")
	if !s.workdayService.IsWorkday(time.Now(), country) {
		logger.Infof("[Digest] Not a workday in %s, skipping", country)
		return
	}

	if err := s.GenerateAndSend(); err != nil {
		logger.Errorf("[Digest] Scheduled run failed: %v", err)
	}
}

// GenerateAndSend builds today's digest, persists it, and pushes it to the
// digest-enabled bots.
func (s *DigestService) GenerateAndSend() error {
	digest, err := s.Generate()
	if err != nil {
		return err
	}

	title := fmt.Sprintf("Feedback Pipeline Digest - %s", digest.DigestDate.Format("2006-01-02"))
	if err := s.notificationService.SendDigest(title, digest.Summary); err != nil {
		digest.NotifyError = err.Error()
		s.db.Save(digest)
		return err
	}

	now := time.Now()
	digest.NotifiedAt = &now
	digest.NotifyError = ""
	s.db.Save(digest)

	logger.Infof("[Digest] Digest generated and sent (ID: %d)", digest.ID)
	return nil
}

// Generate builds and persists today's digest, updating an existing row for
// the same date so re-runs do not duplicate.
func (s *DigestService) Generate() (*models.AnalysisDigest, error) {
	today := time.Now()
	startOfDay := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	digest, err := s.buildDigest(startOfDay, endOfDay)
	if err != nil {
		return nil, err
	}

	var existing models.AnalysisDigest
	if err := s.db.Where("digest_date = ?", startOfDay).First(&existing).Error; err == nil {
		digest.ID = existing.ID
		digest.CreatedAt = existing.CreatedAt
		digest.NotifiedAt = existing.NotifiedAt
		if err := s.db.Save(digest).Error; err != nil {
			return nil, err
		}
	} else {
		if err := s.db.Create(digest).Error; err != nil {
			return nil, err
		}
	}

	return digest, nil
}

func (s *DigestService) buildDigest(startTime, endTime time.Time) (*models.AnalysisDigest, error) {
	stats, err := s.feedbackService.StatsBetween(startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("failed to collect feedback stats: %w", err)
	}

	policiesCreated := int(stats.Analyzed - stats.Skipped)
	if policiesCreated < 0 {
		policiesCreated = 0
	}

	activePolicies := 0
	if custom, err := s.policyService.ListActiveCustom(); err == nil {
		activePolicies += len(custom)
	}
	if generated, err := s.policyService.ListGeneratedNonSkipped(); err == nil {
		activePolicies += len(generated)
	}

	digest := &models.AnalysisDigest{
		DigestDate:      startTime,
		SubmittedCount:  int(stats.Submitted),
		NegativeCount:   int(stats.Negative),
		AnalyzedCount:   int(stats.Analyzed),
		PoliciesCreated: policiesCreated,
		SkippedCount:    int(stats.Skipped),
		PendingCount:    int(stats.Pending),
		ActivePolicies:  activePolicies,
	}

	summary, modelUsed := s.generateAISummary(digest)
	digest.Summary = summary
	digest.AIModelUsed = modelUsed

	return digest, nil
}

func (s *DigestService) generateAISummary(digest *models.AnalysisDigest) (string, string) {
	if s.aiService == nil {
		return s.buildDefaultSummary(digest), ""
	}

	contextData := map[string]interface{}{
		"date":             digest.DigestDate.Format("2006-01-02"),
		"submitted":        digest.SubmittedCount,
		"negative":         digest.NegativeCount,
		"analyzed":         digest.AnalyzedCount,
		"policies_created": digest.PoliciesCreated,
		"skipped":          digest.SkippedCount,
		"pending_backlog":  digest.PendingCount,
		"active_policies":  digest.ActivePolicies,
	}
	contextJSON, _ := json.Marshal(contextData)

	prompt := fmt.Sprintf(`You manage an AI assistant feedback pipeline. Based on the following daily activity data, write a concise markdown digest for an IM channel.

Data:
%s

Include:
1. Today's overview (ratings submitted, negative share, analyses completed)
2. Policy outcomes (new policies vs duplicate skips, total active policies)
3. Backlog status if pending analyses remain
4. One or two short observations or suggestions

Keep it under 500 characters and suitable for chat.`, string(contextJSON))

	llmConfigID := uint(s.configService.GetIntWithDefault("digest_llm_config_id", 0))
	content, modelName, err := s.aiService.CallWithConfig(context.Background(), llmConfigID, prompt)
	if err != nil {
		logger.Warnf("[Digest] AI summary failed, using default: %v", err)
		return s.buildDefaultSummary(digest), ""
	}

	return content, modelName
}

func (s *DigestService) buildDefaultSummary(digest *models.AnalysisDigest) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Feedback Pipeline Digest - %s\n\n", digest.DigestDate.Format("2006-01-02")))
	sb.WriteString("### Overview\n")
	sb.WriteString(fmt.Sprintf("- Ratings submitted: %d (negative: %d)\n", digest.SubmittedCount, digest.NegativeCount))
	sb.WriteString(fmt.Sprintf("- Analyses completed: %d (new policies: %d, duplicate skips: %d)\n",
		digest.AnalyzedCount, digest.PoliciesCreated, digest.SkippedCount))
	sb.WriteString(fmt.Sprintf("- Active policies in force: %d\n", digest.ActivePolicies))
	if digest.PendingCount > 0 {
		sb.WriteString(fmt.Sprintf("\n### Backlog\n- %d negative ratings await analysis\n", digest.PendingCount))
	}

	return sb.String()
}

func (s *DigestService) List(page, pageSize int) ([]models.AnalysisDigest, int64, error) {
	var digests []models.AnalysisDigest
	var total int64

	s.db.Model(&models.AnalysisDigest{}).Count(&total)

	offset := (page - 1) * pageSize
	if err := s.db.Order("digest_date DESC").Offset(offset).Limit(pageSize).Find(&digests).Error; err != nil {
		return nil, 0, err
	}

	return digests, total, nil
}

func (s *DigestService) GetByID(id uint) (*models.AnalysisDigest, error) {
	var digest models.AnalysisDigest
	if err := s.db.First(&digest, id).Error; err != nil {
		return nil, err
	}
	return &digest, nil
}

// ResendNotification re-pushes a stored digest to the configured bots.
func (s *DigestService) ResendNotification(id uint) error {
	digest, err := s.GetByID(id)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("Feedback Pipeline Digest - %s", digest.DigestDate.Format("2006-01-02"))
	if err := s.notificationService.SendDigest(title, digest.Summary); err != nil {
		digest.NotifyError = err.Error()
		s.db.Save(digest)
		return err
	}

	now := time.Now()
	digest.NotifiedAt = &now
	digest.NotifyError = ""
	s.db.Save(digest)

	return nil
}
