package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gorm.io/gorm"

	"github.com/assetlens/backend/internal/models"
	"github.com/assetlens/backend/pkg/logger"
)

// NotificationService delivers digest messages to configured IM bots.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// SendDigest pushes a markdown digest to every active, digest-enabled bot.
// Delivery failures are aggregated so one broken webhook does not hide the
// others.
func (s *NotificationService) SendDigest(title, markdown string) error {
	var bots []models.IMBot
	if err := s.db.Where("is_active = ? AND digest_enabled = ?", true, true).Find(&bots).Error; err != nil {
		return fmt.Errorf("failed to load IM bots: %w", err)
	}
	if len(bots) == 0 {
		logger.Infof("[Notification] No digest-enabled bots configured, skipping delivery")
		return nil
	}

	var failed []string
	for i := range bots {
		if err := s.SendToBot(&bots[i], title, markdown); err != nil {
			logger.Errorf("[Notification] Delivery to bot %s failed: %v", bots[i].Name, err)
			failed = append(failed, bots[i].Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("digest delivery failed for bots: %v", failed)
	}
	return nil
}

// SendToBot dispatches one message to a bot using its platform protocol.
func (s *NotificationService) SendToBot(bot *models.IMBot, title, markdown string) error {
	logger.Infof("[Notification] Sending to bot %s (type: %s)", bot.Name, bot.Type)

	switch bot.Type {
	case "wechat_work":
		return s.sendWeCom(bot, markdown)
	case "dingtalk":
		return s.sendDingTalk(bot, title, markdown)
	case "feishu":
		return s.sendFeishu(bot, markdown)
	case "slack":
		return s.sendSlack(bot, title, markdown)
	default:
		return s.sendGenericWebhook(bot, title, markdown)
	}
}

func (s *NotificationService) sendWeCom(bot *models.IMBot, msg string) error {
	const maxLen = 4000

	parts := s.splitMessage(msg, maxLen)
	for i, part := range parts {
		content := part
		if len(parts) > 1 {
			content = fmt.Sprintf("**[%d/%d]**\n\n%s", i+1, len(parts), part)
		}
		payload := map[string]interface{}{
			"msgtype": "markdown",
			"markdown": map[string]string{
				"content": content,
			},
		}
		if err := s.postJSON(bot.Webhook, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) sendDingTalk(bot *models.IMBot, title, msg string) error {
	const maxLen = 19000

	webhookURL := bot.Webhook
	if bot.Secret != "" {
		timestamp := time.Now().UnixMilli()
		sign := s.dingTalkSign(timestamp, bot.Secret)
		webhookURL = fmt.Sprintf("%s&timestamp=%d&sign=%s", bot.Webhook, timestamp, url.QueryEscape(sign))
	}

	parts := s.splitMessage(msg, maxLen)
	for i, part := range parts {
		partTitle := title
		if len(parts) > 1 {
			partTitle = fmt.Sprintf("%s [%d/%d]", title, i+1, len(parts))
		}
		payload := map[string]interface{}{
			"msgtype": "markdown",
			"markdown": map[string]string{
				"title": partTitle,
				"text":  part,
			},
		}
		if err := s.postJSON(webhookURL, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) dingTalkSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (s *NotificationService) sendFeishu(bot *models.IMBot, msg string) error {
	const maxLen = 4000

	sendPart := func(content string) error {
		if bot.Secret != "" {
			timestamp := time.Now().Unix()
			sign := s.feishuSign(timestamp, bot.Secret)
			payload := map[string]interface{}{
				"timestamp": fmt.Sprintf("%d", timestamp),
				"sign":      sign,
				"msg_type":  "text",
				"content": map[string]string{
					"text": content,
				},
			}
			return s.postJSON(bot.Webhook, payload)
		}
		payload := map[string]interface{}{
			"msg_type": "text",
			"content": map[string]string{
				"text": content,
			},
		}
		return s.postJSON(bot.Webhook, payload)
	}

	parts := s.splitMessage(msg, maxLen)
	for i, part := range parts {
		content := part
		if len(parts) > 1 {
			content = fmt.Sprintf("[%d/%d]\n\n%s", i+1, len(parts), part)
		}
		if err := sendPart(content); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) feishuSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (s *NotificationService) sendSlack(bot *models.IMBot, title, msg string) error {
	const maxLen = 3000

	parts := s.splitMessage(msg, maxLen)
	for i, part := range parts {
		header := fmt.Sprintf("*%s*", title)
		if len(parts) > 1 {
			header = fmt.Sprintf("*%s [%d/%d]*", title, i+1, len(parts))
		}
		payload := map[string]interface{}{
			"text": header,
			"blocks": []map[string]interface{}{
				{
					"type": "section",
					"text": map[string]string{
						"type": "mrkdwn",
						"text": header,
					},
				},
				{
					"type": "section",
					"text": map[string]string{
						"type": "mrkdwn",
						"text": part,
					},
				},
			},
		}
		if err := s.postJSON(bot.Webhook, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) sendGenericWebhook(bot *models.IMBot, title, msg string) error {
	payload := map[string]interface{}{
		"title":   title,
		"content": msg,
	}
	return s.postJSON(bot.Webhook, payload)
}

// splitMessage splits a long message into chunks, trying to break at newlines
func (s *NotificationService) splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var parts []string
	remaining := msg

	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			parts = append(parts, remaining)
			break
		}

		chunk := remaining[:maxLen]
		breakPoint := maxLen

		// Look for the last newline in the chunk
		for i := len(chunk) - 1; i > maxLen/2; i-- {
			if chunk[i] == '\n' {
				breakPoint = i + 1
				break
			}
		}

		parts = append(parts, remaining[:breakPoint])
		remaining = remaining[breakPoint:]
	}

	return parts
}

func (s *NotificationService) postJSON(webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := http.Post(webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	logger.Debugf("[Notification] Response: %d - %s", resp.StatusCode, string(respBody))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
