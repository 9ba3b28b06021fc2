package logic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/pccr10001/groupcall/internal/model"
	"github.com/pccr10001/groupcall/internal/repository"
	"github.com/pccr10001/groupcall/pkg/logger"
)

const (
	EventJoinMutedChanged = "join_muted_changed"
	EventInviteExported   = "invite_exported"
	EventCallEnded        = "call_ended"
)

// SettingsEvent describes a change made through a settings dialog.
type SettingsEvent struct {
	Kind      string    `json:"kind"`
	ChannelID uint      `json:"channel_id"`
	CallID    string    `json:"call_id,omitempty"`
	UserID    uint      `json:"user_id,omitempty"`
	JoinMuted bool      `json:"join_muted"`
	Link      string    `json:"link,omitempty"`
	At        time.Time `json:"at"`
}

type WebhookService struct {
	repo   *repository.WebhookRepository
	client *http.Client
	wg     sync.WaitGroup
}

func NewWebhookService(repo *repository.WebhookRepository) *WebhookService {
	return &WebhookService{
		repo:   repo,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookService) Dispatch(ev *SettingsEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	webhooks, err := s.repo.FindByChannel(context.Background(), ev.ChannelID)
	if err != nil {
		logger.Log.Errorf("Failed to fetch webhooks for channel %d: %v", ev.ChannelID, err)
		return
	}

	for _, wh := range webhooks {
		s.wg.Add(1)
		go func(wh model.Webhook) {
			defer s.wg.Done()
			s.sendWebhook(wh, ev)
		}(wh)
	}
}

// Wait blocks until every dispatched webhook has been delivered or failed.
func (s *WebhookService) Wait() {
	s.wg.Wait()
}

func renderText(wh model.Webhook, ev *SettingsEvent) string {
	content := defaultText(ev)
	if wh.Template == "" {
		return content
	}
	tmpl, err := template.New("msg").Parse(wh.Template)
	if err != nil {
		logger.Log.Warnf("Webhook %d has a broken template: %v", wh.ID, err)
		return content
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ev); err != nil {
		return content
	}
	return buf.String()
}

func defaultText(ev *SettingsEvent) string {
	switch ev.Kind {
	case EventJoinMutedChanged:
		if ev.JoinMuted {
			return "New participants of call " + ev.CallID + " now join muted"
		}
		return "New participants of call " + ev.CallID + " now join unmuted"
	case EventInviteExported:
		return "New invite link: " + ev.Link
	case EventCallEnded:
		return "Call " + ev.CallID + " ended"
	}
	return ev.Kind
}

func (s *WebhookService) sendWebhook(wh model.Webhook, ev *SettingsEvent) {
	content := renderText(wh, ev)

	var payload []byte
	var err error

	switch wh.Platform {
	case "telegram":
		body := map[string]interface{}{
			"text":       content,
			"parse_mode": "Markdown",
		}
		if wh.ChatID != "" {
			body["chat_id"] = wh.ChatID
		}
		payload, err = json.Marshal(body)
	case "slack":
		payload, err = json.Marshal(map[string]interface{}{"text": content})
	default:
		if strings.Contains(wh.URL, "slack.com") {
			payload, err = json.Marshal(map[string]interface{}{"text": content})
			break
		}
		payload, err = json.Marshal(map[string]interface{}{
			"text":  content,
			"event": ev,
		})
	}

	if err != nil {
		logger.Log.Errorf("Failed to marshal webhook payload: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		logger.Log.Errorf("Failed to create request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Log.Errorf("Failed to send webhook to %s: %v", wh.URL, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		logger.Log.Errorf("Webhook %s returned status: %d", wh.URL, resp.StatusCode)
	} else {
		logger.Log.Infof("Webhook %s sent to %s", ev.Kind, wh.URL)
	}
}
