package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"accord/internal/config"
	"accord/internal/domain"
	"accord/internal/logging"
)

const defaultWebhookTimeout = 5 * time.Second

// LogSink writes one structured line per event.
type LogSink struct {
	Log *zap.Logger
}

func (LogSink) Name() string { return "log" }

func (LogSink) Accepts(string) bool { return true }

func (s LogSink) Deliver(_ context.Context, evt domain.Event) error {
	logging.OrNop(s.Log).Info("event",
		zap.Int64("id", evt.ID),
		zap.String("type", evt.Type),
		zap.String("family_id", evt.FamilyID),
		zap.String("entity", evt.EntityKind+"/"+evt.EntityID),
		zap.String("actor_id", evt.ActorID),
		zap.String("payload", evt.Payload),
	)
	return nil
}

// WebhookSink POSTs events as JSON to one configured URL.
type WebhookSink struct {
	Hook   config.WebhookConfig
	Client *http.Client
	filter eventFilter
}

func NewWebhookSink(hook config.WebhookConfig) *WebhookSink {
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	return &WebhookSink{
		Hook:   hook,
		Client: &http.Client{Timeout: timeout},
		filter: newEventFilter(hook.Events),
	}
}

func (s *WebhookSink) Name() string { return "webhook:" + s.Hook.URL }

func (s *WebhookSink) Accepts(evtType string) bool { return s.filter.match(evtType) }

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	FamilyID   string          `json:"family_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *WebhookSink) Deliver(ctx context.Context, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		FamilyID:   evt.FamilyID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Accord-Event", evt.Type)
	req.Header.Set("X-Accord-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Accord-Family", evt.FamilyID)
	if strings.TrimSpace(s.Hook.Secret) != "" {
		req.Header.Set("X-Accord-Secret", s.Hook.Secret)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evtType string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evtType]
	return ok
}
