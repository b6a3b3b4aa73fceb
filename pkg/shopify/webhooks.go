package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type Webhook struct {
	ID      int64  `json:"id,omitempty"`
	Topic   string `json:"topic"`
	Address string `json:"address"`
	Format  string `json:"format,omitempty"`
}

type webhookListResponse struct {
	Webhooks []Webhook `json:"webhooks"`
}

func (c Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var resp webhookListResponse
	if _, err := c.doJSON(ctx, http.MethodGet, "/webhooks.json", nil, &resp); err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	return resp.Webhooks, nil
}

func (c Client) CreateWebhook(ctx context.Context, topic string, address string) error {
	topic = strings.TrimSpace(topic)
	address = strings.TrimSpace(address)
	if topic == "" || address == "" {
		return fmt.Errorf("missing topic or address")
	}

	req := map[string]Webhook{
		"webhook": {Topic: topic, Address: address, Format: "json"},
	}
	if _, err := c.doJSON(ctx, http.MethodPost, "/webhooks.json", req, nil); err != nil {
		return fmt.Errorf("create webhook %s: %w", topic, err)
	}
	return nil
}

type ScriptTag struct {
	ID    int64  `json:"id,omitempty"`
	Src   string `json:"src"`
	Event string `json:"event"`
}

type scriptTagListResponse struct {
	ScriptTags []ScriptTag `json:"script_tags"`
}

func (c Client) ListScriptTags(ctx context.Context) ([]ScriptTag, error) {
	var resp scriptTagListResponse
	if _, err := c.doJSON(ctx, http.MethodGet, "/script_tags.json", nil, &resp); err != nil {
		return nil, fmt.Errorf("list script tags: %w", err)
	}
	return resp.ScriptTags, nil
}

func (c Client) CreateScriptTag(ctx context.Context, src string, event string) error {
	if strings.TrimSpace(src) == "" {
		return fmt.Errorf("missing script tag src")
	}
	if event == "" {
		event = "onload"
	}
	req := map[string]ScriptTag{
		"script_tag": {Src: src, Event: event},
	}
	if _, err := c.doJSON(ctx, http.MethodPost, "/script_tags.json", req, nil); err != nil {
		return fmt.Errorf("create script tag %s: %w", src, err)
	}
	return nil
}
