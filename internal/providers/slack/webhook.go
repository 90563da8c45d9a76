package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/futorumeshi/internal/observability/tracing"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 5 * time.Second

	// incoming webhooks tolerate roughly one message per second
	messagesPerSecond = 1
	messageBurst      = 3
)

var ErrEmptyMessage = errors.New("empty_slack_message")

type WebhookProvider struct {
	url            string
	defaultChannel string
	client         *http.Client
	limiter        *rate.Limiter
	log            *zap.Logger
}

type webhookPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func NewWebhookProvider(url, defaultChannel string, client *http.Client, log *zap.Logger) *WebhookProvider {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &WebhookProvider{
		url:            url,
		defaultChannel: strings.TrimSpace(defaultChannel),
		client:         tracing.WrapHTTPClient(client),
		limiter:        rate.NewLimiter(rate.Limit(messagesPerSecond), messageBurst),
		log:            log.Named("slack"),
	}
}

func (p *WebhookProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}

	channel := strings.TrimSpace(channelID)
	if channel == "" {
		channel = p.defaultChannel
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("slack throttle: %w", err)
	}

	body, err := json.Marshal(webhookPayload{Channel: channel, Text: message})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("slack post: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	p.log.Debug("slack message posted", zap.String("channel", channel))
	return nil
}
