package slack

import "context"

// Provider posts plain-text operator notifications. An empty channel means the provider default.
type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return nil
}
