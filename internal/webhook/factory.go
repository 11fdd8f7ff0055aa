package webhook

import (
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/chatrelay/internal/config"
)

// NewForwarder picks the forwarder for the configured mode.
// RELAY_MODE=MOCK returns a MockClient; otherwise a real Client.
func NewForwarder(cfg *config.Config) Forwarder {
	if cfg.MockMode() {
		log.Info().Msg("RELAY_MODE=MOCK detected, using mock webhook forwarder")
		return NewMockClient()
	}

	return NewClient(cfg.WebhookURL, cfg.WebhookTimeout)
}
