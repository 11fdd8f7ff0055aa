// Package relay validates chat requests, forwards them to the webhook and maps
// every outcome onto the response envelope.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/xiaot623/chatrelay/internal/protocol"
	"github.com/xiaot623/chatrelay/internal/webhook"
)

// State is a step of the per-request lifecycle, used for logging only.
type State string

const (
	StateReceived       State = "received"
	StateValidating     State = "validating"
	StateRejected       State = "rejected"
	StateForwarding     State = "forwarding"
	StateForwardedOK    State = "forwarded_ok"
	StateForwardedError State = "forwarded_error"
)

// Result is the HTTP status and envelope to send back.
type Result struct {
	Status   int
	Envelope *protocol.Envelope
}

// Service is stateless; it only holds the forwarder.
type Service struct {
	forwarder webhook.Forwarder
	logger    zerolog.Logger
}

// New creates a relay service.
func New(forwarder webhook.Forwarder, logger zerolog.Logger) *Service {
	return &Service{
		forwarder: forwarder,
		logger:    logger.With().Str("component", "relay").Logger(),
	}
}

// Target is the configured webhook URL.
func (s *Service) Target() string {
	return s.forwarder.Target()
}

// Reject is the result for a request without a usable message.
func Reject() *Result {
	return &Result{
		Status:   http.StatusBadRequest,
		Envelope: protocol.Failure(protocol.ErrMessageRequired),
	}
}

// Chat runs one request through validation and forwarding. It never returns an error:
// every failure is expressed in the result.
func (s *Service) Chat(ctx context.Context, requestID string, req *protocol.ChatRequest) *Result {
	logger := s.logger.With().Str("request_id", requestID).Logger()
	logger.Debug().Str("state", string(StateReceived)).Msg("chat request")

	logger.Debug().Str("state", string(StateValidating)).Msg("chat request")
	message, ok := req.Text()
	if !ok {
		logger.Debug().Str("state", string(StateRejected)).Msg("chat request")
		return Reject()
	}

	logger.Debug().Str("state", string(StateForwarding)).Str("target", s.forwarder.Target()).Msg("chat request")
	start := time.Now()
	payload := protocol.NewWebhookPayload(req.ChatID, req.Route, message)

	resp, err := s.forwarder.Forward(ctx, requestID, payload)
	if err != nil {
		result := s.failure(err)
		logger.Error().
			Str("state", string(StateForwardedError)).
			Int("status", result.Status).
			Str("error", result.Envelope.Error).
			RawJSON("upstream_data", result.Envelope.UpstreamData).
			Dur("latency", time.Since(start)).
			Msg("Error calling webhook")
		return result
	}

	logger.Debug().
		Str("state", string(StateForwardedOK)).
		Int("upstream_status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("chat request")
	return &Result{
		Status:   http.StatusOK,
		Envelope: protocol.Success(resp.Body),
	}
}

// failure maps a forwarder error to the passthrough envelope: the upstream status when
// a response arrived, 500 otherwise.
func (s *Service) failure(err error) *Result {
	status := http.StatusInternalServerError
	message := "Failed to send message to webhook"
	upstreamData := json.RawMessage("null")

	var whErr *webhook.Error
	if errors.As(err, &whErr) {
		if whErr.StatusCode != 0 {
			status = whErr.StatusCode
		}
		if whErr.Body != nil {
			upstreamData = whErr.Body
		}
		if whErr.Message != "" {
			message = whErr.Message
		}
	} else if err.Error() != "" {
		message = err.Error()
	}

	return &Result{
		Status: status,
		Envelope: &protocol.Envelope{
			Success:        false,
			Error:          message,
			UpstreamStatus: status,
			UpstreamData:   upstreamData,
			Target:         s.forwarder.Target(),
		},
	}
}
