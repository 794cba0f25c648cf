package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/communityfix/maintenance-service/internal/config"
)

// Classifier is the contract the intake orchestrator depends on. A classify
// call never returns an error: any failure degrades to a fallback Outcome.
type Classifier interface {
	Classify(ctx context.Context, draft TicketDraft, cctx CommunityContext) Outcome
}

// HTTPClassifier calls a chat-completion style endpoint.
type HTTPClassifier struct {
	cfg        config.OracleConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClassifier builds the adapter with a bounded request timeout.
func NewHTTPClassifier(cfg config.OracleConfig, logger *zap.Logger) *HTTPClassifier {
	return &HTTPClassifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     logger,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify sends the draft to the oracle and decodes the reply. Transport
// failures, non-2xx statuses, and undecodable bodies all yield a fallback
// outcome; ticket creation must never block on this call.
func (c *HTTPClassifier) Classify(ctx context.Context, draft TicketDraft, cctx CommunityContext) Outcome {
	if c.cfg.BaseURL == "" {
		return FallbackOutcome(draft, "oracle not configured")
	}

	payload, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: BuildPrompt(draft, cctx)}},
	})
	if err != nil {
		return c.fallback(draft, fmt.Sprintf("encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return c.fallback(draft, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fallback(draft, fmt.Sprintf("oracle request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return c.fallback(draft, fmt.Sprintf("read oracle response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return c.fallback(draft, fmt.Sprintf("oracle returned status %d", resp.StatusCode))
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return c.fallback(draft, fmt.Sprintf("decode oracle envelope: %v", err))
	}
	if len(chat.Choices) == 0 {
		return c.fallback(draft, "oracle returned no choices")
	}

	outcome := DecodeReply(chat.Choices[0].Message.Content, draft)
	if outcome.Fallback {
		c.logger.Warn("oracle reply degraded to fallback", zap.String("reason", outcome.FallbackReason))
	}
	return outcome
}

func (c *HTTPClassifier) fallback(draft TicketDraft, reason string) Outcome {
	c.logger.Warn("oracle unavailable, using fallback classification", zap.String("reason", reason))
	return FallbackOutcome(draft, reason)
}
