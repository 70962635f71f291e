// Package frens generates replies through the paid chat backend. Payment is
// settled upstream by an x402 proxy; the client surfaces the settlement
// receipt it gets back with each reply.
package frens

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	agent "github.com/TreasureProject/voicecore/core"
)

const paymentResponseHeader = "X-Payment-Response"

type Client struct {
	httpClient *http.Client
	baseURL    string
	// sessionID groups this process's turns into one backend conversation.
	sessionID string
}

type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		baseURL:    baseURL,
		sessionID:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message     string        `json:"message"`
	ChatHistory []chatMessage `json:"chat_history"`
	SessionID   string        `json:"session_id"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Respond sends the prompt and the conversation so far to the chat backend
// and returns the generated reply.
func (c *Client) Respond(ctx context.Context, prompt string, history []agent.Exchange) (string, error) {
	ctx, span := tracer.Start(ctx, "generate chat response")
	defer span.End()

	body, err := json.Marshal(chatRequest{
		Message:     prompt,
		ChatHistory: toChatHistory(history),
		SessionID:   c.sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("chat request failed with status %d: %s", resp.StatusCode, payload)
	}

	logPaymentReceipt(resp.Header.Get(paymentResponseHeader))

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("error parsing chat response: %w", err)
	}

	return parsed.Response, nil
}

func toChatHistory(history []agent.Exchange) []chatMessage {
	messages := make([]chatMessage, 0, len(history)*2)
	for _, exchange := range history {
		messages = append(messages, chatMessage{Role: "user", Content: exchange.Prompt})
		if exchange.Reply != "" {
			messages = append(messages, chatMessage{Role: "assistant", Content: exchange.Reply})
		}
	}
	return messages
}

// logPaymentReceipt decodes the settlement receipt attached to a paid reply.
// The receipt is informational; a missing or malformed one never fails the
// turn.
func logPaymentReceipt(header string) {
	if header == "" {
		return
	}

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		logger.Warn("unreadable payment receipt", "error", err)
		return
	}

	var receipt struct {
		Success     bool   `json:"success"`
		Transaction string `json:"transaction"`
		Network     string `json:"network"`
	}
	if err := json.Unmarshal(decoded, &receipt); err != nil {
		logger.Warn("unreadable payment receipt", "error", err)
		return
	}

	logger.Info("chat payment settled",
		"success", receipt.Success, "transaction", receipt.Transaction, "network", receipt.Network)
}
