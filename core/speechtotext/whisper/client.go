// Package whisper transcribes finished speech segments through the OpenAI
// audio transcription REST endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/TreasureProject/voicecore/core/audio"
	"github.com/TreasureProject/voicecore/core/speechtotext"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Client struct {
	httpClient *http.Client
	baseURL    string
	options    speechtotext.TranscriptionOptions
}

type Option func(*Client)

// WithBaseURL points the client at a compatible self-hosted endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		baseURL:    defaultBaseURL,
		options:    speechtotext.TranscriptionOptions{Model: "whisper-1"},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewClientWithOptions is NewClient plus shared transcription options like
// the model and language.
func NewClientWithOptions(transcription []speechtotext.TranscriptionOption, opts ...Option) *Client {
	client := NewClient(opts...)
	for _, opt := range transcription {
		opt(&client.options)
	}
	return client
}

// Transcribe uploads the segment as a WAV file and returns the recognized
// text.
func (c *Client) Transcribe(ctx context.Context, segment audio.Segment) (string, error) {
	apiKey, ok := os.LookupEnv("OPENAI_API_KEY")
	if !ok {
		return "", fmt.Errorf("openai api key not found")
	}

	wav, err := encodeWAV(segment.PCM, segment.Encoding)
	if err != nil {
		return "", fmt.Errorf("failed to encode segment: %w", err)
	}

	body := bytes.Buffer{}
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "segment.wav")
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := form.WriteField("model", c.options.Model); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if c.options.Language != "" {
		if err := form.WriteField("language", c.options.Language); err != nil {
			return "", fmt.Errorf("failed to build upload form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("transcription request failed with status %d: %s",
			resp.StatusCode, payload)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse transcription response: %w", err)
	}

	return parsed.Text, nil
}
