// Package deepgram synthesizes reply audio over the Deepgram speak
// websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/TreasureProject/voicecore/core/audio"
	"github.com/TreasureProject/voicecore/core/texttospeech"
)

type Voice string

const (
	VoiceAsteria Voice = "aura-2-asteria-en"
	VoiceThalia  Voice = "aura-2-thalia-en"
	VoiceOrion   Voice = "aura-2-orion-en"
	VoiceArcas   Voice = "aura-2-arcas-en"

	defaultVoice = VoiceAsteria
)

// AvailableVoices lists the voices this client accepts.
func AvailableVoices() []Voice {
	return []Voice{VoiceAsteria, VoiceThalia, VoiceOrion, VoiceArcas}
}

const defaultSpeakURL = "wss://api.deepgram.com/v1/speak"

type TextToSpeechClient struct {
	options  texttospeech.TextToSpeechOptions
	speakURL string
}

type Option func(*TextToSpeechClient)

// WithSpeakURL points the client at a different speak endpoint, mainly for
// tests.
func WithSpeakURL(speakURL string) Option {
	return func(c *TextToSpeechClient) {
		if speakURL != "" {
			c.speakURL = speakURL
		}
	}
}

func NewTextToSpeechClient(opts []texttospeech.TextToSpeechOption, clientOpts ...Option) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{
		options: texttospeech.TextToSpeechOptions{
			Voice:        string(defaultVoice),
			EncodingInfo: audio.GetDefaultEncodingInfo(),
		},
		speakURL: defaultSpeakURL,
	}
	for _, opt := range opts {
		opt(&client.options)
	}
	for _, opt := range clientOpts {
		opt(client)
	}

	if !slices.Contains(AvailableVoices(), Voice(client.options.Voice)) {
		return nil, fmt.Errorf("invalid voice %q", client.options.Voice)
	}

	return client, nil
}

// EncodingInfo is the encoding of the audio Synthesize produces.
func (c *TextToSpeechClient) EncodingInfo() audio.EncodingInfo {
	return c.options.EncodingInfo
}

// Synthesize renders text to speech over a fresh websocket connection,
// forwarding raw audio chunks to onAudio as they arrive. It returns once the
// service has flushed the full reply.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string, onAudio func(audio []byte)) error {
	conn, err := c.connectWebsocket()
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	done := make(chan error, 1)
	go readSpeech(conn, onAudio, done)

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	if err := conn.WriteJSON(speakMessage{Type: "Flush"}); err != nil {
		return fmt.Errorf("failed to flush speech stream: %w", err)
	}

	select {
	case err := <-done:
		// Best effort; the deferred close tears the connection down anyway.
		_ = conn.WriteJSON(speakMessage{Type: "Close"})
		return err
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	}
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func (c *TextToSpeechClient) connectWebsocket() (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	speakUrl, err := url.Parse(c.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak endpoint: %w", err)
	}
	queryParams := speakUrl.Query()
	queryParams.Set("encoding", c.options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(c.options.EncodingInfo.SampleRate))
	queryParams.Set("model", c.options.Voice)
	queryParams.Set("container", "none")
	speakUrl.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(speakUrl.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

// readSpeech forwards binary chunks until the service reports the reply
// flushed.
func readSpeech(conn *websocket.Conn, onAudio func(audio []byte), done chan<- error) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				done <- nil
			} else {
				done <- fmt.Errorf("websocket read failed: %w", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			onAudio(msg)
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				done <- nil
				return
			case "Error":
				done <- fmt.Errorf("speech generation failed: %s", parsedMsg.Description)
				return
			}
		}
	}
}
