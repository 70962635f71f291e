// Package deepgram transcribes finished speech segments over the Deepgram
// listen websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/TreasureProject/voicecore/core/audio"
	"github.com/TreasureProject/voicecore/core/speechtotext"
)

const sendChunkSize = 8192

type TranscriptionClient struct {
	options speechtotext.TranscriptionOptions
}

func NewTranscriptionClient(opts ...speechtotext.TranscriptionOption) *TranscriptionClient {
	options := speechtotext.TranscriptionOptions{
		Model:    "nova-3",
		Language: "en-US",
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &TranscriptionClient{options: options}
}

// Transcribe streams one segment through a fresh websocket connection and
// returns the accumulated final transcript. An empty string without error
// means the service heard no words in the audio.
func (c *TranscriptionClient) Transcribe(ctx context.Context, segment audio.Segment) (string, error) {
	encoding, err := convertEncoding(segment.Encoding)
	if err != nil {
		return "", fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := connectWebsocket(connectionOptions{
		sampleRate: encoding.SampleRate,
		encoding:   encoding.Format.Name(),
		model:      c.options.Model,
		language:   c.options.Language,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	results := make(chan transcriptionResult, 1)
	go readTranscript(conn, results)

	if err := sendSegment(conn, segment.PCM); err != nil {
		return "", err
	}

	select {
	case result := <-results:
		return result.transcript, result.err
	case <-ctx.Done():
		conn.Close()
		return "", ctx.Err()
	}
}

type connectionOptions struct {
	sampleRate int
	encoding   string
	model      string
	language   string
}

func connectWebsocket(options connectionOptions) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	listenUrl, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", options.model)
	queryParams.Set("language", options.language)
	queryParams.Set("smart_format", "true")

	listenUrl.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, err
}

// sendSegment writes the segment audio followed by the close-stream marker
// that makes the service flush its final results.
func sendSegment(conn *websocket.Conn, pcm []byte) error {
	for start := 0; start < len(pcm); start += sendChunkSize {
		end := min(start+sendChunkSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[start:end]); err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

type transcriptionResult struct {
	transcript string
	err        error
}

func readTranscript(conn *websocket.Conn, results chan<- transcriptionResult) {
	collector := transcriptCollector{}
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				results <- transcriptionResult{transcript: collector.transcript()}
			} else {
				results <- transcriptionResult{err: fmt.Errorf("websocket read failed: %w", err)}
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		done, err := collector.ingest(msg)
		if err != nil {
			log.Println("Failed to process deepgram message", "error", err)
			continue
		}
		if done {
			results <- transcriptionResult{transcript: collector.transcript()}
			return
		}
	}
}

// transcriptCollector accumulates final result messages until the
// end-of-stream metadata arrives.
type transcriptCollector struct {
	parts []string
}

// ingest consumes one non-binary websocket message. It reports done once the
// metadata message that follows the close-stream marker has been seen.
func (t *transcriptCollector) ingest(msg []byte) (done bool, err error) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return false, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			return false, fmt.Errorf("failed to unmarshal result message: %w", err)
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			return false, nil
		}
		if transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript); transcript != "" {
			t.parts = append(t.parts, transcript)
		}
	case api.TypeMetadataResponse:
		return true, nil
	}

	return false, nil
}

func (t *transcriptCollector) transcript() string {
	return strings.Join(t.parts, " ")
}
