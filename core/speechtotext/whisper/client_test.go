package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TreasureProject/voicecore/core/audio"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]byte, 3200)
	wav, err := encodeWAV(pcm, audio.GetDefaultEncodingInfo())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if got := string(wav[0:4]); got != "RIFF" {
		t.Fatalf("missing RIFF marker, got %q", got)
	}
	if got := string(wav[8:12]); got != "WAVE" {
		t.Fatalf("missing WAVE marker, got %q", got)
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("expected data length %d, got %d", len(pcm), got)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes total, got %d", 44+len(pcm), len(wav))
	}
}

func TestEncodeWAVRejectsNonLinearAudio(t *testing.T) {
	if _, err := encodeWAV(nil, audio.EncodingInfo{
		SampleRate: 8000,
		Format:     audio.EncodingMulaw,
	}); err == nil {
		t.Fatalf("expected error for non-linear16 audio")
	}
}

func TestTranscribeUploadsSegmentAndParsesText(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	var uploadedModel string
	var uploadedFile []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			uploadedFile, _ = io.ReadAll(file)
			file.Close()
		}
		uploadedModel = r.FormValue("model")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))

	encoding := audio.GetDefaultEncodingInfo()
	segment := audio.NewSegment(make([]byte, encoding.Bytes(100*time.Millisecond)), encoding, time.Now())

	text, err := client.Transcribe(context.Background(), segment)
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("unexpected transcript %q", text)
	}
	if uploadedModel != "whisper-1" {
		t.Fatalf("unexpected model %q", uploadedModel)
	}
	if !bytes.HasPrefix(uploadedFile, []byte("RIFF")) {
		t.Fatalf("uploaded file is not a WAV container")
	}
}

func TestTranscribeSurfacesAPIErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	segment := audio.NewSegment([]byte{0, 0}, audio.GetDefaultEncodingInfo(), time.Now())

	if _, err := client.Transcribe(context.Background(), segment); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}
